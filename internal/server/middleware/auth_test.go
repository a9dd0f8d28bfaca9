package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTokenValidator is a test implementation of TokenValidator for unit tests.
type testTokenValidator struct {
	validTokens map[string]string
}

func newTestTokenValidator() *testTokenValidator {
	return &testTokenValidator{validTokens: make(map[string]string)}
}

func (v *testTokenValidator) addValidToken(token, subject string) {
	v.validTokens[token] = subject
}

func (v *testTokenValidator) ValidateToken(tokenString string) (SubjectGetter, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token string is empty")
	}
	subject, ok := v.validTokens[tokenString]
	if !ok {
		return nil, fmt.Errorf("invalid token")
	}
	return testClaims(subject), nil
}

type testClaims string

func (c testClaims) GetSubject() (string, error) {
	return string(c), nil
}

func serve(t *testing.T, v TokenValidator, header string) (*httptest.ResponseRecorder, bool, string) {
	t.Helper()
	called := false
	var subject string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		var err error
		subject, err = GetSubject(r)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	AuthMiddleware(v)(handler).ServeHTTP(w, req)
	return w, called, subject
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	v := newTestTokenValidator()
	v.addValidToken("valid-test-token-123", "admin")

	w, called, subject := serve(t, v, "Bearer valid-test-token-123")

	assert.True(t, called, "handler should be called")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", subject)
}

func TestAuthMiddleware_CaseInsensitiveScheme(t *testing.T) {
	v := newTestTokenValidator()
	v.addValidToken("tok", "admin")

	for _, header := range []string{"bearer tok", "BeArEr tok", "Bearer  tok"} {
		w, called, _ := serve(t, v, header)
		assert.True(t, called, header)
		assert.Equal(t, http.StatusOK, w.Code, header)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	v := newTestTokenValidator()
	v.addValidToken("tok", "admin")
	v.addValidToken("anon", "")

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "missing Bearer prefix", header: "tok"},
		{name: "only Bearer", header: "Bearer"},
		{name: "wrong scheme", header: "Basic tok"},
		{name: "extra parts", header: "Bearer tok extra"},
		{name: "unknown token", header: "Bearer not.a.valid.jwt"},
		{name: "empty subject", header: "Bearer anon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, called, _ := serve(t, v, tt.header)

			assert.False(t, called, "handler should not be called")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "Unauthorized")
			assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestGetSubject(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req = req.WithContext(context.WithValue(req.Context(), subjectKey, "admin"))

		subject, err := GetSubject(req)
		require.NoError(t, err)
		assert.Equal(t, "admin", subject)
	})

	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)

		subject, err := GetSubject(req)
		assert.Error(t, err)
		assert.Empty(t, subject)
		assert.Contains(t, err.Error(), "subject not found")
	})

	t.Run("wrong type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req = req.WithContext(context.WithValue(req.Context(), subjectKey, 42))

		_, err := GetSubject(req)
		assert.Error(t, err)
	})
}
