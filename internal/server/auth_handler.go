package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/prompt-workbench/internal/config"
)

// TokenRequest is the body of POST /auth/token.
type TokenRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=72"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthHandler exchanges the admin credentials for bearer tokens.
type AuthHandler struct {
	username     string
	passwordHash string
	passwords    *config.PasswordConfig
	jwtService   *JWTService
	validator    *validator.Validate
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(username, passwordHash string, passwords *config.PasswordConfig, jwtService *JWTService) *AuthHandler {
	return &AuthHandler{
		username:     username,
		passwordHash: passwordHash,
		passwords:    passwords,
		jwtService:   jwtService,
		validator:    validator.New(),
	}
}

// Token handles credential exchange requests.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	if err := h.validator.Struct(req); err != nil {
		verr := extractValidationError(err)
		writeJSON(w, HTTPStatus(verr), ErrorResponse{Error: verr.Error()})
		return
	}

	if err := h.authenticate(req); err != nil {
		writeJSON(w, HTTPStatus(err), ErrorResponse{Error: err.Error()})
		return
	}

	token, expiresAt, err := h.jwtService.GenerateToken(req.Username)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to generate token"})
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}

// authenticate checks the password hash whatever the username.
func (h *AuthHandler) authenticate(req TokenRequest) error {
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) == 1
	passOK := h.passwords.VerifyPassword(req.Password, h.passwordHash)
	if !userOK || !passOK {
		return &ErrInvalidCredentials{}
	}
	return nil
}

// extractValidationError converts the first validator failure into an ErrValidation.
func extractValidationError(err error) *ErrValidation {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ErrValidation{Field: fe.Field(), Message: describeTag(fe)}
	}
	return &ErrValidation{Field: "request", Message: "invalid request"}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fe.Tag()
	}
}
