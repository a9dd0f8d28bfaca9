package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/prompt-workbench/internal/config"
	"github.com/jonathan/prompt-workbench/internal/library"
	"github.com/jonathan/prompt-workbench/internal/optimization"
	"github.com/jonathan/prompt-workbench/internal/scoring"
	"github.com/jonathan/prompt-workbench/internal/server/ratelimit"
	"github.com/jonathan/prompt-workbench/internal/workbench"
)

const validInputs = `{"industry":"Energy","region":"Europe","transformational_journey":"Decarbonisation","program_area":"Grid","web_content":"Grid upgrade tender."}`

// scriptedScores returns an evaluator that serves scores in order and 0 once exhausted.
func scriptedScores(scores ...int) optimization.Evaluator {
	var mu sync.Mutex
	i := 0
	return optimization.EvaluatorFunc(func(ctx context.Context, instruction string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		score := 0
		if i < len(scores) {
			score = scores[i]
		}
		i++
		return fmt.Sprintf("## Scoring Description:\nok\n## Overall Score:\n%d\n## System Prompt Improvement Feedback:\nbe specific", score), nil
	})
}

func newTestService(t *testing.T, eval optimization.Evaluator) *workbench.Service {
	t.Helper()
	gen := optimization.GeneratorFunc(func(ctx context.Context, systemPrompt, userQuery string) (string, error) {
		return "report for " + systemPrompt, nil
	})
	opt := optimization.OptimizerFunc(func(ctx context.Context, currentPrompt, feedback string) (string, error) {
		return currentPrompt + "+", nil
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return workbench.New(gen, eval, opt, library.New(t.TempDir()),
		workbench.WithLogger(logger),
		workbench.WithBatchOptions(optimization.BatchOptions{Concurrency: 2, Interval: time.Millisecond}),
	)
}

func newTestServer(t *testing.T, svc *workbench.Service, mutate ...func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		RateLimit: &ratelimit.Config{Enabled: false},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := New(svc, cfg)
	require.NoError(t, err)
	t.Cleanup(s.rateLimiter.Stop)
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestNew_RequiresService(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)
}

func TestNew_AuthRequiresPasswordHash(t *testing.T) {
	_, err := New(newTestService(t, scriptedScores()), Config{
		JWT: &config.JWTConfig{Secret: testJWTSecret, ExpirationHours: 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKBENCH_ADMIN_PASSWORD_HASH")
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, newTestService(t, scriptedScores())).Handler()

	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[map[string]any](t, w)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, false, resp["history"])
}

func TestModelsEndpoint(t *testing.T) {
	h := newTestServer(t, newTestService(t, scriptedScores())).Handler()

	w := do(t, h, http.MethodGet, "/models", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gemini-1.5-flash")
}

func TestSchemaEndpoint(t *testing.T) {
	h := newTestServer(t, newTestService(t, scriptedScores())).Handler()

	w := do(t, h, http.MethodGet, "/schemas/inputs", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/schema+json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "program_area")

	w = do(t, h, http.MethodGet, "/schemas/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateEndpoint(t *testing.T) {
	h := newTestServer(t, newTestService(t, scriptedScores())).Handler()

	w := do(t, h, http.MethodPost, "/generate", `{"prompt":"P","inputs":`+validInputs+`}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[workbench.GenerateResult](t, w)
	assert.Equal(t, "report for P", resp.Report)
	assert.Contains(t, resp.UserQuery, "Energy")
}

func TestGenerateEndpoint_BadRequests(t *testing.T) {
	h := newTestServer(t, newTestService(t, scriptedScores())).Handler()

	tests := []struct {
		name       string
		body       string
		wantDetail string
	}{
		{name: "not JSON", body: `{`},
		{name: "missing inputs", body: `{"prompt":"P","inputs":{}}`, wantDetail: "industry"},
		{name: "bad url", body: `{"prompt":"P","inputs":` + validInputs + `,"urls":["not a url"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/generate", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			if tt.wantDetail != "" {
				assert.Contains(t, w.Body.String(), tt.wantDetail)
			}
		})
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	h := newTestServer(t, newTestService(t, scriptedScores(81))).Handler()

	w := do(t, h, http.MethodPost, "/evaluate", `{"prompt":"P","inputs":`+validInputs+`,"report":"R"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[workbench.EvaluateResult](t, w)
	assert.Equal(t, "R", resp.Report)
	require.NotNil(t, resp.Evaluation.Score)
	assert.Equal(t, 81, *resp.Evaluation.Score)
}

func TestEvaluateEndpoint_ProviderFailure(t *testing.T) {
	failing := optimization.EvaluatorFunc(func(ctx context.Context, instruction string) (string, error) {
		return "", errors.New("quota exceeded")
	})
	h := newTestServer(t, newTestService(t, failing)).Handler()

	w := do(t, h, http.MethodPost, "/evaluate", `{"prompt":"P","inputs":`+validInputs+`,"report":"R"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "quota exceeded")
}

func TestParseEndpoint(t *testing.T) {
	h := newTestServer(t, newTestService(t, scriptedScores())).Handler()

	w := do(t, h, http.MethodPost, "/parse", `{"raw":"## Overall Score:\nScore: 77\n"}`)
	require.Equal(t, http.StatusOK, w.Code)
	eval := decodeBody[scoring.Evaluation](t, w)
	require.NotNil(t, eval.Score)
	assert.Equal(t, 77, *eval.Score)

	w = do(t, h, http.MethodPost, "/parse", `{"raw":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Raw")
}

func TestOptimizeEndpoint(t *testing.T) {
	svc := newTestService(t, scriptedScores(40, 60, 95))
	h := newTestServer(t, svc).Handler()

	body := `{"prompt":"P","inputs":` + validInputs + `,"max_steps":3,"save":true,"save_name":"grid winner"}`
	w := do(t, h, http.MethodPost, "/optimize", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeBody[OptimizeResponse](t, w)
	require.NotNil(t, resp.Result)
	assert.Equal(t, optimization.TerminationTargetReached, resp.Result.Termination)
	assert.Equal(t, 95, resp.Result.Best.Score)
	assert.Equal(t, "grid winner", resp.SavedAs)

	entry, err := svc.Library().LoadEntry("grid winner")
	require.NoError(t, err)
	assert.Equal(t, resp.Result.Best.Prompt, entry.Content)
}

func TestOptimizeEndpoint_BaselineWithoutScore(t *testing.T) {
	unscored := optimization.EvaluatorFunc(func(ctx context.Context, instruction string) (string, error) {
		return "I cannot grade this.", nil
	})
	h := newTestServer(t, newTestService(t, unscored)).Handler()

	w := do(t, h, http.MethodPost, "/optimize", `{"prompt":"P","inputs":`+validInputs+`}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestOptimizeEndpoint_BadConfig(t *testing.T) {
	h := newTestServer(t, newTestService(t, scriptedScores())).Handler()

	w := do(t, h, http.MethodPost, "/optimize", `{"prompt":"P","inputs":`+validInputs+`,"max_steps":50}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "max_steps")
}

func TestOptimizeStreamEndpoint(t *testing.T) {
	h := newTestServer(t, newTestService(t, scriptedScores(10, 20, 30))).Handler()
	srv := httptest.NewServer(h)
	defer srv.Close()

	body := `{"prompt":"P","inputs":` + validInputs + `,"max_steps":2,"skip_baseline":true}`
	resp, err := http.Post(srv.URL+"/optimize/stream", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	var last string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			last = data
		}
	}
	require.NoError(t, scanner.Err())

	require.NotEmpty(t, events)
	assert.Equal(t, "progress", events[0])
	assert.Equal(t, "complete", events[len(events)-1])
	steps := 0
	for _, e := range events {
		if e == "step" {
			steps++
		}
	}
	assert.Equal(t, 2, steps)

	var final OptimizeResponse
	require.NoError(t, json.Unmarshal([]byte(last), &final))
	assert.Len(t, final.Result.History, 2)
	assert.Equal(t, optimization.TerminationStepsExhausted, final.Result.Termination)
}

func TestBatchEndpoint(t *testing.T) {
	svc := newTestService(t, scriptedScores(95, 95))
	h := newTestServer(t, svc).Handler()

	items := `[
		{"name":"a","config":{"initial_prompt":"A","inputs":` + validInputs + `,"max_steps":1,"target_score":90}},
		{"name":"b","config":{"initial_prompt":"B","inputs":` + validInputs + `,"max_steps":1,"target_score":90}}
	]`
	w := do(t, h, http.MethodPost, "/batch", items)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	results := decodeBody[[]BatchResultResponse](t, w)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Name)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, optimization.TerminationTargetReached, results[0].Result.Termination)
}

func TestBatchEndpoint_SchemaViolation(t *testing.T) {
	h := newTestServer(t, newTestService(t, scriptedScores())).Handler()

	w := do(t, h, http.MethodPost, "/batch", `[{"name":"a","config":{"initial_prompt":"A","inputs":`+validInputs+`,"max_steps":99,"target_score":90}}]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "max_steps")
}

func TestRunsEndpoints_WithoutStore(t *testing.T) {
	h := newTestServer(t, newTestService(t, scriptedScores())).Handler()

	w := do(t, h, http.MethodGet, "/runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, h, http.MethodGet, "/runs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/runs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLibraryEndpoints(t *testing.T) {
	h := newTestServer(t, newTestService(t, scriptedScores())).Handler()

	w := do(t, h, http.MethodPost, "/library", `{"name":"grid/v1","content":"Be concise.","score":88,"context":{"region":"Europe"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "grid_v1", decodeBody[map[string]string](t, w)["name"])

	w = do(t, h, http.MethodGet, "/library/grid_v1", "")
	require.Equal(t, http.StatusOK, w.Code)
	entry := decodeBody[library.Entry](t, w)
	assert.Equal(t, "Be concise.", entry.Content)
	assert.Equal(t, 88, *entry.Score)
	assert.Equal(t, "Europe", entry.Context["region"])

	w = do(t, h, http.MethodGet, "/library", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]library.Entry](t, w), 1)

	w = do(t, h, http.MethodGet, "/library/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPost, "/library", `{"name":"x","content":"y","score":101}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORS(t *testing.T) {
	t.Run("wildcard", func(t *testing.T) {
		h := newTestServer(t, newTestService(t, scriptedScores())).Handler()

		w := do(t, h, http.MethodOptions, "/optimize", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})

	t.Run("allow list", func(t *testing.T) {
		h := newTestServer(t, newTestService(t, scriptedScores()), func(c *Config) {
			c.CORSOrigins = []string{"https://app.example.com"}
		}).Handler()

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

		req.Header.Set("Origin", "https://evil.example.com")
		w = httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	h := newTestServer(t, newTestService(t, scriptedScores()), func(c *Config) {
		c.RateLimit = &ratelimit.Config{
			Enabled:         true,
			DefaultRPS:      0.001,
			DefaultBurst:    1,
			EndpointConfigs: ratelimit.DefaultEndpointConfigs(),
		}
	}).Handler()

	w := do(t, h, http.MethodGet, "/library/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "20", w.Header().Get("X-RateLimit-Limit"))

	w = do(t, h, http.MethodPost, "/parse", `{"raw":"x"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, h, http.MethodPost, "/parse", `{"raw":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
	}
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, newTestService(t, scriptedScores()))
	s.httpServer.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusTeapot, map[string]int{"n": 1})
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":1}`, w.Body.String())
}

func TestStatusRecorderFlushes(t *testing.T) {
	inner := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: inner, status: http.StatusOK}
	_, _ = rec.Write(bytes.Repeat([]byte("x"), 3))
	rec.Flush()
	assert.True(t, inner.Flushed)
	assert.Equal(t, inner, rec.Unwrap())
}
