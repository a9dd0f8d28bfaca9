package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/prompt-workbench/internal/db"
	"github.com/jonathan/prompt-workbench/internal/library"
	"github.com/jonathan/prompt-workbench/internal/llm"
	"github.com/jonathan/prompt-workbench/internal/optimization"
	"github.com/jonathan/prompt-workbench/internal/schemas"
	"github.com/jonathan/prompt-workbench/internal/scoring"
	"github.com/jonathan/prompt-workbench/internal/workbench"
)

// heartbeatInterval spaces keep-alive comments on event streams.
const heartbeatInterval = 15 * time.Second

// GenerateBody is the request body for /generate.
type GenerateBody struct {
	workbench.GenerateRequest
	URLs []string `json:"urls,omitempty" validate:"max=20,dive,url"`
}

// EvaluateBody is the request body for /evaluate.
type EvaluateBody struct {
	workbench.EvaluateRequest
	URLs []string `json:"urls,omitempty" validate:"max=20,dive,url"`
}

// ParseBody is the request body for /parse.
type ParseBody struct {
	Raw string `json:"raw" validate:"required"`
}

// OptimizeBody is the request body for /optimize and /optimize/stream.
type OptimizeBody struct {
	workbench.OptimizeRequest
	URLs []string `json:"urls,omitempty" validate:"max=20,dive,url"`

	// Save stores the best prompt in the library when the run ends. SaveName defaults to the
	// suggested name.
	Save     bool   `json:"save,omitempty"`
	SaveName string `json:"save_name,omitempty"`
}

// OptimizeResponse is the response for /optimize.
type OptimizeResponse struct {
	Result  *optimization.RunResult `json:"result"`
	SavedAs string                  `json:"saved_as,omitempty"`
}

// BatchResultResponse is one entry of the /batch response.
type BatchResultResponse struct {
	Name   string                  `json:"name"`
	Result *optimization.RunResult `json:"result,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

// SaveLibraryBody is the request body for POST /library.
type SaveLibraryBody struct {
	Name    string            `json:"name" validate:"required,max=200"`
	Content string            `json:"content" validate:"required"`
	Score   *int              `json:"score,omitempty" validate:"omitempty,min=0,max=100"`
	Context map[string]string `json:"context,omitempty"`
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "history": s.svc.HasStore()})
}

// handleModels lists the selectable models.
func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, llm.Models())
}

// handleSchema serves a reflected JSON Schema.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	data, err := schemas.Schema(r.PathValue("name"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// decode reads a JSON body into v and validates its tags.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return false
	}
	if err := s.validator.Struct(v); err != nil {
		s.errorResponse(w, extractValidationError(err))
		return false
	}
	return true
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body GenerateBody
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.svc.AttachURLs(r.Context(), &body.Inputs, body.URLs); err != nil {
		s.errorResponse(w, &ErrValidation{Field: "urls", Message: err.Error()})
		return
	}

	res, err := s.svc.Generate(r.Context(), body.GenerateRequest)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var body EvaluateBody
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.svc.AttachURLs(r.Context(), &body.Inputs, body.URLs); err != nil {
		s.errorResponse(w, &ErrValidation{Field: "urls", Message: err.Error()})
		return
	}

	res, err := s.svc.Evaluate(r.Context(), body.EvaluateRequest)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var body ParseBody
	if !s.decode(w, r, &body) {
		return
	}
	writeJSON(w, http.StatusOK, scoring.Parse(body.Raw))
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var body OptimizeBody
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.svc.AttachURLs(r.Context(), &body.Inputs, body.URLs); err != nil {
		s.errorResponse(w, &ErrValidation{Field: "urls", Message: err.Error()})
		return
	}

	res, err := s.svc.Optimize(r.Context(), body.OptimizeRequest, nil)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	resp := OptimizeResponse{Result: res}
	if body.Save {
		resp.SavedAs = s.saveBest(res, body)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleOptimizeStream runs an optimization and streams progress via SSE. Recorded steps are
// sent as "step" events carrying the step record. The run stops between steps when the client
// disconnects.
func (s *Server) handleOptimizeStream(w http.ResponseWriter, r *http.Request) {
	var body OptimizeBody
	if !s.decode(w, r, &body) {
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(r.Context())
	defer stopHeartbeat()
	go sse.Heartbeat(hbCtx, heartbeatInterval)

	if len(body.URLs) > 0 {
		sse.WriteEvent(EventProgress, optimization.ProgressEvent{Stage: "fetching", Message: fmt.Sprintf("Fetching %d URLs", len(body.URLs))}) //nolint:errcheck
		if err := s.svc.AttachURLs(r.Context(), &body.Inputs, body.URLs); err != nil {
			sse.WriteError(&ErrValidation{Field: "urls", Message: err.Error()})
			return
		}
	}

	res, err := s.svc.Optimize(r.Context(), body.OptimizeRequest, func(ev optimization.ProgressEvent) {
		name, data := EventProgress, any(ev)
		if rec, ok := ev.Content.(optimization.StepRecord); ok && ev.Stage == optimization.StageRecorded {
			name, data = EventStep, rec
		}
		if err := sse.WriteEvent(name, data); err != nil {
			s.logger.Debug("progress event not delivered", "event", name, "error", err)
		}
	})
	if err != nil {
		sse.WriteError(err)
		return
	}

	resp := OptimizeResponse{Result: res}
	if body.Save {
		resp.SavedAs = s.saveBest(res, body)
	}
	sse.WriteComplete(resp)
}

// saveBest stores the best prompt and returns its name. Failures are logged; the run result
// is still returned.
func (s *Server) saveBest(res *optimization.RunResult, body OptimizeBody) string {
	name, err := s.svc.SaveBest(res, body.Inputs, body.SaveName)
	if err != nil {
		s.logger.Warn("failed to save best prompt", "run_id", res.RunID, "error", err)
		return ""
	}
	return name
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	if err := schemas.Validate(schemas.NameBatch, data); err != nil {
		s.errorResponse(w, err)
		return
	}

	var items []optimization.BatchItem
	if err := json.Unmarshal(data, &items); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	results := s.svc.Batch(r.Context(), items)
	out := make([]BatchResultResponse, len(results))
	for i, res := range results {
		out[i] = BatchResultResponse{Name: res.Name, Result: res.Result}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := db.RunFilters{
		Status:      q.Get("status"),
		Termination: q.Get("termination"),
		Name:        q.Get("name"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 500 {
			s.errorResponse(w, &ErrValidation{Field: "limit", Message: "must be an integer between 1 and 500"})
			return
		}
		filters.Limit = limit
	}

	runs, err := s.svc.Runs(r.Context(), filters)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, &ErrValidation{Field: "id", Message: "invalid run ID format"})
		return
	}

	detail, err := s.svc.Run(r.Context(), id)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleListLibrary(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.svc.Library().Entries()
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetLibrary(w http.ResponseWriter, r *http.Request) {
	entry, err := s.svc.Library().LoadEntry(r.PathValue("name"))
	if err != nil {
		if errors.Is(err, library.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Prompt not found"})
			return
		}
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleSaveLibrary(w http.ResponseWriter, r *http.Request) {
	var body SaveLibraryBody
	if !s.decode(w, r, &body) {
		return
	}

	name, err := s.svc.Library().SaveEntry(body.Name, body.Content, body.Score, body.Context)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": name})
}
