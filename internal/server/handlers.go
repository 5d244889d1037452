package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/ShayCichocki/appforge/internal/pipeline"
	"github.com/ShayCichocki/appforge/internal/state"
	"github.com/ShayCichocki/appforge/pkg/models"
)

// maxBodyBytes leaves room for data-URI attachments.
const maxBodyBytes = 10 << 20

// invalidSecretMessage is the error text callers see on a secret mismatch.
const invalidSecretMessage = "Invalid secret!"

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, models.Acknowledgment{Error: "method not allowed"})
		return
	}

	var req models.TaskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.Acknowledgment{Error: "invalid json"})
		return
	}

	ticket, err := s.runner.Accept(req)
	if err != nil {
		writeError(w, err)
		return
	}

	if s.async {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			ctx := context.WithoutCancel(r.Context())
			if _, err := s.runner.Execute(ctx, ticket); err != nil {
				log.Printf("[server] run %s: %v", ticket.RunID, err)
			}
		}()
		writeJSON(w, http.StatusAccepted, models.Acknowledgment{
			Status: models.AckReceived,
			RunID:  ticket.RunID,
		})
		return
	}

	// The evaluation callback is the real result channel, so a caller
	// that hangs up must not abort the run. The pipeline timeout still applies.
	result, err := s.runner.Execute(context.WithoutCancel(r.Context()), ticket)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Ack())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": s.version})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "run journal disabled"})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	runs, err := s.runs.List(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "run journal disabled"})
		return
	}
	run, err := s.runs.Get(r.PathValue("id"))
	if errors.Is(err, state.ErrRunNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "run not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrRepositoryExists):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrGenerationFailed), errors.Is(err, pipeline.ErrPublishFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusUnauthorized {
		msg = invalidSecretMessage
	}
	writeJSON(w, status, models.Acknowledgment{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
