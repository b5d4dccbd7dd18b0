package worker

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tastetrainer/internal/history"
	"github.com/thebtf/tastetrainer/internal/trainer"
	"github.com/thebtf/tastetrainer/pkg/models"
)

// Handler configuration constants
const (
	// DefaultInsightsLimit is the default number of insights per side.
	DefaultInsightsLimit = 6

	// DefaultHistoryLimit is the default number of history events returned.
	DefaultHistoryLimit = 20

	// MaxListLimit caps any limit query parameter.
	MaxListLimit = 200
)

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSONStatus(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

// writeTrainerError maps trainer errors to HTTP statuses.
func writeTrainerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, trainer.ErrDeckEmpty):
		writeError(w, http.StatusConflict, "deck_empty", err)
	case errors.Is(err, history.ErrEmpty):
		writeError(w, http.StatusConflict, "nothing_to_undo", err)
	case errors.Is(err, trainer.ErrNotEnoughSwipes):
		writeError(w, http.StatusConflict, "not_enough_swipes", err)
	case errors.Is(err, trainer.ErrAnalysisInFlight):
		writeError(w, http.StatusConflict, "analysis_in_flight", err)
	default:
		log.Error().
			Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Trainer operation failed")
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}

// parseLimit reads a positive limit query parameter, falling back to def.
func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, MaxListLimit), nil
}

// handleHealth returns 200 even while the trainer bootstraps.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	} else if err := s.getInitError(); err != nil {
		status = "error"
	}
	resp := map[string]any{
		"version":     s.version,
		"uptime":      time.Since(s.startTime).Round(time.Second).String(),
		"sse_clients": s.broadcaster.ClientCount(),
	}
	if s.storageHealth != nil {
		storage := s.storageHealth(r.Context())
		if storage.Status == HealthUnhealthy && status == "ready" {
			status = HealthDegraded
		}
		resp["storage"] = storage
	}
	if s.breakerState != nil {
		if state := s.breakerState(); state != "" {
			resp["analysis_breaker"] = state
		}
	}
	resp["status"] = status
	writeJSON(w, resp)
}

func (s *Service) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"version": s.version})
}

// handleReady returns 200 only once the trainer has bootstrapped.
func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		if err := s.getInitError(); err != nil {
			writeError(w, http.StatusInternalServerError, "init_failed", err)
			return
		}
		writeError(w, http.StatusServiceUnavailable, "initializing", errors.New("service initializing"))
		return
	}
	writeJSON(w, map[string]string{"status": "ready"})
}

// requireReady is middleware that returns 503 until the trainer is ready.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			if err := s.getInitError(); err != nil {
				writeError(w, http.StatusInternalServerError, "init_failed", err)
				return
			}
			writeError(w, http.StatusServiceUnavailable, "initializing", errors.New("service initializing"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.trainer.State())
}

// InsightsResponse holds both insight rankings.
type InsightsResponse struct {
	Positive []models.TasteInsight `json:"positive"`
	Negative []models.TasteInsight `json:"negative"`
}

func (s *Service) handleInsights(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, DefaultInsightsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	writeJSON(w, InsightsResponse{
		Positive: nonNil(s.trainer.Insights(true, limit)),
		Negative: nonNil(s.trainer.Insights(false, limit)),
	})
}

func (s *Service) handleContext(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.trainer.TasteContext())
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, DefaultHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	writeJSON(w, nonNil(s.trainer.History(limit)))
}

// SwipeRequest is the request body for a swipe.
type SwipeRequest struct {
	Action string `json:"action"`
}

// SwipeResponse is returned after a swipe.
type SwipeResponse struct {
	trainer.SwipeOutcome
	State trainer.State `json:"state"`
}

func (s *Service) handleSwipe(w http.ResponseWriter, r *http.Request) {
	var req SwipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body required")
		}
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	action, err := models.ParseSwipeAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_action", err)
		return
	}

	out, err := s.trainer.SubmitSwipe(r.Context(), action)
	if err != nil {
		writeTrainerError(w, r, err)
		return
	}
	writeJSON(w, SwipeResponse{SwipeOutcome: out, State: s.trainer.State()})
}

// UndoResponse is returned after an undo.
type UndoResponse struct {
	Undone models.SwipeEvent `json:"undone"`
	State  trainer.State     `json:"state"`
}

func (s *Service) handleUndo(w http.ResponseWriter, r *http.Request) {
	event, err := s.trainer.UndoLastSwipe(r.Context())
	if err != nil {
		writeTrainerError(w, r, err)
		return
	}
	writeJSON(w, UndoResponse{Undone: event, State: s.trainer.State()})
}

// ResetResponse is returned after a reset. DeckError is set when the
// fresh deck could not be fetched; the reset itself still happened.
type ResetResponse struct {
	State     trainer.State `json:"state"`
	DeckError string        `json:"deck_error,omitempty"`
}

func (s *Service) handleReset(w http.ResponseWriter, r *http.Request) {
	resp := ResetResponse{}
	if err := s.trainer.ResetAll(r.Context()); err != nil {
		resp.DeckError = err.Error()
	}
	resp.State = s.trainer.State()
	writeJSON(w, resp)
}

func (s *Service) handleRefreshAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := s.trainer.RefreshAnalysis(r.Context()); err != nil {
		writeTrainerError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, s.trainer.State())
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
