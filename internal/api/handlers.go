package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/bot"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/runstore"
)

type Handlers struct {
	runner *Runner
	store  *runstore.Store
	logger *slog.Logger

	apiKey     string
	requireKey bool
}

func NewHandlers(runner *Runner, store *runstore.Store, apiKey string, requireKey bool, logger *slog.Logger) *Handlers {
	return &Handlers{
		runner:     runner,
		store:      store,
		logger:     logger.With("component", "api"),
		apiKey:     apiKey,
		requireKey: requireKey && apiKey != "",
	}
}

// Routes mounts all endpoints. Control endpoints exist both at the root and
// under /api; the /api variants sit behind the key check so local tooling
// can keep using the bare paths.
func (h *Handlers) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Post("/start", h.StartRun)
	r.Post("/stop", h.StopRun)
	r.Get("/status", h.GetStatus)
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireAPIKey)
		r.Post("/start", h.StartRun)
		r.Post("/stop", h.StopRun)
		r.Get("/status", h.GetStatus)
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{id}", h.GetRun)
	})

	return r
}

// requireAPIKey gates a route group on the configured key. The key may
// arrive in the X-API-Key header or the api_key query parameter.
func (h *Handlers) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.requireKey {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key == "" {
			h.respondError(w, http.StatusUnauthorized, "API key required")
			return
		}
		if key != h.apiKey {
			h.respondError(w, http.StatusForbidden, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartRunResponse is returned when a run is accepted.
type StartRunResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	RunID   string      `json:"run_id"`
	Options bot.Options `json:"options"`
}

// StartRun launches a new run. The body is optional; any omitted or
// malformed option falls back to its default.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	// The body is tolerated in full: absent, empty, or malformed bodies all
	// start a run with defaults.
	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		if !errors.Is(err, io.EOF) {
			h.logger.Warn("ignoring malformed request body", "error", err)
		}
		raw = nil
	}

	opts := bot.OptionsFromMap(raw, bot.DefaultOptions())
	handle, err := h.runner.Start(opts)
	if err != nil {
		if errors.Is(err, ErrRunActive) {
			h.respondError(w, http.StatusConflict, "A run is already active")
			return
		}
		h.logger.Error("failed to start run", "error", err)
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, StartRunResponse{
		Success: true,
		Message: "Run started",
		RunID:   handle.ID.String(),
		Options: handle.Bot.Options(),
	})
}

// StopRun requests a cooperative stop of the active run.
func (h *Handlers) StopRun(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Stop(); err != nil {
		h.respondError(w, http.StatusBadRequest, "No active run to stop")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Stop requested",
	})
}

// GetStatus reports the current run and its progress log.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.runner.Status())
}

// Health is the liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListRuns returns persisted run history, newest first.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.respondError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	h.respondJSON(w, http.StatusOK, runs)
}

// GetRun returns one persisted run by ID.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.respondError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid run ID")
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, runstore.ErrRunNotFound) {
			h.respondError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("failed to fetch run", "run_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to fetch run")
		return
	}
	h.respondJSON(w, http.StatusOK, run)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
