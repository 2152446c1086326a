package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/bot"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/guard"
	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/runstore"
)

// Run statuses as reported by the status endpoint.
const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusError     = "error"
)

var (
	ErrRunActive   = errors.New("a run is already active")
	ErrNoActiveRun = errors.New("no active run")
)

// BotFactory builds a fully wired bot for one run. The run ID lets the
// factory attach per-run progress sinks.
type BotFactory func(runID string, opts bot.Options) (*bot.Bot, error)

// RunHandle is the runner's record of one run: the bot, its identity, and
// its lifecycle status. It replaces any notion of a globally registered
// current bot; all access goes through the runner that owns it.
type RunHandle struct {
	ID        uuid.UUID
	Bot       *bot.Bot
	StartedAt time.Time

	status string
	err    error
}

// Runner owns at most one active run at a time.
type Runner struct {
	mu      sync.Mutex
	factory BotFactory
	store   *runstore.Store
	logger  *slog.Logger
	handle  *RunHandle
}

func NewRunner(factory BotFactory, store *runstore.Store, logger *slog.Logger) *Runner {
	return &Runner{
		factory: factory,
		store:   store,
		logger:  logger.With("component", "runner"),
	}
}

// Start launches a new run unless one is already active.
func (r *Runner) Start(opts bot.Options) (*RunHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle != nil && r.handle.status == StatusRunning {
		return nil, ErrRunActive
	}

	id := uuid.New()
	b, err := r.factory(id.String(), opts)
	if err != nil {
		return nil, err
	}

	h := &RunHandle{
		ID:        id,
		Bot:       b,
		StartedAt: time.Now(),
		status:    StatusRunning,
	}
	r.handle = h

	if r.store != nil {
		if err := r.store.CreateRun(context.Background(), id, b.Options()); err != nil {
			r.logger.Warn("failed to persist run start", "run_id", id, "error", err)
		}
		// Keep the stored counters live while the run progresses. The sink
		// fires synchronously on the run goroutine, so reading the state
		// here is safe.
		st := b.State()
		b.Recorder().AddSink(bot.SinkFunc(func(e bot.Event) {
			if e.Status != bot.StatusSuccess {
				return
			}
			if err := r.store.UpdateProgress(context.Background(), id, st.ProcessedCount, st.SuccessCount); err != nil {
				r.logger.Warn("failed to persist run progress", "run_id", id, "error", err)
			}
		}))
	}

	r.logger.Info("run started", "run_id", id)
	go r.execute(h)
	return h, nil
}

// Stop requests a cooperative stop of the active run.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil || r.handle.status != StatusRunning {
		return ErrNoActiveRun
	}
	r.handle.Bot.Stop()
	r.logger.Info("stop requested", "run_id", r.handle.ID)
	return nil
}

// StatusSnapshot is what the status endpoint returns.
type StatusSnapshot struct {
	Running  bool        `json:"running"`
	Status   string      `json:"status"`
	RunID    string      `json:"run_id,omitempty"`
	Progress []bot.Event `json:"progress"`
}

// Status reports the current or most recent run.
func (r *Runner) Status() StatusSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil {
		return StatusSnapshot{Status: StatusIdle, Progress: []bot.Event{}}
	}
	return StatusSnapshot{
		Running:  r.handle.status == StatusRunning,
		Status:   r.handle.status,
		RunID:    r.handle.ID.String(),
		Progress: r.handle.Bot.Recorder().Snapshot(),
	}
}

func (r *Runner) execute(h *RunHandle) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("run panicked", "run_id", h.ID, "panic", rec)
			r.finish(h, StatusError, fmt.Errorf("run panicked: %v", rec))
		}
	}()

	err := h.Bot.Run(context.Background())
	switch {
	case err == nil, errors.Is(err, guard.ErrStopRequested):
		// A user-requested stop still counts as an orderly finish.
		r.finish(h, StatusCompleted, nil)
	default:
		r.finish(h, StatusFailed, err)
	}
}

func (r *Runner) finish(h *RunHandle, status string, runErr error) {
	r.mu.Lock()
	h.status = status
	h.err = runErr
	r.mu.Unlock()

	r.logger.Info("run finished", "run_id", h.ID, "status", status)

	if r.store == nil {
		return
	}
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	st := h.Bot.State()
	if err := r.store.FinishRun(context.Background(), h.ID, runstore.RunStatus(status),
		st.ProcessedCount, st.SuccessCount, errMsg); err != nil {
		r.logger.Warn("failed to persist run finish", "run_id", h.ID, "error", err)
	}
}
