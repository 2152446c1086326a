package bot

import (
	"log/slog"
	"sync"
)

// Event severities, mirrored into the status API verbatim.
const (
	StatusInfo    = "info"
	StatusSuccess = "success"
	StatusWarning = "warning"
	StatusError   = "error"
)

// RunLevelStep marks events that belong to the run as a whole rather than a
// numbered phase.
const RunLevelStep = -1

// Event is one observable state transition of a run.
type Event struct {
	Step    int    `json:"step"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Sink receives every recorded event. Publish must not block the run thread
// for long and must never panic the run.
type Sink interface {
	Publish(e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Recorder is the append-only progress log for a single run. The run
// goroutine appends; the HTTP handlers snapshot concurrently.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	sinks  []Sink
	logger *slog.Logger
}

func NewRecorder(logger *slog.Logger, sinks ...Sink) *Recorder {
	return &Recorder{
		sinks:  sinks,
		logger: logger.With("component", "progress"),
	}
}

// AddSink attaches a sink after construction. Events recorded earlier are not
// replayed.
func (r *Recorder) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Record appends an event and fans it out to the log and all sinks.
func (r *Recorder) Record(step int, message, status string) {
	e := Event{Step: step, Message: message, Status: status}

	r.mu.Lock()
	r.events = append(r.events, e)
	sinks := r.sinks
	r.mu.Unlock()

	switch status {
	case StatusWarning:
		r.logger.Warn(message, "step", step)
	case StatusError:
		r.logger.Error(message, "step", step)
	default:
		r.logger.Info(message, "step", step)
	}

	for _, s := range sinks {
		s.Publish(e)
	}
}

// Snapshot returns a copy of the accumulated event list.
func (r *Recorder) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
