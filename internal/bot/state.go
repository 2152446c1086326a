package bot

import "sync/atomic"

// State tracks the mutable progress of a run. The stop flag is the only
// field touched from outside the run goroutine, so it alone is atomic.
type State struct {
	stopRequested atomic.Bool

	LastItemID       string
	DuplicateRetries int
	ConsecutiveStuck int
	ProcessedCount   int
	SuccessCount     int
}

// RequestStop asks the run to wind down at the next checkpoint.
func (s *State) RequestStop() {
	s.stopRequested.Store(true)
}

// StopRequested reports whether a cooperative stop is pending.
func (s *State) StopRequested() bool {
	return s.stopRequested.Load()
}

// Reset clears all counters and the stop flag ahead of a fresh run.
func (s *State) Reset() {
	s.stopRequested.Store(false)
	s.LastItemID = ""
	s.DuplicateRetries = 0
	s.ConsecutiveStuck = 0
	s.ProcessedCount = 0
	s.SuccessCount = 0
}
