// Package sync drives email ingestion runs and tracks their state.
package sync

import (
	"fmt"
	"sync"
)

// State is the sync state machine position.
type State string

const (
	StateIdle      State = "idle"
	StateSyncing   State = "syncing"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// Snapshot is a point-in-time copy of the sync status, safe to hand to
// JSON encoders and callers without further locking.
type Snapshot struct {
	State    State  `json:"sync_state"`
	Progress int    `json:"sync_progress"`
	Message  string `json:"sync_message"`
	Ready    bool   `json:"is_ready"`
}

// Status is the mutex-guarded sync status container. Writers go through
// the setter methods; readers take value copies via Snapshot.
type Status struct {
	mu       sync.Mutex
	state    State
	progress int
	message  string
	ready    bool
}

// NewStatus returns an idle status.
func NewStatus() *Status {
	return &Status{state: StateIdle}
}

// Snapshot returns a copy of the current status.
func (s *Status) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:    s.state,
		Progress: s.progress,
		Message:  s.message,
		Ready:    s.ready,
	}
}

// Begin transitions idle/terminal state to syncing and resets per-run
// fields. Returns false when a run is already in flight. Readiness is
// monotonic and survives across runs.
func (s *Status) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSyncing {
		return false
	}
	s.state = StateSyncing
	s.progress = 0
	s.message = "Starting sync..."
	return true
}

// SetProgress records how many messages the run has processed.
func (s *Status) SetProgress(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = n
	s.message = fmt.Sprintf("Fetched %d emails...", n)
}

// MarkReady flags the index as answerable. Never cleared.
func (s *Status) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
}

// Complete records a successful run. Completion always implies
// readiness.
func (s *Status) Complete(processed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateCompleted
	s.progress = processed
	s.message = fmt.Sprintf("Sync complete. Processed %d emails.", processed)
	s.ready = true
}

// Fail records a failed run, preserving the last progress for
// observability.
func (s *Status) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateError
	s.message = fmt.Sprintf("Error: %v", err)
}
