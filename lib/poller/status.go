package poller

import (
	"fmt"
	"sync"
	"time"
)

type State string

const (
	StateIdle         State = "idle"
	StateFetching     State = "fetching"
	StatePartitioning State = "partitioning"
	StateDispatching  State = "dispatching"
)

type FailureKind string

const (
	FailureFetch       FailureKind = "fetch"
	FailurePersistence FailureKind = "persistence"
	FailureCancelled   FailureKind = "cancelled"
)

// CycleError is returned by a cycle that stopped early. Watermarks written
// before the failure stay written; nothing after it was attempted.
type CycleError struct {
	Kind FailureKind
	Step string
	Err  error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s failure during %s: %v", e.Kind, e.Step, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

// CycleReport summarizes one cycle.
type CycleReport struct {
	StartedAt    time.Time         `json:"startedAt"`
	FinishedAt   time.Time         `json:"finishedAt"`
	Accounts     int               `json:"accounts"`
	Skipped      bool              `json:"skipped"`
	Fetched      int               `json:"fetched"`
	Invalid      int               `json:"invalid"`
	Unmatched    int               `json:"unmatched"`
	Bootstrapped []string          `json:"bootstrapped"`
	Delivered    int               `json:"delivered"`
	Failed       int               `json:"failed"`
	Advanced     map[string]string `json:"advanced"`
}

// Status is what operators see. Attempt, success and error are tracked
// separately so "fetch is broken" and "nothing new" look different.
type Status struct {
	State         State        `json:"state"`
	Healthy       bool         `json:"healthy"`
	LastAttemptAt *time.Time   `json:"lastAttemptAt"`
	LastSuccessAt *time.Time   `json:"lastSuccessAt"`
	LastErrorAt   *time.Time   `json:"lastErrorAt"`
	LastError     string       `json:"lastError,omitempty"`
	LastErrorKind FailureKind  `json:"lastErrorKind,omitempty"`
	CancelledAt   *time.Time   `json:"cancelledAt,omitempty"`
	NextRunAt     *time.Time   `json:"nextRunAt"`
	LastReport    *CycleReport `json:"lastReport,omitempty"`
}

type statusTracker struct {
	mu sync.RWMutex
	s  Status
}

func newStatusTracker() *statusTracker {
	return &statusTracker{s: Status{State: StateIdle, Healthy: true}}
}

func (t *statusTracker) snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.s
}

func (t *statusTracker) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.State = s
}

func (t *statusTracker) attempted(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.LastAttemptAt = &at
}

func (t *statusTracker) succeeded(at time.Time, report *CycleReport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Healthy = true
	t.s.LastSuccessAt = &at
	t.s.LastReport = report
}

func (t *statusTracker) failed(at time.Time, kind FailureKind, err error, report *CycleReport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Healthy = false
	t.s.LastErrorAt = &at
	t.s.LastError = err.Error()
	t.s.LastErrorKind = kind
	t.s.LastReport = report
}

func (t *statusTracker) cancelled(at time.Time, report *CycleReport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.CancelledAt = &at
	t.s.LastReport = report
}

func (t *statusTracker) scheduled(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.NextRunAt = &at
}
