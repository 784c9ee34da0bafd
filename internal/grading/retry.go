package grading

import (
	"sort"
	"sync"
)

// RetryState tracks the attempts made for one (lab, student) fetch.
type RetryState struct {
	Lab         string `json:"lab"`
	Student     string `json:"student"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	LastStatus  Status `json:"last_status"`
	LastError   string `json:"last_error,omitempty"`
}

// Exhausted reports whether the fetch gave up on a transient failure.
func (s RetryState) Exhausted() bool {
	return s.LastStatus == StatusTransientError && s.Attempts >= s.MaxAttempts
}

// RetryTracker records fetch attempts for every pair a process fetched.
// It is safe for concurrent use.
type RetryTracker struct {
	mu     sync.RWMutex
	states map[string]*RetryState
}

// NewRetryTracker creates an empty tracker.
func NewRetryTracker() *RetryTracker {
	return &RetryTracker{states: make(map[string]*RetryState)}
}

func retryKey(lab, student string) string {
	return lab + "\x00" + student
}

// Begin starts a fresh attempt count for the pair.
func (t *RetryTracker) Begin(lab, student string, maxAttempts int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[retryKey(lab, student)] = &RetryState{
		Lab:         lab,
		Student:     student,
		MaxAttempts: maxAttempts,
	}
}

// Record counts one attempt and returns the updated state.
func (t *RetryTracker) Record(lab, student string, status Status, detail string) RetryState {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := retryKey(lab, student)
	state, ok := t.states[key]
	if !ok {
		state = &RetryState{Lab: lab, Student: student, MaxAttempts: 1}
		t.states[key] = state
	}
	state.Attempts++
	state.LastStatus = status
	if status == StatusTransientError {
		state.LastError = detail
	}
	return *state
}

// State returns a copy of the pair's state.
func (t *RetryTracker) State(lab, student string) (RetryState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.states[retryKey(lab, student)]
	if !ok {
		return RetryState{}, false
	}
	return *state, true
}

// Exhausted returns every pair that gave up on transient failures, sorted
// by lab then student.
func (t *RetryTracker) Exhausted() []RetryState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []RetryState
	for _, state := range t.states {
		if state.Exhausted() {
			out = append(out, *state)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Lab != out[j].Lab {
			return out[i].Lab < out[j].Lab
		}
		return out[i].Student < out[j].Student
	})
	return out
}

// Reset forgets every state.
func (t *RetryTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states = make(map[string]*RetryState)
}
