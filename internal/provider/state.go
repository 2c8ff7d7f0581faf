package provider

import (
	"sync"
	"time"
)

// DefaultMaxConsecutiveErrors is the circuit threshold: a provider with more
// consecutive errors than this is skipped until an explicit Reset.
const DefaultMaxConsecutiveErrors = 5

// State tracks per-provider rate limiting and circuit breaking. One State
// exists per backend for the lifetime of the process; it is never persisted.
//
// Consecutive errors are deliberately not cleared on success: a provider
// that trips the circuit stays out of rotation until Reset is called.
type State struct {
	mu sync.Mutex

	requestCount      int
	windowStart       time.Time
	windowDuration    time.Duration
	requestLimit      int
	consecutiveErrors int
	maxErrors         int

	now func() time.Time
}

// NewState creates a provider state with the given rate window and limits.
func NewState(windowDuration time.Duration, requestLimit, maxErrors int) *State {
	if windowDuration <= 0 {
		windowDuration = time.Minute
	}
	if requestLimit <= 0 {
		requestLimit = 60
	}
	if maxErrors <= 0 {
		maxErrors = DefaultMaxConsecutiveErrors
	}
	s := &State{
		windowDuration: windowDuration,
		requestLimit:   requestLimit,
		maxErrors:      maxErrors,
		now:            time.Now,
	}
	s.windowStart = s.now()
	return s
}

// CanUse reports whether the provider is currently available: the rate
// window has capacity (or has rolled over) and the consecutive-error count
// has not exceeded the circuit threshold.
func (s *State) CanUse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consecutiveErrors > s.maxErrors {
		return false
	}
	if s.now().Sub(s.windowStart) >= s.windowDuration {
		// Window expired; the next recorded attempt resets it.
		return true
	}
	return s.requestCount < s.requestLimit
}

// RecordSuccess increments the request counter within the current rate
// window, resetting the window first if it has expired. The consecutive
// error counter is left untouched.
func (s *State) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.now().Sub(s.windowStart) >= s.windowDuration {
		s.windowStart = s.now()
		s.requestCount = 0
	}
	s.requestCount++
}

// RecordFailure increments the consecutive-error counter.
func (s *State) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErrors++
}

// Reset clears the error counter and rate window, returning the provider to
// rotation. This is the only recovery path once the circuit has tripped.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErrors = 0
	s.requestCount = 0
	s.windowStart = s.now()
}

// ConsecutiveErrors reports the current error streak.
func (s *State) ConsecutiveErrors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveErrors
}
