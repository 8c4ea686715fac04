package backend

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrUnavailable is returned without touching the network while the backend
// is considered down. Tool handlers surface it to the model as a structured
// error, so the assistant can tell the user instead of hanging on timeouts.
var ErrUnavailable = errors.New("backend: temporarily unavailable")

const (
	breakerMaxFailures = 5
	breakerCooldown    = 30 * time.Second
	breakerProbeBudget = 3
)

type breakerState int

const (
	// breakerClosed forwards every request.
	breakerClosed breakerState = iota

	// breakerOpen rejects requests with [ErrUnavailable] until the cooldown
	// elapses.
	breakerOpen

	// breakerProbing lets a limited number of requests through after the
	// cooldown; their outcome decides between closing and re-opening.
	breakerProbing
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// breaker tracks backend availability across requests. Only outages count
// against it: transport failures and 5xx responses. A 4xx response proves the
// backend is up, and a cancelled context says nothing either way.
type breaker struct {
	mu         sync.Mutex
	state      breakerState
	failures   int
	openedAt   time.Time
	probes     int
	probeFails int
}

func newBreaker() *breaker {
	return &breaker{state: breakerClosed}
}

// guard runs fn unless the breaker is rejecting requests, then folds the
// outcome into the availability state.
func (b *breaker) guard(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	callErr := fn()

	if isOutage(callErr) {
		b.recordOutage(probe)
	} else if callErr == nil || !errors.Is(callErr, context.Canceled) {
		b.recordContact(probe)
	}
	return callErr
}

// admit decides whether a request may go out. The probe flag is true when the
// request is one of the limited post-cooldown probes.
func (b *breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if time.Since(b.openedAt) < breakerCooldown {
			return false, ErrUnavailable
		}
		b.state = breakerProbing
		b.probes = 0
		b.probeFails = 0
		slog.Info("backend breaker probing after cooldown")

	case breakerProbing:
		if b.probes >= breakerProbeBudget {
			return false, ErrUnavailable
		}
	}

	if b.state == breakerProbing {
		b.probes++
		return true, nil
	}
	return false, nil
}

func (b *breaker) recordOutage(probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.openedAt = time.Now()

	if probe {
		b.probeFails++
		b.state = breakerOpen
		b.failures = breakerMaxFailures
		slog.Warn("backend breaker re-opened after failed probe")
		return
	}

	b.failures++
	if b.state == breakerClosed && b.failures >= breakerMaxFailures {
		b.state = breakerOpen
		slog.Warn("backend breaker opened", "consecutive_failures", b.failures)
	}
}

// recordContact notes that the backend answered, whatever the status code.
func (b *breaker) recordContact(probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		if b.probes-b.probeFails >= breakerProbeBudget {
			b.state = breakerClosed
			b.failures = 0
			slog.Info("backend breaker closed after successful probes")
		}
		return
	}
	b.failures = 0
}

// currentState reports the state, accounting for an elapsed cooldown.
func (b *breaker) currentState() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerOpen && time.Since(b.openedAt) >= breakerCooldown {
		return breakerProbing
	}
	return b.state
}

// isOutage reports whether err indicates the backend itself is down.
func isOutage(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		// Caller walked away; says nothing about the backend.
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	// Transport-level failure: connection refused, DNS, TLS, timeouts.
	return true
}
