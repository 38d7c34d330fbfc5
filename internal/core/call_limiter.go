package core

// call_limiter.go caps how many backend calls run at once across all
// sessions.
//
// Slots are a buffered channel. A caller that finds every slot taken waits up
// to maxWait and then fails with ErrTooManyCalls. WaitForDrain lets shutdown
// wait for in-flight calls.

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JonMunkholm/personimport/internal/metrics"
)

// ErrTooManyCalls is returned when no backend slot frees up in time.
var ErrTooManyCalls = errors.New("too many backend calls in progress, please try again later")

// DefaultMaxConcurrentCalls is the default number of parallel backend calls.
const DefaultMaxConcurrentCalls = 5

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// CallLimiter is a counting semaphore for backend calls.
type CallLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu     sync.RWMutex
	active int
}

// NewCallLimiter allows at most maxConcurrent calls at once. Non-positive
// arguments select the defaults.
func NewCallLimiter(maxConcurrent int, maxWait time.Duration) *CallLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentCalls
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &CallLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting up to the configured maximum. The caller
// must Release the slot when the call finishes.
func (l *CallLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-timer.C:
		return ErrTooManyCalls
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *CallLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *CallLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.slots
}

// ActiveCount returns the number of calls holding a slot.
func (l *CallLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no call holds a slot or ctx is done.
func (l *CallLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// CallLimiterStatus is a point-in-time view of the limiter.
type CallLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the current limiter state.
func (l *CallLimiter) Status() CallLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return CallLimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}

// limitedMatcher runs every call of the wrapped matcher under a limiter slot
// and records call metrics.
type limitedMatcher struct {
	next    Matcher
	limiter *CallLimiter
}

// Limit wraps m so its calls share l's slots.
func Limit(m Matcher, l *CallLimiter) Matcher {
	return &limitedMatcher{next: m, limiter: l}
}

func (m *limitedMatcher) Preview(ctx context.Context, rows []ImportRow) ([]PreviewRow, error) {
	if err := m.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer m.limiter.Release()

	start := time.Now()
	resp, err := m.next.Preview(ctx, rows)
	metrics.ObserveBackendCall("preview", start, err)
	return resp, err
}

func (m *limitedMatcher) Confirm(ctx context.Context, rows []ConfirmRow) (*ConfirmResult, error) {
	if err := m.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer m.limiter.Release()

	start := time.Now()
	res, err := m.next.Confirm(ctx, rows)
	metrics.ObserveBackendCall("confirm", start, err)
	if err == nil && res != nil {
		s := res.Summary
		metrics.ObserveConfirmSummary(s.Created, s.Updated, s.Skipped, s.Errors)
	}
	return res, err
}
