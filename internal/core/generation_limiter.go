package core

// generation_limiter.go bounds how many batch generations run at once.
//
// Each generation holds up to MaxBatchSize ids and their analyses in memory,
// so the number of simultaneous generations is capped with a semaphore.
// Callers that cannot get a slot within maxWait receive ErrTooManyGenerations.
// WaitForDrain lets shutdown wait for in-flight generations.

import (
	"context"
	"sync/atomic"
	"time"
)

// Limiter defaults used when the configured values are not positive.
const (
	DefaultMaxConcurrentGenerations = 4
	DefaultGenerationWait           = 30 * time.Second
)

// drainPoll is how often WaitForDrain re-checks the active count.
const drainPoll = 50 * time.Millisecond

// GenerationLimiter is a counting semaphore for generation work.
type GenerationLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewGenerationLimiter allows at most maxConcurrent generations at a time.
func NewGenerationLimiter(maxConcurrent int, maxWait time.Duration) *GenerationLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentGenerations
	}
	if maxWait <= 0 {
		maxWait = DefaultGenerationWait
	}
	return &GenerationLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire blocks until a slot is free, maxWait elapses (ErrTooManyGenerations)
// or ctx is done (ctx.Err()). On success the caller must call Release.
func (l *GenerationLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyGenerations
	}
}

// Release returns a slot taken by Acquire.
func (l *GenerationLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of generations holding a slot.
func (l *GenerationLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the slot count.
func (l *GenerationLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// Available returns the number of free slots.
func (l *GenerationLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain blocks until no generation holds a slot or ctx is done.
func (l *GenerationLimiter) WaitForDrain(ctx context.Context) error {
	if l.ActiveCount() == 0 {
		return nil
	}
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}

// LimiterStatus is a point-in-time view of the limiter.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *GenerationLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
