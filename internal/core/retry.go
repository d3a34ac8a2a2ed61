package core

// retry.go decorates a BatchStore with exponential backoff.
//
// Only transient failures are retried. Not-found, caller and context errors
// are returned on the first attempt. Once attempts run out the last error is
// wrapped in ErrStorageUnavailable.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Werdo/ose-platform-sub000/internal/logging"
	"github.com/Werdo/ose-platform-sub000/internal/metrics"
)

// RetryPolicy controls the backoff applied to store calls.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns 3 attempts starting at 100ms, capped at 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// RetryingStore is a BatchStore that retries transient failures of next.
type RetryingStore struct {
	next    BatchStore
	policy  RetryPolicy
	metrics *metrics.Metrics
}

var _ BatchStore = (*RetryingStore)(nil)

// NewRetryingStore wraps next. m may be nil.
func NewRetryingStore(next BatchStore, policy RetryPolicy, m *metrics.Metrics) *RetryingStore {
	d := DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = d.MaxAttempts
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = d.InitialInterval
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}
	return &RetryingStore{next: next, policy: policy, metrics: m}
}

// Unwrap returns the decorated store.
func (s *RetryingStore) Unwrap() BatchStore {
	return s.next
}

func (s *RetryingStore) backOff(ctx context.Context) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.policy.InitialInterval
	eb.MaxInterval = s.policy.MaxInterval
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.policy.MaxAttempts-1)), ctx)
}

func (s *RetryingStore) do(ctx context.Context, op string, fn func() error) error {
	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := fn()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, s.backOff(ctx), func(err error, wait time.Duration) {
		s.metrics.IncrementStoreRetry(op)
		logging.FromContext(ctx).Warn("store call failed, retrying",
			"op", op,
			"attempt", attempts,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
	})
	s.metrics.ObserveStoreOp(op, err)

	switch {
	case err == nil:
		return nil
	case !isTransient(err):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %w", ErrStorageUnavailable, op, attempts, err)
}

// isTransient reports whether a store error is worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrDuplicateBatch) {
		return false
	}
	return !IsCallerError(err)
}

func (s *RetryingStore) Save(ctx context.Context, batch *ICCIDBatch) error {
	return s.do(ctx, "save", func() error {
		return s.next.Save(ctx, batch)
	})
}

func (s *RetryingStore) Get(ctx context.Context, id string) (*ICCIDBatch, error) {
	var out *ICCIDBatch
	err := s.do(ctx, "get", func() error {
		var err error
		out, err = s.next.Get(ctx, id)
		return err
	})
	return out, err
}

func (s *RetryingStore) List(ctx context.Context) ([]BatchSummary, error) {
	var out []BatchSummary
	err := s.do(ctx, "list", func() error {
		var err error
		out, err = s.next.List(ctx)
		return err
	})
	return out, err
}

func (s *RetryingStore) Delete(ctx context.Context, id string) error {
	return s.do(ctx, "delete", func() error {
		return s.next.Delete(ctx, id)
	})
}

// IncrementDownloads is not idempotent, so it is attempted once.
func (s *RetryingStore) IncrementDownloads(ctx context.Context, id string) (int64, error) {
	n, err := s.next.IncrementDownloads(ctx, id)
	s.metrics.ObserveStoreOp("increment_downloads", err)
	if err != nil && isTransient(err) {
		return 0, fmt.Errorf("%w: increment_downloads: %w", ErrStorageUnavailable, err)
	}
	return n, err
}

// StreamICCIDs is retried only while nothing has been handed to fn; a
// partial stream cannot be replayed.
func (s *RetryingStore) StreamICCIDs(ctx context.Context, id string, fn func(string) error) error {
	started := false
	return s.do(ctx, "stream", func() error {
		err := s.next.StreamICCIDs(ctx, id, func(iccid string) error {
			started = true
			return fn(iccid)
		})
		if err != nil && started {
			return backoff.Permanent(fmt.Errorf("%w: %w", errStreamInterrupted, err))
		}
		return err
	})
}

var errStreamInterrupted = errors.New("stream interrupted")

func (s *RetryingStore) Ping(ctx context.Context) error {
	return s.do(ctx, "ping", func() error {
		return s.next.Ping(ctx)
	})
}
