package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Werdo/ose-platform-sub000/internal/metrics"
)

// flakyStore fails the first `failures` calls of every method with err.
type flakyStore struct {
	BatchStore
	failures int
	err      error
	calls    int
	rows     []string
}

func (f *flakyStore) fail() error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyStore) Get(ctx context.Context, id string) (*ICCIDBatch, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &ICCIDBatch{ID: id}, nil
}

func (f *flakyStore) Save(ctx context.Context, b *ICCIDBatch) error { return f.fail() }

func (f *flakyStore) IncrementDownloads(ctx context.Context, id string) (int64, error) {
	if err := f.fail(); err != nil {
		return 0, err
	}
	return 1, nil
}

func (f *flakyStore) StreamICCIDs(ctx context.Context, id string, fn func(string) error) error {
	f.calls++
	for i, r := range f.rows {
		if i == 1 && f.calls <= f.failures {
			return f.err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

var errConnReset = errors.New("connection reset by peer")

func TestRetryingStore_RecoversFromTransientFailures(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	flaky := &flakyStore{failures: 2, err: errConnReset}
	s := NewRetryingStore(flaky, fastPolicy(), m)

	got, err := s.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", got.ID)
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StoreRetries.WithLabelValues("get")))
}

func TestRetryingStore_ExhaustedBecomesStorageUnavailable(t *testing.T) {
	flaky := &flakyStore{failures: 10, err: errConnReset}
	s := NewRetryingStore(flaky, fastPolicy(), nil)

	err := s.Save(context.Background(), &ICCIDBatch{ID: "b1"})
	require.ErrorIs(t, err, ErrStorageUnavailable)
	require.ErrorIs(t, err, errConnReset)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryingStore_PermanentErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "not found", err: ErrNotFound},
		{name: "wrapped not found", err: errors.Join(errors.New("sql: no rows"), ErrNotFound)},
		{name: "cancelled", err: context.Canceled},
		{name: "deadline", err: context.DeadlineExceeded},
		{name: "duplicate batch", err: ErrDuplicateBatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flaky := &flakyStore{failures: 10, err: tt.err}
			s := NewRetryingStore(flaky, fastPolicy(), nil)

			_, err := s.Get(context.Background(), "b1")
			require.ErrorIs(t, err, tt.err)
			assert.NotErrorIs(t, err, ErrStorageUnavailable)
			assert.Equal(t, 1, flaky.calls)
		})
	}
}

func TestRetryingStore_DuplicateSaveIsNotRetried(t *testing.T) {
	flaky := &flakyStore{failures: 10, err: errors.Join(errors.New("insert batch b1"), ErrDuplicateBatch)}
	s := NewRetryingStore(flaky, fastPolicy(), nil)

	err := s.Save(context.Background(), &ICCIDBatch{ID: "b1"})
	require.ErrorIs(t, err, ErrDuplicateBatch)
	assert.NotErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, 1, flaky.calls)
}

func TestRetryingStore_IncrementDownloadsIsAttemptedOnce(t *testing.T) {
	flaky := &flakyStore{failures: 1, err: errConnReset}
	s := NewRetryingStore(flaky, fastPolicy(), nil)

	_, err := s.IncrementDownloads(context.Background(), "b1")
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, 1, flaky.calls)
}

func TestRetryingStore_StreamRetriesOnlyBeforeFirstRow(t *testing.T) {
	flaky := &flakyStore{failures: 1, err: errConnReset, rows: []string{"a", "b", "c"}}
	s := NewRetryingStore(flaky, fastPolicy(), nil)

	var got []string
	err := s.StreamICCIDs(context.Background(), "b1", func(id string) error {
		got = append(got, id)
		return nil
	})
	require.ErrorIs(t, err, errStreamInterrupted)
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 1, flaky.calls)
}

func TestRetryingStore_StopsWhenContextDone(t *testing.T) {
	flaky := &flakyStore{failures: 10, err: errConnReset}
	s := NewRetryingStore(flaky, RetryPolicy{MaxAttempts: 5, InitialInterval: time.Second, MaxInterval: time.Second}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Get(ctx, "b1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, flaky.calls)
}
