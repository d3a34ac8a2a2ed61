// Package memory is an in-process BatchStore for tests, demos and
// DB_DRIVER=memory. Batches are lost on restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/Werdo/ose-platform-sub000/internal/core"
)

// Store keeps batches in a map guarded by a RWMutex. Batches are copied on
// the way in and out so callers cannot mutate stored state.
type Store struct {
	mu      sync.RWMutex
	batches map[string]*core.ICCIDBatch
}

var _ core.BatchStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{batches: make(map[string]*core.ICCIDBatch)}
}

func (s *Store) Save(_ context.Context, b *core.ICCIDBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[b.ID]; ok {
		return fmt.Errorf("%w: %s", core.ErrDuplicateBatch, b.ID)
	}
	s.batches[b.ID] = clone(b)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*core.ICCIDBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return clone(b), nil
}

func (s *Store) List(_ context.Context) ([]core.BatchSummary, error) {
	s.mu.RLock()
	out := make([]core.BatchSummary, 0, len(s.batches))
	for _, b := range s.batches {
		sum := b.Summary()
		sum.Stats = cloneStats(sum.Stats)
		out = append(out, sum)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b core.BatchSummary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	delete(s.batches, id)
	return nil
}

func (s *Store) IncrementDownloads(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	b.CSVDownloadCount++
	return b.CSVDownloadCount, nil
}

// StreamICCIDs iterates a snapshot of the id slice so fn can run without the
// lock held.
func (s *Store) StreamICCIDs(ctx context.Context, id string, fn func(string) error) error {
	s.mu.RLock()
	b, ok := s.batches[id]
	var ids []string
	if ok {
		ids = b.ICCIDs
	}
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	for i, v := range ids {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func clone(b *core.ICCIDBatch) *core.ICCIDBatch {
	c := *b
	c.ICCIDs = slices.Clone(b.ICCIDs)
	c.Analyses = slices.Clone(b.Analyses)
	c.Stats = cloneStats(b.Stats)
	return &c
}

func cloneStats(st core.BatchStats) core.BatchStats {
	st.Operators = copyMap(st.Operators)
	st.Countries = copyMap(st.Countries)
	return st
}

func copyMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
