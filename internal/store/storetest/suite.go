// Package storetest is a conformance suite run against every BatchStore
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/Werdo/ose-platform-sub000/internal/core"
	"github.com/Werdo/ose-platform-sub000/internal/registry"
)

// Suite exercises the BatchStore contract. NewStore is called before each
// test and must return an empty store.
type Suite struct {
	suite.Suite
	NewStore func() core.BatchStore

	store core.BatchStore
	ctx   context.Context
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewStore, "NewStore must be set")
	s.store = s.NewStore()
	s.ctx = context.Background()
}

// NewBatch generates and analyzes a real batch so stores are tested with the
// shape the service produces.
func NewBatch(name, start, end string, createdAt time.Time) (*core.ICCIDBatch, error) {
	reg, err := registry.Default(registry.DefaultOptions())
	if err != nil {
		return nil, err
	}
	ctx := context.Background()

	ids, err := core.NewGenerator(core.DefaultMaxBatchSize).Generate(ctx, start, end)
	if err != nil {
		return nil, err
	}
	analyses, stats, err := core.NewAnalyzer(reg, 2, 16).Analyze(ctx, ids)
	if err != nil {
		return nil, err
	}

	return &core.ICCIDBatch{
		ID:          uuid.NewString(),
		BatchName:   name,
		Description: "conformance batch " + name,
		ICCIDStart:  start,
		ICCIDEnd:    end,
		BodyLength:  len(start) - 1,
		TotalCount:  len(ids),
		ICCIDs:      ids,
		Analyses:    analyses,
		Stats:       stats,
		CreatedBy:   "storetest",
		CreatedAt:   createdAt.UTC().Truncate(time.Microsecond),
	}, nil
}

func (s *Suite) mustBatch(name string, createdAt time.Time) *core.ICCIDBatch {
	b, err := NewBatch(name, "89882390001334701795", "89882390001334702090", createdAt)
	s.Require().NoError(err)
	return b
}

func (s *Suite) TestSaveAndGet() {
	s.Run("round trips every field", func() {
		want := s.mustBatch("round-trip", time.Now())
		s.Require().NoError(s.store.Save(s.ctx, want))

		got, err := s.store.Get(s.ctx, want.ID)
		s.Require().NoError(err)

		s.Equal(want.ID, got.ID)
		s.Equal(want.BatchName, got.BatchName)
		s.Equal(want.Description, got.Description)
		s.Equal(want.ICCIDStart, got.ICCIDStart)
		s.Equal(want.ICCIDEnd, got.ICCIDEnd)
		s.Equal(want.BodyLength, got.BodyLength)
		s.Equal(want.TotalCount, got.TotalCount)
		s.Equal(want.ICCIDs, got.ICCIDs)
		s.Equal(want.Stats, got.Stats)
		s.Equal(want.CreatedBy, got.CreatedBy)
		s.True(want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", want.CreatedAt, got.CreatedAt)
		s.Zero(got.CSVDownloadCount)

		s.Require().Len(got.Analyses, len(want.Analyses))
		s.Equal(want.Analyses[0].ICCID, got.Analyses[0].ICCID)
		s.Equal(want.Analyses[0].CountryNameGuess, got.Analyses[0].CountryNameGuess)
		s.Require().NotNil(got.Analyses[0].IINProfile)
		s.Equal(want.Analyses[0].IINProfile.Operator, got.Analyses[0].IINProfile.Operator)
		s.Equal(want.Analyses[30].AccountNumber, got.Analyses[30].AccountNumber)
	})

	s.Run("unknown id is not found", func() {
		_, err := s.store.Get(s.ctx, uuid.NewString())
		s.Require().ErrorIs(err, core.ErrNotFound)
	})
}

func (s *Suite) TestSaveDuplicateID() {
	b := s.mustBatch("dup", time.Now())
	s.Require().NoError(s.store.Save(s.ctx, b))

	err := s.store.Save(s.ctx, b)
	s.Require().ErrorIs(err, core.ErrDuplicateBatch)

	got, err := s.store.Get(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(b.ICCIDs, got.ICCIDs)
}

func (s *Suite) TestListNewestFirst() {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := s.mustBatch("older", base)
	newest := s.mustBatch("newest", base.Add(2*time.Hour))
	middle := s.mustBatch("middle", base.Add(time.Hour))

	for _, b := range []*core.ICCIDBatch{older, newest, middle} {
		s.Require().NoError(s.store.Save(s.ctx, b))
	}

	list, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	s.Equal([]string{"newest", "middle", "older"}, []string{list[0].BatchName, list[1].BatchName, list[2].BatchName})
	s.Equal(31, list[0].TotalCount)
	s.Equal(31, list[0].Stats.Countries["International Networks"])
}

func (s *Suite) TestListEmpty() {
	list, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *Suite) TestDelete() {
	b := s.mustBatch("to-delete", time.Now())
	s.Require().NoError(s.store.Save(s.ctx, b))

	s.Require().NoError(s.store.Delete(s.ctx, b.ID))

	_, err := s.store.Get(s.ctx, b.ID)
	s.Require().ErrorIs(err, core.ErrNotFound)

	err = s.store.Delete(s.ctx, b.ID)
	s.Require().ErrorIs(err, core.ErrNotFound)

	err = s.store.StreamICCIDs(s.ctx, b.ID, func(string) error { return nil })
	s.Require().ErrorIs(err, core.ErrNotFound)
}

func (s *Suite) TestIncrementDownloads() {
	b := s.mustBatch("downloads", time.Now())
	s.Require().NoError(s.store.Save(s.ctx, b))

	s.Run("increments sequentially", func() {
		n, err := s.store.IncrementDownloads(s.ctx, b.ID)
		s.Require().NoError(err)
		s.Equal(int64(1), n)

		n, err = s.store.IncrementDownloads(s.ctx, b.ID)
		s.Require().NoError(err)
		s.Equal(int64(2), n)
	})

	s.Run("concurrent increments are not lost", func() {
		const workers = 20
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.store.IncrementDownloads(s.ctx, b.ID); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			s.Require().NoError(err)
		}

		got, err := s.store.Get(s.ctx, b.ID)
		s.Require().NoError(err)
		s.Equal(int64(2+workers), got.CSVDownloadCount)
	})

	s.Run("unknown id is not found", func() {
		_, err := s.store.IncrementDownloads(s.ctx, uuid.NewString())
		s.Require().ErrorIs(err, core.ErrNotFound)
	})
}

func (s *Suite) TestStreamICCIDs() {
	b := s.mustBatch("stream", time.Now())
	s.Require().NoError(s.store.Save(s.ctx, b))

	s.Run("yields ids in generation order", func() {
		var got []string
		err := s.store.StreamICCIDs(s.ctx, b.ID, func(id string) error {
			got = append(got, id)
			return nil
		})
		s.Require().NoError(err)
		s.Equal(b.ICCIDs, got)
	})

	s.Run("stops on callback error", func() {
		stop := errors.New("stop")
		seen := 0
		err := s.store.StreamICCIDs(s.ctx, b.ID, func(string) error {
			seen++
			if seen == 3 {
				return stop
			}
			return nil
		})
		s.Require().ErrorIs(err, stop)
		s.Equal(3, seen)
	})
}

func (s *Suite) TestBatchesAreIndependent() {
	a, err := NewBatch("iot", "89882390001334701795", "89882390001334702090", time.Now())
	s.Require().NoError(err)
	b, err := NewBatch("spain", "8934071100000000004", "8934071100000000996", time.Now())
	s.Require().NoError(err)

	s.Require().NoError(s.store.Save(s.ctx, a))
	s.Require().NoError(s.store.Save(s.ctx, b))

	_, err = s.store.IncrementDownloads(s.ctx, a.ID)
	s.Require().NoError(err)

	gotB, err := s.store.Get(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Zero(gotB.CSVDownloadCount)
	s.Equal(100, gotB.TotalCount)
	s.Equal(19, gotB.BodyLength+1)
	s.Equal(100, gotB.Stats.Countries["Spain"], fmt.Sprintf("%v", gotB.Stats.Countries))
}

func (s *Suite) TestPing() {
	s.Require().NoError(s.store.Ping(s.ctx))
}
