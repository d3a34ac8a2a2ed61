package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Werdo/ose-platform-sub000/internal/core"
	"github.com/Werdo/ose-platform-sub000/internal/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "batches.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreConformance(t *testing.T) {
	suite.Run(t, &storetest.Suite{
		NewStore: func() core.BatchStore { return openTemp(t) },
	})
}

func TestReopenKeepsBatches(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "batches.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)

	b, err := storetest.NewBatch("persisted", "8934071100000000004", "8934071100000000996", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, b))
	_, err = s.IncrementDownloads(ctx, b.ID)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Migrations run again on reopen and must not disturb existing rows.
	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ICCIDs, got.ICCIDs)
	assert.Equal(t, int64(1), got.CSVDownloadCount)
}

func TestDeleteCascadesToIdentifiers(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	b, err := storetest.NewBatch("cascade", "8934071100000000004", "8934071100000000996", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, b))
	require.NoError(t, s.Delete(ctx, b.ID))

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batch_iccids WHERE batch_id = ?`, b.ID).Scan(&n))
	assert.Zero(t, n)
}

func TestStreamCrossesPages(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	// 12,000 ids span three pages; the trailing check digit of end is recomputed.
	b, err := storetest.NewBatch("pages", "8934071100000000000", "8934071100000119990", time.Now())
	require.NoError(t, err)
	require.Len(t, b.ICCIDs, 12_000)
	require.NoError(t, s.Save(ctx, b))

	var got []string
	err = s.StreamICCIDs(ctx, b.ID, func(id string) error {
		got = append(got, id)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, b.ICCIDs, got)
}

func TestStalledStreamDoesNotBlockOtherCalls(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	exported, err := storetest.NewBatch("exported", "8934071100000000004", "8934071100000000996", time.Now())
	require.NoError(t, err)
	other, err := storetest.NewBatch("other", "89882390001334701795", "89882390001334702090", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, exported))
	require.NoError(t, s.Save(ctx, other))

	firstRow := make(chan struct{})
	release := make(chan struct{})
	var unblock sync.Once
	defer unblock.Do(func() { close(release) })

	done := make(chan error, 1)
	go func() {
		rows := 0
		done <- s.StreamICCIDs(ctx, exported.ID, func(string) error {
			rows++
			if rows == 1 {
				close(firstRow)
				<-release
			}
			return nil
		})
	}()
	<-firstRow

	callCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	list, err := s.List(callCtx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	n, err := s.IncrementDownloads(callCtx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	third, err := storetest.NewBatch("third", "8934071100000000004", "8934071100000000996", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Save(callCtx, third))
	require.NoError(t, s.Ping(callCtx))

	unblock.Do(func() { close(release) })
	require.NoError(t, <-done)
}
