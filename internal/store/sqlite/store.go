// Package sqlite is the single-file BatchStore backend.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	driver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Werdo/ose-platform-sub000/internal/core"
)

// Store keeps batches in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path, applies pragmas and runs
// migrations. SQLite serializes writers anyway, so the pool is capped at one
// connection and the pragmas stick to it.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
		`PRAGMA journal_mode = WAL`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := NewMigrator(db).Up(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, b *core.ICCIDBatch) error {
	stats, err := json.Marshal(b.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO iccid_batches(id, batch_name, description, iccid_start, iccid_end,
			body_length, total_count, stats, created_by, created_at, csv_download_count)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.BatchName, b.Description, b.ICCIDStart, b.ICCIDEnd,
		b.BodyLength, b.TotalCount, string(stats), b.CreatedBy, b.CreatedAt.UnixMicro(), b.CSVDownloadCount)
	if isPrimaryKeyViolation(err) {
		return fmt.Errorf("%w: %s", core.ErrDuplicateBatch, b.ID)
	}
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", b.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO batch_iccids(batch_id, position, iccid, analysis) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare iccid insert: %w", err)
	}
	defer stmt.Close()

	for i, id := range b.ICCIDs {
		var analysis []byte
		if i < len(b.Analyses) {
			if analysis, err = json.Marshal(b.Analyses[i]); err != nil {
				return fmt.Errorf("encode analysis %s: %w", id, err)
			}
		} else {
			analysis = []byte("null")
		}
		if _, err := stmt.ExecContext(ctx, b.ID, i, id, string(analysis)); err != nil {
			return fmt.Errorf("insert iccid %d of batch %s: %w", i, b.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch %s: %w", b.ID, err)
	}
	return nil
}

const batchColumns = `id, batch_name, description, iccid_start, iccid_end,
	body_length, total_count, stats, created_by, created_at, csv_download_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (core.BatchSummary, error) {
	var (
		sum       core.BatchSummary
		stats     string
		createdAt int64
	)
	err := row.Scan(&sum.ID, &sum.BatchName, &sum.Description, &sum.ICCIDStart, &sum.ICCIDEnd,
		&sum.BodyLength, &sum.TotalCount, &stats, &sum.CreatedBy, &createdAt, &sum.CSVDownloadCount)
	if err != nil {
		return sum, err
	}
	if err := json.Unmarshal([]byte(stats), &sum.Stats); err != nil {
		return sum, fmt.Errorf("decode stats of batch %s: %w", sum.ID, err)
	}
	sum.CreatedAt = time.UnixMicro(createdAt).UTC()
	return sum, nil
}

func (s *Store) Get(ctx context.Context, id string) (*core.ICCIDBatch, error) {
	sum, err := scanSummary(s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM iccid_batches WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}

	b := &core.ICCIDBatch{
		ID:               sum.ID,
		BatchName:        sum.BatchName,
		Description:      sum.Description,
		ICCIDStart:       sum.ICCIDStart,
		ICCIDEnd:         sum.ICCIDEnd,
		BodyLength:       sum.BodyLength,
		TotalCount:       sum.TotalCount,
		Stats:            sum.Stats,
		CreatedBy:        sum.CreatedBy,
		CreatedAt:        sum.CreatedAt,
		CSVDownloadCount: sum.CSVDownloadCount,
		ICCIDs:           make([]string, 0, sum.TotalCount),
		Analyses:         make([]core.ICCIDAnalysis, 0, sum.TotalCount),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT iccid, analysis FROM batch_iccids WHERE batch_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query iccids of batch %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			iccid string
			raw   string
			an    core.ICCIDAnalysis
		)
		if err := rows.Scan(&iccid, &raw); err != nil {
			return nil, fmt.Errorf("scan iccid: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &an); err != nil {
			return nil, fmt.Errorf("decode analysis of %s: %w", iccid, err)
		}
		b.ICCIDs = append(b.ICCIDs, iccid)
		b.Analyses = append(b.Analyses, an)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate iccids of batch %s: %w", id, err)
	}
	return b, nil
}

func (s *Store) List(ctx context.Context) ([]core.BatchSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+batchColumns+` FROM iccid_batches ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	out := []core.BatchSummary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM iccid_batches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete batch %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete batch %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return nil
}

func (s *Store) IncrementDownloads(ctx context.Context, id string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE iccid_batches
		SET csv_download_count = csv_download_count + 1
		WHERE id = ?
		RETURNING csv_download_count
	`, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("increment downloads of %s: %w", id, err)
	}
	return n, nil
}

// streamPageSize is how many ids StreamICCIDs reads per query. Each page is
// copied out and its rows closed before fn runs, so a slow consumer never
// holds the connection.
const streamPageSize = 5000

func (s *Store) StreamICCIDs(ctx context.Context, id string, fn func(string) error) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM iccid_batches WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("lookup batch %s: %w", id, err)
	}

	page := make([]string, 0, streamPageSize)
	for next := 0; ; next += streamPageSize {
		page, err = s.readPage(ctx, id, next, page[:0])
		if err != nil {
			return err
		}
		for _, iccid := range page {
			if err := fn(iccid); err != nil {
				return err
			}
		}
		if len(page) < streamPageSize {
			return nil
		}
	}
}

// readPage appends the ids at positions [from, from+streamPageSize) to dst.
func (s *Store) readPage(ctx context.Context, id string, from int, dst []string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT iccid FROM batch_iccids
		WHERE batch_id = ? AND position >= ?
		ORDER BY position
		LIMIT ?
	`, id, from, streamPageSize)
	if err != nil {
		return nil, fmt.Errorf("stream iccids of batch %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var iccid string
		if err := rows.Scan(&iccid); err != nil {
			return nil, fmt.Errorf("scan iccid: %w", err)
		}
		dst = append(dst, iccid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stream iccids of batch %s: %w", id, err)
	}
	return dst, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isPrimaryKeyViolation(err error) bool {
	var sqlErr *driver.Error
	return errors.As(err, &sqlErr) && sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
