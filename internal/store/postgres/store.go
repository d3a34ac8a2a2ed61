// Package postgres is the PostgreSQL BatchStore backend.
//
// Identifiers live in batch_iccids keyed by (batch_id, position) and are
// bulk-loaded with COPY, so saving a full batch is one round trip per table.
// Analyses and stats are stored as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Werdo/ose-platform-sub000/internal/config"
	"github.com/Werdo/ose-platform-sub000/internal/core"
)

// Store keeps batches in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect builds a pool from the database config and verifies it.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// parseID rejects ids that are not UUIDs before they reach the uuid column,
// which would otherwise fail with a cast error instead of not found.
func parseID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return u, nil
}

func (s *Store) Save(ctx context.Context, b *core.ICCIDBatch) error {
	id, err := uuid.Parse(b.ID)
	if err != nil {
		return fmt.Errorf("%w: batch id %q is not a uuid", core.ErrInvalidRequest, b.ID)
	}
	stats, err := json.Marshal(b.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	_, err = tx.Exec(ctx, `
		INSERT INTO iccid_batches (id, batch_name, description, iccid_start, iccid_end,
			body_length, total_count, stats, created_by, created_at, csv_download_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, id, b.BatchName, b.Description, b.ICCIDStart, b.ICCIDEnd,
		b.BodyLength, b.TotalCount, stats, b.CreatedBy, b.CreatedAt, b.CSVDownloadCount)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", core.ErrDuplicateBatch, b.ID)
	}
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", b.ID, err)
	}

	src := pgx.CopyFromSlice(len(b.ICCIDs), func(i int) ([]any, error) {
		analysis := []byte("null")
		if i < len(b.Analyses) {
			var err error
			if analysis, err = json.Marshal(b.Analyses[i]); err != nil {
				return nil, fmt.Errorf("encode analysis %s: %w", b.ICCIDs[i], err)
			}
		}
		return []any{id, int32(i), b.ICCIDs[i], analysis}, nil
	})
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"batch_iccids"}, []string{"batch_id", "position", "iccid", "analysis"}, src)
	if err != nil {
		return fmt.Errorf("copy iccids of batch %s: %w", b.ID, err)
	}
	if int(n) != len(b.ICCIDs) {
		return fmt.Errorf("copy iccids of batch %s: wrote %d of %d rows", b.ID, n, len(b.ICCIDs))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch %s: %w", b.ID, err)
	}
	return nil
}

// uniqueViolation is the SQLSTATE for a unique or primary key conflict.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const batchColumns = `id, batch_name, description, iccid_start, iccid_end,
	body_length, total_count, stats, created_by, created_at, csv_download_count`

func scanSummary(row pgx.Row) (core.BatchSummary, error) {
	var (
		sum   core.BatchSummary
		id    uuid.UUID
		stats []byte
	)
	err := row.Scan(&id, &sum.BatchName, &sum.Description, &sum.ICCIDStart, &sum.ICCIDEnd,
		&sum.BodyLength, &sum.TotalCount, &stats, &sum.CreatedBy, &sum.CreatedAt, &sum.CSVDownloadCount)
	if err != nil {
		return sum, err
	}
	sum.ID = id.String()
	sum.CreatedAt = sum.CreatedAt.UTC()
	if err := json.Unmarshal(stats, &sum.Stats); err != nil {
		return sum, fmt.Errorf("decode stats of batch %s: %w", sum.ID, err)
	}
	return sum, nil
}

func (s *Store) Get(ctx context.Context, id string) (*core.ICCIDBatch, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	sum, err := scanSummary(s.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM iccid_batches WHERE id = $1`, uid))
	if errors.Is(err, pgx.ErrNoRows) {
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

	rows, err := s.pool.Query(ctx, `SELECT iccid, analysis FROM batch_iccids WHERE batch_id = $1 ORDER BY position`, uid)
	if err != nil {
		return nil, fmt.Errorf("query iccids of batch %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			iccid string
			raw   []byte
			an    core.ICCIDAnalysis
		)
		if err := rows.Scan(&iccid, &raw); err != nil {
			return nil, fmt.Errorf("scan iccid: %w", err)
		}
		if err := json.Unmarshal(raw, &an); err != nil {
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
	rows, err := s.pool.Query(ctx, `SELECT `+batchColumns+` FROM iccid_batches ORDER BY created_at DESC, id`)
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
	uid, err := parseID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM iccid_batches WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete batch %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return nil
}

func (s *Store) IncrementDownloads(ctx context.Context, id string) (int64, error) {
	uid, err := parseID(id)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.pool.QueryRow(ctx, `
		UPDATE iccid_batches
		SET csv_download_count = csv_download_count + 1
		WHERE id = $1
		RETURNING csv_download_count
	`, uid).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("increment downloads of %s: %w", id, err)
	}
	return n, nil
}

func (s *Store) StreamICCIDs(ctx context.Context, id string, fn func(string) error) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM iccid_batches WHERE id = $1)`, uid).Scan(&exists)
	if err != nil {
		return fmt.Errorf("lookup batch %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}

	rows, err := s.pool.Query(ctx, `SELECT iccid FROM batch_iccids WHERE batch_id = $1 ORDER BY position`, uid)
	if err != nil {
		return fmt.Errorf("stream iccids of batch %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var iccid string
		if err := rows.Scan(&iccid); err != nil {
			return fmt.Errorf("scan iccid: %w", err)
		}
		if err := fn(iccid); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
