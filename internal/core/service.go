package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Werdo/ose-platform-sub000/internal/config"
	"github.com/Werdo/ose-platform-sub000/internal/iccid"
	"github.com/Werdo/ose-platform-sub000/internal/logging"
	"github.com/Werdo/ose-platform-sub000/internal/metrics"
	"github.com/Werdo/ose-platform-sub000/internal/registry"
)

// csvFlushEvery is how many CSV rows are buffered between flushes.
const csvFlushEvery = 1000

// CSVHeader is the first row of every export.
var CSVHeader = []string{"iccid", "body", "check_digit"}

// Service provides the ICCID batch operations used by the HTTP layer.
type Service struct {
	store     BatchStore
	generator *Generator
	analyzer  *Analyzer
	limiter   *GenerationLimiter
	metrics   *metrics.Metrics
	gen       config.GenerationConfig

	now   func() time.Time
	newID func() string
}

// NewService wires the engine. store is wrapped with retry according to
// cfg.Retry; m may be nil.
func NewService(store BatchStore, reg *registry.Registry, cfg *config.Config, m *metrics.Metrics) *Service {
	policy := RetryPolicy{
		MaxAttempts:     cfg.Retry.Attempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}
	return &Service{
		store:     NewRetryingStore(store, policy, m),
		generator: NewGenerator(cfg.Generation.MaxBatchSize),
		analyzer:  NewAnalyzer(reg, cfg.Generation.AnalyzeWorkers, cfg.Generation.AnalyzeChunk),
		limiter:   NewGenerationLimiter(cfg.Generation.MaxConcurrent, cfg.Generation.MaxWaitTime),
		metrics:   m,
		gen:       cfg.Generation,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// CreateBatchRequest is the input to CreateBatch.
type CreateBatchRequest struct {
	BatchName   string `json:"batch_name"`
	Description string `json:"description"`
	ICCIDStart  string `json:"iccid_start"`
	ICCIDEnd    string `json:"iccid_end"`
	CreatedBy   string `json:"created_by"`
}

// CreateBatch generates, analyzes and persists the range described by req.
//
// Preconditions are checked before a generation slot is taken, so invalid
// requests never queue. The work itself runs on its own goroutine under the
// generation timeout; if ctx ends first, the work is cancelled and its slot
// is released once it stops.
func (s *Service) CreateBatch(ctx context.Context, req CreateBatchRequest) (*ICCIDBatch, error) {
	start := time.Now()

	req.BatchName = strings.TrimSpace(req.BatchName)
	if req.BatchName == "" {
		s.metrics.ObserveGeneration("rejected", 0, 0)
		return nil, fmt.Errorf("%w: batch_name is required", ErrInvalidRequest)
	}
	req.ICCIDStart, _ = iccid.Normalize(req.ICCIDStart)
	req.ICCIDEnd, _ = iccid.Normalize(req.ICCIDEnd)

	rng, err := s.generator.Plan(req.ICCIDStart, req.ICCIDEnd)
	if err != nil {
		s.metrics.ObserveGeneration("rejected", 0, 0)
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		if errors.Is(err, ErrTooManyGenerations) {
			s.metrics.ObserveGeneration("busy", 0, 0)
		}
		return nil, err
	}
	s.metrics.SetActiveGenerations(s.limiter.ActiveCount())

	genCtx, cancel := context.WithTimeout(ctx, s.gen.Timeout)
	defer cancel()

	type result struct {
		batch *ICCIDBatch
		err   error
	}
	done := make(chan result, 1)

	go func() {
		// The slot is free before the result is visible to the caller.
		b, err := func() (*ICCIDBatch, error) {
			defer func() {
				s.limiter.Release()
				s.metrics.SetActiveGenerations(s.limiter.ActiveCount())
			}()
			return s.generate(genCtx, req, rng)
		}()
		done <- result{b, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-genCtx.Done():
		select {
		case res = <-done:
		default:
			res = result{err: genCtx.Err()}
		}
	}

	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
			res.err = fmt.Errorf("generation timed out after %s: %w", s.gen.Timeout, res.err)
		}
		s.metrics.ObserveGeneration("error", 0, 0)
		return nil, res.err
	}

	s.metrics.ObserveGeneration("ok", res.batch.TotalCount, time.Since(start))
	return res.batch, nil
}

func (s *Service) generate(ctx context.Context, req CreateBatchRequest, rng Range) (*ICCIDBatch, error) {
	log := logging.WithFields(ctx, "batch_name", req.BatchName, "count", rng.Count)
	log.Info("generation started",
		"start", req.ICCIDStart,
		"end", req.ICCIDEnd,
		"ip", IPAddressFromContext(ctx),
	)

	ids, err := rng.Collect(ctx)
	if err != nil {
		return nil, err
	}

	analyses, stats, err := s.analyzer.Analyze(ctx, ids)
	if err != nil {
		return nil, err
	}

	createdBy := strings.TrimSpace(req.CreatedBy)
	if createdBy == "" {
		createdBy = ActorFromContext(ctx)
	}

	batch := &ICCIDBatch{
		ID:          s.newID(),
		BatchName:   req.BatchName,
		Description: strings.TrimSpace(req.Description),
		ICCIDStart:  req.ICCIDStart,
		ICCIDEnd:    req.ICCIDEnd,
		BodyLength:  rng.Width(),
		TotalCount:  len(ids),
		ICCIDs:      ids,
		Analyses:    analyses,
		Stats:       stats,
		CreatedBy:   createdBy,
		CreatedAt:   s.now().UTC().Truncate(time.Microsecond),
	}

	if err := s.store.Save(ctx, batch); err != nil {
		return nil, fmt.Errorf("save batch: %w", err)
	}

	log.Info("generation completed", "batch_id", batch.ID, "valid", stats.ValidCount)
	return batch, nil
}

// GetBatch returns the full batch.
func (s *Service) GetBatch(ctx context.Context, id string) (*ICCIDBatch, error) {
	return s.store.Get(ctx, id)
}

// BatchPage is one page of batch summaries.
type BatchPage struct {
	Batches []BatchSummary `json:"batches"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// ListBatches returns summaries newest first. limit <= 0 returns everything
// from offset on.
func (s *Service) ListBatches(ctx context.Context, limit, offset int) (BatchPage, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return BatchPage{}, err
	}

	page := BatchPage{Total: len(all), Limit: limit, Offset: offset, Batches: []BatchSummary{}}
	if offset < 0 {
		page.Offset = 0
	}
	if page.Offset >= len(all) {
		return page, nil
	}
	end := len(all)
	if limit > 0 && limit < end-page.Offset {
		end = page.Offset + limit
	}
	page.Batches = all[page.Offset:end]
	return page, nil
}

// DeleteBatch removes a batch.
func (s *Service) DeleteBatch(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("batch deleted",
		"batch_id", id,
		"actor", ActorFromContext(ctx),
		"ip", IPAddressFromContext(ctx),
	)
	return nil
}

// ExportCSV writes the batch as iccid,body,check_digit rows in generation
// order and bumps the download counter. Nothing is written to w when the
// batch does not exist.
func (s *Service) ExportCSV(ctx context.Context, id string, w io.Writer) (int64, error) {
	downloads, err := s.store.IncrementDownloads(ctx, id)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return downloads, err
	}

	rows := 0
	err = s.store.StreamICCIDs(ctx, id, func(v string) error {
		if err := cw.Write([]string{v, v[:len(v)-1], v[len(v)-1:]}); err != nil {
			return err
		}
		rows++
		if rows%csvFlushEvery == 0 {
			cw.Flush()
			return cw.Error()
		}
		return nil
	})
	if err != nil {
		return downloads, err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return downloads, err
	}
	s.metrics.IncrementCSVExports()
	return downloads, nil
}

// Analyze decodes a single identifier. Malformed input is reported through
// warnings rather than rejected.
func (s *Service) Analyze(ctx context.Context, raw string) ICCIDAnalysis {
	s.metrics.AddAnalyses(1)
	return s.analyzer.AnalyzeOne(raw)
}

// BulkAnalysis is the result of AnalyzeBulk.
type BulkAnalysis struct {
	Analyses []ICCIDAnalysis `json:"analyses"`
	Stats    BatchStats      `json:"stats"`
}

// AnalyzeBulk decodes up to the configured bulk limit of identifiers without
// persisting anything.
func (s *Service) AnalyzeBulk(ctx context.Context, ids []string) (BulkAnalysis, error) {
	if len(ids) == 0 {
		return BulkAnalysis{}, fmt.Errorf("%w: iccids is empty", ErrInvalidRequest)
	}
	if limit := s.gen.BulkAnalyzeLimit; limit > 0 && len(ids) > limit {
		return BulkAnalysis{}, fmt.Errorf("%w: %d iccids, limit is %d", ErrInvalidRequest, len(ids), limit)
	}

	analyses, stats, err := s.analyzer.Analyze(ctx, ids)
	if err != nil {
		return BulkAnalysis{}, err
	}
	s.metrics.AddAnalyses(len(ids))
	return BulkAnalysis{Analyses: analyses, Stats: stats}, nil
}

// Preview describes a range without generating or saving it.
type Preview struct {
	TotalCount int      `json:"total_count"`
	BodyLength int      `json:"body_length"`
	First      []string `json:"first"`
	Last       string   `json:"last"`
	Truncated  bool     `json:"truncated"`
}

// Preview checks a range and returns its first ids, up to limit (capped by
// the configured preview limit).
func (s *Service) Preview(ctx context.Context, start, end string, limit int) (Preview, error) {
	start, _ = iccid.Normalize(start)
	end, _ = iccid.Normalize(end)

	rng, err := s.generator.Plan(start, end)
	if err != nil {
		return Preview{}, err
	}

	if limit <= 0 || limit > s.gen.PreviewLimit {
		limit = s.gen.PreviewLimit
	}
	last, err := iccid.Complete(rng.EndBody)
	if err != nil {
		return Preview{}, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}

	first := rng.First(limit)
	return Preview{
		TotalCount: rng.Count,
		BodyLength: rng.Width(),
		First:      first,
		Last:       last.String(),
		Truncated:  len(first) < rng.Count,
	}, nil
}

// CompleteBody appends the check digit to an 18-21 digit body and returns
// the analysis of the resulting identifier.
func (s *Service) CompleteBody(ctx context.Context, body string) (ICCIDAnalysis, error) {
	body, _ = iccid.Normalize(body)
	id, err := iccid.Complete(body)
	if err != nil {
		return ICCIDAnalysis{}, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return s.Analyze(ctx, id.String()), nil
}

// GlobalStats folds the stats of every stored batch.
func (s *Service) GlobalStats(ctx context.Context) (GlobalStats, error) {
	batches, err := s.store.List(ctx)
	if err != nil {
		return GlobalStats{}, err
	}
	return AggregateStats(batches), nil
}

// RegistryInfo describes the loaded prefix tables.
type RegistryInfo struct {
	Version      string                `json:"version"`
	Checksum     string                `json:"checksum"`
	ExpectedMII  string                `json:"expected_mii"`
	CountryCount int                   `json:"country_count"`
	ProfileCount int                   `json:"profile_count"`
	Profiles     []registry.IINProfile `json:"profiles"`
}

// Registry returns the prefix tables in use.
func (s *Service) Registry() RegistryInfo {
	reg := s.analyzer.Registry()
	return RegistryInfo{
		Version:      reg.Version(),
		Checksum:     reg.Checksum(),
		ExpectedMII:  reg.ExpectedMII(),
		CountryCount: reg.CountryCount(),
		ProfileCount: reg.ProfileCount(),
		Profiles:     reg.Profiles(),
	}
}

// GenerationStatus reports limiter occupancy.
func (s *Service) GenerationStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForGenerations blocks until running generations finish or ctx ends.
// Used during shutdown.
func (s *Service) WaitForGenerations(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// Health pings the store.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// MaxBatchSize returns the configured generation ceiling.
func (s *Service) MaxBatchSize() int {
	return s.generator.MaxBatchSize()
}
