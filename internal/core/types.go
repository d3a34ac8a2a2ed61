package core

import (
	"context"
	"time"

	"github.com/Werdo/ose-platform-sub000/internal/registry"
)

// ICCIDAnalysis is the decoded view of one identifier. It is derived entirely
// from the identifier string and the registry.
type ICCIDAnalysis struct {
	ICCID            string               `json:"iccid"`
	Body             string               `json:"body"`
	Length           int                  `json:"length"`
	ValidLength      bool                 `json:"valid_length"`
	MII              string               `json:"mii"`
	CountryCodeGuess string               `json:"country_code_guess"`
	CountryNameGuess string               `json:"country_name_guess"`
	IINPrefix        string               `json:"iin_prefix"`
	IINProfile       *registry.IINProfile `json:"iin_profile"`
	AccountNumber    string               `json:"account_number"`
	Checksum         string               `json:"checksum"`
	LuhnValid        bool                 `json:"luhn_valid"`
	Warnings         []string             `json:"warnings"`
}

// BatchStats aggregates the analyses of one batch.
type BatchStats struct {
	TotalCount   int            `json:"total_count"`
	ValidCount   int            `json:"valid_count"`
	InvalidCount int            `json:"invalid_count"`
	Operators    map[string]int `json:"operators"`
	Countries    map[string]int `json:"countries"`
}

func newBatchStats() BatchStats {
	return BatchStats{
		Operators: make(map[string]int),
		Countries: make(map[string]int),
	}
}

// ICCIDBatch is a persisted generation run. Everything except
// CSVDownloadCount is fixed at creation.
type ICCIDBatch struct {
	ID               string          `json:"id"`
	BatchName        string          `json:"batch_name"`
	Description      string          `json:"description"`
	ICCIDStart       string          `json:"iccid_start"`
	ICCIDEnd         string          `json:"iccid_end"`
	BodyLength       int             `json:"body_length"`
	TotalCount       int             `json:"total_count"`
	ICCIDs           []string        `json:"iccids"`
	Analyses         []ICCIDAnalysis `json:"analyses"`
	Stats            BatchStats      `json:"stats"`
	CreatedBy        string          `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	CSVDownloadCount int64           `json:"csv_download_count"`
}

// Summary drops the id and analysis lists.
func (b *ICCIDBatch) Summary() BatchSummary {
	return BatchSummary{
		ID:               b.ID,
		BatchName:        b.BatchName,
		Description:      b.Description,
		ICCIDStart:       b.ICCIDStart,
		ICCIDEnd:         b.ICCIDEnd,
		BodyLength:       b.BodyLength,
		TotalCount:       b.TotalCount,
		Stats:            b.Stats,
		CreatedBy:        b.CreatedBy,
		CreatedAt:        b.CreatedAt,
		CSVDownloadCount: b.CSVDownloadCount,
	}
}

// BatchSummary is the list form of a batch.
type BatchSummary struct {
	ID               string     `json:"id"`
	BatchName        string     `json:"batch_name"`
	Description      string     `json:"description"`
	ICCIDStart       string     `json:"iccid_start"`
	ICCIDEnd         string     `json:"iccid_end"`
	BodyLength       int        `json:"body_length"`
	TotalCount       int        `json:"total_count"`
	Stats            BatchStats `json:"stats"`
	CreatedBy        string     `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
	CSVDownloadCount int64      `json:"csv_download_count"`
}

// NamedCount is one entry of a ranking.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// GlobalStats is recomputed from every stored batch on each call.
type GlobalStats struct {
	TotalBatches int          `json:"total_batches"`
	TotalICCIDs  int          `json:"total_iccids"`
	TopOperators []NamedCount `json:"top_operators"`
	TopCountries []NamedCount `json:"top_countries"`
}

// BatchStore persists batches. Implementations return ErrNotFound (possibly
// wrapped) for unknown ids and must make IncrementDownloads atomic.
type BatchStore interface {
	Save(ctx context.Context, batch *ICCIDBatch) error
	Get(ctx context.Context, id string) (*ICCIDBatch, error)
	// List returns summaries ordered by CreatedAt descending.
	List(ctx context.Context) ([]BatchSummary, error)
	Delete(ctx context.Context, id string) error
	IncrementDownloads(ctx context.Context, id string) (int64, error)
	// StreamICCIDs calls fn for each id of the batch in generation order.
	StreamICCIDs(ctx context.Context, id string, fn func(iccid string) error) error
	Ping(ctx context.Context) error
}
