package core

// generator.go expands an inclusive ICCID range into checksummed identifiers.
//
// Bodies are up to 21 digits, which overflows uint64, so range arithmetic is
// done with math/big and iteration uses an in-place decimal increment over
// the body bytes. Each step costs one carry walk plus one Luhn pass.

import (
	"context"
	"fmt"
	"iter"
	"math/big"

	"github.com/Werdo/ose-platform-sub000/internal/iccid"
)

// DefaultMaxBatchSize is the ceiling used when none is configured.
const DefaultMaxBatchSize = 500_000

// ctxCheckInterval is how many ids are produced between context checks.
const ctxCheckInterval = 4096

// Generator produces identifier ranges bounded by a batch ceiling.
type Generator struct {
	maxBatchSize int
}

// NewGenerator returns a Generator that rejects ranges above maxBatchSize.
func NewGenerator(maxBatchSize int) *Generator {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &Generator{maxBatchSize: maxBatchSize}
}

// MaxBatchSize returns the configured ceiling.
func (g *Generator) MaxBatchSize() int {
	return g.maxBatchSize
}

// Range is a checked, inclusive body range.
type Range struct {
	StartBody string
	EndBody   string
	Count     int
}

// Width is the body length shared by every id in the range.
func (r Range) Width() int {
	return len(r.StartBody)
}

// Plan checks start and end and returns the range they describe.
func (g *Generator) Plan(start, end string) (Range, error) {
	if _, err := iccid.Validate(start); err != nil {
		return Range{}, fmt.Errorf("%w: iccid_start: %w", ErrInvalidFormat, err)
	}
	if _, err := iccid.Validate(end); err != nil {
		return Range{}, fmt.Errorf("%w: iccid_end: %w", ErrInvalidFormat, err)
	}
	if len(start) != len(end) {
		return Range{}, fmt.Errorf("%w: iccid_start has %d digits, iccid_end has %d", ErrLengthMismatch, len(start), len(end))
	}

	startBody := start[:len(start)-1]
	endBody := end[:len(end)-1]

	lo, _ := new(big.Int).SetString(startBody, 10)
	hi, _ := new(big.Int).SetString(endBody, 10)
	if hi.Cmp(lo) < 0 {
		return Range{}, fmt.Errorf("%w: end body %s precedes start body %s", ErrEmptyOrInvertedRange, endBody, startBody)
	}

	count := new(big.Int).Sub(hi, lo)
	count.Add(count, big.NewInt(1))
	if count.Cmp(big.NewInt(int64(g.maxBatchSize))) > 0 {
		return Range{}, fmt.Errorf("%w: range holds %s identifiers, limit is %d", ErrBatchTooLarge, count.String(), g.maxBatchSize)
	}

	return Range{
		StartBody: startBody,
		EndBody:   endBody,
		Count:     int(count.Int64()),
	}, nil
}

// Generate materializes every identifier between start and end inclusive, in
// ascending body order. It stops early if ctx is done.
func (g *Generator) Generate(ctx context.Context, start, end string) ([]string, error) {
	rng, err := g.Plan(start, end)
	if err != nil {
		return nil, err
	}
	return rng.Collect(ctx)
}

// Collect materializes the range.
func (r Range) Collect(ctx context.Context) ([]string, error) {
	out := make([]string, 0, r.Count)
	for id := range r.All() {
		if len(out)%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out = append(out, id)
	}
	return out, nil
}

// All yields the identifiers of the range lazily. Nothing beyond the current
// id is allocated, so callers can stop after the first few.
func (r Range) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		body := []byte(r.StartBody)
		buf := make([]byte, 0, len(body)+1)
		for i := 0; i < r.Count; i++ {
			buf = iccid.AppendCheckDigit(buf[:0], body)
			if !yield(string(buf)) {
				return
			}
			if i+1 < r.Count {
				increment(body)
			}
		}
	}
}

// First returns at most n identifiers from the start of the range.
func (r Range) First(n int) []string {
	if n > r.Count {
		n = r.Count
	}
	if n <= 0 {
		return []string{}
	}
	out := make([]string, 0, n)
	for id := range r.All() {
		out = append(out, id)
		if len(out) == n {
			break
		}
	}
	return out
}

// increment adds one to a decimal digit string in place. Width never grows;
// callers stop before the all-nines overflow.
func increment(digits []byte) {
	for i := len(digits) - 1; i >= 0; i-- {
		if digits[i] < '9' {
			digits[i]++
			return
		}
		digits[i] = '0'
	}
}
