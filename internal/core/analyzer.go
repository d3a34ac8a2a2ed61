package core

import (
	"context"
	"fmt"
	"runtime"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/Werdo/ose-platform-sub000/internal/iccid"
	"github.com/Werdo/ose-platform-sub000/internal/registry"
)

// Warning texts attached to ICCIDAnalysis.Warnings. Variable parts follow a
// colon so callers can match on the prefix.
const (
	WarnLengthOutOfRange  = "length out of 19-22 range"
	WarnNonDigit          = "contains non-digit characters"
	WarnChecksumMismatch  = "checksum mismatch"
	WarnUnexpectedMII     = "unexpected MII"
	WarnUnknownCountry    = "unrecognized country prefix"
	WarnSharedCountryCode = "country code shared by several countries"
	WarnNormalized        = "separators removed from input"
	WarnUnknownIssuer     = "no issuer profile for prefix"
)

// DefaultAnalyzeChunk is the number of ids analyzed per worker task.
const DefaultAnalyzeChunk = 10_000

// Analyzer decodes identifiers against a prefix registry.
type Analyzer struct {
	reg       *registry.Registry
	workers   int
	chunkSize int
}

// NewAnalyzer creates an Analyzer. workers <= 0 uses GOMAXPROCS.
func NewAnalyzer(reg *registry.Registry, workers, chunkSize int) *Analyzer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultAnalyzeChunk
	}
	return &Analyzer{reg: reg, workers: workers, chunkSize: chunkSize}
}

// Registry returns the registry the analyzer decodes against.
func (a *Analyzer) Registry() *registry.Registry {
	return a.reg
}

// AnalyzeOne decodes a single, possibly malformed, identifier. It never
// fails: every problem is reported in Warnings.
func (a *Analyzer) AnalyzeOne(raw string) ICCIDAnalysis {
	s, changed := iccid.Normalize(raw)
	n := utf8.RuneCountInString(s)

	out := ICCIDAnalysis{
		ICCID:       s,
		Length:      n,
		ValidLength: n >= iccid.MinLength && n <= iccid.MaxLength,
		Warnings:    []string{},
	}
	if changed && s != "" {
		out.Warnings = append(out.Warnings, WarnNormalized)
	}
	if !out.ValidLength {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: got %d", WarnLengthOutOfRange, n))
	}
	if s == "" {
		out.CountryNameGuess = registry.UnknownCountry
		return out
	}

	digits := iccid.IsDigits(s)
	if !digits {
		out.Warnings = append(out.Warnings, WarnNonDigit)
	}

	// The last character is the check digit, whatever its encoded width.
	_, size := utf8.DecodeLastRuneInString(s)
	out.Body = s[:len(s)-size]
	out.Checksum = s[len(s)-size:]

	if digits && out.Body != "" {
		want, _ := iccid.ComputeCheckDigit(out.Body)
		out.LuhnValid = int(out.Checksum[0]-'0') == want
		if !out.LuhnValid {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: expected %d, got %s", WarnChecksumMismatch, want, out.Checksum))
		}
	}

	a.decode(&out)
	return out
}

// decode fills the registry-derived fields from out.Body.
func (a *Analyzer) decode(out *ICCIDAnalysis) {
	body := out.Body
	expected := a.reg.ExpectedMII()

	out.MII = iccid.Head(body, len(expected))
	if out.MII != expected {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %q, expected %q", WarnUnexpectedMII, out.MII, expected))
	}

	country, ok := a.reg.CountryGuess(body)
	out.CountryCodeGuess = country.Code
	out.CountryNameGuess = country.Name
	switch {
	case !ok:
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %q", WarnUnknownCountry, country.Code))
	case country.Shared:
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %s", WarnSharedCountryCode, country.Code))
	}

	prefix, profile := a.reg.Lookup(body)
	out.IINPrefix = prefix
	out.IINProfile = profile
	out.AccountNumber = body[len(prefix):]
	if profile == nil && out.MII == expected {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %s", WarnUnknownIssuer, prefix))
	}
}

// Analyze decodes ids in parallel chunks and folds them into BatchStats. The
// analyses keep the order of ids.
func (a *Analyzer) Analyze(ctx context.Context, ids []string) ([]ICCIDAnalysis, BatchStats, error) {
	analyses := make([]ICCIDAnalysis, len(ids))

	chunks := (len(ids) + a.chunkSize - 1) / a.chunkSize
	partial := make([]BatchStats, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for c := 0; c < chunks; c++ {
		lo := c * a.chunkSize
		hi := min(lo+a.chunkSize, len(ids))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st := newBatchStats()
			for i := lo; i < hi; i++ {
				analyses[i] = a.AnalyzeOne(ids[i])
				st.add(&analyses[i])
			}
			partial[c] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, BatchStats{}, err
	}

	stats := newBatchStats()
	for i := range partial {
		stats.merge(partial[i])
	}
	return analyses, stats, nil
}

func (s *BatchStats) add(a *ICCIDAnalysis) {
	s.TotalCount++
	if a.LuhnValid {
		s.ValidCount++
	} else {
		s.InvalidCount++
	}
	if a.IINProfile != nil {
		s.Operators[a.IINProfile.Operator]++
	}
	s.Countries[a.CountryNameGuess]++
}

func (s *BatchStats) merge(o BatchStats) {
	s.TotalCount += o.TotalCount
	s.ValidCount += o.ValidCount
	s.InvalidCount += o.InvalidCount
	for k, v := range o.Operators {
		s.Operators[k] += v
	}
	for k, v := range o.Countries {
		s.Countries[k] += v
	}
}
