package core

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Werdo/ose-platform-sub000/internal/registry"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	reg, err := registry.Default(registry.DefaultOptions())
	require.NoError(t, err)
	return NewAnalyzer(reg, 4, 7)
}

func hasWarning(warnings []string, prefix string) bool {
	for _, w := range warnings {
		if strings.HasPrefix(w, prefix) {
			return true
		}
	}
	return false
}

func TestAnalyzeOne_ValidKnownIssuer(t *testing.T) {
	a := newTestAnalyzer(t)

	got := a.AnalyzeOne("89882390001334701795")

	assert.Equal(t, "89882390001334701795", got.ICCID)
	assert.Equal(t, "8988239000133470179", got.Body)
	assert.Equal(t, 20, got.Length)
	assert.True(t, got.ValidLength)
	assert.Equal(t, "89", got.MII)
	assert.Equal(t, "882", got.CountryCodeGuess)
	assert.Equal(t, "International Networks", got.CountryNameGuess)
	assert.Equal(t, "8988239", got.IINPrefix)
	require.NotNil(t, got.IINProfile)
	assert.Equal(t, "Global IoT", got.IINProfile.Brand)
	assert.Equal(t, "000133470179", got.AccountNumber)
	assert.Equal(t, "5", got.Checksum)
	assert.True(t, got.LuhnValid)
	assert.Empty(t, got.Warnings)
	assert.NotNil(t, got.Warnings)
}

func TestAnalyzeOne_WrongMII(t *testing.T) {
	a := newTestAnalyzer(t)

	got := a.AnalyzeOne("1234567890123456789")

	// Body 123456789012345678 has Luhn digit 5, the input carries 9.
	assert.False(t, got.LuhnValid)
	assert.Equal(t, "9", got.Checksum)
	assert.Equal(t, "12", got.MII)
	assert.Nil(t, got.IINProfile)
	assert.Equal(t, "1234567", got.IINPrefix)
	assert.Equal(t, "89012345678", got.AccountNumber)
	assert.True(t, hasWarning(got.Warnings, WarnUnexpectedMII))
	assert.True(t, hasWarning(got.Warnings, WarnChecksumMismatch))
	assert.Contains(t, got.Warnings, WarnChecksumMismatch+": expected 5, got 9")
}

func TestAnalyzeOne_ReportsInsteadOfRejecting(t *testing.T) {
	a := newTestAnalyzer(t)

	tests := []struct {
		name        string
		input       string
		wantWarning string
		validLength bool
	}{
		{name: "too short", input: "8934071", wantWarning: WarnLengthOutOfRange},
		{name: "too long", input: "89340711000000000000000", wantWarning: WarnLengthOutOfRange},
		{name: "non digit", input: "893407110000000000X", wantWarning: WarnNonDigit, validLength: true},
		{name: "checksum", input: "8934071100000000005", wantWarning: WarnChecksumMismatch, validLength: true},
		{name: "unknown country", input: "8999900000000000000", wantWarning: WarnUnknownCountry, validLength: true},
		{name: "shared country code", input: "89012600000000000003", wantWarning: WarnSharedCountryCode, validLength: true},
		{name: "separators", input: " 8934 0711 0000 0000 004 ", wantWarning: WarnNormalized, validLength: true},
		{name: "empty", input: "", wantWarning: WarnLengthOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.AnalyzeOne(tt.input)
			assert.Equal(t, tt.validLength, got.ValidLength)
			assert.True(t, hasWarning(got.Warnings, tt.wantWarning), "warnings: %v", got.Warnings)
		})
	}
}

func TestAnalyzeOne_NormalizedInputDecodes(t *testing.T) {
	a := newTestAnalyzer(t)

	got := a.AnalyzeOne("8934-0711-0000-0000-004")
	assert.Equal(t, "8934071100000000004", got.ICCID)
	assert.True(t, got.LuhnValid)
	require.NotNil(t, got.IINProfile)
	assert.Equal(t, "Movistar IoT", got.IINProfile.Brand)
	assert.Equal(t, "Spain", got.CountryNameGuess)
}

func TestAnalyzeOne_MultiByteInputStaysValidUTF8(t *testing.T) {
	a := newTestAnalyzer(t)

	for _, input := range []string{
		"893407110000000000é",
		"é893407110000000000",
		"8934€0711000000000",
	} {
		t.Run(input, func(t *testing.T) {
			got := a.AnalyzeOne(input)

			assert.Equal(t, utf8.RuneCountInString(input), got.Length)
			assert.True(t, hasWarning(got.Warnings, WarnNonDigit))
			assert.False(t, got.LuhnValid)
			assert.Equal(t, input, got.Body+got.Checksum)
			for _, field := range []string{got.Body, got.Checksum, got.MII, got.IINPrefix, got.AccountNumber, got.CountryCodeGuess} {
				assert.True(t, utf8.ValidString(field), "field %q is not valid UTF-8", field)
			}
		})
	}

	got := a.AnalyzeOne("893407110000000000é")
	assert.Equal(t, "é", got.Checksum)
	assert.Equal(t, "893407110000000000", got.Body)
}

func TestAnalyze_PreservesOrderAndAggregates(t *testing.T) {
	a := newTestAnalyzer(t)
	g := NewGenerator(DefaultMaxBatchSize)

	ids, err := g.Generate(context.Background(), "89882390001334701795", "89882390001334702090")
	require.NoError(t, err)

	// Append ids from other issuers and one bad checksum.
	ids = append(ids,
		"8934071100000000004",
		"8934071100000000005",
		"8999900000000000006", // valid checksum, unknown country
	)

	analyses, stats, err := a.Analyze(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, analyses, len(ids))
	for i := range ids {
		assert.Equal(t, ids[i], analyses[i].ICCID)
	}

	assert.Equal(t, len(ids), stats.TotalCount)
	assert.Equal(t, 33, stats.ValidCount)
	assert.Equal(t, 1, stats.InvalidCount)
	assert.Equal(t, stats.TotalCount, stats.ValidCount+stats.InvalidCount)
	assert.Equal(t, 31, stats.Operators["International IoT MVNO"])
	assert.Equal(t, 31, stats.Countries["International Networks"])
	assert.Equal(t, 2, stats.Countries["Spain"])
	assert.Equal(t, 1, stats.Countries[registry.UnknownCountry])
}

func TestAnalyze_GeneratedIdsAreAlwaysValid(t *testing.T) {
	a := newTestAnalyzer(t)
	g := NewGenerator(DefaultMaxBatchSize)

	ids, err := g.Generate(context.Background(), "8934071100000000004", "8934071100000001009")
	require.NoError(t, err)

	analyses, stats, err := a.Analyze(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, len(ids), stats.ValidCount)
	assert.Zero(t, stats.InvalidCount)
	for _, an := range analyses {
		assert.True(t, an.LuhnValid)
		assert.False(t, hasWarning(an.Warnings, WarnChecksumMismatch))
	}
}

func TestAnalyze_Empty(t *testing.T) {
	a := newTestAnalyzer(t)

	analyses, stats, err := a.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, analyses)
	assert.Zero(t, stats.TotalCount)
	assert.NotNil(t, stats.Operators)
}

func TestAnalyze_CancelledContext(t *testing.T) {
	a := newTestAnalyzer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := a.Analyze(ctx, []string{"8934071100000000004"})
	require.ErrorIs(t, err, context.Canceled)
}
