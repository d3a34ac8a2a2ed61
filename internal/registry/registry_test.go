package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDefault(t *testing.T) *Registry {
	t.Helper()
	r, err := Default(DefaultOptions())
	require.NoError(t, err)
	return r
}

func TestDefault_Loads(t *testing.T) {
	r := mustDefault(t)

	assert.NotEmpty(t, r.Version())
	assert.Len(t, r.Checksum(), 64)
	assert.Greater(t, r.ProfileCount(), 10)
	assert.Greater(t, r.CountryCount(), 40)
	assert.Equal(t, "89", r.ExpectedMII())
}

func TestLookup_LongestPrefixWins(t *testing.T) {
	r := mustDefault(t)

	tests := []struct {
		name       string
		body       string
		wantPrefix string
		wantBrand  string
	}{
		{name: "seven digit iot prefix beats six digit parent", body: "8934071100000000000", wantPrefix: "8934071", wantBrand: "Movistar IoT"},
		{name: "six digit prefix", body: "8934072000000000000", wantPrefix: "893407", wantBrand: "Movistar"},
		{name: "international iot", body: "8988239000133470179", wantPrefix: "8988239", wantBrand: "Global IoT"},
		{name: "us carrier", body: "8901260000000000000", wantPrefix: "8901260", wantBrand: "T-Mobile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, profile := r.Lookup(tt.body)
			require.NotNil(t, profile)
			assert.Equal(t, tt.wantPrefix, prefix)
			assert.Equal(t, tt.wantBrand, profile.Brand)
		})
	}
}

func TestLookup_NoMatchUsesDefaultLength(t *testing.T) {
	r := mustDefault(t)

	prefix, profile := r.Lookup("123456789012345678")
	assert.Nil(t, profile)
	assert.Equal(t, "1234567", prefix)

	prefix, profile = r.Lookup("12")
	assert.Nil(t, profile)
	assert.Equal(t, "12", prefix)
}

func TestCountryGuess(t *testing.T) {
	r := mustDefault(t)

	tests := []struct {
		name       string
		body       string
		wantCode   string
		wantName   string
		wantOK     bool
		wantShared bool
	}{
		{name: "two digit code", body: "8934071100000000000", wantCode: "34", wantName: "Spain", wantOK: true},
		{name: "three digit code beats two digit", body: "8935101000000000000", wantCode: "351", wantName: "Portugal", wantOK: true},
		{name: "international network", body: "8988239000133470179", wantCode: "882", wantName: "International Networks", wantOK: true},
		{name: "shared one digit code", body: "8901260000000000000", wantCode: "01", wantName: "United States / Canada", wantOK: true, wantShared: true},
		{name: "shared code without zero pad", body: "8914800000000000000", wantCode: "1", wantName: "United States / Canada", wantOK: true, wantShared: true},
		{name: "unassigned prefix", body: "8999900000000000000", wantCode: "999", wantName: UnknownCountry, wantOK: false},
		{name: "too short", body: "89", wantCode: "", wantName: UnknownCountry, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := r.CountryGuess(tt.body)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCode, c.Code)
			assert.Equal(t, tt.wantName, c.Name)
			assert.Equal(t, tt.wantShared, c.Shared)
		})
	}
}

func TestProfiles_SortedByPrefix(t *testing.T) {
	r := mustDefault(t)

	profiles := r.Profiles()
	require.Len(t, profiles, r.ProfileCount())
	for i := 1; i < len(profiles); i++ {
		assert.Less(t, profiles[i-1].Prefix, profiles[i].Prefix)
	}
}

func TestNew_Validation(t *testing.T) {
	base := func() Data {
		return Data{
			Version:   "test",
			Countries: []Country{{Code: "34", Name: "Spain"}},
			Profiles:  []IINProfile{{Prefix: "893407", Operator: "Telefónica"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Data)
	}{
		{name: "missing version", mutate: func(d *Data) { d.Version = "" }},
		{name: "no countries", mutate: func(d *Data) { d.Countries = nil }},
		{name: "non digit country", mutate: func(d *Data) { d.Countries[0].Code = "3A" }},
		{name: "country too long", mutate: func(d *Data) { d.Countries[0].Code = "3456" }},
		{name: "duplicate country", mutate: func(d *Data) { d.Countries = append(d.Countries, Country{Code: "34", Name: "Again"}) }},
		{name: "prefix too long", mutate: func(d *Data) { d.Profiles[0].Prefix = "89340711" }},
		{name: "missing operator", mutate: func(d *Data) { d.Profiles[0].Operator = "" }},
		{name: "duplicate prefix", mutate: func(d *Data) {
			d.Profiles = append(d.Profiles, IINProfile{Prefix: "893407", Operator: "Dup"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(&d)
			_, err := New(d, DefaultOptions())
			require.Error(t, err)
		})
	}

	_, err := New(base(), DefaultOptions())
	require.NoError(t, err)
}

func TestLoad_FileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	raw := []byte(`version: "custom"
countries:
  - { code: "34", name: "Spain" }
profiles:
  - prefix: "8934"
    brand: "Custom"
    operator: "Custom Operator"
`)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	r, err := Load(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, "custom", r.Version())

	prefix, profile := r.Lookup("8934071100000000000")
	require.NotNil(t, profile)
	assert.Equal(t, "8934", prefix)
	assert.Equal(t, "Custom Operator", profile.Operator)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), Options{})
	require.Error(t, err)
}

func TestLoad_EmptyPathUsesEmbedded(t *testing.T) {
	r, err := Load("  ", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, mustDefault(t).Checksum(), r.Checksum())
}
