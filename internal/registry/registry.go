// Package registry holds the static reference data used to decode ICCID
// prefixes: the country-code table (digits following the MII) and the IIN
// profile table (carrier metadata keyed by issuer prefix).
//
// Both tables are loaded once at startup and stored as digit tries so that a
// lookup costs at most one step per prefix digit, independent of table size.
// A Registry is immutable and safe for concurrent use.
package registry

import (
	"fmt"
	"sort"

	"github.com/Werdo/ose-platform-sub000/internal/iccid"
)

// UnknownCountry is the name reported when no country prefix matches.
const UnknownCountry = "Unknown"

// IINProfile is the carrier metadata attached to an issuer prefix.
type IINProfile struct {
	Prefix      string `yaml:"prefix" json:"prefix"`
	Brand       string `yaml:"brand" json:"brand"`
	Operator    string `yaml:"operator" json:"operator"`
	Country     string `yaml:"country" json:"country"`
	Region      string `yaml:"region" json:"region"`
	UseCase     string `yaml:"use_case" json:"use_case"`
	CoreNetwork string `yaml:"core_network" json:"core_network"`
}

// Country maps a telephony country code to a display name. Shared marks codes
// used by more than one country (for example the North American "1").
type Country struct {
	Code   string `yaml:"code" json:"code"`
	Name   string `yaml:"name" json:"name"`
	Shared bool   `yaml:"shared,omitempty" json:"shared,omitempty"`
}

// Options controls how identifiers are segmented.
type Options struct {
	// ExpectedMII is the Major Industry Identifier telecom SIMs carry ("89").
	ExpectedMII string

	// DefaultIINLength is how many body digits are reported as the IIN
	// prefix when no profile matches.
	DefaultIINLength int

	// MaxIINLength bounds the profile prefix search.
	MaxIINLength int

	// MaxCountryCodeLength bounds the country prefix search.
	MaxCountryCodeLength int
}

// DefaultOptions returns the segmentation used for ITU-T E.118 identifiers.
func DefaultOptions() Options {
	return Options{
		ExpectedMII:          "89",
		DefaultIINLength:     7,
		MaxIINLength:         7,
		MaxCountryCodeLength: 3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ExpectedMII == "" {
		o.ExpectedMII = d.ExpectedMII
	}
	if o.DefaultIINLength <= 0 {
		o.DefaultIINLength = d.DefaultIINLength
	}
	if o.MaxIINLength <= 0 {
		o.MaxIINLength = d.MaxIINLength
	}
	if o.MaxCountryCodeLength <= 0 {
		o.MaxCountryCodeLength = d.MaxCountryCodeLength
	}
	return o
}

// Registry is the loaded, immutable lookup structure.
type Registry struct {
	opts      Options
	version   string
	checksum  string
	profiles  trie[IINProfile]
	countries trie[Country]
}

// New builds a Registry from decoded table data.
func New(data Data, opts Options) (*Registry, error) {
	opts = opts.withDefaults()
	if err := data.validate(opts); err != nil {
		return nil, err
	}

	r := &Registry{opts: opts, version: data.Version}
	for _, c := range data.Countries {
		if !r.countries.insert(c.Code, c) {
			return nil, fmt.Errorf("registry: duplicate country code %s", c.Code)
		}
	}
	for _, p := range data.Profiles {
		if !r.profiles.insert(p.Prefix, p) {
			return nil, fmt.Errorf("registry: duplicate iin prefix %s", p.Prefix)
		}
	}
	return r, nil
}

// Options returns the segmentation settings in effect.
func (r *Registry) Options() Options {
	return r.opts
}

// ExpectedMII returns the MII telecom identifiers should start with.
func (r *Registry) ExpectedMII() string {
	return r.opts.ExpectedMII
}

// Version returns the data file version string.
func (r *Registry) Version() string {
	return r.version
}

// Checksum returns the SHA-256 of the raw data file, if loaded from bytes.
func (r *Registry) Checksum() string {
	return r.checksum
}

// ProfileCount returns the number of IIN profiles loaded.
func (r *Registry) ProfileCount() int {
	return r.profiles.size
}

// CountryCount returns the number of country codes loaded.
func (r *Registry) CountryCount() int {
	return r.countries.size
}

// Lookup finds the longest IIN prefix of body with a profile. When nothing
// matches, the returned prefix is the first DefaultIINLength digits of body
// and the profile is nil.
func (r *Registry) Lookup(body string) (string, *IINProfile) {
	prefix, p, ok := r.profiles.longest(body, r.opts.MaxIINLength)
	if ok {
		return prefix, &p
	}
	return iccid.Head(body, r.opts.DefaultIINLength), nil
}

// CountryGuess resolves the country code that follows the MII. Unmatched
// prefixes return the raw digits as the code, UnknownCountry as the name and
// ok=false.
func (r *Registry) CountryGuess(body string) (Country, bool) {
	mii := len(r.opts.ExpectedMII)
	if len(body) <= mii {
		return Country{Name: UnknownCountry}, false
	}
	rest := body[len(iccid.Head(body, mii)):]

	code, c, ok := r.countries.longest(rest, r.opts.MaxCountryCodeLength)
	if ok {
		c.Code = code
		return c, true
	}

	return Country{Code: iccid.Head(rest, r.opts.MaxCountryCodeLength), Name: UnknownCountry}, false
}

// Profiles returns every IIN profile sorted by prefix.
func (r *Registry) Profiles() []IINProfile {
	out := make([]IINProfile, 0, r.profiles.size)
	collect(&r.profiles.root, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out
}

func collect(n *node[IINProfile], out *[]IINProfile) {
	if n.set {
		*out = append(*out, n.value)
	}
	for _, c := range n.children {
		if c != nil {
			collect(c, out)
		}
	}
}
