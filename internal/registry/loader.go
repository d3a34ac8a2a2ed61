package registry

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/registry.yaml
var defaultData []byte

// Data is the on-disk shape of a registry file.
type Data struct {
	Version   string       `yaml:"version"`
	Countries []Country    `yaml:"countries"`
	Profiles  []IINProfile `yaml:"profiles"`
}

// Default builds a Registry from the data file compiled into the binary.
func Default(opts Options) (*Registry, error) {
	return Parse(defaultData, opts)
}

// LoadFile reads and validates a YAML registry file.
func LoadFile(path string, opts Options) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	return Parse(raw, opts)
}

// Load uses path when set and falls back to the embedded data otherwise.
func Load(path string, opts Options) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Default(opts)
	}
	return LoadFile(path, opts)
}

// Parse decodes raw YAML and builds a Registry from it.
func Parse(raw []byte, opts Options) (*Registry, error) {
	var data Data
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	r, err := New(data, opts)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(raw)
	r.checksum = hex.EncodeToString(sum[:])
	return r, nil
}

// validate checks the structural integrity of the tables.
func (d Data) validate(opts Options) error {
	if strings.TrimSpace(d.Version) == "" {
		return errors.New("registry: version is required")
	}
	if len(d.Countries) == 0 {
		return errors.New("registry: countries is empty")
	}

	for _, c := range d.Countries {
		if !isDigits(c.Code) {
			return fmt.Errorf("registry: country code %q must be digits", c.Code)
		}
		if len(c.Code) > opts.MaxCountryCodeLength {
			return fmt.Errorf("registry: country code %s longer than %d digits", c.Code, opts.MaxCountryCodeLength)
		}
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("registry: country name is required: %s", c.Code)
		}
	}

	for _, p := range d.Profiles {
		if !isDigits(p.Prefix) {
			return fmt.Errorf("registry: iin prefix %q must be digits", p.Prefix)
		}
		if len(p.Prefix) > opts.MaxIINLength {
			return fmt.Errorf("registry: iin prefix %s longer than %d digits", p.Prefix, opts.MaxIINLength)
		}
		if strings.TrimSpace(p.Operator) == "" {
			return fmt.Errorf("registry: operator is required: %s", p.Prefix)
		}
	}

	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
