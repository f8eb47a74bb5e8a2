package strata

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config overrides registrations by alias. It is usually loaded from YAML:
//
//	types:
//	  Database:
//	    kwargs:
//	      DSN: postgres://localhost/app
//	      MaxConns: 10
//	  RequestLog:
//	    transient: true
type Config struct {
	Types map[string]TypeConfig `yaml:"types"`
}

// TypeConfig overrides one registration.
type TypeConfig struct {
	Transient *bool          `yaml:"transient"`
	Kwargs    map[string]any `yaml:"kwargs"`
}

// LoadConfig decodes a YAML configuration. Unknown fields are rejected.
func LoadConfig(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, ErrInvalidConfiguration(fmt.Sprintf("decode config: %v", err))
	}

	return &cfg, nil
}

// Configure applies cfg to the topmost layer. Each alias must already be
// registered; its registration is replaced with the configured kwargs merged
// over the existing ones. Aliases are applied in sorted order and all
// failures are returned together.
func (r *Repository) Configure(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var err error

	for _, alias := range slices.Sorted(maps.Keys(cfg.Types)) {
		err = multierr.Append(err, r.configure(alias, cfg.Types[alias]))
	}

	return err
}

func (r *Repository) configure(alias string, tc TypeConfig) error {
	t, ok := r.Lookup(alias)
	if !ok {
		return ErrCannotResolve(fmt.Sprintf("%q", alias), fmt.Errorf("no type registered under %q", alias))
	}

	reg, ok := r.Registration(t)
	if !ok || reg.Type != t {
		reg = Registration{Type: t}
	}

	if len(tc.Kwargs) > 0 {
		if reg.Kwargs == nil {
			reg.Kwargs = make(Kwargs, len(tc.Kwargs))
		}
		maps.Copy(reg.Kwargs, tc.Kwargs)
	}
	if tc.Transient != nil {
		reg.Transient = *tc.Transient
	}

	return r.Replace(reg)
}
