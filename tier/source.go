package tier

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrFailedToLoadDefaults = errors.New("tier: failed to load defaults")
	ErrInvalidDefaults      = errors.New("tier: invalid defaults configuration")
)

// Source loads per-tier default limit tables. The built-in table is used when
// no source is configured; a YAML source lets operators tune quotas without a
// redeploy.
type Source interface {
	Load(ctx context.Context) (map[Tier]map[Feature]Limits, error)
}

// StaticSource serves the compiled-in defaults table.
type StaticSource struct{}

func (StaticSource) Load(context.Context) (map[Tier]map[Feature]Limits, error) {
	out := make(map[Tier]map[Feature]Limits, len(defaultLimits))
	for t := range defaultLimits {
		limits, _ := Defaults(t)
		out[t] = limits
	}
	return out, nil
}

// FileSource reads the defaults table from a YAML file shaped as
//
//	analyst:
//	  GTMTriggers: {create: 10, update: 10, delete: 10}
//	consultant:
//	  ...
type FileSource struct {
	Path string
}

func (s FileSource) Load(_ context.Context) (map[Tier]map[Feature]Limits, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadDefaults, err)
	}

	var parsed map[Tier]map[Feature]Limits
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Join(ErrFailedToLoadDefaults, err)
	}

	if err := validateDefaults(parsed); err != nil {
		return nil, err
	}

	return parsed, nil
}

// validateDefaults rejects negative quotas and unknown feature names early so
// misconfiguration fails at startup instead of at the first gated request.
func validateDefaults(table map[Tier]map[Feature]Limits) error {
	for t, features := range table {
		for f, l := range features {
			if !Valid(f) {
				return errors.Join(ErrInvalidDefaults,
					fmt.Errorf("tier %s references unknown feature %s", t, f))
			}
			if l.Create < 0 || l.Update < 0 || l.Delete < 0 {
				return errors.Join(ErrInvalidDefaults,
					fmt.Errorf("tier %s feature %s has negative limits", t, f))
			}
		}
	}
	return nil
}
