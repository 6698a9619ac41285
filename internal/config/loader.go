package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/cvmap/cvmap/internal/domain/reputation"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CVMAP_CONFIG is set
//  3. env (prefix CVMAP_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("CVMAP_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: CVMAP_ADDR, CVMAP_QUEUE_SIZE, ...
	// Map env keys like CVMAP_QUEUE_SIZE -> queue_size (flat keys).
	// Underscores are preserved to match koanf tags on the struct.
	envProvider := env.Provider("CVMAP_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "cvmap_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !reputation.DecayMode(c.DecayMode).Valid():
		return fmt.Errorf("%w: unknown decay_mode %q", ErrInvalidConfig, c.DecayMode)
	case c.DecayHalfLifeHours <= 0:
		return fmt.Errorf("%w: decay_half_life_hours must be positive", ErrInvalidConfig)
	case c.ReportWindowHours <= 0:
		return fmt.Errorf("%w: report_window_hours must be positive", ErrInvalidConfig)
	case c.CredibilityFloor < 0 || c.CredibilityFloor > 100:
		return fmt.Errorf("%w: credibility_floor must be within [0,100]", ErrInvalidConfig)
	case c.VoteCooldownHours <= 0:
		return fmt.Errorf("%w: vote_cooldown_hours must be positive", ErrInvalidConfig)
	case c.MaxPerPage <= 0:
		return fmt.Errorf("%w: max_per_page must be positive", ErrInvalidConfig)
	}
	return nil
}
