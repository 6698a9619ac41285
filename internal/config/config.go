// Package config defines service configuration structures and loading hooks.
package config

import "runtime"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// UpvoteWeight and DownvoteWeight scale a single vote's contribution
	// to a CVM's score.
	UpvoteWeight   float64 `koanf:"upvote_weight"`
	DownvoteWeight float64 `koanf:"downvote_weight"`

	// DecayMode selects vote decay: none, linear, exponential.
	DecayMode string `koanf:"decay_mode"`

	// DecayHalfLifeHours sets the half-life for decayed scoring.
	DecayHalfLifeHours int `koanf:"decay_half_life_hours"`

	// ReportWindowHours bounds the recentlyReported counters.
	ReportWindowHours int `koanf:"report_window_hours"`

	// RemovalEnabled turns the removal floor on. A separate switch keeps
	// a floor of exactly zero expressible.
	RemovalEnabled bool `koanf:"removal_enabled"`

	// RemovalFloor hides CVMs whose score falls below it. Only applied
	// when RemovalEnabled is set.
	RemovalFloor float64 `koanf:"removal_floor"`

	// CredibilityFloor is the minimum credibility required to vote or
	// report.
	CredibilityFloor float64 `koanf:"credibility_floor"`

	// VoteCooldownHours sets how long a repeat vote on the same CVM is
	// rejected.
	VoteCooldownHours int `koanf:"vote_cooldown_hours"`

	// RefreshQueueSize bounds the in-memory projection refresh queue.
	RefreshQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of refresh workers.
	WorkerCount int `koanf:"worker_count"`

	// MaxPerPage caps perPage on paged queries.
	MaxPerPage int `koanf:"max_per_page"`

	// DisplayNamePlaceholder substitutes for absent display names.
	DisplayNamePlaceholder string `koanf:"display_name_placeholder"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		UpvoteWeight:           1.0,
		DownvoteWeight:         1.0,
		DecayMode:              "none",
		DecayHalfLifeHours:     30 * 24,
		ReportWindowHours:      7 * 24,
		RemovalEnabled:         false,
		RemovalFloor:           0,
		CredibilityFloor:       20,
		VoteCooldownHours:      24,
		RefreshQueueSize:       10_000,
		WorkerCount:            runtime.NumCPU() * 2,
		MaxPerPage:             100,
		DisplayNamePlaceholder: "anonymous scout",
	}
}
