// Package feature implements rules-over-config feature flag evaluation.
// Flags are loaded from a YAML file at startup or managed programmatically;
// evaluation context (user ID, environment) is supplied through extractor
// functions so the package stays decoupled from the application's context keys.
package feature

import (
	"context"
	"time"
)

// Flag represents a feature flag with its rollout configuration.
type Flag struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	Strategy    Strategy  `json:"-"`
	Tags        []string  `json:"tags,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Strategy decides whether an enabled flag applies to a specific context.
type Strategy interface {
	Evaluate(ctx context.Context) (bool, error)
}

// Extractor function types for retrieving evaluation data from context.
type (
	UserIDExtractor      func(ctx context.Context) string
	EnvironmentExtractor func(ctx context.Context) string
)

// Provider evaluates and manages feature flags.
type Provider interface {
	// IsEnabled reports whether a flag is on for the given context.
	// Returns ErrFlagNotFound for unknown flags.
	IsEnabled(ctx context.Context, name string) (bool, error)

	// GetFlag returns the flag configuration, or ErrFlagNotFound.
	GetFlag(ctx context.Context, name string) (*Flag, error)

	// ListFlags returns all flags, optionally filtered by tag.
	ListFlags(ctx context.Context, tags ...string) ([]*Flag, error)

	// SetFlag creates or replaces a flag.
	SetFlag(ctx context.Context, flag *Flag) error

	// DeleteFlag removes a flag, or returns ErrFlagNotFound.
	DeleteFlag(ctx context.Context, name string) error
}
