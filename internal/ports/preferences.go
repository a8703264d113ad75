package ports

import (
	"context"

	"candleView/internal/domain"
)

// PreferenceStore persists the two chart settings that outlive a session.
// Missing values mean defaults, never an error.
type PreferenceStore interface {
	// Load reads the persisted preferences, applying defaults for any
	// value never written.
	Load(ctx context.Context) (domain.Preferences, error)
	// SaveLogScale persists the price-axis mode toggle.
	SaveLogScale(ctx context.Context, enabled bool) error
	// SaveTimeFormat12h persists the time-label format toggle.
	SaveTimeFormat12h(ctx context.Context, enabled bool) error
}
