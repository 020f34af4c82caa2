package ports

import (
	"context"

	"github.com/flowtonehq/flowtone/internal/domain/focus"
)

// ContextSourcePort supplies foreground-context snapshots: a push
// notification on activation change, plus a polling cadence while the
// foreground context can change host without an activation event (tab
// navigation in a browser).
type ContextSourcePort interface {
	// Start begins watching and returns immediately. Snapshots are
	// delivered on Contexts until the context is cancelled or Close is
	// called.
	Start(ctx context.Context) error

	// Contexts returns the channel of foreground-context snapshots.
	Contexts() <-chan focus.Context

	// Current returns the most recent snapshot.
	Current() (focus.Context, error)

	// Close stops watching and releases resources.
	Close() error
}
