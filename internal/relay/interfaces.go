package relay

import "context"

// Feed owns one live rendering session against the search page.
type Feed interface {
	// Alive reports whether the browser process, its context and the page are all usable.
	Alive() bool
	// EnsureAlive recreates the session when Alive reports false.
	EnsureAlive(ctx context.Context) error
	// Nudge scrolls the page down and back up to coax fresh renders.
	Nudge(ctx context.Context) error
	// Fetch returns the currently visible candidates, most recent first.
	Fetch(ctx context.Context) (Snapshot, error)
	// Reload reloads the current page.
	Reload(ctx context.Context) error
	// Recreate tears the session down and opens a new one.
	Recreate(ctx context.Context, reason string) error
	// Close releases the session.
	Close()
}

// SeenSet answers membership questions for the dedup record.
type SeenSet interface {
	Has(id string) bool
}

// SeenStore is the append-only, durable dedup record.
type SeenStore interface {
	SeenSet
	Add(ctx context.Context, id string) error
	Len() int
	Close() error
}

// Sink delivers a payload to one downstream target.
type Sink interface {
	Send(ctx context.Context, payload Payload) error
}
