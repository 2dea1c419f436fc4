package monitor

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned by channels that lack credentials.
var ErrNotConfigured = errors.New("notification channel not configured")

// Fetcher fetches the source page and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns raw page markup into records in document order.
// Implementations never fail: malformed links are skipped and an unparseable
// document yields no records.
type Extractor interface {
	Extract(markup []byte) []Record
}

// Notifier delivers a record to the messaging channel and reports whether
// delivery succeeded. Implementations log their own failures.
type Notifier interface {
	Notify(ctx context.Context, record Record) bool
}

// SeenStore persists the seen-id set.
//
// Load never fails: a missing or malformed document yields an empty set.
// Save rewrites the full set; callers log the returned error and carry on.
type SeenStore interface {
	Load(ctx context.Context) *SeenSet
	Save(ctx context.Context, seen *SeenSet) error
}

// Pacer is consulted before every notification. A *rate.Limiter with burst 1
// lets the first one through immediately and spaces out the rest.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces cycle IDs.
type IDGenerator interface {
	NewID() (string, error)
}
