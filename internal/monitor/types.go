// Package monitor defines the announcement records, the seen-id set, and the
// poll cycle that turns a fetched dashboard page into Telegram notifications.
package monitor

import (
	"net/http"
	"time"
)

// Sentinel values substituted when a field cannot be derived from a link.
const (
	UnknownEntity    = "Unknown Company"
	NoTitle          = "No title available"
	DefaultTimestamp = "Just now"
)

// Record is one announcement extracted from the dashboard during a cycle.
type Record struct {
	ID               string    `json:"id"`
	Entity           string    `json:"company"`
	Title            string    `json:"title"`
	TimestampDisplay string    `json:"timestamp"`
	URL              string    `json:"url"`
	ObservedAt       time.Time `json:"scraped_at"`
}

// FetchRequest captures everything needed to fetch the source page.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// CycleOutcome reports what a single poll cycle did.
type CycleOutcome struct {
	CycleID     string        `json:"cycle_id"`
	Iteration   int           `json:"iteration"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	FetchFailed bool          `json:"fetch_failed"`
	Extracted   int           `json:"extracted"`
	New         int           `json:"new"`
	Notified    int           `json:"notified"`
	Failures    int           `json:"failures"`
	Committed   bool          `json:"committed"`
}

// Result classifies the outcome for metrics and logs.
func (o CycleOutcome) Result() string {
	switch {
	case o.FetchFailed:
		return "fetch_failed"
	case o.Extracted == 0:
		return "empty"
	case o.New == 0:
		return "unchanged"
	default:
		return "new"
	}
}
