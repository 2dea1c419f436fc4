// Package seenstore holds the document format shared by the seen-id stores:
// a JSON array of id strings, indented by two spaces.
package seenstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/stockwatch-monitor/internal/monitor"
)

// ErrCorrupt marks a stored document that cannot be decoded. Stores treat it
// like a missing document and start from an empty set.
var ErrCorrupt = errors.New("seen-id document is corrupt")

// Encode renders the set as a sorted, two-space indented JSON array.
func Encode(seen *monitor.SeenSet) ([]byte, error) {
	data, err := json.MarshalIndent(seen.IDs(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode seen ids: %w", err)
	}
	return data, nil
}

// Decode parses a JSON array of ids. Anything else wraps ErrCorrupt.
func Decode(data []byte) (*monitor.SeenSet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrCorrupt)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if ids == nil {
		return nil, fmt.Errorf("%w: not an array", ErrCorrupt)
	}
	return monitor.NewSeenSet(ids...), nil
}
