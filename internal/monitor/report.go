package monitor

import (
	"fmt"
	"io"
	"strings"
)

const rule = "================================================================================"

// WritePreview prints the latest records of a single-shot check, newest
// first, followed by a count of the ones left out.
func WritePreview(w io.Writer, records []Record, limit int) error {
	var b strings.Builder
	if len(records) == 0 {
		b.WriteString("[ERROR] No updates found\n")
	} else {
		fmt.Fprintf(&b, "\n[SUCCESS] Found %d updates\n\n%s\nLATEST UPDATES:\n%s\n", len(records), rule, rule)
		shown := records
		if limit > 0 && len(shown) > limit {
			shown = shown[:limit]
		}
		for i, rec := range shown {
			fmt.Fprintf(&b, "\n[%d] %s\n", i+1, rec.TimestampDisplay)
			fmt.Fprintf(&b, "    Company: %s\n", rec.Entity)
			fmt.Fprintf(&b, "    Title: %s\n", truncate(rec.Title, 80))
			fmt.Fprintf(&b, "    URL: %s\n", rec.URL)
		}
		if rest := len(records) - len(shown); rest > 0 {
			fmt.Fprintf(&b, "\n... and %d more updates\n", rest)
		}
	}
	fmt.Fprintf(&b, "\n%s\nTest completed!\n%s\n", rule, rule)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}
	return nil
}
