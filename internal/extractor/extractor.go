// Package extractor pulls announcement records out of the dashboard markup.
//
// An announcement is any anchor whose href carries a newsId query parameter.
// The remaining fields come from the same query string (name, title) or from
// headings nested inside the anchor, with fixed placeholders when neither is
// present.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch-monitor/internal/monitor"
)

const (
	paramID     = "newsId"
	paramEntity = "name"
	paramTitle  = "title"

	timestampSelector = `h6[style*="color"]`
)

var errMissingID = errors.New("missing newsId")

// Extractor implements monitor.Extractor with goquery.
type Extractor struct {
	base   *url.URL
	clock  monitor.Clock
	logger *zap.Logger
}

// New builds an Extractor that resolves relative links against baseURL.
func New(baseURL string, clock monitor.Clock, logger *zap.Logger) (*Extractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{base: base, clock: clock, logger: logger}, nil
}

// Extract returns records in document order, which on the dashboard is
// newest first. It never fails: only an anchor without a usable newsId is
// skipped, and an unparseable document yields nil.
func (e *Extractor) Extract(markup []byte) []monitor.Record {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		e.logger.Error("parse page markup", zap.Error(err))
		return nil
	}

	observedAt := e.clock.Now()
	var records []monitor.Record
	doc.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		if !strings.Contains(href, paramID+"=") {
			return
		}
		rec, err := e.parseAnchor(anchor, href)
		if err != nil {
			e.logger.Debug("skipping news link", zap.String("href", href), zap.Error(err))
			return
		}
		rec.ObservedAt = observedAt
		records = append(records, rec)
	})
	return records
}

func (e *Extractor) parseAnchor(anchor *goquery.Selection, href string) (monitor.Record, error) {
	href = strings.TrimSpace(href)
	params := queryParams(rawQuery(href))

	id := strings.TrimSpace(params[paramID])
	if id == "" {
		return monitor.Record{}, errMissingID
	}

	entity := params[paramEntity]
	if entity == "" {
		entity = monitor.UnknownEntity
	}

	title := params[paramTitle]
	if title == "" {
		title = firstText(anchor, "h2", "h3")
	}
	if title == "" {
		title = monitor.NoTitle
	}

	timestamp := firstText(anchor, timestampSelector)
	if timestamp == "" {
		timestamp = monitor.DefaultTimestamp
	}

	return monitor.Record{
		ID:               id,
		Entity:           entity,
		Title:            title,
		TimestampDisplay: timestamp,
		URL:              e.resolve(href),
	}, nil
}

// resolve returns absolute links unchanged and anchors relative ones on the
// site's base origin. An href net/url rejects is appended to the base as is.
func (e *Extractor) resolve(href string) string {
	link, err := url.Parse(href)
	if err != nil {
		e.logger.Debug("unparseable href, joining to base", zap.String("href", href), zap.Error(err))
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			return href
		}
		return strings.TrimRight(e.base.String(), "/") + "/" + strings.TrimLeft(href, "/")
	}
	if link.IsAbs() {
		return link.String()
	}
	return e.base.ResolveReference(link).String()
}

// rawQuery returns the part of href between the first '?' and any fragment.
func rawQuery(href string) string {
	_, query, found := strings.Cut(href, "?")
	if !found {
		return ""
	}
	query, _, _ = strings.Cut(query, "#")
	return query
}

// queryParams decodes the first value of each query parameter.
func queryParams(query string) map[string]string {
	params := make(map[string]string)
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if _, dup := params[key]; dup {
			continue
		}
		params[key] = unescape(value)
	}
	return params
}

// unescape percent-decodes s. Invalid escapes are kept literally and '+' is
// not treated as a space, so ids match those recorded by earlier releases.
func unescape(s string) string {
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// firstText returns the whitespace-normalized text of the first descendant
// matching any selector, tried in order.
func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		node := sel.Find(s).First()
		if node.Length() == 0 {
			continue
		}
		if text := strings.Join(strings.Fields(node.Text()), " "); text != "" {
			return text
		}
	}
	return ""
}
