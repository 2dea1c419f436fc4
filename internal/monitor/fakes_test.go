package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

type fakeFetcher struct {
	mu       sync.Mutex
	body     []byte
	status   int
	err      error
	requests []FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, request FetchRequest) (FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request)
	if f.err != nil {
		return FetchResponse{}, f.err
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return FetchResponse{URL: request.URL, StatusCode: status, Body: f.body}, nil
}

// fakeExtractor ignores the markup and returns records built from ids.
type fakeExtractor struct {
	ids []string
}

func (f *fakeExtractor) Extract(_ []byte) []Record {
	out := make([]Record, 0, len(f.ids))
	for _, id := range f.ids {
		out = append(out, Record{
			ID:               id,
			Entity:           "Company " + id,
			Title:            "Title " + id,
			TimestampDisplay: DefaultTimestamp,
			URL:              "https://www.stockwatch.live/dashboard?newsId=" + id,
		})
	}
	return out
}

type recordingNotifier struct {
	mu        sync.Mutex
	delivered bool
	failIDs   map[string]bool
	calls     []string
	onNotify  func(Record)
}

func (n *recordingNotifier) Notify(_ context.Context, record Record) bool {
	n.mu.Lock()
	n.calls = append(n.calls, record.ID)
	hook := n.onNotify
	n.mu.Unlock()
	if hook != nil {
		hook(record)
	}
	if n.failIDs[record.ID] {
		return false
	}
	return n.delivered
}

func (n *recordingNotifier) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

type memStore struct {
	mu      sync.Mutex
	initial *SeenSet
	saved   []*SeenSet
	err     error
}

func (s *memStore) Load(context.Context) *SeenSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initial == nil {
		return NewSeenSet()
	}
	return s.initial.Clone()
}

func (s *memStore) Save(_ context.Context, seen *SeenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, seen.Clone())
	return s.err
}

func (s *memStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type fakeIDGen struct {
	next int
	err  error
}

func (g *fakeIDGen) NewID() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.next++
	return fmt.Sprintf("cycle-id-%d", g.next), nil
}

type countingPacer struct {
	waits int
	err   error
}

func (p *countingPacer) Wait(context.Context) error {
	p.waits++
	return p.err
}

var errBoom = errors.New("boom")
