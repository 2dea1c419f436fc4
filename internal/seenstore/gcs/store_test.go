package gcs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/stockwatch-monitor/internal/monitor"
)

const (
	testBucket = "test-bucket"
	testObject = "seen_updates.json"
)

// fakeGCS answers object downloads with body (or 404 when nil) and records
// uploads. Paths are matched loosely so both XML and JSON read paths work.
type fakeGCS struct {
	mu       sync.Mutex
	body     []byte
	status   int
	uploads  []string
	uploadQs []string
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	switch {
	case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/upload/"):
		body, _ := io.ReadAll(r.Body)
		f.uploads = append(f.uploads, string(body))
		f.uploadQs = append(f.uploadQs, r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"bucket":"`+testBucket+`","name":"`+testObject+`","generation":"1"}`)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, testObject):
		if f.body == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("X-Goog-Generation", "1")
		w.Header().Set("X-Goog-Metageneration", "1")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(f.body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestStore(t *testing.T, fake *fakeGCS) *Store {
	t.Helper()

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	s, err := New(client, Config{Bucket: testBucket, Object: testObject}, nil)
	require.NoError(t, err)
	return s
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"}, nil)
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{}, nil)
	require.Error(t, err)

	s, err := New(client, Config{Bucket: "b"}, nil)
	require.NoError(t, err)
	require.Equal(t, "gs://b/seen_updates.json", s.URI())
}

func TestLoadMissingObjectIsEmpty(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &fakeGCS{})
	seen, err := s.Read(context.Background())
	require.NoError(t, err)
	require.Zero(t, seen.Len())
}

func TestLoadExistingObject(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &fakeGCS{body: []byte(`["2","1"]`)})
	require.Equal(t, []string{"1", "2"}, s.Load(context.Background()).IDs())
	require.Equal(t, 2, s.Count(context.Background()))
}

func TestLoadCorruptObjectDegrades(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &fakeGCS{body: []byte(`oops`)})
	_, err := s.Read(context.Background())
	require.Error(t, err)
	require.Zero(t, s.Load(context.Background()).Len())
}

func TestSaveUploadsDocument(t *testing.T) {
	t.Parallel()

	fake := &fakeGCS{}
	s := newTestStore(t, fake)
	require.NoError(t, s.Save(context.Background(), monitor.NewSeenSet("b", "a")))

	require.Len(t, fake.uploads, 1)
	assert.Contains(t, fake.uploads[0], "[\n  \"a\",\n  \"b\"\n]")
	assert.Contains(t, fake.uploadQs[0], "uploadType=multipart")
	assert.Contains(t, fake.uploadQs[0], "name="+testObject)
}

func TestSaveServerError(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &fakeGCS{status: http.StatusForbidden})
	require.Error(t, s.Save(context.Background(), monitor.NewSeenSet("1")))
}
