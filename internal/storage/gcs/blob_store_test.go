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
)

func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client := newTestClient(t, http.NotFoundHandler())
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestObjectNameAppliesPrefix(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.NotFoundHandler())
	store, err := New(client, Config{Bucket: "catalog", Prefix: "/crawls/"})
	require.NoError(t, err)
	require.Equal(t, "crawls/reports/run-1/changeset.md", store.ObjectName("reports/run-1/changeset.md"))

	bare, err := New(client, Config{Bucket: "catalog"})
	require.NoError(t, err)
	require.Equal(t, "archive/run-1/parts.json", bare.ObjectName("/archive/run-1/parts.json"))
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		name string
		body string
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/catalog/o")
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		name = r.URL.Query().Get("name")
		body = string(raw)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"name":"crawls/diagnostics/run-1/root.html","bucket":"catalog"}`)
	})
	store, err := New(newTestClient(t, handler), Config{Bucket: "catalog", Prefix: "crawls"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "diagnostics/run-1/root.html", "text/html", strings.NewReader("<html></html>"))
	require.NoError(t, err)
	require.Equal(t, "gs://catalog/crawls/diagnostics/run-1/root.html", uri)

	mu.Lock()
	defer mu.Unlock()
	if name != "" {
		require.Equal(t, "crawls/diagnostics/run-1/root.html", name)
	}
	require.Contains(t, body, "<html></html>")

	_, err = store.PutObject(context.Background(), " ", "text/html", strings.NewReader(""))
	require.Error(t, err)
}
