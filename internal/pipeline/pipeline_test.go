package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/parts-catalog-crawler/internal/classify"
	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/parts-catalog-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/parts-catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/parts-catalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/parts-catalog-crawler/internal/progress"
	publishermemory "github.com/JakeFAU/parts-catalog-crawler/internal/publisher/memory"
	"github.com/JakeFAU/parts-catalog-crawler/internal/storage/memory"
)

const menuPage = `<html><body>
<ul class="groupmenu by-parts">
  <li class="level0">
    <a class="menu-link" href="/acme"><span>Acme</span></a>
    <ul class="level1">
      <li class="level1">
        <a class="menu-link" href="/acme/phones"><span>Phones</span></a>
        <div class="level2"><a class="groupdrop-title" href="/acme/x1"><span>X1</span></a></div>
        <div class="level2"><a class="groupdrop-title" href="/acme/x2"><span>X2</span></a></div>
        <div class="level2"><a class="groupdrop-title" href="/acme/gone"><span>Gone</span></a></div>
      </li>
    </ul>
  </li>
</ul>
</body></html>`

func tile(name, stock string) string {
	return fmt.Sprintf(`<li class="product-item"><div class="product-item-info"><a class="product-item-link">%s</a><span class="stock">%s</span></div></li>`, name, stock)
}

func catalogServer(t *testing.T, root string) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/":        root,
		"/acme/x1": `<html><body><ol class="product-items">` + tile("X1 Battery", "In stock") + tile("X1 Silicone Case", "In stock") + `</ol></body></html>`,
		"/acme/x2": `<html><body><ol class="product-items">` + tile("X2 LCD Screen", "Out of stock") + `</ol></body></html>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) last() progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events[len(e.events)-1]
}

type harness struct {
	store     *memory.Store
	blobs     *memory.BlobStore
	publisher *publishermemory.Publisher
	emitter   *recordingEmitter
	pipeline  *Pipeline
}

func newHarness(t *testing.T, rootURL string, store *memory.Store, driver crawler.Driver) *harness {
	t.Helper()
	if store == nil {
		store = memory.NewStore()
	}
	h := &harness{
		store:     store,
		blobs:     memory.NewBlobStore(),
		publisher: publishermemory.New(),
		emitter:   &recordingEmitter{},
	}
	clock := fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	p, err := New(Config{
		RootURL:         rootURL,
		Topic:           "parts-changes",
		ArchivePrevious: true,
		Pool:            dispatcher.Config{Concurrency: 2},
	}, Deps{
		Driver:     driver,
		Store:      store,
		Blobs:      h.blobs,
		Publisher:  h.publisher,
		Emitter:    h.emitter,
		Clock:      clock,
		IDs:        &sequenceIDs{},
		Hasher:     sha256.New(),
		Classifier: classify.New(classify.DefaultRules(), clock),
	}, zap.NewNop())
	require.NoError(t, err)
	h.pipeline = p
	return h
}

func TestRunFirstCrawl(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t, menuPage)
	h := newHarness(t, srv.URL+"/", nil, collyfetcher.New(collyfetcher.Config{}))

	sum, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", sum.RunID)
	assert.Equal(t, 1, sum.Brands)
	assert.Equal(t, 1, sum.Categories)
	assert.Equal(t, 3, sum.Models)
	assert.Equal(t, 3, sum.Tasks)
	assert.Equal(t, 2, sum.Completed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 3, sum.Raw)
	assert.Equal(t, 1, sum.Rejected[classify.Accessory])
	assert.Equal(t, 2, sum.Parts)
	assert.Equal(t, 2, sum.Snapshot)
	assert.Equal(t, 2, sum.Added)
	assert.Zero(t, sum.Removed)
	assert.Len(t, sum.SnapshotDigest, 64)
	assert.Empty(t, sum.ArchiveURI)

	nav, err := h.store.LoadNavigation(context.Background())
	require.NoError(t, err)
	require.Len(t, nav.Models, 3)

	parts, err := h.store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "X1 Battery", parts[0].Name)
	assert.True(t, parts[0].InStock)
	assert.Equal(t, "X2 LCD Screen", parts[1].Name)
	assert.False(t, parts[1].InStock)

	cs, err := h.store.LoadChangeset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", cs.RunID)
	assert.Len(t, cs.Added, 2)

	assert.Equal(t, "memory://reports/run-1/changeset.md", sum.ReportURI)
	obj, ok := h.blobs.Get("reports/run-1/changeset.md")
	require.True(t, ok)
	assert.Equal(t, "text/markdown; charset=utf-8", obj.ContentType)
	assert.Contains(t, string(obj.Data), "X1 Battery")

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "parts-changes", msgs[0].Topic)
	note, ok := msgs[0].Payload.(Notification)
	require.True(t, ok)
	assert.Equal(t, 2, note.Added)
	assert.Equal(t, sum.SnapshotDigest, note.SnapshotSHA256)
	assert.Equal(t, "memory-1", sum.MessageID)

	done := h.emitter.last()
	assert.Equal(t, progress.StageRunDone, done.Stage)
	assert.Equal(t, 2, done.Parts)
	assert.Empty(t, done.Note)
}

func TestRunReconcilesAgainstPreviousSnapshot(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t, menuPage)
	store := memory.NewStore()
	first := newHarness(t, srv.URL+"/", store, collyfetcher.New(collyfetcher.Config{}))
	_, err := first.pipeline.Run(context.Background())
	require.NoError(t, err)

	parts, err := store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	parts[0].InStock = false
	stale := crawler.Part{Brand: "Acme", ModelCategory: "Phones", Model: "X0", Name: "X0 Battery", Type: "Battery"}
	require.NoError(t, store.SaveSnapshot(context.Background(), append(parts, stale)))

	second := newHarness(t, srv.URL+"/", store, collyfetcher.New(collyfetcher.Config{}))
	sum, err := second.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Added)
	assert.Equal(t, 1, sum.Removed)
	assert.Equal(t, 1, sum.Updated)
	assert.Equal(t, 1, sum.Unchanged)
	assert.Equal(t, 3, sum.Snapshot)

	assert.Equal(t, "memory://archive/run-1/parts.json", sum.ArchiveURI)
	archived, ok := second.blobs.Get("archive/run-1/parts.json")
	require.True(t, ok)
	assert.Contains(t, string(archived.Data), "X0 Battery")

	merged, err := store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, merged, 3)
}

func TestRunNavigationNotFound(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t, `<html><body><div class="maintenance">Back soon</div></body></html>`)
	h := newHarness(t, srv.URL+"/", nil, collyfetcher.New(collyfetcher.Config{}))

	sum, err := h.pipeline.Run(context.Background())
	var navErr *crawler.NavigationNotFoundError
	require.ErrorAs(t, err, &navErr)

	assert.Equal(t, "memory://diagnostics/run-1/root.html", sum.DiagnosticURI)
	obj, ok := h.blobs.Get("diagnostics/run-1/root.html")
	require.True(t, ok)
	assert.Contains(t, string(obj.Data), "Back soon")

	_, err = h.store.LoadNavigation(context.Background())
	require.ErrorIs(t, err, crawler.ErrNotFound)
	_, err = h.store.LoadSnapshot(context.Background())
	require.ErrorIs(t, err, crawler.ErrNotFound)
	assert.Empty(t, h.publisher.Messages())

	done := h.emitter.last()
	assert.Equal(t, progress.StageRunDone, done.Stage)
	assert.Contains(t, done.Note, "navigation not found")
}

func TestRunRootFetchFailure(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t, menuPage)
	h := newHarness(t, srv.URL+"/missing", nil, collyfetcher.New(collyfetcher.Config{}))

	_, err := h.pipeline.Run(context.Background())
	require.Error(t, err)
	var navErr *crawler.NavigationNotFoundError
	require.False(t, errors.As(err, &navErr))
	var setupErr *crawler.SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Equal(t, "root page", setupErr.Component)
	assert.Empty(t, h.blobs.Paths())
}

type failingDriver struct{}

func (failingDriver) NewSession(context.Context) (crawler.Session, error) {
	return nil, errors.New("browser gone")
}

func (failingDriver) Close() error { return nil }

func TestRunSessionFailureIsSetupError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "https://parts.example.com/", nil, failingDriver{})
	_, err := h.pipeline.Run(context.Background())
	var setupErr *crawler.SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Equal(t, "session", setupErr.Component)
}

// blockingDriver serves the menu, then blocks every model page until the
// context is cancelled.
type blockingDriver struct {
	cancel context.CancelFunc
}

func (d blockingDriver) NewSession(context.Context) (crawler.Session, error) {
	return blockingSession(d), nil
}

func (blockingDriver) Close() error { return nil }

type blockingSession struct {
	cancel context.CancelFunc
}

func (s blockingSession) Fetch(ctx context.Context, url string, _ crawler.WaitCondition) (crawler.Document, error) {
	if !strings.Contains(url, "/acme/") {
		return crawler.Document{URL: url, HTML: []byte(menuPage)}, nil
	}
	s.cancel()
	<-ctx.Done()
	return crawler.Document{}, ctx.Err()
}

func (blockingSession) Close() error { return nil }

func TestRunCancelledSkipsWrites(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, "https://parts.example.com/", nil, blockingDriver{cancel: cancel})

	_, err := h.pipeline.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, err = h.store.LoadSnapshot(context.Background())
	require.ErrorIs(t, err, crawler.ErrNotFound)
	_, err = h.store.LoadChangeset(context.Background())
	require.ErrorIs(t, err, crawler.ErrNotFound)
	assert.Empty(t, h.publisher.Messages())
	assert.Empty(t, h.blobs.Paths())
}

func TestNewValidatesDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Config{RootURL: "https://x"}, Deps{}, nil)
	require.Error(t, err)
	_, err = New(Config{}, Deps{
		Driver: failingDriver{}, Store: memory.NewStore(), Clock: fixedClock{}, IDs: &sequenceIDs{},
	}, nil)
	require.Error(t, err)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	args := m.Called(ctx, topic, payload)
	return args.String(0), args.Error(1)
}

func TestRunPublishFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	srv := catalogServer(t, menuPage)
	h := newHarness(t, srv.URL+"/", nil, collyfetcher.New(collyfetcher.Config{}))
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, "parts-changes", mock.MatchedBy(func(n Notification) bool {
		return n.RunID == "run-1" && n.Added == 2
	})).Return("", errors.New("topic not found")).Once()
	h.pipeline.deps.Publisher = pub

	sum, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sum.MessageID)
	assert.Equal(t, 2, sum.Snapshot)
	pub.AssertExpectations(t)
}
