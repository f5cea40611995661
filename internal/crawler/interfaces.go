package crawler

import (
	"context"
	"io"
	"time"
)

// WaitCondition describes when a fetched page is considered settled.
type WaitCondition struct {
	// Selector must be present before the page is read; empty means "body".
	Selector string
	// Timeout bounds the whole fetch, navigation included.
	Timeout time.Duration
	// Settle is an extra pause after Selector appears, for late AJAX content.
	Settle time.Duration
}

// Document is a rendered page.
type Document struct {
	URL  string
	HTML []byte
}

// Driver launches page-fetch sessions (browser tabs or HTTP collectors).
type Driver interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// Session fetches pages sequentially. A session is owned by exactly one worker.
type Session interface {
	// Fetch navigates to url and waits for cond. When the wait condition does not
	// settle, the partially rendered Document is returned with ErrWaitTimeout.
	Fetch(ctx context.Context, url string, cond WaitCondition) (Document, error)
	Close() error
}

// NavigationStore persists the navigation entities, replacing prior data.
type NavigationStore interface {
	SaveNavigation(ctx context.Context, nav Navigation) error
	LoadNavigation(ctx context.Context) (Navigation, error)
}

// SnapshotStore persists the parts snapshot and the per-run changeset.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context) ([]Part, error)
	SaveSnapshot(ctx context.Context, parts []Part) error
	SaveChangeset(ctx context.Context, cs Changeset) error
	LoadChangeset(ctx context.Context) (Changeset, error)
}

// Store is the persistence sink used by a crawl run and by the read API.
type Store interface {
	NavigationStore
	SnapshotStore
	Close(ctx context.Context) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher produces a content digest.
type Hasher interface {
	Hash(data []byte) (string, error)
}
