package scrape

import (
	"context"
	"io"
	"time"
)

// FeedClient fetches the current feed snapshot.
type FeedClient interface {
	Fetch(ctx context.Context) ([]FeedEntry, error)
}

// Downloader retrieves raw bytes for a URL.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// ObjectStore is the bucket-like store images are written to.
type ObjectStore interface {
	// Exists never fails; a lookup error is reported as absent.
	Exists(ctx context.Context, name string) bool
	// Upload writes content with public-read access and the given metadata.
	Upload(ctx context.Context, name string, content io.Reader, contentType string, metadata map[string]string) error
	// ListAll returns every stored object, following page tokens to the end.
	ListAll(ctx context.Context) ([]StoredObject, error)
}

// ObjectReader is implemented by stores that can serve their own bytes (local, memory).
type ObjectReader interface {
	Open(ctx context.Context, name string) (io.ReadCloser, string, error)
}

// LabelingService returns a single best-effort label for an image.
// ok is false when the service could not confidently label the image.
type LabelingService interface {
	LabelImage(ctx context.Context, data []byte) (label string, ok bool, err error)
}

// Publisher announces newly stored images.
type Publisher interface {
	PublishStored(ctx context.Context, event StoredEvent) error
}

// RunRecorder persists a summary of each pipeline pass.
type RunRecorder interface {
	RecordRun(ctx context.Context, report Report) error
}

// RunHistory lists recently recorded runs, newest first.
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
