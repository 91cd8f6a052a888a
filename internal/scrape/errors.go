package scrape

import "errors"

// Error taxonomy. Adapters wrap these so callers can match with errors.Is.
var (
	// ErrFetch means the feed was unreachable or undecodable; it aborts a run.
	ErrFetch = errors.New("feed fetch failed")
	// ErrDownload means an entry's image bytes could not be downloaded.
	ErrDownload = errors.New("image download failed")
	// ErrLabel means the labeling service failed or returned an error payload.
	ErrLabel = errors.New("image labeling failed")
	// ErrUpload means the object store rejected or failed a write.
	ErrUpload = errors.New("object upload failed")
	// ErrList means the object store listing failed.
	ErrList = errors.New("object listing failed")
	// ErrNotFound means a named object is not in the store.
	ErrNotFound = errors.New("object not found")
)
