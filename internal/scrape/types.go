package scrape

import "time"

// LabelMetadataKey is the object metadata key holding an image's label.
const LabelMetadataKey = "label"

// ImageContentType is the MIME type every stored image is uploaded with.
const ImageContentType = "image/jpeg"

// FeedEntry is one feed item that may reference an image.
type FeedEntry struct {
	// SourceURL is the URL the image bytes are downloaded from.
	SourceURL string `json:"source_url"`
	// Name is the object name derived from the first preview image ID.
	Name string `json:"name"`
	// PreviewAvailable reports whether the feed carried preview image data.
	PreviewAvailable bool `json:"preview_available"`
}

// Eligible reports whether the entry carries enough data to be processed.
func (e FeedEntry) Eligible() bool {
	return e.PreviewAvailable && e.SourceURL != "" && e.Name != ""
}

// StoredObject is a named blob in the object store.
type StoredObject struct {
	Name      string `json:"name"`
	Label     string `json:"label,omitempty"`
	PublicURL string `json:"public_url"`
}

// Outcome is the terminal state of a single entry in a pipeline pass.
type Outcome string

// Terminal states; only OutcomeStored leaves anything persisted.
const (
	OutcomeSkippedNoPreview Outcome = "skipped_no_preview"
	OutcomeDownloadFailed   Outcome = "download_failed"
	OutcomeAlreadyStored    Outcome = "already_stored"
	OutcomeLabelFailed      Outcome = "label_failed"
	OutcomeNoLabel          Outcome = "no_label"
	OutcomeStored           Outcome = "stored"
	OutcomeUploadFailed     Outcome = "upload_failed"
)

// Outcomes lists every terminal state in pipeline order.
var Outcomes = []Outcome{
	OutcomeSkippedNoPreview,
	OutcomeDownloadFailed,
	OutcomeAlreadyStored,
	OutcomeLabelFailed,
	OutcomeNoLabel,
	OutcomeStored,
	OutcomeUploadFailed,
}

// Failed reports whether the outcome is one of the per-entry error states.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeDownloadFailed, OutcomeLabelFailed, OutcomeUploadFailed:
		return true
	default:
		return false
	}
}

// EntryResult records what happened to one entry.
type EntryResult struct {
	Name      string  `json:"name"`
	SourceURL string  `json:"source_url"`
	Outcome   Outcome `json:"outcome"`
	Label     string  `json:"label,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Report summarizes a pipeline pass.
type Report struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Entries    []EntryResult   `json:"entries"`
	Counts     map[Outcome]int `json:"counts"`
}

// Count returns the number of entries that ended in outcome o.
func (r Report) Count(o Outcome) int {
	return r.Counts[o]
}

// FailedCount returns the number of entries that ended in an error state.
func (r Report) FailedCount() int {
	total := 0
	for o, n := range r.Counts {
		if o.Failed() {
			total += n
		}
	}
	return total
}

// Duration returns the wall time of the pass.
func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// StoredEvent is published after an image has been uploaded.
type StoredEvent struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	SourceURL string    `json:"source_url"`
	StoredAt  time.Time `json:"stored_at"`
}

// RunSummary is the persisted digest of a Report.
type RunSummary struct {
	ID            string          `json:"id"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	Entries       int             `json:"entries"`
	Stored        int             `json:"stored"`
	AlreadyStored int             `json:"already_stored"`
	Failed        int             `json:"failed"`
	Counts        map[Outcome]int `json:"counts"`
}

// Summary condenses the report into its persisted form.
func (r Report) Summary() RunSummary {
	counts := make(map[Outcome]int, len(r.Counts))
	for o, n := range r.Counts {
		counts[o] = n
	}
	return RunSummary{
		ID:            r.RunID,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		Entries:       len(r.Entries),
		Stored:        r.Count(OutcomeStored),
		AlreadyStored: r.Count(OutcomeAlreadyStored),
		Failed:        r.FailedCount(),
		Counts:        counts,
	}
}
