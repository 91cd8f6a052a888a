package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/awwvision/internal/clock/system"
	"github.com/JakeFAU/awwvision/internal/id/uuid"
	"github.com/JakeFAU/awwvision/internal/metrics"
)

// Pipeline runs the fetch, filter, download, dedupe, label and upload steps.
// Entries are processed one at a time; a failing entry never aborts the pass.
type Pipeline struct {
	feed       FeedClient
	downloader Downloader
	store      ObjectStore
	labeler    LabelingService
	publisher  Publisher
	recorder   RunRecorder
	clock      Clock
	ids        IDGenerator
	logger     *zap.Logger
}

// New constructs a Pipeline. publisher and recorder are optional.
func New(
	feed FeedClient,
	downloader Downloader,
	store ObjectStore,
	labeler LabelingService,
	publisher Publisher,
	recorder RunRecorder,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
) *Pipeline {
	if clock == nil {
		clock = system.New()
	}
	if ids == nil {
		ids = uuid.NewUUIDGenerator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		feed:       feed,
		downloader: downloader,
		store:      store,
		labeler:    labeler,
		publisher:  publisher,
		recorder:   recorder,
		clock:      clock,
		ids:        ids,
		logger:     logger,
	}
}

// Scrape fetches the current feed and runs one pass over it. Only a feed
// failure is returned; per-entry failures are reported in the Report.
func (p *Pipeline) Scrape(ctx context.Context) (Report, error) {
	if p.feed == nil {
		return Report{}, fmt.Errorf("%w: no feed client configured", ErrFetch)
	}
	entries, err := p.feed.Fetch(ctx)
	if err != nil {
		metrics.ObserveRunAborted()
		p.logger.Error("feed fetch failed", zap.Error(err))
		if !errors.Is(err, ErrFetch) {
			err = fmt.Errorf("%w: %w", ErrFetch, err)
		}
		return Report{}, err
	}
	p.logger.Info("feed fetched", zap.Int("entries", len(entries)))
	return p.Run(ctx, entries), nil
}

// Run processes entries in order and returns a summary of the pass.
func (p *Pipeline) Run(ctx context.Context, entries []FeedEntry) Report {
	started := p.clock.Now()
	report := Report{
		RunID:     p.newRunID(started),
		StartedAt: started,
		Entries:   make([]EntryResult, 0, len(entries)),
		Counts:    make(map[Outcome]int, len(Outcomes)),
	}
	runLogger := p.logger.With(zap.String("run_id", report.RunID))

	for _, entry := range entries {
		result := p.processEntry(ctx, runLogger, report.RunID, entry)
		report.Entries = append(report.Entries, result)
		report.Counts[result.Outcome]++
		metrics.ObserveEntry(string(result.Outcome))
	}

	report.FinishedAt = p.clock.Now()
	metrics.ObserveRun(report.Duration())
	runLogger.Info("scrape run finished",
		zap.Int("entries", len(report.Entries)),
		zap.Int("stored", report.Count(OutcomeStored)),
		zap.Int("already_stored", report.Count(OutcomeAlreadyStored)),
		zap.Int("failed", report.FailedCount()),
		zap.Duration("duration", report.Duration()),
	)
	p.record(ctx, runLogger, report)
	return report
}

func (p *Pipeline) processEntry(ctx context.Context, logger *zap.Logger, runID string, entry FeedEntry) EntryResult {
	result := EntryResult{Name: entry.Name, SourceURL: entry.SourceURL}
	entryLogger := logger.With(zap.String("url", entry.SourceURL), zap.String("name", entry.Name))

	if !entry.Eligible() {
		entryLogger.Debug("entry has no preview image; skipping")
		result.Outcome = OutcomeSkippedNoPreview
		return result
	}

	raw, err := p.downloader.Download(ctx, entry.SourceURL)
	if err != nil {
		if !errors.Is(err, ErrDownload) {
			err = fmt.Errorf("%w: %w", ErrDownload, err)
		}
		entryLogger.Warn("issue in streaming image", zap.Error(err))
		return result.failed(OutcomeDownloadFailed, err)
	}

	if p.store.Exists(ctx, entry.Name) {
		entryLogger.Debug("image already stored; skipping")
		result.Outcome = OutcomeAlreadyStored
		return result
	}

	label, ok, err := p.labeler.LabelImage(ctx, raw)
	if err != nil {
		entryLogger.Error("issue with labeling image", zap.Error(err))
		return result.failed(OutcomeLabelFailed, err)
	}
	if !ok {
		entryLogger.Info("no label returned; image not stored")
		result.Outcome = OutcomeNoLabel
		return result
	}
	result.Label = label

	metadata := map[string]string{LabelMetadataKey: label}
	if err := p.store.Upload(ctx, entry.Name, bytes.NewReader(raw), ImageContentType, metadata); err != nil {
		entryLogger.Error("issue with uploading image", zap.String("label", label), zap.Error(err))
		return result.failed(OutcomeUploadFailed, err)
	}
	result.Outcome = OutcomeStored
	entryLogger.Info("image labeled and stored", zap.String("label", label))

	p.publish(ctx, entryLogger, StoredEvent{
		RunID:     runID,
		Name:      entry.Name,
		Label:     label,
		SourceURL: entry.SourceURL,
		StoredAt:  p.clock.Now(),
	})
	return result
}

func (r EntryResult) failed(outcome Outcome, err error) EntryResult {
	r.Outcome = outcome
	r.Error = err.Error()
	return r
}

func (p *Pipeline) publish(ctx context.Context, logger *zap.Logger, event StoredEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishStored(ctx, event); err != nil {
		logger.Warn("publish stored event failed", zap.Error(err))
	}
}

func (p *Pipeline) record(ctx context.Context, logger *zap.Logger, report Report) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordRun(ctx, report); err != nil {
		logger.Warn("record run failed", zap.Error(err))
	}
}

// newRunID falls back to an ID derived from the start time so the run can still be recorded.
func (p *Pipeline) newRunID(started time.Time) string {
	id, err := p.ids.NewID()
	if err != nil || id == "" {
		fallback := fmt.Sprintf("run-%d", started.UnixNano())
		p.logger.Warn("generate run id failed", zap.Error(err), zap.String("fallback_id", fallback))
		return fallback
	}
	return id
}
