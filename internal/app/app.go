// Package app builds the long-lived services for awwvision and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/awwvision/internal/api"
	"github.com/JakeFAU/awwvision/internal/clock/system"
	"github.com/JakeFAU/awwvision/internal/config"
	collyfetcher "github.com/JakeFAU/awwvision/internal/fetcher/colly"
	"github.com/JakeFAU/awwvision/internal/feed/reddit"
	"github.com/JakeFAU/awwvision/internal/id/uuid"
	visionlabeler "github.com/JakeFAU/awwvision/internal/labeler/vision"
	memorypublisher "github.com/JakeFAU/awwvision/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/awwvision/internal/publisher/pubsub"
	"github.com/JakeFAU/awwvision/internal/scrape"
	gcsstorage "github.com/JakeFAU/awwvision/internal/storage/gcs"
	localstorage "github.com/JakeFAU/awwvision/internal/storage/local"
	memorystorage "github.com/JakeFAU/awwvision/internal/storage/memory"
	pgstore "github.com/JakeFAU/awwvision/internal/storage/postgres"
)

const localImagesPath = "/images"

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	storageClient *storage.Client
	pubsub        *gcppublisher.Publisher
	runStore      *pgstore.RunStore

	store     scrape.ObjectStore
	images    scrape.ObjectReader
	publisher scrape.Publisher
	pipeline  *scrape.Pipeline
	apiServer *api.Server
}

// New creates the application's dependencies. On error, anything already opened is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		if closeErr := a.Close(ctx); closeErr != nil {
			logger.Warn("cleanup after failed build", zap.Error(closeErr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	a.logger.Info("building application dependencies",
		zap.String("storage_backend", a.cfg.Storage.Backend),
		zap.String("feed_url", a.cfg.Feed.URL),
	)

	if err := a.setupStorage(ctx); err != nil {
		return err
	}

	labeler, err := a.setupLabeler(ctx)
	if err != nil {
		return err
	}

	if err := a.setupPublisher(ctx); err != nil {
		return err
	}

	var recorder scrape.RunRecorder
	var history scrape.RunHistory
	if err := a.setupDatabase(ctx); err != nil {
		return err
	}
	if a.runStore != nil {
		recorder = a.runStore
		history = a.runStore
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    a.cfg.Feed.UserAgent,
		Timeout:      a.cfg.FeedTimeout(),
		MaxBodyBytes: a.cfg.Feed.MaxBodyBytes,
	})
	feed := reddit.New(fetcher, reddit.Config{
		URL:       a.cfg.Feed.URL,
		UserAgent: a.cfg.Feed.UserAgent,
	}, a.logger.Named("feed"))

	a.pipeline = scrape.New(
		feed,
		fetcher,
		a.store,
		labeler,
		a.publisher,
		recorder,
		system.New(),
		uuid.NewUUIDGenerator(),
		a.logger.Named("pipeline"),
	)

	a.apiServer = api.NewServer(api.Deps{
		Scraper: a.pipeline,
		Store:   a.store,
		Images:  a.images,
		History: history,
	}, a.logger.Named("api"))
	return nil
}

func (a *App) googleOptions() []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case a.cfg.GCP.DisableAuth:
		opts = append(opts, option.WithoutAuthentication())
	case a.cfg.GCP.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(a.cfg.GCP.CredentialsJSON)))
	}
	if a.cfg.GCP.ApplicationName != "" {
		opts = append(opts, option.WithUserAgent(a.cfg.GCP.ApplicationName))
	}
	return opts
}

func (a *App) setupStorage(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		var err error
		a.storageClient, err = storage.NewClient(ctx, a.googleOptions()...)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsstorage.New(a.storageClient, gcsstorage.Config{
			Bucket:        a.cfg.Storage.GCSBucket,
			PublicBaseURL: a.cfg.Storage.PublicBaseURL,
			PageSize:      a.cfg.Storage.PageSize,
		}, a.logger.Named("gcs"))
		if err != nil {
			return fmt.Errorf("gcs object store init failed: %w", err)
		}
		a.store = store
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{
			BaseDir:       a.cfg.Storage.LocalDir,
			PublicBaseURL: a.localPublicBaseURL(),
		})
		if err != nil {
			return fmt.Errorf("local object store init failed: %w", err)
		}
		a.store = store
		a.images = store
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.LocalDir))
	default:
		store := memorystorage.NewObjectStore(a.localPublicBaseURL(), a.cfg.Storage.PageSize)
		a.store = store
		a.images = store
		a.logger.Info("using in-memory storage backend")
	}
	return nil
}

func (a *App) localPublicBaseURL() string {
	if base := strings.TrimRight(a.cfg.Storage.PublicBaseURL, "/"); base != "" {
		return base
	}
	return localImagesPath
}

func (a *App) setupLabeler(ctx context.Context) (scrape.LabelingService, error) {
	opts := a.googleOptions()
	if a.cfg.Vision.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.cfg.Vision.Endpoint))
	}
	labeler, err := visionlabeler.NewClient(ctx, a.logger.Named("vision"), opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client init failed: %w", err)
	}
	return labeler, nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	var err error
	a.pubsub, err = gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName, a.logger.Named("pubsub"), a.googleOptions()...)
	if err != nil {
		return err
	}
	a.publisher = a.pubsub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("No DSN specified for database, skipping run history")
		return nil
	}
	var err error
	a.runStore, err = pgstore.NewRunStore(ctx, pgstore.RunStoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	a.logger.Info("run store initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

// Pipeline returns the configured scrape pipeline.
func (a *App) Pipeline() *scrape.Pipeline {
	return a.pipeline
}

// Scrape runs one pipeline pass.
func (a *App) Scrape(ctx context.Context) (scrape.Report, error) {
	return a.pipeline.Scrape(ctx)
}

// Handler returns the HTTP handler serving the gallery and API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Serve runs the HTTP server until ctx is canceled, then shuts it down gracefully.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", a.cfg.Server.Port, err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close releases clients in reverse order of construction.
func (a *App) Close(_ context.Context) error {
	var errs []error
	if a.runStore != nil {
		a.runStore.Close()
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gcs client: %w", err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return errors.Join(errs...)
}
