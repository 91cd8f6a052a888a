package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/awwvision/internal/config"
	"github.com/JakeFAU/awwvision/internal/scrape"
)

type fakeApp struct {
	report    scrape.Report
	scrapeErr error
	serveErr  error

	scraped bool
	served  bool
	closed  bool
}

func (f *fakeApp) Scrape(context.Context) (scrape.Report, error) {
	f.scraped = true
	return f.report, f.scrapeErr
}

func (f *fakeApp) Serve(context.Context) error {
	f.served = true
	return f.serveErr
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

// withFakeApp swaps the application factory for the duration of the test.
func withFakeApp(t *testing.T, fake *fakeApp, factoryErr error) *config.Config {
	t.Helper()
	var captured config.Config
	original := newApp
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (App, error) {
		captured = cfg
		if factoryErr != nil {
			return nil, factoryErr
		}
		return fake, nil
	}
	t.Cleanup(func() { newApp = original })
	t.Setenv("VCAP_SERVICES", "")
	return &captured
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScrapeCommandPrintsCounts(t *testing.T) {
	fake := &fakeApp{report: scrape.Report{
		RunID: "run-1",
		Entries: []scrape.EntryResult{
			{Name: "img1.jpg", Outcome: scrape.OutcomeStored, Label: "dog"},
			{Name: "img2.jpg", Outcome: scrape.OutcomeAlreadyStored},
		},
		Counts: map[scrape.Outcome]int{scrape.OutcomeStored: 1, scrape.OutcomeAlreadyStored: 1},
	}}
	withFakeApp(t, fake, nil)

	out, err := execute(t, "scrape")
	require.NoError(t, err)
	assert.True(t, fake.scraped)
	assert.True(t, fake.closed)
	assert.Contains(t, out, "stored: 1")
	assert.Contains(t, out, "already_stored: 1")
	assert.NotContains(t, out, "upload_failed")
}

func TestScrapeCommandFailsOnFetchError(t *testing.T) {
	fake := &fakeApp{scrapeErr: fmt.Errorf("%w: boom", scrape.ErrFetch)}
	withFakeApp(t, fake, nil)

	_, err := execute(t, "scrape")
	require.Error(t, err)
	assert.ErrorIs(t, err, scrape.ErrFetch)
}

func TestServeCommandRunsServer(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake, nil)

	_, err := execute(t, "serve")
	require.NoError(t, err)
	assert.True(t, fake.served)
	assert.True(t, fake.closed)
}

func TestServeCommandIgnoresCancellation(t *testing.T) {
	fake := &fakeApp{serveErr: context.Canceled}
	withFakeApp(t, fake, nil)

	_, err := execute(t, "serve")
	require.NoError(t, err)
}

func TestRootCommandReportsFactoryError(t *testing.T) {
	withFakeApp(t, &fakeApp{}, errors.New("no bucket"))

	_, err := execute(t, "scrape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize application services")
}

func TestRootCommandMissingConfigFile(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake, nil)

	_, err := execute(t, "--config", "/nonexistent/awwvision.yaml", "scrape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
	assert.False(t, fake.scraped)
}

func TestRootCommandPassesEnvConfig(t *testing.T) {
	fake := &fakeApp{}
	cfg := withFakeApp(t, fake, nil)
	t.Setenv("AWWVISION_SERVER_PORT", "9191")

	_, err := execute(t, "scrape")
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestResolveAppWithoutApp(t *testing.T) {
	t.Parallel()

	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
