package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/awwvision/internal/scrape"
)

func TestRecordRunInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)

	start := time.Unix(1700000000, 0).UTC()
	report := scrape.Report{
		RunID:      "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Entries:    make([]scrape.EntryResult, 3),
		Counts: map[scrape.Outcome]int{
			scrape.OutcomeStored:         1,
			scrape.OutcomeAlreadyStored:  1,
			scrape.OutcomeDownloadFailed: 1,
		},
	}

	mock.ExpectExec("INSERT INTO scrape_runs").
		WithArgs(
			"run-1",
			start,
			start.Add(2*time.Second),
			3,
			1,
			1,
			1,
			[]byte(`{"already_stored":1,"download_failed":1,"stored":1}`),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordRun(context.Background(), report))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunPropagatesExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "runs")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(errors.New("connection reset"))

	err = store.RecordRun(context.Background(), scrape.Report{RunID: "run-1"})
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())

	require.Error(t, store.RecordRun(context.Background(), scrape.Report{}))
}

func TestRecentRunsScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)

	start := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{
		"id", "started_at", "finished_at", "entries", "stored", "already_stored", "failed", "outcomes",
	}).
		AddRow("run-2", start.Add(time.Hour), start.Add(time.Hour+time.Second), 2, 2, 0, 0, []byte(`{"stored":2}`)).
		AddRow("run-1", start, start.Add(time.Second), 1, 0, 1, 0, []byte(nil))

	mock.ExpectQuery("SELECT id, started_at").WithArgs(5).WillReturnRows(rows)

	runs, err := store.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-2", runs[0].ID)
	require.Equal(t, map[scrape.Outcome]int{scrape.OutcomeStored: 2}, runs[0].Counts)
	require.Equal(t, 1, runs[1].AlreadyStored)
	require.Nil(t, runs[1].Counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentRunsDefaultLimit(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id").WithArgs(20).WillReturnError(errors.New("boom"))

	_, err = store.RecentRuns(context.Background(), 0)
	require.ErrorContains(t, err, "boom")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRunStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRunStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRunStoreWithPool(mock, "runs; DROP TABLE x")
	require.Error(t, err)

	_, err = NewRunStore(context.Background(), RunStoreConfig{})
	require.Error(t, err)
}
