package database

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jgoulah/linkyscraper/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usagePoint = "12345678901234"

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(started time.Time) *models.FetchRun {
	return &models.FetchRun{
		UsagePointID: usagePoint,
		StartedAt:    started,
		FinishedAt:   started.Add(3 * time.Second),
		Points:       3,
		FirstPoint:   time.Date(2023, 9, 21, 0, 0, 0, 0, time.UTC),
		LastPoint:    time.Date(2024, 6, 14, 23, 0, 0, 0, time.UTC),
		LastSum:      16500,
		Windows: []models.WindowAttempt{
			{
				Kind:    models.WindowLoadCurve,
				Window:  models.FetchWindow{From: time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC), To: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)},
				Outcome: models.OutcomeOK,
				Points:  2,
			},
			{
				Kind:    models.WindowDaily,
				Window:  models.FetchWindow{From: time.Date(2023, 9, 20, 0, 0, 0, 0, time.UTC), To: time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC)},
				Outcome: models.OutcomeEndOfHistory,
				Error:   "no measure found for this usage point",
			},
		},
	}
}

func TestRunRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	run := sampleRun(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, db.InsertRun(ctx, run))
	assert.NotEmpty(t, run.ID)

	runs, err := db.ListRuns(ctx, usagePoint, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, 3, got.Points)
	assert.Equal(t, 16500.0, got.LastSum)
	assert.True(t, got.StartedAt.Equal(run.StartedAt))
	assert.True(t, got.LastPoint.Equal(run.LastPoint))
	assert.True(t, got.FirstDay.IsZero())
	assert.False(t, got.Published)

	windows, err := db.ListWindows(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, models.WindowLoadCurve, windows[0].Kind)
	assert.Equal(t, models.OutcomeEndOfHistory, windows[1].Outcome)
	assert.Equal(t, "no measure found for this usage point", windows[1].Error)
	assert.True(t, windows[1].Window.From.Equal(run.Windows[1].Window.From))
}

func TestListRunsOrderAndLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.InsertRun(ctx, sampleRun(base.AddDate(0, 0, i))))
	}
	other := sampleRun(base)
	other.UsagePointID = "99999999999999"
	require.NoError(t, db.InsertRun(ctx, other))

	runs, err := db.ListRuns(ctx, usagePoint, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))

	all, err := db.ListRuns(ctx, usagePoint, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLastPublishedRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	last, err := db.LastPublishedRun(ctx, usagePoint)
	require.NoError(t, err)
	assert.Nil(t, last)

	older := sampleRun(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	older.LastPoint = time.Date(2024, 4, 30, 23, 0, 0, 0, time.UTC)
	newer := sampleRun(time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC))
	empty := sampleRun(time.Date(2024, 6, 16, 8, 0, 0, 0, time.UTC))
	empty.Points = 0
	empty.Published = true

	for _, r := range []*models.FetchRun{older, newer, empty} {
		require.NoError(t, db.InsertRun(ctx, r))
	}

	last, err = db.LastPublishedRun(ctx, usagePoint)
	require.NoError(t, err)
	assert.Nil(t, last, "unpublished runs and runs without points are ignored")

	require.NoError(t, db.MarkPublished(ctx, older.ID))
	require.NoError(t, db.MarkPublished(ctx, newer.ID))

	last, err = db.LastPublishedRun(ctx, usagePoint)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, newer.ID, last.ID)
	assert.True(t, last.Published)
}

func TestMarkPublishedUnknownRun(t *testing.T) {
	db := openTestDB(t)
	err := db.MarkPublished(context.Background(), "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestInsertRunRollsBackOnWindowError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fetch_runs")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fetch_windows")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	db := NewWithConn(conn)
	run := sampleRun(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	run.ID = "run-1"

	err = db.InsertRun(context.Background(), run)
	assert.ErrorContains(t, err, "inserting window 0")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRunsQueryError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM fetch_runs WHERE usage_point_id = ?")).
		WithArgs(usagePoint, 5).
		WillReturnError(errors.New("locked"))

	_, err = NewWithConn(conn).ListRuns(context.Background(), usagePoint, 5)
	assert.ErrorContains(t, err, "querying runs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRunRejectsBadTimestamp(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	rows := sqlmock.NewRows([]string{"id", "usage_point_id", "started_at", "finished_at", "first_day", "points", "first_point", "last_point", "last_sum", "published"}).
		AddRow("r1", usagePoint, "yesterday", "2024-06-15T12:00:00Z", nil, 1, nil, nil, 0.0, 0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM fetch_runs")).WillReturnRows(rows)

	_, err = NewWithConn(conn).ListRuns(context.Background(), usagePoint, 0)
	assert.ErrorContains(t, err, `parsing time "yesterday"`)
}
