package linky

import (
	"context"
	"time"

	"github.com/jgoulah/linkyscraper/internal/logger"
	"github.com/jgoulah/linkyscraper/pkg/models"
)

const (
	// LoadCurveDays is the span of the single load curve request
	LoadCurveDays = 90

	// DailyIterations is the number of daily consumption requests. It also
	// splits DailyHistoryDays into equal windows.
	DailyIterations = 2

	// DailyHistoryDays is the daily history the provider serves beyond the load curve
	DailyHistoryDays = 365 - 7

	dailyWindowDays = DailyHistoryDays / DailyIterations

	keyword = "consumption"
)

// Session is the remote API the fetcher pages through
type Session interface {
	GetLoadCurve(ctx context.Context, from, to string) (*MeterReading, error)
	GetDailyConsumption(ctx context.Context, from, to string) (*MeterReading, error)
}

// Result is the full outcome of a backfill
type Result struct {
	Points     []models.DataPoint
	Statistics []models.StatisticDataPoint
	Attempts   []models.WindowAttempt
}

// Fetcher walks backward through a meter's history, newest window first
type Fetcher struct {
	session Session
	logger  *logger.Logger
	now     func() time.Time
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithClock overrides the wall clock; the returned time's location is used
// for all date arithmetic and reading timestamps.
func WithClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		f.now = now
	}
}

// NewFetcher creates a fetcher over session
func NewFetcher(session Session, log *logger.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		session: session,
		logger:  log.WithComponent("fetcher"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetEnergyData returns as much history as the provider serves, down to
// firstDay when given, as a cumulative statistics series. It never fails:
// remote errors are logged and the data gathered so far is returned.
func (f *Fetcher) GetEnergyData(ctx context.Context, firstDay *time.Time) []models.StatisticDataPoint {
	return f.Backfill(ctx, firstDay).Statistics
}

// Backfill runs the paging loop and reports every window it requested
func (f *Fetcher) Backfill(ctx context.Context, firstDay *time.Time) Result {
	now := f.now()
	loc := now.Location()

	var result Result
	var history [][]models.DataPoint
	offset := 0
	limitReached := false

	// Load curve: one window of LoadCurveDays
	window, clamped := computeWindow(now, offset, LoadCurveDays, firstDay)
	if clamped {
		limitReached = true
	}
	from, to := formatDay(window.From), formatDay(window.To)

	batch, err := f.fetchLoadCurve(ctx, from, to, loc)
	if err != nil {
		f.logger.Debugw("cannot fetch "+keyword+" load curve", "from", from, "to", to)
		f.logger.Warnw("load curve request failed", "from", from, "to", to, "error", err)
		result.Attempts = append(result.Attempts, attempt(models.WindowLoadCurve, window, models.OutcomeFailed, 0, err))
	} else {
		history = append([][]models.DataPoint{batch}, history...)
		f.logger.Debugw("retrieved "+keyword+" load curve", "from", from, "to", to, "points", len(batch))
		result.Attempts = append(result.Attempts, attempt(models.WindowLoadCurve, window, models.OutcomeOK, len(batch), nil))
		offset += LoadCurveDays
	}

	// Daily consumption: up to DailyIterations older windows
	for loop := 0; loop < DailyIterations; loop++ {
		if limitReached {
			break
		}

		window, clamped = computeWindow(now, offset, dailyWindowDays, firstDay)
		if clamped {
			limitReached = true
		}
		from, to = formatDay(window.From), formatDay(window.To)

		batch, err := f.fetchDaily(ctx, from, to, loc)
		if err != nil {
			if firstDay == nil && IsEndOfHistory(err) {
				f.logger.Infow("all available "+keyword+" data has been imported", "reason", Classify(err).String())
				result.Attempts = append(result.Attempts, attempt(models.WindowDaily, window, models.OutcomeEndOfHistory, 0, err))
				break
			}
			f.logger.Debugw("cannot fetch daily "+keyword+" data", "from", from, "to", to)
			f.logger.Warnw("daily consumption request failed", "from", from, "to", to, "error", err)
			result.Attempts = append(result.Attempts, attempt(models.WindowDaily, window, models.OutcomeFailed, 0, err))
			break
		}

		history = append([][]models.DataPoint{batch}, history...)
		f.logger.Debugw("retrieved daily "+keyword+" data", "from", from, "to", to, "points", len(batch))
		result.Attempts = append(result.Attempts, attempt(models.WindowDaily, window, models.OutcomeOK, len(batch), nil))
		offset += dailyWindowDays
	}

	for _, b := range history {
		result.Points = append(result.Points, b...)
	}

	if len(result.Points) == 0 {
		f.logger.Warnw("data import returned nothing")
	} else {
		f.logger.Infow("data import complete",
			"points", len(result.Points),
			"from", result.Points[0].Date.Format(displayLayout),
			"to", result.Points[len(result.Points)-1].Date.Format(displayLayout),
		)
	}

	result.Statistics = FormatAsStatistics(result.Points)
	return result
}

func (f *Fetcher) fetchLoadCurve(ctx context.Context, from, to string, loc *time.Location) ([]models.DataPoint, error) {
	reading, err := f.session.GetLoadCurve(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if reading == nil {
		return nil, nil
	}
	return FormatLoadCurve(reading.IntervalReading, loc)
}

func (f *Fetcher) fetchDaily(ctx context.Context, from, to string, loc *time.Location) ([]models.DataPoint, error) {
	reading, err := f.session.GetDailyConsumption(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if reading == nil {
		return nil, nil
	}
	return FormatDailyData(reading.IntervalReading, loc)
}

// computeWindow returns [now-offset-width, now-offset], with the start
// clamped to firstDay when it falls on or before it.
func computeWindow(now time.Time, offset, width int, firstDay *time.Time) (models.FetchWindow, bool) {
	window := models.FetchWindow{
		From: daysAgo(now, offset+width),
		To:   daysAgo(now, offset),
	}
	if isBefore(window.From, firstDay) {
		window.From = startOfDay(*firstDay, now.Location())
		return window, true
	}
	return window, false
}

func attempt(kind models.WindowKind, window models.FetchWindow, outcome models.WindowOutcome, points int, err error) models.WindowAttempt {
	a := models.WindowAttempt{
		Kind:    kind,
		Window:  window,
		Outcome: outcome,
		Points:  points,
	}
	if err != nil {
		a.Error = err.Error()
	}
	return a
}
