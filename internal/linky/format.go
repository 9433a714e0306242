package linky

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jgoulah/linkyscraper/pkg/models"
)

// FormatLoadCurve converts load curve readings into hourly Wh points.
// Each reading is stamped with the end of its sampling interval and holds the
// average power in W over that interval, so readings are moved back a minute,
// bucketed by hour and averaged.
func FormatLoadCurve(readings []IntervalReading, loc *time.Location) ([]models.DataPoint, error) {
	type bucket struct {
		hour  time.Time
		total float64
		count int
	}

	var order []time.Time
	buckets := make(map[time.Time]*bucket)

	for i, r := range readings {
		value, err := parseValue(r.Value)
		if err != nil {
			return nil, fmt.Errorf("load curve reading %d (%s): %w", i, r.Date, err)
		}
		ts, err := time.ParseInLocation(readingLayout, strings.TrimSpace(r.Date), loc)
		if err != nil {
			return nil, fmt.Errorf("load curve reading %d: parsing date: %w", i, err)
		}

		ts = ts.Add(-time.Minute)
		hour := time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), 0, 0, 0, loc)

		b, ok := buckets[hour]
		if !ok {
			b = &bucket{hour: hour}
			buckets[hour] = b
			order = append(order, hour)
		}
		b.total += value
		b.count++
	}

	points := make([]models.DataPoint, 0, len(order))
	for _, hour := range order {
		b := buckets[hour]
		points = append(points, models.DataPoint{
			Date:  b.hour,
			Value: b.total / float64(b.count),
		})
	}

	sortPoints(points)
	return points, nil
}

// FormatDailyData converts daily consumption readings into one Wh point per day
func FormatDailyData(readings []IntervalReading, loc *time.Location) ([]models.DataPoint, error) {
	points := make([]models.DataPoint, 0, len(readings))
	for i, r := range readings {
		value, err := parseValue(r.Value)
		if err != nil {
			return nil, fmt.Errorf("daily reading %d (%s): %w", i, r.Date, err)
		}

		// Some responses carry a time component on daily readings
		dateStr := strings.TrimSpace(r.Date)
		if len(dateStr) > len(dayLayout) {
			dateStr = dateStr[:len(dayLayout)]
		}
		day, err := ParseDay(dateStr, loc)
		if err != nil {
			return nil, fmt.Errorf("daily reading %d: parsing date: %w", i, err)
		}

		points = append(points, models.DataPoint{Date: day, Value: value})
	}

	sortPoints(points)
	return points, nil
}

// FormatAsStatistics turns chronological points into a cumulative statistics series
func FormatAsStatistics(points []models.DataPoint) []models.StatisticDataPoint {
	stats := make([]models.StatisticDataPoint, len(points))
	var sum float64
	for i, p := range points {
		sum += p.Value
		stats[i] = models.StatisticDataPoint{
			Start: p.Date,
			State: p.Value,
			Sum:   sum,
		}
	}
	return stats
}

// ShiftSums adds base to every running total, continuing a series that was
// already imported up to base.
func ShiftSums(stats []models.StatisticDataPoint, base float64) {
	if base == 0 {
		return
	}
	for i := range stats {
		stats[i].Sum += base
	}
}

func parseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return v, nil
}

func sortPoints(points []models.DataPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
}
