package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jgoulah/linkyscraper/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatistics() []models.StatisticDataPoint {
	return []models.StatisticDataPoint{
		{Start: time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), State: 100, Sum: 100},
		{Start: time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC), State: 200, Sum: 300},
		{Start: time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), State: 300, Sum: 600},
	}
}

func TestFilterStatistics(t *testing.T) {
	stats := sampleStatistics()
	since := time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

	assert.Len(t, filterStatistics(stats, nil, nil), 3)

	got := filterStatistics(stats, &since, nil)
	require.Len(t, got, 2)
	assert.Equal(t, 300.0, got[0].Sum)

	got = filterStatistics(stats, nil, &until)
	require.Len(t, got, 2)
	assert.Equal(t, 100.0, got[0].Sum)

	got = filterStatistics(stats, &since, &until)
	require.Len(t, got, 1)
	assert.Equal(t, 200.0, got[0].State)
}

func TestExportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	export := &statisticsExport{
		RunID:        "run-1",
		UsagePointID: testUsagePoint,
		Statistics:   sampleStatistics(),
	}
	require.NoError(t, writeExport(path, export))

	got, err := readExport(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, testUsagePoint, got.UsagePointID)
	require.Len(t, got.Statistics, 3)
	assert.True(t, got.Statistics[2].Start.Equal(export.Statistics[2].Start))
	assert.Equal(t, 600.0, got.Statistics[2].Sum)
}

func TestReadExportRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := readExport(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("not json"), 0644))
	_, err = readExport(garbage)
	assert.Error(t, err)

	anonymous := filepath.Join(dir, "anonymous.json")
	require.NoError(t, os.WriteFile(anonymous, []byte(`{"statistics":[]}`), 0644))
	_, err = readExport(anonymous)
	assert.Error(t, err)
}
