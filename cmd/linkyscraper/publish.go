package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jgoulah/linkyscraper/internal/config"
	"github.com/jgoulah/linkyscraper/internal/database"
	"github.com/jgoulah/linkyscraper/internal/publisher"
	"github.com/jgoulah/linkyscraper/pkg/models"
	"github.com/spf13/cobra"
)

var (
	publishInput string
	publishSince string
	publishUntil string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a saved statistics file to Home Assistant and/or MQTT",
	Long: `Reads statistics written by 'fetch --output' and publishes them to the enabled
destinations. The run that produced the file is marked as published, so a later
'fetch --resume' continues from it.`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishInput, "input", "", "Statistics file written by fetch --output (required)")
	publishCmd.Flags().StringVar(&publishSince, "since", "", "Only publish points since this date (YYYY-MM-DD or relative like 7d)")
	publishCmd.Flags().StringVar(&publishUntil, "until", "", "Only publish points before this date (YYYY-MM-DD)")
	publishCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(publishCmd)
}

// statisticsExport is the file format of fetch --output
type statisticsExport struct {
	RunID        string                      `json:"run_id"`
	UsagePointID string                      `json:"usage_point_id"`
	Statistics   []models.StatisticDataPoint `json:"statistics"`
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	// Load config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	export, err := readExport(publishInput)
	if err != nil {
		return fmt.Errorf("reading %s: %w", publishInput, err)
	}

	now := time.Now()
	var sinceDate, untilDate *time.Time
	if publishSince != "" {
		since, err := parseDate(publishSince, now)
		if err != nil {
			return fmt.Errorf("parsing --since date: %w", err)
		}
		sinceDate = &since
	}
	if publishUntil != "" {
		until, err := parseDate(publishUntil, now)
		if err != nil {
			return fmt.Errorf("parsing --until date: %w", err)
		}
		untilDate = &until
	}

	stats := filterStatistics(export.Statistics, sinceDate, untilDate)
	if len(stats) == 0 {
		fmt.Println("No statistics in date range")
		return nil
	}

	// Open database
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// A filtered subset is not the whole run, so the run stays unpublished
	runID := export.RunID
	if sinceDate != nil || untilDate != nil {
		runID = ""
	}

	return publishStatistics(context.Background(), cfg, db, runID, export.UsagePointID, stats)
}

// publishStatistics sends stats to every enabled destination and marks runID published
func publishStatistics(ctx context.Context, cfg *config.Config, db *database.DB, runID, usagePointID string, stats []models.StatisticDataPoint) error {
	pub, err := publisher.New(cfg, log)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	if !pub.Enabled() {
		return fmt.Errorf("neither home_assistant nor mqtt is enabled in config")
	}

	fmt.Printf("Publishing %d statistics for %s...\n", len(stats), usagePointID)
	if err := pub.Publish(ctx, usagePointID, stats); err != nil {
		return fmt.Errorf("publishing: %w", err)
	}

	if runID != "" {
		if err := db.MarkPublished(ctx, runID); err != nil {
			fmt.Printf("✓ Published (warning: failed to mark run as published: %v)\n", err)
			return nil
		}
	}
	fmt.Printf("✓ Published %d statistics\n", len(stats))
	return nil
}

// filterStatistics keeps points starting in [since, until)
func filterStatistics(stats []models.StatisticDataPoint, since, until *time.Time) []models.StatisticDataPoint {
	if since == nil && until == nil {
		return stats
	}
	filtered := []models.StatisticDataPoint{}
	for _, s := range stats {
		if since != nil && s.Start.Before(*since) {
			continue
		}
		if until != nil && !s.Start.Before(*until) {
			continue
		}
		filtered = append(filtered, s)
	}
	return filtered
}

func writeExport(path string, export *statisticsExport) error {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling statistics: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func readExport(path string) (*statisticsExport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var export statisticsExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("parsing statistics file: %w", err)
	}
	if export.UsagePointID == "" {
		return nil, fmt.Errorf("statistics file has no usage_point_id")
	}
	return &export, nil
}
