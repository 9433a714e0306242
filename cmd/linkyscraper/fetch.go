package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jgoulah/linkyscraper/internal/config"
	"github.com/jgoulah/linkyscraper/internal/database"
	"github.com/jgoulah/linkyscraper/internal/linky"
	"github.com/jgoulah/linkyscraper/pkg/models"
	"github.com/spf13/cobra"
)

var (
	fetchFirstDay string
	fetchResume   bool
	fetchPublish  bool
	fetchOutput   string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch consumption history from the provider",
	Long: `Walks backward through the meter history: one load curve window, then up to
two daily consumption windows. The run is recorded in the local run log (counts and
windows only, never the readings).

Fetch failures are logged and end the walk early; whatever was retrieved is kept.`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFirstDay, "first-day", "", "Earliest day to fetch (YYYY-MM-DD or relative like 30d), overrides first_day in config")
	fetchCmd.Flags().BoolVar(&fetchResume, "resume", false, "Continue from the last published run")
	fetchCmd.Flags().BoolVar(&fetchPublish, "publish", false, "Publish statistics to Home Assistant and/or MQTT")
	fetchCmd.Flags().StringVar(&fetchOutput, "output", "", "Write statistics as JSON to this file")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Fetch started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	// Load config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Open database
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	usagePointID := cfg.Linky.UsagePointID

	start, err := resolveStart(ctx, cfg, db, time.Now())
	if err != nil {
		return err
	}
	if start.firstDay != nil {
		fmt.Printf("Fetching %s back to %s...\n", usagePointID, start.firstDay.Format("2006-01-02"))
	} else {
		fmt.Printf("Fetching all available history for %s...\n", usagePointID)
	}

	session := newSession(cfg)
	tokenBefore := cfg.Linky.AuthToken

	fetcher := linky.NewFetcher(session, log.WithUsagePoint(usagePointID))
	startedAt := time.Now()
	result := fetcher.Backfill(ctx, start.firstDay)
	if start.baseSum != 0 {
		linky.ShiftSums(result.Statistics, start.baseSum)
	}

	// Keep a token the session obtained by logging in
	if token, _ := session.Token(); token != "" && token != tokenBefore {
		err := updateConfig(func(stored *config.Config) {
			stored.Linky.AuthToken = token
		})
		if err != nil {
			fmt.Printf("Warning: Could not save refreshed token: %v\n", err)
		} else {
			fmt.Println("✓ Refreshed token saved")
		}
	}

	run := buildRun(usagePointID, start.firstDay, startedAt, time.Now(), result)
	if err := db.InsertRun(ctx, run); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	printAttempts(result.Attempts)

	if len(result.Statistics) == 0 {
		fmt.Println("No data found")
		return nil
	}
	fmt.Printf("✓ Retrieved %d points from %s to %s (run %s)\n",
		run.Points,
		run.FirstPoint.Format("2006-01-02 15:04"),
		run.LastPoint.Format("2006-01-02 15:04"),
		run.ID,
	)

	if fetchOutput != "" {
		export := statisticsExport{
			RunID:        run.ID,
			UsagePointID: usagePointID,
			Statistics:   result.Statistics,
		}
		if err := writeExport(fetchOutput, &export); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		fmt.Printf("✓ Statistics written to %s\n", fetchOutput)
	}

	if fetchPublish {
		if err := publishStatistics(ctx, cfg, db, run.ID, usagePointID, result.Statistics); err != nil {
			return err
		}
	}

	return nil
}

// fetchStart is where a fetch begins and what its running sum continues from
type fetchStart struct {
	firstDay *time.Time
	baseSum  float64
}

// resolveStart picks the lower bound: --first-day, then --resume, then config
func resolveStart(ctx context.Context, cfg *config.Config, db *database.DB, now time.Time) (fetchStart, error) {
	var start fetchStart

	if fetchFirstDay != "" {
		day, err := parseDate(fetchFirstDay, now)
		if err != nil {
			return start, fmt.Errorf("parsing --first-day: %w", err)
		}
		start.firstDay = &day
		return start, nil
	}

	if fetchResume {
		last, err := db.LastPublishedRun(ctx, cfg.Linky.UsagePointID)
		if err != nil {
			return start, fmt.Errorf("finding last published run: %w", err)
		}
		if last != nil && !last.LastPoint.IsZero() {
			lp := last.LastPoint.In(now.Location())
			day := time.Date(lp.Year(), lp.Month(), lp.Day()+1, 0, 0, 0, 0, now.Location())
			start.firstDay = &day
			start.baseSum = last.LastSum
			return start, nil
		}
		fmt.Println("No published run to resume from, fetching full history")
	}

	firstDay, err := cfg.GetFirstDay(now.Location())
	if err != nil {
		return start, err
	}
	start.firstDay = firstDay
	return start, nil
}

// buildRun summarizes a backfill for the run log
func buildRun(usagePointID string, firstDay *time.Time, startedAt, finishedAt time.Time, result linky.Result) *models.FetchRun {
	run := &models.FetchRun{
		UsagePointID: usagePointID,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
		Points:       len(result.Statistics),
		Windows:      result.Attempts,
	}
	if firstDay != nil {
		run.FirstDay = *firstDay
	}
	if n := len(result.Statistics); n > 0 {
		run.FirstPoint = result.Statistics[0].Start
		run.LastPoint = result.Statistics[n-1].Start
		run.LastSum = result.Statistics[n-1].Sum
	}
	return run
}

func printAttempts(attempts []models.WindowAttempt) {
	for _, a := range attempts {
		window := fmt.Sprintf("%s → %s", a.Window.From.Format("2006-01-02"), a.Window.To.Format("2006-01-02"))
		switch a.Outcome {
		case models.OutcomeOK:
			fmt.Printf("  ✓ %-10s %s: %d points\n", a.Kind, window, a.Points)
		case models.OutcomeEndOfHistory:
			fmt.Printf("  ■ %-10s %s: end of history (%s)\n", a.Kind, window, a.Error)
		default:
			fmt.Printf("  ✗ %-10s %s: %s\n", a.Kind, window, a.Error)
		}
	}
}
