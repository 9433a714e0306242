package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	historyLimit   int
	historyWindows bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded fetch runs",
	Long:  `Displays the fetch runs recorded in the local run log, newest first.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to show (0 = all)")
	historyCmd.Flags().BoolVar(&historyWindows, "windows", false, "Show the windows requested by each run")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Open database
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	runs, err := db.ListRuns(ctx, cfg.Linky.UsagePointID, historyLimit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	fmt.Printf("\nFetch runs for %s:\n", cfg.Linky.UsagePointID)
	fmt.Println("--------------------------------------------------------------------------------")
	fmt.Printf("%-16s  %-23s  %8s  %-23s  %12s  %s\n", "Started", "First point", "Points", "Last point", "Total kWh", "Published")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, run := range runs {
		first, last := "-", "-"
		if !run.FirstPoint.IsZero() {
			first = run.FirstPoint.Local().Format("2006-01-02 15:04")
			last = run.LastPoint.Local().Format("2006-01-02 15:04")
		}
		published := "no"
		if run.Published {
			published = "yes"
		}
		fmt.Printf("%-16s  %-23s  %8s  %-23s  %12s  %s\n",
			humanize.Time(run.StartedAt),
			first,
			humanize.Comma(int64(run.Points)),
			last,
			humanize.CommafWithDigits(run.LastSum/1000, 1),
			published,
		)

		if !historyWindows {
			continue
		}
		windows, err := db.ListWindows(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("listing windows for %s: %w", run.ID, err)
		}
		printAttempts(windows)
	}

	fmt.Println("--------------------------------------------------------------------------------")
	fmt.Printf("%d runs\n", len(runs))
	return nil
}
