package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jgoulah/linkyscraper/internal/linky"
	"github.com/spf13/cobra"
)

var (
	debugFrom string
	debugTo   string
)

var debugCmd = &cobra.Command{
	Use:   "debug [load-curve|daily]",
	Short: "Issue one raw request and print the readings",
	Long: `Calls a single metering endpoint for the given range and prints the readings
as returned, before any formatting. Useful to check credentials and see which
errors the provider returns for a range.

Available endpoints: load-curve, daily`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"load-curve", "daily"},
	RunE:      runDebug,
}

func init() {
	debugCmd.Flags().StringVar(&debugFrom, "from", "7d", "Start day (YYYY-MM-DD or relative like 7d)")
	debugCmd.Flags().StringVar(&debugTo, "to", "0d", "End day, exclusive (YYYY-MM-DD or relative like 0d)")
	rootCmd.AddCommand(debugCmd)
}

func runDebug(cmd *cobra.Command, args []string) error {
	endpoint := args[0]
	if endpoint != "load-curve" && endpoint != "daily" {
		return fmt.Errorf("unknown endpoint: %s (available: load-curve, daily)", endpoint)
	}

	// Load config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	now := time.Now()
	from, err := parseDate(debugFrom, now)
	if err != nil {
		return fmt.Errorf("parsing --from: %w", err)
	}
	to, err := parseDate(debugTo, now)
	if err != nil {
		return fmt.Errorf("parsing --to: %w", err)
	}

	session := newSession(cfg)
	ctx := context.Background()
	fromStr, toStr := from.Format("2006-01-02"), to.Format("2006-01-02")

	fmt.Printf("Requesting %s from %s to %s...\n", endpoint, fromStr, toStr)

	var reading *linky.MeterReading
	switch endpoint {
	case "load-curve":
		reading, err = session.GetLoadCurve(ctx, fromStr, toStr)
	case "daily":
		reading, err = session.GetDailyConsumption(ctx, fromStr, toStr)
	}
	if err != nil {
		if kind := linky.Classify(err); kind != linky.ErrorKindUnknown {
			fmt.Printf("Provider reports %s: %s\n", kind, linky.ErrorDescription(err))
		}
		return fmt.Errorf("request failed: %w", err)
	}
	if reading == nil {
		fmt.Println("Empty response")
		return nil
	}

	fmt.Printf("Usage point: %s\n", reading.UsagePointID)
	fmt.Printf("Range:       %s → %s\n", reading.Start, reading.End)
	fmt.Printf("Unit:        %s\n", reading.ReadingType.Unit)
	fmt.Printf("Readings:    %d\n", len(reading.IntervalReading))
	fmt.Println("----------------------------------------")
	for _, r := range reading.IntervalReading {
		if r.IntervalLength != "" {
			fmt.Printf("%-20s  %10s  %s\n", r.Date, r.Value, r.IntervalLength)
		} else {
			fmt.Printf("%-20s  %10s\n", r.Date, r.Value)
		}
	}
	return nil
}
