package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jgoulah/linkyscraper/internal/config"
	"github.com/jgoulah/linkyscraper/internal/database"
	"github.com/jgoulah/linkyscraper/internal/linky"
	"github.com/jgoulah/linkyscraper/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logger.Nop()

var rootCmd = &cobra.Command{
	Use:   "linkyscraper",
	Short: "Backfill Linky electricity consumption history",
	Long: `linkyscraper pulls historical consumption for a Linky meter from the provider API,
walking backward through load curve and daily data, and turns it into a cumulative
statistics series that can be imported into Home Assistant or sent to MQTT.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log = logger.New(viper.GetString("log_level"))
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "run log database file (default is ./data.db)")
	rootCmd.PersistentFlags().String("log-level", logger.InfoLevel, "log level (debug, info, warn, error)")

	// Every flag can also come from LINKYSCRAPER_<NAME>; secrets from LINKYSCRAPER_PASSWORD and LINKYSCRAPER_TOKEN
	viper.SetEnvPrefix("LINKYSCRAPER")
	viper.AutomaticEnv()
	cobra.CheckErr(viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")))
	cobra.CheckErr(viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db")))
	cobra.CheckErr(viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level")))
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if path := viper.GetString("config"); path != "" {
		return path
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if path := viper.GetString("db"); path != "" {
		return path
	}
	return "data.db"
}

// loadConfig loads the configuration file and applies secrets from the environment.
// The result must not be saved; use updateConfig to persist changes.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if password := viper.GetString("password"); password != "" {
		cfg.Linky.Password = password
	}
	if token := viper.GetString("token"); token != "" {
		cfg.Linky.AuthToken = token
	}
	return cfg, nil
}

// updateConfig applies update to the config as stored on disk and saves it,
// so secrets coming from the environment never reach the file
func updateConfig(update func(cfg *config.Config)) error {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	update(cfg)
	return config.Save(path, cfg)
}

// openDB opens the database connection
func openDB() (*database.DB, error) {
	path := getDBPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}

// newSession builds a provider session from the config
func newSession(cfg *config.Config) *linky.HTTPSession {
	return linky.NewSession(linky.SessionConfig{
		BaseURL:      cfg.GetBaseURL(),
		Username:     cfg.Linky.Username,
		Password:     cfg.Linky.Password,
		UsagePointID: cfg.Linky.UsagePointID,
		AuthToken:    cfg.Linky.AuthToken,
		Cookies:      cfg.Cookies,
	}, log)
}

// parseDate parses a date string in either YYYY-MM-DD format or relative format (e.g., "7d").
// The result is midnight local time.
func parseDate(dateStr string, now time.Time) (time.Time, error) {
	t, err := linky.ParseDay(dateStr, now.Location())
	if err == nil {
		return t, nil
	}

	// Try relative format (e.g., "7d" for 7 days ago)
	if len(dateStr) > 1 && dateStr[len(dateStr)-1] == 'd' {
		if days, err := strconv.Atoi(dateStr[:len(dateStr)-1]); err == nil && days >= 0 {
			d := now.AddDate(0, 0, -days)
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, now.Location()), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD or Nd for N days ago)", dateStr)
}
