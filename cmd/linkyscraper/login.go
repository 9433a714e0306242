package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jgoulah/linkyscraper/internal/config"
	"github.com/jgoulah/linkyscraper/internal/linky"
	"github.com/spf13/cobra"
)

var (
	loginVisible bool
	loginTimeout time.Duration
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to the customer portal and save the token and cookies",
	Long: `Opens the customer portal in Chrome and captures the bearer token the portal
sends to the metering API, then saves it with the session cookies to the config file.

With username/password in the config the login is automatic (headless unless
--visible). Without them a browser window opens for you to log in manually.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&loginVisible, "visible", false, "Show browser window")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 10*time.Minute, "How long to wait for the login to complete")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	// Load existing config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	login := &linky.BrowserLogin{
		PortalURL: cfg.GetPortalURL(),
		Username:  cfg.Linky.Username,
		Password:  cfg.Linky.Password,
		Visible:   loginVisible,
		Timeout:   loginTimeout,
	}

	if login.Username == "" || login.Password == "" {
		login.Visible = true
		login.Wait = func() {
			fmt.Println("Please log in manually in the browser window.")
			fmt.Println("After login, open the consumption page so the portal calls its API.")
			fmt.Println("Then press Enter here to save...")
			fmt.Scanln()
		}
	}

	fmt.Printf("Opening browser for %s...\n", login.PortalURL)
	creds, err := login.Run(context.Background())
	if err != nil {
		return fmt.Errorf("browser login: %w", err)
	}

	// Save token and cookies only, leaving env-supplied secrets out of the file
	err = updateConfig(func(stored *config.Config) {
		stored.Linky.AuthToken = creds.Token
		stored.Cookies = creds.Cookies
	})
	if err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("✓ Successfully saved auth token and %d cookies\n", len(creds.Cookies))
	if exp := linky.TokenExpiry(creds.Token); !exp.IsZero() {
		fmt.Printf("  Token expires %s\n", exp.Local().Format("2006-01-02 15:04:05 MST"))
	}
	return nil
}
