package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL     = "https://espace-client.geredis.fr/api"
	defaultPortalURL   = "https://espace-client.geredis.fr/"
	defaultTopicPrefix = "linky"
	defaultStatName    = "Linky consumption"
)

// Config holds the application configuration
type Config struct {
	Linky         LinkyConfig `yaml:"linky"`
	Cookies       []Cookie    `yaml:"cookies,omitempty"`
	FirstDay      string      `yaml:"first_day,omitempty"` // YYYY-MM-DD lower bound for backfills
	HomeAssistant HAConfig    `yaml:"home_assistant,omitempty"`
	MQTT          MQTTConfig  `yaml:"mqtt,omitempty"`
}

// LinkyConfig holds provider credentials and the meter to read
type LinkyConfig struct {
	BaseURL      string `yaml:"base_url,omitempty"`
	PortalURL    string `yaml:"portal_url,omitempty"` // Customer portal used by `login`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	UsagePointID string `yaml:"usage_point_id"` // 14-digit PRM
	AuthToken    string `yaml:"auth_token,omitempty"`
}

// Cookie represents a browser cookie
type Cookie struct {
	Name     string  `yaml:"name"`
	Value    string  `yaml:"value"`
	Domain   string  `yaml:"domain"`
	Path     string  `yaml:"path"`
	Expires  float64 `yaml:"expires,omitempty"`
	HTTPOnly bool    `yaml:"httpOnly,omitempty"`
	Secure   bool    `yaml:"secure,omitempty"`
	SameSite string  `yaml:"sameSite,omitempty"`
}

// HAConfig holds Home Assistant websocket API configuration
type HAConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`   // e.g., "ws://homeassistant.local:8123/api/websocket"
	Token       string `yaml:"token"` // Long-lived access token
	StatisticID string `yaml:"statistic_id,omitempty"`
	Name        string `yaml:"name,omitempty"`
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

// Load reads the config file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// Validate checks that the config can drive a fetch
func (c *Config) Validate() error {
	var problems []string

	id := c.Linky.UsagePointID
	switch {
	case id == "":
		problems = append(problems, "linky.usage_point_id is required")
	case len(id) != 14 || strings.Trim(id, "0123456789") != "":
		problems = append(problems, fmt.Sprintf("linky.usage_point_id should be 14 digits, got: %s", id))
	}

	if c.Linky.AuthToken == "" && (c.Linky.Username == "" || c.Linky.Password == "") {
		problems = append(problems, "either linky.auth_token or linky.username and linky.password are required")
	}

	if c.FirstDay != "" {
		if _, err := time.Parse("2006-01-02", c.FirstDay); err != nil {
			problems = append(problems, fmt.Sprintf("first_day must be YYYY-MM-DD, got: %s", c.FirstDay))
		}
	}

	if c.HomeAssistant.Enabled {
		if c.HomeAssistant.URL == "" {
			problems = append(problems, "home_assistant.url is required when enabled")
		}
		if c.HomeAssistant.Token == "" {
			problems = append(problems, "home_assistant.token is required when enabled")
		}
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		problems = append(problems, "mqtt.broker is required when enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// GetBaseURL returns the provider API base URL
func (c *Config) GetBaseURL() string {
	if c.Linky.BaseURL != "" {
		return c.Linky.BaseURL
	}
	return defaultBaseURL
}

// GetPortalURL returns the customer portal URL used for browser login
func (c *Config) GetPortalURL() string {
	if c.Linky.PortalURL != "" {
		return c.Linky.PortalURL
	}
	return defaultPortalURL
}

// GetFirstDay returns the configured lower bound at midnight in loc, or nil
func (c *Config) GetFirstDay(loc *time.Location) (*time.Time, error) {
	if c.FirstDay == "" {
		return nil, nil
	}
	day, err := time.ParseInLocation("2006-01-02", c.FirstDay, loc)
	if err != nil {
		return nil, fmt.Errorf("parsing first_day: %w", err)
	}
	return &day, nil
}

// GetStatisticID returns the Home Assistant statistic id, defaulting to linky:<usage point>
func (c *Config) GetStatisticID() string {
	if c.HomeAssistant.StatisticID != "" {
		return c.HomeAssistant.StatisticID
	}
	return "linky:" + c.Linky.UsagePointID
}

// GetStatisticName returns the display name of the statistic
func (c *Config) GetStatisticName() string {
	if c.HomeAssistant.Name != "" {
		return c.HomeAssistant.Name
	}
	return defaultStatName
}

// GetTopicPrefix returns the MQTT topic prefix
func (c *Config) GetTopicPrefix() string {
	if c.MQTT.TopicPrefix != "" {
		return c.MQTT.TopicPrefix
	}
	return defaultTopicPrefix
}
