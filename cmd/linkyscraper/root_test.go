package main

import (
	"path/filepath"
	"testing"

	"github.com/jgoulah/linkyscraper/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useConfigFile(t *testing.T, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.Save(path, cfg))
	viper.Set("config", path)
	t.Cleanup(func() { viper.Set("config", "") })
	return path
}

func TestLoadConfigAppliesEnvSecrets(t *testing.T) {
	stored := &config.Config{}
	stored.Linky.Username = "user@example.com"
	stored.Linky.Password = "from-file"
	useConfigFile(t, stored)

	t.Setenv("LINKYSCRAPER_PASSWORD", "from-env")
	t.Setenv("LINKYSCRAPER_TOKEN", "env-token")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Linky.Password)
	assert.Equal(t, "env-token", cfg.Linky.AuthToken)
	assert.Equal(t, "user@example.com", cfg.Linky.Username)
}

func TestUpdateConfigKeepsEnvSecretsOffDisk(t *testing.T) {
	stored := &config.Config{}
	stored.Linky.Username = "user@example.com"
	stored.Linky.UsagePointID = testUsagePoint
	path := useConfigFile(t, stored)

	t.Setenv("LINKYSCRAPER_PASSWORD", "env-secret")
	t.Setenv("LINKYSCRAPER_TOKEN", "env-token")

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, "env-secret", cfg.Linky.Password)

	err = updateConfig(func(c *config.Config) {
		c.Linky.AuthToken = "refreshed-token"
		c.Cookies = []config.Cookie{{Name: "session", Value: "abc"}}
	})
	require.NoError(t, err)

	saved, err := config.Load(path)
	require.NoError(t, err)
	assert.Empty(t, saved.Linky.Password)
	assert.Equal(t, "refreshed-token", saved.Linky.AuthToken)
	assert.Equal(t, "user@example.com", saved.Linky.Username)
	assert.Equal(t, testUsagePoint, saved.Linky.UsagePointID)
	require.Len(t, saved.Cookies, 1)
	assert.Equal(t, "session", saved.Cookies[0].Name)
}
