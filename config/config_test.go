package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(map[string]string{
		"DISCORD_TOKEN": "token",
		"DATABASE_URL":  "postgres://localhost:5432",
	})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "!", cfg.Defaults().CommandPrefix)
	assert.Equal(t, 0, cfg.Defaults().GracePeriodSeconds)
	assert.Equal(t, 0x51ff7e, cfg.Defaults().Color)
	assert.Equal(t, 2*time.Second, cfg.GracePollInterval)
	assert.Equal(t, "queue", cfg.Commands.Queue)
	assert.Equal(t, "join", cfg.Commands.Join)
	assert.False(t, cfg.OTelEnabled)
	assert.Empty(t, cfg.NATSServers)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(map[string]string{
		"DISCORD_TOKEN":        "token",
		"DATABASE_URL":         "postgres://localhost:5432",
		"DATABASE_NAME":        "queuebot",
		"DEFAULT_PREFIX":       "q!",
		"DEFAULT_GRACE_PERIOD": "30",
		"DEFAULT_COLOR":        "#FF0000",
		"GRACE_POLL_INTERVAL":  "500ms",
		"JOIN_CMD":             "enter",
	})
	require.NoError(t, err)

	assert.Equal(t, "q!", cfg.Defaults().CommandPrefix)
	assert.Equal(t, 30, cfg.Defaults().GracePeriodSeconds)
	assert.Equal(t, 0xff0000, cfg.Defaults().Color)
	assert.Equal(t, 500*time.Millisecond, cfg.GracePollInterval)
	assert.Equal(t, "enter", cfg.Commands.Join)
	assert.Equal(t, "postgres://localhost:5432/queuebot?sslmode=disable", cfg.GetDatabaseURL())
}

func TestLoad_Validation(t *testing.T) {
	base := func() map[string]string {
		return map[string]string{
			"DISCORD_TOKEN": "token",
			"DATABASE_URL":  "postgres://localhost:5432",
		}
	}

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"missing token", "DISCORD_TOKEN", ""},
		{"missing database", "DATABASE_URL", ""},
		{"grace too large", "DEFAULT_GRACE_PERIOD", "301"},
		{"bad color", "DEFAULT_COLOR", "red"},
		{"bad permissions pattern", "PERMISSIONS_REGEXP", "(("},
		{"blank prefix", "DEFAULT_PREFIX", "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			environ := base()
			environ[tt.key] = tt.value
			_, err := load(environ)
			assert.Error(t, err)
		})
	}
}

func TestPermissionsPatternIsCaseInsensitive(t *testing.T) {
	cfg := NewTestConfig()

	assert.True(t, cfg.Permissions().MatchString("Server Admin"))
	assert.True(t, cfg.Permissions().MatchString("mod"))
	assert.False(t, cfg.Permissions().MatchString("moderator"))
	assert.False(t, cfg.Permissions().MatchString("member"))
}

func TestSetTestConfig(t *testing.T) {
	defer ResetConfig()

	custom := NewTestConfig()
	custom.DefaultPrefix = "?"
	SetTestConfig(custom)

	assert.Same(t, custom, Get())
}
