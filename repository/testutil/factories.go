package testutil

import (
	"queuebot/models"
)

// TestDefaults mirrors the process defaults used by a fresh deployment
var TestDefaults = models.Defaults{
	GracePeriodSeconds: 0,
	CommandPrefix:      "!",
	Color:              0x51ff7e,
}

// CreateTestGuildConfig creates a config with default settings and the given tracked channels
func CreateTestGuildConfig(guildID string, channelIDs ...string) *models.GuildConfig {
	config := models.NewGuildConfig(guildID, TestDefaults)
	for _, id := range channelIDs {
		config.Track(id)
	}
	return config
}

// CreateTestGuildConfigWithGrace creates a config with a specific grace period
func CreateTestGuildConfigWithGrace(guildID string, graceSeconds int, channelIDs ...string) *models.GuildConfig {
	config := CreateTestGuildConfig(guildID, channelIDs...)
	config.GracePeriodSeconds = graceSeconds
	return config
}
