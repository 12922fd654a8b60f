package settings

import (
	"context"
	"fmt"
	"strconv"

	"queuebot/bot/common"
	"queuebot/config"
	"queuebot/models"
	"queuebot/service"
)

// SettingsService stores guild settings and refreshes displays after a change
type SettingsService interface {
	SetSetting(ctx context.Context, guildID, setting, raw string) (*models.GuildConfig, error)
}

// Feature handles guild settings management
type Feature struct {
	messenger common.Messenger
	settings  SettingsService
	commands  config.Commands
}

// NewFeature creates a new settings feature instance
func NewFeature(messenger common.Messenger, settings SettingsService, commands config.Commands) *Feature {
	return &Feature{
		messenger: messenger,
		settings:  settings,
		commands:  commands,
	}
}

// Handle routes settings commands to the setting they change
func (f *Feature) Handle(ctx context.Context, req *common.Request) {
	switch req.Command.Name {
	case f.commands.Grace:
		f.handleSetting(ctx, req, graceSetting)
	case f.commands.Prefix:
		f.handleSetting(ctx, req, prefixSetting)
	case f.commands.Color:
		f.handleSetting(ctx, req, colorSetting)
	}
}

// setting describes one configurable value
type setting struct {
	key   string
	label string
	// rawValue makes the command pass the parameter untrimmed
	rawValue bool
	current  func(cfg *models.GuildConfig) string
	hint     string
	// picker adds a color picker link to the usage message
	picker bool
}

var (
	graceSetting = setting{
		key:     service.SettingGrace,
		label:   "grace period",
		current: func(cfg *models.GuildConfig) string { return strconv.Itoa(cfg.GracePeriodSeconds) },
		hint:    fmt.Sprintf("Grace period must be between `0` and `%d` seconds.", models.MaxGracePeriodSeconds),
	}
	prefixSetting = setting{
		key:      service.SettingPrefix,
		label:    "command prefix",
		rawValue: true,
		current:  func(cfg *models.GuildConfig) string { return cfg.CommandPrefix },
	}
	colorSetting = setting{
		key:     service.SettingColor,
		label:   "color",
		current: func(cfg *models.GuildConfig) string { return cfg.ColorHex() },
		hint:    "Use HEX color:",
		picker:  true,
	}
)
