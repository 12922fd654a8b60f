package help

import (
	"context"

	"queuebot/bot/common"
	"queuebot/config"
	"queuebot/service"
)

// Directory lists guild channels help can be posted to
type Directory interface {
	GuildChannels(ctx context.Context, guildID string) ([]*service.Channel, error)
}

// Feature answers the help command
type Feature struct {
	messenger common.Messenger
	directory Directory
	commands  config.Commands
}

// NewFeature creates a new help feature instance
func NewFeature(messenger common.Messenger, directory Directory, commands config.Commands) *Feature {
	return &Feature{
		messenger: messenger,
		directory: directory,
		commands:  commands,
	}
}
