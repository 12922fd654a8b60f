package queues

import (
	"context"

	"queuebot/bot/common"
	"queuebot/config"
	"queuebot/service"
)

// QueueService is the part of the queue service driven by queue commands
type QueueService interface {
	TrackedChannels(ctx context.Context, guildID string) ([]*service.Channel, error)
	ToggleQueue(ctx context.Context, guildID, channelID string) (service.ToggleResult, error)
	JoinText(ctx context.Context, guildID, channelID string, memberIDs []string) (service.JoinResult, error)
	PopNext(ctx context.Context, guildID, channelID string) (string, *service.Channel, error)
	Kick(ctx context.Context, guildID, channelID string, memberIDs []string) (service.KickResult, error)
	Clear(ctx context.Context, guildID, channelID string) (int, *service.Channel, error)
	RequestDisplay(ctx context.Context, guildID, queueChannelID, outputChannelID string) error
	Start(ctx context.Context, guildID, channelID string) (*service.Channel, error)
}

// Directory looks up guild channels and member names
type Directory interface {
	GuildChannels(ctx context.Context, guildID string) ([]*service.Channel, error)
	MemberName(guildID, memberID string) (string, bool)
}

// Feature handles the commands that create, show and change queues
type Feature struct {
	messenger common.Messenger
	queues    QueueService
	directory Directory
	commands  config.Commands
}

// NewFeature creates a new queues feature instance
func NewFeature(messenger common.Messenger, queues QueueService, directory Directory, commands config.Commands) *Feature {
	return &Feature{
		messenger: messenger,
		queues:    queues,
		directory: directory,
		commands:  commands,
	}
}

// Handle runs one queue command and reports failures to the user
func (f *Feature) Handle(ctx context.Context, req *common.Request) {
	var err error
	switch req.Command.Name {
	case f.commands.Queue:
		err = f.handleQueue(ctx, req)
	case f.commands.Display:
		err = f.handleDisplay(ctx, req)
	case f.commands.Start:
		err = f.handleStart(ctx, req)
	case f.commands.Next:
		err = f.handleNext(ctx, req)
	case f.commands.Kick:
		err = f.handleKick(ctx, req)
	case f.commands.Clear:
		err = f.handleClear(ctx, req)
	case f.commands.Join:
		err = f.handleJoin(ctx, req)
	default:
		return
	}

	if err != nil {
		common.HandleError(f.messenger, req, err)
	}
}
