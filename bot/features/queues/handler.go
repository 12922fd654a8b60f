package queues

import (
	"context"
	"fmt"
	"strings"

	"queuebot/bot/common"
	"queuebot/service"
)

// handleQueue lists the queues, or toggles the named channel as a queue
func (f *Feature) handleQueue(ctx context.Context, req *common.Request) error {
	if req.Command.Parameter == "" && len(req.ChannelMentions) == 0 {
		tracked, err := f.queues.TrackedChannels(ctx, req.GuildID)
		if err != nil {
			return common.NewSystemError(err, "Failed to list queues")
		}
		if len(tracked) == 0 {
			common.Reply(f.messenger, req, fmt.Sprintf("No queue channels set.\nSet a new queue channel using `%s%s {channel name}`",
				req.Command.Prefix, f.commands.Queue))
			return nil
		}
		common.Reply(f.messenger, req, "Current queues: "+common.CodeList(channelNames(tracked)))
		return nil
	}

	channels, err := f.directory.GuildChannels(ctx, req.GuildID)
	if err != nil {
		return common.NewSystemError(err, "Failed to list guild channels")
	}
	ch := common.FindChannel(channels, req.ChannelMentions, req.Command.Parameter)
	if ch == nil {
		hint := f.hint(req, common.AnyChannel, false)
		return common.NewUserError(hint.InvalidChannelMessage(channels), "Unknown channel for queue toggle")
	}

	result, err := f.queues.ToggleQueue(ctx, req.GuildID, ch.ID)
	if err != nil {
		return err
	}
	if result.Enrolled {
		common.Reply(f.messenger, req, fmt.Sprintf("Created queue for `%s`.", result.Channel.Name))
	} else {
		common.Reply(f.messenger, req, fmt.Sprintf("Deleted queue for `%s`.", result.Channel.Name))
	}
	return nil
}

// handleDisplay posts a self-updating display of a queue in the current channel
func (f *Feature) handleDisplay(ctx context.Context, req *common.Request) error {
	ch, err := f.queueChannel(ctx, req, req.Command.Parameter, common.AnyChannel, false)
	if err != nil {
		return err
	}
	return f.queues.RequestDisplay(ctx, req.GuildID, ch.ID, req.ChannelID)
}

// handleStart connects the bot to a voice queue
func (f *Feature) handleStart(ctx context.Context, req *common.Request) error {
	ch, err := f.queueChannel(ctx, req, req.Command.Parameter, common.VoiceChannel, false)
	if err != nil {
		return err
	}
	_, err = f.queues.Start(ctx, req.GuildID, ch.ID)
	return err
}

// handleNext pulls the front member out of a text queue
func (f *Feature) handleNext(ctx context.Context, req *common.Request) error {
	ch, err := f.queueChannel(ctx, req, req.Command.Parameter, common.TextChannel, false)
	if err != nil {
		return err
	}

	memberID, popped, err := f.queues.PopNext(ctx, req.GuildID, ch.ID)
	if err != nil {
		return err
	}
	common.Reply(f.messenger, req, fmt.Sprintf("Pulling next user (%s) from `%s`.", common.Mention(memberID), popped.Name))
	return nil
}

// handleKick removes the mentioned members from a queue
func (f *Feature) handleKick(ctx context.Context, req *common.Request) error {
	ch, err := f.queueChannel(ctx, req, common.StripUserMentions(req.Command.Parameter), common.AnyChannel, true)
	if err != nil {
		return err
	}
	if len(req.UserMentions) == 0 {
		return common.NewUserError(
			fmt.Sprintf("Specify at least one user to kick. For example:\n%s", req.Command.Usage(ch.Name+" @Arrow")),
			"Kick without mentions")
	}

	result, err := f.queues.Kick(ctx, req.GuildID, ch.ID, req.UserMentions)
	if err != nil {
		return err
	}

	var lines []string
	if len(result.Kicked) > 0 {
		lines = append(lines, fmt.Sprintf("Kicked %s from `%s` queue.", common.Mentions(result.Kicked), result.Channel.Name))
	}
	if len(result.NotFound) > 0 {
		lines = append(lines, fmt.Sprintf("Did not find %s in `%s` queue.", common.Mentions(result.NotFound), result.Channel.Name))
	}
	common.Reply(f.messenger, req, strings.Join(lines, "\n"))
	return nil
}

// handleClear empties a queue
func (f *Feature) handleClear(ctx context.Context, req *common.Request) error {
	ch, err := f.queueChannel(ctx, req, req.Command.Parameter, common.AnyChannel, false)
	if err != nil {
		return err
	}

	_, cleared, err := f.queues.Clear(ctx, req.GuildID, ch.ID)
	if err != nil {
		return err
	}
	common.Reply(f.messenger, req, fmt.Sprintf("`%s` queue cleared.", cleared.Name))
	return nil
}

// handleJoin toggles the author, or the mentioned members, in a text queue.
// Only privileged members may move others.
func (f *Feature) handleJoin(ctx context.Context, req *common.Request) error {
	members := []string{req.AuthorID}
	parameter := req.Command.Parameter
	if len(req.UserMentions) > 0 {
		if !req.Privileged {
			return common.NewUserError("You need a `mod` or `admin` role to add others to a queue.", "Join for others without permission")
		}
		members = req.UserMentions
		parameter = common.StripUserMentions(parameter)
	}

	ch, err := f.queueChannel(ctx, req, parameter, common.TextChannel, len(req.UserMentions) > 0)
	if err != nil {
		return err
	}

	result, err := f.queues.JoinText(ctx, req.GuildID, ch.ID, members)
	if err != nil {
		return err
	}

	left := make(map[string]bool, len(result.Left))
	for _, id := range result.Left {
		left[id] = true
	}

	lines := make([]string, 0, len(members))
	for _, id := range members {
		name := f.displayName(req.GuildID, id)
		if left[id] {
			lines = append(lines, fmt.Sprintf("Removed `%s` from the `%s` queue.", name, result.Channel.Name))
		} else {
			lines = append(lines, fmt.Sprintf("Added `%s` to the `%s` queue.", name, result.Channel.Name))
		}
	}
	common.Reply(f.messenger, req, strings.Join(lines, "\n"))
	return nil
}

// queueChannel resolves the queue a command targets among the guild's queues
func (f *Feature) queueChannel(ctx context.Context, req *common.Request, parameter string, kind common.ChannelKind, withMention bool) (*service.Channel, error) {
	tracked, err := f.queues.TrackedChannels(ctx, req.GuildID)
	if err != nil {
		return nil, common.NewSystemError(err, "Failed to list queues")
	}

	hint := f.hint(req, kind, withMention)
	if len(tracked) == 0 {
		return nil, common.NewUserError(hint.NoQueuesMessage(), "No queues set")
	}

	available := common.FilterChannels(tracked, kind)
	ch := common.PickChannel(available, req.ChannelMentions, parameter)
	if ch == nil {
		return nil, common.NewUserError(hint.InvalidChannelMessage(available), "Unknown queue channel")
	}
	return ch, nil
}

func (f *Feature) hint(req *common.Request, kind common.ChannelKind, withMention bool) common.ChannelHint {
	return common.ChannelHint{
		Command:      req.Command,
		Kind:         kind,
		WithMention:  withMention,
		QueueCommand: f.commands.Queue,
	}
}

func (f *Feature) displayName(guildID, memberID string) string {
	if name, ok := f.directory.MemberName(guildID, memberID); ok {
		return name
	}
	return memberID
}

func channelNames(channels []*service.Channel) []string {
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.Name
	}
	return names
}
