package help

import (
	"context"
	"fmt"

	"queuebot/bot/common"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Handle posts help in the named text channel, or sends it to the author
// privately when no channel is named.
func (f *Feature) Handle(ctx context.Context, req *common.Request) {
	embeds := f.Embeds(req.Command.Prefix, req.Config.Color)

	if req.Command.Parameter != "" || len(req.ChannelMentions) > 0 {
		channels, err := f.directory.GuildChannels(ctx, req.GuildID)
		if err != nil {
			common.HandleError(f.messenger, req, common.NewSystemError(err, "Failed to list guild channels"))
			return
		}

		text := common.FilterChannels(channels, common.TextChannel)
		if ch := common.FindChannel(text, req.ChannelMentions, req.Command.Parameter); ch != nil {
			err := common.SendEmbeds(f.messenger, ch.ID, "", embeds...)
			if err == nil {
				return
			}
			if !common.IsForbidden(err) {
				log.WithError(err).WithField("channel_id", ch.ID).Error("Error posting help")
				return
			}
			common.DirectMessage(f.messenger, req.AuthorID,
				fmt.Sprintf("I don't have permission to write messages and embeds in `%s`", ch.Name))
			common.DirectMessage(f.messenger, req.AuthorID, "", embeds...)
			return
		}
	}

	common.DirectMessage(f.messenger, req.AuthorID, "", embeds...)
	common.Reply(f.messenger, req, "I have sent help to your PMs.")
}

// Embeds builds the two help messages: commands for everyone, and restricted commands
func (f *Feature) Embeds(prefix string, color int) []*discordgo.MessageEmbed {
	c := f.commands
	usage := func(name, args string) string {
		if args == "" {
			return fmt.Sprintf("`%s%s`", prefix, name)
		}
		return fmt.Sprintf("`%s%s %s`", prefix, name, args)
	}

	open := &discordgo.MessageEmbed{
		Title:  "Non-Restricted Commands",
		Color:  color,
		Author: &discordgo.MessageEmbedAuthor{Name: "Queue Bot"},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Access", Value: "Available to everyone."},
			{
				Name:  "Join a Text Channel Queue",
				Value: usage(c.Join, "{channel name}") + " joins or leaves a text channel queue.",
			},
		},
	}

	restricted := &discordgo.MessageEmbed{
		Title: "Restricted Commands",
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Access", Value: "Available to owners or users with `mod` or `admin` in their server roles."},
			{
				Name: "Modify & View Queues",
				Value: usage(c.Queue, "{channel name}") + " creates a new queue or deletes an existing queue.\n" +
					usage(c.Queue, "") + " shows the existing queues.",
			},
			{
				Name:  "Display Queue Members",
				Value: usage(c.Display, "{channel name}") + " displays the members in a queue. These messages stay updated.",
			},
			{
				Name: "Pull Users from Voice Queue",
				Value: usage(c.Start, "{channel name}") + " adds the bot to a queue voice channel." +
					" The bot can be pulled into a non-queue channel to automatically swap with person at the front of the queue." +
					" Right-click the bot to disconnect it from the voice channel when done.",
			},
			{
				Name:  "Pull Users from Text Queue",
				Value: usage(c.Next, "{channel name}") + " removes the next person in the text queue and displays their name.",
			},
			{
				Name:  "Add Others to a Text Channel Queue",
				Value: usage(c.Join, "{channel name} @{user 1} @{user 2} ...") + " adds other people to a text channel queue.",
			},
			{
				Name:  "Kick Users from Queue",
				Value: usage(c.Kick, "{channel name} @{user 1} @{user 2} ...") + " kicks one or more people from a queue.",
			},
			{
				Name:  "Clear Queue",
				Value: usage(c.Clear, "{channel name}") + " clears a queue.",
			},
			{
				Name:  "Change the Grace Period",
				Value: usage(c.Grace, "{time in seconds}") + " changes how long a person can leave a queue before being removed.",
			},
			{
				Name:  "Change the Command Prefix",
				Value: usage(c.Prefix, "{new prefix}") + " changes the prefix for commands.",
			},
			{
				Name:  "Change the Color",
				Value: usage(c.Color, "{new color}") + " changes the color of bot messages.",
			},
		},
	}

	return []*discordgo.MessageEmbed{open, restricted}
}
