package bot

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"queuebot/bot/common"
	"queuebot/display"
	"queuebot/service"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Gateway is the queue service's view of Discord. Reads are served from the
// session's state cache where possible, and every outgoing message waits on
// a shared rate limiter.
type Gateway struct {
	session *discordgo.Session
	limiter *rate.Limiter
}

// NewGateway creates a gateway over a session
func NewGateway(session *discordgo.Session, limiter *rate.Limiter) *Gateway {
	return &Gateway{
		session: session,
		limiter: limiter,
	}
}

// PageEmbed renders a display page as a Discord embed
func PageEmbed(page display.Page) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Color: page.Color}
	if page.Index > 0 {
		embed.Description = page.Body()
		return embed
	}

	embed.Title = page.Title
	embed.Description = page.Description
	embed.Fields = []*discordgo.MessageEmbedField{{
		Name:  page.LengthLine,
		Value: page.Body(),
	}}
	return embed
}

func (g *Gateway) wait(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// ChannelExists reports whether a channel still exists in the guild
func (g *Gateway) ChannelExists(ctx context.Context, guildID, channelID string) (bool, error) {
	ch, err := g.Channel(ctx, guildID, channelID)
	if err != nil {
		return false, err
	}
	return ch != nil, nil
}

// SendPage posts a page and returns the new message id
func (g *Gateway) SendPage(ctx context.Context, channelID string, page display.Page) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	msg, err := g.session.ChannelMessageSendEmbed(channelID, PageEmbed(page), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to send page: %w", err)
	}
	return msg.ID, nil
}

// EditPage replaces the content of a posted page
func (g *Gateway) EditPage(ctx context.Context, channelID, messageID string, page display.Page) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	if _, err := g.session.ChannelMessageEditEmbed(channelID, messageID, PageEmbed(page), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to edit page %s: %w", messageID, err)
	}
	return nil
}

// DeleteMessage deletes a posted page. A message that is already gone is not an error.
func (g *Gateway) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	err := g.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil && !common.IsNotFound(err) {
		return fmt.Errorf("failed to delete message %s: %w", messageID, err)
	}
	return nil
}

// VoiceChannelOf returns the voice channel a member is connected to, or ""
func (g *Gateway) VoiceChannelOf(_ context.Context, guildID, memberID string) (string, error) {
	vs, err := g.session.State.VoiceState(guildID, memberID)
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return vs.ChannelID, nil
}

// Channel looks a channel up in the state cache, then over REST. Channels of
// other guilds and channels that are neither text nor voice count as missing.
func (g *Gateway) Channel(ctx context.Context, guildID, channelID string) (*service.Channel, error) {
	ch, err := g.session.State.Channel(channelID)
	if err != nil {
		ch, err = g.session.Channel(channelID, discordgo.WithContext(ctx))
		if common.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch channel %s: %w", channelID, err)
		}
	}
	if ch.GuildID != guildID {
		return nil, nil
	}
	return toChannel(ch), nil
}

// GuildChannels lists the guild's text and voice channels in position order
func (g *Gateway) GuildChannels(ctx context.Context, guildID string) ([]*service.Channel, error) {
	var raw []*discordgo.Channel
	if guild, err := g.session.State.Guild(guildID); err == nil {
		g.session.State.RLock()
		raw = append(raw, guild.Channels...)
		g.session.State.RUnlock()
	} else {
		raw, err = g.session.GuildChannels(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch channels of guild %s: %w", guildID, err)
		}
	}

	sortChannels(raw)
	channels := make([]*service.Channel, 0, len(raw))
	for _, ch := range raw {
		if c := toChannel(ch); c != nil {
			channels = append(channels, c)
		}
	}
	return channels, nil
}

// VoiceMembers lists the humans connected to a voice channel
func (g *Gateway) VoiceMembers(_ context.Context, guildID, channelID string) ([]string, error) {
	guild, err := g.session.State.Guild(guildID)
	if err != nil {
		return nil, fmt.Errorf("guild %s not in state: %w", guildID, err)
	}

	g.session.State.RLock()
	var connected []*discordgo.VoiceState
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == channelID {
			connected = append(connected, vs)
		}
	}
	g.session.State.RUnlock()

	members := make([]string, 0, len(connected))
	for _, vs := range connected {
		if g.isBot(guildID, vs) {
			continue
		}
		members = append(members, vs.UserID)
	}
	return members, nil
}

func (g *Gateway) isBot(guildID string, vs *discordgo.VoiceState) bool {
	if vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	member, err := g.session.State.Member(guildID, vs.UserID)
	if err != nil || member.User == nil {
		return false
	}
	return member.User.Bot
}

// MemberName returns the member's guild nickname, global name or username.
// Members missing from the state cache are reported as departed.
func (g *Gateway) MemberName(guildID, memberID string) (string, bool) {
	member, err := g.session.State.Member(guildID, memberID)
	if err != nil || member.User == nil {
		return "", false
	}
	switch {
	case member.Nick != "":
		return member.Nick, true
	case member.User.GlobalName != "":
		return member.User.GlobalName, true
	default:
		return member.User.Username, true
	}
}

// MoveMember moves a connected member into a voice channel
func (g *Gateway) MoveMember(ctx context.Context, guildID, memberID, channelID string) error {
	if err := g.session.GuildMemberMove(guildID, memberID, &channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to move member %s: %w", memberID, err)
	}
	return nil
}

// JoinVoice connects the bot, muted, to a voice channel
func (g *Gateway) JoinVoice(_ context.Context, guildID, channelID string) error {
	if _, err := g.session.ChannelVoiceJoin(guildID, channelID, true, false); err != nil {
		return fmt.Errorf("failed to join voice channel %s: %w", channelID, err)
	}
	log.WithFields(log.Fields{
		"guild_id":   guildID,
		"channel_id": channelID,
	}).Info("Joined voice channel")
	return nil
}

// Paced Messenger implementation used by the command features

func (g *Gateway) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if err := g.wait(context.Background()); err != nil {
		return nil, err
	}
	return g.session.ChannelMessageSend(channelID, content, options...)
}

func (g *Gateway) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if err := g.wait(context.Background()); err != nil {
		return nil, err
	}
	return g.session.ChannelMessageSendComplex(channelID, data, options...)
}

func (g *Gateway) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return g.session.UserChannelCreate(recipientID, options...)
}

func toChannel(ch *discordgo.Channel) *service.Channel {
	switch ch.Type {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
		return &service.Channel{ID: ch.ID, Name: ch.Name}
	case discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice:
		return &service.Channel{ID: ch.ID, Name: ch.Name, Voice: true}
	default:
		return nil
	}
}

func sortChannels(channels []*discordgo.Channel) {
	slices.SortStableFunc(channels, func(a, b *discordgo.Channel) int {
		return cmp.Compare(a.Position, b.Position)
	})
}
