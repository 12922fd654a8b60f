package bot

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"queuebot/bot/common"
	"queuebot/bot/features/help"
	"queuebot/bot/features/queues"
	"queuebot/bot/features/settings"
	"queuebot/config"
	"queuebot/models"
	"queuebot/service"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

const (
	// commandTimeout bounds the handling of one text command
	commandTimeout = 30 * time.Second

	// guildLoadTimeout bounds the wait for guilds to become available after Ready
	guildLoadTimeout = 30 * time.Second
)

// Intents are the gateway events the bot needs
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsMessageContent

// Config holds bot configuration
type Config struct {
	Commands config.Commands
	// DefaultPrefix always reaches the help command, whatever the guild's prefix
	DefaultPrefix string
	Permissions   *regexp.Regexp
}

// QueueService is everything the bot drives on the queue service
type QueueService interface {
	queues.QueueService
	settings.SettingsService

	Config(ctx context.Context, guildID string) (*models.GuildConfig, error)
	HandleVoiceStateUpdate(ctx context.Context, change service.VoiceStateChange) error
	HandleChannelDelete(ctx context.Context, guildID, channelID string) error
	HandleGuildDelete(ctx context.Context, guildID string) error
	Bootstrap(ctx context.Context, guildIDs []string) error
	Resync(ctx context.Context, guildIDs []string) error
}

type commandHandler func(ctx context.Context, req *common.Request)

// Bot manages the Discord session and routes its events to the queue service
type Bot struct {
	config  Config
	session *discordgo.Session
	gateway *Gateway
	queues  QueueService

	messenger common.Messenger

	// Feature modules
	queueCommands   *queues.Feature
	settingCommands *settings.Feature
	helpCommand     *help.Feature

	open       map[string]commandHandler
	restricted map[string]commandHandler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession creates a Discord session with the bot's intents
func NewSession(token string) (*discordgo.Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	dg.Identify.Intents = Intents
	return dg, nil
}

// New registers the event handlers and opens the websocket connection
func New(config Config, session *discordgo.Session, gateway *Gateway, queueService QueueService) (*Bot, error) {
	bot := newBot(config, session, gateway, queueService)

	// Register handlers
	session.AddHandler(bot.handleReady)
	session.AddHandler(bot.handleResumed)
	session.AddHandler(bot.handleGuildCreate)
	session.AddHandler(bot.handleGuildDelete)
	session.AddHandler(bot.handleChannelDelete)
	session.AddHandler(bot.handleVoiceStateUpdate)
	session.AddHandler(bot.handleMessageCreate)

	// Open websocket connection
	if err := session.Open(); err != nil {
		bot.cancel()
		return nil, fmt.Errorf("error opening connection: %w", err)
	}
	return bot, nil
}

func newBot(config Config, session *discordgo.Session, gateway *Gateway, queueService QueueService) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	bot := &Bot{
		config:  config,
		session: session,
		gateway: gateway,
		queues:  queueService,
		ctx:     ctx,
		cancel:  cancel,
	}
	bot.setupFeatures(gateway, gateway)
	return bot
}

// setupFeatures creates the feature modules and the command table
func (b *Bot) setupFeatures(messenger common.Messenger, directory queues.Directory) {
	b.messenger = messenger
	b.queueCommands = queues.NewFeature(messenger, b.queues, directory, b.config.Commands)
	b.settingCommands = settings.NewFeature(messenger, b.queues, b.config.Commands)
	b.helpCommand = help.NewFeature(messenger, directory, b.config.Commands)

	c := b.config.Commands
	b.open = map[string]commandHandler{
		c.Help: b.helpCommand.Handle,
		c.Join: b.queueCommands.Handle,
	}
	b.restricted = map[string]commandHandler{
		c.Queue:   b.queueCommands.Handle,
		c.Display: b.queueCommands.Handle,
		c.Start:   b.queueCommands.Handle,
		c.Next:    b.queueCommands.Handle,
		c.Kick:    b.queueCommands.Handle,
		c.Clear:   b.queueCommands.Handle,
		c.Grace:   b.settingCommands.Handle,
		c.Prefix:  b.settingCommands.Handle,
		c.Color:   b.settingCommands.Handle,
	}
}

// Close stops background work tied to the bot and closes the session
func (b *Bot) Close() error {
	b.cancel()
	return b.session.Close()
}

// route finds the handler for a command name and whether it is restricted
func (b *Bot) route(name string) (commandHandler, bool) {
	if handler, ok := b.open[name]; ok {
		return handler, false
	}
	if handler, ok := b.restricted[name]; ok {
		return handler, true
	}
	return nil, false
}

// handleMessageCreate parses text commands and runs them
func (b *Bot) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	cfg, err := b.queues.Config(ctx, m.GuildID)
	if err != nil {
		log.WithError(err).WithField("guild_id", m.GuildID).Error("Failed to load guild config")
		return
	}

	cmd, ok := common.ParseCommand(m.Content, cfg.CommandPrefix)
	if !ok {
		// The default help command keeps working after the prefix was changed
		if m.Content != b.config.DefaultPrefix+b.config.Commands.Help {
			return
		}
		cmd = common.Command{Prefix: cfg.CommandPrefix, Name: b.config.Commands.Help}
	}

	handler, restricted := b.route(cmd.Name)
	if handler == nil {
		return
	}

	req := b.newRequest(s, m, cfg, cmd)
	if restricted && !req.Privileged {
		common.DirectMessage(b.messenger, req.AuthorID, fmt.Sprintf(
			"You don't have permission to use bot commands in `%s`. You must be assigned a `mod` or `admin` role on the server to use bot commands.",
			req.GuildName))
		return
	}

	log.WithFields(log.Fields{
		"guild_id": req.GuildID,
		"user_id":  req.AuthorID,
		"command":  cmd.Name,
	}).Debug("Handling command")
	handler(ctx, req)
}

// newRequest collects what the features need to know about a command message
func (b *Bot) newRequest(s *discordgo.Session, m *discordgo.MessageCreate, cfg *models.GuildConfig, cmd common.Command) *common.Request {
	req := &common.Request{
		GuildID:         m.GuildID,
		ChannelID:       m.ChannelID,
		AuthorID:        m.Author.ID,
		Command:         cmd,
		Config:          cfg,
		ChannelMentions: common.ChannelMentions(m.Content),
	}

	if guild, err := s.State.Guild(m.GuildID); err == nil {
		req.GuildName = guild.Name
	}
	if ch, err := s.State.Channel(m.ChannelID); err == nil {
		req.ChannelName = ch.Name
	}
	for _, user := range m.Mentions {
		if !user.Bot {
			req.UserMentions = append(req.UserMentions, user.ID)
		}
	}

	if m.Member != nil {
		// Message members come without their user; cache the pair so queue
		// displays can resolve the author's name.
		member := *m.Member
		member.GuildID = m.GuildID
		member.User = m.Author
		if err := s.State.MemberAdd(&member); err != nil {
			log.WithError(err).WithField("guild_id", m.GuildID).Debug("Failed to cache message author")
		}
		req.Privileged = common.IsPrivileged(s.State, b.config.Permissions, m.GuildID, &member, m.Author.ID)
	} else {
		req.Privileged = common.IsPrivileged(s.State, b.config.Permissions, m.GuildID, nil, m.Author.ID)
	}
	return req
}

// handleReady loads the queues of every guild once they are available
func (b *Bot) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Infof("Logged in as %s#%s", r.User.Username, r.User.Discriminator)

	guildIDs := make([]string, 0, len(r.Guilds))
	for _, g := range r.Guilds {
		guildIDs = append(guildIDs, g.ID)
	}

	go func() {
		b.waitForGuilds(guildIDs)
		if err := b.queues.Bootstrap(b.ctx, guildIDs); err != nil {
			log.WithError(err).Error("Bootstrap finished with errors")
			return
		}
		log.Infof("Bootstrapped %d guilds", len(guildIDs))
	}()
}

// waitForGuilds blocks until every guild arrived in state, or the timeout passed
func (b *Bot) waitForGuilds(guildIDs []string) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(guildLoadTimeout)

	for !b.guildsLoaded(guildIDs) {
		select {
		case <-ticker.C:
		case <-timeout:
			log.Warn("Timed out waiting for guilds to become available")
			return
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Bot) guildsLoaded(guildIDs []string) bool {
	state := b.session.State
	for _, id := range guildIDs {
		guild, err := state.Guild(id)
		if err != nil {
			return false
		}
		state.RLock()
		unavailable := guild.Unavailable
		state.RUnlock()
		if unavailable {
			return false
		}
	}
	return true
}

// handleResumed reconciles voice queues with members that moved while disconnected
func (b *Bot) handleResumed(s *discordgo.Session, _ *discordgo.Resumed) {
	s.State.RLock()
	guildIDs := make([]string, 0, len(s.State.Guilds))
	for _, g := range s.State.Guilds {
		guildIDs = append(guildIDs, g.ID)
	}
	s.State.RUnlock()

	go func() {
		if err := b.queues.Resync(b.ctx, guildIDs); err != nil {
			log.WithError(err).Error("Resync finished with errors")
		}
	}()
}

// handleGuildCreate requests the member list so queued members resolve to names
func (b *Bot) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if err := s.RequestGuildMembers(g.ID, "", 0, "", false); err != nil {
		log.WithError(err).WithField("guild_id", g.ID).Warn("Failed to request guild members")
	}
	log.WithFields(log.Fields{
		"guild_id": g.ID,
		"name":     g.Name,
	}).Debug("Guild available")
}

// handleGuildDelete forgets guilds the bot was removed from. Outages also
// arrive as guild deletes and are ignored.
func (b *Bot) handleGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Unavailable {
		log.WithField("guild_id", g.ID).Warn("Guild became unavailable")
		return
	}
	if err := b.queues.HandleGuildDelete(b.ctx, g.ID); err != nil {
		log.WithError(err).WithField("guild_id", g.ID).Error("Failed to remove guild")
	}
}

func (b *Bot) handleChannelDelete(s *discordgo.Session, c *discordgo.ChannelDelete) {
	if c.GuildID == "" {
		return
	}
	if err := b.queues.HandleChannelDelete(b.ctx, c.GuildID, c.ID); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"guild_id":   c.GuildID,
			"channel_id": c.ID,
		}).Error("Failed to handle channel delete")
	}
}

func (b *Bot) handleVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if err := b.queues.HandleVoiceStateUpdate(b.ctx, voiceStateChange(v)); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"guild_id":  v.GuildID,
			"member_id": v.UserID,
		}).Error("Failed to handle voice state update")
	}
}

// voiceStateChange converts a gateway voice update into the service's form
func voiceStateChange(v *discordgo.VoiceStateUpdate) service.VoiceStateChange {
	change := service.VoiceStateChange{
		GuildID:      v.GuildID,
		MemberID:     v.UserID,
		NewChannelID: v.ChannelID,
	}
	if v.BeforeUpdate != nil {
		change.OldChannelID = v.BeforeUpdate.ChannelID
	}
	if v.Member != nil && v.Member.User != nil {
		change.Bot = v.Member.User.Bot
	}
	return change
}
