package bot

import (
	"context"
	"testing"

	"queuebot/bot/common"
	"queuebot/config"
	"queuebot/models"
	"queuebot/service"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockQueueService is a mock implementation of QueueService
type MockQueueService struct {
	mock.Mock
}

func (m *MockQueueService) Config(ctx context.Context, guildID string) (*models.GuildConfig, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GuildConfig), args.Error(1)
}

func (m *MockQueueService) TrackedChannels(ctx context.Context, guildID string) ([]*service.Channel, error) {
	args := m.Called(ctx, guildID)
	return args.Get(0).([]*service.Channel), args.Error(1)
}

func (m *MockQueueService) ToggleQueue(ctx context.Context, guildID, channelID string) (service.ToggleResult, error) {
	args := m.Called(ctx, guildID, channelID)
	return args.Get(0).(service.ToggleResult), args.Error(1)
}

func (m *MockQueueService) JoinText(ctx context.Context, guildID, channelID string, memberIDs []string) (service.JoinResult, error) {
	args := m.Called(ctx, guildID, channelID, memberIDs)
	return args.Get(0).(service.JoinResult), args.Error(1)
}

func (m *MockQueueService) PopNext(ctx context.Context, guildID, channelID string) (string, *service.Channel, error) {
	args := m.Called(ctx, guildID, channelID)
	return args.String(0), args.Get(1).(*service.Channel), args.Error(2)
}

func (m *MockQueueService) Kick(ctx context.Context, guildID, channelID string, memberIDs []string) (service.KickResult, error) {
	args := m.Called(ctx, guildID, channelID, memberIDs)
	return args.Get(0).(service.KickResult), args.Error(1)
}

func (m *MockQueueService) Clear(ctx context.Context, guildID, channelID string) (int, *service.Channel, error) {
	args := m.Called(ctx, guildID, channelID)
	return args.Int(0), args.Get(1).(*service.Channel), args.Error(2)
}

func (m *MockQueueService) RequestDisplay(ctx context.Context, guildID, queueChannelID, outputChannelID string) error {
	return m.Called(ctx, guildID, queueChannelID, outputChannelID).Error(0)
}

func (m *MockQueueService) Start(ctx context.Context, guildID, channelID string) (*service.Channel, error) {
	args := m.Called(ctx, guildID, channelID)
	return args.Get(0).(*service.Channel), args.Error(1)
}

func (m *MockQueueService) SetSetting(ctx context.Context, guildID, setting, raw string) (*models.GuildConfig, error) {
	args := m.Called(ctx, guildID, setting, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GuildConfig), args.Error(1)
}

func (m *MockQueueService) HandleVoiceStateUpdate(ctx context.Context, change service.VoiceStateChange) error {
	return m.Called(ctx, change).Error(0)
}

func (m *MockQueueService) HandleChannelDelete(ctx context.Context, guildID, channelID string) error {
	return m.Called(ctx, guildID, channelID).Error(0)
}

func (m *MockQueueService) HandleGuildDelete(ctx context.Context, guildID string) error {
	return m.Called(ctx, guildID).Error(0)
}

func (m *MockQueueService) Bootstrap(ctx context.Context, guildIDs []string) error {
	return m.Called(ctx, guildIDs).Error(0)
}

func (m *MockQueueService) Resync(ctx context.Context, guildIDs []string) error {
	return m.Called(ctx, guildIDs).Error(0)
}

var testGuildDefaults = models.Defaults{CommandPrefix: "!", Color: 0x51ff7e}

func newTestBot(t *testing.T) (*Bot, *MockQueueService, *common.RecordingMessenger) {
	t.Helper()

	gateway := newTestGateway(t)
	state := gateway.session.State
	require.NoError(t, state.RoleAdd("g", &discordgo.Role{ID: "r-mod", Name: "Mod"}))
	guild, err := state.Guild("g")
	require.NoError(t, err)
	guild.Name = "Arcade"
	guild.OwnerID = "owner"

	cfg := config.NewTestConfig()
	queues := new(MockQueueService)
	messenger := &common.RecordingMessenger{}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	b := &Bot{
		config: Config{
			Commands:      cfg.Commands,
			DefaultPrefix: cfg.DefaultPrefix,
			Permissions:   cfg.Permissions(),
		},
		session: gateway.session,
		gateway: gateway,
		queues:  queues,
		ctx:     ctx,
		cancel:  cancel,
	}
	b.setupFeatures(messenger, gateway)
	return b, queues, messenger
}

func message(authorID, content string, roles ...string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID:   "g",
		ChannelID: "tc",
		Content:   content,
		Author:    &discordgo.User{ID: authorID, Username: authorID},
		Member:    &discordgo.Member{Roles: roles},
	}}
}

func TestRoute(t *testing.T) {
	b, _, _ := newTestBot(t)

	tests := []struct {
		name       string
		found      bool
		restricted bool
	}{
		{"join", true, false},
		{"help", true, false},
		{"queue", true, true},
		{"next", true, true},
		{"color", true, true},
		{"dance", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, restricted := b.route(tt.name)
			assert.Equal(t, tt.found, handler != nil)
			assert.Equal(t, tt.restricted, restricted)
		})
	}
}

func TestHandleMessageCreate_RestrictedCommandWithoutRole(t *testing.T) {
	b, queues, messenger := newTestBot(t)
	queues.On("Config", mock.Anything, "g").Return(models.NewGuildConfig("g", testGuildDefaults), nil)

	b.handleMessageCreate(b.session, message("dora", "!next Lobby"))

	assert.Equal(t, []string{
		"You don't have permission to use bot commands in `Arcade`. You must be assigned a `mod` or `admin` role on the server to use bot commands.",
	}, messenger.Contents("dm-dora"))
	assert.Empty(t, messenger.In("tc"))
	queues.AssertNotCalled(t, "PopNext", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMessageCreate_RestrictedCommandWithRole(t *testing.T) {
	b, queues, messenger := newTestBot(t)
	queues.On("Config", mock.Anything, "g").Return(models.NewGuildConfig("g", testGuildDefaults), nil)
	queues.On("TrackedChannels", mock.Anything, "g").Return([]*service.Channel{{ID: "tc", Name: "general"}}, nil)
	queues.On("Clear", mock.Anything, "g", "tc").Return(2, &service.Channel{ID: "tc", Name: "general"}, nil)

	b.handleMessageCreate(b.session, message("dora", "!clear general", "r-mod"))

	assert.Equal(t, []string{"`general` queue cleared."}, messenger.Contents("tc"))
	queues.AssertExpectations(t)
}

func TestHandleMessageCreate_JoinCachesAuthorName(t *testing.T) {
	b, queues, messenger := newTestBot(t)
	queues.On("Config", mock.Anything, "g").Return(models.NewGuildConfig("g", testGuildDefaults), nil)
	queues.On("TrackedChannels", mock.Anything, "g").Return([]*service.Channel{{ID: "tc", Name: "general"}}, nil)
	queues.On("JoinText", mock.Anything, "g", "tc", []string{"dora"}).
		Return(service.JoinResult{Channel: &service.Channel{ID: "tc", Name: "general"}, Joined: []string{"dora"}}, nil)

	b.handleMessageCreate(b.session, message("dora", "!join"))

	assert.Equal(t, []string{"Added `dora` to the `general` queue."}, messenger.Contents("tc"))
	name, ok := b.gateway.MemberName("g", "dora")
	assert.True(t, ok)
	assert.Equal(t, "dora", name)
	queues.AssertExpectations(t)
}

func TestHandleMessageCreate_DefaultHelpAfterPrefixChange(t *testing.T) {
	b, queues, messenger := newTestBot(t)
	cfg := models.NewGuildConfig("g", testGuildDefaults)
	cfg.CommandPrefix = "?"
	queues.On("Config", mock.Anything, "g").Return(cfg, nil)

	b.handleMessageCreate(b.session, message("dora", "!help"))

	dms := messenger.In("dm-dora")
	require.Len(t, dms, 1)
	require.Len(t, dms[0].Embeds, 2)
	assert.Equal(t, []string{"I have sent help to your PMs."}, messenger.Contents("tc"))

	// Other commands only answer to the guild's prefix
	b.handleMessageCreate(b.session, message("dora", "!join"))
	assert.Len(t, messenger.Sent, 2)
}

func TestHandleMessageCreate_Ignored(t *testing.T) {
	b, queues, messenger := newTestBot(t)
	queues.On("Config", mock.Anything, "g").Return(models.NewGuildConfig("g", testGuildDefaults), nil)

	fromBot := message("other-bot", "!help")
	fromBot.Author.Bot = true
	b.handleMessageCreate(b.session, fromBot)

	direct := message("dora", "!help")
	direct.GuildID = ""
	b.handleMessageCreate(b.session, direct)

	b.handleMessageCreate(b.session, message("dora", "hello there"))
	b.handleMessageCreate(b.session, message("dora", "!dance"))

	assert.Empty(t, messenger.Sent)
	queues.AssertNumberOfCalls(t, "Config", 2)
}

func TestNewRequest(t *testing.T) {
	b, _, _ := newTestBot(t)
	cfg := models.NewGuildConfig("g", testGuildDefaults)

	m := message("owner", "!join <#tc> <@u2> <@bot>")
	m.Mentions = []*discordgo.User{{ID: "u2"}, {ID: "bot", Bot: true}}
	cmd, ok := common.ParseCommand(m.Content, "!")
	require.True(t, ok)

	req := b.newRequest(b.session, m, cfg, cmd)
	assert.Equal(t, "Arcade", req.GuildName)
	assert.Equal(t, "general", req.ChannelName)
	assert.Equal(t, []string{"u2"}, req.UserMentions)
	assert.Equal(t, []string{"tc"}, req.ChannelMentions)
	assert.True(t, req.Privileged)
	assert.Same(t, cfg, req.Config)
}

func TestVoiceStateChange(t *testing.T) {
	update := &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{
			GuildID:   "g",
			UserID:    "u1",
			ChannelID: "vc",
			Member:    &discordgo.Member{User: &discordgo.User{ID: "u1", Bot: true}},
		},
		BeforeUpdate: &discordgo.VoiceState{ChannelID: "old"},
	}

	assert.Equal(t, service.VoiceStateChange{
		GuildID:      "g",
		MemberID:     "u1",
		Bot:          true,
		OldChannelID: "old",
		NewChannelID: "vc",
	}, voiceStateChange(update))

	// First connection has no previous state
	update.BeforeUpdate = nil
	update.Member = nil
	assert.Equal(t, service.VoiceStateChange{GuildID: "g", MemberID: "u1", NewChannelID: "vc"}, voiceStateChange(update))
}
