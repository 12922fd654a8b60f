package bot

import (
	"context"
	"testing"

	"queuebot/display"
	"queuebot/service"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	state := discordgo.NewState()
	require.NoError(t, state.GuildAdd(&discordgo.Guild{
		ID: "g",
		Channels: []*discordgo.Channel{
			{ID: "cat", GuildID: "g", Name: "Queues", Type: discordgo.ChannelTypeGuildCategory, Position: 0},
			{ID: "vc", GuildID: "g", Name: "Lobby", Type: discordgo.ChannelTypeGuildVoice, Position: 2},
			{ID: "tc", GuildID: "g", Name: "general", Type: discordgo.ChannelTypeGuildText, Position: 1},
		},
		Members: []*discordgo.Member{
			{GuildID: "g", Nick: "Ally", User: &discordgo.User{ID: "u1", Username: "alice", GlobalName: "Alice"}},
			{GuildID: "g", User: &discordgo.User{ID: "u2", Username: "bob", GlobalName: "Bobby"}},
			{GuildID: "g", User: &discordgo.User{ID: "u3", Username: "carol"}},
			{GuildID: "g", User: &discordgo.User{ID: "bot", Username: "queuebot", Bot: true}},
		},
		VoiceStates: []*discordgo.VoiceState{
			{GuildID: "g", UserID: "u1", ChannelID: "vc"},
			{GuildID: "g", UserID: "bot", ChannelID: "vc"},
			{GuildID: "g", UserID: "u3", ChannelID: "vc"},
		},
	}))
	require.NoError(t, state.GuildAdd(&discordgo.Guild{
		ID:       "other",
		Channels: []*discordgo.Channel{{ID: "elsewhere", GuildID: "other", Name: "general", Type: discordgo.ChannelTypeGuildText}},
	}))

	return NewGateway(&discordgo.Session{State: state}, rate.NewLimiter(rate.Inf, 1))
}

func TestGateway_Channel(t *testing.T) {
	ctx := context.Background()
	gateway := newTestGateway(t)

	ch, err := gateway.Channel(ctx, "g", "vc")
	require.NoError(t, err)
	assert.Equal(t, &service.Channel{ID: "vc", Name: "Lobby", Voice: true}, ch)

	// Channels of another guild are not visible
	ch, err = gateway.Channel(ctx, "g", "elsewhere")
	require.NoError(t, err)
	assert.Nil(t, ch)

	exists, err := gateway.ChannelExists(ctx, "g", "cat")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGateway_GuildChannels(t *testing.T) {
	gateway := newTestGateway(t)

	channels, err := gateway.GuildChannels(context.Background(), "g")
	require.NoError(t, err)
	assert.Equal(t, []*service.Channel{
		{ID: "tc", Name: "general"},
		{ID: "vc", Name: "Lobby", Voice: true},
	}, channels)
}

func TestGateway_VoiceMembersSkipsBots(t *testing.T) {
	gateway := newTestGateway(t)

	members, err := gateway.VoiceMembers(context.Background(), "g", "vc")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, members)
}

func TestGateway_VoiceChannelOf(t *testing.T) {
	ctx := context.Background()
	gateway := newTestGateway(t)

	channel, err := gateway.VoiceChannelOf(ctx, "g", "u1")
	require.NoError(t, err)
	assert.Equal(t, "vc", channel)

	channel, err = gateway.VoiceChannelOf(ctx, "g", "u2")
	require.NoError(t, err)
	assert.Empty(t, channel)
}

func TestGateway_MemberName(t *testing.T) {
	gateway := newTestGateway(t)

	tests := []struct {
		memberID string
		want     string
		ok       bool
	}{
		{"u1", "Ally", true},
		{"u2", "Bobby", true},
		{"u3", "carol", true},
		{"gone", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.memberID, func(t *testing.T) {
			name, ok := gateway.MemberName("g", tt.memberID)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, name)
		})
	}
}

func TestPageEmbed(t *testing.T) {
	view := display.View{ChannelName: "general", Kind: display.KindText, Prefix: "!", JoinCommand: "join", Color: 0x51ff7e}

	empty := display.Render(view, nil)
	require.Len(t, empty, 1)
	embed := PageEmbed(empty[0])
	assert.Equal(t, "general queue", embed.Title)
	assert.Equal(t, "Type `!join general` to join or leave this queue.", embed.Description)
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "Current queue length: **0**", embed.Fields[0].Name)
	assert.Equal(t, display.EmptyQueueText, embed.Fields[0].Value)
	assert.Equal(t, 0x51ff7e, embed.Color)

	members := make([]display.Member, display.PageSize+1)
	for i := range members {
		members[i] = display.Member{ID: "m", Name: "Name"}
	}
	pages := display.Render(view, members)
	require.Len(t, pages, 2)
	second := PageEmbed(pages[1])
	assert.Empty(t, second.Title)
	assert.Empty(t, second.Fields)
	assert.Equal(t, "26: Name", second.Description)
}
