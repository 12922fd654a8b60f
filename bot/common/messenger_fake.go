package common

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// SentMessage is one message captured by RecordingMessenger
type SentMessage struct {
	ChannelID string
	Content   string
	Embeds    []*discordgo.MessageEmbed
}

// RecordingMessenger is a Messenger that keeps every message in memory, for tests.
// Direct message channels get the id "dm-<user id>".
type RecordingMessenger struct {
	mu       sync.Mutex
	Sent     []SentMessage
	SendErrs map[string]error // channel id -> error returned for sends there
}

func (r *RecordingMessenger) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: content})
}

func (r *RecordingMessenger) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.SendErrs[channelID]; err != nil {
		return nil, err
	}
	r.Sent = append(r.Sent, SentMessage{ChannelID: channelID, Content: data.Content, Embeds: data.Embeds})
	return &discordgo.Message{ID: fmt.Sprintf("m%d", len(r.Sent)), ChannelID: channelID}, nil
}

func (r *RecordingMessenger) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}

// In returns the messages sent to one channel
func (r *RecordingMessenger) In(channelID string) []SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SentMessage
	for _, m := range r.Sent {
		if m.ChannelID == channelID {
			out = append(out, m)
		}
	}
	return out
}

// Contents returns the text of the messages sent to one channel
func (r *RecordingMessenger) Contents(channelID string) []string {
	var out []string
	for _, m := range r.In(channelID) {
		out = append(out, m.Content)
	}
	return out
}
