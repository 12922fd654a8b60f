package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Messenger is the part of a Discord session used to answer commands
type Messenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// IsForbidden reports whether Discord refused a request for lack of permissions
func IsForbidden(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden
}

// IsNotFound reports whether Discord answered a request with 404
func IsNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

// Reply answers in the channel the command came from. When the bot may not
// write there, the author is told so in a direct message.
func Reply(m Messenger, req *Request, content string) {
	if content == "" {
		return
	}
	_, err := m.ChannelMessageSend(req.ChannelID, content)
	if err == nil {
		return
	}
	if IsForbidden(err) {
		DirectMessage(m, req.AuthorID, fmt.Sprintf("I don't have permission to write messages and embeds in `%s`", req.ChannelName))
		return
	}
	log.WithError(err).WithFields(log.Fields{
		"guild_id":   req.GuildID,
		"channel_id": req.ChannelID,
	}).Error("Error sending reply")
}

// SendEmbeds posts embeds to a channel, stopping at the first failure
func SendEmbeds(m Messenger, channelID string, content string, embeds ...*discordgo.MessageEmbed) error {
	for i, embed := range embeds {
		data := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
		if i == 0 {
			data.Content = content
		}
		if _, err := m.ChannelMessageSendComplex(channelID, data); err != nil {
			return err
		}
	}
	return nil
}

// DirectMessage sends a private message to a user
func DirectMessage(m Messenger, userID string, content string, embeds ...*discordgo.MessageEmbed) {
	channel, err := m.UserChannelCreate(userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Error opening direct message channel")
		return
	}

	if content != "" && len(embeds) == 0 {
		_, err = m.ChannelMessageSend(channel.ID, content)
	} else {
		err = SendEmbeds(m, channel.ID, content, embeds...)
	}
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Error sending direct message")
	}
}
