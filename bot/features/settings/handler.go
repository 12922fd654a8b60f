package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"queuebot/bot/common"
	"queuebot/service"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

const colorPickerURL = "https://htmlcolorcodes.com/color-picker/"

// handleSetting shows a setting when no value is given, and changes it otherwise
func (f *Feature) handleSetting(ctx context.Context, req *common.Request, s setting) {
	if req.Command.Parameter == "" {
		f.sendUsage(req, s, "")
		return
	}

	value := req.Command.Parameter
	if s.rawValue {
		value = req.Command.Raw
	}

	updated, err := f.settings.SetSetting(ctx, req.GuildID, s.key, value)
	if err != nil {
		var inputErr *service.InputError
		if errors.As(err, &inputErr) {
			f.sendUsage(req, s, inputErr.Message)
			return
		}
		common.HandleError(f.messenger, req, common.NewSystemError(err, "Failed to update "+s.label))
		return
	}

	log.WithFields(log.Fields{
		"guild_id": req.GuildID,
		"user_id":  req.AuthorID,
		"setting":  s.key,
	}).Info("Guild setting updated")
	common.Reply(f.messenger, req, fmt.Sprintf("Set %s to `%s`.", s.label, s.current(updated)))
}

// sendUsage explains the current value and how to change it
func (f *Feature) sendUsage(req *common.Request, s setting, problem string) {
	lines := make([]string, 0, 4)
	if problem != "" {
		lines = append(lines, problem)
	}
	lines = append(lines,
		fmt.Sprintf("The %s is currently set to `%s`.", s.label, s.current(req.Config)),
		fmt.Sprintf("Set a new %s using %s.", s.label, req.Command.Usage("{"+s.label+"}")),
	)
	if s.hint != "" {
		lines = append(lines, s.hint)
	}
	content := strings.Join(lines, "\n")

	if !s.picker {
		common.Reply(f.messenger, req, content)
		return
	}

	picker := &discordgo.MessageEmbed{
		Title: "Hex color picker",
		URL:   colorPickerURL,
		Color: req.Config.Color,
	}
	if err := common.SendEmbeds(f.messenger, req.ChannelID, content, picker); err != nil {
		log.WithError(err).WithField("guild_id", req.GuildID).Error("Error sending color usage")
	}
}
