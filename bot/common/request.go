package common

import (
	"regexp"
	"strings"

	"queuebot/models"
)

var (
	userMentionPattern    = regexp.MustCompile(`<@!?\d+>`)
	channelMentionPattern = regexp.MustCompile(`<#(\d+)>`)
)

// Command is a parsed text command. The prefix may contain spaces, the
// command name may not, and the parameter is everything after the name.
type Command struct {
	Prefix    string
	Name      string
	Parameter string
	// Raw is the parameter exactly as typed, surrounding spaces included
	Raw string
}

// ParseCommand splits a message into prefix, command name and parameter.
// It reports false when the message does not start with the prefix.
func ParseCommand(content, prefix string) (Command, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return Command{}, false
	}

	name, parameter, _ := strings.Cut(content[len(prefix):], " ")
	if name == "" {
		return Command{}, false
	}
	return Command{
		Prefix:    prefix,
		Name:      name,
		Parameter: strings.TrimSpace(parameter),
		Raw:       parameter,
	}, true
}

// Usage formats a command invocation for help and error messages
func (c Command) Usage(args string) string {
	if args == "" {
		return "`" + c.Prefix + c.Name + "`"
	}
	return "`" + c.Prefix + c.Name + " " + args + "`"
}

// StripUserMentions removes member mentions so the rest can be read as a channel name
func StripUserMentions(parameter string) string {
	return strings.TrimSpace(userMentionPattern.ReplaceAllString(parameter, ""))
}

// ChannelMentions returns the ids of channels mentioned in a message, in order
func ChannelMentions(content string) []string {
	var ids []string
	for _, match := range channelMentionPattern.FindAllStringSubmatch(content, -1) {
		ids = append(ids, match[1])
	}
	return ids
}

// Request is one text command with everything a feature needs to answer it
type Request struct {
	GuildID     string
	GuildName   string
	ChannelID   string
	ChannelName string
	AuthorID    string

	Command Command
	Config  *models.GuildConfig

	// Members mentioned in the message, bots excluded
	UserMentions    []string
	ChannelMentions []string

	// Privileged requesters may use restricted commands
	Privileged bool
}
