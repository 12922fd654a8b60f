package common

import (
	"fmt"
	"slices"
	"strings"

	"queuebot/service"
)

// ChannelKind narrows which queue channels a command accepts
type ChannelKind int

const (
	AnyChannel ChannelKind = iota
	TextChannel
	VoiceChannel
)

func (k ChannelKind) String() string {
	switch k {
	case TextChannel:
		return "text"
	case VoiceChannel:
		return "voice"
	default:
		return ""
	}
}

// Accepts reports whether a channel is of this kind
func (k ChannelKind) Accepts(ch *service.Channel) bool {
	switch k {
	case TextChannel:
		return !ch.Voice
	case VoiceChannel:
		return ch.Voice
	default:
		return true
	}
}

// FilterChannels keeps the channels of one kind
func FilterChannels(channels []*service.Channel, kind ChannelKind) []*service.Channel {
	var out []*service.Channel
	for _, ch := range channels {
		if kind.Accepts(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// FindChannel matches a mentioned channel first, then an exact name, then a
// case-insensitive name.
func FindChannel(candidates []*service.Channel, mentionIDs []string, name string) *service.Channel {
	for _, id := range mentionIDs {
		if i := slices.IndexFunc(candidates, func(ch *service.Channel) bool { return ch.ID == id }); i >= 0 {
			return candidates[i]
		}
	}
	if name == "" {
		return nil
	}
	if i := slices.IndexFunc(candidates, func(ch *service.Channel) bool { return ch.Name == name }); i >= 0 {
		return candidates[i]
	}
	if i := slices.IndexFunc(candidates, func(ch *service.Channel) bool { return strings.EqualFold(ch.Name, name) }); i >= 0 {
		return candidates[i]
	}
	return nil
}

// PickChannel is FindChannel, except that a command without a channel
// argument goes to the only candidate when there is exactly one.
func PickChannel(candidates []*service.Channel, mentionIDs []string, name string) *service.Channel {
	if name == "" && len(mentionIDs) == 0 && len(candidates) == 1 {
		return candidates[0]
	}
	return FindChannel(candidates, mentionIDs, name)
}

// ChannelHint describes the command being answered when no channel matched
type ChannelHint struct {
	Command Command
	Kind    ChannelKind
	// WithMention adds a member placeholder to the suggested usage
	WithMention bool
	// QueueCommand is the name of the command that creates queues
	QueueCommand string
}

// NoQueuesMessage tells the user there is no queue of the requested kind yet
func (h ChannelHint) NoQueuesMessage() string {
	kind := h.Kind.String()
	return fmt.Sprintf("No %squeue channels set.\nSet a %squeue first using `%s%s {channel name}`",
		bold(kind), plain(kind), h.Command.Prefix, h.QueueCommand)
}

// InvalidChannelMessage suggests valid channel arguments for the command
func (h ChannelHint) InvalidChannelMessage(available []*service.Channel) string {
	if len(available) == 0 {
		return h.NoQueuesMessage()
	}

	kind := h.Kind.String()
	mention := ""
	if h.WithMention {
		mention = " @{user}"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Invalid %schannel name! Try `%s%s ", bold(kind), h.Command.Prefix, h.Command.Name)
	if len(available) == 1 {
		sb.WriteString(available[0].Name + mention + "`.")
		return sb.String()
	}

	names := make([]string, len(available))
	for i, ch := range available {
		names[i] = ch.Name
	}
	fmt.Fprintf(&sb, "{channel name}%s`.\nAvailable %schannel names: %s", mention, bold(kind), CodeList(names))
	return sb.String()
}

func bold(word string) string {
	if word == "" {
		return ""
	}
	return "**" + word + "** "
}

func plain(word string) string {
	if word == "" {
		return ""
	}
	return word + " "
}
