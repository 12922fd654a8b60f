package common

import (
	"regexp"

	"github.com/bwmarrin/discordgo"
)

// IsPrivileged reports whether a member may use restricted commands: the
// guild owner, or anyone holding a role whose name matches the pattern.
func IsPrivileged(state *discordgo.State, pattern *regexp.Regexp, guildID string, member *discordgo.Member, userID string) bool {
	guild, err := state.Guild(guildID)
	if err == nil && guild.OwnerID == userID {
		return true
	}
	if member == nil || pattern == nil {
		return false
	}

	for _, roleID := range member.Roles {
		role, err := state.Role(guildID, roleID)
		if err != nil {
			continue
		}
		if pattern.MatchString(role.Name) {
			return true
		}
	}
	return false
}
