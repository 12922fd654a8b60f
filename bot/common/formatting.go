package common

import (
	"strings"
)

// Mention returns a Discord mention string for a user
func Mention(userID string) string {
	return "<@" + userID + ">"
}

// Mentions formats user ids as a space separated list of mentions
func Mentions(userIDs []string) string {
	mentions := make([]string, len(userIDs))
	for i, id := range userIDs {
		mentions[i] = Mention(id)
	}
	return strings.Join(mentions, " ")
}

// CodeList formats names as a comma separated list of inline code spans
func CodeList(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = "`" + name + "`"
	}
	return strings.Join(quoted, ", ")
}
