// Package display renders queues into pages and keeps the posted copies of
// those pages in sync with the live queue.
package display

import (
	"fmt"
	"strings"
)

// PageSize is the maximum number of entries on one page
const PageSize = 25

// EmptyQueueText is shown on the only page of an empty queue
const EmptyQueueText = "No members in queue."

// Kind is the type of channel a queue lives in
type Kind int

const (
	KindText Kind = iota
	KindVoice
)

// View carries the per-queue settings that shape a render
type View struct {
	ChannelName        string
	Kind               Kind
	Prefix             string
	JoinCommand        string
	GracePeriodSeconds int
	Color              int
}

// Member is a queued member that still resolves to a display name
type Member struct {
	ID   string
	Name string
}

// Entry is one numbered line of a page
type Entry struct {
	Position int
	MemberID string
	Name     string
}

// Page is one rendered message. Only the first page carries the header.
type Page struct {
	Index       int
	Title       string
	Description string
	LengthLine  string
	Entries     []Entry
	Empty       bool
	Color       int
}

// Body returns the entries as text, or the empty-state text
func (p Page) Body() string {
	if p.Empty {
		return EmptyQueueText
	}
	var sb strings.Builder
	for i, e := range p.Entries {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%d: %s", e.Position, e.Name)
	}
	return sb.String()
}

// Render splits members into pages of at most PageSize entries. Positions
// run from 1 across all pages. An empty queue renders one empty-state page.
func Render(view View, members []Member) []Page {
	header := Page{
		Title:       view.ChannelName + " queue",
		Description: describe(view),
		LengthLine:  fmt.Sprintf("Current queue length: **%d**", len(members)),
		Color:       view.Color,
	}

	if len(members) == 0 {
		header.Empty = true
		return []Page{header}
	}

	pages := make([]Page, 0, (len(members)+PageSize-1)/PageSize)
	for start := 0; start < len(members); start += PageSize {
		end := min(start+PageSize, len(members))

		page := Page{Index: len(pages), Color: view.Color}
		if page.Index == 0 {
			page = header
		}
		page.Entries = make([]Entry, 0, end-start)
		for i, m := range members[start:end] {
			page.Entries = append(page.Entries, Entry{
				Position: start + i + 1,
				MemberID: m.ID,
				Name:     m.Name,
			})
		}
		pages = append(pages, page)
	}
	return pages
}

// Resolve maps queued ids to display names. Ids the resolver does not know
// are returned as stale, in queue order.
func Resolve(ids []string, resolve func(id string) (string, bool)) (members []Member, stale []string) {
	members = make([]Member, 0, len(ids))
	for _, id := range ids {
		name, ok := resolve(id)
		if !ok {
			stale = append(stale, id)
			continue
		}
		members = append(members, Member{ID: id, Name: name})
	}
	return members, stale
}

func describe(view View) string {
	if view.Kind == KindVoice {
		return fmt.Sprintf("Join the **%s** voice channel to join this queue.", view.ChannelName) +
			GracePeriodPhrase(view.GracePeriodSeconds)
	}
	return fmt.Sprintf("Type `%s%s %s` to join or leave this queue.", view.Prefix, view.JoinCommand, view.ChannelName)
}

// GracePeriodPhrase explains the rejoin window, or is empty when there is none
func GracePeriodPhrase(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	return fmt.Sprintf(" If you leave, you have %s to rejoin before being removed from the queue.", FormatDuration(seconds))
}

// FormatDuration spells out a number of seconds as minutes and seconds
func FormatDuration(seconds int) string {
	minutes, secs := seconds/60, seconds%60

	var parts []string
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if secs > 0 || minutes == 0 {
		parts = append(parts, plural(secs, "second"))
	}
	return strings.Join(parts, " and ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
