package display

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func members(n int) []Member {
	out := make([]Member, n)
	for i := range out {
		out[i] = Member{ID: fmt.Sprintf("id%d", i), Name: fmt.Sprintf("user%d", i)}
	}
	return out
}

func TestRender_PageCountsAndPositions(t *testing.T) {
	view := View{ChannelName: "lobby", Kind: KindText, Prefix: "!", JoinCommand: "join"}

	for _, n := range []int{1, 24, 25, 26, 50, 51, 120} {
		t.Run(fmt.Sprintf("%d members", n), func(t *testing.T) {
			pages := Render(view, members(n))

			require.Len(t, pages, (n+PageSize-1)/PageSize)

			position := 1
			for i, page := range pages {
				assert.Equal(t, i, page.Index)
				assert.LessOrEqual(t, len(page.Entries), PageSize)
				assert.False(t, page.Empty)
				for _, e := range page.Entries {
					assert.Equal(t, position, e.Position)
					position++
				}
			}
			assert.Equal(t, n+1, position)
		})
	}
}

func TestRender_EmptyQueue(t *testing.T) {
	pages := Render(View{ChannelName: "lobby"}, nil)

	require.Len(t, pages, 1)
	assert.True(t, pages[0].Empty)
	assert.Empty(t, pages[0].Entries)
	assert.Equal(t, EmptyQueueText, pages[0].Body())
	assert.Equal(t, "Current queue length: **0**", pages[0].LengthLine)
}

func TestRender_HeaderOnlyOnFirstPage(t *testing.T) {
	pages := Render(View{ChannelName: "lobby", Color: 0xabcdef}, members(30))

	require.Len(t, pages, 2)
	assert.Equal(t, "lobby queue", pages[0].Title)
	assert.Equal(t, "Current queue length: **30**", pages[0].LengthLine)
	assert.Empty(t, pages[1].Title)
	assert.Empty(t, pages[1].LengthLine)
	assert.Equal(t, 0xabcdef, pages[1].Color)
}

func TestRender_Descriptions(t *testing.T) {
	text := Render(View{ChannelName: "help-desk", Kind: KindText, Prefix: "q!", JoinCommand: "join"}, nil)
	assert.Equal(t, "Type `q!join help-desk` to join or leave this queue.", text[0].Description)

	voice := Render(View{ChannelName: "Lobby", Kind: KindVoice, GracePeriodSeconds: 90}, nil)
	assert.Equal(t,
		"Join the **Lobby** voice channel to join this queue. If you leave, you have 1 minute and 30 seconds to rejoin before being removed from the queue.",
		voice[0].Description)

	noGrace := Render(View{ChannelName: "Lobby", Kind: KindVoice}, nil)
	assert.Equal(t, "Join the **Lobby** voice channel to join this queue.", noGrace[0].Description)
}

func TestResolve_PrunesStaleAndKeepsNumberingContiguous(t *testing.T) {
	names := map[string]string{"A": "Alice", "C": "Carol"}
	resolved, stale := Resolve([]string{"A", "B", "C"}, func(id string) (string, bool) {
		name, ok := names[id]
		return name, ok
	})

	assert.Equal(t, []string{"B"}, stale)

	pages := Render(View{ChannelName: "lobby"}, resolved)
	require.Len(t, pages, 1)
	assert.Equal(t, "1: Alice\n2: Carol", pages[0].Body())
}

func TestRender_PopKickScenario(t *testing.T) {
	pages := Render(View{ChannelName: "lobby"}, []Member{{ID: "C", Name: "C"}})

	require.Len(t, pages, 1)
	require.Len(t, pages[0].Entries, 1)
	assert.Equal(t, "1: C", pages[0].Body())
}

func TestFormatDuration(t *testing.T) {
	tests := map[int]string{
		1:   "1 second",
		45:  "45 seconds",
		60:  "1 minute",
		61:  "1 minute and 1 second",
		150: "2 minutes and 30 seconds",
		300: "5 minutes",
	}
	for seconds, want := range tests {
		assert.Equal(t, want, FormatDuration(seconds), "%d seconds", seconds)
	}
	assert.Empty(t, GracePeriodPhrase(0))
}
