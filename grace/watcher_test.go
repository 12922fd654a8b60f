package grace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock hands each After call to the test, which fires it explicitly
type manualClock struct {
	waiters chan chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{waiters: make(chan chan time.Time, 16)}
}

func (c *manualClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.waiters <- ch
	return ch
}

// tick fires the next pending poll
func (c *manualClock) tick(t *testing.T) {
	t.Helper()
	select {
	case ch := <-c.waiters:
		ch <- time.Time{}
	case <-time.After(2 * time.Second):
		t.Fatal("no watcher is waiting on the clock")
	}
}

type fakePresence struct {
	mu       sync.Mutex
	channels map[string]string
	err      error
}

func (p *fakePresence) set(memberID, channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[memberID] = channelID
}

func (p *fakePresence) VoiceChannelOf(_ context.Context, _, memberID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	return p.channels[memberID], nil
}

type harness struct {
	clock    *manualClock
	presence *fakePresence
	watcher  *Watcher

	mu       sync.Mutex
	removed  map[string]int
	queued   map[string]bool
	outcomes []Outcome
	done     chan Outcome
}

func newHarness(poll time.Duration) *harness {
	h := &harness{
		clock:    newManualClock(),
		presence: &fakePresence{channels: map[string]string{}},
		removed:  map[string]int{},
		queued:   map[string]bool{},
		done:     make(chan Outcome, 16),
	}
	h.watcher = NewWatcher(h.presence, h.expire, poll)
	h.watcher.After = h.clock.After
	h.watcher.OnDone = func(_ Request, o Outcome) {
		h.mu.Lock()
		h.outcomes = append(h.outcomes, o)
		h.mu.Unlock()
		h.done <- o
	}
	return h
}

// expire removes idempotently, like the queue does
func (h *harness) expire(_ context.Context, req Request) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.queued[req.MemberID] {
		h.queued[req.MemberID] = false
		h.removed[req.MemberID]++
	}
	return nil
}

func (h *harness) waitOutcome(t *testing.T) Outcome {
	t.Helper()
	select {
	case o := <-h.done:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not finish")
		return -1
	}
}

// drive fires polls until n watchers have finished and returns their outcomes
func (h *harness) drive(t *testing.T, n int) []Outcome {
	t.Helper()
	var outcomes []Outcome
	for len(outcomes) < n {
		select {
		case o := <-h.done:
			outcomes = append(outcomes, o)
		case ch := <-h.clock.waiters:
			ch <- time.Time{}
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d watchers finished", len(outcomes), n)
		}
	}
	return outcomes
}

func request(member string, grace time.Duration) Request {
	return Request{GuildID: "g", ChannelID: "voice", MemberID: member, GracePeriod: grace}
}

func TestWatcher_RejoinAtFirstPollKeepsMember(t *testing.T) {
	h := newHarness(2 * time.Second)
	h.queued["m"] = true

	h.watcher.Watch(context.Background(), request("m", 4*time.Second))
	h.presence.set("m", "voice")
	h.clock.tick(t)

	assert.Equal(t, OutcomeRejoined, h.waitOutcome(t))
	h.watcher.Wait()
	assert.Equal(t, 0, h.removed["m"])
	assert.True(t, h.queued["m"])
}

func TestWatcher_AbsentThroughGracePeriodRemovesOnce(t *testing.T) {
	h := newHarness(2 * time.Second)
	h.queued["m"] = true

	h.watcher.Watch(context.Background(), request("m", 4*time.Second))
	h.presence.set("m", "other")
	h.clock.tick(t) // t=2s, still away
	h.clock.tick(t) // t=4s, grace period over

	assert.Equal(t, OutcomeExpired, h.waitOutcome(t))
	h.watcher.Wait()
	assert.Equal(t, 1, h.removed["m"])
	assert.Equal(t, 0, h.watcher.Pending())
}

func TestWatcher_RepeatedDepartureNeverDoubleRemoves(t *testing.T) {
	h := newHarness(2 * time.Second)
	h.queued["m"] = true

	ctx := context.Background()
	h.watcher.Watch(ctx, request("m", 4*time.Second))
	h.watcher.Watch(ctx, request("m", 4*time.Second))

	outcomes := h.drive(t, 2)
	h.watcher.Wait()

	assert.ElementsMatch(t, []Outcome{OutcomeSuperseded, OutcomeExpired}, outcomes)
	assert.Equal(t, 1, h.removed["m"])
}

func TestWatcher_SupersededWatcherStaysSupersededAfterKeyIsReleased(t *testing.T) {
	h := newHarness(2 * time.Second)
	h.queued["m"] = true
	ctx := context.Background()

	// First departure, still waiting on its first poll
	h.watcher.Watch(ctx, request("m", 4*time.Second))

	// Second departure with no grace finishes at once and releases the key
	h.watcher.Watch(ctx, request("m", 0))
	require.Equal(t, OutcomeExpired, h.waitOutcome(t))

	// Member came back and left again
	h.mu.Lock()
	h.queued["m"] = true
	h.mu.Unlock()
	h.watcher.Watch(ctx, request("m", 4*time.Second))

	// The first watcher gives way to the newest one
	outcomes := h.drive(t, 2)
	h.watcher.Wait()
	assert.ElementsMatch(t, []Outcome{OutcomeSuperseded, OutcomeExpired}, outcomes)
	assert.Equal(t, 2, h.removed["m"])
	assert.Equal(t, 0, h.watcher.Pending())
}

func TestWatcher_OverlappingExpiriesStayIdempotent(t *testing.T) {
	h := newHarness(2 * time.Second)
	h.queued["a"] = true

	// departures from different channels do not supersede each other
	ctx := context.Background()
	h.watcher.Watch(ctx, Request{GuildID: "g", ChannelID: "v1", MemberID: "a", GracePeriod: 2 * time.Second})
	h.watcher.Watch(ctx, Request{GuildID: "g", ChannelID: "v2", MemberID: "a", GracePeriod: 2 * time.Second})

	outcomes := h.drive(t, 2)
	h.watcher.Wait()

	assert.Equal(t, []Outcome{OutcomeExpired, OutcomeExpired}, outcomes)
	assert.Equal(t, 1, h.removed["a"])
}

func TestWatcher_ZeroGraceExpiresImmediately(t *testing.T) {
	h := newHarness(2 * time.Second)
	h.queued["m"] = true

	h.watcher.Watch(context.Background(), request("m", 0))

	assert.Equal(t, OutcomeExpired, h.waitOutcome(t))
	assert.Equal(t, 1, h.removed["m"])
}

func TestWatcher_ContextCancelStopsWatcher(t *testing.T) {
	h := newHarness(2 * time.Second)
	h.queued["m"] = true

	ctx, cancel := context.WithCancel(context.Background())
	h.watcher.Watch(ctx, request("m", 60*time.Second))
	cancel()

	assert.Equal(t, OutcomeCancelled, h.waitOutcome(t))
	h.watcher.Wait()
	assert.Equal(t, 0, h.removed["m"])
}

func TestWatcher_PresenceErrorsCountAsAbsent(t *testing.T) {
	h := newHarness(2 * time.Second)
	h.queued["m"] = true
	h.presence.err = errors.New("gateway unavailable")

	h.watcher.Watch(context.Background(), request("m", 2*time.Second))
	h.clock.tick(t)

	assert.Equal(t, OutcomeExpired, h.waitOutcome(t))
	assert.Equal(t, 1, h.removed["m"])
}

func TestWatcher_ExpireFailureIsReported(t *testing.T) {
	presence := &fakePresence{channels: map[string]string{}}
	done := make(chan Outcome, 1)

	w := NewWatcher(presence, func(context.Context, Request) error {
		return errors.New("queue unavailable")
	}, time.Second)
	w.OnDone = func(_ Request, o Outcome) { done <- o }

	w.Watch(context.Background(), request("m", 0))

	select {
	case o := <-done:
		require.Equal(t, OutcomeFailed, o)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not finish")
	}
}

func TestWatcher_RealClockWithShortInterval(t *testing.T) {
	presence := &fakePresence{channels: map[string]string{}}
	var removed int
	var mu sync.Mutex

	w := NewWatcher(presence, func(context.Context, Request) error {
		mu.Lock()
		removed++
		mu.Unlock()
		return nil
	}, 5*time.Millisecond)

	w.Watch(context.Background(), request("m", 20*time.Millisecond))
	w.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, removed)
}
