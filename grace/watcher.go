// Package grace removes members who left a voice queue and did not come back
// within the guild's grace period.
package grace

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"
)

// DefaultPollInterval is how often a watcher checks whether the member is back
const DefaultPollInterval = 2 * time.Second

// Outcome is how a watcher ended
type Outcome int

const (
	OutcomeRejoined Outcome = iota
	OutcomeExpired
	OutcomeSuperseded
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejoined:
		return "rejoined"
	case OutcomeExpired:
		return "expired"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Request identifies one departure from a queue channel
type Request struct {
	GuildID     string
	ChannelID   string
	MemberID    string
	GracePeriod time.Duration
}

func (r Request) key() string {
	return r.GuildID + "/" + r.ChannelID + "/" + r.MemberID
}

// Presence reports the voice channel a member is currently in, or "" if none
type Presence interface {
	VoiceChannelOf(ctx context.Context, guildID, memberID string) (string, error)
}

// ExpireFunc removes the member once the grace period ran out
type ExpireFunc func(ctx context.Context, req Request) error

// Watcher runs one goroutine per departure. A newer departure of the same
// member from the same channel supersedes any older watcher for it.
type Watcher struct {
	presence     Presence
	expire       ExpireFunc
	pollInterval time.Duration

	// After replaces time.After; tests drive it by hand.
	After func(time.Duration) <-chan time.Time
	// OnDone, when set, is called once per watcher with its outcome.
	OnDone func(Request, Outcome)

	// generations holds the latest watcher per key. Numbers come from seq and
	// are never reused, so a finished key cannot revive an older watcher.
	generations *xsync.MapOf[string, uint64]
	seq         atomic.Uint64
	wg          sync.WaitGroup
}

// NewWatcher creates a watcher polling at pollInterval (DefaultPollInterval if zero)
func NewWatcher(presence Presence, expire ExpireFunc, pollInterval time.Duration) *Watcher {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Watcher{
		presence:     presence,
		expire:       expire,
		pollInterval: pollInterval,
		After:        time.After,
		generations:  xsync.NewMapOf[string, uint64](),
	}
}

// Watch starts observing a departure and returns immediately
func (w *Watcher) Watch(ctx context.Context, req Request) {
	gen := w.seq.Add(1)
	w.generations.Store(req.key(), gen)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		outcome := w.run(ctx, req, gen)
		w.release(req, gen)

		log.WithFields(log.Fields{
			"guild_id":   req.GuildID,
			"channel_id": req.ChannelID,
			"member_id":  req.MemberID,
			"outcome":    outcome.String(),
		}).Debug("Grace period watcher finished")

		if w.OnDone != nil {
			w.OnDone(req, outcome)
		}
	}()
}

// Wait blocks until every started watcher has finished
func (w *Watcher) Wait() {
	w.wg.Wait()
}

// Pending returns how many departures are currently being watched
func (w *Watcher) Pending() int {
	return w.generations.Size()
}

func (w *Watcher) run(ctx context.Context, req Request, gen uint64) Outcome {
	var waited time.Duration
	for waited < req.GracePeriod {
		select {
		case <-ctx.Done():
			return OutcomeCancelled
		case <-w.After(w.pollInterval):
		}
		waited += w.pollInterval

		if !w.current(req, gen) {
			return OutcomeSuperseded
		}

		channelID, err := w.presence.VoiceChannelOf(ctx, req.GuildID, req.MemberID)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"guild_id":  req.GuildID,
				"member_id": req.MemberID,
			}).Warn("Could not read member voice state, treating as absent")
			continue
		}
		if channelID == req.ChannelID {
			return OutcomeRejoined
		}
	}

	if err := w.expire(ctx, req); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"guild_id":   req.GuildID,
			"channel_id": req.ChannelID,
			"member_id":  req.MemberID,
		}).Error("Failed to remove member after grace period")
		return OutcomeFailed
	}
	return OutcomeExpired
}

func (w *Watcher) current(req Request, gen uint64) bool {
	latest, ok := w.generations.Load(req.key())
	return ok && latest == gen
}

// release forgets the key unless a newer watcher has claimed it
func (w *Watcher) release(req Request, gen uint64) {
	w.generations.Compute(req.key(), func(latest uint64, loaded bool) (uint64, bool) {
		return latest, !loaded || latest == gen
	})
}
