// Package queue keeps the in-memory waiting lists of every guild.
//
// A guild's lists are only reachable through Registry.Do, which holds that
// guild's queue lock for the duration of the callback.
package queue

import (
	"sort"

	"queuebot/locks"

	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"
)

// Registry maps guild id to that guild's queues
type Registry struct {
	locks  *locks.Manager
	guilds *xsync.MapOf[string, *Queues]
}

// NewRegistry creates an empty registry guarded by the given lock manager
func NewRegistry(lockManager *locks.Manager) *Registry {
	return &Registry{
		locks:  lockManager,
		guilds: xsync.NewMapOf[string, *Queues](),
	}
}

// Do runs fn with the guild's queues while holding its queue lock.
// fn must not retain q or perform network I/O.
func (r *Registry) Do(guildID string, fn func(q *Queues) error) error {
	unlock := r.locks.Lock(guildID, locks.Queue)
	defer unlock()

	q, _ := r.guilds.LoadOrCompute(guildID, func() *Queues {
		return newQueues(guildID)
	})
	return fn(q)
}

// Forget drops every queue of a guild
func (r *Registry) Forget(guildID string) {
	unlock := r.locks.Lock(guildID, locks.Queue)
	defer unlock()

	r.guilds.Delete(guildID)
}

// Queues is one guild's channel to member list mapping
type Queues struct {
	guildID string
	entries map[string][]string
}

func newQueues(guildID string) *Queues {
	return &Queues{
		guildID: guildID,
		entries: make(map[string][]string),
	}
}

// entry returns a channel's list. A channel the caller believes is enrolled
// but that has no entry gets an empty one, with a warning.
func (q *Queues) entry(channelID string) []string {
	members, ok := q.entries[channelID]
	if !ok {
		log.WithFields(log.Fields{
			"guild_id":   q.guildID,
			"channel_id": channelID,
		}).Warn("Queue entry missing for channel, reinitializing empty")
		members = []string{}
		q.entries[channelID] = members
	}
	return members
}

// Enroll creates a channel's queue seeded with initial members, replacing
// any existing entry. Duplicate ids in initial are dropped.
func (q *Queues) Enroll(channelID string, initial []string) {
	members := make([]string, 0, len(initial))
	seen := make(map[string]struct{}, len(initial))
	for _, id := range initial {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	q.entries[channelID] = members
}

// Unenroll discards a channel's queue. It reports whether an entry existed.
func (q *Queues) Unenroll(channelID string) bool {
	_, ok := q.entries[channelID]
	delete(q.entries, channelID)
	return ok
}

// Enrolled reports whether a channel has a queue entry
func (q *Queues) Enrolled(channelID string) bool {
	_, ok := q.entries[channelID]
	return ok
}

// Channels returns the enrolled channel ids in sorted order
func (q *Queues) Channels() []string {
	ids := make([]string, 0, len(q.entries))
	for id := range q.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ToggleMembership removes the member if queued, otherwise appends them
func (q *Queues) ToggleMembership(channelID, memberID string) (removed bool) {
	if q.Remove(channelID, memberID) {
		return true
	}
	q.entries[channelID] = append(q.entry(channelID), memberID)
	return false
}

// Append adds the member at the back unless already queued
func (q *Queues) Append(channelID, memberID string) (added bool) {
	members := q.entry(channelID)
	if indexOf(members, memberID) >= 0 {
		return false
	}
	q.entries[channelID] = append(members, memberID)
	return true
}

// PopFront removes and returns the earliest queued member
func (q *Queues) PopFront(channelID string) (string, bool) {
	members := q.entry(channelID)
	if len(members) == 0 {
		return "", false
	}
	front := members[0]
	q.entries[channelID] = append(members[:0:0], members[1:]...)
	return front, true
}

// PushFront puts the member back at the head of an enrolled queue, unless
// they are already queued or the channel was unenrolled meanwhile
func (q *Queues) PushFront(channelID, memberID string) (added bool) {
	members, ok := q.entries[channelID]
	if !ok || indexOf(members, memberID) >= 0 {
		return false
	}
	q.entries[channelID] = append([]string{memberID}, members...)
	return true
}

// Remove takes the member out of the queue. Removing an absent member is a no-op.
func (q *Queues) Remove(channelID, memberID string) bool {
	members := q.entry(channelID)
	i := indexOf(members, memberID)
	if i < 0 {
		return false
	}
	q.entries[channelID] = append(members[:i:i], members[i+1:]...)
	return true
}

// RemoveMany removes each member, reporting which were queued and which were not
func (q *Queues) RemoveMany(channelID string, memberIDs []string) (removed, missing []string) {
	for _, id := range memberIDs {
		if q.Remove(channelID, id) {
			removed = append(removed, id)
		} else {
			missing = append(missing, id)
		}
	}
	return removed, missing
}

// Clear empties the queue and returns how many members it held
func (q *Queues) Clear(channelID string) int {
	n := len(q.entry(channelID))
	q.entries[channelID] = []string{}
	return n
}

// Snapshot returns a copy of the queue in FIFO order
func (q *Queues) Snapshot(channelID string) []string {
	return append([]string(nil), q.entry(channelID)...)
}

// Len returns the queue length
func (q *Queues) Len(channelID string) int {
	return len(q.entry(channelID))
}

// Position returns the 1-based position of a member, or 0 if absent
func (q *Queues) Position(channelID, memberID string) int {
	return indexOf(q.entry(channelID), memberID) + 1
}

// Reconcile aligns a queue with the members actually present: queued
// members not present are dropped, present members not queued are appended
// in the order given.
func (q *Queues) Reconcile(channelID string, present []string) (dropped, added []string) {
	here := make(map[string]struct{}, len(present))
	for _, id := range present {
		here[id] = struct{}{}
	}

	members := q.entry(channelID)
	kept := make([]string, 0, len(members))
	for _, id := range members {
		if _, ok := here[id]; ok {
			kept = append(kept, id)
		} else {
			dropped = append(dropped, id)
		}
	}
	q.entries[channelID] = kept

	for _, id := range present {
		if q.Append(channelID, id) {
			added = append(added, id)
		}
	}
	return dropped, added
}

func indexOf(members []string, memberID string) int {
	for i, id := range members {
		if id == memberID {
			return i
		}
	}
	return -1
}
