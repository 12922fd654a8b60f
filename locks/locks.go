// Package locks holds the per-guild mutex triple that serializes config,
// queue and display mutations.
//
// An operation that needs both the queue and the display must take the queue
// lock, read what it needs, release it, and only then take the display lock.
// The two are never held together.
package locks

import (
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Domain selects one of the three locks of a guild
type Domain int

const (
	Config Domain = iota
	Queue
	Display
)

func (d Domain) String() string {
	switch d {
	case Config:
		return "config"
	case Queue:
		return "queue"
	case Display:
		return "display"
	default:
		return fmt.Sprintf("domain(%d)", int(d))
	}
}

type guildLocks struct {
	config  sync.Mutex
	queue   sync.Mutex
	display sync.Mutex
}

func (g *guildLocks) mutex(domain Domain) *sync.Mutex {
	switch domain {
	case Config:
		return &g.config
	case Queue:
		return &g.queue
	case Display:
		return &g.display
	default:
		panic(fmt.Sprintf("locks: unknown domain %d", int(domain)))
	}
}

// Manager hands out guild-scoped locks. The zero value is not usable; use NewManager.
type Manager struct {
	guilds *xsync.MapOf[string, *guildLocks]
}

// NewManager creates an empty lock manager
func NewManager() *Manager {
	return &Manager{guilds: xsync.NewMapOf[string, *guildLocks]()}
}

// set returns the guild's lock triple, creating all three at once on first use
func (m *Manager) set(guildID string) *guildLocks {
	locks, _ := m.guilds.LoadOrCompute(guildID, func() *guildLocks {
		return &guildLocks{}
	})
	return locks
}

// Lock acquires the guild's lock for domain and returns its release func.
// The release func is safe to call more than once.
func (m *Manager) Lock(guildID string, domain Domain) (unlock func()) {
	mu := m.set(guildID).mutex(domain)
	mu.Lock()

	var once sync.Once
	return func() {
		once.Do(mu.Unlock)
	}
}

// Do runs fn while holding the guild's lock for domain. The lock is
// released when fn returns or panics.
func (m *Manager) Do(guildID string, domain Domain, fn func() error) error {
	unlock := m.Lock(guildID, domain)
	defer unlock()
	return fn()
}

// Guilds returns how many guilds have a lock set
func (m *Manager) Guilds() int {
	return m.guilds.Size()
}
