package display

import (
	"context"
	"fmt"
	"sort"

	"queuebot/locks"

	"github.com/hashicorp/go-multierror"
	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"
)

// Gateway is the platform side of a display
type Gateway interface {
	ChannelExists(ctx context.Context, guildID, channelID string) (bool, error)
	SendPage(ctx context.Context, channelID string, page Page) (messageID string, err error)
	EditPage(ctx context.Context, channelID, messageID string, page Page) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// Mode is how a binding was brought up to date
type Mode string

const (
	ModeEdit    Mode = "edit"
	ModeRebuild Mode = "rebuild"
	ModeDrop    Mode = "drop"
	ModeCreate  Mode = "create"
)

// Metrics receives one call per binding handled
type Metrics interface {
	DisplaySynced(ctx context.Context, mode Mode)
	DisplayFailed(ctx context.Context)
}

// Result summarizes one Sync call
type Result struct {
	Edited  int
	Rebuilt int
	Dropped int
	Failed  int
}

// Bindings returns how many bindings were still live after the sync
func (r Result) Bindings() int {
	return r.Edited + r.Rebuilt
}

// guildDisplays maps queue channel to output channel to posted message ids.
// It is only touched while the guild's display lock is held.
type guildDisplays map[string]map[string][]string

// Synchronizer owns every display binding
type Synchronizer struct {
	gateway  Gateway
	locks    *locks.Manager
	bindings *xsync.MapOf[string, guildDisplays]
	metrics  Metrics
}

// NewSynchronizer creates a synchronizer. metrics may be nil.
func NewSynchronizer(gateway Gateway, lockManager *locks.Manager, metrics Metrics) *Synchronizer {
	return &Synchronizer{
		gateway:  gateway,
		locks:    lockManager,
		bindings: xsync.NewMapOf[string, guildDisplays](),
		metrics:  metrics,
	}
}

func (s *Synchronizer) guild(guildID string) guildDisplays {
	displays, _ := s.bindings.LoadOrCompute(guildID, func() guildDisplays {
		return guildDisplays{}
	})
	return displays
}

// Sync brings every binding of queueChannel in line with pages. Bindings
// whose output channel is gone are dropped; bindings with the same page
// count are edited in place; everything else is deleted and reposted.
// Failures of individual bindings are collected into the returned error.
func (s *Synchronizer) Sync(ctx context.Context, guildID, queueChannel string, pages []Page) (Result, error) {
	unlock := s.locks.Lock(guildID, locks.Display)
	defer unlock()

	var (
		result Result
		errs   *multierror.Error
	)

	outputs := s.guild(guildID)[queueChannel]
	for _, outputChannel := range sortedKeys(outputs) {
		old := outputs[outputChannel]

		exists, err := s.gateway.ChannelExists(ctx, guildID, outputChannel)
		if err != nil {
			result.Failed++
			errs = multierror.Append(errs, fmt.Errorf("display in %s: %w", outputChannel, err))
			s.failed(ctx)
			continue
		}
		if !exists {
			delete(outputs, outputChannel)
			result.Dropped++
			s.synced(ctx, ModeDrop)
			continue
		}

		if len(old) == len(pages) && s.editAll(ctx, outputChannel, old, pages) {
			result.Edited++
			s.synced(ctx, ModeEdit)
			continue
		}

		ids, err := s.rebuild(ctx, outputChannel, old, pages)
		outputs[outputChannel] = ids
		if err != nil {
			result.Failed++
			errs = multierror.Append(errs, fmt.Errorf("display in %s: %w", outputChannel, err))
			s.failed(ctx)
			continue
		}
		result.Rebuilt++
		s.synced(ctx, ModeRebuild)
	}

	if len(outputs) == 0 {
		delete(s.guild(guildID), queueChannel)
	}

	return result, errs.ErrorOrNil()
}

// CreateDisplay posts a fresh copy of pages to outputChannel, replacing any
// display of the same queue already posted there.
func (s *Synchronizer) CreateDisplay(ctx context.Context, guildID, queueChannel, outputChannel string, pages []Page) error {
	unlock := s.locks.Lock(guildID, locks.Display)
	defer unlock()

	displays := s.guild(guildID)
	outputs := displays[queueChannel]
	if outputs == nil {
		outputs = map[string][]string{}
		displays[queueChannel] = outputs
	}

	ids, err := s.rebuild(ctx, outputChannel, outputs[outputChannel], pages)
	outputs[outputChannel] = ids
	if err != nil {
		s.failed(ctx)
		return fmt.Errorf("failed to post display: %w", err)
	}

	s.synced(ctx, ModeCreate)
	return nil
}

// RemoveQueue deletes every posted display of a queue and forgets them
func (s *Synchronizer) RemoveQueue(ctx context.Context, guildID, queueChannel string) {
	unlock := s.locks.Lock(guildID, locks.Display)
	defer unlock()

	displays := s.guild(guildID)
	for _, outputChannel := range sortedKeys(displays[queueChannel]) {
		s.deleteAll(ctx, outputChannel, displays[queueChannel][outputChannel])
	}
	delete(displays, queueChannel)
}

// DropOutputChannel forgets every display posted in a deleted channel
func (s *Synchronizer) DropOutputChannel(guildID, channelID string) {
	unlock := s.locks.Lock(guildID, locks.Display)
	defer unlock()

	displays := s.guild(guildID)
	for queueChannel, outputs := range displays {
		delete(outputs, channelID)
		if len(outputs) == 0 {
			delete(displays, queueChannel)
		}
	}
}

// DropGuild forgets every display of a guild without touching the platform
func (s *Synchronizer) DropGuild(guildID string) {
	unlock := s.locks.Lock(guildID, locks.Display)
	defer unlock()

	s.bindings.Delete(guildID)
}

// Bindings returns a copy of the output channel to message ids mapping of a queue
func (s *Synchronizer) Bindings(guildID, queueChannel string) map[string][]string {
	unlock := s.locks.Lock(guildID, locks.Display)
	defer unlock()

	out := make(map[string][]string)
	for outputChannel, ids := range s.guild(guildID)[queueChannel] {
		out[outputChannel] = append([]string(nil), ids...)
	}
	return out
}

// HasDisplays reports whether a queue has at least one posted display
func (s *Synchronizer) HasDisplays(guildID, queueChannel string) bool {
	unlock := s.locks.Lock(guildID, locks.Display)
	defer unlock()

	return len(s.guild(guildID)[queueChannel]) > 0
}

// editAll edits each message with its page. It stops at the first failure.
func (s *Synchronizer) editAll(ctx context.Context, channelID string, ids []string, pages []Page) bool {
	for i, id := range ids {
		if err := s.gateway.EditPage(ctx, channelID, id, pages[i]); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"channel_id": channelID,
				"message_id": id,
			}).Debug("Display edit failed, rebuilding")
			return false
		}
	}
	return true
}

// rebuild deletes old messages and posts pages, returning the ids that were
// posted. A failed send stops the rebuild; the short binding is rebuilt on
// the next sync.
func (s *Synchronizer) rebuild(ctx context.Context, channelID string, old []string, pages []Page) ([]string, error) {
	s.deleteAll(ctx, channelID, old)

	ids := make([]string, 0, len(pages))
	for _, page := range pages {
		id, err := s.gateway.SendPage(ctx, channelID, page)
		if err != nil {
			return ids, fmt.Errorf("send page %d of %d: %w", page.Index+1, len(pages), err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Synchronizer) deleteAll(ctx context.Context, channelID string, ids []string) {
	for _, id := range ids {
		if err := s.gateway.DeleteMessage(ctx, channelID, id); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"channel_id": channelID,
				"message_id": id,
			}).Debug("Ignoring failed display delete")
		}
	}
}

func (s *Synchronizer) synced(ctx context.Context, mode Mode) {
	if s.metrics != nil {
		s.metrics.DisplaySynced(ctx, mode)
	}
}

func (s *Synchronizer) failed(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.DisplayFailed(ctx)
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
