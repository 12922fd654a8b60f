package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"queuebot/display"
	"queuebot/events"
	"queuebot/grace"
	"queuebot/locks"
	"queuebot/models"
	"queuebot/queue"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// bootstrapConcurrency bounds how many guilds are loaded at once on startup
const bootstrapConcurrency = 8

// Queue mutation names used for metrics
const (
	opJoin     = "join"
	opLeave    = "leave"
	opPop      = "pop"
	opSwap     = "swap"
	opKick     = "kick"
	opClear    = "clear"
	opExpire   = "grace_expire"
	opStale    = "stale"
	opEnroll   = "enroll"
	opUnenroll = "unenroll"
	opResync   = "resync"
)

// QueueServiceDeps groups the collaborators of a QueueService
type QueueServiceDeps struct {
	Configs      GuildConfigService
	Locks        *locks.Manager
	Registry     *queue.Registry
	Displays     *display.Synchronizer
	Platform     Platform
	Events       EventPublisher
	Metrics      Metrics
	JoinCommand  string
	PollInterval time.Duration
}

// QueueService ties presence events and commands to the queue registry, the
// grace period watcher and the display synchronizer.
//
// Lock use: commands hold the guild's config lock for their whole run. Queue
// state is only touched inside Registry.Do, and displays are synced after the
// queue lock is released.
type QueueService struct {
	configs     GuildConfigService
	locks       *locks.Manager
	registry    *queue.Registry
	displays    *display.Synchronizer
	platform    Platform
	events      EventPublisher
	metrics     Metrics
	joinCommand string
	watcher     *grace.Watcher
}

// NewQueueService creates a queue service and its grace period watcher
func NewQueueService(deps QueueServiceDeps) *QueueService {
	s := &QueueService{
		configs:     deps.Configs,
		locks:       deps.Locks,
		registry:    deps.Registry,
		displays:    deps.Displays,
		platform:    deps.Platform,
		events:      deps.Events,
		metrics:     deps.Metrics,
		joinCommand: deps.JoinCommand,
	}
	if s.events == nil {
		s.events = events.NewBus()
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}

	s.watcher = grace.NewWatcher(deps.Platform, s.expire, deps.PollInterval)
	s.watcher.OnDone = func(_ grace.Request, outcome grace.Outcome) {
		s.metrics.RecordGraceOutcome(context.Background(), outcome)
	}
	return s
}

// Watcher exposes the grace period watcher, mainly so shutdown can wait on it
func (s *QueueService) Watcher() *grace.Watcher {
	return s.watcher
}

// ToggleResult describes what ToggleQueue did
type ToggleResult struct {
	Channel  *Channel
	Enrolled bool
	Seeded   int
}

// JoinResult lists who entered and who left a text queue
type JoinResult struct {
	Channel *Channel
	Joined  []string
	Left    []string
}

// KickResult lists who was kicked and who was not in the queue
type KickResult struct {
	Channel  *Channel
	Kicked   []string
	NotFound []string
}

// VoiceStateChange is one member moving between voice channels. An empty
// channel id means not connected.
type VoiceStateChange struct {
	GuildID      string
	MemberID     string
	Bot          bool
	OldChannelID string
	NewChannelID string
}

// Config returns the guild's config, taking the config lock for the read.
// It must not be called by code already holding that lock.
func (s *QueueService) Config(ctx context.Context, guildID string) (*models.GuildConfig, error) {
	unlock := s.locks.Lock(guildID, locks.Config)
	defer unlock()
	return s.configs.GetOrCreate(ctx, guildID)
}

// TrackedChannels returns the guild's queue channels that still exist
func (s *QueueService) TrackedChannels(ctx context.Context, guildID string) ([]*Channel, error) {
	cfg, err := s.Config(ctx, guildID)
	if err != nil {
		return nil, err
	}

	channels := make([]*Channel, 0, len(cfg.TrackedChannelIDs))
	for _, id := range cfg.TrackedChannelIDs {
		ch, err := s.platform.Channel(ctx, guildID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to look up channel %s: %w", id, err)
		}
		if ch != nil {
			channels = append(channels, ch)
		}
	}
	return channels, nil
}

// ToggleQueue enrolls a channel as a queue, or unenrolls it if it already is one.
// Voice queues start with the humans already connected; unenrolling discards
// the queue and deletes its displays.
func (s *QueueService) ToggleQueue(ctx context.Context, guildID, channelID string) (ToggleResult, error) {
	var result ToggleResult
	err := s.locks.Do(guildID, locks.Config, func() error {
		ch, err := s.channel(ctx, guildID, channelID)
		if err != nil {
			return err
		}
		result.Channel = ch

		cfg, err := s.configs.GetOrCreate(ctx, guildID)
		if err != nil {
			return err
		}

		var seed []string
		if !cfg.IsTracked(channelID) && ch.Voice {
			if seed, err = s.platform.VoiceMembers(ctx, guildID, channelID); err != nil {
				return fmt.Errorf("failed to list members of %s: %w", ch.Name, err)
			}
		}

		tracked, _, err := s.configs.ToggleTrackedChannel(ctx, guildID, channelID)
		if err != nil {
			return err
		}
		result.Enrolled = tracked

		if tracked {
			_ = s.registry.Do(guildID, func(q *queue.Queues) error {
				q.Enroll(channelID, seed)
				result.Seeded = q.Len(channelID)
				return nil
			})
			s.metrics.RecordQueueMutation(ctx, opEnroll)
			s.events.Publish(events.QueueEnrolledEvent{
				GuildID:   guildID,
				ChannelID: channelID,
				Voice:     ch.Voice,
				Seeded:    result.Seeded,
			})
			return nil
		}

		_ = s.registry.Do(guildID, func(q *queue.Queues) error {
			q.Unenroll(channelID)
			return nil
		})
		s.displays.RemoveQueue(ctx, guildID, channelID)
		s.metrics.RecordQueueMutation(ctx, opUnenroll)
		s.events.Publish(events.QueueUnenrolledEvent{GuildID: guildID, ChannelID: channelID})
		return nil
	})
	return result, err
}

// JoinText toggles each member in or out of a text queue
func (s *QueueService) JoinText(ctx context.Context, guildID, channelID string, memberIDs []string) (JoinResult, error) {
	var result JoinResult
	err := s.locks.Do(guildID, locks.Config, func() error {
		cfg, ch, err := s.trackedChannel(ctx, guildID, channelID)
		if err != nil {
			return err
		}
		if ch.Voice {
			return inputError(ErrWrongChannelKind, "`%s` is a voice queue. Join the voice channel to enter it.", ch.Name)
		}
		result.Channel = ch

		var changes []events.Event
		_ = s.registry.Do(guildID, func(q *queue.Queues) error {
			for _, memberID := range memberIDs {
				if q.ToggleMembership(channelID, memberID) {
					result.Left = append(result.Left, memberID)
					changes = append(changes, events.MemberLeftEvent{GuildID: guildID, ChannelID: channelID, MemberID: memberID})
					continue
				}
				result.Joined = append(result.Joined, memberID)
				changes = append(changes, events.MemberJoinedEvent{
					GuildID:   guildID,
					ChannelID: channelID,
					MemberID:  memberID,
					Position:  q.Position(channelID, memberID),
				})
			}
			return nil
		})

		for _, event := range changes {
			s.events.Publish(event)
		}
		s.record(ctx, opJoin, len(result.Joined))
		s.record(ctx, opLeave, len(result.Left))

		return s.refreshLogged(ctx, cfg, channelID)
	})
	return result, err
}

// PopNext takes the front member off a text queue
func (s *QueueService) PopNext(ctx context.Context, guildID, channelID string) (string, *Channel, error) {
	var (
		memberID string
		channel  *Channel
	)
	err := s.locks.Do(guildID, locks.Config, func() error {
		cfg, ch, err := s.trackedChannel(ctx, guildID, channelID)
		if err != nil {
			return err
		}
		if ch.Voice {
			return inputError(ErrWrongChannelKind, "`%s` is a voice queue. Only text queues can be popped.", ch.Name)
		}
		channel = ch

		var ok bool
		_ = s.registry.Do(guildID, func(q *queue.Queues) error {
			memberID, ok = q.PopFront(channelID)
			return nil
		})
		if !ok {
			return inputError(ErrEmptyQueue, "`%s` is empty.", ch.Name)
		}

		s.metrics.RecordQueueMutation(ctx, opPop)
		s.events.Publish(events.QueuePoppedEvent{GuildID: guildID, ChannelID: channelID, MemberID: memberID})
		return s.refreshLogged(ctx, cfg, channelID)
	})
	return memberID, channel, err
}

// Kick removes the given members from a queue
func (s *QueueService) Kick(ctx context.Context, guildID, channelID string, memberIDs []string) (KickResult, error) {
	var result KickResult
	err := s.locks.Do(guildID, locks.Config, func() error {
		if len(memberIDs) == 0 {
			return invalidInput("Specify at least one member to kick.")
		}
		cfg, ch, err := s.trackedChannel(ctx, guildID, channelID)
		if err != nil {
			return err
		}
		result.Channel = ch

		var empty bool
		_ = s.registry.Do(guildID, func(q *queue.Queues) error {
			if q.Len(channelID) == 0 {
				empty = true
				return nil
			}
			result.Kicked, result.NotFound = q.RemoveMany(channelID, memberIDs)
			return nil
		})
		if empty {
			return inputError(ErrEmptyQueue, "`%s` is empty.", ch.Name)
		}

		for _, memberID := range result.Kicked {
			s.events.Publish(events.MemberRemovedEvent{
				GuildID:   guildID,
				ChannelID: channelID,
				MemberID:  memberID,
				Reason:    events.RemovalReasonKicked,
			})
		}
		s.record(ctx, opKick, len(result.Kicked))
		return s.refreshLogged(ctx, cfg, channelID)
	})
	return result, err
}

// Clear empties a queue and returns how many members were removed
func (s *QueueService) Clear(ctx context.Context, guildID, channelID string) (int, *Channel, error) {
	var (
		removed int
		channel *Channel
	)
	err := s.locks.Do(guildID, locks.Config, func() error {
		cfg, ch, err := s.trackedChannel(ctx, guildID, channelID)
		if err != nil {
			return err
		}
		channel = ch

		_ = s.registry.Do(guildID, func(q *queue.Queues) error {
			removed = q.Clear(channelID)
			return nil
		})

		s.metrics.RecordQueueMutation(ctx, opClear)
		s.events.Publish(events.QueueClearedEvent{GuildID: guildID, ChannelID: channelID, Removed: removed})
		return s.refreshLogged(ctx, cfg, channelID)
	})
	return removed, channel, err
}

// SetSetting changes grace, prefix or color and refreshes every display
func (s *QueueService) SetSetting(ctx context.Context, guildID, setting, raw string) (*models.GuildConfig, error) {
	var updated *models.GuildConfig
	err := s.locks.Do(guildID, locks.Config, func() error {
		var err error
		switch setting {
		case SettingGrace:
			updated, err = s.configs.SetGracePeriod(ctx, guildID, raw)
		case SettingPrefix:
			updated, err = s.configs.SetPrefix(ctx, guildID, raw)
		case SettingColor:
			updated, err = s.configs.SetColor(ctx, guildID, raw)
		default:
			return invalidInput("Unknown setting %q.", setting)
		}
		if err != nil {
			return err
		}
		return s.refreshLogged(ctx, updated, updated.TrackedChannelIDs...)
	})
	return updated, err
}

// RequestDisplay posts a fresh display of a queue into an output channel,
// replacing an earlier display of the same queue in that channel.
func (s *QueueService) RequestDisplay(ctx context.Context, guildID, queueChannelID, outputChannelID string) error {
	return s.locks.Do(guildID, locks.Config, func() error {
		cfg, ch, err := s.trackedChannel(ctx, guildID, queueChannelID)
		if err != nil {
			return err
		}

		pages := display.Render(s.view(cfg, ch), s.snapshot(ctx, guildID, queueChannelID))
		if err := s.displays.CreateDisplay(ctx, guildID, queueChannelID, outputChannelID, pages); err != nil {
			return fmt.Errorf("failed to post display for %s: %w", ch.Name, err)
		}
		return nil
	})
}

// Start connects the bot to a voice queue so it can be dragged into other
// channels to pull members out of the queue.
func (s *QueueService) Start(ctx context.Context, guildID, channelID string) (*Channel, error) {
	var channel *Channel
	err := s.locks.Do(guildID, locks.Config, func() error {
		_, ch, err := s.trackedChannel(ctx, guildID, channelID)
		if err != nil {
			return err
		}
		if !ch.Voice {
			return inputError(ErrWrongChannelKind, "I can only join voice channels.")
		}
		channel = ch

		if err := s.platform.JoinVoice(ctx, guildID, channelID); err != nil {
			return fmt.Errorf("failed to join %s: %w", ch.Name, err)
		}
		return nil
	})
	return channel, err
}

// HandleVoiceStateUpdate applies a presence change. Humans arriving in a
// queue channel are appended; humans leaving one start a grace period. A bot
// dragged from a queue channel into an untracked channel pulls the front of
// that queue in after it and is moved back. ctx bounds any grace period
// watcher started here.
func (s *QueueService) HandleVoiceStateUpdate(ctx context.Context, change VoiceStateChange) error {
	if change.OldChannelID == change.NewChannelID {
		return nil
	}

	cfg, err := s.Config(ctx, change.GuildID)
	if err != nil {
		return err
	}
	oldTracked := change.OldChannelID != "" && cfg.IsTracked(change.OldChannelID)
	newTracked := change.NewChannelID != "" && cfg.IsTracked(change.NewChannelID)

	if change.Bot {
		if oldTracked && change.NewChannelID != "" && !newTracked {
			return s.swap(ctx, cfg, change)
		}
		return nil
	}

	var result *multierror.Error
	if newTracked {
		var (
			added    bool
			position int
		)
		_ = s.registry.Do(change.GuildID, func(q *queue.Queues) error {
			// The channel may have been unenrolled since cfg was read
			if !q.Enrolled(change.NewChannelID) {
				return nil
			}
			added = q.Append(change.NewChannelID, change.MemberID)
			position = q.Position(change.NewChannelID, change.MemberID)
			return nil
		})
		if added {
			s.metrics.RecordQueueMutation(ctx, opJoin)
			s.events.Publish(events.MemberJoinedEvent{
				GuildID:   change.GuildID,
				ChannelID: change.NewChannelID,
				MemberID:  change.MemberID,
				Position:  position,
			})
			if err := s.refresh(ctx, cfg, change.NewChannelID); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}

	if oldTracked {
		s.watcher.Watch(ctx, grace.Request{
			GuildID:     change.GuildID,
			ChannelID:   change.OldChannelID,
			MemberID:    change.MemberID,
			GracePeriod: time.Duration(cfg.GracePeriodSeconds) * time.Second,
		})
	}

	return result.ErrorOrNil()
}

// swap pops the front of the bot's origin queue into the bot's destination
// and returns the bot to the queue channel.
func (s *QueueService) swap(ctx context.Context, cfg *models.GuildConfig, change VoiceStateChange) error {
	var (
		front string
		ok    bool
	)
	_ = s.registry.Do(change.GuildID, func(q *queue.Queues) error {
		front, ok = q.PopFront(change.OldChannelID)
		return nil
	})

	var (
		result *multierror.Error
		moved  bool
	)
	if ok {
		if err := s.platform.MoveMember(ctx, change.GuildID, front, change.NewChannelID); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"guild_id":  change.GuildID,
				"member_id": front,
			}).Warn("Failed to pull next member into channel")
			result = multierror.Append(result, fmt.Errorf("failed to move member %s: %w", front, err))

			// The member keeps their place
			_ = s.registry.Do(change.GuildID, func(q *queue.Queues) error {
				q.PushFront(change.OldChannelID, front)
				return nil
			})
		} else {
			moved = true
			s.metrics.RecordQueueMutation(ctx, opSwap)
			s.events.Publish(events.QueuePoppedEvent{
				GuildID:     change.GuildID,
				ChannelID:   change.OldChannelID,
				MemberID:    front,
				Destination: change.NewChannelID,
			})
		}
	}

	if err := s.platform.MoveMember(ctx, change.GuildID, change.MemberID, change.OldChannelID); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to return bot to queue channel: %w", err))
	}

	if moved {
		if err := s.refresh(ctx, cfg, change.OldChannelID); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// expire is the grace watcher's removal step
func (s *QueueService) expire(ctx context.Context, req grace.Request) error {
	var removed bool
	_ = s.registry.Do(req.GuildID, func(q *queue.Queues) error {
		if !q.Enrolled(req.ChannelID) {
			return nil
		}
		removed = q.Remove(req.ChannelID, req.MemberID)
		return nil
	})
	if !removed {
		return nil
	}

	s.metrics.RecordQueueMutation(ctx, opExpire)
	s.events.Publish(events.MemberRemovedEvent{
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		MemberID:  req.MemberID,
		Reason:    events.RemovalReasonGraceExpiry,
	})

	if err := s.Refresh(ctx, req.GuildID, req.ChannelID); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"guild_id":   req.GuildID,
			"channel_id": req.ChannelID,
		}).Warn("Failed to refresh display after grace period expiry")
	}
	return nil
}

// HandleChannelDelete forgets a deleted channel, both as a queue and as a
// display output channel.
func (s *QueueService) HandleChannelDelete(ctx context.Context, guildID, channelID string) error {
	s.displays.DropOutputChannel(guildID, channelID)

	return s.locks.Do(guildID, locks.Config, func() error {
		cfg, err := s.configs.GetOrCreate(ctx, guildID)
		if err != nil {
			return err
		}
		if !cfg.IsTracked(channelID) {
			return nil
		}

		if _, err := s.configs.PruneChannels(ctx, guildID, func(id string) bool { return id != channelID }); err != nil {
			return err
		}
		_ = s.registry.Do(guildID, func(q *queue.Queues) error {
			q.Unenroll(channelID)
			return nil
		})
		s.displays.RemoveQueue(ctx, guildID, channelID)

		s.metrics.RecordQueueMutation(ctx, opUnenroll)
		s.events.Publish(events.QueueUnenrolledEvent{GuildID: guildID, ChannelID: channelID})
		return nil
	})
}

// HandleGuildDelete drops everything known about a guild the bot left
func (s *QueueService) HandleGuildDelete(ctx context.Context, guildID string) error {
	err := s.locks.Do(guildID, locks.Config, func() error {
		return s.configs.Forget(ctx, guildID)
	})
	s.registry.Forget(guildID)
	s.displays.DropGuild(guildID)

	log.WithField("guild_id", guildID).Info("Removed guild")
	return err
}

// Bootstrap loads state on startup: stored guilds the bot is no longer in
// are deleted, deleted channels are untracked, and voice queues are seeded
// with the members already connected. A failing guild does not stop the others.
func (s *QueueService) Bootstrap(ctx context.Context, guildIDs []string) error {
	present := make(map[string]struct{}, len(guildIDs))
	for _, id := range guildIDs {
		present[id] = struct{}{}
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
	)
	collect := func(guildID string, err error) {
		log.WithError(err).WithField("guild_id", guildID).Error("Failed to load guild")
		mu.Lock()
		result = multierror.Append(result, fmt.Errorf("guild %s: %w", guildID, err))
		mu.Unlock()
	}

	stored, err := s.configs.Entries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stored guilds: %w", err)
	}
	for _, cfg := range stored {
		if _, ok := present[cfg.GuildID]; ok {
			continue
		}
		if err := s.HandleGuildDelete(ctx, cfg.GuildID); err != nil {
			collect(cfg.GuildID, err)
		}
	}

	var g errgroup.Group
	g.SetLimit(bootstrapConcurrency)
	for _, guildID := range guildIDs {
		g.Go(func() error {
			if err := s.bootstrapGuild(ctx, guildID); err != nil {
				collect(guildID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	log.WithField("guilds", len(guildIDs)).Info("Loaded guild queues")
	return result.ErrorOrNil()
}

func (s *QueueService) bootstrapGuild(ctx context.Context, guildID string) error {
	return s.locks.Do(guildID, locks.Config, func() error {
		cfg, err := s.configs.GetOrCreate(ctx, guildID)
		if err != nil {
			return err
		}

		var result *multierror.Error
		channels := make(map[string]*Channel, len(cfg.TrackedChannelIDs))
		unknown := make(map[string]bool)
		for _, id := range cfg.TrackedChannelIDs {
			ch, err := s.platform.Channel(ctx, guildID, id)
			if err != nil {
				// Keep channels we could not check; the next startup retries them
				unknown[id] = true
				result = multierror.Append(result, fmt.Errorf("failed to look up channel %s: %w", id, err))
				continue
			}
			if ch != nil {
				channels[id] = ch
			}
		}

		if _, err := s.configs.PruneChannels(ctx, guildID, func(id string) bool {
			_, ok := channels[id]
			return ok || unknown[id]
		}); err != nil {
			return err
		}

		present := make(map[string][]string)
		for id, ch := range channels {
			if !ch.Voice {
				continue
			}
			members, err := s.platform.VoiceMembers(ctx, guildID, id)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("failed to list members of %s: %w", ch.Name, err))
				continue
			}
			present[id] = members
		}

		_ = s.registry.Do(guildID, func(q *queue.Queues) error {
			for id, ch := range channels {
				members, known := present[id]
				switch {
				case !q.Enrolled(id):
					q.Enroll(id, members)
				case ch.Voice && known:
					q.Reconcile(id, members)
				}
			}
			return nil
		})
		return result.ErrorOrNil()
	})
}

// Resync aligns voice queues with live channel membership after the gateway
// connection resumes: members who left while disconnected are dropped and
// members who joined are appended.
func (s *QueueService) Resync(ctx context.Context, guildIDs []string) error {
	var (
		mu     sync.Mutex
		result *multierror.Error
	)

	var g errgroup.Group
	g.SetLimit(bootstrapConcurrency)
	for _, guildID := range guildIDs {
		g.Go(func() error {
			if err := s.resyncGuild(ctx, guildID); err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("guild %s: %w", guildID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return result.ErrorOrNil()
}

func (s *QueueService) resyncGuild(ctx context.Context, guildID string) error {
	cfg, err := s.Config(ctx, guildID)
	if err != nil {
		return err
	}

	var (
		result  *multierror.Error
		changed []string
	)
	for _, id := range cfg.TrackedChannelIDs {
		ch, err := s.platform.Channel(ctx, guildID, id)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if ch == nil || !ch.Voice {
			continue
		}
		members, err := s.platform.VoiceMembers(ctx, guildID, id)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}

		var dropped, added []string
		_ = s.registry.Do(guildID, func(q *queue.Queues) error {
			dropped, added = q.Reconcile(id, members)
			return nil
		})
		if len(dropped)+len(added) > 0 {
			changed = append(changed, id)
			s.record(ctx, opResync, len(dropped)+len(added))
			log.WithFields(log.Fields{
				"guild_id":   guildID,
				"channel_id": id,
				"dropped":    len(dropped),
				"added":      len(added),
			}).Info("Resynced voice queue")
		}
	}

	if err := s.refresh(ctx, cfg, changed...); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Refresh brings every display of the given queue channels up to date
func (s *QueueService) Refresh(ctx context.Context, guildID string, channelIDs ...string) error {
	cfg, err := s.Config(ctx, guildID)
	if err != nil {
		return err
	}
	return s.refresh(ctx, cfg, channelIDs...)
}

// refresh re-renders each displayed tracked channel and syncs its displays.
// The queue is read under the queue lock, which is released before the
// display lock is taken.
func (s *QueueService) refresh(ctx context.Context, cfg *models.GuildConfig, channelIDs ...string) error {
	var result *multierror.Error
	for _, channelID := range channelIDs {
		if !cfg.IsTracked(channelID) || !s.displays.HasDisplays(cfg.GuildID, channelID) {
			continue
		}

		ch, err := s.platform.Channel(ctx, cfg.GuildID, channelID)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to look up channel %s: %w", channelID, err))
			continue
		}
		if ch == nil {
			continue
		}

		pages := display.Render(s.view(cfg, ch), s.snapshot(ctx, cfg.GuildID, channelID))
		synced, err := s.displays.Sync(ctx, cfg.GuildID, channelID, pages)
		if err != nil {
			result = multierror.Append(result, err)
		}
		if synced.Bindings() > 0 || synced.Failed > 0 {
			s.events.Publish(events.DisplaySyncedEvent{
				GuildID:   cfg.GuildID,
				ChannelID: channelID,
				Bindings:  synced.Bindings(),
				Pages:     len(pages),
				Failed:    synced.Failed,
			})
		}
	}
	return result.ErrorOrNil()
}

// refreshLogged refreshes displays for a command. The command has already
// taken effect, so a display failure is logged rather than returned.
func (s *QueueService) refreshLogged(ctx context.Context, cfg *models.GuildConfig, channelIDs ...string) error {
	if err := s.refresh(ctx, cfg, channelIDs...); err != nil {
		log.WithError(err).WithField("guild_id", cfg.GuildID).Warn("Failed to refresh queue displays")
	}
	return nil
}

// snapshot reads the queue and prunes members that no longer resolve to a
// name, all under the queue lock.
func (s *QueueService) snapshot(ctx context.Context, guildID, channelID string) []display.Member {
	var (
		members []display.Member
		stale   []string
	)
	_ = s.registry.Do(guildID, func(q *queue.Queues) error {
		members, stale = display.Resolve(q.Snapshot(channelID), func(id string) (string, bool) {
			return s.platform.MemberName(guildID, id)
		})
		if len(stale) > 0 {
			q.RemoveMany(channelID, stale)
		}
		return nil
	})

	for _, memberID := range stale {
		s.events.Publish(events.MemberRemovedEvent{
			GuildID:   guildID,
			ChannelID: channelID,
			MemberID:  memberID,
			Reason:    events.RemovalReasonStale,
		})
	}
	s.record(ctx, opStale, len(stale))
	return members
}

func (s *QueueService) view(cfg *models.GuildConfig, ch *Channel) display.View {
	return display.View{
		ChannelName:        ch.Name,
		Kind:               ch.Kind(),
		Prefix:             cfg.CommandPrefix,
		JoinCommand:        s.joinCommand,
		GracePeriodSeconds: cfg.GracePeriodSeconds,
		Color:              cfg.Color,
	}
}

// channel looks up a channel, turning a missing one into an input error
func (s *QueueService) channel(ctx context.Context, guildID, channelID string) (*Channel, error) {
	ch, err := s.platform.Channel(ctx, guildID, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up channel %s: %w", channelID, err)
	}
	if ch == nil {
		return nil, inputError(ErrChannelNotFound, "That channel no longer exists.")
	}
	return ch, nil
}

// trackedChannel resolves a queue channel for a command. The caller holds the config lock.
func (s *QueueService) trackedChannel(ctx context.Context, guildID, channelID string) (*models.GuildConfig, *Channel, error) {
	cfg, err := s.configs.GetOrCreate(ctx, guildID)
	if err != nil {
		return nil, nil, err
	}
	ch, err := s.channel(ctx, guildID, channelID)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.IsTracked(channelID) {
		return nil, nil, inputError(ErrNotTracked, "`%s` is not a queue.", ch.Name)
	}
	return cfg, ch, nil
}

func (s *QueueService) record(ctx context.Context, op string, n int) {
	for range n {
		s.metrics.RecordQueueMutation(ctx, op)
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordQueueMutation(context.Context, string)       {}
func (noopMetrics) RecordGraceOutcome(context.Context, grace.Outcome) {}
