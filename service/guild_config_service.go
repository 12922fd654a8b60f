package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"queuebot/events"
	"queuebot/models"

	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"
)

// Setting names accepted by SetSetting and carried on config change events
const (
	SettingGrace  = "grace"
	SettingPrefix = "prefix"
	SettingColor  = "color"

	// SettingChannels is carried on change events when the tracked channel
	// list changes; it is not accepted by SetSetting.
	SettingChannels = "channels"
)

// guildConfigService implements GuildConfigService. Configs are cached after
// the first read and every change is written through to the store.
type guildConfigService struct {
	uowFactory UnitOfWorkFactory
	defaults   models.Defaults
	cache      *xsync.MapOf[string, *models.GuildConfig]
}

// NewGuildConfigService creates a new guild config service
func NewGuildConfigService(uowFactory UnitOfWorkFactory, defaults models.Defaults) GuildConfigService {
	return &guildConfigService{
		uowFactory: uowFactory,
		defaults:   defaults,
		cache:      xsync.NewMapOf[string, *models.GuildConfig](),
	}
}

// GetOrCreate returns the guild's config, persisting defaults on first use
func (s *guildConfigService) GetOrCreate(ctx context.Context, guildID string) (*models.GuildConfig, error) {
	if cached, ok := s.cache.Load(guildID); ok {
		return cached.Clone(), nil
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	repo := uow.GuildConfigRepository()
	config, err := repo.Get(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get guild config: %w", err)
	}

	if config == nil {
		config = models.NewGuildConfig(guildID, s.defaults)
		if err := repo.Set(ctx, config); err != nil {
			return nil, fmt.Errorf("failed to create guild config: %w", err)
		}
		log.WithField("guild_id", guildID).Info("Created default guild config")
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.cache.Store(guildID, config)
	return config.Clone(), nil
}

// SetGracePeriod parses and stores a grace period in seconds
func (s *guildConfigService) SetGracePeriod(ctx context.Context, guildID, raw string) (*models.GuildConfig, error) {
	seconds, err := models.ParseGracePeriod(raw)
	if err != nil {
		return nil, invalidInput("Grace period must be a whole number of seconds between 0 and %d.", models.MaxGracePeriodSeconds)
	}

	return s.update(ctx, guildID, func(config *models.GuildConfig) []events.Event {
		config.GracePeriodSeconds = seconds
		return []events.Event{events.GuildConfigChangedEvent{
			GuildID: guildID,
			Setting: SettingGrace,
			Value:   strconv.Itoa(seconds),
		}}
	})
}

// SetPrefix stores a new command prefix
func (s *guildConfigService) SetPrefix(ctx context.Context, guildID, raw string) (*models.GuildConfig, error) {
	// Prefixes may contain spaces, so only an all-blank value is rejected
	prefix := raw
	if strings.TrimSpace(prefix) == "" {
		return nil, invalidInput("The command prefix cannot be empty.")
	}

	return s.update(ctx, guildID, func(config *models.GuildConfig) []events.Event {
		config.CommandPrefix = prefix
		return []events.Event{events.GuildConfigChangedEvent{
			GuildID: guildID,
			Setting: SettingPrefix,
			Value:   prefix,
		}}
	})
}

// SetColor parses and stores a #RRGGBB display color
func (s *guildConfigService) SetColor(ctx context.Context, guildID, raw string) (*models.GuildConfig, error) {
	color, err := models.ParseColor(strings.TrimSpace(raw))
	if err != nil {
		return nil, invalidInput("Color must be a hex code such as `#51ff7e`.")
	}

	return s.update(ctx, guildID, func(config *models.GuildConfig) []events.Event {
		config.Color = color
		return []events.Event{events.GuildConfigChangedEvent{
			GuildID: guildID,
			Setting: SettingColor,
			Value:   models.FormatColor(color),
		}}
	})
}

// ToggleTrackedChannel tracks an untracked channel or untracks a tracked one
func (s *guildConfigService) ToggleTrackedChannel(ctx context.Context, guildID, channelID string) (bool, *models.GuildConfig, error) {
	var tracked bool
	config, err := s.update(ctx, guildID, func(config *models.GuildConfig) []events.Event {
		if config.Untrack(channelID) {
			tracked = false
		} else {
			tracked = config.Track(channelID)
		}
		return []events.Event{channelsChanged(config)}
	})
	if err != nil {
		return false, nil, err
	}
	return tracked, config, nil
}

func channelsChanged(config *models.GuildConfig) events.Event {
	return events.GuildConfigChangedEvent{
		GuildID: config.GuildID,
		Setting: SettingChannels,
		Value:   strings.Join(config.TrackedChannelIDs, ","),
	}
}

// PruneChannels untracks every channel for which exists reports false and
// returns the removed ids. Nothing is written when every channel exists.
func (s *guildConfigService) PruneChannels(ctx context.Context, guildID string, exists func(channelID string) bool) ([]string, error) {
	current, err := s.GetOrCreate(ctx, guildID)
	if err != nil {
		return nil, err
	}

	var gone []string
	for _, channelID := range current.TrackedChannelIDs {
		if !exists(channelID) {
			gone = append(gone, channelID)
		}
	}
	if len(gone) == 0 {
		return nil, nil
	}

	if _, err := s.update(ctx, guildID, func(config *models.GuildConfig) []events.Event {
		for _, channelID := range gone {
			config.Untrack(channelID)
		}
		return []events.Event{channelsChanged(config)}
	}); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"guild_id": guildID,
		"channels": gone,
	}).Info("Untracked deleted channels")
	return gone, nil
}

// Forget deletes the record of a guild the bot is no longer in
func (s *guildConfigService) Forget(ctx context.Context, guildID string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.GuildConfigRepository().Delete(ctx, guildID); err != nil {
		return fmt.Errorf("failed to delete guild config: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.cache.Delete(guildID)
	return nil
}

// Entries returns every stored guild config
func (s *guildConfigService) Entries(ctx context.Context) ([]*models.GuildConfig, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	configs, err := uow.GuildConfigRepository().Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild configs: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return configs, nil
}

// update applies mutate to a copy of the current config, persists it and
// publishes the returned events once the transaction commits.
func (s *guildConfigService) update(ctx context.Context, guildID string, mutate func(config *models.GuildConfig) []events.Event) (*models.GuildConfig, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	repo := uow.GuildConfigRepository()

	current, ok := s.cache.Load(guildID)
	if !ok {
		stored, err := repo.Get(ctx, guildID)
		if err != nil {
			return nil, fmt.Errorf("failed to get guild config: %w", err)
		}
		if stored == nil {
			stored = models.NewGuildConfig(guildID, s.defaults)
		}
		current = stored
	}

	next := current.Clone()
	changes := mutate(next)

	if err := repo.Set(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save guild config: %w", err)
	}

	for _, event := range changes {
		uow.EventBus().Publish(event)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.cache.Store(guildID, next)
	return next.Clone(), nil
}
