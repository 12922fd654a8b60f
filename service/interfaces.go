package service

import (
	"context"

	"queuebot/display"
	"queuebot/events"
	"queuebot/grace"
	"queuebot/models"
)

// GuildConfigRepository defines the interface for guild config persistence
type GuildConfigRepository interface {
	// Get returns the stored config, or nil when the guild has no record
	Get(ctx context.Context, guildID string) (*models.GuildConfig, error)

	// Set creates or replaces the guild's record
	Set(ctx context.Context, config *models.GuildConfig) error

	// Delete removes the guild's record
	Delete(ctx context.Context, guildID string) error

	// Entries returns every stored config
	Entries(ctx context.Context) ([]*models.GuildConfig, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	GuildConfigRepository() GuildConfigRepository

	// EventBus returns the event publisher that flushes on commit
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// GuildConfigService defines the interface for reading and changing guild settings.
// Callers hold the guild's config lock around every call.
type GuildConfigService interface {
	// GetOrCreate returns the guild's config, persisting defaults on first use
	GetOrCreate(ctx context.Context, guildID string) (*models.GuildConfig, error)

	// SetGracePeriod parses and stores a grace period in seconds
	SetGracePeriod(ctx context.Context, guildID, raw string) (*models.GuildConfig, error)

	// SetPrefix stores a new command prefix
	SetPrefix(ctx context.Context, guildID, raw string) (*models.GuildConfig, error)

	// SetColor parses and stores a #RRGGBB display color
	SetColor(ctx context.Context, guildID, raw string) (*models.GuildConfig, error)

	// ToggleTrackedChannel tracks an untracked channel or untracks a tracked one
	ToggleTrackedChannel(ctx context.Context, guildID, channelID string) (tracked bool, config *models.GuildConfig, err error)

	// PruneChannels untracks every channel for which exists reports false
	PruneChannels(ctx context.Context, guildID string, exists func(channelID string) bool) ([]string, error)

	// Forget deletes the record of a guild the bot is no longer in
	Forget(ctx context.Context, guildID string) error

	// Entries returns every stored guild config
	Entries(ctx context.Context) ([]*models.GuildConfig, error)
}

// Channel is the platform's view of a guild channel
type Channel struct {
	ID    string
	Name  string
	Voice bool
}

// Kind returns the display kind of the channel
func (c *Channel) Kind() display.Kind {
	if c.Voice {
		return display.KindVoice
	}
	return display.KindText
}

// Platform is everything the queue service needs from the chat platform
type Platform interface {
	display.Gateway
	grace.Presence

	// Channel looks up a channel, returning nil when it does not exist
	Channel(ctx context.Context, guildID, channelID string) (*Channel, error)

	// VoiceMembers lists the human members currently in a voice channel
	VoiceMembers(ctx context.Context, guildID, channelID string) ([]string, error)

	// MemberName resolves a display name from local state; false for departed members
	MemberName(guildID, memberID string) (string, bool)

	// MoveMember moves a member into a voice channel
	MoveMember(ctx context.Context, guildID, memberID, channelID string) error

	// JoinVoice connects the bot, muted, to a voice channel
	JoinVoice(ctx context.Context, guildID, channelID string) error
}

// Metrics receives queue level counters
type Metrics interface {
	RecordQueueMutation(ctx context.Context, op string)
	RecordGraceOutcome(ctx context.Context, outcome grace.Outcome)
}
