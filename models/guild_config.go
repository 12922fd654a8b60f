package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// RecordHeaderSize is the number of fixed slots stored ahead of the tracked channel ids
	RecordHeaderSize = 10

	// MaxGracePeriodSeconds is the largest accepted grace period
	MaxGracePeriodSeconds = 300

	slotGracePeriod = 0
	slotPrefix      = 1
	slotColor       = 2
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// GuildConfig represents the persisted per-guild queue configuration
type GuildConfig struct {
	GuildID            string    `db:"guild_id"`
	GracePeriodSeconds int       // Seconds a member may be absent from a voice queue before removal
	CommandPrefix      string    // Prefix for text commands
	Color              int       // 24-bit embed color
	TrackedChannelIDs  []string  // Ordered set of channels with queue semantics
	UpdatedAt          time.Time `db:"updated_at"`
}

// Defaults holds the values used for new guilds and for empty record slots
type Defaults struct {
	GracePeriodSeconds int
	CommandPrefix      string
	Color              int
}

// NewGuildConfig creates a config for a guild using the given defaults
func NewGuildConfig(guildID string, defaults Defaults) *GuildConfig {
	return &GuildConfig{
		GuildID:            guildID,
		GracePeriodSeconds: defaults.GracePeriodSeconds,
		CommandPrefix:      defaults.CommandPrefix,
		Color:              defaults.Color,
		TrackedChannelIDs:  []string{},
	}
}

// IsTracked checks if a channel is enrolled as a queue
func (c *GuildConfig) IsTracked(channelID string) bool {
	for _, id := range c.TrackedChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}

// Track adds a channel to the tracked set, returning false if it was already present
func (c *GuildConfig) Track(channelID string) bool {
	if c.IsTracked(channelID) {
		return false
	}
	c.TrackedChannelIDs = append(c.TrackedChannelIDs, channelID)
	return true
}

// Untrack removes a channel from the tracked set, returning false if it was absent
func (c *GuildConfig) Untrack(channelID string) bool {
	for i, id := range c.TrackedChannelIDs {
		if id == channelID {
			c.TrackedChannelIDs = append(c.TrackedChannelIDs[:i], c.TrackedChannelIDs[i+1:]...)
			return true
		}
	}
	return false
}

// ColorHex returns the color as #RRGGBB
func (c *GuildConfig) ColorHex() string {
	return FormatColor(c.Color)
}

// Clone returns a deep copy safe to hand to another goroutine
func (c *GuildConfig) Clone() *GuildConfig {
	clone := *c
	clone.TrackedChannelIDs = append([]string(nil), c.TrackedChannelIDs...)
	return &clone
}

// ParseColor parses a #RRGGBB string into a 24-bit value
func ParseColor(s string) (int, error) {
	if !hexColorPattern.MatchString(s) {
		return 0, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseInt(s[1:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return int(v), nil
}

// FormatColor formats a 24-bit value as #RRGGBB
func FormatColor(color int) string {
	return fmt.Sprintf("#%06x", color&0xFFFFFF)
}

// ParseGracePeriod parses a grace period in seconds and checks its range
func ParseGracePeriod(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid grace period %q: %w", s, err)
	}
	if v < 0 || v > MaxGracePeriodSeconds {
		return 0, fmt.Errorf("grace period %d out of range 0-%d", v, MaxGracePeriodSeconds)
	}
	return v, nil
}

// EncodeRecord flattens a config into the stored slot layout:
// [gracePeriod, prefix, color, reserved x7, channelID...]
func EncodeRecord(c *GuildConfig) []string {
	record := make([]string, RecordHeaderSize, RecordHeaderSize+len(c.TrackedChannelIDs))
	record[slotGracePeriod] = strconv.Itoa(c.GracePeriodSeconds)
	record[slotPrefix] = c.CommandPrefix
	record[slotColor] = c.ColorHex()
	return append(record, c.TrackedChannelIDs...)
}

// DecodeRecord rebuilds a config from its stored slots. Empty header slots
// take the default value; blank and repeated channel ids are skipped.
func DecodeRecord(guildID string, record []string, defaults Defaults) (*GuildConfig, error) {
	cfg := NewGuildConfig(guildID, defaults)

	slot := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	if v := slot(slotGracePeriod); v != "" {
		grace, err := ParseGracePeriod(v)
		if err != nil {
			return nil, fmt.Errorf("guild %s: %w", guildID, err)
		}
		cfg.GracePeriodSeconds = grace
	}
	if v := slot(slotPrefix); v != "" {
		cfg.CommandPrefix = record[slotPrefix]
	}
	if v := slot(slotColor); v != "" {
		color, err := ParseColor(v)
		if err != nil {
			return nil, fmt.Errorf("guild %s: %w", guildID, err)
		}
		cfg.Color = color
	}

	for i := RecordHeaderSize; i < len(record); i++ {
		if id := strings.TrimSpace(record[i]); id != "" {
			cfg.Track(id)
		}
	}

	return cfg, nil
}
