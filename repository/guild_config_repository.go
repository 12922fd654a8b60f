package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"queuebot/database"
	"queuebot/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
)

// queryable is satisfied by both the pool and a transaction
type queryable interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GuildConfigRepository stores one slot-array record per guild
type GuildConfigRepository struct {
	q        queryable
	defaults models.Defaults
}

// NewGuildConfigRepository creates a repository over the pool
func NewGuildConfigRepository(db *database.DB, defaults models.Defaults) *GuildConfigRepository {
	return &GuildConfigRepository{q: db.Pool, defaults: defaults}
}

func newGuildConfigRepositoryWithTx(tx queryable, defaults models.Defaults) *GuildConfigRepository {
	return &GuildConfigRepository{q: tx, defaults: defaults}
}

// Get returns the config for a guild, or nil when no record exists
func (r *GuildConfigRepository) Get(ctx context.Context, guildID string) (*models.GuildConfig, error) {
	query := `
		SELECT record, updated_at
		FROM guild_configs
		WHERE guild_id = $1
	`

	var (
		record    []string
		updatedAt time.Time
	)
	err := r.q.QueryRow(ctx, query, guildID).Scan(&record, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guild config %s: %w", guildID, err)
	}

	config, err := models.DecodeRecord(guildID, record, r.defaults)
	if err != nil {
		return nil, fmt.Errorf("failed to decode guild config: %w", err)
	}
	config.UpdatedAt = updatedAt

	return config, nil
}

// Set upserts the encoded record for a guild
func (r *GuildConfigRepository) Set(ctx context.Context, config *models.GuildConfig) error {
	query := `
		INSERT INTO guild_configs (guild_id, record)
		VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE
		SET record = EXCLUDED.record,
		    updated_at = NOW()
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query, config.GuildID, models.EncodeRecord(config)).Scan(&config.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save guild config %s: %w", config.GuildID, err)
	}

	return nil
}

// Delete removes a guild's record; deleting an absent record is not an error
func (r *GuildConfigRepository) Delete(ctx context.Context, guildID string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM guild_configs WHERE guild_id = $1`, guildID); err != nil {
		return fmt.Errorf("failed to delete guild config %s: %w", guildID, err)
	}
	return nil
}

// Entries returns every stored config. Records that fail to decode are
// logged and skipped so one bad row cannot block startup.
func (r *GuildConfigRepository) Entries(ctx context.Context) ([]*models.GuildConfig, error) {
	query := `
		SELECT guild_id, record, updated_at
		FROM guild_configs
		ORDER BY guild_id
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.GuildConfig
	for rows.Next() {
		var (
			guildID   string
			record    []string
			updatedAt time.Time
		)
		if err := rows.Scan(&guildID, &record, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan guild config: %w", err)
		}

		config, err := models.DecodeRecord(guildID, record, r.defaults)
		if err != nil {
			log.WithFields(log.Fields{
				"guild_id": guildID,
				"error":    err,
			}).Warn("Skipping undecodable guild config record")
			continue
		}
		config.UpdatedAt = updatedAt
		configs = append(configs, config)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating guild configs: %w", err)
	}

	return configs, nil
}
