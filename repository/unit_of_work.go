package repository

import (
	"context"
	"errors"
	"fmt"

	"queuebot/database"
	"queuebot/events"
	"queuebot/models"
	"queuebot/service"

	"github.com/jackc/pgx/v5"
)

type unitOfWork struct {
	db               *database.DB
	defaults         models.Defaults
	tx               pgx.Tx
	ctx              context.Context
	transactionalBus *events.TransactionalBus
	guildConfigRepo  service.GuildConfigRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus, defaults models.Defaults) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
		defaults: defaults,
	}
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
	defaults models.Defaults
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		defaults:         f.defaults,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx
	u.guildConfigRepo = newGuildConfigRepositoryWithTx(tx, u.defaults)

	return nil
}

// Commit commits the transaction and flushes events raised inside it
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	if err := u.tx.Commit(u.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	u.tx = nil

	u.transactionalBus.Flush(u.ctx)
	return nil
}

// Rollback rolls back the transaction; it is a no-op after Commit
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Rollback(u.ctx)
	u.tx = nil
	u.transactionalBus.Discard()

	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// GuildConfigRepository returns the repository bound to this transaction
func (u *unitOfWork) GuildConfigRepository() service.GuildConfigRepository {
	if u.guildConfigRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.guildConfigRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	return u.transactionalBus
}
