package service

import (
	"context"

	"queuebot/events"
	"queuebot/models"

	"github.com/stretchr/testify/mock"
)

// MockGuildConfigRepository is a mock implementation of GuildConfigRepository
type MockGuildConfigRepository struct {
	mock.Mock
}

func (m *MockGuildConfigRepository) Get(ctx context.Context, guildID string) (*models.GuildConfig, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GuildConfig), args.Error(1)
}

func (m *MockGuildConfigRepository) Set(ctx context.Context, config *models.GuildConfig) error {
	args := m.Called(ctx, config)
	return args.Error(0)
}

func (m *MockGuildConfigRepository) Delete(ctx context.Context, guildID string) error {
	args := m.Called(ctx, guildID)
	return args.Error(0)
}

func (m *MockGuildConfigRepository) Entries(ctx context.Context) ([]*models.GuildConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.GuildConfig), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repositories and
// the event publisher are plain fields so tests only set expectations on
// the transaction calls they care about.
type MockUnitOfWork struct {
	mock.Mock

	guildConfigRepo GuildConfigRepository
	eventBus        EventPublisher
}

// SetRepositories wires the repository and publisher returned by the getters
func (m *MockUnitOfWork) SetRepositories(guildConfigRepo GuildConfigRepository, eventBus EventPublisher) {
	m.guildConfigRepo = guildConfigRepo
	m.eventBus = eventBus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) GuildConfigRepository() GuildConfigRepository {
	return m.guildConfigRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.eventBus
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
