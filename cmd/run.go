package cmd

import (
	"context"
	"fmt"
	"time"

	"queuebot/bot"
	"queuebot/config"
	"queuebot/database"
	"queuebot/display"
	"queuebot/events"
	"queuebot/infrastructure"
	"queuebot/locks"
	"queuebot/observability"
	"queuebot/queue"
	"queuebot/repository"
	"queuebot/service"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	// Load configuration
	cfg := config.Get()
	cfg.ConfigureLogging()
	log.Info("Starting queue bot...")

	// Initialize database connection
	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Info("Database connection established successfully")

	// Initialize metrics
	metrics := observability.NewMetricsProvider(cfg)
	if err := metrics.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	// Initialize event bus
	eventBus := events.NewBus()

	// Forward events to NATS when configured
	var natsClient *infrastructure.NATSClient
	if cfg.NATSServers != "" {
		natsClient, err = connectNATS(ctx, cfg.NATSServers, eventBus, metrics)
		if err != nil {
			return err
		}
	} else {
		log.Info("NATS_SERVERS not set, events stay in process")
	}

	// Initialize unit of work factory and services
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus, cfg.Defaults())
	configService := service.NewGuildConfigService(uowFactory, cfg.Defaults())

	session, err := bot.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	gateway := bot.NewGateway(session, rate.NewLimiter(rate.Limit(cfg.MessageRate), cfg.MessageBurst))

	lockManager := locks.NewManager()
	queueService := service.NewQueueService(service.QueueServiceDeps{
		Configs:      configService,
		Locks:        lockManager,
		Registry:     queue.NewRegistry(lockManager),
		Displays:     display.NewSynchronizer(gateway, lockManager, metrics),
		Platform:     gateway,
		Events:       eventBus,
		Metrics:      metrics,
		JoinCommand:  cfg.Commands.Join,
		PollInterval: cfg.GracePollInterval,
	})

	// Initialize Discord bot
	log.Info("Connecting to Discord...")
	discordBot, err := bot.New(bot.Config{
		Commands:      cfg.Commands,
		DefaultPrefix: cfg.DefaultPrefix,
		Permissions:   cfg.Permissions(),
	}, session, gateway, queueService)
	if err != nil {
		return fmt.Errorf("failed to initialize Discord bot: %w", err)
	}

	log.Infof("Bot is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	// Cleanup resources
	log.Info("Shutting down bot...")
	if err := discordBot.Close(); err != nil {
		log.WithError(err).Error("Error closing Discord bot")
	}

	// Give cleanup operations time to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	watchersDone := make(chan struct{})
	go func() {
		queueService.Watcher().Wait()
		close(watchersDone)
	}()
	select {
	case <-watchersDone:
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout exceeded waiting for grace period watchers")
	}

	if natsClient != nil {
		if err := natsClient.Close(); err != nil {
			log.WithError(err).Error("Error closing NATS connection")
		}
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down metrics")
	}

	log.Info("Shutdown completed")
	return nil
}

// connectNATS connects to NATS, makes sure the event stream exists and
// subscribes the publisher to every bus event.
func connectNATS(ctx context.Context, servers string, eventBus *events.Bus, metrics infrastructure.PublishMetrics) (*infrastructure.NATSClient, error) {
	client := infrastructure.NewNATSClient(servers)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return nil, err
	}

	publisher := infrastructure.NewNATSEventPublisher(client, infrastructure.NewEventSubjectMapper(), metrics)
	if err := publisher.EnsureEventStream(client); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ensure event stream: %w", err)
	}
	publisher.Attach(eventBus)
	return client, nil
}
