package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"queuebot/database"
	"queuebot/models"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Commands holds the configurable command names
type Commands struct {
	Queue   string `env:"QUEUE_CMD" envDefault:"queue"`
	Display string `env:"DISPLAY_CMD" envDefault:"display"`
	Start   string `env:"START_CMD" envDefault:"start"`
	Next    string `env:"NEXT_CMD" envDefault:"next"`
	Kick    string `env:"KICK_CMD" envDefault:"kick"`
	Clear   string `env:"CLEAR_CMD" envDefault:"clear"`
	Grace   string `env:"GRACE_CMD" envDefault:"grace"`
	Prefix  string `env:"PREFIX_CMD" envDefault:"prefix"`
	Color   string `env:"COLOR_CMD" envDefault:"color"`
	Join    string `env:"JOIN_CMD" envDefault:"join"`
	Help    string `env:"HELP_CMD" envDefault:"help"`
}

// Config holds all application configuration
type Config struct {
	// Discord configuration
	DiscordToken string `env:"DISCORD_TOKEN"`

	// Database configuration
	DatabaseURL  string `env:"DATABASE_URL"`
	DatabaseName string `env:"DATABASE_NAME"`

	// Guild defaults
	DefaultPrefix      string `env:"DEFAULT_PREFIX" envDefault:"!"`
	DefaultGracePeriod int    `env:"DEFAULT_GRACE_PERIOD" envDefault:"0"`
	DefaultColor       string `env:"DEFAULT_COLOR" envDefault:"#51ff7e"`

	// Role names matching this pattern may use restricted commands
	PermissionsRegexp string `env:"PERMISSIONS_REGEXP" envDefault:"\\b((mod)|(admin))\\b"`

	GracePollInterval time.Duration `env:"GRACE_POLL_INTERVAL" envDefault:"2s"`

	// Outgoing message pacing, messages per second
	MessageRate  float64 `env:"MESSAGE_RATE" envDefault:"5"`
	MessageBurst int     `env:"MESSAGE_BURST" envDefault:"5"`

	Commands Commands

	// NATS configuration, publishing is disabled when empty
	NATSServers string `env:"NATS_SERVERS"`

	// OpenTelemetry configuration
	OTelEnabled      bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTelExporterType string `env:"OTEL_EXPORTER_TYPE" envDefault:"console"`
	OTelEndpoint     string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTelServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"queuebot"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	defaults    models.Defaults
	permissions *regexp.Regexp
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load(nil)
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// MigrationDatabaseURL builds the database URL straight from the environment
// so migrations do not need a Discord token.
func MigrationDatabaseURL() string {
	loadDotEnv()
	return database.ConstructDatabaseURL(os.Getenv("DATABASE_URL"), os.Getenv("DATABASE_NAME"))
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// Defaults returns the settings given to guilds without a stored record
func (c *Config) Defaults() models.Defaults {
	return c.defaults
}

// Permissions returns the compiled role-name pattern for restricted commands
func (c *Config) Permissions() *regexp.Regexp {
	return c.permissions
}

// IsProduction reports whether the bot runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ConfigureLogging applies the log level and formatter
func (c *Config) ConfigureLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("level", c.LogLevel).Warn("Unknown LOG_LEVEL, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if c.IsProduction() {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using process environment")
	}
}

// load parses configuration from the process environment, or from environ
// when it is non-nil.
func load(environ map[string]string) (*Config, error) {
	config := &Config{}

	if environ == nil {
		loadDotEnv()
		if err := env.Parse(config); err != nil {
			return nil, fmt.Errorf("failed to parse environment: %w", err)
		}
	} else {
		if err := env.ParseWithOptions(config, env.Options{Environment: environ}); err != nil {
			return nil, fmt.Errorf("failed to parse environment: %w", err)
		}
	}

	if err := config.finish(); err != nil {
		return nil, err
	}

	if config.Environment != "test" {
		if config.DiscordToken == "" {
			return nil, fmt.Errorf("DISCORD_TOKEN is required")
		}
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}

	return config, nil
}

// finish validates derived settings and compiles the permission pattern
func (c *Config) finish() error {
	if strings.TrimSpace(c.DefaultPrefix) == "" {
		return fmt.Errorf("DEFAULT_PREFIX cannot be blank")
	}
	if c.DefaultGracePeriod < 0 || c.DefaultGracePeriod > models.MaxGracePeriodSeconds {
		return fmt.Errorf("DEFAULT_GRACE_PERIOD must be between 0 and %d", models.MaxGracePeriodSeconds)
	}
	color, err := models.ParseColor(c.DefaultColor)
	if err != nil {
		return fmt.Errorf("DEFAULT_COLOR: %w", err)
	}
	if c.GracePollInterval <= 0 {
		return fmt.Errorf("GRACE_POLL_INTERVAL must be positive")
	}
	if c.MessageRate <= 0 {
		return fmt.Errorf("MESSAGE_RATE must be positive")
	}
	if c.MessageBurst < 1 {
		c.MessageBurst = 1
	}

	permissions, err := regexp.Compile("(?i)" + c.PermissionsRegexp)
	if err != nil {
		return fmt.Errorf("PERMISSIONS_REGEXP: %w", err)
	}

	c.permissions = permissions
	c.defaults = models.Defaults{
		GracePeriodSeconds: c.DefaultGracePeriod,
		CommandPrefix:      c.DefaultPrefix,
		Color:              color,
	}
	return nil
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a config with every default applied, for unit tests
func NewTestConfig() *Config {
	config, err := load(map[string]string{"ENVIRONMENT": "test", "DISCORD_TOKEN": "test-token"})
	if err != nil {
		panic(fmt.Sprintf("default test config is invalid: %v", err))
	}
	return config
}
