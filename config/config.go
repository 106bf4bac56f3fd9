package config

import (
	"fmt"
	"time"

	"github.com/olzhask/ride-dispatch/pkg/configparser"
)

// Config contains all configuration variables of the application
type (
	Config struct {
		Server   ServerConfig
		Database DatabaseConfig
		RabbitMQ RabbitMQConfig
		Dispatch DispatchConfig
		Outbox   OutboxConfig
		Auth     AuthConfig
	}

	ServerConfig struct {
		Port     string `env:"SERVER_PORT" default:"3000"`
		LogLevel string `env:"SERVER_LOG_LEVEL" default:"INFO"`
	}

	DatabaseConfig struct {
		Host     string `env:"DATABASE_HOST" default:"localhost"`
		Port     string `env:"DATABASE_PORT" default:"5432"`
		User     string `env:"DATABASE_USER" default:"dispatch_user"`
		Password string `env:"DATABASE_PASSWORD" default:"dispatch_pass"`
		Database string `env:"DATABASE_DATABASE" default:"dispatch_db"`

		MaxConns        int32         `env:"DATABASE_MAXCONNS" default:"20"`
		MinConns        int32         `env:"DATABASE_MINCONNS" default:"2"`
		MaxConnLifetime time.Duration `env:"DATABASE_MAXCONNLIFETIME" default:"30m"`
		MaxConnIdleTime time.Duration `env:"DATABASE_MAXCONNIDLETIME" default:"5m"`
	}

	RabbitMQConfig struct {
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`
	}

	DispatchConfig struct {
		AcceptWindow    time.Duration `env:"DISPATCH_ACCEPT_WINDOW" default:"2m"`
		RetentionWindow time.Duration `env:"DISPATCH_RETENTION_WINDOW" default:"5m"`
		SweepInterval   time.Duration `env:"DISPATCH_SWEEP_INTERVAL" default:"15s"`
	}

	OutboxConfig struct {
		BufferSize   int           `env:"OUTBOX_BUFFER_SIZE" default:"1024"`
		MaxAttempts  int           `env:"OUTBOX_MAX_ATTEMPTS" default:"5"`
		InitialDelay time.Duration `env:"OUTBOX_INITIAL_DELAY" default:"100ms"`
		MaxDelay     time.Duration `env:"OUTBOX_MAX_DELAY" default:"5s"`
	}

	AuthConfig struct {
		JWTSecret string `env:"AUTH_JWT_SECRET" default:"supersecretkey"`
	}
)

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.User,
		c.Password,
		c.Host,
		c.Port,
	)
}

func NewConfig(filepath string) (*Config, error) {
	cfg := &Config{}

	// Loading enviromental variables and parsing to config struct.
	if err := configparser.LoadAndParseYaml(filepath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}

	return cfg, nil
}
