// Package config defines and loads the queue's configuration.
package config

import "time"

// Config holds all queue configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Queue  QueueConfig  `mapstructure:"queue"  validate:"required"`
	Store  StoreConfig  `mapstructure:"store"  validate:"required"`
	Remote RemoteConfig `mapstructure:"remote" validate:"required"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Log    LogConfig    `mapstructure:"log"    validate:"required"`
}

// ServerConfig contains the status API listener settings.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`
}

// QueueConfig contains scheduling and retry settings.
type QueueConfig struct {
	TickInterval     time.Duration `mapstructure:"tick_interval"      validate:"required,gt=0"`
	StepTimeout      time.Duration `mapstructure:"step_timeout"       validate:"required,gt=0"`
	Retention        time.Duration `mapstructure:"retention"          validate:"required,gt=0"`
	HandleTTL        time.Duration `mapstructure:"handle_ttl"         validate:"required,gt=0"`
	MaxArtifactBytes int64         `mapstructure:"max_artifact_bytes" validate:"required,gt=0"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"       validate:"required,gt=0"`
	BackoffCap       time.Duration `mapstructure:"backoff_cap"        validate:"required,gt=0"`
	MaxAttempts      int           `mapstructure:"max_attempts"       validate:"required,gt=0"`
}

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	// Backend is either "file" or "postgres".
	Backend string `mapstructure:"backend" validate:"required,oneof=file postgres"`

	// Path is the queue file location for the file backend.
	Path string `mapstructure:"path" validate:"required_if=Backend file"`

	// URL is the database connection string for the postgres backend.
	URL string `mapstructure:"url" validate:"required_if=Backend postgres"`
}

// RemoteConfig contains the backend API endpoint settings.
type RemoteConfig struct {
	// BaseURL is the root of the backend API serving meeting records and
	// recording objects.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// TriggerURL is the processing trigger endpoint.
	TriggerURL string `mapstructure:"trigger_url" validate:"required,url"`
}

// AuthConfig contains the remote call credential settings.
type AuthConfig struct {
	// Token is an optional static bearer credential. Remote calls go out
	// unauthenticated when it is empty.
	Token string `mapstructure:"token"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}
