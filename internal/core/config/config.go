package config

import (
	"time"

	"github.com/vietddude/foreman/internal/core/domain"
	"github.com/vietddude/foreman/internal/infra/broker"
	"github.com/vietddude/foreman/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Redis      broker.Config      `yaml:"redis"`
	Database   postgres.Config    `yaml:"database"`
	Workers    []WorkerRoleConfig `yaml:"workers"`
	Supervisor SupervisorConfig   `yaml:"supervisor"`
	Router     RouterConfig       `yaml:"router"`
	Archive    ArchiveConfig      `yaml:"archive"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// WorkerRoleConfig holds settings for one worker role.
type WorkerRoleConfig struct {
	Role         domain.WorkerRole `yaml:"role"`
	Queue        string            `yaml:"queue"`
	ResultQueue  string            `yaml:"result_queue"`
	Target       int               `yaml:"target"`
	Pattern      string            `yaml:"pattern"`       // command-line substring the scanner matches
	StartCommand []string          `yaml:"start_command"` // argv the supervisor launches
	Handlers     map[string]string `yaml:"handlers"`      // task type -> handler command
	Fallback     string            `yaml:"fallback"`      // handler command for unregistered types
}

// SupervisorConfig holds reconciliation settings.
type SupervisorConfig struct {
	ReconcileInterval    time.Duration `yaml:"reconcile_interval"`
	GracePeriod          time.Duration `yaml:"grace_period"`
	MaxSystemLoadPercent float64       `yaml:"max_system_load_percent"`
	ProtectedPatterns    []string      `yaml:"protected_patterns"`
	KeepNewest           bool          `yaml:"keep_newest"`
	LogDir               string        `yaml:"log_dir"`
}

// RouterConfig holds result routing and notification settings.
type RouterConfig struct {
	ResultQueue     string        `yaml:"result_queue"`
	WebhookURL      string        `yaml:"webhook_url"`
	SummaryInterval time.Duration `yaml:"summary_interval"`
	PreviewLimit    int           `yaml:"preview_limit"`
}

// ArchiveConfig holds execution attempt archive settings.
type ArchiveConfig struct {
	RetentionPeriod time.Duration `yaml:"retention_period"` // negative disables pruning
}
