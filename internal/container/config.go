// Package container provides dependency injection and lifecycle management
// for the workflow service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
type Config struct {
	Database  DatabaseConfig
	Workflow  WorkflowConfig
	Telemetry TelemetryConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is sqlite3 or pgx
	Driver string

	// DSN is the PostgreSQL connection string
	DSN string

	// Path to the SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// WorkflowConfig holds engine settings.
type WorkflowConfig struct {
	// LinkPrefix is prepended to the instance id in notification links
	LinkPrefix string

	// NotifySubmitterOnTerminal registers the submitter notifier observer
	NotifySubmitterOnTerminal bool

	// AsyncEvents runs observers after the request returns
	AsyncEvents bool
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			Path:            "data/workflow.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Workflow: WorkflowConfig{
			LinkPrefix: "/administration/workflows/approvals/",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "erp-workflow",
			SampleRatio: 1,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case "pgx":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Workflow.LinkPrefix == "" {
		return fmt.Errorf("workflow.link_prefix is required")
	}
	return nil
}
