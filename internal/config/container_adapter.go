package config

import (
	"github.com/garyjia/erp-workflow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			DSN:             c.Database.DSN,
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Workflow: container.WorkflowConfig{
			LinkPrefix:                c.Workflow.LinkPrefix,
			NotifySubmitterOnTerminal: c.Workflow.NotifySubmitterOnTerminal,
			AsyncEvents:               c.Workflow.AsyncEvents,
		},
		Telemetry: container.TelemetryConfig{
			Enabled:     c.Telemetry.Enabled,
			ServiceName: c.Telemetry.ServiceName,
			Endpoint:    c.Telemetry.Endpoint,
			Insecure:    c.Telemetry.Insecure,
			SampleRatio: c.Telemetry.SampleRatio,
		},
	}
}
