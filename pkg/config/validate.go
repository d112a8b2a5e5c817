// Package config loads and validates service configuration.
package config

import (
	"fmt"
	"strings"
)

// ValidateCore ensures critical configuration is present.
func (c *Config) ValidateCore() error {
	var missing []string

	if strings.TrimSpace(c.Database.URL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Intake.Enabled || c.Notification.Driver == "redis" {
		if strings.TrimSpace(c.Redis.URL) == "" {
			missing = append(missing, "REDIS_URL")
		}
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		missing = append(missing, "SERVER_PORT")
	}
	if c.Intake.Enabled && strings.TrimSpace(c.Intake.Queue) == "" {
		missing = append(missing, "INTAKE_QUEUE")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver)
	}
	switch c.Notification.Driver {
	case "log", "redis":
	default:
		return fmt.Errorf("unsupported NOTIFICATION_DRIVER %q", c.Notification.Driver)
	}
	if c.Engine.MaxDepth <= 0 {
		return fmt.Errorf("ENGINE_MAX_DEPTH must be positive, got %d", c.Engine.MaxDepth)
	}

	return nil
}
