package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Env                string
	ListenAddr         string
	DatabaseURL        string
	InMemoryStore      bool
	DailyPushQuota     int
	SweepSchedule      string
	SessionLifetimeHrs int
}

func (c *ServerConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("LISTEN_ADDR is required")
	}
	if !c.InMemoryStore && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required unless IN_MEMORY_STORE=true")
	}
	if c.DailyPushQuota <= 0 {
		return fmt.Errorf("DAILY_PUSH_QUOTA must be positive, got %d", c.DailyPushQuota)
	}
	if c.SweepSchedule == "" {
		return fmt.Errorf("SWEEP_SCHEDULE is required")
	}
	if c.SessionLifetimeHrs <= 0 {
		return fmt.Errorf("SESSION_LIFETIME_HRS must be positive, got %d", c.SessionLifetimeHrs)
	}
	return nil
}

func (c *ServerConfig) SessionLifetime() time.Duration {
	return time.Duration(c.SessionLifetimeHrs) * time.Hour
}

func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "development"
}
