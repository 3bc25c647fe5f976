package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env                 string
	BackendURL          string
	PushURL             string
	DeviceAlias         string
	DataDir             string
	RequestTimeoutSec   int
	ChannelWaitSec      int
	WalkingThresholdM   float64
	DrivingThresholdM   float64
	ArrivalToleranceM   float64
	NotificationCeiling int
	InviteFriendlyText  string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.RequestTimeoutSec <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SEC must be positive, got %d", c.RequestTimeoutSec)
	}
	if c.ChannelWaitSec <= 0 {
		return fmt.Errorf("CHANNEL_WAIT_SEC must be positive, got %d", c.ChannelWaitSec)
	}
	if c.WalkingThresholdM <= 0 || c.DrivingThresholdM <= 0 {
		return fmt.Errorf("broadcast thresholds must be positive, got walking=%v driving=%v", c.WalkingThresholdM, c.DrivingThresholdM)
	}
	if c.ArrivalToleranceM <= 0 {
		return fmt.Errorf("ARRIVAL_TOLERANCE_M must be positive, got %v", c.ArrivalToleranceM)
	}
	if c.NotificationCeiling <= 0 {
		return fmt.Errorf("NOTIFICATION_CEILING must be positive, got %d", c.NotificationCeiling)
	}
	return nil
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c *Config) ChannelWait() time.Duration {
	return time.Duration(c.ChannelWaitSec) * time.Second
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "BACKEND_URL", value: c.BackendURL},
		{name: "PUSH_URL", value: c.PushURL},
		{name: "DEVICE_ALIAS", value: c.DeviceAlias},
		{name: "DATA_DIR", value: c.DataDir},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
