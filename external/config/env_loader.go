package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/roundup/internal/config"
)

type envConfig struct {
	Env                 string  `env:"ENV" envDefault:"production"`
	BackendURL          string  `env:"BACKEND_URL,required"`
	PushURL             string  `env:"PUSH_URL,required"`
	DeviceAlias         string  `env:"DEVICE_ALIAS,required"`
	DataDir             string  `env:"DATA_DIR" envDefault:"./data"`
	RequestTimeoutSec   int     `env:"REQUEST_TIMEOUT_SEC" envDefault:"10"`
	ChannelWaitSec      int     `env:"CHANNEL_WAIT_SEC" envDefault:"30"`
	WalkingThresholdM   float64 `env:"WALKING_THRESHOLD_M" envDefault:"100"`
	DrivingThresholdM   float64 `env:"DRIVING_THRESHOLD_M" envDefault:"500"`
	ArrivalToleranceM   float64 `env:"ARRIVAL_TOLERANCE_M" envDefault:"25"`
	NotificationCeiling int     `env:"NOTIFICATION_CEILING" envDefault:"400"`
	InviteFriendlyText  string  `env:"INVITE_FRIENDLY_TEXT" envDefault:"Let's meet up! Open this on your phone:"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                 raw.Env,
		BackendURL:          raw.BackendURL,
		PushURL:             raw.PushURL,
		DeviceAlias:         raw.DeviceAlias,
		DataDir:             raw.DataDir,
		RequestTimeoutSec:   raw.RequestTimeoutSec,
		ChannelWaitSec:      raw.ChannelWaitSec,
		WalkingThresholdM:   raw.WalkingThresholdM,
		DrivingThresholdM:   raw.DrivingThresholdM,
		ArrivalToleranceM:   raw.ArrivalToleranceM,
		NotificationCeiling: raw.NotificationCeiling,
		InviteFriendlyText:  raw.InviteFriendlyText,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type serverEnvConfig struct {
	Env                string `env:"ENV" envDefault:"production"`
	ListenAddr         string `env:"LISTEN_ADDR" envDefault:":8080"`
	DatabaseURL        string `env:"DATABASE_URL"`
	InMemoryStore      bool   `env:"IN_MEMORY_STORE" envDefault:"false"`
	DailyPushQuota     int    `env:"DAILY_PUSH_QUOTA" envDefault:"500"`
	SweepSchedule      string `env:"SWEEP_SCHEDULE" envDefault:"@hourly"`
	SessionLifetimeHrs int    `env:"SESSION_LIFETIME_HRS" envDefault:"24"`
}

func LoadServer() (*internalconfig.ServerConfig, error) {
	var raw serverEnvConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.ServerConfig{
		Env:                raw.Env,
		ListenAddr:         raw.ListenAddr,
		DatabaseURL:        raw.DatabaseURL,
		InMemoryStore:      raw.InMemoryStore,
		DailyPushQuota:     raw.DailyPushQuota,
		SweepSchedule:      raw.SweepSchedule,
		SessionLifetimeHrs: raw.SessionLifetimeHrs,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
