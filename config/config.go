// Package config loads runtime configuration for the clan battle service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "CLANBATTLE"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "clanbattle.db"
	defaultLogLevel          = "info"
	defaultSubscribeLimit    = 3
	defaultMemberBatchLimit  = 50
	defaultSchedulerInterval = time.Hour
	defaultSchedulerEnabled  = true
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string

	// SubscribeLimit caps active subscriptions per boss.
	SubscribeLimit int

	// MemberBatchLimit caps one batch member import.
	MemberBatchLimit int

	// BossesPath overrides the embedded boss tier tables when set.
	BossesPath string

	SchedulerEnabled  bool
	SchedulerInterval time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("subscribe.limit", defaultSubscribeLimit)
	configViper.SetDefault("members.batch_limit", defaultMemberBatchLimit)
	configViper.SetDefault("bosses.path", "")
	configViper.SetDefault("scheduler.enabled", defaultSchedulerEnabled)
	configViper.SetDefault("scheduler.interval", defaultSchedulerInterval)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		SubscribeLimit:    configViper.GetInt("subscribe.limit"),
		MemberBatchLimit:  configViper.GetInt("members.batch_limit"),
		BossesPath:        configViper.GetString("bosses.path"),
		SchedulerEnabled:  configViper.GetBool("scheduler.enabled"),
		SchedulerInterval: configViper.GetDuration("scheduler.interval"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.SubscribeLimit < 1 {
		return fmt.Errorf("subscribe.limit must be at least 1, got %d", c.SubscribeLimit)
	}
	if c.MemberBatchLimit < 1 {
		return fmt.Errorf("members.batch_limit must be at least 1, got %d", c.MemberBatchLimit)
	}
	if c.SchedulerEnabled && c.SchedulerInterval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive when the scheduler is enabled")
	}
	return nil
}
