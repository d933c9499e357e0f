// Package config loads daemon settings from configs/config.yml with
// HYDROSYNC_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"hydrosync/internal/logger"
)

// Config is the full daemon configuration.
type Config struct {
	Port     string
	LogLevel string
	DBPath   string
	Backend  BackendConfig
	Poll     PollConfig
	Push     PushConfig
}

// BackendConfig locates the system-of-record.
type BackendConfig struct {
	BaseURL        string
	WSURL          string
	RequestTimeout time.Duration
}

// PollConfig controls the periodic refresh.
type PollConfig struct {
	Interval time.Duration
}

// PushConfig controls the push connection and its reconnect backoff.
type PushConfig struct {
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	Multiplier        float64
	Jitter            bool
	PingInterval      time.Duration
	PongWait          time.Duration
}

const envPrefix = "HYDROSYNC"

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", logger.InfoLevel)
	v.SetDefault("db.path", "hydrosync.db")
	v.SetDefault("backend.request_timeout", 10*time.Second)
	v.SetDefault("poll.interval", 30*time.Second)
	v.SetDefault("push.initial_retry_delay", 1*time.Second)
	v.SetDefault("push.max_retry_delay", 30*time.Second)
	v.SetDefault("push.multiplier", 2.0)
	v.SetDefault("push.jitter", true)
	v.SetDefault("push.ping_interval", 30*time.Second)
	v.SetDefault("push.pong_wait", 60*time.Second)
}

// Load reads the named config file (or configs/config.yml when path is
// empty). A missing default file is not an error; defaults and env apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Port:     v.GetString("port"),
		LogLevel: strings.ToLower(v.GetString("log.level")),
		DBPath:   v.GetString("db.path"),
		Backend: BackendConfig{
			BaseURL:        strings.TrimRight(v.GetString("backend.base_url"), "/"),
			WSURL:          v.GetString("backend.ws_url"),
			RequestTimeout: v.GetDuration("backend.request_timeout"),
		},
		Poll: PollConfig{Interval: v.GetDuration("poll.interval")},
		Push: PushConfig{
			InitialRetryDelay: v.GetDuration("push.initial_retry_delay"),
			MaxRetryDelay:     v.GetDuration("push.max_retry_delay"),
			Multiplier:        v.GetFloat64("push.multiplier"),
			Jitter:            v.GetBool("push.jitter"),
			PingInterval:      v.GetDuration("push.ping_interval"),
			PongWait:          v.GetDuration("push.pong_wait"),
		},
	}

	if cfg.Backend.WSURL == "" && cfg.Backend.BaseURL != "" {
		ws, err := DeriveWSURL(cfg.Backend.BaseURL)
		if err != nil {
			return nil, err
		}
		cfg.Backend.WSURL = ws
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks required keys and lower bounds.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url %q is not an absolute URL", c.Backend.BaseURL)
	}
	if c.Backend.RequestTimeout <= 0 {
		return errors.New("backend.request_timeout must be positive")
	}
	if c.Poll.Interval < time.Second {
		return fmt.Errorf("poll.interval must be at least 1s, got %s", c.Poll.Interval)
	}
	if c.Push.InitialRetryDelay <= 0 || c.Push.MaxRetryDelay < c.Push.InitialRetryDelay {
		return errors.New("push retry delays must satisfy 0 < initial_retry_delay <= max_retry_delay")
	}
	if c.Push.Multiplier < 1 {
		return fmt.Errorf("push.multiplier must be >= 1, got %v", c.Push.Multiplier)
	}
	if c.Push.PingInterval > 0 && c.Push.PongWait <= c.Push.PingInterval {
		return errors.New("push.pong_wait must exceed push.ping_interval")
	}
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log.level: %s, must be one of: debug, info, warn, error", c.LogLevel)
	}
	return nil
}

// DeriveWSURL maps http(s)://host/prefix to ws(s)://host/prefix/ws.
func DeriveWSURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse backend.base_url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("backend.base_url scheme %q not supported", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
