package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIConfig holds the REST backend settings.
type APIConfig struct {
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// HubConfig holds the push hub settings.
type HubConfig struct {
	URL          string `mapstructure:"url" yaml:"url"`
	KeepaliveSec int    `mapstructure:"keepalive_sec" yaml:"keepalive_sec"`

	// RetryDelaysSec is the transport's own reconnect schedule. Its length
	// is the transport retry budget.
	RetryDelaysSec []int `mapstructure:"retry_delays_sec" yaml:"retry_delays_sec"`

	ManualRetryMax     int `mapstructure:"manual_retry_max" yaml:"manual_retry_max"`
	ManualRetryBaseSec int `mapstructure:"manual_retry_base_sec" yaml:"manual_retry_base_sec"`
}

// ConfirmationConfig holds the appointment-confirmation settings.
type ConfirmationConfig struct {
	PollIntervalSec   int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	InitialDelaySec   int `mapstructure:"initial_delay_sec" yaml:"initial_delay_sec"`
	WindowBeforeMin   int `mapstructure:"window_before_min" yaml:"window_before_min"`
	WindowAfterMin    int `mapstructure:"window_after_min" yaml:"window_after_min"`
	OutcomeDisplaySec int `mapstructure:"outcome_display_sec" yaml:"outcome_display_sec"`
}

// NotificationsConfig holds the notification store settings.
type NotificationsConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity"`
}

// LogConfig holds the log file settings.
type LogConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Level string `mapstructure:"level" yaml:"level"`
}

// StoreConfig holds the local history database settings.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API           APIConfig           `mapstructure:"api" yaml:"api"`
	Hub           HubConfig           `mapstructure:"hub" yaml:"hub"`
	Confirmation  ConfirmationConfig  `mapstructure:"confirmation" yaml:"confirmation"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
	Store         StoreConfig         `mapstructure:"store" yaml:"store"`
}

// APITimeout returns the REST client timeout.
func (c *AppConfig) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// RetryDelays returns the transport reconnect schedule.
func (c *AppConfig) RetryDelays() []time.Duration {
	delays := make([]time.Duration, len(c.Hub.RetryDelaysSec))
	for i, s := range c.Hub.RetryDelaysSec {
		delays[i] = time.Duration(s) * time.Second
	}
	return delays
}

// configDir returns ~/.config/autohub, or the working directory when the
// home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "autohub")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/autohub/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	dir := configDir()
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:5000",
			TimeoutSec: 30,
		},
		Hub: HubConfig{
			URL:                "ws://localhost:5000/notificationHub",
			KeepaliveSec:       15,
			RetryDelaysSec:     []int{0, 2, 10, 30, 30},
			ManualRetryMax:     5,
			ManualRetryBaseSec: 5,
		},
		Confirmation: ConfirmationConfig{
			PollIntervalSec:   30,
			InitialDelaySec:   2,
			WindowBeforeMin:   5,
			WindowAfterMin:    15,
			OutcomeDisplaySec: 2,
		},
		Notifications: NotificationsConfig{
			Capacity: 50,
		},
		Log: LogConfig{
			Path:  filepath.Join(dir, "autohub.log"),
			Level: "info",
		},
		Store: StoreConfig{
			Path: filepath.Join(dir, "history.db"),
		},
	}
}

// setDefaults registers every default with v so that partially written
// files and environment overrides resolve against them.
func setDefaults(v *viper.Viper, d *AppConfig) {
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout_sec", d.API.TimeoutSec)
	v.SetDefault("hub.url", d.Hub.URL)
	v.SetDefault("hub.keepalive_sec", d.Hub.KeepaliveSec)
	v.SetDefault("hub.retry_delays_sec", d.Hub.RetryDelaysSec)
	v.SetDefault("hub.manual_retry_max", d.Hub.ManualRetryMax)
	v.SetDefault("hub.manual_retry_base_sec", d.Hub.ManualRetryBaseSec)
	v.SetDefault("confirmation.poll_interval_sec", d.Confirmation.PollIntervalSec)
	v.SetDefault("confirmation.initial_delay_sec", d.Confirmation.InitialDelaySec)
	v.SetDefault("confirmation.window_before_min", d.Confirmation.WindowBeforeMin)
	v.SetDefault("confirmation.window_after_min", d.Confirmation.WindowAfterMin)
	v.SetDefault("confirmation.outcome_display_sec", d.Confirmation.OutcomeDisplaySec)
	v.SetDefault("notifications.capacity", d.Notifications.Capacity)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("store.path", d.Store.Path)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with AUTOHUB_ (for example
// AUTOHUB_API_BASE_URL) override file values. A missing file yields the
// defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AUTOHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultAppConfig())

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Notifications.Capacity <= 0 {
		cfg.Notifications.Capacity = 50
	}
	if cfg.Hub.ManualRetryMax <= 0 {
		cfg.Hub.ManualRetryMax = 5
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("hub", cfg.Hub)
	v.Set("confirmation", cfg.Confirmation)
	v.Set("notifications", cfg.Notifications)
	v.Set("log", cfg.Log)
	v.Set("store", cfg.Store)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
