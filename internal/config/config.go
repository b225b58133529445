package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Config is the full platewatch configuration.
//
// All durations are Go duration strings (e.g. "250ms", "20s", "1m").
// Defaults are applied by Load; a zero-value section is valid.
type Config struct {
	Watch    WatchConfig    `yaml:"watch"`
	State    StateConfig    `yaml:"state"`
	Notify   NotifyConfig   `yaml:"notify"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// WatchConfig controls the plate list and the lookup client.
type WatchConfig struct {
	PlatesFile string `yaml:"plates_file"`

	BaseURL       string `yaml:"base_url"`
	VehicleTypeID string `yaml:"vehicle_type_id"`
	UserAgent     string `yaml:"user_agent"`

	// Timeout bounds a single lookup request.
	Timeout string `yaml:"timeout"`

	// Retries is the total attempt count for transport faults (not extra tries).
	Retries int `yaml:"retries"`

	// RequestDelay is the politeness gap between consecutive lookups.
	RequestDelay string `yaml:"request_delay"`
}

// StateConfig controls the persisted status snapshot.
//
// Driver values:
//   - "file": JSON snapshot on disk (default)
//   - "sqlite": SQLite database file
type StateConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout"` // sqlite only
}

// NotifyConfig controls the alert sinks. All sinks are optional;
// with none configured the notifier is a logged no-op.
type NotifyConfig struct {
	Webhook  WebhookConfig  `yaml:"webhook"`
	Telegram TelegramConfig `yaml:"telegram"`

	RatePerSec int `yaml:"rate_per_sec"`
}

// WebhookConfig configures a Discord-compatible webhook sink.
// URL falls back to the DISCORD_WEBHOOK_URL environment variable.
type WebhookConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// ScheduleConfig controls daemon mode. When disabled the process runs a
// single pass and exits.
type ScheduleConfig struct {
	Enabled bool `yaml:"enabled"`

	// Spec is a cron expression or "@every <duration>".
	Spec     string `yaml:"spec"`
	Timezone string `yaml:"timezone"` // IANA TZ, e.g. "Pacific/Auckland"

	// WatchList re-runs immediately when the plates file changes.
	WatchList bool `yaml:"watch_list"`
}

type LoggingConfig struct {
	Level   string        `yaml:"level"`
	Console bool          `yaml:"console"`
	File    LogFileConfig `yaml:"file"`
}

type LogFileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when a section or field is omitted.
func Default() Config {
	return Config{
		Watch: WatchConfig{
			PlatesFile:    "./plates.txt",
			BaseURL:       "https://api.kiwiplates.nz/api/combination/v2",
			VehicleTypeID: "1",
			UserAgent:     "platewatch (respectful polling)",
			Timeout:       "20s",
			Retries:       3,
			RequestDelay:  "250ms",
		},
		State: StateConfig{
			Driver: "file",
			Path:   "./watch_state.json",
		},
		Notify: NotifyConfig{
			Webhook:    WebhookConfig{Timeout: "20s"},
			RatePerSec: 1,
		},
		Schedule: ScheduleConfig{
			Spec:      "@every 15m",
			WatchList: true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

func (c *Config) applyDefaults() {
	d := Default()

	if strings.TrimSpace(c.Watch.PlatesFile) == "" {
		c.Watch.PlatesFile = d.Watch.PlatesFile
	}
	if strings.TrimSpace(c.Watch.BaseURL) == "" {
		c.Watch.BaseURL = d.Watch.BaseURL
	}
	if strings.TrimSpace(c.Watch.VehicleTypeID) == "" {
		c.Watch.VehicleTypeID = d.Watch.VehicleTypeID
	}
	if strings.TrimSpace(c.Watch.UserAgent) == "" {
		c.Watch.UserAgent = d.Watch.UserAgent
	}
	if strings.TrimSpace(c.Watch.Timeout) == "" {
		c.Watch.Timeout = d.Watch.Timeout
	}
	if c.Watch.Retries <= 0 {
		c.Watch.Retries = d.Watch.Retries
	}
	if strings.TrimSpace(c.Watch.RequestDelay) == "" {
		c.Watch.RequestDelay = d.Watch.RequestDelay
	}

	if strings.TrimSpace(c.State.Driver) == "" {
		c.State.Driver = d.State.Driver
	}
	if strings.TrimSpace(c.State.Path) == "" {
		c.State.Path = d.State.Path
	}

	if strings.TrimSpace(c.Notify.Webhook.URL) == "" {
		c.Notify.Webhook.URL = strings.TrimSpace(os.Getenv("DISCORD_WEBHOOK_URL"))
	}
	if strings.TrimSpace(c.Notify.Webhook.Timeout) == "" {
		c.Notify.Webhook.Timeout = d.Notify.Webhook.Timeout
	}
	if c.Notify.RatePerSec <= 0 {
		c.Notify.RatePerSec = d.Notify.RatePerSec
	}

	if strings.TrimSpace(c.Schedule.Spec) == "" {
		c.Schedule.Spec = d.Schedule.Spec
	}

	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = d.Logging.Level
	}
}

// Validate checks field values that would otherwise fail deep inside a run.
// Durations are parsed here so a typo surfaces at startup with a field path.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseDurationField("watch.timeout", c.Watch.Timeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("watch.request_delay", c.Watch.RequestDelay); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("notify.webhook.timeout", c.Notify.Webhook.Timeout); err != nil {
		errs = append(errs, err)
	}
	if c.State.BusyTimeout != "" {
		if _, err := ParseDurationField("state.busy_timeout", c.State.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.State.Driver)) {
	case "file", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("state.driver: unknown driver %q", c.State.Driver))
	}

	if c.Notify.Telegram.Token != "" && c.Notify.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("notify.telegram: chat_id is required when token is set"))
	}

	return errors.Join(errs...)
}
