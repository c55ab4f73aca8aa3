package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/adapters/pushgateway"
	"github.com/goliatone/go-marketplace/adapters/smtpmail"
	"github.com/goliatone/go-marketplace/core"
	"github.com/spf13/viper"
)

const envPrefix = "MARKETPLACE"

type DatabaseSettings struct {
	Driver             string `mapstructure:"driver"`
	DSN                string `mapstructure:"dsn"`
	Debug              bool   `mapstructure:"debug"`
	PingTimeoutSeconds int    `mapstructure:"ping_timeout_seconds"`
}

type HTTPSettings struct {
	Addr                   string   `mapstructure:"addr"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds"`
	AllowedOrigins         []string `mapstructure:"allowed_origins"`
}

type RealtimeSettings struct {
	TokenSecret string `mapstructure:"token_secret"`
}

type SMTPSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

func (s SMTPSettings) Enabled() bool {
	return strings.TrimSpace(s.Host) != ""
}

func (s SMTPSettings) Config() smtpmail.Config {
	return smtpmail.Config{
		Host:     s.Host,
		Port:     s.Port,
		Username: s.Username,
		Password: s.Password,
		From:     s.From,
		FromName: s.FromName,
	}
}

type PushSettings struct {
	Endpoint          string  `mapstructure:"endpoint"`
	APIKey            string  `mapstructure:"api_key"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

func (s PushSettings) Enabled() bool {
	return strings.TrimSpace(s.Endpoint) != ""
}

func (s PushSettings) Config() pushgateway.Config {
	return pushgateway.Config{
		Endpoint: s.Endpoint,
		APIKey:   s.APIKey,
		Timeout:  time.Duration(s.TimeoutSeconds) * time.Second,

		RequestsPerSecond: s.RequestsPerSecond,
		Burst:             s.Burst,
	}
}

type CacheSettings struct {
	PreferenceTTLSeconds int `mapstructure:"preference_ttl_seconds"`
}

type MetricsSettings struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// Settings holds the daemon sections plus the marketplace section, which is
// passed to the service as its runtime config layer.
type Settings struct {
	Database DatabaseSettings `mapstructure:"database"`
	HTTP     HTTPSettings     `mapstructure:"http"`
	Realtime RealtimeSettings `mapstructure:"realtime"`
	SMTP     SMTPSettings     `mapstructure:"smtp"`
	Push     PushSettings     `mapstructure:"push"`
	Cache    CacheSettings    `mapstructure:"cache"`
	Metrics  MetricsSettings  `mapstructure:"metrics"`

	Marketplace core.Config `mapstructure:"marketplace"`
}

func (s Settings) Validate() error {
	var problems []string
	if strings.TrimSpace(s.Database.Driver) == "" {
		problems = append(problems, "database.driver is required")
	}
	if strings.TrimSpace(s.Database.DSN) == "" {
		problems = append(problems, "database.dsn is required")
	}
	if strings.TrimSpace(s.HTTP.Addr) == "" {
		problems = append(problems, "http.addr is required")
	}
	if strings.TrimSpace(s.Realtime.TokenSecret) == "" {
		problems = append(problems, "realtime.token_secret is required")
	}
	if err := s.Marketplace.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("marketplaced: invalid settings: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (s Settings) ShutdownTimeout() time.Duration {
	if s.HTTP.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.HTTP.ShutdownTimeoutSeconds) * time.Second
}

func (s Settings) PreferenceTTL() time.Duration {
	return time.Duration(s.Cache.PreferenceTTLSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "file:marketplace.db?_foreign_keys=on")
	v.SetDefault("database.debug", false)
	v.SetDefault("database.ping_timeout_seconds", 5)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout_seconds", 10)
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("realtime.token_secret", "")
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.from_name", "")
	v.SetDefault("push.endpoint", "")
	v.SetDefault("push.api_key", "")
	v.SetDefault("push.timeout_seconds", 10)
	v.SetDefault("push.requests_per_second", 0)
	v.SetDefault("push.burst", 1)
	v.SetDefault("cache.preference_ttl_seconds", 60)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "marketplace")
	v.SetDefault("metrics.path", "/metrics")

	// Service keys are registered so environment overrides reach them.
	defaults := core.DefaultConfig()
	v.SetDefault("marketplace.service_name", defaults.ServiceName)
	v.SetDefault("marketplace.orders.review_window_days", defaults.Orders.ReviewWindowDays)
	v.SetDefault("marketplace.orders.fanout_limit", defaults.Orders.FanoutLimit)
	v.SetDefault("marketplace.notifications.ttl_days", defaults.Notifications.TTLDays)
	v.SetDefault("marketplace.notifications.urgent_ttl_days", defaults.Notifications.UrgentTTLDays)
	v.SetDefault("marketplace.notifications.queue_job_id", defaults.Notifications.QueueJobID)
	v.SetDefault("marketplace.notifications.fanout_job_id", defaults.Notifications.FanoutJobID)
	v.SetDefault("marketplace.realtime.mark_read_limit", defaults.Realtime.MarkReadLimit)
	v.SetDefault("marketplace.realtime.mark_read_window_seconds", defaults.Realtime.MarkReadWindowSeconds)
	v.SetDefault("marketplace.realtime.send_buffer", defaults.Realtime.SendBuffer)
	v.SetDefault("marketplace.outbox.enabled", defaults.Outbox.Enabled)
	v.SetDefault("marketplace.outbox.batch_size", defaults.Outbox.BatchSize)
	v.SetDefault("marketplace.outbox.max_attempts", defaults.Outbox.MaxAttempts)
	v.SetDefault("marketplace.worker.max_attempts", defaults.Worker.MaxAttempts)
	v.SetDefault("marketplace.worker.max_delay_seconds", defaults.Worker.MaxDelaySeconds)
	v.SetDefault("marketplace.cleanup.interval_minutes", defaults.Cleanup.IntervalMinutes)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadSettings reads the YAML file at path, when given, and applies
// MARKETPLACE_* environment overrides on top of the defaults.
func LoadSettings(path string) (Settings, error) {
	v := newViper()
	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Settings{}, fmt.Errorf("marketplaced: read config %s: %w", path, err)
			}
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, fmt.Errorf("marketplaced: parse config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

type persistenceConfig struct {
	database DatabaseSettings
}

func (c persistenceConfig) GetDebug() bool    { return c.database.Debug }
func (c persistenceConfig) GetDriver() string { return c.database.Driver }
func (c persistenceConfig) GetServer() string { return c.database.DSN }
func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-marketplace"
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	if c.database.PingTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.database.PingTimeoutSeconds) * time.Second
}
