package core

import (
	"fmt"
	"strings"
	"time"
)

type OrdersConfig struct {
	ReviewWindowDays int `koanf:"review_window_days" mapstructure:"review_window_days"`
	FanoutLimit      int `koanf:"fanout_limit" mapstructure:"fanout_limit"`
}

type NotificationsConfig struct {
	TTLDays       int    `koanf:"ttl_days" mapstructure:"ttl_days"`
	UrgentTTLDays int    `koanf:"urgent_ttl_days" mapstructure:"urgent_ttl_days"`
	QueueJobID    string `koanf:"queue_job_id" mapstructure:"queue_job_id"`
	FanoutJobID   string `koanf:"fanout_job_id" mapstructure:"fanout_job_id"`
}

type RealtimeConfig struct {
	MarkReadLimit         int `koanf:"mark_read_limit" mapstructure:"mark_read_limit"`
	MarkReadWindowSeconds int `koanf:"mark_read_window_seconds" mapstructure:"mark_read_window_seconds"`
	SendBuffer            int `koanf:"send_buffer" mapstructure:"send_buffer"`
}

type OutboxConfig struct {
	Enabled     bool `koanf:"enabled" mapstructure:"enabled"`
	BatchSize   int  `koanf:"batch_size" mapstructure:"batch_size"`
	MaxAttempts int  `koanf:"max_attempts" mapstructure:"max_attempts"`
}

type WorkerConfig struct {
	MaxAttempts     int `koanf:"max_attempts" mapstructure:"max_attempts"`
	MaxDelaySeconds int `koanf:"max_delay_seconds" mapstructure:"max_delay_seconds"`
}

type CleanupConfig struct {
	IntervalMinutes int `koanf:"interval_minutes" mapstructure:"interval_minutes"`
}

type Config struct {
	ServiceName   string              `koanf:"service_name" mapstructure:"service_name"`
	Orders        OrdersConfig        `koanf:"orders" mapstructure:"orders"`
	Notifications NotificationsConfig `koanf:"notifications" mapstructure:"notifications"`
	Realtime      RealtimeConfig      `koanf:"realtime" mapstructure:"realtime"`
	Outbox        OutboxConfig        `koanf:"outbox" mapstructure:"outbox"`
	Worker        WorkerConfig        `koanf:"worker" mapstructure:"worker"`
	Cleanup       CleanupConfig       `koanf:"cleanup" mapstructure:"cleanup"`
}

const (
	DefaultDeliverJobID = "marketplace.notification.deliver"
	DefaultFanoutJobID  = "marketplace.order.fanout"
)

func DefaultConfig() Config {
	return Config{
		ServiceName: "marketplace",
		Orders: OrdersConfig{
			ReviewWindowDays: 14,
			FanoutLimit:      200,
		},
		Notifications: NotificationsConfig{
			TTLDays:       30,
			UrgentTTLDays: 90,
			QueueJobID:    DefaultDeliverJobID,
			FanoutJobID:   DefaultFanoutJobID,
		},
		Realtime: RealtimeConfig{
			MarkReadLimit:         100,
			MarkReadWindowSeconds: 60,
			SendBuffer:            32,
		},
		Outbox: OutboxConfig{
			Enabled:     false,
			BatchSize:   50,
			MaxAttempts: 5,
		},
		Worker: WorkerConfig{
			MaxAttempts:     5,
			MaxDelaySeconds: 300,
		},
		Cleanup: CleanupConfig{
			IntervalMinutes: 60,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Orders.ReviewWindowDays <= 0 {
		return fmt.Errorf("core: orders.review_window_days must be positive")
	}
	if c.Notifications.TTLDays <= 0 || c.Notifications.UrgentTTLDays <= 0 {
		return fmt.Errorf("core: notifications ttl days must be positive")
	}
	if strings.TrimSpace(c.Notifications.QueueJobID) == "" {
		return fmt.Errorf("core: notifications.queue_job_id is required")
	}
	if strings.TrimSpace(c.Notifications.FanoutJobID) == "" {
		return fmt.Errorf("core: notifications.fanout_job_id is required")
	}
	if c.Realtime.MarkReadLimit <= 0 || c.Realtime.MarkReadWindowSeconds <= 0 {
		return fmt.Errorf("core: realtime mark-read limit and window must be positive")
	}
	if c.Outbox.Enabled && c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("core: outbox.max_attempts must be positive when outbox is enabled")
	}
	return nil
}

func (c Config) ReviewWindow() time.Duration {
	return time.Duration(c.Orders.ReviewWindowDays) * 24 * time.Hour
}

func (c Config) NotificationTTL(priority NotificationPriority) time.Duration {
	days := c.Notifications.TTLDays
	if priority == PriorityUrgent {
		days = c.Notifications.UrgentTTLDays
	}
	return time.Duration(days) * 24 * time.Hour
}

func (c Config) MarkReadWindow() time.Duration {
	return time.Duration(c.Realtime.MarkReadWindowSeconds) * time.Second
}

func (c Config) WorkerMaxDelay() time.Duration {
	return time.Duration(c.Worker.MaxDelaySeconds) * time.Second
}

func (c Config) CleanupInterval() time.Duration {
	return time.Duration(c.Cleanup.IntervalMinutes) * time.Minute
}
