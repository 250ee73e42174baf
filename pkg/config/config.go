// Package config loads server configuration from YAML and maps it onto the
// component configurations. Only the server binary uses it; library
// consumers construct component configs directly.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulsewire/pulsewire-go/pkg/ratelimit"
	"github.com/pulsewire/pulsewire-go/pkg/service"
	"github.com/pulsewire/pulsewire-go/pkg/stream"
)

// RateRule is one endpoint's admission rule.
type RateRule struct {
	Limit         int `yaml:"limit"`
	WindowSeconds int `yaml:"window_seconds"`
}

// File is the on-disk configuration. Zero values fall back to the component
// defaults.
type File struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// PingIntervalSeconds is the SSE keep-alive cadence.
	PingIntervalSeconds int `yaml:"ping_interval_seconds"`

	// QueueCapacity is the per-connection outbound queue size.
	QueueCapacity int `yaml:"queue_capacity"`

	// IdleTimeoutSeconds is the connection inactivity limit.
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`

	// MaxSubscriptionsPerClient caps active subscriptions per client.
	MaxSubscriptionsPerClient int `yaml:"max_subscriptions_per_client"`

	// SubscriptionTTLSeconds is the default subscription expiry.
	SubscriptionTTLSeconds int `yaml:"subscription_ttl_seconds"`

	// WebhookTimeoutSeconds bounds one webhook delivery attempt.
	WebhookTimeoutSeconds int `yaml:"webhook_timeout_seconds"`

	// RateLimits maps endpoint names (connect, subscribe, publish) to rules.
	RateLimits map[string]RateRule `yaml:"rate_limits"`

	// ConnectionSweepSeconds is the idle-eviction cadence.
	ConnectionSweepSeconds int `yaml:"connection_sweep_seconds"`

	// SubscriptionSweepSeconds is the expiry-sweep cadence.
	SubscriptionSweepSeconds int `yaml:"subscription_sweep_seconds"`

	// AuditLog is the CBOR audit file path. Empty disables file capture.
	AuditLog string `yaml:"audit_log"`

	// Discovery controls mDNS advertisement.
	Discovery struct {
		Enabled  bool   `yaml:"enabled"`
		Instance string `yaml:"instance"`
	} `yaml:"discovery"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &f, nil
}

// CoreConfig maps the file onto the core component configurations.
func (f *File) CoreConfig() service.Config {
	cfg := service.DefaultConfig()

	if f.QueueCapacity > 0 {
		cfg.Registry.QueueCapacity = f.QueueCapacity
	}
	if f.IdleTimeoutSeconds > 0 {
		cfg.Registry.IdleTimeout = seconds(f.IdleTimeoutSeconds)
	}
	if f.MaxSubscriptionsPerClient > 0 {
		cfg.Subscriptions.MaxPerClient = f.MaxSubscriptionsPerClient
	}
	if f.SubscriptionTTLSeconds > 0 {
		cfg.Subscriptions.DefaultTTL = seconds(f.SubscriptionTTLSeconds)
	}
	if f.WebhookTimeoutSeconds > 0 {
		cfg.Dispatch.WebhookTimeout = seconds(f.WebhookTimeoutSeconds)
	}
	if f.ConnectionSweepSeconds > 0 {
		cfg.Cleanup.ConnectionSweepInterval = seconds(f.ConnectionSweepSeconds)
	}
	if f.SubscriptionSweepSeconds > 0 {
		cfg.Cleanup.SubscriptionSweepInterval = seconds(f.SubscriptionSweepSeconds)
	}

	for endpoint, rule := range f.RateLimits {
		cfg.RateLimit.Rules[endpoint] = ratelimit.Rule{
			Limit:  rule.Limit,
			Window: seconds(rule.WindowSeconds),
		}
	}

	return cfg
}

// StreamConfig maps the file onto the transport configuration.
func (f *File) StreamConfig() stream.Config {
	cfg := stream.DefaultConfig()
	if f.Listen != "" {
		cfg.Addr = f.Listen
	}
	if f.PingIntervalSeconds > 0 {
		cfg.PingInterval = seconds(f.PingIntervalSeconds)
	}
	return cfg
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
