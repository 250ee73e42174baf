package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pulsewire/pulsewire-go/pkg/stream"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
ping_interval_seconds: 15
queue_capacity: 250
idle_timeout_seconds: 120
max_subscriptions_per_client: 10
subscription_ttl_seconds: 3600
webhook_timeout_seconds: 5
connection_sweep_seconds: 10
subscription_sweep_seconds: 60
audit_log: /var/log/pulsewire/audit.cbor
rate_limits:
  subscribe:
    limit: 5
    window_seconds: 60
  publish:
    limit: 100
    window_seconds: 60
discovery:
  enabled: true
  instance: pulsewire-test
`)

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	core := f.CoreConfig()
	if core.Registry.QueueCapacity != 250 {
		t.Errorf("QueueCapacity = %d, want 250", core.Registry.QueueCapacity)
	}
	if core.Registry.IdleTimeout != 2*time.Minute {
		t.Errorf("IdleTimeout = %v, want 2m", core.Registry.IdleTimeout)
	}
	if core.Subscriptions.MaxPerClient != 10 {
		t.Errorf("MaxPerClient = %d, want 10", core.Subscriptions.MaxPerClient)
	}
	if core.Subscriptions.DefaultTTL != time.Hour {
		t.Errorf("DefaultTTL = %v, want 1h", core.Subscriptions.DefaultTTL)
	}
	if core.Dispatch.WebhookTimeout != 5*time.Second {
		t.Errorf("WebhookTimeout = %v, want 5s", core.Dispatch.WebhookTimeout)
	}
	if core.Cleanup.ConnectionSweepInterval != 10*time.Second {
		t.Errorf("ConnectionSweepInterval = %v, want 10s", core.Cleanup.ConnectionSweepInterval)
	}

	rule, ok := core.RateLimit.Rules["subscribe"]
	if !ok {
		t.Fatal("subscribe rate rule missing")
	}
	if rule.Limit != 5 || rule.Window != time.Minute {
		t.Errorf("subscribe rule = %+v, want 5/1m", rule)
	}

	sc := f.StreamConfig()
	if sc.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", sc.Addr)
	}
	if sc.PingInterval != 15*time.Second {
		t.Errorf("PingInterval = %v, want 15s", sc.PingInterval)
	}

	if f.AuditLog != "/var/log/pulsewire/audit.cbor" {
		t.Errorf("AuditLog = %q", f.AuditLog)
	}
	if !f.Discovery.Enabled || f.Discovery.Instance != "pulsewire-test" {
		t.Errorf("Discovery = %+v", f.Discovery)
	}
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "")

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	core := f.CoreConfig()
	if core.Registry.QueueCapacity != 100 {
		t.Errorf("QueueCapacity = %d, want default 100", core.Registry.QueueCapacity)
	}
	if core.Registry.IdleTimeout != 300*time.Second {
		t.Errorf("IdleTimeout = %v, want default 300s", core.Registry.IdleTimeout)
	}
	if len(core.RateLimit.Rules) != 0 {
		t.Errorf("Rules = %v, want none", core.RateLimit.Rules)
	}

	sc := f.StreamConfig()
	if sc.Addr != ":8080" || sc.PingInterval != stream.DefaultPingInterval {
		t.Errorf("stream config = %+v, want defaults", sc)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load on missing file should fail")
	}

	path := writeConfig(t, "listen: [broken")
	if _, err := Load(path); err == nil {
		t.Error("Load on malformed YAML should fail")
	}
}
