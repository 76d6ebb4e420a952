package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
environment: test
backend:
  type: clickhouse
oracle:
  validity_period: 300
  max_price_deviation: 1
  min_required_sources: 2
  min_volume_threshold: 10000
  slippage_tolerance: 50
kafka:
  brokers: ["localhost:9092"]
  audit_topic: oracle.accepted
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return p
}

func TestLoad(t *testing.T) {
	c, err := Load(writeTemp(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Oracle.MinRequiredSources != 2 {
		t.Fatalf("min_required_sources = %d, want 2", c.Oracle.MinRequiredSources)
	}
	if c.Oracle.MinVolumeThreshold != 10000 {
		t.Fatalf("min_volume_threshold = %d, want 10000", c.Oracle.MinVolumeThreshold)
	}
}

func TestLoadRejectsBadBackend(t *testing.T) {
	bad := "environment: test\nbackend:\n  type: mysql\noracle:\n  validity_period: 300\n  min_required_sources: 2\n"
	if _, err := Load(writeTemp(t, bad)); err == nil {
		t.Fatalf("expected error for unsupported backend")
	}
}

func TestLoadRejectsZeroSources(t *testing.T) {
	bad := "environment: test\nbackend:\n  type: kafka\noracle:\n  validity_period: 300\n  min_required_sources: 0\n"
	if _, err := Load(writeTemp(t, bad)); err == nil {
		t.Fatalf("expected error for zero min_required_sources")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "b1:9092,b2:9092")

	c, err := LoadWithEnv(writeTemp(t, sampleYAML))
	if err != nil {
		t.Fatalf("load with env: %v", err)
	}
	if c.Backend.Type != "kafka" {
		t.Fatalf("backend = %s, want kafka", c.Backend.Type)
	}
	if len(c.Kafka.Brokers) != 2 {
		t.Fatalf("brokers = %v, want 2 entries", c.Kafka.Brokers)
	}
}
