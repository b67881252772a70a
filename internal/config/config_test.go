package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
node:
  bind: "0.0.0.0:5000"
ring:
  replication_factor: 3
job:
  items_per_chunk: 32
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Node.Bind != "0.0.0.0:5000" {
		t.Errorf("Node.Bind = %q, expected override", cfg.Node.Bind)
	}
	if cfg.Ring.ReplicationFactor != 3 {
		t.Errorf("Ring.ReplicationFactor = %d, expected 3", cfg.Ring.ReplicationFactor)
	}
	if cfg.Job.ItemsPerChunk != 32 {
		t.Errorf("Job.ItemsPerChunk = %d, expected 32", cfg.Job.ItemsPerChunk)
	}
	// Untouched fields should keep their Default() values.
	if cfg.Ring.IDBits != 160 {
		t.Errorf("Ring.IDBits = %d, expected default 160", cfg.Ring.IDBits)
	}
	if time.Duration(cfg.Job.MaxTaskTimeout) != 300*time.Second {
		t.Errorf("Job.MaxTaskTimeout = %v, expected default 300s", cfg.Job.MaxTaskTimeout)
	}
}

func TestValidateConfigRejectsBadReplicationVsSuccessorList(t *testing.T) {
	cfg := Default()
	cfg.Ring.SuccessorListSize = 2
	cfg.Ring.ReplicationFactor = 5
	if err := cfg.ValidateConfig(); err == nil {
		t.Error("expected error when successor_list_size < replication_factor")
	}
}

func TestValidateConfigRequiresHostedZoneForRoute53(t *testing.T) {
	cfg := Default()
	cfg.Bootstrap.Mode = "route53"
	if err := cfg.ValidateConfig(); err == nil {
		t.Error("expected error when route53 mode has no hosted_zone_id")
	}
	cfg.Bootstrap.Route53.HostedZoneID = "Z123"
	if err := cfg.ValidateConfig(); err != nil {
		t.Errorf("ValidateConfig failed after setting hosted_zone_id: %v", err)
	}
}

func TestValidateConfigRejectsUnknownBootstrapMode(t *testing.T) {
	cfg := Default()
	cfg.Bootstrap.Mode = "dns-sd"
	if err := cfg.ValidateConfig(); err == nil {
		t.Error("expected error for unknown bootstrap mode")
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	if err := Default().ValidateConfig(); err != nil {
		t.Errorf("Default() should validate cleanly: %v", err)
	}
}
