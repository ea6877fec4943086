package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyDefaults_Client(t *testing.T) {
	t.Parallel()

	cfg := Config{Client: &ClientConfig{Name: "c1", RPCPort: 50052}}
	ApplyDefaults(&cfg)

	if cfg.Client.MaintenancePort != 50052 {
		t.Fatalf("maintenance_port=%d, want rpc_port", cfg.Client.MaintenancePort)
	}
	if cfg.Client.WaitTimeoutSec != DefaultWaitTimeoutSec {
		t.Fatalf("wait_timeout_sec=%d", cfg.Client.WaitTimeoutSec)
	}
	if cfg.Client.RPCDeadlineSec != DefaultRPCDeadlineSec {
		t.Fatalf("rpc_deadline_sec=%d", cfg.Client.RPCDeadlineSec)
	}
}

func TestApplyDefaults_KeepsSeparateMaintenancePort(t *testing.T) {
	t.Parallel()

	cfg := Config{Client: &ClientConfig{Name: "c1", RPCPort: 50052, MaintenancePort: 50053}}
	ApplyDefaults(&cfg)
	if cfg.Client.MaintenancePort != 50053 {
		t.Fatalf("maintenance_port=%d", cfg.Client.MaintenancePort)
	}
}

func TestValidate_RequiresClientFields(t *testing.T) {
	t.Parallel()

	cfg := Config{Client: &ClientConfig{Name: "c1"}}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error")
	}

	cfg.Client.Addr = "10.0.0.5"
	cfg.Client.RPCPort = 50052
	cfg.Client.ServerTarget = "xds:///server:8080"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestLoadSave_RoundTrip(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "probe.yaml")
	cfg := Config{Client: &ClientConfig{
		Name:         "c1",
		Addr:         "10.0.0.5",
		RPCPort:      50052,
		ServerTarget: "xds:///server:8080",
	}}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode=%o", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Client == nil || loaded.Client.Addr != "10.0.0.5" {
		t.Fatalf("loaded=%+v", loaded.Client)
	}
	if loaded.Client.WaitTimeoutSec != DefaultWaitTimeoutSec {
		t.Fatalf("defaults not applied on load: %+v", loaded.Client)
	}
}
