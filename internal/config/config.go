package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultWaitTimeoutSec = 300
	DefaultRPCDeadlineSec = 30
)

// Config holds the settings for one probing run.
type Config struct {
	Client *ClientConfig `yaml:"client,omitempty"`
}

// ClientConfig identifies the remote test client to observe.
type ClientConfig struct {
	Name            string `yaml:"name"`
	Addr            string `yaml:"addr"`
	RPCPort         int    `yaml:"rpc_port"`
	MaintenancePort int    `yaml:"maintenance_port,omitempty"`
	ServerTarget    string `yaml:"server_target"`
	ControlPlaneURI string `yaml:"control_plane_uri,omitempty"`
	WaitTimeoutSec  int    `yaml:"wait_timeout_sec"`
	RPCDeadlineSec  int    `yaml:"rpc_deadline_sec"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.Client == nil {
		return fmt.Errorf("config must contain a client section")
	}
	if cfg.Client.Name == "" {
		return fmt.Errorf("client.name is required")
	}
	if cfg.Client.Addr == "" {
		return fmt.Errorf("client.addr is required")
	}
	if cfg.Client.RPCPort == 0 {
		return fmt.Errorf("client.rpc_port is required")
	}
	if cfg.Client.ServerTarget == "" {
		return fmt.Errorf("client.server_target is required")
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Client == nil {
		return
	}
	if cfg.Client.MaintenancePort == 0 {
		cfg.Client.MaintenancePort = cfg.Client.RPCPort
	}
	if cfg.Client.WaitTimeoutSec == 0 {
		cfg.Client.WaitTimeoutSec = DefaultWaitTimeoutSec
	}
	if cfg.Client.RPCDeadlineSec == 0 {
		cfg.Client.RPCDeadlineSec = DefaultRPCDeadlineSec
	}
}
