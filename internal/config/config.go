// Package config loads and serves the service's own configuration — listen
// address, storage path, timeouts, secrets — distinct from the per-tenant
// VpnProfile/Credential/Sensor rows the Persistence Gateway owns. Grounded
// on the teacher's internal/config.Config: a YAML file loaded once at
// startup into a mutex-guarded struct with typed getters/setters.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	mu       sync.RWMutex
	filePath string

	Listen    ListenConfig    `yaml:"listen"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Auth      AuthConfig      `yaml:"auth"`
}

type ListenConfig struct {
	Address string `yaml:"address"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	TempDir    string `yaml:"temp_dir"`
}

type SchedulerConfig struct {
	DefaultAlertCooldownMinutes int           `yaml:"default_alert_cooldown_minutes"`
	RouterOSTimeout             time.Duration `yaml:"routeros_timeout"`
	TCPProbeTimeout             time.Duration `yaml:"tcp_probe_timeout"`
}

type AuthConfig struct {
	// BearerSecret signs/verifies the bearer tokens consumed by the
	// (externally supplied) JWT layer. Stored here, never parsed by this
	// package — token verification lives outside the core.
	BearerSecret string `yaml:"bearer_secret"`
}

// Load reads and parses the YAML config at path, applying defaults for any
// field left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := &Config{filePath: path}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.setDefaults()
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Listen.Address == "" {
		c.Listen.Address = ":8443"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "sentinel.db"
	}
	if c.Storage.TempDir == "" {
		c.Storage.TempDir = os.TempDir()
	}
	if c.Scheduler.DefaultAlertCooldownMinutes == 0 {
		c.Scheduler.DefaultAlertCooldownMinutes = 15
	}
	if c.Scheduler.RouterOSTimeout == 0 {
		c.Scheduler.RouterOSTimeout = 10 * time.Second
	}
	if c.Scheduler.TCPProbeTimeout == 0 {
		c.Scheduler.TCPProbeTimeout = 1500 * time.Millisecond
	}
}

// Save writes the config back to its source file, mode 0600 since it may
// carry BearerSecret.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshalling: %w", err)
	}
	if err := os.WriteFile(c.filePath, data, 0600); err != nil {
		return fmt.Errorf("config: writing %s: %w", c.filePath, err)
	}
	return nil
}

func (c *Config) GetListen() ListenConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Listen
}

func (c *Config) GetStorage() StorageConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Storage
}

func (c *Config) GetScheduler() SchedulerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Scheduler
}

func (c *Config) GetBearerSecret() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Auth.BearerSecret
}

func (c *Config) SetBearerSecret(secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Auth.BearerSecret = secret
}

// EnsureDirectories creates the storage temp dir if missing.
func (c *Config) EnsureDirectories() error {
	dir := c.GetStorage().TempDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config: creating %s: %w", filepath.Clean(dir), err)
	}
	return nil
}
