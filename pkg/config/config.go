// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/flowtrace/flowtrace/internal/model"
)

// Config holds all Flowtrace configuration.
type Config struct {
	Version int `yaml:"version"`

	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// PipelineConfig controls the stream pipeline.
type PipelineConfig struct {
	// BufferSize is the capacity of the channel between stages.
	BufferSize int `yaml:"buffer_size"`
}

// BootstrapConfig pins down conventions of the originating instrumentation
// layer.
type BootstrapConfig struct {
	// EpochNanos is the logical time at which the operator topology is
	// guaranteed fully declared. The stock timely instrumentation declares
	// all operators at logical nanosecond 1; an instrumentation layer that
	// numbers epochs differently overrides this. Merging treats zero as
	// unset, so a config file cannot override the value back to 0.
	EpochNanos int64 `yaml:"epoch_nanos"`
}

// BootstrapEpoch returns the bootstrap epoch as a model.Epoch.
func (b BootstrapConfig) BootstrapEpoch() model.Epoch {
	return model.Epoch(b.EpochNanos)
}

// TelemetryConfig for optional OTLP export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Pipeline: PipelineConfig{
			BufferSize: 4096,
		},
		Bootstrap: BootstrapConfig{
			EpochNanos: 1,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Start with defaults
	m.config = Default()

	// Load from paths in order (later overrides earlier)
	paths := m.getConfigPaths()
	for _, path := range paths {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, but report errors for existing files
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	// Override with environment variables
	m.loadEnv()

	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/flowtrace/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".flowtrace", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".flowtrace.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	// Merge non-zero values
	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	if src.Pipeline.BufferSize != 0 {
		m.config.Pipeline.BufferSize = src.Pipeline.BufferSize
	}
	if src.Bootstrap.EpochNanos != 0 {
		m.config.Bootstrap.EpochNanos = src.Bootstrap.EpochNanos
	}
	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("FLOWTRACE_BUFFER_SIZE"); v != "" {
		var size int
		if _, err := fmt.Sscanf(v, "%d", &size); err == nil && size > 0 {
			m.config.Pipeline.BufferSize = size
		}
	}

	if v := os.Getenv("FLOWTRACE_BOOTSTRAP_EPOCH"); v != "" {
		var nanos int64
		if _, err := fmt.Sscanf(v, "%d", &nanos); err == nil {
			m.config.Bootstrap.EpochNanos = nanos
		}
	}

	if v := os.Getenv("FLOWTRACE_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Enabled = true
		m.config.Telemetry.Endpoint = v
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".flowtrace")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager. A config file that exists
// but fails to parse is logged and skipped; the manager keeps serving the
// defaults merged with whatever loaded cleanly.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		if err := globalManager.Load(); err != nil {
			log.Printf("config: load failed, using defaults: %v", err)
		}
	})
	return globalManager
}
