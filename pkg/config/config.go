// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < --config file < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/logflow/rawgate/pkg/checkpoint"
	gerrors "github.com/logflow/rawgate/pkg/errors"
	"github.com/logflow/rawgate/pkg/model"
	"github.com/logflow/rawgate/pkg/pipeline"
	"github.com/logflow/rawgate/pkg/server"
	"github.com/logflow/rawgate/pkg/storage/s3"
	"github.com/logflow/rawgate/pkg/telemetry"
)

// Config holds all rawgate configuration.
type Config struct {
	Version int `yaml:"version"`

	Training   pipeline.Config `yaml:"training"`
	Prediction pipeline.Config `yaml:"prediction"`

	ArchiveMirror MirrorConfig         `yaml:"archive_mirror"`
	Lock          LockConfig           `yaml:"lock"`
	Checkpoint    CheckpointConfig     `yaml:"checkpoint"`
	Server        server.Config        `yaml:"server"`
	Schedule      ScheduleConfig       `yaml:"schedule"`
	Telemetry     telemetry.OTLPConfig `yaml:"telemetry"`
	Models        ModelsConfig         `yaml:"models"`
	Log           LogConfig            `yaml:"log"`
}

// MirrorConfig copies archived rejects and exports to S3.
type MirrorConfig struct {
	Enabled bool      `yaml:"enabled"`
	S3      s3.Config `yaml:"s3"`
}

// LockConfig selects the run lock. An empty RedisAddr uses a lock file
// under each staging root.
type LockConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	Key       string        `yaml:"key"`
	TTL       time.Duration `yaml:"ttl"`
}

// CheckpointConfig controls run history.
type CheckpointConfig struct {
	Dir string `yaml:"dir"`
	// Redis mirrors checkpoints when Address is set.
	Redis     checkpoint.RedisConfig `yaml:"redis"`
	Retention time.Duration          `yaml:"retention"`
}

// ScheduleConfig holds cron expressions for unattended runs.
type ScheduleConfig struct {
	Training   string `yaml:"training"`
	Prediction string `yaml:"prediction"`
}

// ModelsConfig controls where models and predictions live.
type ModelsConfig struct {
	Dir       string `yaml:"dir"`
	OutputDir string `yaml:"output_dir"`
	Label     string `yaml:"label"`
}

// LogConfig controls operator logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	rawgateDir := filepath.Join(homeDir, ".rawgate")

	redis := checkpoint.DefaultRedisConfig("")
	return &Config{
		Version:    1,
		Training:   pipeline.DefaultConfig(pipeline.Training),
		Prediction: pipeline.DefaultConfig(pipeline.Prediction),
		ArchiveMirror: MirrorConfig{
			S3: s3.DefaultConfig("", "us-east-1"),
		},
		Lock: LockConfig{
			Key: "rawgate:lock",
			TTL: time.Hour,
		},
		Checkpoint: CheckpointConfig{
			Dir:       filepath.Join(rawgateDir, "runs"),
			Redis:     redis,
			Retention: 30 * 24 * time.Hour,
		},
		Server:    server.DefaultConfig(),
		Telemetry: telemetry.DefaultOTLPConfig("rawgate"),
		Models: ModelsConfig{
			Dir:       "models",
			OutputDir: "Prediction_Output_File",
			Label:     model.DefaultLabel,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	search []string // overrides the default search paths
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager. With no search paths
// the system, user and project locations are used.
func NewManager(search ...string) *Manager {
	return &Manager{
		config: Default(),
		search: search,
	}
}

// Load loads configuration from all sources in priority order. An explicit
// file, when given, must exist and is applied after the search paths.
func (m *Manager) Load(explicit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	if explicit != "" {
		if err := m.loadFile(explicit); err != nil {
			if os.IsNotExist(err) {
				return gerrors.FileNotFound(explicit)
			}
			return err
		}
		m.paths = append(m.paths, explicit)
	}

	m.loadEnv()
	m.finish()
	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	if len(m.search) > 0 {
		return m.search
	}

	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/rawgate/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".rawgate", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".rawgate.yaml"))
	}

	return paths
}

// loadFile decodes a config file over the current config. Keys absent from
// the file keep their current values.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, m.config); err != nil {
		return gerrors.Wrap(err, gerrors.CodeConfig, "decode config").WithContext("path", path)
	}
	return nil
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	c := m.config

	if v := os.Getenv("RAWGATE_TRAINING_BATCH_DIR"); v != "" {
		c.Training.BatchDir = v
	}
	if v := os.Getenv("RAWGATE_PREDICTION_BATCH_DIR"); v != "" {
		c.Prediction.BatchDir = v
	}

	// RAWGATE_DB_DIALECT applies to both variants
	if v := os.Getenv("RAWGATE_DB_DIALECT"); v != "" {
		c.Training.Store.Dialect = v
		c.Prediction.Store.Dialect = v
	}

	// RAWGATE_REDIS_ADDR enables the Redis lock and checkpoint mirror
	if v := os.Getenv("RAWGATE_REDIS_ADDR"); v != "" {
		c.Lock.RedisAddr = v
		c.Checkpoint.Redis.Address = v
	}

	if v := os.Getenv("RAWGATE_S3_BUCKET"); v != "" {
		c.ArchiveMirror.Enabled = true
		c.ArchiveMirror.S3.Bucket = v
	}

	if v := os.Getenv("RAWGATE_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = v
	}

	if v := os.Getenv("RAWGATE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	if v := os.Getenv("RAWGATE_ADDR"); v != "" {
		c.Server.Addr = v
	} else if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Addr = fmt.Sprintf(":%d", port)
		}
	}
}

// finish restores what files cannot set.
func (m *Manager) finish() {
	m.config.Training.Variant = pipeline.Training
	m.config.Prediction.Variant = pipeline.Prediction
	if m.config.Training.Streams.Main == "" {
		m.config.Training.Streams = pipeline.DefaultConfig(pipeline.Training).Streams
	}
	if m.config.Prediction.Streams.Main == "" {
		m.config.Prediction.Streams = pipeline.DefaultConfig(pipeline.Prediction).Streams
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

// Variant returns the pipeline config for v.
func (c *Config) Variant(v pipeline.Variant) pipeline.Config {
	if v == pipeline.Prediction {
		return c.Prediction
	}
	return c.Training
}

// Save writes the current config to path.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
