package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"gomarks/internal/utils"
)

var configOnce sync.Once

var globalConfig *Config

var customConfigPath string // set via --config

//go:embed config.sample.yaml
var sampleConfig []byte

const (
	CONFIG_DIR_PATH  = "gomarks"
	CONFIG_FILE_PATH = "config.yaml"
	CONFIG_DIR_PERM  = 0755
	CONFIG_FILE_PERM = 0600
)

// EnvOwnerID overrides owner_id when set
const EnvOwnerID = "GOMARKS_OWNER_ID"

// Config is the application configuration
type Config struct {
	OwnerID  string         `yaml:"owner_id" validate:"required"`
	Remote   RemoteConfig   `yaml:"remote"`
	Database DatabaseConfig `yaml:"database"`
	Sync     SyncConfig     `yaml:"sync"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
}

// RemoteConfig locates the authority
type RemoteConfig struct {
	BaseURL           string  `yaml:"base_url" validate:"omitempty,url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	TimeoutMs         int     `yaml:"timeout_ms" validate:"gte=0"`
}

// Timeout returns the per-request timeout
func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// DatabaseConfig locates the local store
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig tunes sync cycles
type SyncConfig struct {
	Enabled            bool `yaml:"enabled"`
	AutoSync           bool `yaml:"auto_sync"`
	ChunkSize          int  `yaml:"chunk_size" validate:"gte=1,lte=10000"`
	MaxRetries         int  `yaml:"max_retries" validate:"gte=1,lte=20"`
	BaseRetryDelayMs   int  `yaml:"base_retry_delay_ms" validate:"gte=1"`
	AutoSyncIntervalMs int  `yaml:"auto_sync_interval_ms" validate:"gte=1000"`
}

// BaseRetryDelay returns the first backoff step
func (s SyncConfig) BaseRetryDelay() time.Duration {
	return time.Duration(s.BaseRetryDelayMs) * time.Millisecond
}

// AutoSyncInterval returns the period between automatic cycles
func (s SyncConfig) AutoSyncInterval() time.Duration {
	return time.Duration(s.AutoSyncIntervalMs) * time.Millisecond
}

// LogConfig controls client logging
type LogConfig struct {
	Verbose        bool   `yaml:"verbose"`
	BackgroundFile string `yaml:"background_file"`
}

// ServerConfig configures 'gomarks serve'
type ServerConfig struct {
	Addr      string `yaml:"addr" validate:"required"`
	DataDir   string `yaml:"data_dir"`
	Token     string `yaml:"token"`
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=json pretty"`
	LogLevel  string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// Defaults returns a config with every tunable at its default value
func Defaults() Config {
	return Config{
		Remote: RemoteConfig{RequestsPerSecond: 5, TimeoutMs: 30000},
		Sync: SyncConfig{
			ChunkSize:          100,
			MaxRetries:         3,
			BaseRetryDelayMs:   1000,
			AutoSyncIntervalMs: 30000,
		},
		Server: ServerConfig{Addr: ":8420", LogFormat: "pretty", LogLevel: "info"},
	}
}

// Validate checks field constraints and cross-field rules
func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return utils.ErrInvalidConfig(yamlPath(fe.Namespace()), fmt.Sprintf("failed '%s' rule", fe.Tag()))
		}
		return err
	}
	if c.Sync.Enabled && c.Remote.BaseURL == "" {
		return utils.ErrInvalidConfig("remote.base_url", "required when sync.enabled is true")
	}
	return nil
}

// yamlPath turns "Config.Sync.ChunkSize" into "sync.chunk_size"
func yamlPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		var b strings.Builder
		for j, r := range p {
			if r >= 'A' && r <= 'Z' {
				if j > 0 && !(p[j-1] >= 'A' && p[j-1] <= 'Z') {
					b.WriteByte('_')
				}
				r += 'a' - 'A'
			}
			b.WriteRune(r)
		}
		parts[i] = b.String()
	}
	return strings.Join(parts, ".")
}

// DatabasePath returns the expanded database path; empty means the store default
func (c *Config) DatabasePath() (string, error) {
	return utils.ExpandPath(c.Database.Path)
}

// ServerDataDir returns the expanded authority data directory; empty means in memory
func (c *Config) ServerDataDir() (string, error) {
	return utils.ExpandPath(c.Server.DataDir)
}

// Parse decodes YAML on top of the defaults, applies environment overrides and validates
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if owner := strings.TrimSpace(os.Getenv(EnvOwnerID)); owner != "" {
		cfg.OwnerID = owner
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses the config file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// SetCustomConfigPath sets the config location to use instead of the user config directory.
// A directory means config.yaml inside it; "" or "." means ./gomarks/config.yaml.
// Must be called before the first GetConfig.
func SetCustomConfigPath(path string) {
	if path == "" || path == "." {
		customConfigPath = filepath.Join(".", CONFIG_DIR_PATH, CONFIG_FILE_PATH)
		return
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		customConfigPath = filepath.Join(path, CONFIG_FILE_PATH)
		return
	}
	customConfigPath = path
}

// GetConfig loads the configuration once, offering to create it from the sample if missing
func GetConfig() *Config {
	configOnce.Do(func() {
		cfg, err := loadUserOrSampleConfig()
		if err != nil {
			log.Fatal(err)
		}
		globalConfig = cfg
	})
	return globalConfig
}

func loadUserOrSampleConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	cfg, err := Load(configPath)
	if !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}

	fmt.Println("No config exists at", configPath)
	data := SampleWithOwner(uuid.NewString())
	if utils.PromptYesNo("Do you want to copy the config sample to " + configPath + "?") {
		if err := WriteConfigFile(configPath, data); err != nil {
			return nil, err
		}
	}
	return Parse(data)
}

// GetConfigPath returns the config file location
func GetConfigPath() (string, error) {
	if customConfigPath != "" {
		return customConfigPath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(dir, CONFIG_DIR_PATH, CONFIG_FILE_PATH), nil
}

// SampleWithOwner returns the embedded sample with owner_id filled in
func SampleWithOwner(owner string) []byte {
	return bytes.Replace(sampleConfig, []byte(`owner_id: ""`), []byte(fmt.Sprintf("owner_id: %q", owner)), 1)
}

// WriteConfigFile writes data to configPath, creating its directory
func WriteConfigFile(configPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(configPath), CONFIG_DIR_PERM); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	return os.WriteFile(configPath, data, CONFIG_FILE_PERM)
}
