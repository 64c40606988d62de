package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/mmcdole/shelf/internal/domain"
	"github.com/spf13/viper"
)

// DefaultFolderName is the catalog folder created when none is configured
const DefaultFolderName = "Shelf"

// Config holds all application configuration
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StorageConfig holds backend selection and batching settings
type StorageConfig struct {
	Type       domain.StorageType `mapstructure:"type"`        // "local" or "remote"
	FolderName string             `mapstructure:"folder_name"` // Catalog folder name (remote) / display name (local)
	LocalDir   string             `mapstructure:"local_dir"`   // Last granted local directory
	BatchSize  int                `mapstructure:"batch_size"`  // Items processed concurrently per batch
}

// RemoteConfig holds remote folder configuration
type RemoteConfig struct {
	BaseURL             string `mapstructure:"base_url"`
	UploadURL           string `mapstructure:"upload_url"`
	ClientID            string `mapstructure:"client_id"` // OAuth client used by the sign-in flow
	ClientSecret        string `mapstructure:"client_secret"`
	Token               string `mapstructure:"token"` // Externally obtained bearer token
	FolderID            string `mapstructure:"folder_id"`
	DownloadConcurrency int    `mapstructure:"download_concurrency"`
}

// CacheConfig holds remote item cache configuration
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Type:       domain.StorageTypeLocal,
			FolderName: DefaultFolderName,
			BatchSize:  10,
		},
		Remote: RemoteConfig{
			BaseURL:             "https://www.googleapis.com/drive/v3",
			UploadURL:           "https://www.googleapis.com/upload/drive/v3",
			DownloadConcurrency: 10,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     defaultCachePath(),
		},
		Logging: LoggingConfig{
			File:       defaultLogPath(),
			Level:      "INFO",
			MaxSizeMB:  16,
			MaxBackups: 3,
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "shelf", "shelf.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "shelf", "shelf.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "shelf")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "shelf")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "shelf", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "shelf", "cache")
	}
}

// envKeys are bound explicitly so Unmarshal sees env values without a config file
var envKeys = []string{
	"storage.type", "storage.folder_name", "storage.local_dir", "storage.batch_size",
	"remote.base_url", "remote.upload_url", "remote.client_id", "remote.client_secret", "remote.token",
	"remote.folder_id", "remote.download_concurrency",
	"cache.enabled", "cache.dir",
	"logging.file", "logging.level",
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	return load(viper.GetViper(), defaultConfigPath(), ".")
}

func load(v *viper.Viper, paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// Environment variable overrides (SHELF_STORAGE_TYPE, SHELF_REMOTE_TOKEN, ...)
	v.SetEnvPrefix("SHELF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.Storage.BatchSize <= 0 {
		cfg.Storage.BatchSize = 10
	}
	if cfg.Storage.FolderName == "" {
		cfg.Storage.FolderName = DefaultFolderName
	}
	return cfg, nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	v := viper.GetViper()

	v.Set("storage.type", string(cfg.Storage.Type))
	v.Set("storage.folder_name", cfg.Storage.FolderName)
	v.Set("storage.local_dir", cfg.Storage.LocalDir)
	v.Set("storage.batch_size", cfg.Storage.BatchSize)

	v.Set("remote.base_url", cfg.Remote.BaseURL)
	v.Set("remote.upload_url", cfg.Remote.UploadURL)
	v.Set("remote.client_id", cfg.Remote.ClientID)
	v.Set("remote.token", cfg.Remote.Token)
	v.Set("remote.folder_id", cfg.Remote.FolderID)
	v.Set("remote.download_concurrency", cfg.Remote.DownloadConcurrency)

	v.Set("cache.enabled", cfg.Cache.Enabled)
	v.Set("cache.dir", cfg.Cache.Dir)

	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.Set("logging.max_backups", cfg.Logging.MaxBackups)

	return writeConfig(v, defaultConfigPath())
}

func writeConfig(v *viper.Viper, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(dir, "config.yaml")
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Preferences persists adapter connection details into the config file.
// Implements domain.Preferences.
type Preferences struct {
	mu  sync.Mutex
	v   *viper.Viper
	dir string
}

// NewPreferences returns preferences backed by the global viper instance
func NewPreferences() *Preferences {
	return &Preferences{v: viper.GetViper(), dir: defaultConfigPath()}
}

// newPreferencesAt is used by tests to keep writes inside a temp directory
func newPreferencesAt(v *viper.Viper, dir string) *Preferences {
	return &Preferences{v: v, dir: dir}
}

func (p *Preferences) GetString(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.v.GetString(key)
}

func (p *Preferences) Set(key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.v.Set(key, value)
	return writeConfig(p.v, p.dir)
}

// ClearConnection removes persisted connection state while keeping other settings
func (p *Preferences) ClearConnection() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.v.Set(domain.PrefLocalDir, "")
	p.v.Set(domain.PrefRemoteToken, "")
	p.v.Set(domain.PrefRemoteFolderID, "")
	return writeConfig(p.v, p.dir)
}

// IsRemoteConfigured returns true if a remote sign-in is possible or already done
func (c *Config) IsRemoteConfigured() bool {
	return c.Remote.ClientID != "" || c.Remote.Token != ""
}

// ClearCache removes all cached data
func ClearCache(dir string) error {
	if dir == "" {
		dir = defaultCachePath()
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
