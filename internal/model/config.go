package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Poller profiles select which notification types are surfaced.
const (
	ProfileMobile = "mobile"
	ProfileAdmin  = "admin"
)

// Default poll cadences: the mobile client checks in the background,
// the admin dashboard uses a fast path.
const (
	DefaultMobileInterval = 30 * time.Second
	DefaultAdminInterval  = 5 * time.Second
)

// ServerConfig describes how to reach the platform backend.
type ServerConfig struct {
	// BaseURL is the API root, e.g. http://localhost:3001/api.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// RequestTimeout bounds a single HTTP round-trip.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// MaxRetries is how many times a 429 response is retried.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// PollerConfig controls the notification poller.
type PollerConfig struct {
	Interval         time.Duration `mapstructure:"interval" yaml:"interval"`
	Profile          string        `mapstructure:"profile" yaml:"profile"`
	DedupCapacity    int           `mapstructure:"dedup_capacity" yaml:"dedup_capacity"`
	MaxToastsPerPoll int           `mapstructure:"max_toasts_per_poll" yaml:"max_toasts_per_poll"`
}

// RealtimeConfig controls the data-stream watcher.
type RealtimeConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Streams  []string      `mapstructure:"streams" yaml:"streams"`
}

// PresenterConfig holds toast and sound preferences.
type PresenterConfig struct {
	ToastDuration time.Duration `mapstructure:"toast_duration" yaml:"toast_duration"`
	SoundEnabled  bool          `mapstructure:"sound_enabled" yaml:"sound_enabled"`
	SoundVolume   float64       `mapstructure:"sound_volume" yaml:"sound_volume"`
	SoundDir      string        `mapstructure:"sound_dir" yaml:"sound_dir"`
	Player        string        `mapstructure:"player" yaml:"player"`
}

// StoreConfig locates the local notification cache.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// CredentialConfig configures the keyring that holds the session token.
type CredentialConfig struct {
	Service string `mapstructure:"service" yaml:"service"`
	FileDir string `mapstructure:"file_dir" yaml:"file_dir"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Poller     PollerConfig     `mapstructure:"poller" yaml:"poller"`
	Realtime   RealtimeConfig   `mapstructure:"realtime" yaml:"realtime"`
	Presenter  PresenterConfig  `mapstructure:"presenter" yaml:"presenter"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Credential CredentialConfig `mapstructure:"credential" yaml:"credential"`
}

// EnvPrefix is prepended to environment variable overrides, e.g.
// NOTIFYDESK_SERVER_BASE_URL.
const EnvPrefix = "notifydesk"

// configDir returns ~/.config/notifydesk, or "." when the home
// directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "notifydesk")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/notifydesk/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dir := configDir()
	return &AppConfig{
		Server: ServerConfig{
			BaseURL:        "http://localhost:3001/api",
			RequestTimeout: 15 * time.Second,
			MaxRetries:     3,
		},
		Poller: PollerConfig{
			Interval:      DefaultMobileInterval,
			Profile:       ProfileMobile,
			DedupCapacity: 100,
		},
		Realtime: RealtimeConfig{
			Interval: 10 * time.Second,
			Streams:  []string{"categories", "products", "orders", "sliders"},
		},
		Presenter: PresenterConfig{
			ToastDuration: 5 * time.Second,
			SoundEnabled:  true,
			SoundVolume:   0.5,
		},
		Store: StoreConfig{
			Path: filepath.Join(dir, "cache.db"),
		},
		Credential: CredentialConfig{
			Service: "notifydesk",
			FileDir: filepath.Join(dir, "credentials"),
		},
	}
}

// setDefaults mirrors defaultAppConfig into v so that missing keys
// resolve to sensible values.
func setDefaults(v *viper.Viper, cfg *AppConfig) {
	v.SetDefault("server.base_url", cfg.Server.BaseURL)
	v.SetDefault("server.request_timeout", cfg.Server.RequestTimeout)
	v.SetDefault("server.max_retries", cfg.Server.MaxRetries)

	v.SetDefault("poller.interval", cfg.Poller.Interval)
	v.SetDefault("poller.profile", cfg.Poller.Profile)
	v.SetDefault("poller.dedup_capacity", cfg.Poller.DedupCapacity)
	v.SetDefault("poller.max_toasts_per_poll", 0)

	v.SetDefault("realtime.interval", cfg.Realtime.Interval)
	v.SetDefault("realtime.streams", cfg.Realtime.Streams)

	v.SetDefault("presenter.toast_duration", cfg.Presenter.ToastDuration)
	v.SetDefault("presenter.sound_enabled", cfg.Presenter.SoundEnabled)
	v.SetDefault("presenter.sound_volume", cfg.Presenter.SoundVolume)
	v.SetDefault("presenter.sound_dir", "")
	v.SetDefault("presenter.player", "")

	v.SetDefault("store.path", cfg.Store.Path)

	v.SetDefault("credential.service", cfg.Credential.Service)
	v.SetDefault("credential.file_dir", cfg.Credential.FileDir)
}

// LoadConfig reads configuration from the given YAML file path using
// Viper, with NOTIFYDESK_* environment overrides. If the file does not
// exist, defaults plus environment are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, defaultAppConfig())

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if _, ok := err.(*os.PathError); !ok && !notFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// The admin profile polls on the dashboard's fast path unless an
	// interval was configured explicitly.
	if cfg.Poller.Profile == ProfileAdmin && !v.InConfig("poller.interval") &&
		os.Getenv("NOTIFYDESK_POLLER_INTERVAL") == "" {
		cfg.Poller.Interval = DefaultAdminInterval
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the client cannot run with.
func (c *AppConfig) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be positive")
	}
	if c.Poller.DedupCapacity <= 0 {
		return fmt.Errorf("poller.dedup_capacity must be positive")
	}
	switch c.Poller.Profile {
	case ProfileMobile, ProfileAdmin:
	default:
		return fmt.Errorf("poller.profile must be %q or %q, got %q",
			ProfileMobile, ProfileAdmin, c.Poller.Profile)
	}
	if c.Presenter.SoundVolume < 0 || c.Presenter.SoundVolume > 1 {
		return fmt.Errorf("presenter.sound_volume must be within [0,1]")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("poller", cfg.Poller)
	v.Set("realtime", cfg.Realtime)
	v.Set("presenter", cfg.Presenter)
	v.Set("store", cfg.Store)
	v.Set("credential", cfg.Credential)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
