// Package config provides configuration management for meetavatar
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. MEETAVATAR_SERVER_ADDR.
const EnvPrefix = "MEETAVATAR"

// Config holds all application configuration
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Avatar AvatarConfig `mapstructure:"avatar"`
	DialIn DialInConfig `mapstructure:"dialin"`
	Log    LogConfig    `mapstructure:"log"`
	Locale string       `mapstructure:"locale"`
}

// ServerConfig configures the HTTP and WebSocket transport
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	FrameRate      int           `mapstructure:"frame_rate"` // frames per second pushed to sessions
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AvatarConfig configures identity and animation
type AvatarConfig struct {
	Palette         []string `mapstructure:"palette"` // empty = built-in palette
	Threshold       float64  `mapstructure:"threshold"`
	StopOnSilence   bool     `mapstructure:"stop_on_silence"`
	CORSURLs        []string `mapstructure:"cors_urls"`
	DefaultImage    string   `mapstructure:"default_image"`
	SmoothingFrames int      `mapstructure:"smoothing_frames"`
	BitDepth        int      `mapstructure:"bit_depth"`
}

// DialInConfig configures the dial-in lookups
type DialInConfig struct {
	ConfCodeURL string        `mapstructure:"conf_code_url"`
	NumbersURL  string        `mapstructure:"numbers_url"`
	MUCHost     string        `mapstructure:"muc_host"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LogConfig configures logging
type LogConfig struct {
	Dir        string `mapstructure:"dir"` // empty = no log file
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	MaxHistory int    `mapstructure:"max_history"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8090",
			FrameRate:      30,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			RequestTimeout: 15 * time.Second,
		},
		Avatar: AvatarConfig{
			Threshold:       0.015,
			DefaultImage:    "images/avatar.png",
			SmoothingFrames: 3,
			BitDepth:        16,
		},
		DialIn: DialInConfig{
			Timeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Console:    true,
			MaxHistory: 1000,
		},
		Locale: "en",
	}
}

// Loader reads configuration from a file and the environment and can watch
// the file for changes.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader. An empty path searches ./config.yaml and
// ~/.meetavatar/config.yaml.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Load reads the configuration. A missing file is not an error when no
// explicit path was given.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.decode()
}

// File returns the config file in use, if any.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with the reloaded configuration whenever the config
// file changes. Decode failures are passed to onError and the previous
// configuration stays in effect.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads configuration from path (or the default search paths) and the
// environment.
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if c.Server.FrameRate <= 0 {
		return fmt.Errorf("server.frame_rate must be positive, got %d", c.Server.FrameRate)
	}
	if c.Avatar.Threshold < 0 || c.Avatar.Threshold > 1 {
		return fmt.Errorf("avatar.threshold must be within [0,1], got %v", c.Avatar.Threshold)
	}
	switch c.Avatar.BitDepth {
	case 8, 16, 32:
	default:
		return fmt.Errorf("avatar.bit_depth must be 8, 16 or 32, got %d", c.Avatar.BitDepth)
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.frame_rate", cfg.Server.FrameRate)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.request_timeout", cfg.Server.RequestTimeout)
	v.SetDefault("avatar.palette", cfg.Avatar.Palette)
	v.SetDefault("avatar.threshold", cfg.Avatar.Threshold)
	v.SetDefault("avatar.stop_on_silence", cfg.Avatar.StopOnSilence)
	v.SetDefault("avatar.cors_urls", cfg.Avatar.CORSURLs)
	v.SetDefault("avatar.default_image", cfg.Avatar.DefaultImage)
	v.SetDefault("avatar.smoothing_frames", cfg.Avatar.SmoothingFrames)
	v.SetDefault("avatar.bit_depth", cfg.Avatar.BitDepth)
	v.SetDefault("dialin.conf_code_url", cfg.DialIn.ConfCodeURL)
	v.SetDefault("dialin.numbers_url", cfg.DialIn.NumbersURL)
	v.SetDefault("dialin.muc_host", cfg.DialIn.MUCHost)
	v.SetDefault("dialin.timeout", cfg.DialIn.Timeout)
	v.SetDefault("log.dir", cfg.Log.Dir)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.console", cfg.Log.Console)
	v.SetDefault("log.max_history", cfg.Log.MaxHistory)
	v.SetDefault("locale", cfg.Locale)
}

// Dir returns the per-user configuration directory
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".meetavatar"), nil
}
