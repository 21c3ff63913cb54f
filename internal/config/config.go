// Package config loads client settings from defaults, an optional config
// file in the data directory and TADA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	appDir     = ".tada"
	configName = "config"
	envPrefix  = "TADA"

	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds everything the client needs to talk to the backend and keep
// local state.
type Config struct {
	APIURL        string        `mapstructure:"api_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
	DataDir       string        `mapstructure:"data_dir"`
	Theme         string        `mapstructure:"theme"`
	// Token overrides the persisted session when set (TADA_TOKEN).
	Token   string  `mapstructure:"token"`
	Storage Storage `mapstructure:"storage"`
	Log     Log     `mapstructure:"log"`
}

type Storage struct {
	Backend string `mapstructure:"backend"`
}

type Log struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	Verbose    bool   `mapstructure:"verbose"`
}

// DefaultDataDir returns ~/.tada.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, appDir), nil
}

// New returns a viper instance with defaults and env bindings applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("timeout", 15*time.Second)
	v.SetDefault("upload_timeout", 30*time.Second)
	v.SetDefault("data_dir", "")
	v.SetDefault("theme", "classic")
	v.SetDefault("token", "")
	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 5)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.verbose", false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (explicit path, or config.* in the data dir) and
// returns the resolved settings. A missing config file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir := v.GetString("data_dir")
		if dir == "" {
			d, err := DefaultDataDir()
			if err != nil {
				return nil, err
			}
			dir = d
		}
		v.SetConfigName(configName)
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolve() error {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	if c.DataDir == "" {
		d, err := DefaultDataDir()
		if err != nil {
			return err
		}
		c.DataDir = d
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join(c.DataDir, "tada.log")
	}
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite:
	case "":
		c.Storage.Backend = BackendFile
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = 30 * time.Second
	}
	return nil
}

// SQLitePath is where the sqlite backend keeps its database.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "tada.db")
}
