// Package config loads the service configuration from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const DefaultPath = "config.yaml"

// Config is the whole service configuration.
type Config struct {
	HTTP struct {
		Host           string        `yaml:"host"`
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Model struct {
		Type      string `yaml:"type"`
		Path      string `yaml:"path"`
		CacheSize int    `yaml:"cache_size"`
		Watch     bool   `yaml:"watch"`
	} `yaml:"model"`
	Log Log `yaml:"log"`
}

type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the built-in settings used for anything the file leaves out.
func Default() *Config {
	var c Config
	c.HTTP.Host = "0.0.0.0"
	c.HTTP.Port = 7860
	c.HTTP.Timeout = 30 * time.Second
	c.HTTP.AllowedOrigins = []string{"*"}
	c.HTTP.MaxBodyBytes = 1 << 20
	c.Model.Type = "sklearn"
	c.Model.Path = filepath.Join("modelo", "prob_compra_1.pkl")
	c.Model.CacheSize = 1024
	c.Log.Level = "info"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 5
	c.Log.MaxAgeDays = 30
	return &c
}

// Load reads path over the defaults, applies environment overrides and validates the
// result. A missing file is tolerated only when path is DefaultPath. A relative model
// path is resolved against the directory of the config file.
func Load(path string) (*Config, error) {
	config := Default()
	baseDir := "."

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			baseDir = filepath.Dir(path)
		case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := config.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if config.Model.Path != "" && !filepath.IsAbs(config.Model.Path) {
		config.Model.Path = filepath.Join(baseDir, config.Model.Path)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.HTTP.Port = port
	}
	if v := getenv("HOST"); v != "" {
		c.HTTP.Host = v
	}
	if v := getenv("MODEL_TYPE"); v != "" {
		c.Model.Type = v
	}
	if v := getenv("MODEL_PATH"); v != "" {
		c.Model.Path = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		c.HTTP.AllowedOrigins = origins
	}
	return nil
}

func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("http.timeout must be positive")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return errors.New("http.max_body_bytes must be positive")
	}
	if c.Model.Type == "" {
		return errors.New("model.type is required")
	}
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if c.Model.CacheSize < 0 {
		return errors.New("model.cache_size must not be negative")
	}
	return nil
}
