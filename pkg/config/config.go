package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variable names read by FromEnv.
const (
	EnvBaseURL = "BASE_URL"
	EnvAPIKey  = "API_KEY"
	EnvModel   = "MODEL"
)

const (
	DefaultMaxTurns    = 20
	DefaultPermissions = "rwxn"
	DefaultTemperature = 1.0
)

var (
	ErrMissingAPIKey = errors.New("API_KEY environment variable is required")
	ErrMissingModel  = errors.New("MODEL environment variable is required")
)

// Config holds all runtime configuration for toolcall.
type Config struct {
	Toolsets     []string
	MaxTurns     int
	Verbose      bool
	AllowedDir   string
	Permissions  string
	Temperature  float64
	SystemPrompt string
	LogFile      string

	APIKey  string
	BaseURL string
	Model   string
}

// DefaultConfig returns a baseline configuration without side effects.
func DefaultConfig() Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return Config{
		Toolsets:    []string{"files"},
		MaxTurns:    DefaultMaxTurns,
		Verbose:     false,
		AllowedDir:  wd,
		Permissions: DefaultPermissions,
		Temperature: DefaultTemperature,
	}
}

// Normalize sanitizes configuration values and applies defaults.
func Normalize(cfg Config) Config {
	cfg.AllowedDir = strings.TrimSpace(cfg.AllowedDir)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Permissions = strings.ToLower(strings.TrimSpace(cfg.Permissions))
	cfg.LogFile = strings.TrimSpace(cfg.LogFile)

	seen := make(map[string]struct{}, len(cfg.Toolsets))
	toolsets := make([]string, 0, len(cfg.Toolsets))
	for _, name := range cfg.Toolsets {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		toolsets = append(toolsets, name)
	}
	cfg.Toolsets = toolsets

	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 1
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = 0
	}
	return cfg
}

// FromEnv copies endpoint settings from the environment into cfg.
// getenv is usually os.Getenv; tests pass a map lookup.
func FromEnv(cfg Config, getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg.BaseURL = strings.TrimSpace(getenv(EnvBaseURL))
	cfg.APIKey = strings.TrimSpace(getenv(EnvAPIKey))
	cfg.Model = strings.TrimSpace(getenv(EnvModel))
	return cfg
}

// Validate reports configuration errors that must stop the program before
// any request is sent.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return ErrMissingModel
	}
	return nil
}

// fileConfig mirrors the optional YAML configuration file. Pointer fields
// distinguish "absent" from zero values.
type fileConfig struct {
	Toolsets     []string `yaml:"toolsets"`
	MaxTurns     *int     `yaml:"max_turns"`
	Verbose      *bool    `yaml:"verbose"`
	AllowedDir   *string  `yaml:"allowed_dir"`
	Permissions  *string  `yaml:"permissions"`
	Temperature  *float64 `yaml:"temperature"`
	SystemPrompt *string  `yaml:"system_prompt"`
	LogFile      *string  `yaml:"log_file"`
}

// LoadFile overlays the YAML file at path onto cfg. Credentials are never
// read from the file.
func LoadFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Toolsets != nil {
		cfg.Toolsets = append([]string(nil), fc.Toolsets...)
	}
	if fc.MaxTurns != nil {
		cfg.MaxTurns = *fc.MaxTurns
	}
	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
	}
	if fc.AllowedDir != nil {
		cfg.AllowedDir = *fc.AllowedDir
	}
	if fc.Permissions != nil {
		cfg.Permissions = *fc.Permissions
	}
	if fc.Temperature != nil {
		cfg.Temperature = *fc.Temperature
	}
	if fc.SystemPrompt != nil {
		cfg.SystemPrompt = *fc.SystemPrompt
	}
	if fc.LogFile != nil {
		cfg.LogFile = *fc.LogFile
	}
	return cfg, nil
}
