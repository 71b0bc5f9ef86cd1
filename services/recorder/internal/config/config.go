package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, relative to the working directory.
const ConfigPath = "recorder.yaml"

// FileConfig represents recorder configuration loaded from YAML.
type FileConfig struct {
	ServiceURL     string `yaml:"serviceURL"`
	LogLevel       string `yaml:"logLevel"`
	SampleRate     int    `yaml:"sampleRate"`
	Channels       int    `yaml:"channels"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// Load reads config from path. A missing file yields defaults so the recorder
// works without any setup against a local service.
func Load(path string) (FileConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	var cfg FileConfig
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return FileConfig{}, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return FileConfig{}, fmt.Errorf("read config: %w", err)
	}

	if v := strings.TrimSpace(os.Getenv("CASEDOC_SERVICE_URL")); v != "" {
		cfg.ServiceURL = v
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	cfg.ServiceURL = strings.TrimRight(strings.TrimSpace(cfg.ServiceURL), "/")
	if cfg.ServiceURL == "" {
		cfg.ServiceURL = "http://localhost:8080"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = 60
	}
}

func validateConfig(cfg FileConfig) error {
	if !strings.HasPrefix(cfg.ServiceURL, "http://") && !strings.HasPrefix(cfg.ServiceURL, "https://") {
		return fmt.Errorf("serviceURL must be an http(s) URL, got %q", cfg.ServiceURL)
	}
	if cfg.SampleRate < 0 || cfg.Channels < 0 || cfg.TimeoutSeconds < 0 {
		return errors.New("sampleRate, channels and timeoutSeconds must be positive")
	}
	if cfg.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", cfg.Channels)
	}
	return nil
}
