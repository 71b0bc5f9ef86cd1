package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CASEDOC_SERVICE_URL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceURL != "http://localhost:8080" || cfg.SampleRate != 16000 || cfg.Channels != 1 || cfg.TimeoutSeconds != 60 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recorder.yaml")
	data := []byte("serviceURL: http://docs.internal:9000/\nsampleRate: 44100\nchannels: 2\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CASEDOC_SERVICE_URL", "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceURL != "http://docs.internal:9000" || cfg.SampleRate != 44100 || cfg.Channels != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	t.Setenv("CASEDOC_SERVICE_URL", "https://casedoc.example.org")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load with env: %v", err)
	}
	if cfg.ServiceURL != "https://casedoc.example.org" {
		t.Fatalf("expected env override, got %s", cfg.ServiceURL)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"scheme":   "serviceURL: localhost:8080\n",
		"channels": "channels: 6\n",
		"negative": "sampleRate: -1\n",
		"yaml":     "serviceURL: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "recorder.yaml")
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			t.Setenv("CASEDOC_SERVICE_URL", "")
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}
