package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, relative to the working directory.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                   string   `yaml:"port"`
	LogLevel               string   `yaml:"logLevel"`
	StoreBackend           string   `yaml:"storeBackend"`
	DatabaseURL            string   `yaml:"databaseURL"`
	ObjectBackend          string   `yaml:"objectBackend"`
	MinioEndpoint          string   `yaml:"minioEndpoint"`
	MinioAccessKey         string   `yaml:"minioAccessKey"`
	MinioSecretKey         string   `yaml:"minioSecretKey"`
	MinioBucket            string   `yaml:"minioBucket"`
	MinioUseSSL            bool     `yaml:"minioUseSSL"`
	MinioPublicBaseURL     string   `yaml:"minioPublicBaseURL"`
	RedisAddr              string   `yaml:"redisAddr"`
	RedisPassword          string   `yaml:"redisPassword"`
	QueueName              string   `yaml:"queueName"`
	QueueGroup             string   `yaml:"queueGroup"`
	QueueConcurrency       int      `yaml:"queueConcurrency"`
	QueueMaxRetries        int      `yaml:"queueMaxRetries"`
	QueueRetryDelaySeconds int      `yaml:"queueRetryDelaySeconds"`
	TranscriptionProvider  string   `yaml:"transcriptionProvider"`
	TranscriptionBaseURL   string   `yaml:"transcriptionBaseURL"`
	TranscriptionAPIKey    string   `yaml:"transcriptionAPIKey"`
	TranscriptionModel     string   `yaml:"transcriptionModel"`
	LanguageHint           string   `yaml:"languageHint"`
	MockTranscript         string   `yaml:"mockTranscript"`
	GenerationProvider     string   `yaml:"generationProvider"`
	GenerationBaseURL      string   `yaml:"generationBaseURL"`
	GenerationAPIKey       string   `yaml:"generationAPIKey"`
	GenerationModel        string   `yaml:"generationModel"`
	SummaryLanguage        string   `yaml:"summaryLanguage"`
	ServiceTimeoutSeconds  int      `yaml:"serviceTimeoutSeconds"`
	CurationIdleMinutes    int      `yaml:"curationIdleMinutes"`
	AttachConcurrency      int      `yaml:"attachConcurrency"`
	MaxUploadBytes         int64    `yaml:"maxUploadBytes"`
	AIRateLimitPerMinute   int      `yaml:"aiRateLimitPerMinute"`
	TrustedProxies         []string `yaml:"trustedProxies"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("CASEDOC_STORE_BACKEND"); v != "" {
		cfg.StoreBackend = v
	}
	if v := os.Getenv("CASEDOC_OBJECT_BACKEND"); v != "" {
		cfg.ObjectBackend = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CASEDOC_QUEUE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueConcurrency = n
		}
	}
	if v := os.Getenv("CASEDOC_QUEUE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueMaxRetries = n
		}
	}
	if v := os.Getenv("CASEDOC_TRANSCRIPTION_PROVIDER"); v != "" {
		cfg.TranscriptionProvider = v
	}
	if v := os.Getenv("CASEDOC_TRANSCRIPTION_API_KEY"); v != "" {
		cfg.TranscriptionAPIKey = v
	}
	if v := os.Getenv("CASEDOC_GENERATION_PROVIDER"); v != "" {
		cfg.GenerationProvider = v
	}
	if v := os.Getenv("CASEDOC_GENERATION_API_KEY"); v != "" {
		cfg.GenerationAPIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && cfg.GenerationAPIKey == "" {
		cfg.GenerationAPIKey = v
	}
	if v := os.Getenv("CASEDOC_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	cfg.StoreBackend = lowerOr(cfg.StoreBackend, "postgres")
	cfg.ObjectBackend = lowerOr(cfg.ObjectBackend, "minio")
	cfg.TranscriptionProvider = lowerOr(cfg.TranscriptionProvider, "mock")
	cfg.GenerationProvider = lowerOr(cfg.GenerationProvider, "mock")
	if cfg.QueueName == "" {
		cfg.QueueName = "casedoc:transcription"
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = "documentation"
	}
	if cfg.QueueConcurrency <= 0 {
		cfg.QueueConcurrency = 2
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.StoreBackend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown storeBackend %q (postgres|memory)", cfg.StoreBackend)
	}
	switch cfg.ObjectBackend {
	case "minio":
		if cfg.MinioEndpoint == "" {
			return errors.New("config: minioEndpoint is required (set in config.yaml)")
		}
		if cfg.MinioAccessKey == "" {
			return errors.New("config: minioAccessKey is required (set in config.yaml)")
		}
		if cfg.MinioSecretKey == "" {
			return errors.New("config: minioSecretKey is required (set in config.yaml)")
		}
		if cfg.MinioBucket == "" {
			return errors.New("config: minioBucket is required (set in config.yaml)")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown objectBackend %q (minio|memory)", cfg.ObjectBackend)
	}
	switch cfg.TranscriptionProvider {
	case "mock":
	case "whisper":
		if strings.TrimSpace(cfg.TranscriptionAPIKey) == "" {
			return errors.New("config: transcriptionAPIKey is required for the whisper provider")
		}
	default:
		return fmt.Errorf("config: unknown transcriptionProvider %q (mock|whisper)", cfg.TranscriptionProvider)
	}
	switch cfg.GenerationProvider {
	case "mock":
	case "gemini", "openai":
		if strings.TrimSpace(cfg.GenerationAPIKey) == "" {
			return fmt.Errorf("config: generationAPIKey is required for the %s provider", cfg.GenerationProvider)
		}
		if strings.TrimSpace(cfg.GenerationModel) == "" {
			return errors.New("config: generationModel is required (set in config.yaml)")
		}
	case "ollama":
		if strings.TrimSpace(cfg.GenerationModel) == "" {
			return errors.New("config: generationModel is required (set in config.yaml)")
		}
	default:
		return fmt.Errorf("config: unknown generationProvider %q (mock|gemini|ollama|openai)", cfg.GenerationProvider)
	}
	if cfg.AIRateLimitPerMinute > 0 && cfg.RedisAddr == "" {
		return errors.New("config: aiRateLimitPerMinute requires redisAddr")
	}
	if cfg.QueueMaxRetries < 0 {
		return errors.New("config: queueMaxRetries must be >= 0")
	}
	if cfg.ServiceTimeoutSeconds < 0 {
		return errors.New("config: serviceTimeoutSeconds must be >= 0")
	}
	return nil
}

func lowerOr(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}
