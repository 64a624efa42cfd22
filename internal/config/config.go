package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Archive sinks
const (
	ArchiveSinkLocal = "local"
	ArchiveSinkAzure = "azure"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	RecognitionTimeout time.Duration
	ImageFetchTimeout  time.Duration
	MaxRequestBodySize int64
	RecognitionWorkers int
	SessionIdleTTL     time.Duration

	SettingsDir       string
	LabelLocale       string
	MaxDocumentPixels int
	AllowedHosts      []string

	ArchiveSink string
	ArchiveDir  string

	AzureStorageAccount   string
	AzureStorageKey       string
	AzureStorageContainer string
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		RecognitionTimeout: parseDurationOrDefault("RECOGNITION_TIMEOUT", 30*time.Second),
		ImageFetchTimeout:  parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 20*1024*1024), // 20MB
		RecognitionWorkers: int(parseIntOrDefault("RECOGNITION_WORKERS", 4)),
		SessionIdleTTL:     parseDurationOrDefault("SESSION_IDLE_TTL", 2*time.Hour),

		SettingsDir:       os.Getenv("SETTINGS_DIR"),
		LabelLocale:       getEnvOrDefault("LABEL_LOCALE", "zh-Hans"),
		MaxDocumentPixels: int(parseIntOrDefault("MAX_DOCUMENT_PIXELS", 40_000_000)),
		AllowedHosts:      parseListOrDefault("ALLOWED_DOCUMENT_HOSTS"),

		ArchiveSink: strings.ToLower(getEnvOrDefault("ARCHIVE_SINK", ArchiveSinkLocal)),
		ArchiveDir:  getEnvOrDefault("ARCHIVE_DIR", "exports"),

		AzureStorageAccount:   os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureStorageKey:       os.Getenv("AZURE_STORAGE_KEY"),
		AzureStorageContainer: getEnvOrDefault("AZURE_STORAGE_CONTAINER", "signatures"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 || c.RecognitionTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, recognition=%s)",
			c.RequestTimeout, c.ImageFetchTimeout, c.RecognitionTimeout)
	}
	if c.RecognitionWorkers < 1 {
		return fmt.Errorf("RECOGNITION_WORKERS must be >= 1 (got %d)", c.RecognitionWorkers)
	}
	if c.MaxDocumentPixels <= 0 {
		return fmt.Errorf("MAX_DOCUMENT_PIXELS must be > 0 (got %d)", c.MaxDocumentPixels)
	}

	switch c.ArchiveSink {
	case ArchiveSinkLocal:
		if strings.TrimSpace(c.ArchiveDir) == "" {
			return fmt.Errorf("ARCHIVE_DIR is required for the local archive sink")
		}
	case ArchiveSinkAzure:
		if c.AzureStorageAccount == "" || c.AzureStorageKey == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY are required for the azure archive sink")
		}
	default:
		return fmt.Errorf("invalid ARCHIVE_SINK: %q (want %q or %q)", c.ArchiveSink, ArchiveSinkLocal, ArchiveSinkAzure)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseListOrDefault(key string) []string {
	var list []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
