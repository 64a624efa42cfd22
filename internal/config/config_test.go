package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"HOST", "PORT", "RECOGNITION_TIMEOUT", "ARCHIVE_SINK", "LABEL_LOCALE", "ALLOWED_DOCUMENT_HOSTS", "SESSION_IDLE_TTL"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if cfg.ServerAddress() != "0.0.0.0:8080" {
		t.Errorf("address = %q", cfg.ServerAddress())
	}
	if cfg.RecognitionTimeout != 30*time.Second {
		t.Errorf("recognition timeout = %v", cfg.RecognitionTimeout)
	}
	if cfg.ArchiveSink != ArchiveSinkLocal || cfg.LabelLocale != "zh-Hans" {
		t.Errorf("sink/locale = %q/%q", cfg.ArchiveSink, cfg.LabelLocale)
	}
	if len(cfg.AllowedHosts) != 0 {
		t.Errorf("allowed hosts = %v", cfg.AllowedHosts)
	}
	if cfg.SessionIdleTTL != 2*time.Hour {
		t.Errorf("session idle ttl = %v", cfg.SessionIdleTTL)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", " 9090 ")
	t.Setenv("RECOGNITION_TIMEOUT", "5s")
	t.Setenv("RECOGNITION_WORKERS", "8")
	t.Setenv("SESSION_IDLE_TTL", "10m")
	t.Setenv("ALLOWED_DOCUMENT_HOSTS", "a.example.com, b.example.com,")
	t.Setenv("ARCHIVE_SINK", "AZURE")
	t.Setenv("AZURE_STORAGE_ACCOUNT", "acct")
	t.Setenv("AZURE_STORAGE_KEY", "a2V5")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if cfg.RecognitionTimeout != 5*time.Second || cfg.RecognitionWorkers != 8 {
		t.Errorf("timeout/workers = %v/%d", cfg.RecognitionTimeout, cfg.RecognitionWorkers)
	}
	if cfg.SessionIdleTTL != 10*time.Minute {
		t.Errorf("session idle ttl = %v", cfg.SessionIdleTTL)
	}
	if len(cfg.AllowedHosts) != 2 || cfg.AllowedHosts[1] != "b.example.com" {
		t.Errorf("allowed hosts = %v", cfg.AllowedHosts)
	}
	if cfg.ArchiveSink != ArchiveSinkAzure || cfg.AzureStorageContainer != "signatures" {
		t.Errorf("sink = %q container = %q", cfg.ArchiveSink, cfg.AzureStorageContainer)
	}
	if !strings.HasSuffix(cfg.ServerAddress(), ":9090") {
		t.Errorf("address = %q", cfg.ServerAddress())
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"port", map[string]string{"PORT": "http"}, "invalid PORT"},
		{"body size", map[string]string{"MAX_REQUEST_BODY_SIZE": "0"}, "MAX_REQUEST_BODY_SIZE"},
		{"workers", map[string]string{"RECOGNITION_WORKERS": "0"}, "RECOGNITION_WORKERS"},
		{"sink", map[string]string{"ARCHIVE_SINK": "s3"}, "invalid ARCHIVE_SINK"},
		{"azure without key", map[string]string{"ARCHIVE_SINK": "azure", "AZURE_STORAGE_ACCOUNT": "", "AZURE_STORAGE_KEY": ""}, "AZURE_STORAGE_ACCOUNT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
