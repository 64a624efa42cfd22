package repository

import (
	"context"
	"image"
	"strings"
)

// SettingsRepository persists the user's recognition settings
type SettingsRepository interface {
	// Load returns the saved settings, or defaults when none were saved
	Load(ctx context.Context) (*Settings, error)

	// Save replaces the saved settings
	Save(ctx context.Context, settings *Settings) error
}

// DocumentRepository loads documents referenced by URL
type DocumentRepository interface {
	// FetchDocument validates documentURL and downloads the image behind it
	FetchDocument(ctx context.Context, documentURL string) (image.Image, error)
}

// Settings is the provider choice plus one credential per provider id
type Settings struct {
	Provider    string            `json:"provider"`
	Credentials map[string]string `json:"credentials"`
}

// NewSettings returns settings with the given provider and no credentials
func NewSettings(provider string) *Settings {
	return &Settings{Provider: provider, Credentials: make(map[string]string)}
}

// ActiveCredential returns the credential of the selected provider, or ""
func (s *Settings) ActiveCredential() string {
	if s == nil || s.Credentials == nil {
		return ""
	}
	return s.Credentials[s.Provider]
}

// Clone returns a deep copy
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	c := &Settings{Provider: s.Provider, Credentials: make(map[string]string, len(s.Credentials))}
	for k, v := range s.Credentials {
		c.Credentials[k] = v
	}
	return c
}

// Normalize trims the provider and every credential and drops empty ones
func (s *Settings) Normalize() {
	s.Provider = strings.TrimSpace(s.Provider)
	cleaned := make(map[string]string, len(s.Credentials))
	for k, v := range s.Credentials {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			cleaned[k] = v
		}
	}
	s.Credentials = cleaned
}
