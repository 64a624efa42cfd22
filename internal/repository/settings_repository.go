package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const settingsFile = "settings.json"

// FileSettingsRepository stores settings as JSON in a single file
type FileSettingsRepository struct {
	mu              sync.Mutex
	path            string
	defaultProvider string
}

// NewFileSettingsRepository stores settings under dir. An empty dir means the
// user config directory.
func NewFileSettingsRepository(dir, defaultProvider string) *FileSettingsRepository {
	if dir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			configDir = filepath.Join(os.Getenv("HOME"), ".config")
		}
		dir = filepath.Join(configDir, "signature-extractor")
	}
	return &FileSettingsRepository{
		path:            filepath.Join(dir, settingsFile),
		defaultProvider: defaultProvider,
	}
}

// Path returns the settings file location
func (r *FileSettingsRepository) Path() string { return r.path }

// Load reads the settings file; a missing file yields defaults
func (r *FileSettingsRepository) Load(ctx context.Context) (*Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewSettings(r.defaultProvider), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}

	settings := NewSettings(r.defaultProvider)
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("%w: corrupt settings file: %v", ErrRepositoryUnavailable, err)
	}
	if settings.Provider == "" {
		settings.Provider = r.defaultProvider
	}
	if settings.Credentials == nil {
		settings.Credentials = make(map[string]string)
	}
	return settings, nil
}

// Save writes the settings atomically. Credentials are trimmed first.
func (r *FileSettingsRepository) Save(ctx context.Context, settings *Settings) error {
	if settings == nil {
		return ErrInvalidSettings
	}
	clean := settings.Clone()
	clean.Normalize()
	if clean.Provider == "" {
		return fmt.Errorf("%w: provider is required", ErrInvalidSettings)
	}

	data, err := json.MarshalIndent(clean, "", "  ")
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}

	tmp := r.path + ".tmp"
	// Credentials live in this file
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	return nil
}

// InMemorySettingsRepository keeps settings in memory, for tests and
// deployments that inject credentials at startup.
type InMemorySettingsRepository struct {
	mu       sync.RWMutex
	settings *Settings
}

// NewInMemorySettingsRepository starts from initial, which may be nil
func NewInMemorySettingsRepository(initial *Settings) *InMemorySettingsRepository {
	if initial == nil {
		initial = NewSettings("")
	}
	s := initial.Clone()
	s.Normalize()
	return &InMemorySettingsRepository{settings: s}
}

// Load returns a copy of the current settings
func (r *InMemorySettingsRepository) Load(ctx context.Context) (*Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings.Clone(), nil
}

// Save replaces the current settings with a trimmed copy
func (r *InMemorySettingsRepository) Save(ctx context.Context, settings *Settings) error {
	if settings == nil {
		return ErrInvalidSettings
	}
	clean := settings.Clone()
	clean.Normalize()
	if clean.Provider == "" {
		return fmt.Errorf("%w: provider is required", ErrInvalidSettings)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = clean
	return nil
}
