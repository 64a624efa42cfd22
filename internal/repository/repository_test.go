package repository

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSettingsRepository_MissingFileYieldsDefaults(t *testing.T) {
	repo := NewFileSettingsRepository(t.TempDir(), "zhipu")

	settings, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.Provider != "zhipu" || len(settings.Credentials) != 0 {
		t.Errorf("defaults = %+v", settings)
	}
	if settings.ActiveCredential() != "" {
		t.Error("no credential expected")
	}
}

func TestFileSettingsRepository_SaveThenLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	repo := NewFileSettingsRepository(dir, "zhipu")
	ctx := context.Background()

	err := repo.Save(ctx, &Settings{
		Provider: " aliyun ",
		Credentials: map[string]string{
			"aliyun": "  sk-123 \n",
			"zhipu":  "   ",
		},
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(repo.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("settings file mode = %v", info.Mode().Perm())
	}

	loaded, err := NewFileSettingsRepository(dir, "zhipu").Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Provider != "aliyun" || loaded.ActiveCredential() != "sk-123" {
		t.Errorf("loaded = %+v", loaded)
	}
	if _, ok := loaded.Credentials["zhipu"]; ok {
		t.Error("blank credentials should be dropped")
	}
}

func TestFileSettingsRepository_Corrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, settingsFile), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileSettingsRepository(dir, "zhipu").Load(context.Background())
	if !errors.Is(err, ErrRepositoryUnavailable) {
		t.Errorf("expected ErrRepositoryUnavailable, got %v", err)
	}
}

func TestSettingsRepositories_RejectInvalid(t *testing.T) {
	repos := map[string]SettingsRepository{
		"file":   NewFileSettingsRepository(t.TempDir(), "zhipu"),
		"memory": NewInMemorySettingsRepository(nil),
	}

	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			if err := repo.Save(context.Background(), nil); !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("nil settings: %v", err)
			}
			if err := repo.Save(context.Background(), NewSettings("  ")); !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("blank provider: %v", err)
			}
		})
	}
}

func TestInMemorySettingsRepository_ReturnsCopies(t *testing.T) {
	repo := NewInMemorySettingsRepository(&Settings{
		Provider:    "zhipu",
		Credentials: map[string]string{"zhipu": " key "},
	})

	first, _ := repo.Load(context.Background())
	if first.ActiveCredential() != "key" {
		t.Errorf("credential = %q", first.ActiveCredential())
	}
	first.Credentials["zhipu"] = "mutated"

	second, _ := repo.Load(context.Background())
	if second.ActiveCredential() != "key" {
		t.Error("Load must return an independent copy")
	}
}

type stubFetcher struct {
	calls int
}

func (f *stubFetcher) FetchDocument(ctx context.Context, documentURL string) (image.Image, error) {
	f.calls++
	return image.NewRGBA(image.Rect(0, 0, 10, 10)), nil
}

type rejectAll struct{}

func (rejectAll) ValidateDocumentURL(string) error { return errors.New("nope") }

func TestHTTPDocumentRepository(t *testing.T) {
	fetcher := &stubFetcher{}

	repo := NewHTTPDocumentRepository(fetcher, rejectAll{})
	if _, err := repo.FetchDocument(context.Background(), "ftp://x"); !errors.Is(err, ErrInvalidDocumentURL) {
		t.Errorf("expected ErrInvalidDocumentURL, got %v", err)
	}
	if fetcher.calls != 0 {
		t.Error("invalid URLs must not be fetched")
	}

	repo = NewHTTPDocumentRepository(fetcher, nil)
	img, err := repo.FetchDocument(context.Background(), "https://example.com/a.png")
	if err != nil || img.Bounds().Dx() != 10 {
		t.Errorf("fetch = %v, %v", img, err)
	}
}
