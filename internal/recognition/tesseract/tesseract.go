//go:build tesseract

// Package tesseract recognizes signatures locally with Tesseract. It needs
// cgo and the tesseract development headers, so it only builds with the
// "tesseract" tag.
package tesseract

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"go-signature-extractor/internal/recognition"
)

// DefaultLanguages covers Chinese names and Latin dates
var DefaultLanguages = []string{"chi_sim", "eng"}

// Backend implements recognition.Backend on a single gosseract client.
// The client is not safe for concurrent use, so calls are serialised.
type Backend struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// New creates a backend for the given tesseract languages
func New(languages ...string) (*Backend, error) {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(languages...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	// Signature crops hold one short line
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}

	return &Backend{client: client}, nil
}

// Close releases the tesseract client
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client.Close()
}

// Recognize implements recognition.Backend. The credential is ignored.
func (b *Backend) Recognize(ctx context.Context, imageBase64, _ string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return "", &recognition.Failure{Kind: recognition.KindGeneric, Cause: fmt.Errorf("invalid payload: %w", err)}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", &recognition.Failure{Kind: recognition.KindNetwork, Cause: err}
	}

	if err := b.client.SetImageFromBytes(data); err != nil {
		return "", &recognition.Failure{Kind: recognition.KindGeneric, Cause: fmt.Errorf("failed to set image: %w", err)}
	}

	text, err := b.client.Text()
	if err != nil {
		return "", &recognition.Failure{Kind: recognition.KindGeneric, Cause: fmt.Errorf("OCR failed: %w", err)}
	}

	return strings.Join(strings.Fields(text), " "), nil
}
