//go:build tesseract

package factory

import (
	"io"

	"go-signature-extractor/internal/recognition"
	"go-signature-extractor/internal/recognition/tesseract"
)

func init() {
	localBackends[recognition.ProviderTesseract] = func() (recognition.Backend, io.Closer, error) {
		backend, err := tesseract.New()
		if err != nil {
			return nil, nil, err
		}
		return backend, backend, nil
	}
}
