package repository

import (
	"context"
	"fmt"
	"image"

	"go-signature-extractor/internal/storage"
)

// URLValidator is satisfied by validation.URLValidator
type URLValidator interface {
	ValidateDocumentURL(documentURL string) error
}

// HTTPDocumentRepository implements DocumentRepository on top of a fetcher
type HTTPDocumentRepository struct {
	fetcher   storage.DocumentFetcher
	validator URLValidator
}

// NewHTTPDocumentRepository creates a new HTTP-based document repository
func NewHTTPDocumentRepository(fetcher storage.DocumentFetcher, validator URLValidator) DocumentRepository {
	return &HTTPDocumentRepository{
		fetcher:   fetcher,
		validator: validator,
	}
}

// FetchDocument validates the URL, then downloads and decodes the document
func (r *HTTPDocumentRepository) FetchDocument(ctx context.Context, documentURL string) (image.Image, error) {
	if r.validator != nil {
		if err := r.validator.ValidateDocumentURL(documentURL); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocumentURL, err)
		}
	}
	return r.fetcher.FetchDocument(ctx, documentURL)
}
