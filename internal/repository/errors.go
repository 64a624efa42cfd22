package repository

import "errors"

var (
	// ErrInvalidDocumentURL indicates a URL the service refuses to fetch
	ErrInvalidDocumentURL = errors.New("invalid document URL")

	// ErrInvalidSettings indicates settings that cannot be saved
	ErrInvalidSettings = errors.New("invalid settings")

	// ErrRepositoryUnavailable indicates the backing store cannot be read or written
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
