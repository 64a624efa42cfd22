// Package recognition is the boundary to the handwriting recognition services.
// A call takes a bare base64 JPEG and a credential and yields either cleaned
// text or a classified *Failure.
package recognition

import (
	"context"
	"errors"
	"fmt"

	"go-signature-extractor/internal/labels"
)

// Recognizer is the contract consumed by the signature registry
type Recognizer interface {
	Recognize(ctx context.Context, imageBase64, credential, providerID string) (string, error)
}

// Backend recognizes text for one provider
type Backend interface {
	Recognize(ctx context.Context, imageBase64, credential string) (string, error)
}

// FailureKind is a stable classification of adapter failures
type FailureKind string

const (
	KindAuth            FailureKind = "auth"
	KindRateLimit       FailureKind = "rate_limit"
	KindBilling         FailureKind = "billing"
	KindContentPolicy   FailureKind = "content_policy"
	KindGeneric         FailureKind = "generic"
	KindNetwork         FailureKind = "network"
	KindNotConfigured   FailureKind = "not_configured"
	KindUnknownProvider FailureKind = "unknown_provider"
)

// Failure is returned by recognizers for every unsuccessful call
type Failure struct {
	Kind FailureKind
	// Status is the HTTP status for KindGeneric failures, 0 otherwise
	Status int
	Cause  error
}

// Error implements the error interface
func (f *Failure) Error() string {
	msg := fmt.Sprintf("recognition failed: %s", f.Kind)
	if f.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, f.Status)
	}
	if f.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, f.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (f *Failure) Unwrap() error {
	return f.Cause
}

// Label renders the short user-visible reason for the failure
func (f *Failure) Label(c *labels.Catalog) string {
	switch f.Kind {
	case KindAuth:
		return c.Get(labels.InvalidKey)
	case KindRateLimit:
		return c.Get(labels.RateLimited)
	case KindBilling:
		return c.Get(labels.Billing)
	case KindContentPolicy:
		return c.Get(labels.ContentPolicy)
	case KindNetwork:
		return c.Get(labels.Network)
	case KindNotConfigured:
		return c.Get(labels.NotConfigured)
	case KindUnknownProvider:
		return c.Get(labels.UnknownVendor)
	default:
		return c.Get(labels.RequestFailed, f.Status)
	}
}

// AsFailure classifies any error as a *Failure. Errors that are not failures
// already count as network failures.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: KindNetwork, Cause: err}
}

// Router dispatches to the backend registered for a provider id
type Router struct {
	backends map[string]Backend
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{backends: make(map[string]Backend)}
}

// Register binds a backend to a provider id
func (r *Router) Register(providerID string, backend Backend) {
	r.backends[providerID] = backend
}

// Has reports whether a backend is registered for providerID
func (r *Router) Has(providerID string) bool {
	_, ok := r.backends[providerID]
	return ok
}

// Recognize implements Recognizer
func (r *Router) Recognize(ctx context.Context, imageBase64, credential, providerID string) (string, error) {
	backend, ok := r.backends[providerID]
	if !ok {
		return "", &Failure{Kind: KindUnknownProvider, Cause: fmt.Errorf("provider %q", providerID)}
	}
	text, err := backend.Recognize(ctx, StripDataURIPrefix(imageBase64), credential)
	if err != nil {
		return "", AsFailure(err)
	}
	return CleanLabel(text), nil
}
