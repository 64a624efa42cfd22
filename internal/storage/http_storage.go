package storage

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	fetchAttempts       = 3
	defaultFetchBackoff = time.Second
	// Largest document body accepted from a URL
	defaultMaxDocumentBytes = 32 << 20
)

// DocumentFetcher loads a scanned document from a URL
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, documentURL string) (image.Image, error)
}

// HTTPDocumentFetcher implements DocumentFetcher over plain HTTP(S)
type HTTPDocumentFetcher struct {
	client   *http.Client
	backoff  time.Duration
	maxBytes int64
}

// NewHTTPDocumentFetcher creates a fetcher whose whole download, retries
// excluded, is bounded by timeout.
func NewHTTPDocumentFetcher(timeout time.Duration) *HTTPDocumentFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPDocumentFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		backoff:  defaultFetchBackoff,
		maxBytes: defaultMaxDocumentBytes,
	}
}

// WithBackoff sets the base delay between attempts; attempt n waits n*base
func (h *HTTPDocumentFetcher) WithBackoff(base time.Duration) *HTTPDocumentFetcher {
	h.backoff = base
	return h
}

// WithMaxBytes caps the accepted body size
func (h *HTTPDocumentFetcher) WithMaxBytes(n int64) *HTTPDocumentFetcher {
	h.maxBytes = n
	return h
}

// FetchDocument downloads and decodes the document. Server errors and
// transport failures are retried up to 3 attempts; client errors are not.
func (h *HTTPDocumentFetcher) FetchDocument(ctx context.Context, documentURL string) (image.Image, error) {
	var lastErr error

	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("failed to fetch document: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * h.backoff):
			}
		}

		img, retry, err := h.fetchOnce(ctx, documentURL)
		if err == nil {
			return img, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	return nil, fmt.Errorf("failed to fetch document after %d attempts: %w", fetchAttempts, lastErr)
}

// fetchOnce performs one request and reports whether a failure may be retried
func (h *HTTPDocumentFetcher) fetchOnce(ctx context.Context, documentURL string) (image.Image, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, documentURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/png, image/jpeg, image/tiff, image/webp, */*")
	req.Header.Set("User-Agent", "Go-Signature-Extractor/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	img, _, err := DecodeDocument(io.LimitReader(resp.Body, h.maxBytes))
	if err != nil {
		return nil, false, err
	}
	return img, false, nil
}

// DecodeDocument decodes a scanned document in any registered format:
// PNG, JPEG, GIF, BMP, TIFF or WebP.
func DecodeDocument(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode document: %w", err)
	}
	return img, format, nil
}
