package service

import (
	"image"
	"sync"
	"sync/atomic"
	"time"

	"go-signature-extractor/internal/registry"
	"go-signature-extractor/pkg/geometry"
	"go-signature-extractor/pkg/models"
	"go-signature-extractor/pkg/validation"
)

// session is the server-side state of one editing tab
type session struct {
	id        string
	createdAt time.Time
	// lastUsed is a unix nano timestamp, bumped on every lookup
	lastUsed atomic.Int64

	// registry has its own lock
	registry *registry.Registry

	mu           sync.Mutex
	document     image.Image
	documentInfo *models.DocumentInfo
	natural      geometry.Size
	viewportSize geometry.Size
	canvas       *geometry.Viewport
	preview      *geometry.Viewport
}

func newSession(id string, reg *registry.Registry, now time.Time) *session {
	sess := &session{
		id:        id,
		createdAt: now,
		registry:  reg,
		canvas:    geometry.NewViewport(geometry.CanvasLimits),
		preview:   geometry.NewViewport(geometry.PreviewLimits),
	}
	sess.touch(now)
	return sess
}

func (s *session) touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
}

func (s *session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastUsed.Load()))
}

// loadDocument swaps the document and clears every signature and the undo
// history. The viewports go back to identity.
func (s *session) loadDocument(img image.Image, source string, issues []validation.DocumentIssue) *models.DocumentInfo {
	b := img.Bounds()

	s.mu.Lock()
	s.document = img
	s.natural = geometry.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
	s.documentInfo = &models.DocumentInfo{
		Width:    b.Dx(),
		Height:   b.Dy(),
		Source:   source,
		LoadedAt: time.Now().UTC(),
		Issues:   issues,
	}
	s.canvas.Reset()
	s.preview.Reset()
	info := *s.documentInfo
	s.mu.Unlock()

	s.registry.Reset()
	return &info
}

// viewportStateLocked must be called with mu held
func (s *session) viewportStateLocked() models.ViewportState {
	return models.ViewportState{
		Size:          s.viewportSize,
		Canvas:        s.canvas.Transform(),
		CanvasLimits:  s.canvas.Limits(),
		Preview:       s.preview.Transform(),
		PreviewLimits: s.preview.Limits(),
	}
}

func (s *session) viewportState() models.ViewportState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewportStateLocked()
}

func (s *session) response() *models.SessionResponse {
	s.mu.Lock()
	resp := &models.SessionResponse{
		ID:        s.id,
		CreatedAt: s.createdAt,
		Viewport:  s.viewportStateLocked(),
	}
	if s.documentInfo != nil {
		info := *s.documentInfo
		resp.Document = &info
	}
	s.mu.Unlock()

	resp.Signatures = s.registry.Len()
	resp.UndoDepth = s.registry.UndoDepth()
	return resp
}
