// Package models holds the request and response bodies of the HTTP API
package models

import (
	"time"

	"go-signature-extractor/pkg/geometry"
	"go-signature-extractor/pkg/validation"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SessionResponse describes one editing session
type SessionResponse struct {
	ID         string        `json:"id"`
	CreatedAt  time.Time     `json:"created_at"`
	Document   *DocumentInfo `json:"document,omitempty"`
	Signatures int           `json:"signatures"`
	UndoDepth  int           `json:"undo_depth"`
	Viewport   ViewportState `json:"viewport"`
}

// DocumentRequest loads a document by URL
type DocumentRequest struct {
	URL string `json:"url" binding:"required"`
}

// DocumentInfo describes the loaded document
type DocumentInfo struct {
	Width    int                        `json:"width"`
	Height   int                        `json:"height"`
	Source   string                     `json:"source"`
	LoadedAt time.Time                  `json:"loaded_at"`
	Issues   []validation.DocumentIssue `json:"issues,omitempty"`
}

// ViewportState is the canvas and preview transforms of a session
type ViewportState struct {
	Size          geometry.Size      `json:"size"`
	Canvas        geometry.Transform `json:"canvas"`
	CanvasLimits  geometry.Limits    `json:"canvas_limits"`
	Preview       geometry.Transform `json:"preview"`
	PreviewLimits geometry.Limits    `json:"preview_limits"`
}

// ViewportSizeRequest reports the visible canvas size in device pixels
type ViewportSizeRequest struct {
	Width  float64 `json:"width" binding:"gt=0"`
	Height float64 `json:"height" binding:"gt=0"`
}

// WheelRequest is a wheel event at a viewport position
type WheelRequest struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	DeltaY float64 `json:"delta_y"`
}

// PanRequest moves the content by a viewport-space delta
type PanRequest struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// SelectionRequest is a completed drag in viewport coordinates.
// RenderedSize is the on-screen size of the image at scale 1; it defaults to
// the natural size when omitted.
type SelectionRequest struct {
	Start        geometry.Point `json:"start"`
	End          geometry.Point `json:"end"`
	RenderedSize *geometry.Size `json:"rendered_size,omitempty"`
}

// PixelRect is a crop rectangle in source pixels
type PixelRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// InkStats summarises the ink of a signature artifact
type InkStats struct {
	Coverage     float64 `json:"coverage"`
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	OpaquePixels int     `json:"opaque_pixels"`
}

// SignatureResponse is one extracted signature
type SignatureResponse struct {
	ID             int64         `json:"id"`
	Label          string        `json:"label"`
	RecognizedText string        `json:"recognized_text,omitempty"`
	State          string        `json:"state"`
	Provider       string        `json:"provider,omitempty"`
	FailureKind    string        `json:"failure_kind,omitempty"`
	NotConfigured  bool          `json:"not_configured,omitempty"`
	SourceRect     geometry.Rect `json:"source_rect"`
	CropRect       PixelRect     `json:"crop_rect"`
	HasArtifact    bool          `json:"has_artifact"`
	Stats          InkStats      `json:"stats"`
	CreatedAt      time.Time     `json:"created_at"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
}

// SignatureListResponse lists the live signatures of a session
type SignatureListResponse struct {
	Signatures []SignatureResponse `json:"signatures"`
	UndoDepth  int                 `json:"undo_depth"`
}

// RenameRequest replaces a signature's label
type RenameRequest struct {
	Label *string `json:"label" binding:"required"`
}

// UndoResponse tells what undo did
type UndoResponse struct {
	Action    string             `json:"action"`
	Signature *SignatureResponse `json:"signature,omitempty"`
	UndoDepth int                `json:"undo_depth"`
}

// ExportResponse describes an archive stored in the configured sink
type ExportResponse struct {
	Name     string    `json:"name"`
	Location string    `json:"location"`
	Files    int       `json:"files"`
	Bytes    int       `json:"bytes"`
	Created  time.Time `json:"created_at"`
}

// ProviderInfo describes a selectable recognition provider
type ProviderInfo struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	RequiresCredential bool   `json:"requires_credential"`
	Available          bool   `json:"available"`
	HasCredential      bool   `json:"has_credential"`
	MaskedCredential   string `json:"masked_credential,omitempty"`
}

// SettingsResponse is the saved configuration with credentials masked
type SettingsResponse struct {
	Provider  string         `json:"provider"`
	Providers []ProviderInfo `json:"providers"`
}

// SettingsRequest updates the configuration. Credentials are merged per
// provider; an empty string removes that provider's credential.
type SettingsRequest struct {
	Provider    string            `json:"provider" binding:"required"`
	Credentials map[string]string `json:"credentials,omitempty"`
}
