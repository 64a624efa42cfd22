package registry

import (
	"image"
	"time"

	"go-signature-extractor/internal/extractor"
	"go-signature-extractor/pkg/geometry"
)

// State is the recognition state of a record
type State string

const (
	StateProcessing State = "PROCESSING"
	StateSuccess    State = "SUCCESS"
	StateError      State = "ERROR"
)

// Record is one extracted signature. Records handed out by the registry are
// copies; mutate them through the registry.
type Record struct {
	ID int64 `json:"id"`

	// SourceRect is the selection in content coordinates, used for overlays
	SourceRect geometry.Rect `json:"source_rect"`
	// CropRect is the clamped crop in source pixels
	CropRect image.Rectangle `json:"crop_rect"`

	// Artifact is the transparent PNG. Empty when the crop failed to encode.
	Artifact []byte `json:"-"`

	Label          string `json:"label"`
	RecognizedText string `json:"recognized_text,omitempty"`
	State          State  `json:"state"`

	Provider      string `json:"provider,omitempty"`
	FailureKind   string `json:"failure_kind,omitempty"`
	NotConfigured bool   `json:"not_configured,omitempty"`

	Stats      extractor.Stats `json:"stats"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt time.Time       `json:"resolved_at,omitempty"`
}

// HasArtifact reports whether the record carries a user artifact
func (r Record) HasArtifact() bool {
	return len(r.Artifact) > 0
}

// Outcome is the result of one recognition call
type Outcome struct {
	Text     string
	Err      error
	Duration time.Duration
}

// ExtractionRequest describes one completed selection
type ExtractionRequest struct {
	Source      image.Image
	ContentRect geometry.Rect
	SourceRect  image.Rectangle

	Provider           string
	Credential         string
	RequiresCredential bool
}

// UndoAction tells what Undo did
type UndoAction string

const (
	UndoNone     UndoAction = "none"
	UndoRestored UndoAction = "restored"
	UndoDropped  UndoAction = "dropped"
)

// UndoResult is returned by Undo
type UndoResult struct {
	Action UndoAction `json:"action"`
	Record *Record    `json:"record,omitempty"`
}
