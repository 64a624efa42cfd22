package validation

import (
	"fmt"
	"image"

	apperrors "go-signature-extractor/internal/errors"
)

// DocumentThresholds bounds what an uploaded document may look like
type DocumentThresholds struct {
	// MaxPixels rejects decoded documents larger than this many pixels
	MaxPixels int
	// MaxSide rejects documents whose longest side exceeds this value
	MaxSide int
	// MinSide below this, signatures are likely unreadable; warning only
	MinSide int
}

// DefaultDocumentThresholds suits A4 scans up to 600 dpi
func DefaultDocumentThresholds() DocumentThresholds {
	return DocumentThresholds{
		MaxPixels: 40_000_000,
		MaxSide:   16_384,
		MinSide:   300,
	}
}

// DocumentIssue is a non-fatal remark about a document
type DocumentIssue struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	Severity    string  `json:"severity"` // "warning", "info"
	ActualValue float64 `json:"actual_value,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// DocumentValidator checks decoded documents
type DocumentValidator struct {
	thresholds DocumentThresholds
}

// NewDocumentValidator creates a validator with default thresholds
func NewDocumentValidator() *DocumentValidator {
	return &DocumentValidator{thresholds: DefaultDocumentThresholds()}
}

// NewDocumentValidatorWithThresholds creates a validator with custom thresholds
func NewDocumentValidatorWithThresholds(thresholds DocumentThresholds) *DocumentValidator {
	return &DocumentValidator{thresholds: thresholds}
}

// Validate rejects empty and oversized documents and returns warnings for
// documents that are accepted but probably too small to work with.
func (v *DocumentValidator) Validate(img image.Image) ([]DocumentIssue, error) {
	if img == nil {
		return nil, apperrors.NewValidationError("Document is empty", nil)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, apperrors.NewValidationError("Document is empty", nil)
	}

	longest, shortest := w, h
	if h > w {
		longest, shortest = h, w
	}

	if v.thresholds.MaxSide > 0 && longest > v.thresholds.MaxSide {
		return nil, apperrors.NewValidationError("Document is too large",
			nil).WithDetails(fmt.Sprintf("longest side %d exceeds %d", longest, v.thresholds.MaxSide))
	}
	if v.thresholds.MaxPixels > 0 && w*h > v.thresholds.MaxPixels {
		return nil, apperrors.NewValidationError("Document is too large",
			nil).WithDetails(fmt.Sprintf("%d pixels exceeds %d", w*h, v.thresholds.MaxPixels))
	}

	var issues []DocumentIssue
	if v.thresholds.MinSide > 0 && shortest < v.thresholds.MinSide {
		issues = append(issues, DocumentIssue{
			Type:        "low_resolution",
			Message:     "Document resolution is low. Signatures may be hard to recognize.",
			Severity:    "warning",
			ActualValue: float64(shortest),
			Threshold:   float64(v.thresholds.MinSide),
		})
	}
	return issues, nil
}
