package service

import (
	"go-signature-extractor/internal/export"
	"go-signature-extractor/internal/registry"
	"go-signature-extractor/pkg/models"
)

func toSignatureResponse(rec registry.Record) models.SignatureResponse {
	resp := models.SignatureResponse{
		ID:             rec.ID,
		Label:          rec.Label,
		RecognizedText: rec.RecognizedText,
		State:          string(rec.State),
		Provider:       rec.Provider,
		FailureKind:    rec.FailureKind,
		NotConfigured:  rec.NotConfigured,
		SourceRect:     rec.SourceRect,
		CropRect: models.PixelRect{
			X:      rec.CropRect.Min.X,
			Y:      rec.CropRect.Min.Y,
			Width:  rec.CropRect.Dx(),
			Height: rec.CropRect.Dy(),
		},
		HasArtifact: rec.HasArtifact(),
		Stats: models.InkStats{
			Coverage:     rec.Stats.InkCoverage,
			Mean:         rec.Stats.InkMean,
			StdDev:       rec.Stats.InkStdDev,
			OpaquePixels: rec.Stats.OpaquePixels,
		},
		CreatedAt: rec.CreatedAt,
	}
	if !rec.ResolvedAt.IsZero() {
		resolved := rec.ResolvedAt
		resp.ResolvedAt = &resolved
	}
	return resp
}

func toEntry(rec registry.Record) export.Entry {
	return export.Entry{
		ID:             rec.ID,
		Label:          rec.Label,
		RecognizedText: rec.RecognizedText,
		State:          string(rec.State),
		Artifact:       rec.Artifact,
	}
}
