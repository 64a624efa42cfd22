// Package export packages extracted signatures into a downloadable archive
// and reports how far user edits drifted from the recognized text.
package export

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"
)

// ErrNothingToExport means no entry carried an artifact
var ErrNothingToExport = errors.New("no exportable signatures")

const (
	archiveFolder = "signatures"
	manifestName  = "manifest.json"
)

// Entry is one signature offered for export
type Entry struct {
	ID             int64
	Label          string
	RecognizedText string
	State          string
	Artifact       []byte
}

// ManifestItem describes one file in the archive
type ManifestItem struct {
	File           string `json:"file"`
	ID             int64  `json:"id"`
	Label          string `json:"label"`
	RecognizedText string `json:"recognized_text,omitempty"`
	State          string `json:"state"`
}

// Manifest is written next to the images as manifest.json
type Manifest struct {
	CreatedAt  time.Time      `json:"created_at"`
	Signatures []ManifestItem `json:"signatures"`
}

// ArchiveName returns the download name for an archive created at t
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("signatures_%s.zip", t.Format("2006-01-02"))
}

// WriteZip writes one PNG per entry under signatures/ plus the manifest.
// Entries without an artifact are skipped; if none remain nothing is written
// and ErrNothingToExport is returned.
func WriteZip(w io.Writer, entries []Entry, now time.Time) (*Manifest, error) {
	manifest := &Manifest{CreatedAt: now.UTC()}
	namer := NewNamer()

	exportable := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if len(e.Artifact) > 0 {
			exportable = append(exportable, e)
		}
	}
	if len(exportable) == 0 {
		return nil, ErrNothingToExport
	}

	zw := zip.NewWriter(w)
	for _, e := range exportable {
		file := path.Join(archiveFolder, namer.Name(e.Label, e.ID)+".png")

		// PNG data is already deflated
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     file,
			Method:   zip.Store,
			Modified: now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", file, err)
		}
		if _, err := fw.Write(e.Artifact); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", file, err)
		}

		manifest.Signatures = append(manifest.Signatures, ManifestItem{
			File:           file,
			ID:             e.ID,
			Label:          e.Label,
			RecognizedText: e.RecognizedText,
			State:          e.State,
		})
	}

	fw, err := zw.Create(manifestName)
	if err != nil {
		return nil, fmt.Errorf("failed to add manifest: %w", err)
	}
	enc := json.NewEncoder(fw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return manifest, nil
}
