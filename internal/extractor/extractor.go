// Package extractor crops a signature out of a scanned document and produces
// a transparent artifact for people and a white-background artifact for the
// recognition service.
package extractor

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"time"
)

var (
	// ErrEmptyCrop means the crop rectangle does not intersect the source image
	ErrEmptyCrop = errors.New("crop rectangle does not intersect the image")

	// ErrCropTooLarge means the clamped crop exceeds the configured pixel budget
	ErrCropTooLarge = errors.New("crop rectangle exceeds the pixel limit")

	// ErrEnvironment means a raster buffer could not be produced or encoded
	ErrEnvironment = errors.New("raster environment unavailable")
)

// Result holds both artifacts of one extraction
type Result struct {
	// Bounds is the clamped crop in source pixels
	Bounds image.Rectangle

	// Transparent is the background-removed buffer behind PNG
	Transparent *image.NRGBA
	// PNG is the lossless, alpha-preserving user artifact
	PNG []byte

	// Flattened is the white-background buffer behind JPEG
	Flattened *image.RGBA
	// JPEG is the recognition artifact, without alpha
	JPEG []byte

	Stats             Stats
	ProcessingTimeSec float64
}

// IsEmpty reports whether nothing was extracted
func (r *Result) IsEmpty() bool {
	return r == nil || r.Bounds.Empty() || len(r.PNG) == 0
}

// RecognitionPayload returns the JPEG artifact as a bare base64 string, the
// form the recognition adapter expects.
func (r *Result) RecognitionPayload() string {
	if r == nil || len(r.JPEG) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(r.JPEG)
}

// engine implements Extractor
type engine struct {
	options Options
	stats   StatsCalculator
}

// NewExtractor creates an extractor with the given options
func NewExtractor(options Options) Extractor {
	return &engine{
		options: options,
		stats:   NewStatsCalculator(),
	}
}

// Extract copies crop out of src at 1:1 scale and runs both processing passes.
// A crop that misses the image yields a zero Result and ErrEmptyCrop.
func (e *engine) Extract(src image.Image, crop image.Rectangle) (*Result, error) {
	start := time.Now()

	if src == nil {
		return &Result{}, ErrEmptyCrop
	}
	bounds := crop.Canon().Intersect(src.Bounds())
	if bounds.Empty() {
		return &Result{}, ErrEmptyCrop
	}
	if e.options.MaxPixels > 0 && bounds.Dx()*bounds.Dy() > e.options.MaxPixels {
		return &Result{}, fmt.Errorf("%w: %dx%d", ErrCropTooLarge, bounds.Dx(), bounds.Dy())
	}

	result := &Result{Bounds: bounds}

	result.Transparent = removeBackground(src, bounds)
	png, err := encodePNG(result.Transparent)
	if err != nil {
		return &Result{}, fmt.Errorf("%w: %v", ErrEnvironment, err)
	}
	result.PNG = png

	result.Flattened = flattenForRecognition(src, bounds)
	jpg, err := encodeJPEG(result.Flattened, e.options.JPEGQuality)
	if err != nil {
		return &Result{}, fmt.Errorf("%w: %v", ErrEnvironment, err)
	}
	result.JPEG = jpg

	if !e.options.SkipStats {
		result.Stats = e.stats.Calculate(result.Transparent)
	}

	result.ProcessingTimeSec = time.Since(start).Seconds()
	return result, nil
}
