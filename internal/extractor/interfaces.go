package extractor

import "image"

// Extractor turns a source-pixel rectangle of a document into signature artifacts
type Extractor interface {
	Extract(src image.Image, crop image.Rectangle) (*Result, error)
}

// StatsCalculator summarises the ink content of a transparent artifact
type StatsCalculator interface {
	Calculate(img *image.NRGBA) Stats
}
