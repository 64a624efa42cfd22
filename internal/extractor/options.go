package extractor

// Options configures encoding and size guards for extraction
type Options struct {
	// JPEGQuality of the recognition artifact, 1..100
	JPEGQuality int
	// MaxPixels rejects crops whose clamped area exceeds it; 0 disables the guard
	MaxPixels int
	// SkipStats disables the ink statistics pass
	SkipStats bool
}

// DefaultOptions returns the options used by the service
func DefaultOptions() Options {
	return Options{
		JPEGQuality: 90,
		MaxPixels:   40_000_000,
		SkipStats:   false,
	}
}

// WithJPEGQuality overrides the JPEG quality, ignoring out-of-range values
func (opts Options) WithJPEGQuality(quality int) Options {
	if quality >= 1 && quality <= 100 {
		opts.JPEGQuality = quality
	}
	return opts
}

// WithMaxPixels overrides the crop area guard
func (opts Options) WithMaxPixels(maxPixels int) Options {
	opts.MaxPixels = maxPixels
	return opts
}

// WithoutStats disables the statistics pass
func (opts Options) WithoutStats() Options {
	opts.SkipStats = true
	return opts
}
