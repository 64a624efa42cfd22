package extractor

import (
	"image"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Stats describes the ink left after background removal
type Stats struct {
	// InkCoverage is the share of opaque pixels, 0..1
	InkCoverage float64 `json:"ink_coverage"`
	// InkMean is the mean channel intensity of opaque pixels, 0..255
	InkMean float64 `json:"ink_mean"`
	// InkStdDev is the standard deviation of that intensity
	InkStdDev float64 `json:"ink_std_dev"`
	// OpaquePixels counts pixels kept as strokes
	OpaquePixels int `json:"opaque_pixels"`
}

// statsCalculator implements StatsCalculator using Gonum
type statsCalculator struct {
	slicePool sync.Pool
}

// NewStatsCalculator creates a Gonum-backed stats calculator
func NewStatsCalculator() StatsCalculator {
	return &statsCalculator{
		slicePool: sync.Pool{
			New: func() interface{} {
				return make([]float64, 0, 4096)
			},
		},
	}
}

// Calculate collects the intensity of every opaque pixel and summarises it
func (sc *statsCalculator) Calculate(img *image.NRGBA) Stats {
	if img == nil || len(img.Pix) == 0 {
		return Stats{}
	}

	data := sc.slicePool.Get().([]float64)[:0]
	defer func() { sc.slicePool.Put(data[:0]) }()

	total := 0
	for i := 0; i+3 < len(img.Pix); i += 4 {
		total++
		if img.Pix[i+3] == 0 {
			continue
		}
		sum := int(img.Pix[i]) + int(img.Pix[i+1]) + int(img.Pix[i+2])
		data = append(data, float64(sum)/3)
	}

	if len(data) == 0 {
		return Stats{}
	}

	mean, std := stat.MeanStdDev(data, nil)
	if len(data) < 2 {
		std = 0
	}
	return Stats{
		InkCoverage:  float64(len(data)) / float64(total),
		InkMean:      mean,
		InkStdDev:    std,
		OpaquePixels: len(data),
	}
}
