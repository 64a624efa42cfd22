package extractor

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// Tuned for what a person sees when downloading the signature. These are
// deliberately independent of the recognition pass constants.
const (
	// backgroundThreshold: a pixel is paper when every channel exceeds it
	backgroundThreshold = 200
	// faintStrokeAverage: strokes whose channel average is below it get darkened
	faintStrokeAverage = 180
	// strokeDarkening is subtracted from each channel of a faint stroke
	strokeDarkening = 60
)

// removeBackground copies bounds out of src without resampling, makes paper
// pixels fully transparent and strokes fully opaque, and darkens faint strokes.
func removeBackground(src image.Image, bounds image.Rectangle) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Copy(dst, image.Point{}, src, bounds, xdraw.Src, nil)

	pix := dst.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		r, g, b := int(pix[i]), int(pix[i+1]), int(pix[i+2])

		if r > backgroundThreshold && g > backgroundThreshold && b > backgroundThreshold {
			pix[i+3] = 0
			continue
		}

		if r+g+b < faintStrokeAverage*3 {
			pix[i] = clampSub(r, strokeDarkening)
			pix[i+1] = clampSub(g, strokeDarkening)
			pix[i+2] = clampSub(b, strokeDarkening)
		}
		pix[i+3] = 255
	}
	return dst
}

// clampSub returns v-d floored at zero
func clampSub(v, d int) uint8 {
	if v <= d {
		return 0
	}
	return uint8(v - d)
}
