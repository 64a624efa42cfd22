package extractor

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// Tuned for recognizer accuracy; kept apart from the transparency constants.
const (
	// paperAverage: a pixel whose channel average exceeds it is forced to white
	paperAverage = 200
	// inkDarkening is subtracted from each channel of every other pixel
	inkDarkening = 50
)

// flattenForRecognition composites bounds of src over a pure white layer and
// raises stroke/background contrast. The output is opaque everywhere.
func flattenForRecognition(src image.Image, bounds image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	xdraw.Copy(dst, image.Point{}, src, bounds, xdraw.Over, nil)

	pix := dst.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		r, g, b := int(pix[i]), int(pix[i+1]), int(pix[i+2])

		if r+g+b > paperAverage*3 {
			pix[i], pix[i+1], pix[i+2] = 255, 255, 255
		} else {
			pix[i] = clampSub(r, inkDarkening)
			pix[i+1] = clampSub(g, inkDarkening)
			pix[i+2] = clampSub(b, inkDarkening)
		}
		pix[i+3] = 255
	}
	return dst
}
