// Package geometry maps pointer input between viewport, content and source
// pixel coordinates under zoom and pan.
package geometry

import (
	"image"
	"math"
)

// MinSelectionSize is the smallest width or height, in content pixels, that a
// selection must reach before it becomes a signature.
const MinSelectionSize = 5.0

// Point is a real-valued position in a single coordinate space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+q
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p-q
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Mul scales both components by k
func (p Point) Mul(k float64) Point { return Point{X: p.X * k, Y: p.Y * k} }

// Size is a width/height pair, used for rendered and natural image sizes
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsEmpty reports whether either dimension is non-positive
func (s Size) IsEmpty() bool { return s.Width <= 0 || s.Height <= 0 }

// Center returns the midpoint of a viewport of this size
func (s Size) Center() Point { return Point{X: s.Width / 2, Y: s.Height / 2} }

// Rect is an axis-aligned rectangle with non-negative width and height
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NormalizeDrag builds the rectangle spanned by a drag from start to end,
// whichever direction the pointer moved.
func NormalizeDrag(start, end Point) Rect {
	dx := end.X - start.X
	dy := end.Y - start.Y

	r := Rect{X: start.X, Y: start.Y, Width: math.Abs(dx), Height: math.Abs(dy)}
	if dx < 0 {
		r.X = end.X
	}
	if dy < 0 {
		r.Y = end.Y
	}
	return r
}

// IsNoise reports whether the rectangle is too small to be a deliberate selection
func (r Rect) IsNoise() bool {
	return r.Width < MinSelectionSize || r.Height < MinSelectionSize
}

// IsEmpty reports whether the rectangle has no area
func (r Rect) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Image rounds the rectangle onto the integer pixel grid.
func (r Rect) Image() image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.Width))
	y1 := int(math.Round(r.Y + r.Height))
	return image.Rect(x0, y0, x1, y1)
}

// ToSourcePixels rescales a rectangle measured against the rendered image into
// the natural image's pixel grid. Each axis uses its own ratio.
func ToSourcePixels(contentRect Rect, rendered, natural Size) Rect {
	if rendered.IsEmpty() {
		return Rect{}
	}
	ratioX := natural.Width / rendered.Width
	ratioY := natural.Height / rendered.Height

	return Rect{
		X:      contentRect.X * ratioX,
		Y:      contentRect.Y * ratioY,
		Width:  contentRect.Width * ratioX,
		Height: contentRect.Height * ratioY,
	}
}
