package geometry

const (
	// WheelSensitivity converts wheel delta units into scale units
	WheelSensitivity = 0.001
	// ZoomStep is the factor applied by zoom in/out buttons
	ZoomStep = 1.2
)

// Limits bounds the scale a viewport may take
type Limits struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

var (
	// CanvasLimits applies to the main document canvas
	CanvasLimits = Limits{Min: 0.1, Max: 5.0}
	// PreviewLimits applies to the signature detail preview
	PreviewLimits = Limits{Min: 0.1, Max: 10.0}
)

// Clamp forces s into [Min, Max]
func (l Limits) Clamp(s float64) float64 {
	if s < l.Min {
		return l.Min
	}
	if s > l.Max {
		return l.Max
	}
	return s
}

// Transform maps content coordinates to the viewport: viewport = content*Scale + Pan.
type Transform struct {
	Scale float64 `json:"scale"`
	Pan   Point   `json:"pan"`
}

// Identity is the unzoomed, unpanned transform
func Identity() Transform { return Transform{Scale: 1} }

// ToContent converts a viewport point into content space
func ToContent(p Point, t Transform) Point {
	return p.Sub(t.Pan).Mul(1 / t.Scale)
}

// ToViewport converts a content point into viewport space
func ToViewport(p Point, t Transform) Point {
	return p.Mul(t.Scale).Add(t.Pan)
}

// ToContentRect converts both corners of a viewport rectangle into content space.
func ToContentRect(r Rect, t Transform) Rect {
	return NormalizeDrag(
		ToContent(Point{X: r.X, Y: r.Y}, t),
		ToContent(Point{X: r.X + r.Width, Y: r.Y + r.Height}, t),
	)
}

// ZoomAt returns the transform with newScale whose pan keeps the content point
// under anchor fixed on screen.
func ZoomAt(anchor Point, old Transform, newScale float64) Transform {
	contentAnchor := ToContent(anchor, old)
	return Transform{
		Scale: newScale,
		Pan:   anchor.Sub(contentAnchor.Mul(newScale)),
	}
}

// Viewport is a transform that is only ever changed through clamped zoom and
// pan operations.
type Viewport struct {
	transform Transform
	limits    Limits
}

// NewViewport creates an identity viewport bounded by limits
func NewViewport(limits Limits) *Viewport {
	return &Viewport{transform: Identity(), limits: limits}
}

// Transform returns the current transform
func (v *Viewport) Transform() Transform { return v.transform }

// Limits returns the scale range of the viewport
func (v *Viewport) Limits() Limits { return v.limits }

// Wheel zooms around anchor by a wheel delta; negative deltaY zooms in.
func (v *Viewport) Wheel(anchor Point, deltaY float64) Transform {
	newScale := v.limits.Clamp(v.transform.Scale - deltaY*WheelSensitivity)
	v.transform = ZoomAt(anchor, v.transform, newScale)
	return v.transform
}

// ZoomIn multiplies the scale by ZoomStep around anchor
func (v *Viewport) ZoomIn(anchor Point) Transform {
	return v.zoomTo(anchor, v.transform.Scale*ZoomStep)
}

// ZoomOut divides the scale by ZoomStep around anchor
func (v *Viewport) ZoomOut(anchor Point) Transform {
	return v.zoomTo(anchor, v.transform.Scale/ZoomStep)
}

func (v *Viewport) zoomTo(anchor Point, scale float64) Transform {
	v.transform = ZoomAt(anchor, v.transform, v.limits.Clamp(scale))
	return v.transform
}

// ScaleTo sets the scale without moving the pan
func (v *Viewport) ScaleTo(scale float64) Transform {
	v.transform.Scale = v.limits.Clamp(scale)
	return v.transform
}

// PanBy moves the content by a viewport-space delta
func (v *Viewport) PanBy(dx, dy float64) Transform {
	v.transform.Pan = v.transform.Pan.Add(Point{X: dx, Y: dy})
	return v.transform
}

// Reset restores the identity transform
func (v *Viewport) Reset() Transform {
	v.transform = Identity()
	return v.transform
}
