package geometry

import (
	"image"
	"math"
	"testing"
)

const tolerance = 1e-9

func near(a, b float64) bool {
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func nearPoint(a, b Point) bool {
	return near(a.X, b.X) && near(a.Y, b.Y)
}

func TestToContent_RoundTrip(t *testing.T) {
	transforms := []Transform{
		Identity(),
		{Scale: 0.1, Pan: Point{X: -40, Y: 12}},
		{Scale: 1.5, Pan: Point{X: 200, Y: -150}},
		{Scale: 5.0, Pan: Point{X: 0.25, Y: 0.75}},
		{Scale: 3.3333, Pan: Point{X: -1e4, Y: 1e4}},
	}
	points := []Point{
		{X: 0, Y: 0},
		{X: 400, Y: 300},
		{X: -12.5, Y: 77.125},
		{X: 1e5, Y: -3},
	}

	for _, tr := range transforms {
		for _, p := range points {
			got := ToContent(ToViewport(p, tr), tr)
			if !nearPoint(got, p) {
				t.Errorf("ToContent(ToViewport(%v, %v)) = %v", p, tr, got)
			}
		}
	}
}

func TestZoomAt_AnchorInvariance(t *testing.T) {
	anchor := Point{X: 400, Y: 300}
	scales := []float64{0.1, 0.5, 1, 1.2, 2.75, 5}

	for _, first := range scales {
		for _, second := range scales {
			start := Transform{Scale: 1, Pan: Point{X: 33, Y: -17}}
			content := ToContent(anchor, start)

			t1 := ZoomAt(anchor, start, first)
			t2 := ZoomAt(anchor, t1, second)

			if got := ToViewport(content, t1); !nearPoint(got, anchor) {
				t.Errorf("after first zoom to %v anchor moved to %v", first, got)
			}
			if got := ToViewport(content, t2); !nearPoint(got, anchor) {
				t.Errorf("after zooms %v -> %v anchor moved to %v", first, second, got)
			}
		}
	}
}

func TestViewport_WheelZoomKeepsCursorPoint(t *testing.T) {
	v := NewViewport(CanvasLimits)
	cursor := Point{X: 400, Y: 300}
	before := ToContent(cursor, v.Transform())

	// deltaY of -500 at 0.001 sensitivity moves the scale from 1 to 1.5
	tr := v.Wheel(cursor, -500)

	if !near(tr.Scale, 1.5) {
		t.Fatalf("expected scale 1.5, got %v", tr.Scale)
	}
	if !nearPoint(tr.Pan, Point{X: -200, Y: -150}) {
		t.Errorf("expected pan (-200,-150), got %v", tr.Pan)
	}
	if got := ToViewport(before, tr); !nearPoint(got, cursor) {
		t.Errorf("content point moved to %v, want %v", got, cursor)
	}
}

func TestViewport_ClampsScale(t *testing.T) {
	tests := []struct {
		name   string
		limits Limits
		apply  func(v *Viewport) Transform
		want   float64
	}{
		{
			name:   "wheel past max",
			limits: CanvasLimits,
			apply:  func(v *Viewport) Transform { return v.Wheel(Point{}, -100000) },
			want:   5.0,
		},
		{
			name:   "wheel past min",
			limits: CanvasLimits,
			apply:  func(v *Viewport) Transform { return v.Wheel(Point{}, 100000) },
			want:   0.1,
		},
		{
			name:   "preview allows 10x",
			limits: PreviewLimits,
			apply:  func(v *Viewport) Transform { return v.ScaleTo(42) },
			want:   10.0,
		},
		{
			name:   "zoom out repeatedly",
			limits: CanvasLimits,
			apply: func(v *Viewport) Transform {
				var tr Transform
				for i := 0; i < 50; i++ {
					tr = v.ZoomOut(Point{X: 10, Y: 10})
				}
				return tr
			},
			want: 0.1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewViewport(tt.limits)
			if got := tt.apply(v).Scale; !near(got, tt.want) {
				t.Errorf("scale = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestViewport_ButtonZoomCentersOnViewport(t *testing.T) {
	v := NewViewport(CanvasLimits)
	v.PanBy(25, -40)
	center := Size{Width: 800, Height: 600}.Center()
	content := ToContent(center, v.Transform())

	v.ZoomIn(center)
	v.ZoomIn(center)
	v.ZoomOut(center)

	if !near(v.Transform().Scale, 1.2) {
		t.Errorf("expected scale 1.2, got %v", v.Transform().Scale)
	}
	if got := ToViewport(content, v.Transform()); !nearPoint(got, center) {
		t.Errorf("center drifted to %v", got)
	}
}

func TestViewport_PanAndReset(t *testing.T) {
	v := NewViewport(CanvasLimits)
	v.ZoomIn(Point{X: 5, Y: 5})
	v.PanBy(10, 20)
	v.PanBy(-4, 1)

	v.Reset()
	if v.Transform() != Identity() {
		t.Errorf("expected identity after reset, got %v", v.Transform())
	}
}

func TestNormalizeDrag(t *testing.T) {
	tests := []struct {
		name       string
		start, end Point
		want       Rect
	}{
		{"down right", Point{100, 100}, Point{250, 160}, Rect{100, 100, 150, 60}},
		{"up left", Point{250, 160}, Point{100, 100}, Rect{100, 100, 150, 60}},
		{"down left", Point{250, 100}, Point{100, 160}, Rect{100, 100, 150, 60}},
		{"zero", Point{7, 7}, Point{7, 7}, Rect{7, 7, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDrag(tt.start, tt.end); got != tt.want {
				t.Errorf("NormalizeDrag() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRect_IsNoise(t *testing.T) {
	tests := []struct {
		rect Rect
		want bool
	}{
		{Rect{Width: 4.99, Height: 100}, true},
		{Rect{Width: 100, Height: 4}, true},
		{Rect{Width: 0, Height: 0}, true},
		{Rect{Width: 5, Height: 5}, false},
		{Rect{Width: 150, Height: 60}, false},
	}

	for _, tt := range tests {
		if got := tt.rect.IsNoise(); got != tt.want {
			t.Errorf("%v.IsNoise() = %v, want %v", tt.rect, got, tt.want)
		}
	}
}

func TestToSourcePixels(t *testing.T) {
	tests := []struct {
		name              string
		rect              Rect
		rendered, natural Size
		want              Rect
	}{
		{
			name:     "unit ratio",
			rect:     Rect{100, 100, 150, 60},
			rendered: Size{1000, 800},
			natural:  Size{1000, 800},
			want:     Rect{100, 100, 150, 60},
		},
		{
			name:     "downscaled render",
			rect:     Rect{10, 20, 30, 40},
			rendered: Size{500, 400},
			natural:  Size{1000, 800},
			want:     Rect{20, 40, 60, 80},
		},
		{
			name:     "independent axes",
			rect:     Rect{10, 10, 10, 10},
			rendered: Size{100, 100},
			natural:  Size{300, 50},
			want:     Rect{30, 5, 30, 5},
		},
		{
			name:     "empty rendered size",
			rect:     Rect{10, 10, 10, 10},
			rendered: Size{},
			natural:  Size{300, 50},
			want:     Rect{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToSourcePixels(tt.rect, tt.rendered, tt.natural); got != tt.want {
				t.Errorf("ToSourcePixels() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRect_Image(t *testing.T) {
	got := Rect{X: 99.6, Y: 100.2, Width: 150, Height: 60}.Image()
	want := image.Rect(100, 100, 250, 160)
	if got != want {
		t.Errorf("Image() = %v, want %v", got, want)
	}
}
