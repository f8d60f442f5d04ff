package viewport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScreenMapRoundTrip(t *testing.T) {
	limits := DefaultScaleLimits
	pointers := []Point{{0, 0}, {123.4, 567.8}, {-50, 1e4}, {1920, 1080}}

	for _, scale := range []float64{limits.Min, 1.0, limits.Max} {
		tr := Transform{PanX: -310.5, PanY: 42.25, Scale: scale}
		for _, p := range pointers {
			back := tr.MapToScreen(tr.ScreenToMap(p))
			assert.InDelta(t, p.X, back.X, 1e-9)
			assert.InDelta(t, p.Y, back.Y, 1e-9)
		}
	}
}

func TestZoomAtKeepsPointerAnchored(t *testing.T) {
	tests := []struct {
		name     string
		start    Transform
		pointer  Point
		newScale float64
	}{
		{"zoom in", Transform{PanX: -100, PanY: -200, Scale: 1}, Point{400, 300}, 1.1},
		{"zoom out", Transform{PanX: -900, PanY: -50, Scale: 2.5}, Point{10, 700}, 2.5 / 1.1},
		{"clamped to max", Transform{PanX: 0, PanY: 0, Scale: 3.9}, Point{640, 400}, 10},
		{"clamped to min", Transform{PanX: 20, PanY: 30, Scale: 0.25}, Point{5, 5}, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.start.ScreenToMap(tt.pointer)
			after := tt.start.ZoomAt(tt.pointer, tt.newScale, DefaultScaleLimits)

			assert.GreaterOrEqual(t, after.Scale, DefaultScaleLimits.Min)
			assert.LessOrEqual(t, after.Scale, DefaultScaleLimits.Max)
			under := after.ScreenToMap(tt.pointer)
			assert.InDelta(t, before.X, under.X, 1e-9)
			assert.InDelta(t, before.Y, under.Y, 1e-9)
		})
	}
}

func TestClampPan(t *testing.T) {
	viewport := Size{Width: 1000, Height: 800}

	// 缩小后地图比视口小：居中
	small := Transform{PanX: 999, PanY: -999, Scale: 0.2}.ClampPan(viewport, MapBounds)
	assert.InDelta(t, (1000-2600*0.2)/2, small.PanX, 1e-9)
	assert.InDelta(t, (800-3500*0.2)/2, small.PanY, 1e-9)

	// 放大后地图比视口大：不露出边界
	big := Transform{PanX: 50, PanY: -10000, Scale: 1}.ClampPan(viewport, MapBounds)
	assert.Equal(t, 0.0, big.PanX)
	assert.Equal(t, 800-3500.0, big.PanY)

	inside := Transform{PanX: -300, PanY: -400, Scale: 1}.ClampPan(viewport, MapBounds)
	assert.Equal(t, -300.0, inside.PanX)
	assert.Equal(t, -400.0, inside.PanY)
}

func TestPercentConversionAndClamp(t *testing.T) {
	x, y := MapBounds.ToPercent(Point{1300, 875})
	assert.InDelta(t, 50.0, x, 1e-9)
	assert.InDelta(t, 25.0, y, 1e-9)

	p := MapBounds.FromPercent(x, y)
	assert.InDelta(t, 1300.0, p.X, 1e-9)
	assert.InDelta(t, 875.0, p.Y, 1e-9)

	assert.Equal(t, Point{0, 3500}, MapBounds.ClampPoint(Point{-5, 9999}))
}

func TestReadoutMeasuresYFromBottom(t *testing.T) {
	x, y := MapBounds.Readout(Point{100.4, 0})
	assert.Equal(t, 100, x)
	assert.Equal(t, 3500, y)

	x, y = MapBounds.Readout(Point{-20, 3499.6})
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)

	x, y = MapBounds.Readout(Point{5000, -10})
	assert.Equal(t, 2600, x)
	assert.Equal(t, 3500, y)
}

func TestFocusOnCentersVisibleArea(t *testing.T) {
	viewport := Size{Width: 1600, Height: 900}
	target := Point{590, 1905}

	tr := FocusOn(target, 1.4, viewport, 320)
	screen := tr.MapToScreen(target)

	assert.InDelta(t, 320+(1600-320)/2.0, screen.X, 1e-9)
	assert.InDelta(t, 450.0, screen.Y, 1e-9)
}
