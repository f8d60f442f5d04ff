// Package viewport 屏幕坐标与地图坐标的换算，以及平移、缩放和长按手势的状态机。
package viewport

import (
	"math"

	"github.com/Corphon/DragonSwordMap/internal/models"
)

// Point 二维坐标，屏幕像素或地图像素
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size 视口尺寸（屏幕像素）
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Bounds 地图尺寸（地图像素）
type Bounds struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// MapBounds 默认画布
var MapBounds = Bounds{Width: models.MapWidth, Height: models.MapHeight}

// ScaleLimits 缩放范围
type ScaleLimits struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultScaleLimits 默认缩放范围
var DefaultScaleLimits = ScaleLimits{Min: 0.2, Max: 4.0}

// SidebarWidth 侧边栏展开时遮挡的左侧宽度
const SidebarWidth = 320.0

// Clamp 将缩放限制在范围内
func (l ScaleLimits) Clamp(scale float64) float64 {
	return math.Max(l.Min, math.Min(l.Max, scale))
}

// Transform 当前平移与缩放：screen = map*Scale + Pan
type Transform struct {
	PanX  float64 `json:"pan_x"`
	PanY  float64 `json:"pan_y"`
	Scale float64 `json:"scale"`
}

// Identity 无平移、缩放为 1
func Identity() Transform {
	return Transform{Scale: 1}
}

// ScreenToMap 屏幕坐标转地图坐标，不做裁剪
func (t Transform) ScreenToMap(p Point) Point {
	return Point{
		X: (p.X - t.PanX) / t.Scale,
		Y: (p.Y - t.PanY) / t.Scale,
	}
}

// MapToScreen 地图坐标转屏幕坐标
func (t Transform) MapToScreen(p Point) Point {
	return Point{
		X: p.X*t.Scale + t.PanX,
		Y: p.Y*t.Scale + t.PanY,
	}
}

// ZoomAt 以指针为锚点缩放，指针下的地图点在缩放后仍位于指针下。
// 平移不做裁剪，由调用方决定是否 ClampPan。
func (t Transform) ZoomAt(pointer Point, newScale float64, limits ScaleLimits) Transform {
	anchor := t.ScreenToMap(pointer)
	scale := limits.Clamp(newScale)
	return Transform{
		PanX:  pointer.X - anchor.X*scale,
		PanY:  pointer.Y - anchor.Y*scale,
		Scale: scale,
	}
}

// ClampPan 缩放后的地图小于视口时居中，否则不露出地图外区域
func (t Transform) ClampPan(viewport Size, b Bounds) Transform {
	t.PanX = clampAxis(t.PanX, viewport.Width, b.Width*t.Scale)
	t.PanY = clampAxis(t.PanY, viewport.Height, b.Height*t.Scale)
	return t
}

func clampAxis(pan, viewport, scaled float64) float64 {
	if scaled <= viewport {
		return (viewport - scaled) / 2
	}
	return math.Max(viewport-scaled, math.Min(0, pan))
}

// FocusOn 将地图点放到视口可见区域中央，leftInset 为侧边栏占用的宽度
func FocusOn(target Point, scale float64, viewport Size, leftInset float64) Transform {
	centerX := leftInset + (viewport.Width-leftInset)/2
	return Transform{
		PanX:  centerX - target.X*scale,
		PanY:  viewport.Height/2 - target.Y*scale,
		Scale: scale,
	}
}

// ClampPoint 将地图点限制在画布内，落点持久化前调用
func (b Bounds) ClampPoint(p Point) Point {
	return Point{
		X: math.Max(0, math.Min(b.Width, p.X)),
		Y: math.Max(0, math.Min(b.Height, p.Y)),
	}
}

// ToPercent 地图像素转存储用的百分比坐标
func (b Bounds) ToPercent(p Point) (x, y float64) {
	return p.X / b.Width * 100, p.Y / b.Height * 100
}

// FromPercent 百分比坐标转地图像素
func (b Bounds) FromPercent(x, y float64) Point {
	return Point{X: x / 100 * b.Width, Y: y / 100 * b.Height}
}

// Readout 鼠标位置显示：整数像素，裁剪到画布，Y 轴自底向上
func (b Bounds) Readout(p Point) (x, y int) {
	x = int(math.Round(math.Max(0, math.Min(b.Width, p.X))))
	y = int(math.Round(math.Max(0, math.Min(b.Height, b.Height-p.Y))))
	return x, y
}
