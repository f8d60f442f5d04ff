// internal/viewport/controller.go
package viewport

import (
	"math"
	"sync"
	"time"

	"github.com/Corphon/DragonSwordMap/internal/models"
)

// State 手势状态
type State int

const (
	StateIdle State = iota
	StatePanning
	StateLongPressPending
	StateLongPressFired
)

func (s State) String() string {
	switch s {
	case StatePanning:
		return "panning"
	case StateLongPressPending:
		return "long_press_pending"
	case StateLongPressFired:
		return "long_press_fired"
	default:
		return "idle"
	}
}

// PressKind 长按来源
type PressKind string

const (
	PressMap    PressKind = "map"    // 地图长按：管理员放置标记
	PressFilter PressKind = "filter" // 分类按钮长按：用户批量操作
)

// Trigger 长按完成时发出的事件，坐标取按下时刻
type Trigger struct {
	Kind     PressKind      `json:"kind"`
	Screen   Point          `json:"screen"`
	Map      Point          `json:"map"`
	XPct     float64        `json:"x_pct"`
	YPct     float64        `json:"y_pct"`
	Category models.PinType `json:"category,omitempty"`
}

// Config 控制器参数
type Config struct {
	MapPressDelay    time.Duration
	FilterPressDelay time.Duration
	MoveThreshold    float64 // 超过该距离（屏幕像素）视为拖动
	WheelStep        float64 // 每次滚轮的缩放倍数
	Limits           ScaleLimits
	Viewport         Size
	Bounds           Bounds
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		MapPressDelay:    1000 * time.Millisecond,
		FilterPressDelay: 2000 * time.Millisecond,
		MoveThreshold:    5,
		WheelStep:        1.1,
		Limits:           DefaultScaleLimits,
		Viewport:         Size{Width: 1280, Height: 800},
		Bounds:           MapBounds,
	}
}

// Controller 平移、缩放和长按手势的状态机，可并发调用
type Controller struct {
	mu    sync.Mutex
	cfg   Config
	clock Clock

	mode      models.EntryMode
	modalOpen bool

	state     State
	transform Transform // 已提交的平移缩放
	live      Transform // 拖动中的平移

	// generation 每次按下或取消时递增，过期定时器据此丢弃
	generation uint64
	timer      Timer

	pressKind      PressKind
	pressScreen    Point
	pressTransform Transform
	pressCategory  models.PinType

	onTrigger func(Trigger)
}

// NewController 创建控制器，onTrigger 在定时器协程中调用
func NewController(cfg Config, clock Clock, onTrigger func(Trigger)) *Controller {
	if clock == nil {
		clock = RealClock()
	}
	if cfg.Bounds.Width == 0 || cfg.Bounds.Height == 0 {
		cfg.Bounds = MapBounds
	}
	if cfg.Limits.Max <= 0 || cfg.Limits.Min <= 0 || cfg.Limits.Min > cfg.Limits.Max {
		cfg.Limits = DefaultScaleLimits
	}
	if cfg.WheelStep <= 1 {
		cfg.WheelStep = 1.1
	}
	t := Identity().ClampPan(cfg.Viewport, cfg.Bounds)
	return &Controller{
		cfg:       cfg,
		clock:     clock,
		mode:      models.ModeNone,
		transform: t,
		live:      t,
		onTrigger: onTrigger,
	}
}

// SetMode 切换入口模式，决定哪种长按生效
func (c *Controller) SetMode(mode models.EntryMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
}

// SetModalOpen 打开弹窗时取消未完成的长按并禁用滚轮缩放
func (c *Controller) SetModalOpen(open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modalOpen = open
	if open && c.state == StateLongPressPending {
		c.cancelLocked()
		c.state = StateIdle
	}
}

// SetViewport 视口尺寸变化后重新裁剪平移
func (c *Controller) SetViewport(size Size) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Viewport = size
	c.transform = c.transform.ClampPan(size, c.cfg.Bounds)
	c.live = c.transform
}

// State 当前状态
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transform 当前显示用的平移缩放（拖动中返回实时值）
func (c *Controller) Transform() Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StatePanning {
		return c.live
	}
	return c.transform
}

// PointerDown 地图上按下。管理员模式且无弹窗时开始 1 秒长按计时，否则直接进入拖动
func (c *Controller) PointerDown(p Point) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	c.pressKind = PressMap
	c.pressScreen = p
	c.pressTransform = c.transform
	c.pressCategory = ""
	c.live = c.transform

	if c.mode != models.ModeAdmin || c.modalOpen {
		c.state = StatePanning
		return
	}
	c.startTimerLocked(c.cfg.MapPressDelay)
}

// FilterDown 分类按钮按下。仅用户模式下支持批量操作的分类会开始 2 秒计时
func (c *Controller) FilterDown(category models.PinType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != models.ModeUser || !category.MassActionEligible() || c.modalOpen {
		return false
	}
	c.cancelLocked()
	c.pressKind = PressFilter
	c.pressCategory = category
	c.startTimerLocked(c.cfg.FilterPressDelay)
	return true
}

// PointerMove 移动超过阈值时取消长按并开始拖动
func (c *Controller) PointerMove(p Point) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateLongPressPending:
		if c.pressKind != PressMap {
			return
		}
		if math.Hypot(p.X-c.pressScreen.X, p.Y-c.pressScreen.Y) <= c.cfg.MoveThreshold {
			return
		}
		c.cancelLocked()
		c.state = StatePanning
		fallthrough
	case StatePanning:
		c.live = Transform{
			PanX:  c.pressTransform.PanX + p.X - c.pressScreen.X,
			PanY:  c.pressTransform.PanY + p.Y - c.pressScreen.Y,
			Scale: c.pressTransform.Scale,
		}.ClampPan(c.cfg.Viewport, c.cfg.Bounds)
	}
}

// PointerUp 取消未完成的计时；拖动中则提交平移
func (c *Controller) PointerUp() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	if c.state == StatePanning {
		c.transform = c.live
	}
	c.live = c.transform
	c.state = StateIdle
}

// Wheel 以指针为锚点缩放，deltaY < 0 放大。弹窗打开时忽略
func (c *Controller) Wheel(p Point, deltaY float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.modalOpen || deltaY == 0 || c.state == StatePanning {
		return false
	}
	scale := c.transform.Scale * c.cfg.WheelStep
	if deltaY > 0 {
		scale = c.transform.Scale / c.cfg.WheelStep
	}
	if c.cfg.Limits.Clamp(scale) == c.transform.Scale {
		return false
	}
	next := c.transform.ZoomAt(p, scale, c.cfg.Limits).ClampPan(c.cfg.Viewport, c.cfg.Bounds)
	changed := next != c.transform
	c.transform = next
	c.live = next
	return changed
}

// Focus 跳转到百分比坐标处，使用固定缩放
func (c *Controller) Focus(xPct, yPct, scale, leftInset float64) Transform {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.cfg.Bounds.FromPercent(xPct, yPct)
	c.transform = FocusOn(target, c.cfg.Limits.Clamp(scale), c.cfg.Viewport, leftInset).
		ClampPan(c.cfg.Viewport, c.cfg.Bounds)
	c.live = c.transform
	return c.transform
}

// Readout 屏幕坐标对应的画布读数
func (c *Controller) Readout(p Point) (x, y int) {
	c.mu.Lock()
	t := c.transform
	b := c.cfg.Bounds
	c.mu.Unlock()
	return b.Readout(t.ScreenToMap(p))
}

// Close 取消所有计时
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
	c.state = StateIdle
}

func (c *Controller) startTimerLocked(d time.Duration) {
	c.state = StateLongPressPending
	gen := c.generation
	c.timer = c.clock.AfterFunc(d, func() { c.fire(gen) })
}

func (c *Controller) cancelLocked() {
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateLongPressPending {
		c.mu.Unlock()
		return
	}
	c.state = StateLongPressFired
	c.timer = nil

	trig := Trigger{Kind: c.pressKind, Category: c.pressCategory}
	if c.pressKind == PressMap {
		trig.Screen = c.pressScreen
		trig.Map = c.cfg.Bounds.ClampPoint(c.pressTransform.ScreenToMap(c.pressScreen))
		trig.XPct, trig.YPct = c.cfg.Bounds.ToPercent(trig.Map)
	}
	cb := c.onTrigger
	c.mu.Unlock()

	if cb != nil {
		cb(trig)
	}
}
