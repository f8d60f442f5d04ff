// internal/api/websocket.go
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Corphon/DragonSwordMap/internal/models"
	"github.com/Corphon/DragonSwordMap/internal/viewport"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 4096
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// 客户端发来的消息类型
const (
	msgPointerDown = "pointer_down"
	msgPointerMove = "pointer_move"
	msgPointerUp   = "pointer_up"
	msgFilterDown  = "filter_down"
	msgFilterUp    = "filter_up"
	msgWheel       = "wheel"
	msgResize      = "resize"
	msgModal       = "modal"
	msgFocus       = "focus"
	msgReadout     = "readout"
)

// ViewportMessage 客户端指针事件
type ViewportMessage struct {
	Type       string         `json:"type"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	DeltaY     float64        `json:"delta_y"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	Open       bool           `json:"open"`
	Category   models.PinType `json:"category"`
	LocationID string         `json:"location_id"`
	Sidebar    *bool          `json:"sidebar"`
}

// ViewportClient 一个视口连接及其手势控制器
type ViewportClient struct {
	id        string
	conn      *websocket.Conn
	mode      models.EntryMode
	ctrl      *viewport.Controller
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closed    int32
	createdAt time.Time
}

func newViewportClient(conn *websocket.Conn, mode models.EntryMode) *ViewportClient {
	return &ViewportClient{
		id:        uuid.NewString(),
		conn:      conn,
		mode:      mode,
		send:      make(chan []byte, 64),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
}

// Close 安全关闭客户端连接
func (client *ViewportClient) Close() {
	client.closeOnce.Do(func() {
		atomic.StoreInt32(&client.closed, 1)
		close(client.done)
		client.conn.Close()
	})
}

// IsClosed 检查连接是否已关闭
func (client *ViewportClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// SendMessage 非阻塞发送，队列满时丢弃
func (client *ViewportClient) SendMessage(message map[string]interface{}) {
	if client.IsClosed() {
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ 序列化视口消息失败: %v", err)
		return
	}
	select {
	case client.send <- msgBytes:
	case <-client.done:
	default:
		log.Printf("⚠️ 视口客户端 %s 消息队列已满，消息被丢弃", client.id)
	}
}

// SendError 发送错误消息到客户端
func (client *ViewportClient) SendError(errorMsg string) {
	client.SendMessage(map[string]interface{}{
		"type":      "error",
		"error":     errorMsg,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (client *ViewportClient) sendState() {
	client.SendMessage(map[string]interface{}{
		"type":      "state",
		"state":     client.ctrl.State().String(),
		"transform": client.ctrl.Transform(),
	})
}

// writePump 唯一的写协程
func (client *ViewportClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case msg := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.done:
			return
		}
	}
}

// ViewportHub 管理所有视口连接
type ViewportHub struct {
	mu      sync.RWMutex
	clients map[string]*ViewportClient
}

// NewViewportHub 创建连接管理器
func NewViewportHub() *ViewportHub {
	return &ViewportHub{clients: make(map[string]*ViewportClient)}
}

func (hub *ViewportHub) add(client *ViewportClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.clients[client.id] = client
	log.Printf("✅ 视口客户端已连接 %s (模式: %s)", client.id, client.mode)
}

func (hub *ViewportHub) remove(client *ViewportClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	delete(hub.clients, client.id)
	log.Printf("🔌 视口客户端已断开 %s", client.id)
}

// Count 当前连接数
func (hub *ViewportHub) Count() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients)
}

// GetStatus 获取管理器状态
func (hub *ViewportHub) GetStatus() map[string]interface{} {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	clients := make([]map[string]interface{}, 0, len(hub.clients))
	for _, client := range hub.clients {
		clients = append(clients, map[string]interface{}{
			"id":           client.id,
			"mode":         client.mode,
			"state":        client.ctrl.State().String(),
			"connected_at": client.createdAt.Format(time.RFC3339),
		})
	}
	return map[string]interface{}{
		"total_connections": len(hub.clients),
		"clients":           clients,
	}
}

// Shutdown 关闭所有连接
func (hub *ViewportHub) Shutdown() {
	hub.mu.Lock()
	clients := make([]*ViewportClient, 0, len(hub.clients))
	for _, client := range hub.clients {
		clients = append(clients, client)
	}
	hub.clients = make(map[string]*ViewportClient)
	hub.mu.Unlock()

	for _, client := range clients {
		client.ctrl.Close()
		client.Close()
	}
}

// GetViewportStatus 连接状态
func (h *Handler) GetViewportStatus(c *gin.Context) {
	h.Response.Success(c, h.hub.GetStatus())
}

// ViewportWebSocket 每个连接持有一个手势控制器，长按完成时推送 long_press 事件
func (h *Handler) ViewportWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ 视口 WebSocket 升级失败: %v", err)
		return
	}

	client := newViewportClient(conn, requestMode(c))
	client.ctrl = viewport.NewController(h.Viewport, nil, func(t viewport.Trigger) {
		h.onTrigger(client, t)
	})
	client.ctrl.SetMode(client.mode)

	h.hub.add(client)
	defer func() {
		client.ctrl.Close()
		client.Close()
		h.hub.remove(client)
	}()

	go client.writePump()

	client.SendMessage(map[string]interface{}{
		"type":      "hello",
		"mode":      client.mode,
		"state":     client.ctrl.State().String(),
		"transform": client.ctrl.Transform(),
	})

	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg ViewportMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ 视口连接异常关闭: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		h.handleViewportMessage(client, msg)
	}
}

func (h *Handler) handleViewportMessage(client *ViewportClient, msg ViewportMessage) {
	ctrl := client.ctrl
	p := viewport.Point{X: msg.X, Y: msg.Y}

	switch msg.Type {
	case msgPointerDown:
		ctrl.PointerDown(p)
	case msgPointerMove:
		ctrl.PointerMove(p)
	case msgPointerUp, msgFilterUp:
		ctrl.PointerUp()
	case msgFilterDown:
		if !ctrl.FilterDown(msg.Category) {
			client.SendError("该分类不支持长按批量操作")
			return
		}
	case msgWheel:
		if !ctrl.Wheel(p, msg.DeltaY) {
			return
		}
	case msgResize:
		if msg.Width <= 0 || msg.Height <= 0 {
			client.SendError("无效的视口尺寸")
			return
		}
		ctrl.SetViewport(viewport.Size{Width: msg.Width, Height: msg.Height})
	case msgModal:
		ctrl.SetModalOpen(msg.Open)
	case msgFocus:
		id := msg.LocationID
		if id == "" {
			id = models.DefaultLocationID
		}
		loc, ok := models.FindLocation(id)
		if !ok {
			client.SendError("地点不存在: " + id)
			return
		}
		inset := viewport.SidebarWidth
		if msg.Sidebar != nil && !*msg.Sidebar {
			inset = 0
		}
		ctrl.Focus(loc.X, loc.Y, models.FocusZoom, inset)
	case msgReadout:
		x, y := ctrl.Readout(p)
		client.SendMessage(map[string]interface{}{"type": "readout", "x": x, "y": y})
		return
	default:
		client.SendError("未知的消息类型: " + msg.Type)
		return
	}
	client.sendState()
}

// onTrigger 地图长按转为创建标记提示，分类长按转为批量操作提示
func (h *Handler) onTrigger(client *ViewportClient, t viewport.Trigger) {
	event := map[string]interface{}{
		"type":    "long_press",
		"trigger": t,
	}
	if t.Kind == viewport.PressFilter {
		ma := h.PinService.MassAction(t.Category)
		if ma.Action == models.MassActionNone {
			return
		}
		event["mass_action"] = ma
	}
	client.SendMessage(event)
}
