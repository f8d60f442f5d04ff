// internal/api/handlers.go
package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/DragonSwordMap/internal/config"
	apperrors "github.com/Corphon/DragonSwordMap/internal/errors"
	"github.com/Corphon/DragonSwordMap/internal/llm"
	"github.com/Corphon/DragonSwordMap/internal/models"
	"github.com/Corphon/DragonSwordMap/internal/pincsv"
	"github.com/Corphon/DragonSwordMap/internal/services"
	"github.com/Corphon/DragonSwordMap/internal/utils"
	"github.com/Corphon/DragonSwordMap/internal/viewport"
)

// maxUploadSize 导入文件大小上限
const maxUploadSize = 8 << 20

// Handler 处理API请求
type Handler struct {
	PinService     *services.PinService     // 标记存储
	SessionService *services.SessionService // 会话与提示
	SageService    *services.SageService    // 大贤者
	Metrics        *utils.MetricsCollector
	Viewport       viewport.Config // 每个 WebSocket 连接的控制器参数
	Response       *ResponseHelper

	hub *ViewportHub
	now func() time.Time
}

// NewHandler 创建处理器
func NewHandler(pins *services.PinService, session *services.SessionService, sage *services.SageService, metrics *utils.MetricsCollector, vp viewport.Config) *Handler {
	return &Handler{
		PinService:     pins,
		SessionService: session,
		SageService:    sage,
		Metrics:        metrics,
		Viewport:       vp,
		Response:       NewResponseHelper(),
		hub:            NewViewportHub(),
		now:            time.Now,
	}
}

// Hub 视口连接管理器
func (h *Handler) Hub() *ViewportHub {
	return h.hub
}

// EnterSessionRequest 进入会话
type EnterSessionRequest struct {
	Mode     models.EntryMode `json:"mode" binding:"required"`
	Password string           `json:"password"`
}

// CreatePinRequest 创建标记，坐标为画布百分比
type CreatePinRequest struct {
	Type    models.PinType `json:"type" binding:"required"`
	X       float64        `json:"x"`
	Y       float64        `json:"y"`
	Comment string         `json:"comment"`
}

// DeletePinRequest 删除标记需要再次输入管理员密码
type DeletePinRequest struct {
	Password string `json:"password"`
}

// ExploredRequest 省略 explored 时切换状态
type ExploredRequest struct {
	Explored *bool `json:"explored"`
}

// SageRequest 大贤者提问
type SageRequest struct {
	Prompt     string        `json:"prompt"`
	LocationID string        `json:"location_id"`
	History    []llm.Message `json:"history"`
}

// SageSettingsRequest 修改大贤者配置
type SageSettingsRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

// ImportResponse 导入结果
type ImportResponse struct {
	Imported   int               `json:"imported"`
	Duplicates int               `json:"duplicates"`
	RowErrors  []pincsv.RowError `json:"row_errors"`
	Pins       []models.Pin      `json:"pins,omitempty"`
}

// ===============================
// 会话
// ===============================

// EnterSession 进入用户或管理员模式
func (h *Handler) EnterSession(c *gin.Context) {
	var req EnterSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求参数", err.Error())
		return
	}

	res, err := h.SessionService.Enter(c.Request.Context(), req.Mode, req.Password)
	if err != nil {
		if apperrors.IsUnauthorizedError(err) {
			h.Response.Error(c, http.StatusUnauthorized, ErrorWrongPassword, services.MsgWrongPassword)
			return
		}
		if apperrors.IsValidationError(err) {
			h.Response.Error(c, http.StatusBadRequest, ErrorModeInvalid, err.Error())
			return
		}
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, res)
}

// GetNotices 当前未过期的提示
func (h *Handler) GetNotices(c *gin.Context) {
	h.Response.Success(c, h.SessionService.Notices().Active())
}

// GetHealth 服务状态
func (h *Handler) GetHealth(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"status":     "ok",
		"mode":       h.SessionService.Mode(),
		"pins":       h.PinService.Len(),
		"sage_ready": h.SageService.Ready(),
		"viewers":    h.hub.Count(),
	})
}

// ===============================
// 标记
// ===============================

// parseTypeFilter 支持 ?type=퀘&type=토 和 ?type=퀘,토
func parseTypeFilter(c *gin.Context) ([]models.PinType, error) {
	var filter []models.PinType
	for _, raw := range c.QueryArray("type") {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			t, ok := models.ParsePinType(part)
			if !ok {
				return nil, fmt.Errorf("未知的标记分类: %q", part)
			}
			filter = append(filter, t)
		}
	}
	return filter, nil
}

// ListPins 按分类筛选标记，管理员视图不显示探索状态
func (h *Handler) ListPins(c *gin.Context) {
	filter, err := parseTypeFilter(c)
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorCategoryInvalid, err.Error())
		return
	}

	pins := h.PinService.Query(filter, requestMode(c))
	h.Response.Success(c, gin.H{
		"pins":  pins,
		"count": len(pins),
	})
}

// GetPin 获取单个标记
func (h *Handler) GetPin(c *gin.Context) {
	pin, ok := h.PinService.Get(c.Param("id"))
	if !ok {
		h.Response.NotFound(c, "标记")
		return
	}
	if requestMode(c) == models.ModeAdmin {
		pin.Explored = false
	}
	h.Response.Success(c, pin)
}

// CreatePin 管理员创建标记
func (h *Handler) CreatePin(c *gin.Context) {
	var req CreatePinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorPinInvalid, "无效的标记参数", err.Error())
		return
	}

	pin, err := h.PinService.Create(req.Type, req.X, req.Y, req.Comment)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.SessionService.Notices().Success(services.MsgPinCreated)
	h.Response.Created(c, pin, services.MsgPinCreated)
}

// UpdatePin 管理员修改分类或备注
func (h *Handler) UpdatePin(c *gin.Context) {
	var patch models.PinPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorPinInvalid, "无效的标记参数", err.Error())
		return
	}

	pin, err := h.PinService.Update(c.Param("id"), patch)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.SessionService.Notices().Success(services.MsgPinUpdated)
	h.Response.Success(c, pin, services.MsgPinUpdated)
}

// DeletePin 管理员删除标记，需再次确认密码
func (h *Handler) DeletePin(c *gin.Context) {
	var req DeletePinRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.Response.BadRequest(c, "无效的请求参数", err.Error())
			return
		}
	}
	if req.Password == "" {
		req.Password = c.GetHeader("X-Admin-Password")
	}

	if err := h.SessionService.CheckAdminPassword(req.Password); err != nil {
		h.Response.Error(c, http.StatusUnauthorized, ErrorWrongPassword, services.MsgWrongPassword)
		return
	}

	if err := h.PinService.Delete(c.Param("id")); err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.SessionService.Notices().Success(services.MsgPinDeleted)
	h.Response.Success(c, gin.H{"id": c.Param("id")}, services.MsgPinDeleted)
}

// SetExplored 设置或切换探索状态
func (h *Handler) SetExplored(c *gin.Context) {
	var req ExploredRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.Response.BadRequest(c, "无效的请求参数", err.Error())
			return
		}
	}

	var (
		pin models.Pin
		err error
	)
	if req.Explored == nil {
		pin, err = h.PinService.ToggleExplored(c.Param("id"))
	} else {
		pin, err = h.PinService.SetExplored(c.Param("id"), *req.Explored)
	}
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}

	if pin.Explored {
		h.SessionService.Notices().Success(services.MsgPinExplored)
		h.Response.Success(c, pin, services.MsgPinExplored)
		return
	}
	h.Response.Success(c, pin)
}

// ===============================
// 分类
// ===============================

// GetCategories 分类信息和计数
func (h *Handler) GetCategories(c *gin.Context) {
	h.Response.Success(c, h.PinService.Counts())
}

func (h *Handler) categoryParam(c *gin.Context) (models.PinType, bool) {
	t, ok := models.ParsePinType(c.Param("type"))
	if !ok {
		h.Response.Error(c, http.StatusBadRequest, ErrorCategoryInvalid, fmt.Sprintf("未知的标记分类: %q", c.Param("type")))
	}
	return t, ok
}

// GetMassAction 长按分类时可执行的批量操作
func (h *Handler) GetMassAction(c *gin.Context) {
	t, ok := h.categoryParam(c)
	if !ok {
		return
	}
	h.Response.Success(c, h.PinService.MassAction(t))
}

// ExecuteMassAction 执行批量操作，仅用户模式可用
func (h *Handler) ExecuteMassAction(c *gin.Context) {
	t, ok := h.categoryParam(c)
	if !ok {
		return
	}
	if requestMode(c) == models.ModeAdmin {
		h.Response.Forbidden(c, "批量操作仅在用户模式下可用")
		return
	}

	ma, changed, err := h.PinService.ExecuteMassAction(t)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}

	category, _ := t.Category()
	var message string
	switch ma.Action {
	case models.MassActionComplete:
		message = fmt.Sprintf(services.MsgMassComplete, category.Label)
	case models.MassActionReset:
		message = fmt.Sprintf(services.MsgMassReset, category.Label)
	default:
		h.Response.Error(c, http.StatusUnprocessableEntity, ErrorCategoryInvalid, "该分类没有可批量操作的标记")
		return
	}
	h.SessionService.Notices().Success(message)
	h.Response.Success(c, gin.H{"mass_action": ma, "changed": changed}, message)
}

// ===============================
// 地点
// ===============================

// GetLocations 侧边栏地点列表
func (h *Handler) GetLocations(c *gin.Context) {
	h.Response.Success(c, models.Locations)
}

// FocusLocation 计算跳转到地点时的平移缩放。
// 查询参数 width、height 为视口尺寸，sidebar=false 表示侧边栏收起
func (h *Handler) FocusLocation(c *gin.Context) {
	loc, ok := models.FindLocation(c.Param("id"))
	if !ok {
		h.Response.NotFound(c, "地点")
		return
	}

	var q struct {
		Width   float64 `form:"width"`
		Height  float64 `form:"height"`
		Sidebar *bool   `form:"sidebar"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		h.Response.BadRequest(c, "无效的视口参数", err.Error())
		return
	}
	size := h.Viewport.Viewport
	if q.Width > 0 && q.Height > 0 {
		size = viewport.Size{Width: q.Width, Height: q.Height}
	}
	inset := viewport.SidebarWidth
	if q.Sidebar != nil && !*q.Sidebar {
		inset = 0
	}

	bounds := h.Viewport.Bounds
	if bounds.Width == 0 {
		bounds = viewport.MapBounds
	}
	t := viewport.FocusOn(bounds.FromPercent(loc.X, loc.Y), models.FocusZoom, size, inset)
	h.Response.Success(c, gin.H{"location": loc, "transform": t})
}

// ===============================
// 导入导出与同步
// ===============================

// ExportCSV 下载包含探索状态的 CSV
func (h *Handler) ExportCSV(c *gin.Context) {
	pins := h.PinService.Snapshot()
	if len(pins) == 0 {
		h.SessionService.Notices().Alert(services.MsgExportEmpty)
		h.Response.Error(c, http.StatusUnprocessableEntity, ErrorExportDataEmpty, services.MsgExportEmpty)
		return
	}

	var buf bytes.Buffer
	if err := pincsv.Encode(&buf, pins); err != nil {
		h.Response.InternalError(c, "导出失败", err.Error())
		return
	}
	h.SessionService.Notices().Success(services.MsgExportSuccess)
	h.Response.DownloadResponse(c, buf.Bytes(), pincsv.ExportFilename(h.now()), "text/csv; charset=utf-8")
}

// readUpload 接受 multipart 的 file 字段或原始请求体
func readUpload(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, err
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	return io.ReadAll(c.Request.Body)
}

// ImportCSV 合并上传的 CSV，重复的标记会被跳过
func (h *Handler) ImportCSV(c *gin.Context) {
	data, err := readUpload(c)
	if err != nil {
		h.SessionService.Notices().Alert(services.MsgBadFile)
		h.Response.Error(c, http.StatusBadRequest, ErrorFileInvalid, services.MsgBadFile, err.Error())
		return
	}

	records, rowErrs, err := pincsv.Decode(bytes.NewReader(data))
	if err != nil {
		h.SessionService.Notices().Alert(services.MsgBadFile)
		h.Response.Error(c, http.StatusBadRequest, ErrorFileInvalid, services.MsgBadFile, err.Error())
		return
	}
	h.Metrics.RecordCSVRows("import", "accepted", len(records))
	h.Metrics.RecordCSVRows("import", "rejected", len(rowErrs))

	res, err := h.PinService.Import(records)
	if err != nil {
		if apperrors.IsNothingToImportError(err) {
			h.SessionService.Notices().Alert(services.MsgImportNothing)
			c.JSON(http.StatusUnprocessableEntity, &APIResponse{
				Success:   false,
				Data:      ImportResponse{Duplicates: res.Duplicates, RowErrors: rowErrs},
				Error:     &APIError{Code: ErrorNothingToImport, Message: services.MsgImportNothing},
				Message:   services.MsgImportNothing,
				Timestamp: time.Now(),
				RequestID: c.GetString(contextKeyRequestID),
			})
			return
		}
		h.Response.HandleError(c, err)
		return
	}

	message := fmt.Sprintf(services.MsgImportSuccess, res.Imported)
	h.SessionService.Notices().Success(message)
	h.Response.Success(c, ImportResponse{
		Imported:   res.Imported,
		Duplicates: res.Duplicates,
		RowErrors:  rowErrs,
		Pins:       res.Pins,
	}, message)
}

// SyncSeed 手动与远程种子同步
func (h *Handler) SyncSeed(c *gin.Context) {
	stats, err := h.SessionService.Sync(c.Request.Context())
	if err != nil {
		if apperrors.IsNetworkError(err) {
			h.Response.Error(c, http.StatusBadGateway, ErrorSeedUnavailable, services.MsgSyncFailed, err.Error())
			return
		}
		h.Response.HandleError(c, err)
		return
	}

	var message string
	if stats.Added > 0 {
		message = fmt.Sprintf(services.MsgSyncSuccess, stats.Added)
	}
	h.Response.Success(c, stats, message)
}

// ===============================
// 大贤者
// ===============================

// AskSage 提问；只给出地点时使用默认问题
func (h *Handler) AskSage(c *gin.Context) {
	var req SageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求参数", err.Error())
		return
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" && req.LocationID != "" {
		loc, ok := models.FindLocation(req.LocationID)
		if !ok {
			h.Response.NotFound(c, "地点")
			return
		}
		prompt = loc.Name + "에 대해 알려줘."
	}
	if prompt == "" {
		h.Response.BadRequest(c, "问题不能为空")
		return
	}

	reply := h.SageService.Ask(c.Request.Context(), prompt, req.History)
	h.Response.Success(c, gin.H{
		"prompt": prompt,
		"reply":  reply,
	})
}

// GetSageSettings 当前大贤者配置，不返回密钥
func (h *Handler) GetSageSettings(c *gin.Context) {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		h.Response.InternalError(c, "配置系统未初始化")
		return
	}
	h.Response.Success(c, gin.H{
		"provider":       cfg.SageProvider,
		"model":          cfg.SageConfig["model"],
		"key_configured": cfg.SageConfig["api_key"] != "",
		"ready":          h.SageService.Ready(),
		"providers":      llm.ListProviders(),
	})
}

// UpdateSageSettings 保存并立即应用大贤者配置
func (h *Handler) UpdateSageSettings(c *gin.Context) {
	var req SageSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求参数", err.Error())
		return
	}

	cfg := config.GetCurrentConfig()
	if cfg == nil {
		h.Response.InternalError(c, "配置系统未初始化")
		return
	}
	provider := req.Provider
	if provider == "" {
		provider = cfg.SageProvider
	}
	settings := cfg.SageConfig
	if req.APIKey != "" {
		settings["api_key"] = req.APIKey
	}
	if req.Model != "" {
		settings["model"] = req.Model
	}

	if err := h.SageService.Configure(provider, settings); err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorSageConfigInvalid, "大贤者配置无效", err.Error())
		return
	}
	if err := config.UpdateSageConfig(provider, settings); err != nil {
		h.Response.InternalError(c, "保存配置失败", err.Error())
		return
	}
	h.Response.Success(c, gin.H{"provider": provider, "ready": h.SageService.Ready()}, "配置已保存")
}
