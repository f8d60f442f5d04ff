// internal/services/reset_service.go
package services

import (
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Corphon/DragonSwordMap/internal/errors"
	"github.com/Corphon/DragonSwordMap/internal/models"
	"github.com/Corphon/DragonSwordMap/internal/storage"
	"github.com/Corphon/DragonSwordMap/internal/utils"
)

// ResetHour 每周重置的整点（本地时间）
const ResetHour = 9

// ComputeBoundary 返回不晚于 now 的最近一个周一 09:00
func ComputeBoundary(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	d := time.Date(local.Year(), local.Month(), local.Day(), ResetHour, 0, 0, 0, loc)
	// Go 的 Weekday 周日为 0，换算为距周一的天数
	back := (int(d.Weekday()) + 6) % 7
	d = d.AddDate(0, 0, -back)
	if d.After(now) {
		d = d.AddDate(0, 0, -7)
	}
	return d
}

// ResetResult 一次检查的结果
type ResetResult struct {
	Applied  bool      `json:"applied"`
	Boundary time.Time `json:"boundary"`
	Cleared  int       `json:"cleared"`
}

// ResetService 每周清除“지역”“돌발”分类的探索状态
type ResetService struct {
	store    storage.KeyValueStore
	pins     *PinService
	location *time.Location
	types    []models.PinType
	logger   *utils.Logger
	metrics  *utils.MetricsCollector
}

// NewResetService 创建每周重置服务
func NewResetService(store storage.KeyValueStore, pins *PinService, loc *time.Location, metrics *utils.MetricsCollector) *ResetService {
	if loc == nil {
		loc = time.Local
	}
	return &ResetService{
		store:    store,
		pins:     pins,
		location: loc,
		types:    models.WeeklyResetTypes,
		logger:   utils.GetLogger().Module("reset"),
		metrics:  metrics,
	}
}

// LastReset 读取上次重置时间，缺失或格式错误返回 0
func (s *ResetService) LastReset() int64 {
	raw, ok, err := s.store.Get(storage.KeyLastWeeklyReset)
	if err != nil || !ok {
		return 0
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		s.logger.Warn("上次重置时间格式错误，按 0 处理", map[string]interface{}{"value": raw})
		return 0
	}
	return ms
}

// Apply 上次重置早于本周边界时清除探索状态并记录边界。
// 同一周内重复调用不会再次清除。
func (s *ResetService) Apply(now time.Time) (ResetResult, error) {
	boundary := ComputeBoundary(now, s.location)
	res := ResetResult{Boundary: boundary}

	if s.LastReset() >= boundary.UnixMilli() {
		return res, nil
	}

	cleared, err := s.pins.ResetExplored(s.types)
	if err != nil {
		return res, err
	}
	if err := s.store.Set(storage.KeyLastWeeklyReset, strconv.FormatInt(boundary.UnixMilli(), 10)); err != nil {
		return res, apperrors.NewProcessingError("保存重置时间失败", err)
	}

	res.Applied = true
	res.Cleared = cleared
	s.metrics.RecordWeeklyReset(cleared)
	s.logger.Info("每周探索状态已重置", map[string]interface{}{
		"boundary": boundary.Format(time.RFC3339),
		"cleared":  cleared,
	})
	return res, nil
}
