// internal/services/pin_service.go
package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/DragonSwordMap/internal/errors"
	"github.com/Corphon/DragonSwordMap/internal/models"
	"github.com/Corphon/DragonSwordMap/internal/pincsv"
	"github.com/Corphon/DragonSwordMap/internal/storage"
	"github.com/Corphon/DragonSwordMap/internal/utils"
)

// PinService 标记存储。所有变更串行执行，并在变更后立即写入存储
type PinService struct {
	mu    sync.Mutex
	store storage.KeyValueStore
	pins  []models.Pin

	now     func() time.Time
	newID   func() string
	logger  *utils.Logger
	metrics *utils.MetricsCollector
}

// PinServiceOption 可选配置
type PinServiceOption func(*PinService)

// WithPinClock 替换时间源
func WithPinClock(now func() time.Time) PinServiceOption {
	return func(s *PinService) { s.now = now }
}

// WithIDGenerator 替换本地 ID 生成器
func WithIDGenerator(gen func() string) PinServiceOption {
	return func(s *PinService) { s.newID = gen }
}

// WithPinMetrics 设置指标收集器
func WithPinMetrics(m *utils.MetricsCollector) PinServiceOption {
	return func(s *PinService) { s.metrics = m }
}

// WithPinLogger 设置日志
func WithPinLogger(l *utils.Logger) PinServiceOption {
	return func(s *PinService) { s.logger = l }
}

// NewPinService 创建标记服务，调用 Hydrate 之前为空
func NewPinService(store storage.KeyValueStore, opts ...PinServiceOption) *PinService {
	s := &PinService{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = utils.GetLogger().Module("pins")
	}
	return s
}

// Hydrate 从存储加载标记。缺失或损坏的数据视为空，只有存储读取失败才返回错误。
// 旧版的探索集合在这里迁移到标记字段上，然后删除。
func (s *PinService) Hydrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok, err := s.store.Get(storage.KeyCustomPins)
	if err != nil {
		return apperrors.NewProcessingError("读取标记数据失败", err)
	}

	var pins []models.Pin
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &pins); err != nil {
			s.logger.Warn("标记数据损坏，按空数据处理", map[string]interface{}{
				"error": apperrors.NewStorageCorruptError(storage.KeyCustomPins, err).Error(),
			})
			pins = nil
		}
	}

	valid := pins[:0]
	for _, p := range pins {
		if !p.Type.Valid() || p.ID == "" {
			s.logger.Warn("丢弃无效标记", map[string]interface{}{"id": p.ID, "type": string(p.Type)})
			continue
		}
		p.Comment = models.NormalizeComment(p.Type, p.Comment)
		valid = append(valid, p)
	}
	s.pins = append([]models.Pin(nil), valid...)

	migrated, err := s.migrateLegacyFadedLocked()
	if err != nil {
		return err
	}

	s.metrics.SetPinCount(len(s.pins))
	s.logger.Info("标记数据已加载", map[string]interface{}{"count": len(s.pins), "migrated": migrated})
	return nil
}

func (s *PinService) migrateLegacyFadedLocked() (int, error) {
	raw, ok, err := s.store.Get(storage.KeyFadedPins)
	if err != nil {
		return 0, apperrors.NewProcessingError("读取探索数据失败", err)
	}
	if !ok {
		return 0, nil
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		s.logger.Warn("旧版探索数据损坏，已忽略", map[string]interface{}{
			"error": apperrors.NewStorageCorruptError(storage.KeyFadedPins, err).Error(),
		})
	}

	faded := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		faded[k] = struct{}{}
	}
	migrated := 0
	for i := range s.pins {
		if _, ok := faded[s.pins[i].Key()]; ok && !s.pins[i].Explored {
			s.pins[i].Explored = true
			migrated++
		}
	}

	if err := s.saveLocked(); err != nil {
		return migrated, err
	}
	if err := s.store.Delete(storage.KeyFadedPins); err != nil {
		return migrated, apperrors.NewProcessingError("删除旧版探索数据失败", err)
	}
	return migrated, nil
}

// saveLocked 将全部标记写入存储，失败时内存状态保持不变
func (s *PinService) saveLocked() error {
	data, err := json.Marshal(s.pins)
	if err != nil {
		return apperrors.NewProcessingError("序列化标记失败", err)
	}
	if err := s.store.Set(storage.KeyCustomPins, string(data)); err != nil {
		s.logger.Error("保存标记失败", map[string]interface{}{"error": err.Error()})
		return apperrors.NewProcessingError("保存标记失败", err)
	}
	return nil
}

func (s *PinService) commitLocked(operation string) error {
	err := s.saveLocked()
	s.metrics.RecordPinMutation(operation, len(s.pins))
	return err
}

func (s *PinService) indexLocked(id string) int {
	for i := range s.pins {
		if s.pins[i].ID == id {
			return i
		}
	}
	return -1
}

// Create 创建标记，坐标为画布百分比，超出范围时裁剪
func (s *PinService) Create(t models.PinType, x, y float64, comment string) (models.Pin, error) {
	if !t.Valid() {
		return models.Pin{}, apperrors.NewValidationError(fmt.Sprintf("未知的标记分类: %q", t), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pin := models.Pin{
		ID:        s.newID(),
		Type:      t,
		Comment:   models.NormalizeComment(t, comment),
		X:         models.ClampPercent(x),
		Y:         models.ClampPercent(y),
		CreatedAt: s.now().UnixMilli(),
	}
	s.pins = append(s.pins, pin)

	return pin, s.commitLocked("create")
}

// Update 修改分类或备注。ID 不存在时不做任何修改并返回 NotFound
func (s *PinService) Update(id string, patch models.PinPatch) (models.Pin, error) {
	if patch.Type != nil && !patch.Type.Valid() {
		return models.Pin{}, apperrors.NewValidationError(fmt.Sprintf("未知的标记分类: %q", *patch.Type), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return models.Pin{}, apperrors.NewNotFoundError("标记不存在: "+id, nil)
	}

	pin := s.pins[i]
	if patch.Type != nil {
		pin.Type = *patch.Type
	}
	if patch.Comment != nil {
		pin.Comment = *patch.Comment
	}
	pin.Comment = models.NormalizeComment(pin.Type, pin.Comment)
	s.pins[i] = pin

	return pin, s.commitLocked("update")
}

// Delete 删除标记。权限校验由调用方负责
func (s *PinService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return apperrors.NewNotFoundError("标记不存在: "+id, nil)
	}
	s.pins = append(s.pins[:i], s.pins[i+1:]...)

	return s.commitLocked("delete")
}

// SetExplored 设置探索状态
func (s *PinService) SetExplored(id string, explored bool) (models.Pin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return models.Pin{}, apperrors.NewNotFoundError("标记不存在: "+id, nil)
	}
	s.pins[i].Explored = explored
	return s.pins[i], s.commitLocked("explore")
}

// ToggleExplored 切换探索状态
func (s *PinService) ToggleExplored(id string) (models.Pin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return models.Pin{}, apperrors.NewNotFoundError("标记不存在: "+id, nil)
	}
	s.pins[i].Explored = !s.pins[i].Explored
	return s.pins[i], s.commitLocked("explore")
}

// Get 按 ID 获取标记
func (s *PinService) Get(id string) (models.Pin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(id); i >= 0 {
		return s.pins[i], true
	}
	return models.Pin{}, false
}

// Query 按插入顺序返回匹配分类的标记，filter 为空时返回全部。
// 管理员视图中所有标记都视为未探索。
func (s *PinService) Query(filter []models.PinType, view models.EntryMode) []models.Pin {
	want := make(map[models.PinType]struct{}, len(filter))
	for _, t := range filter {
		want[t] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Pin, 0, len(s.pins))
	for _, p := range s.pins {
		if len(want) > 0 {
			if _, ok := want[p.Type]; !ok {
				continue
			}
		}
		if view == models.ModeAdmin {
			p.Explored = false
		}
		out = append(out, p)
	}
	return out
}

// Snapshot 返回全部标记的副本，包括探索状态
func (s *PinService) Snapshot() []models.Pin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Pin(nil), s.pins...)
}

// Len 标记总数
func (s *PinService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pins)
}

// Counts 按分类统计总数和已探索数，顺序与侧边栏一致
func (s *PinService) Counts() []models.CategoryCount {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make([]models.CategoryCount, len(models.Categories))
	for i, c := range models.Categories {
		counts[i].Category = c
	}
	for _, p := range s.pins {
		i := p.Type.Index()
		if i < 0 {
			continue
		}
		counts[i].Total++
		if p.Explored {
			counts[i].Explored++
		}
	}
	return counts
}

func (s *PinService) massActionLocked(t models.PinType) models.MassAction {
	ma := models.MassAction{Type: t}
	for _, p := range s.pins {
		if p.Type != t {
			continue
		}
		ma.Total++
		if p.Explored {
			ma.Explored++
		}
	}
	switch {
	case !t.MassActionEligible() || ma.Total == 0:
		ma.Action = models.MassActionNone
	case ma.Explored == ma.Total:
		ma.Action = models.MassActionReset
	default:
		ma.Action = models.MassActionComplete
	}
	return ma
}

// MassAction 长按分类时提供的批量操作：全部已探索则重置，否则全部标记为已探索
func (s *PinService) MassAction(t models.PinType) models.MassAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.massActionLocked(t)
}

// BulkSetExplored 一次性设置某分类下全部标记的探索状态，返回变化的数量
func (s *PinService) BulkSetExplored(t models.PinType, explored bool) (int, error) {
	if !t.Valid() {
		return 0, apperrors.NewValidationError(fmt.Sprintf("未知的标记分类: %q", t), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bulkSetLocked(t, explored)
}

func (s *PinService) bulkSetLocked(t models.PinType, explored bool) (int, error) {
	changed := 0
	for i := range s.pins {
		if s.pins[i].Type == t && s.pins[i].Explored != explored {
			s.pins[i].Explored = explored
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	return changed, s.commitLocked("bulk_explore")
}

// ExecuteMassAction 重新计算并执行批量操作，期间状态不会被其他变更打断
func (s *PinService) ExecuteMassAction(t models.PinType) (models.MassAction, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ma := s.massActionLocked(t)
	switch ma.Action {
	case models.MassActionComplete:
		n, err := s.bulkSetLocked(t, true)
		return ma, n, err
	case models.MassActionReset:
		n, err := s.bulkSetLocked(t, false)
		return ma, n, err
	default:
		return ma, 0, nil
	}
}

// ResetExplored 清除指定分类的探索状态，返回被清除的数量
func (s *PinService) ResetExplored(types []models.PinType) (int, error) {
	reset := make(map[models.PinType]struct{}, len(types))
	for _, t := range types {
		reset[t] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := 0
	for i := range s.pins {
		if _, ok := reset[s.pins[i].Type]; ok && s.pins[i].Explored {
			s.pins[i].Explored = false
			cleared++
		}
	}
	if cleared == 0 {
		return 0, nil
	}
	return cleared, s.commitLocked("reset")
}

// ImportResult 导入统计
type ImportResult struct {
	Imported   int           `json:"imported"`
	Duplicates int           `json:"duplicates"`
	Pins       []models.Pin `json:"pins,omitempty"`
}

// Import 追加 CSV 记录。身份与已有标记或本次已接受的记录相同的行被视为重复
func (s *PinService) Import(records []pincsv.Record) (ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.pins)+len(records))
	for _, p := range s.pins {
		seen[p.Key()] = struct{}{}
	}

	var res ImportResult
	now := s.now().UnixMilli()
	for _, r := range records {
		key := models.IdentityKey(r.Type, r.X, r.Y)
		if _, dup := seen[key]; dup {
			res.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		pin := models.Pin{
			ID:        s.newID(),
			Type:      r.Type,
			Comment:   models.NormalizeComment(r.Type, r.Comment),
			X:         r.X,
			Y:         r.Y,
			CreatedAt: now,
			Explored:  r.Explored,
		}
		s.pins = append(s.pins, pin)
		res.Pins = append(res.Pins, pin)
	}
	res.Imported = len(res.Pins)

	if res.Imported == 0 {
		return res, apperrors.NewNothingToImportError("没有可导入的新标记")
	}
	return res, s.commitLocked("import")
}

// MergeRemote 与远程种子合并，合并基于调用时的最新状态
func (s *PinService) MergeRemote(remote []models.Pin) (MergeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, stats := Merge(s.pins, remote)
	s.pins = merged
	return stats, s.commitLocked("merge")
}
