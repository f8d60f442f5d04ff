// internal/services/session_service.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Corphon/DragonSwordMap/internal/auth"
	apperrors "github.com/Corphon/DragonSwordMap/internal/errors"
	"github.com/Corphon/DragonSwordMap/internal/models"
	"github.com/Corphon/DragonSwordMap/internal/utils"
)

// 提示文案
const (
	MsgWeeklyReset   = "주간 탐색 정보가 갱신되었습니다 (지역, 돌발)"
	MsgSyncSuccess   = "최신 데이터 %d개가 동기화되었습니다."
	MsgSyncFailed    = "최신 데이터 동기화에 실패했습니다."
	MsgWrongPassword = "관리자 비밀번호가 틀립니다."
	MsgPinCreated    = "새로운 맵핀이 등록되었습니다."
	MsgPinUpdated    = "맵핀 정보가 수정되었습니다."
	MsgPinDeleted    = "맵핀이 삭제되었습니다."
	MsgPinExplored   = "탐색 완료! 핀이 흐려집니다."
	MsgMassComplete  = "%s 전체가 탐색 완료되었습니다."
	MsgMassReset     = "%s 전체 탐색이 취소되었습니다."
	MsgImportSuccess = "%d개의 신규 맵핀과 탐색 정보가 병합되었습니다."
	MsgImportNothing = "이미 모든 핀 정보를 보유하고 있거나 유효한 데이터가 없습니다."
	MsgExportSuccess = "탐색 상태를 포함한 CSV 파일이 다운로드되었습니다."
	MsgExportEmpty   = "내보낼 맵핀 데이터가 없습니다."
	MsgBadFile       = "파일 형식이 잘못되었습니다."
)

// NoticeBoard 保存最近的提示，过期后不再返回
type NoticeBoard struct {
	mu      sync.Mutex
	notices []models.Notice
	now     func() time.Time
}

// NewNoticeBoard 创建提示板
func NewNoticeBoard(now func() time.Time) *NoticeBoard {
	if now == nil {
		now = time.Now
	}
	return &NoticeBoard{now: now}
}

// Success 添加成功提示
func (b *NoticeBoard) Success(message string) models.Notice {
	return b.push(models.NoticeSuccess, message)
}

// Alert 添加警告提示
func (b *NoticeBoard) Alert(message string) models.Notice {
	return b.push(models.NoticeAlert, message)
}

func (b *NoticeBoard) push(level models.NoticeLevel, message string) models.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := models.NewNotice(level, message, b.now())
	b.notices = append(b.notices, n)
	b.pruneLocked()
	return n
}

// Active 返回尚未过期的提示
func (b *NoticeBoard) Active() []models.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()
	return append([]models.Notice(nil), b.notices...)
}

func (b *NoticeBoard) pruneLocked() {
	now := b.now()
	kept := b.notices[:0]
	for _, n := range b.notices {
		if n.ExpiresAt.After(now) {
			kept = append(kept, n)
		}
	}
	b.notices = kept
}

// SessionResult 进入会话的结果
type SessionResult struct {
	Mode    models.EntryMode `json:"mode"`
	Token   string           `json:"token,omitempty"`
	Notices []models.Notice  `json:"notices"`
	Reset   ResetResult      `json:"reset"`
	Sync    *MergeStats      `json:"sync,omitempty"`
	Pins    int              `json:"pins"`
}

// SessionService 会话入口：加载、每周重置、远程同步
type SessionService struct {
	mu sync.Mutex

	pins    *PinService
	reset   *ResetService
	seed    *SeedService
	gate    *auth.AdminGate
	tokens  *auth.TokenConfig
	notices *NoticeBoard
	now     func() time.Time
	logger  *utils.Logger

	mode models.EntryMode
}

// NewSessionService 创建会话服务，seed 可以为 nil（离线）
func NewSessionService(pins *PinService, reset *ResetService, seed *SeedService, gate *auth.AdminGate, tokens *auth.TokenConfig, now func() time.Time) *SessionService {
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		pins:    pins,
		reset:   reset,
		seed:    seed,
		gate:    gate,
		tokens:  tokens,
		notices: NewNoticeBoard(now),
		now:     now,
		logger:  utils.GetLogger().Module("session"),
		mode:    models.ModeNone,
	}
}

// Notices 提示板
func (s *SessionService) Notices() *NoticeBoard {
	return s.notices
}

// Mode 当前入口模式
func (s *SessionService) Mode() models.EntryMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// CheckAdminPassword 校验管理员密码，失败时记录提示
func (s *SessionService) CheckAdminPassword(password string) error {
	if s.gate == nil || !s.gate.Check(password) {
		s.notices.Alert(MsgWrongPassword)
		return apperrors.NewUnauthorizedError(MsgWrongPassword, nil)
	}
	return nil
}

// Enter 进入用户或管理员模式。依次加载存储、执行每周重置、与远程种子合并；
// 同步失败只产生提示，不影响进入。
func (s *SessionService) Enter(ctx context.Context, mode models.EntryMode, password string) (*SessionResult, error) {
	if !mode.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("无效的模式: %q", mode), nil)
	}
	if mode == models.ModeAdmin {
		if err := s.CheckAdminPassword(password); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pins.Hydrate(); err != nil {
		return nil, err
	}

	res := &SessionResult{Mode: mode}
	var notices []models.Notice

	reset, err := s.reset.Apply(s.now())
	if err != nil {
		s.logger.Error("每周重置失败", map[string]interface{}{"error": err.Error()})
	} else {
		res.Reset = reset
		if reset.Applied {
			notices = append(notices, s.notices.Success(MsgWeeklyReset))
		}
	}

	if s.seed != nil {
		stats, err := s.syncLocked(ctx)
		if err != nil {
			notices = append(notices, s.notices.Alert(MsgSyncFailed))
		} else {
			res.Sync = &stats
			if stats.Added > 0 {
				notices = append(notices, s.notices.Success(fmt.Sprintf(MsgSyncSuccess, stats.Added)))
			}
		}
	}

	if mode == models.ModeAdmin && s.tokens != nil {
		token, err := auth.GenerateToken("admin", mode, s.tokens)
		if err != nil {
			return nil, apperrors.NewProcessingError("生成令牌失败", err)
		}
		res.Token = token
	}

	s.mode = mode
	res.Notices = notices
	res.Pins = s.pins.Len()
	s.logger.Info("进入会话", map[string]interface{}{"mode": string(mode), "pins": res.Pins})
	return res, nil
}

// Sync 手动与远程种子同步，跳过缓存
func (s *SessionService) Sync(ctx context.Context) (MergeStats, error) {
	if s.seed == nil {
		return MergeStats{}, apperrors.NewNetworkError("未配置种子数据", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seed.Invalidate()
	stats, err := s.syncLocked(ctx)
	if err != nil {
		s.notices.Alert(MsgSyncFailed)
		return stats, err
	}
	if stats.Added > 0 {
		s.notices.Success(fmt.Sprintf(MsgSyncSuccess, stats.Added))
	}
	return stats, nil
}

// syncLocked 拉取在 PinService 锁外进行，合并时读取最新状态
func (s *SessionService) syncLocked(ctx context.Context) (MergeStats, error) {
	res, err := s.seed.Fetch(ctx)
	if err != nil {
		return MergeStats{}, err
	}
	for _, re := range res.RowErrors {
		s.logger.Debug("跳过种子数据行", map[string]interface{}{"line": re.Line, "reason": re.Reason})
	}
	return s.pins.MergeRemote(SeedPins(res.Records, s.now()))
}
