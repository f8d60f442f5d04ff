// internal/models/session.go
package models

import "time"

// EntryMode 入口模式
type EntryMode string

const (
	ModeNone  EntryMode = "NONE"
	ModeUser  EntryMode = "USER"
	ModeAdmin EntryMode = "ADMIN"
)

// Valid 是否为可进入的模式
func (m EntryMode) Valid() bool {
	return m == ModeUser || m == ModeAdmin
}

// NoticeLevel 提示级别
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeAlert   NoticeLevel = "alert"
)

// NoticeTTL 提示自动消失时间
const NoticeTTL = 3 * time.Second

// Notice 自动消失的提示消息（toast）
type Notice struct {
	Level     NoticeLevel `json:"level"`
	Message   string      `json:"message"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// NewNotice 创建提示，过期时间为 now + NoticeTTL
func NewNotice(level NoticeLevel, message string, now time.Time) Notice {
	return Notice{Level: level, Message: message, ExpiresAt: now.Add(NoticeTTL)}
}

// PinPatch 管理员编辑时可修改的字段
type PinPatch struct {
	Type    *PinType `json:"type,omitempty"`
	Comment *string  `json:"comment,omitempty"`
}

// MassActionKind 批量操作类型
type MassActionKind string

const (
	MassActionNone     MassActionKind = ""
	MassActionComplete MassActionKind = "COMPLETE"
	MassActionReset    MassActionKind = "RESET"
)

// MassAction 长按分类按钮时提供的批量操作
type MassAction struct {
	Type     PinType        `json:"type"`
	Action   MassActionKind `json:"action"`
	Total    int            `json:"total"`
	Explored int            `json:"explored"`
}

// CategoryCount 侧边栏分类计数
type CategoryCount struct {
	Category
	Total    int `json:"total"`
	Explored int `json:"explored"`
}
