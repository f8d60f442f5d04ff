// internal/models/pin.go
package models

import (
	"fmt"
	"math"
	"strings"
)

// PinType 地图标记分类代码（与 CSV 中的代码一致）
type PinType string

const (
	PinRegionQuest PinType = "퀘" // 지역
	PinSudden      PinType = "토" // 돌발
	PinMarmot      PinType = "도" // 마멋
	PinPuzzle      PinType = "퍼" // 퍼즐
	PinMoonKey     PinType = "달" // 달열쇠
	PinChest       PinType = "아" // 상자
	PinBirdEgg     PinType = "새" // 새알
	PinPotato      PinType = "감" // 감자
	PinMemory      PinType = "기" // 기억
	PinRemembrance PinType = "추" // 추억
	PinRecall      PinType = "회" // 회상
	PinOblivion    PinType = "망" // 망각
	PinVitality    PinType = "생" // 생기
	PinPrimeval    PinType = "태" // 태고
	PinPurity      PinType = "순" // 순수
	PinVigor       PinType = "활" // 활력
)

// Category 分类的展示信息
type Category struct {
	Type        PinType `json:"type"`
	Label       string  `json:"label"`
	Color       string  `json:"color"`
	Commentless bool    `json:"commentless"`
	WeeklyReset bool    `json:"weekly_reset"`
	MassAction  bool    `json:"mass_action"`
}

// Categories 按侧边栏顺序排列的全部分类，索引即 CSV 数字编码
var Categories = []Category{
	{Type: PinRegionQuest, Label: "지역", Color: "bg-sky-500", WeeklyReset: true, MassAction: true},
	{Type: PinSudden, Label: "돌발", Color: "bg-rose-500", WeeklyReset: true, MassAction: true},
	{Type: PinMarmot, Label: "마멋", Color: "bg-purple-500", MassAction: true},
	{Type: PinPuzzle, Label: "퍼즐", Color: "bg-indigo-500", MassAction: true},
	{Type: PinMoonKey, Label: "달열쇠", Color: "bg-amber-400", MassAction: true},
	{Type: PinChest, Label: "상자", Color: "bg-emerald-500", MassAction: true},
	{Type: PinBirdEgg, Label: "새알", Color: "bg-orange-500"},
	{Type: PinPotato, Label: "감자", Color: "bg-yellow-600", Commentless: true},
	{Type: PinMemory, Label: "기억", Color: "bg-cyan-500", Commentless: true},
	{Type: PinRemembrance, Label: "추억", Color: "bg-pink-500", Commentless: true},
	{Type: PinRecall, Label: "회상", Color: "bg-blue-500", Commentless: true},
	{Type: PinOblivion, Label: "망각", Color: "bg-gray-500", Commentless: true},
	{Type: PinVitality, Label: "생기", Color: "bg-emerald-400", Commentless: true},
	{Type: PinPrimeval, Label: "태고", Color: "bg-amber-700", Commentless: true},
	{Type: PinPurity, Label: "순수", Color: "bg-sky-300", Commentless: true},
	{Type: PinVigor, Label: "활력", Color: "bg-lime-500", Commentless: true},
}

var categoryIndex = func() map[PinType]int {
	idx := make(map[PinType]int, len(Categories))
	for i, c := range Categories {
		idx[c.Type] = i
	}
	return idx
}()

// WeeklyResetTypes 每周一 09:00 清除探索状态的分类
var WeeklyResetTypes = []PinType{PinRegionQuest, PinSudden}

// Valid 判断分类是否属于封闭枚举
func (t PinType) Valid() bool {
	_, ok := categoryIndex[t]
	return ok
}

// Category 返回分类信息
func (t PinType) Category() (Category, bool) {
	i, ok := categoryIndex[t]
	if !ok {
		return Category{}, false
	}
	return Categories[i], true
}

// Commentless 该分类是否禁止备注
func (t PinType) Commentless() bool {
	c, ok := t.Category()
	return ok && c.Commentless
}

// MassActionEligible 是否支持长按批量操作
func (t PinType) MassActionEligible() bool {
	c, ok := t.Category()
	return ok && c.MassAction
}

// Index 返回分类的数字编码，无效分类返回 -1
func (t PinType) Index() int {
	if i, ok := categoryIndex[t]; ok {
		return i
	}
	return -1
}

// PinTypeByIndex 按数字编码查找分类
func PinTypeByIndex(i int) (PinType, bool) {
	if i < 0 || i >= len(Categories) {
		return "", false
	}
	return Categories[i].Type, true
}

// ParsePinType 解析并校验分类代码
func ParsePinType(s string) (PinType, bool) {
	t := PinType(strings.TrimSpace(s))
	return t, t.Valid()
}

// IdentityPrecision 合并身份比较坐标时保留的小数位
const IdentityPrecision = 3

// Pin 地图标记
type Pin struct {
	ID        string  `json:"id"`
	Type      PinType `json:"type"`
	Comment   string  `json:"comment"`
	X         float64 `json:"x"` // 画布宽度百分比
	Y         float64 `json:"y"` // 画布高度百分比（自上而下）
	CreatedAt int64   `json:"createdAt"`
	Explored  bool    `json:"explored,omitempty"`
}

// IdentityKey 计算合并身份 type_x.xxx_y.yyy
func IdentityKey(t PinType, x, y float64) string {
	return fmt.Sprintf("%s_%.*f_%.*f", t, IdentityPrecision, x, IdentityPrecision, y)
}

// Key 返回标记的合并身份
func (p Pin) Key() string {
	return IdentityKey(p.Type, p.X, p.Y)
}

// NormalizeComment 对禁止备注的分类强制清空备注
func NormalizeComment(t PinType, comment string) string {
	if t.Commentless() {
		return ""
	}
	return comment
}

// ValidPercent 坐标是否为有限值且位于 0..100
func ValidPercent(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= 100
}

// ClampPercent 将坐标限制在 0..100
func ClampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
