// internal/services/merge.go
package services

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Corphon/DragonSwordMap/internal/models"
)

// SeedIDPrefix 远程种子数据派生的 ID 前缀，与本地创建的 UUID 不会冲突
const SeedIDPrefix = "seed-"

// seedNamespace UUIDv5 命名空间，相同身份的种子标记始终得到相同 ID
var seedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/Duritz-Labs/DragonSwordMaps"))

// SeedID 根据合并身份生成确定性 ID
func SeedID(identityKey string) string {
	return SeedIDPrefix + uuid.NewSHA1(seedNamespace, []byte(identityKey)).String()
}

// IsSeedID 是否为种子派生 ID
func IsSeedID(id string) bool {
	return strings.HasPrefix(id, SeedIDPrefix)
}

// MergeStats 合并结果统计
type MergeStats struct {
	Remote   int `json:"remote"`   // 去重后的远程标记数
	Added    int `json:"added"`    // 本地原本没有的远程标记
	Shadowed int `json:"shadowed"` // 被同身份本地创建标记遮蔽的远程记录
	Kept     int `json:"kept"`     // 没有远程对应、原样保留的本地标记
}

type localMatch struct {
	explored  bool
	createdAt int64
	authored  *models.Pin // 第一个同身份的本地创建标记
}

// Merge 将远程种子与本地标记合并。
//
// 远程标记按身份去重（先出现者为准），使用种子 ID 和远程的分类、坐标、备注，
// 探索状态取所有同身份本地标记的或，创建时间取第一个本地匹配。
// 已有同身份本地创建标记时保留该标记（ID、备注不变），远程记录被遮蔽。
// 之后按原顺序追加没有远程对应的本地标记。结果对同一远程输入幂等。
func Merge(local, remote []models.Pin) ([]models.Pin, MergeStats) {
	var stats MergeStats

	matches := make(map[string]*localMatch, len(local))
	for _, p := range local {
		key := p.Key()
		m, ok := matches[key]
		if !ok {
			m = &localMatch{createdAt: p.CreatedAt}
			matches[key] = m
		}
		m.explored = m.explored || p.Explored
		if m.authored == nil && !IsSeedID(p.ID) {
			authored := p
			m.authored = &authored
		}
	}

	merged := make([]models.Pin, 0, len(remote)+len(local))
	remoteKeys := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		key := r.Key()
		if _, dup := remoteKeys[key]; dup {
			continue
		}
		remoteKeys[key] = struct{}{}

		pin := models.Pin{
			ID:        SeedID(key),
			Type:      r.Type,
			Comment:   models.NormalizeComment(r.Type, r.Comment),
			X:         r.X,
			Y:         r.Y,
			CreatedAt: r.CreatedAt,
		}
		if m, ok := matches[key]; ok {
			if m.authored != nil {
				pin = *m.authored
				stats.Shadowed++
			} else {
				pin.CreatedAt = m.createdAt
			}
			pin.Explored = m.explored
		} else {
			stats.Added++
		}
		merged = append(merged, pin)
	}
	stats.Remote = len(merged)

	for _, p := range local {
		if _, ok := remoteKeys[p.Key()]; ok {
			continue
		}
		merged = append(merged, p)
		stats.Kept++
	}

	return merged, stats
}
