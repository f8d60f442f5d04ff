// internal/services/seed_service.go
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	apperrors "github.com/Corphon/DragonSwordMap/internal/errors"
	"github.com/Corphon/DragonSwordMap/internal/models"
	"github.com/Corphon/DragonSwordMap/internal/pincsv"
	"github.com/Corphon/DragonSwordMap/internal/utils"
)

const seedCacheKey = "seed_csv"

// maxSeedSize 远程 CSV 的读取上限
const maxSeedSize = 8 << 20

// SeedConfig 远程种子数据配置
type SeedConfig struct {
	URL      string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// SeedResult 一次拉取得到的数据
type SeedResult struct {
	Records   []pincsv.Record
	RowErrors []pincsv.RowError
	Cached    bool
}

// SeedService 拉取官方发布的标记 CSV
type SeedService struct {
	config     SeedConfig
	httpClient *http.Client
	cache      *cache.Cache
	logger     *utils.Logger
	metrics    *utils.MetricsCollector
}

// NewSeedService 创建种子服务
func NewSeedService(cfg SeedConfig, metrics *utils.MetricsCollector) *SeedService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &SeedService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:   cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		logger:  utils.GetLogger().Module("seed"),
		metrics: metrics,
	}
}

// URL 远程地址
func (s *SeedService) URL() string {
	return s.config.URL
}

// Invalidate 清除缓存，下次 Fetch 重新请求
func (s *SeedService) Invalidate() {
	s.cache.Delete(seedCacheKey)
}

// Fetch 获取并解析远程 CSV。缓存命中时不发请求
func (s *SeedService) Fetch(ctx context.Context) (*SeedResult, error) {
	if cached, found := s.cache.Get(seedCacheKey); found {
		if res, ok := cached.(*SeedResult); ok {
			s.logger.Debug("使用缓存的种子数据", map[string]interface{}{"records": len(res.Records)})
			return &SeedResult{Records: res.Records, RowErrors: res.RowErrors, Cached: true}, nil
		}
	}

	start := time.Now()
	res, err := s.fetch(ctx)
	if err != nil {
		s.metrics.RecordSeedSync("error", time.Since(start))
		s.logger.Warn("种子数据同步失败", map[string]interface{}{"url": s.config.URL, "error": err.Error()})
		return nil, err
	}
	s.metrics.RecordSeedSync("success", time.Since(start))
	s.metrics.RecordCSVRows("seed", "accepted", len(res.Records))
	s.metrics.RecordCSVRows("seed", "rejected", len(res.RowErrors))

	s.cache.Set(seedCacheKey, res, cache.DefaultExpiration)
	s.logger.Info("种子数据已获取", map[string]interface{}{
		"records":  len(res.Records),
		"rejected": len(res.RowErrors),
		"duration": time.Since(start).String(),
	})
	return res, nil
}

func (s *SeedService) fetch(ctx context.Context) (*SeedResult, error) {
	if s.config.URL == "" {
		return nil, apperrors.NewNetworkError("未配置种子数据地址", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL, nil)
	if err != nil {
		return nil, apperrors.NewNetworkError("创建请求失败", err)
	}
	req.Header.Set("Accept", "text/csv, text/plain, */*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("请求种子数据失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.NewNetworkError(fmt.Sprintf("种子数据返回状态码 %d", resp.StatusCode), nil)
	}

	records, rowErrs, err := pincsv.Decode(io.LimitReader(resp.Body, maxSeedSize))
	if err != nil {
		return nil, apperrors.NewNetworkError("读取种子数据失败", err)
	}
	return &SeedResult{Records: records, RowErrors: rowErrs}, nil
}

// SeedPins 将记录转为待合并的标记，ID 由合并时生成
func SeedPins(records []pincsv.Record, now time.Time) []models.Pin {
	pins := make([]models.Pin, 0, len(records))
	ts := now.UnixMilli()
	for _, r := range records {
		pins = append(pins, models.Pin{
			Type:      r.Type,
			Comment:   models.NormalizeComment(r.Type, r.Comment),
			X:         r.X,
			Y:         r.Y,
			CreatedAt: ts,
		})
	}
	return pins
}
