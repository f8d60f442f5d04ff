// internal/utils/metrics.go
package utils

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "dragonsword"

// MetricsCollector 地图服务的 Prometheus 指标，所有方法对 nil 接收者安全
type MetricsCollector struct {
	registry *prometheus.Registry

	pinMutations     *prometheus.CounterVec
	pinsTotal        prometheus.Gauge
	seedSyncs        *prometheus.CounterVec
	seedFetchSeconds prometheus.Histogram
	csvRows          *prometheus.CounterVec
	weeklyResets     prometheus.Counter
	weeklyCleared    prometheus.Counter
	httpDuration     *prometheus.HistogramVec
	sageRequests     *prometheus.CounterVec
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector returns the process-wide collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		globalMetrics = NewMetricsCollector(reg)
	})
	return globalMetrics
}

// NewMetricsCollector 在给定注册表上创建指标，测试中每个用例使用独立注册表
func NewMetricsCollector(reg *prometheus.Registry) *MetricsCollector {
	m := &MetricsCollector{
		registry: reg,
		pinMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pin_mutations_total",
			Help:      "Pin store mutations partitioned by operation.",
		}, []string{"operation"}),
		pinsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pins",
			Help:      "Number of pins currently in the store.",
		}),
		seedSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "seed_syncs_total",
			Help:      "Remote seed synchronisations partitioned by outcome.",
		}, []string{"status"}), // status: success, cached, error
		seedFetchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "seed_fetch_duration_seconds",
			Help:      "Time taken to download the remote seed CSV.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		csvRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "csv_rows_total",
			Help:      "CSV rows processed partitioned by source and result.",
		}, []string{"source", "result"}), // result: imported, duplicate, skipped
		weeklyResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "weekly_resets_total",
			Help:      "Weekly explored-flag resets applied.",
		}),
		weeklyCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "weekly_reset_pins_cleared_total",
			Help:      "Pins whose explored flag was cleared by weekly resets.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency partitioned by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		sageRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sage_requests_total",
			Help:      "Sage chat requests partitioned by outcome.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.pinMutations, m.pinsTotal, m.seedSyncs, m.seedFetchSeconds,
		m.csvRows, m.weeklyResets, m.weeklyCleared, m.httpDuration, m.sageRequests,
	)
	return m
}

// Registry 用于 /metrics 输出
func (m *MetricsCollector) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordPinMutation 记录一次标记变更及变更后的总数
func (m *MetricsCollector) RecordPinMutation(operation string, total int) {
	if m == nil {
		return
	}
	m.pinMutations.WithLabelValues(operation).Inc()
	m.pinsTotal.Set(float64(total))
}

// SetPinCount 加载后同步标记总数
func (m *MetricsCollector) SetPinCount(total int) {
	if m == nil {
		return
	}
	m.pinsTotal.Set(float64(total))
}

// RecordSeedSync 记录一次远程同步结果
func (m *MetricsCollector) RecordSeedSync(status string, fetch time.Duration) {
	if m == nil {
		return
	}
	m.seedSyncs.WithLabelValues(status).Inc()
	if fetch > 0 {
		m.seedFetchSeconds.Observe(fetch.Seconds())
	}
}

// RecordCSVRows 记录 CSV 行处理数量
func (m *MetricsCollector) RecordCSVRows(source, result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.csvRows.WithLabelValues(source, result).Add(float64(n))
}

// RecordWeeklyReset 记录一次每周重置
func (m *MetricsCollector) RecordWeeklyReset(cleared int) {
	if m == nil {
		return
	}
	m.weeklyResets.Inc()
	m.weeklyCleared.Add(float64(cleared))
}

// ObserveHTTP 记录请求耗时
func (m *MetricsCollector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// RecordSageRequest 记录一次大贤者对话
func (m *MetricsCollector) RecordSageRequest(status string) {
	if m == nil {
		return
	}
	m.sageRequests.WithLabelValues(status).Inc()
}
