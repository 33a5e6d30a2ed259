// Package metrics 提供监控指标功能.
// 支持Prometheus标准，收集 HTTP、曲目上传、回收、解析与播放等指标.
//
// Example:
//
//	metrics.InitMetrics(config.Metrics)
//
//	// 记录指标
//	metrics.IngestTotal.WithLabelValues(metrics.OutcomeOK).Inc()
//	metrics.RequestDuration.WithLabelValues("GET", "/:id").Observe(0.1)
package metrics

import (
	"net/http"
	"net/http/pprof"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeisme/octavia/pkg/configs"
)

// 常用结果标签.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeFallback = "fallback"
	OutcomeCached   = "cached"
)

// 全局指标变量.
var (
	// RequestCounter HTTP请求计数器.
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration HTTP请求持续时间.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// IngestTotal 上传结果计数，reason 为拒绝或失败原因.
	IngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "octavia",
			Name:      "ingest_total",
			Help:      "Uploads processed by the ingest pipeline",
		},
		[]string{"outcome", "reason"},
	)

	// IngestBytes 成功上传的字节数.
	IngestBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "octavia",
			Name:      "ingest_bytes_total",
			Help:      "Bytes of audio accepted by the ingest pipeline",
		},
	)

	// ScavengedTotal 回收处理的曲目数.
	ScavengedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "octavia",
			Name:      "scavenged_tracks_total",
			Help:      "Expired tracks processed by the retention scavenger",
		},
		[]string{"outcome"},
	)

	// ScavengeDuration 单次回收耗时.
	ScavengeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "octavia",
			Name:      "scavenge_duration_seconds",
			Help:      "Duration of a full scavenger pass",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	// ResolverTotal 封面与购买链接解析结果.
	ResolverTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "octavia",
			Name:      "resolver_requests_total",
			Help:      "Artwork and purchase link resolutions by outcome",
		},
		[]string{"kind", "outcome"},
	)

	// PlaysTotal 计入的播放次数（每会话每曲目一次）.
	PlaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "octavia",
			Name:      "plays_total",
			Help:      "Counted plays, at most one per session and track",
		},
	)

	// DeletesTotal 删除请求结果.
	DeletesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "octavia",
			Name:      "deletes_total",
			Help:      "Delete requests by outcome",
		},
		[]string{"outcome"},
	)

	// registry Prometheus注册表.
	registry = prometheus.NewRegistry()
	initOnce sync.Once
)

// InitMetrics 初始化Metrics（幂等）.
func InitMetrics(config configs.MetricsConfig) {
	if !config.Enabled {
		return
	}

	initOnce.Do(func() {
		reg := prometheus.WrapRegistererWith(prometheus.Labels(config.Labels), registry)

		// 注册标准收集器
		if config.RuntimeMetrics {
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
		}

		reg.MustRegister(
			RequestCounter, RequestDuration,
			IngestTotal, IngestBytes,
			ScavengedTotal, ScavengeDuration,
			ResolverTotal, PlaysTotal, DeletesTotal,
		)
	})
}

// Handler 返回 /metrics 处理器，同时导出默认注册表（gorm 插件注册在那里）.
func Handler() http.Handler {
	return promhttp.HandlerFor(
		prometheus.Gatherers{registry, prometheus.DefaultGatherer},
		promhttp.HandlerOpts{},
	)
}

// RegisterRoutes 在引擎上注册 /metrics 与可选的 pprof 端点.
func RegisterRoutes(config configs.MetricsConfig, engine *gin.Engine) {
	if !config.Enabled {
		return
	}

	engine.GET("/metrics", gin.WrapH(Handler()))

	if config.Pprof {
		dbg := engine.Group("/debug/pprof")
		dbg.GET("/", gin.WrapF(pprof.Index))
		dbg.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		dbg.GET("/profile", gin.WrapF(pprof.Profile))
		dbg.GET("/symbol", gin.WrapF(pprof.Symbol))
		dbg.GET("/trace", gin.WrapF(pprof.Trace))
		dbg.GET("/:name", func(c *gin.Context) {
			pprof.Handler(c.Param("name")).ServeHTTP(c.Writer, c.Request)
		})
	}
}

// GetRegistry 获取Prometheus注册表.
func GetRegistry() *prometheus.Registry {
	return registry
}
