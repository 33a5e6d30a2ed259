package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultLastFMBaseURL  = "https://ws.audioscrobbler.com/2.0/"
	DefaultLastFMTimeout  = 5 * time.Second
	DefaultLastFMCacheTTL = 24 * time.Hour

	// 默认熔断器配置.
	DefaultCBEnabled           = true
	DefaultCBFailureRate       = 0.5
	DefaultCBMinRequests       = 5
	DefaultCBIntervalSeconds   = 60
	DefaultCBTimeoutSeconds    = 30
	DefaultCBMaxRequestsInHalf = 1
)

// LastFMConfig 外部音乐信息服务配置，用于解析封面与购买链接.
// APIKey 为空时解析器直接返回占位值，不发起网络请求.
type LastFMConfig struct {
	APIKey         string               `mapstructure:"key"`
	Secret         string               `mapstructure:"secret"`
	BaseURL        string               `mapstructure:"base_url"        rule:"required,url"`
	Timeout        time.Duration        `mapstructure:"timeout"         rule:"min=100ms"`
	CacheTTL       time.Duration        `mapstructure:"cache_ttl"`
	Country        string               `mapstructure:"country"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig 熔断器配置.
type CircuitBreakerConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	FailureRate       float64 `mapstructure:"failure_rate"         rule:"min=0,max=1"` // 连续窗口失败比例阈值 [0,1]
	MinRequests       uint32  `mapstructure:"min_requests"`                            // 进入统计的最小请求数
	IntervalSeconds   int     `mapstructure:"interval_seconds"`                        // 滑动窗口统计周期
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`                         // 打开状态持续时间（自动半开）
	MaxRequestsInHalf uint32  `mapstructure:"max_requests_in_half"`                    // 半开状态允许的并发请求数
}

// Enabled 是否配置了 API key.
func (c *LastFMConfig) Enabled() bool {
	return c.APIKey != ""
}

func (c *LastFMConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("lastfm.key", "")
	v.SetDefault("lastfm.secret", "")
	v.SetDefault("lastfm.base_url", DefaultLastFMBaseURL)
	v.SetDefault("lastfm.timeout", DefaultLastFMTimeout)
	v.SetDefault("lastfm.cache_ttl", DefaultLastFMCacheTTL)
	v.SetDefault("lastfm.country", "united states")

	v.SetDefault("lastfm.circuit_breaker.enabled", DefaultCBEnabled)
	v.SetDefault("lastfm.circuit_breaker.failure_rate", DefaultCBFailureRate)
	v.SetDefault("lastfm.circuit_breaker.min_requests", DefaultCBMinRequests)
	v.SetDefault("lastfm.circuit_breaker.interval_seconds", DefaultCBIntervalSeconds)
	v.SetDefault("lastfm.circuit_breaker.timeout_seconds", DefaultCBTimeoutSeconds)
	v.SetDefault("lastfm.circuit_breaker.max_requests_in_half", DefaultCBMaxRequestsInHalf)
}
