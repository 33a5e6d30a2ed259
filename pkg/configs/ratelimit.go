package configs

import "github.com/spf13/viper"

const (
	// 默认上传限流配置，每个客户端约每 10 秒一次上传，允许 5 次突发.
	DefaultRateLimitEnabled = false
	DefaultRateLimitRPS     = 0.1
	DefaultRateLimitBurst   = 5
	DefaultRateLimitKey     = "ip"
)

// RateLimitConfig POST /new 的限流配置，其余路由不受限.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`   // 每秒允许的上传数，可小于 1
	Burst   int     `mapstructure:"burst"` // 突发容量
	// Key 选择限流维度：global（全局）、ip（按客户端IP）、header:Header-Name（按请求头）
	Key string `mapstructure:"key"`
}

// Active 报告配置是否会真正限流；rps 或 burst 非正时视为关闭.
func (c RateLimitConfig) Active() bool {
	return c.Enabled && c.RPS > 0 && c.Burst > 0
}

func (c *RateLimitConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("rate_limit.enabled", DefaultRateLimitEnabled)
	v.SetDefault("rate_limit.rps", DefaultRateLimitRPS)
	v.SetDefault("rate_limit.burst", DefaultRateLimitBurst)
	v.SetDefault("rate_limit.key", DefaultRateLimitKey)
}
