// Package configs 管理应用程序配置，包括数据库、键值存储、消息队列与曲目保留策略等配置信息.
// configs 包支持多种配置格式（YAML、JSON、TOML、dotenv）并启用热重载.
//
// Example:
//
//	import "path/to/configs"
//
//	err := configs.InitConfig("./")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	config := configs.GetConfig()
//	fmt.Println(config.Server.Port)
//
// Example accessing Track config:
//
//	config := configs.GetConfig()
//	trackConfig := config.Track
//	fmt.Println("Retention:", trackConfig.GetRetention())
//
// Example accessing DB config:
//
//	config := configs.GetConfig()
//	dsn := config.DB.GetDSN()
//	fmt.Println("DSN:", dsn)
package configs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/yeisme/octavia/pkg/rule"
)

type (
	// AppConfig 全局应用程序配置.
	AppConfig struct {
		DB        DBConfig        `mapstructure:"db"`         // DBConfig 数据库配置
		KV        KVConfig        `mapstructure:"kv"`         // KVConfig 会话、播放去重与缓存使用的键值存储
		MQ        MQConfig        `mapstructure:"mq"`         // MQConfig 事件发布使用的消息队列
		Server    ServerConfig    `mapstructure:"server"`     // ServerConfig 服务器配置，端口、调试模式等
		Log       LogConfig       `mapstructure:"log"`        // LogConfig 日志相关配置
		Metrics   MetricsConfig   `mapstructure:"metrics"`    // MetricsConfig 监控指标
		Tracing   TracingConfig   `mapstructure:"tracing"`    // TracingConfig 链路追踪
		RateLimit RateLimitConfig `mapstructure:"rate_limit"` // RateLimitConfig 上传接口限流
		Events    EventsConfig    `mapstructure:"events"`     // EventsConfig 事件发布开关
		Auth      AuthConfig      `mapstructure:"auth"`       // AuthConfig 管理接口认证、会话密钥、主删除密钥
		Track     TrackConfig     `mapstructure:"track"`      // TrackConfig 上传与保留策略
		LastFM    LastFMConfig    `mapstructure:"lastfm"`     // LastFMConfig 封面与购买链接提供方
	}
)

var (
	// globalConfig 全局配置实例.
	globalConfig AppConfig
	// appViper 全局 Viper 实例.
	appViper *viper.Viper
	// reloadHooks 热重载后依次调用.
	reloadHooks []func(cfg *AppConfig)
)

// OnReload 注册热重载回调，需在 InitConfig 之后、服务启动之前调用.
func OnReload(fn func(cfg *AppConfig)) {
	reloadHooks = append(reloadHooks, fn)
}

// InitConfig 加载应用程序配置，支持多种格式(yaml、json、toml、dotenv)并启用热重载.
// 找不到配置文件时使用默认值和环境变量.
func InitConfig(path string) error {
	appViper = viper.New()
	// 设置默认值
	setAllDefaults(appViper)

	// 检查path是否是文件
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		// 是文件，使用SetConfigFile，Viper会自动检测类型
		appViper.SetConfigFile(path)
	} else {
		// 是目录，设置配置名和路径
		appViper.SetConfigName("config")
		appViper.AddConfigPath(path)
		appViper.AddConfigPath(path + "/configs")

		exts := []string{"yaml", "yml", "json", "toml", "env", "dotenv"}

		for _, ext := range exts {
			cfg := filepath.Join(path, "config."+ext)
			if _, err := os.Stat(cfg); err == nil {
				appViper.SetConfigFile(cfg)

				break
			}
		}
	}

	appViper.SetEnvPrefix("OCTAVIA")
	appViper.AutomaticEnv()

	// 读取配置
	if err := appViper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	// 解析到全局配置
	var cfg AppConfig
	if err := appViper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	globalConfig = cfg

	reloadConfigs(appViper, globalConfig.Server.ReloadConfig)

	return nil
}

// Validate 使用 rule 标签校验配置.
func (c *AppConfig) Validate() error {
	return rule.ValidateStruct(c)
}

// setAllDefaults 设置所有配置的默认值.
func setAllDefaults(v *viper.Viper) {
	var serverConfig ServerConfig

	var dbConfig DBConfig

	var kvConfig KVConfig

	var mqConfig MQConfig

	var logConfig LogConfig

	var metricsConfig MetricsConfig

	var tracingConfig TracingConfig

	var rateLimitConfig RateLimitConfig

	var eventsConfig EventsConfig

	var authConfig AuthConfig

	var trackConfig TrackConfig

	var lastfmConfig LastFMConfig

	serverConfig.setDefaults(v)
	dbConfig.setDefaults(v)
	kvConfig.setDefaults(v)
	mqConfig.setDefaults(v)
	logConfig.setDefaults(v)
	metricsConfig.setDefaults(v)
	tracingConfig.setDefaults(v)
	rateLimitConfig.setDefaults(v)
	eventsConfig.setDefaults(v)
	authConfig.setDefaults(v)
	trackConfig.setDefaults(v)
	lastfmConfig.setDefaults(v)
}

// reloadConfigs 热重载仅刷新可在运行期调整的字段（日志级别、限流），
// 已注入服务的配置在进程生命周期内保持只读.
func reloadConfigs(v *viper.Viper, isHotReload bool) {
	if !isHotReload {
		return
	}
	// 启用配置热重载
	v.OnConfigChange(func(e fsnotify.Event) {
		fmt.Println("Config file changed:", e.Name)
		fmt.Println("Reloading configuration...")

		var next AppConfig
		if err := v.Unmarshal(&next); err != nil {
			fmt.Printf("Error reloading config: %v\n", err)
			return
		}

		globalConfig.Log.Level = next.Log.Level
		globalConfig.RateLimit = next.RateLimit

		for _, fn := range reloadHooks {
			fn(&globalConfig)
		}
	})
	v.WatchConfig()
}

// GetConfig 返回全局配置实例.
func GetConfig() *AppConfig {
	return &globalConfig
}

func GetViper() *viper.Viper {
	return appViper
}
