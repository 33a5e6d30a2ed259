package app

import (
	"fmt"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/octavia/pkg/api"
	"github.com/yeisme/octavia/pkg/configs"
	"github.com/yeisme/octavia/pkg/internal/service"
	"github.com/yeisme/octavia/pkg/metrics"
	"github.com/yeisme/octavia/pkg/middleware"
)

// newEngine 组装中间件与路由. 音频下载已经是压缩格式，不参与 gzip.
func newEngine(config *configs.AppConfig, handlers api.Handlers, secret []byte, accounts gin.Accounts) *gin.Engine {
	engine := gin.New()

	engine.Use(
		middleware.GinLoggerMiddleware(),
		gin.Recovery(),
		middleware.CORSMiddleware(config.Server),
		middleware.TracingMiddleware(),
		middleware.PrometheusMiddleware(),
		middleware.SessionMiddleware(middleware.SessionConfig{
			Secret: secret,
			Cookie: config.Auth.SessionCookie,
			Secure: config.Auth.SecureCookie,
			TTL:    config.Track.PlaySessionTTL,
		}),
	)

	if config.Server.Gzip {
		engine.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{service.FilesRoute})))
	}

	opts := api.Options{}

	if config.RateLimit.Active() {
		opts.Upload = append(opts.Upload, middleware.RateLimitMiddleware(config.RateLimit))
	}

	if len(accounts) > 0 {
		opts.AdminAuth = middleware.BasicAuthMiddleware(accounts)
	}

	api.RegisterGroup(engine, handlers, opts)
	metrics.RegisterRoutes(config.Metrics, engine)

	return engine
}

// loadAdminAccounts 读取管理员凭据；文件不存在时不启用管理接口.
func loadAdminAccounts(cfg configs.AuthConfig) (gin.Accounts, error) {
	if cfg.CredentialsFile == "" {
		return nil, nil
	}

	accounts, err := middleware.LoadAccounts(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("load admin credentials: %w", err)
	}

	return accounts, nil
}
