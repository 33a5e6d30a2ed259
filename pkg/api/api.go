// Package api 汇总 HTTP 路由表，把处理器与中间件绑定到 gin 引擎.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/octavia/pkg/internal/router"
)

// Handlers 应用层注入的全部处理器.
type Handlers interface {
	router.TrackHandlers
	router.HealthHandlers
	router.AdminHandlers
}

// Options 路由注册选项.
type Options struct {
	// Upload 只作用于 POST /new 的中间件，如限流
	Upload []gin.HandlerFunc
	// AdminAuth 为 nil 时不注册 /admin 路由
	AdminAuth gin.HandlerFunc
}

// RegisterGroup 注册曲目、健康检查与管理路由到传入的 gin 引擎.
func RegisterGroup(e *gin.Engine, handlers Handlers, opts Options) *gin.Engine {
	router.Register(e, handlers, opts.Upload...)
	router.RegisterHealthCheckRoute(e, handlers)

	if opts.AdminAuth != nil {
		router.RegisterAdminRoutes(e, handlers, opts.AdminAuth)
	}

	return e
}
