package router

import (
	"github.com/gin-gonic/gin"
)

// AdminHandlers 管理接口处理器.
type AdminHandlers interface {
	Jobs() gin.HandlerFunc
	Scavenge() gin.HandlerFunc
	Events() gin.HandlerFunc
}

// RegisterAdminRoutes 在 /admin 下注册管理路由，auth 为认证中间件.
func RegisterAdminRoutes(g gin.IRouter, handlers AdminHandlers, auth gin.HandlerFunc) {
	admin := g.Group("/admin", auth)
	{
		admin.GET("/jobs", handlers.Jobs())
		admin.POST("/scavenge", handlers.Scavenge())
		admin.GET("/events", handlers.Events())
	}
}
