package router

import (
	"github.com/gin-gonic/gin"
)

// HealthHandlers 依赖健康检查处理器.
type HealthHandlers interface {
	HealthDB() gin.HandlerFunc
	HealthKV() gin.HandlerFunc
	HealthMQ() gin.HandlerFunc
}

// RegisterHealthCheckRoute 注册健康检查路由.
func RegisterHealthCheckRoute(g gin.IRouter, handlers HealthHandlers) {
	healthRoutes := g.Group("/health")
	{
		healthRoutes.GET("/db", handlers.HealthDB())
		healthRoutes.GET("/kv", handlers.HealthKV())
		healthRoutes.GET("/mq", handlers.HealthMQ())
	}
}
