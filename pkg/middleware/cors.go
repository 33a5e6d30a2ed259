package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/octavia/pkg/configs"
)

// CORSMiddleware CORS中间件.
func CORSMiddleware(cfg configs.ServerConfig) gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"}
	config.ExposeHeaders = []string{"Location", "Content-Disposition"}

	// 会话 cookie 只在调试时允许跨域携带
	if cfg.Debug {
		config.AllowAllOrigins = false
		config.AllowOriginFunc = func(string) bool { return true }
		config.AllowCredentials = true
	}

	return cors.New(config)
}
