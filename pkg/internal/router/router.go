// Package router 管理路由配置，用于设置 HTTP 服务的路由.
package router

import (
	"github.com/gin-gonic/gin"
)

// TrackHandlers 曲目相关处理器，由 pkg/internal/handle 提供并注入.
type TrackHandlers interface {
	Index() gin.HandlerFunc
	UploadForm() gin.HandlerFunc
	Upload() gin.HandlerFunc
	Show() gin.HandlerFunc
	Delete() gin.HandlerFunc
	Download() gin.HandlerFunc
}

// Register 绑定曲目路由. upload 中的中间件（如限流）只作用于 POST /new.
//
//	GET    /                  -> Index
//	GET    /new               -> UploadForm
//	POST   /new               -> Upload
//	GET    /:id               -> Show
//	DELETE /:id?key=          -> Delete
//	GET    /files/:filename   -> Download
func Register(r gin.IRouter, handlers TrackHandlers, upload ...gin.HandlerFunc) {
	r.GET("/", handlers.Index())
	r.GET("/new", handlers.UploadForm())
	r.POST("/new", append(upload, handlers.Upload())...)
	r.GET("/:id", handlers.Show())
	r.DELETE("/:id", handlers.Delete())
	r.GET("/files/:filename", handlers.Download())
}
