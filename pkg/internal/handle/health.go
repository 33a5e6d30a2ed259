package handle

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 3 * time.Second

// HealthResponse 依赖健康状态.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthDB 检查数据库连通性.
//
//	@Summary	数据库健康检查
//	@Tags		健康
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Failure	503	{object}	HealthResponse
//	@Router		/health/db [get]
func (h *Handlers) HealthDB() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.health(c, h.db)
	}
}

// HealthKV 检查键值存储；存储未实现 Ping 时用一次 Exists 代替.
//
//	@Summary	KV 健康检查
//	@Tags		健康
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Failure	503	{object}	HealthResponse
//	@Router		/health/kv [get]
func (h *Handlers) HealthKV() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.kv == nil {
			h.health(c, nil)
			return
		}

		if p, ok := h.kv.(Pinger); ok {
			h.health(c, p)
			return
		}

		h.health(c, pingFunc(func(ctx context.Context) error {
			_, err := h.kv.Exists(ctx, "health")
			return err
		}))
	}
}

// HealthMQ 检查消息队列.
//
//	@Summary	MQ 健康检查
//	@Tags		健康
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Failure	503	{object}	HealthResponse
//	@Router		/health/mq [get]
func (h *Handlers) HealthMQ() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.health(c, h.mq)
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func (h *Handlers) health(c *gin.Context, p Pinger) {
	if p == nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: "not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
