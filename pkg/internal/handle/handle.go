// Package handle 提供请求处理器的实现，用于处理 HTTP 请求.
package handle

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yeisme/octavia/pkg/internal/service"
	"github.com/yeisme/octavia/pkg/internal/storage/kv"
	"github.com/yeisme/octavia/pkg/internal/types"
	"github.com/yeisme/octavia/pkg/queue"
	"github.com/yeisme/octavia/pkg/scheduler"
)

// Pinger 可做连通性检查的依赖.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options Handlers 的依赖；Scheduler、Recorder 与各健康检查依赖可以为 nil.
type Options struct {
	Tracks    *service.TrackService
	Scheduler *scheduler.Scheduler
	Recorder  *queue.Recorder
	DB        Pinger
	KV        kv.KVStore
	MQ        Pinger
	Logger    zerolog.Logger
}

// Handlers 聚合所有 HTTP 处理器.
type Handlers struct {
	tracks    *service.TrackService
	scheduler *scheduler.Scheduler
	recorder  *queue.Recorder
	db        Pinger
	kv        kv.KVStore
	mq        Pinger
	logger    zerolog.Logger
}

// New 创建处理器集合.
func New(opts Options) *Handlers {
	return &Handlers{
		tracks:    opts.Tracks,
		scheduler: opts.Scheduler,
		recorder:  opts.Recorder,
		db:        opts.DB,
		kv:        opts.KV,
		mq:        opts.MQ,
		logger:    opts.Logger,
	}
}

// statusFor 把服务层错误映射为 HTTP 状态码与错误码.
func statusFor(err error) (int, string) {
	var maxBytes *http.MaxBytesError

	switch {
	case errors.Is(err, service.ErrPayloadTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, service.ErrUnsupportedMediaType):
		return http.StatusBadRequest, "unsupported_media_type"
	case errors.Is(err, service.ErrUnreadableMetadata):
		return http.StatusBadRequest, "unreadable_metadata"
	case errors.Is(err, service.ErrIncompleteMetadata):
		return http.StatusBadRequest, "incomplete_metadata"
	case errors.Is(err, service.ErrMissingFile):
		return http.StatusBadRequest, "missing_file"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, service.ErrScavengeRunning):
		return http.StatusConflict, "scavenge_running"
	case errors.Is(err, context.Canceled):
		return http.StatusBadRequest, "canceled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// respondError 写错误响应；5xx 记录错误日志，内部细节不返回给客户端.
func (h *Handlers) respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	_ = c.Error(err)

	msg := err.Error()

	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")

		msg = http.StatusText(status)
	}

	c.AbortWithStatusJSON(status, types.ErrorResponse{Error: msg, Code: code})
}
