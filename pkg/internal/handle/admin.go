package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/octavia/pkg/queue"
	"github.com/yeisme/octavia/pkg/scheduler"
)

// Jobs 返回定时任务状态.
//
//	@Summary	定时任务列表
//	@Tags		管理
//	@Produce	json
//	@Success	200	{array}	scheduler.JobInfo
//	@Security	BasicAuth
//	@Router		/admin/jobs [get]
func (h *Handlers) Jobs() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.scheduler == nil {
			c.JSON(http.StatusOK, []scheduler.JobInfo{})
			return
		}

		c.JSON(http.StatusOK, h.scheduler.GetJobInfos())
	}
}

// Scavenge 同步执行一次回收并返回报告；已有回收在运行时返回 409.
//
//	@Summary	立即回收
//	@Tags		管理
//	@Produce	json
//	@Success	200	{object}	types.ScavengeReport
//	@Failure	409	{object}	types.ErrorResponse
//	@Security	BasicAuth
//	@Router		/admin/scavenge [post]
func (h *Handlers) Scavenge() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := h.tracks.Scavenge(c.Request.Context())
		if err != nil {
			h.respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

// Events 返回最近的曲目事件.
//
//	@Summary	最近事件
//	@Tags		管理
//	@Produce	json
//	@Success	200	{array}	queue.RecordedEvent
//	@Security	BasicAuth
//	@Router		/admin/events [get]
func (h *Handlers) Events() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.recorder == nil {
			c.JSON(http.StatusOK, []queue.RecordedEvent{})
			return
		}

		c.JSON(http.StatusOK, h.recorder.Recent())
	}
}
