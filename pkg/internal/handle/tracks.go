package handle

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/octavia/pkg/internal/service"
	"github.com/yeisme/octavia/pkg/internal/types"
	"github.com/yeisme/octavia/pkg/middleware"
)

const (
	// uploadField multipart 中音频文件的字段名.
	uploadField = "file"
	// multipartSlack 请求体中除文件外的 multipart 开销上限.
	multipartSlack = 64 * 1024
)

// Index 列出保留期内的曲目.
//
//	@Summary	曲目列表
//	@Tags		曲目
//	@Produce	json
//	@Success	200	{object}	types.TrackListResponse
//	@Failure	500	{object}	types.ErrorResponse
//	@Router		/ [get]
func (h *Handlers) Index() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := h.tracks.List(c.Request.Context())
		if err != nil {
			h.respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// UploadForm 返回上传约束.
//
//	@Summary	上传约束
//	@Tags		曲目
//	@Produce	json
//	@Success	200	{object}	types.UploadFormResponse
//	@Router		/new [get]
func (h *Handlers) UploadForm() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := h.tracks.Config()

		c.JSON(http.StatusOK, types.UploadFormResponse{
			Field:         uploadField,
			MaxUploadSize: cfg.MaxUploadSize,
			AllowedTypes:  cfg.AllowedTypes,
			RetentionDays: cfg.RetentionDays,
		})
	}
}

// Upload 接收 multipart 上传. 成功时 302 跳转到曲目页，删除密钥通过会话闪存展示一次；
// 请求 Accept: application/json 时返回 201 与删除密钥.
//
//	@Summary	上传曲目
//	@Tags		曲目
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		file	formData	file	true	"音频文件（audio/mpeg, audio/mp3, audio/x-m4a）"
//	@Success	302
//	@Success	201	{object}	types.UploadResponse
//	@Failure	400	{object}	types.ErrorResponse
//	@Failure	413	{object}	types.ErrorResponse
//	@Failure	500	{object}	types.ErrorResponse
//	@Router		/new [post]
func (h *Handlers) Upload() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := h.tracks.Config().MaxUploadSize

		// 在读取任何字节之前按声明长度拒绝
		if c.Request.ContentLength > limit+multipartSlack {
			h.respondError(c, service.ErrPayloadTooLarge)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartSlack)

		part, err := filePart(c.Request)
		if err != nil {
			h.respondError(c, err)
			return
		}
		defer part.Close()

		track, err := h.tracks.Ingest(c.Request.Context(), service.Upload{
			Body:        part,
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Size:        -1,
		})
		if err != nil {
			h.respondError(c, err)
			return
		}

		c.Set("track_id", track.ID)

		url := "/" + strconv.FormatUint(uint64(track.ID), 10)

		if strings.Contains(c.GetHeader("Accept"), gin.MIMEJSON) {
			c.JSON(http.StatusCreated, types.UploadResponse{ID: track.ID, URL: url, DeleteKey: track.DeleteKey})
			return
		}

		if err := h.tracks.StoreFlash(c.Request.Context(), middleware.SessionID(c), track); err != nil {
			h.logger.Warn().Err(err).Uint("track_id", track.ID).Msg("store flash failed")
		}

		c.Redirect(http.StatusFound, url)
	}
}

// filePart 以流的方式找到名为 file 的文件部分，不把上传缓冲到内存或临时目录.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, service.ErrMissingFile
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, service.ErrMissingFile
		}

		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return nil, service.ErrPayloadTooLarge
			}

			return nil, service.ErrMissingFile
		}

		if part.FormName() == uploadField && part.FileName() != "" {
			return part, nil
		}

		_ = part.Close()
	}
}

// Show 返回曲目页面数据，并为当前会话计一次播放.
//
//	@Summary	曲目详情
//	@Tags		曲目
//	@Produce	json
//	@Param		id	path		int	true	"曲目 ID"
//	@Success	200	{object}	types.TrackView
//	@Failure	404	{object}	types.ErrorResponse
//	@Router		/{id} [get]
func (h *Handlers) Show() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := trackID(c)
		if !ok {
			h.respondError(c, service.ErrNotFound)
			return
		}

		view, err := h.tracks.View(c.Request.Context(), id, middleware.SessionID(c))
		if err != nil {
			h.respondError(c, err)
			return
		}

		// 可能携带一次性删除密钥
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, view)
	}
}

// Delete 使用删除密钥或主密钥删除曲目.
//
//	@Summary	删除曲目
//	@Tags		曲目
//	@Produce	json
//	@Param		id	path		int		true	"曲目 ID"
//	@Param		key	query		string	true	"删除密钥或主密钥"
//	@Success	200	{object}	types.DeleteResponse
//	@Failure	403	{object}	types.ErrorResponse
//	@Failure	404	{object}	types.ErrorResponse
//	@Router		/{id} [delete]
func (h *Handlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := trackID(c)
		if !ok {
			h.respondError(c, service.ErrNotFound)
			return
		}

		var req types.DeleteRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			h.respondError(c, service.ErrUnauthorized)
			return
		}

		if err := h.tracks.Delete(c.Request.Context(), id, req.Key); err != nil {
			h.respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.DeleteResponse{ID: id, Deleted: true})
	}
}

// Download 以附件形式返回音频文件.
//
//	@Summary	下载音频
//	@Tags		曲目
//	@Produce	octet-stream
//	@Param		filename	path	string	true	"文件名"
//	@Success	200
//	@Failure	404	{object}	types.ErrorResponse
//	@Router		/files/{filename} [get]
func (h *Handlers) Download() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("filename")

		path, contentType, _, err := h.tracks.OpenFile(name)
		if err != nil {
			h.respondError(c, err)
			return
		}

		c.Header("Content-Type", contentType)
		c.FileAttachment(path, name)
	}
}

func trackID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}

	c.Set("track_id", uint(id))

	return uint(id), true
}
