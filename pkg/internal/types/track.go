// Package types 定义 HTTP 层的请求与响应结构.
package types

import "time"

// TrackView 单曲目页面数据.
type TrackView struct {
	ID           uint      `json:"id"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	Album        string    `json:"album"`
	Artwork      string    `json:"artwork"`
	Buylink      *string   `json:"buylink,omitempty"`
	Plays        int64     `json:"plays"`
	DateUploaded time.Time `json:"date_uploaded"`
	ExpiresAt    time.Time `json:"expires_at"`
	Expired      bool      `json:"expired"`
	// FileAvailable 文件尚未被回收
	FileAvailable bool   `json:"file_available"`
	DownloadURL   string `json:"download_url,omitempty"`
	// DeleteKey 仅在上传后的第一次查看中出现
	DeleteKey string `json:"delete_key,omitempty"`
}

// TrackSummary 列表中的一项.
type TrackSummary struct {
	ID           uint      `json:"id"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	Album        string    `json:"album"`
	Artwork      string    `json:"artwork"`
	Plays        int64     `json:"plays"`
	DateUploaded time.Time `json:"date_uploaded"`
	URL          string    `json:"url"`
}

// TrackListResponse 首页列表响应.
type TrackListResponse struct {
	Total         int            `json:"total"`
	RetentionDays int            `json:"retention_days"`
	Tracks        []TrackSummary `json:"tracks"`
}

// UploadFormResponse 上传约束.
type UploadFormResponse struct {
	Field         string   `json:"field"`
	MaxUploadSize int64    `json:"max_upload_size"`
	AllowedTypes  []string `json:"allowed_types"`
	RetentionDays int      `json:"retention_days"`
}

// UploadResponse 上传成功（非重定向客户端使用）.
type UploadResponse struct {
	ID        uint   `json:"id"`
	URL       string `json:"url"`
	DeleteKey string `json:"delete_key"`
}

// DeleteRequest 删除请求，key 为曲目删除密钥或主密钥.
type DeleteRequest struct {
	Key string `form:"key"`
}

// DeleteResponse 删除结果.
type DeleteResponse struct {
	ID      uint `json:"id"`
	Deleted bool `json:"deleted"`
}

// ErrorResponse 统一错误响应.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
