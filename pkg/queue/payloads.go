package queue

import "time"

// EventHeader 定义所有事件的通用头部元数据.
type EventHeader struct {
	// Topic 冗余记录消息主题，便于离线处理或转储后定位来源主题.
	Topic string `json:"topic"`
	// TraceID 分布式追踪/关联 ID，来自请求的 span.
	TraceID string `json:"trace_id,omitempty"`
	// Producer 生产者服务名或节点标识.
	Producer string `json:"producer,omitempty"`
	// OccurredAt 事件发生时间（UTC，RFC3339）.
	OccurredAt time.Time `json:"occurred_at"`
	// Version 事件负载版本，便于向后兼容演进.
	Version string `json:"version,omitempty"`
}

// Message 是统一的消息封装，Header + Payload.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// TrackRef 事件中携带的曲目摘要，不包含删除密钥.
type TrackRef struct {
	ID       uint   `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	FileName string `json:"file_name,omitempty"`
}

// TrackUploadedPayload 上传完成.
type TrackUploadedPayload struct {
	Track       TrackRef `json:"track"`
	Size        int64    `json:"size"`
	ContentType string   `json:"content_type"`
	HasBuylink  bool     `json:"has_buylink"`
}

// TrackDeletedPayload 曲目被删除.
type TrackDeletedPayload struct {
	Track TrackRef `json:"track"`
	// ByMaster 使用主删除密钥
	ByMaster bool `json:"by_master,omitempty"`
}

// TrackScavengedPayload 文件已回收.
type TrackScavengedPayload struct {
	Track TrackRef `json:"track"`
	// FileMissing 回收时文件已不存在
	FileMissing bool `json:"file_missing,omitempty"`
	// BuylinkBackfilled 本次回收补全了购买链接
	BuylinkBackfilled bool `json:"buylink_backfilled,omitempty"`
}

// TrackPlayedPayload 计入一次播放.
type TrackPlayedPayload struct {
	Track TrackRef `json:"track"`
	Plays int64    `json:"plays"`
}
