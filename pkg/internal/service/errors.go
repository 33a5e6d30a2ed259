package service

import "errors"

// 曲目服务的错误分类，HTTP 层据此映射状态码.
var (
	ErrPayloadTooLarge      = errors.New("payload too large")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrUnreadableMetadata   = errors.New("unreadable metadata")
	ErrIncompleteMetadata   = errors.New("incomplete metadata")
	ErrPersistence          = errors.New("persistence error")
	ErrNotFound             = errors.New("track not found")
	ErrUnauthorized         = errors.New("invalid delete key")
	ErrMissingFile          = errors.New("missing upload file")
	ErrScavengeRunning      = errors.New("scavenge already running")
)
