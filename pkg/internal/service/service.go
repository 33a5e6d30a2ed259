// Package service 实现曲目的上传、查看、删除与过期回收.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/octavia/pkg/cache"
	"github.com/yeisme/octavia/pkg/configs"
	"github.com/yeisme/octavia/pkg/internal/filestore"
	"github.com/yeisme/octavia/pkg/internal/metadata"
	"github.com/yeisme/octavia/pkg/internal/repository"
	"github.com/yeisme/octavia/pkg/internal/storage/kv"
	"github.com/yeisme/octavia/pkg/queue"
)

// KV 命名空间，键形如 "plays.<session>.<id>".
const (
	PlaysNamespace = "plays"
	FlashNamespace = "flash"
)

// rollbackTimeout 回滚未完成上传的超时.
const rollbackTimeout = 5 * time.Second

// Extractor 读取音频标签.
type Extractor interface {
	Extract(ctx context.Context, path string) (metadata.Tags, error)
}

// Resolver 解析封面与购买链接，不返回错误.
type Resolver interface {
	ResolveArtwork(ctx context.Context, artist, album string) string
	ResolvePurchaseLink(ctx context.Context, artist, title string) *string
}

// Options TrackService 的依赖. 配置在构造后只读.
type Options struct {
	Repo      *repository.TrackRepository
	Files     *filestore.Store
	Extractor Extractor
	Resolver  Resolver
	// KV 承载会话闪存与播放去重
	KV kv.KVStore
	// Publisher 为 nil 时不发布事件
	Publisher queue.Publisher
	Track     configs.TrackConfig
	Events    configs.EventsConfig
	MasterKey string
	Logger    zerolog.Logger
	// Now 测试注入时钟
	Now func() time.Time
}

// TrackService 曲目服务.
type TrackService struct {
	repo      *repository.TrackRepository
	files     *filestore.Store
	extractor Extractor
	resolver  Resolver
	plays     *cache.Cache
	flash     *cache.Cache
	publisher queue.Publisher
	cfg       configs.TrackConfig
	events    configs.EventsConfig
	masterKey string
	logger    zerolog.Logger
	now       func() time.Time

	// scavengeMu 防止回收任务重叠执行
	scavengeMu sync.Mutex
}

// New 创建曲目服务.
func New(opts Options) *TrackService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &TrackService{
		repo:      opts.Repo,
		files:     opts.Files,
		extractor: opts.Extractor,
		resolver:  opts.Resolver,
		plays:     cache.NewCache(opts.KV, PlaysNamespace),
		flash:     cache.NewCache(opts.KV, FlashNamespace),
		publisher: opts.Publisher,
		cfg:       opts.Track,
		events:    opts.Events,
		masterKey: opts.MasterKey,
		logger:    opts.Logger,
		now:       func() time.Time { return now().UTC() },
	}
}

// Config 返回曲目配置.
func (s *TrackService) Config() configs.TrackConfig {
	return s.cfg
}

// retentionCutoff 早于该时间上传的曲目已过期.
func (s *TrackService) retentionCutoff() time.Time {
	return s.now().Add(-s.cfg.GetRetention())
}
