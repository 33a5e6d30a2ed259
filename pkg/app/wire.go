package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/yeisme/octavia/pkg/cache"
	"github.com/yeisme/octavia/pkg/configs"
	"github.com/yeisme/octavia/pkg/internal/filestore"
	"github.com/yeisme/octavia/pkg/internal/lastfm"
	"github.com/yeisme/octavia/pkg/internal/metadata"
	"github.com/yeisme/octavia/pkg/internal/repository"
	"github.com/yeisme/octavia/pkg/internal/service"
	"github.com/yeisme/octavia/pkg/internal/storage"
	"github.com/yeisme/octavia/pkg/log"
	"github.com/yeisme/octavia/pkg/queue"
)

// NewTrackService 基于已初始化的存储组装曲目服务，并完成表结构迁移.
// mgr.MQ 为 nil 时不发布事件.
func NewTrackService(ctx context.Context, config *configs.AppConfig, mgr *storage.Manager) (*service.TrackService, error) {
	repo := repository.NewTrackRepository(mgr.DB.DB)
	if err := repo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	files, err := filestore.New(config.Track.FilesDir, config.Track.StagingDir, config.Track.SlugMaxLength)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}

	resolver, err := newResolver(config, mgr)
	if err != nil {
		return nil, err
	}

	var pub queue.Publisher
	if mgr.MQ != nil {
		pub = mgr.MQ.Publisher()
	}

	return service.New(service.Options{
		Repo:      repo,
		Files:     files,
		Extractor: metadata.New(config.Track.MaxTagLength),
		Resolver:  resolver,
		KV:        mgr.KV.KVStore,
		Publisher: pub,
		Track:     config.Track,
		Events:    config.Events,
		MasterKey: config.Auth.MasterKey,
		Logger:    log.Component("track"),
	}), nil
}

// newResolver 未配置 API key 时返回禁用的解析器，只给出占位封面.
func newResolver(config *configs.AppConfig, mgr *storage.Manager) (*lastfm.Resolver, error) {
	opts := lastfm.ResolverOptions{
		Cache:          cache.NewCache(mgr.KV.KVStore, lastfm.CachePrefix),
		CacheTTL:       config.LastFM.CacheTTL,
		Timeout:        config.LastFM.Timeout,
		MissingArtwork: config.Track.MissingArtwork,
		Breaker:        config.LastFM.CircuitBreaker,
		Logger:         log.Component("lastfm"),
	}

	if config.LastFM.Enabled() {
		client, err := lastfm.NewClient(config.LastFM.APIKey, config.LastFM.BaseURL, config.LastFM.Country,
			lastfm.WithHTTPClient(&http.Client{Timeout: config.LastFM.Timeout}))
		if err != nil {
			return nil, fmt.Errorf("init lastfm client: %w", err)
		}

		opts.Provider = client
	}

	return lastfm.NewResolver(opts), nil
}
