package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/yeisme/octavia/pkg/cache"
	octx "github.com/yeisme/octavia/pkg/context"
	"github.com/yeisme/octavia/pkg/internal/filestore"
	"github.com/yeisme/octavia/pkg/internal/model"
	"github.com/yeisme/octavia/pkg/internal/repository"
	"github.com/yeisme/octavia/pkg/internal/types"
	"github.com/yeisme/octavia/pkg/metrics"
)

// FilesRoute 下载路由前缀.
const FilesRoute = "/files/"

// flashEntry 上传后一次性展示的删除密钥.
type flashEntry struct {
	TrackID   uint   `json:"track_id"`
	DeleteKey string `json:"delete_key"`
}

// StoreFlash 为会话记录刚上传曲目的删除密钥，下一次查看该曲目时展示并清除.
func (s *TrackService) StoreFlash(ctx context.Context, sid string, t *model.Track) error {
	if sid == "" {
		return nil
	}

	return cache.Set(ctx, s.flash, sid, flashEntry{TrackID: t.ID, DeleteKey: t.DeleteKey}, s.cfg.FlashTTL)
}

// View 返回曲目页面数据. 同一会话对同一曲目最多计一次播放；
// 会话闪存中有该曲目的删除密钥时一并返回并清除.
func (s *TrackService) View(ctx context.Context, id uint, sid string) (*types.TrackView, error) {
	t, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if sid != "" {
		s.countPlay(ctx, t, sid)
	}

	view := s.toView(t)

	if sid != "" {
		entry, err := cache.Take[flashEntry](ctx, s.flash, sid)

		switch {
		case err == nil && entry.TrackID == t.ID:
			view.DeleteKey = entry.DeleteKey
		case err != nil && !errors.Is(err, cache.ErrMiss):
			s.logger.Warn().Err(err).Uint("track_id", id).Msg("read flash failed")
		}
	}

	return view, nil
}

// countPlay 以 (会话, 曲目) 为键 set-if-absent，首次写入成功才自增.
// KV 故障时放弃计数，不影响查看.
func (s *TrackService) countPlay(ctx context.Context, t *model.Track, sid string) {
	first, err := cache.SetIfAbsent(ctx, s.plays, sid+"."+strconv.FormatUint(uint64(t.ID), 10), true, s.cfg.PlaySessionTTL)
	if err != nil {
		s.logger.Warn().Err(err).Uint("track_id", t.ID).Msg("play dedupe failed")
		return
	}

	if !first {
		return
	}

	plays, err := s.repo.IncrementPlays(ctx, t.ID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("track_id", t.ID).Msg("increment plays failed")
		return
	}

	t.Plays = plays

	metrics.PlaysTotal.Inc()
	s.publishPlayed(ctx, t)
}

func (s *TrackService) toView(t *model.Track) *types.TrackView {
	now := s.now()
	retention := s.cfg.GetRetention()

	view := &types.TrackView{
		ID:            t.ID,
		Title:         t.Title,
		Artist:        t.Artist,
		Album:         t.Album,
		Artwork:       t.Artwork,
		Buylink:       t.Buylink,
		Plays:         t.Plays,
		DateUploaded:  t.DateUploaded,
		ExpiresAt:     t.ExpiresAt(retention),
		Expired:       t.Expired(now, retention),
		FileAvailable: t.HasFile(),
	}

	if view.FileAvailable {
		view.DownloadURL = FilesRoute + t.FileName()
	}

	return view
}

// List 返回保留期内未删除的曲目，最新的在前.
func (s *TrackService) List(ctx context.Context) (*types.TrackListResponse, error) {
	tracks, err := s.repo.ListActive(ctx, s.retentionCutoff())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	out := &types.TrackListResponse{
		Total:         len(tracks),
		RetentionDays: s.cfg.RetentionDays,
		Tracks:        make([]types.TrackSummary, 0, len(tracks)),
	}

	for i := range tracks {
		t := &tracks[i]
		out.Tracks = append(out.Tracks, types.TrackSummary{
			ID:           t.ID,
			Title:        t.Title,
			Artist:       t.Artist,
			Album:        t.Album,
			Artwork:      t.Artwork,
			Plays:        t.Plays,
			DateUploaded: t.DateUploaded,
			URL:          "/" + strconv.FormatUint(uint64(t.ID), 10),
		})
	}

	return out, nil
}

// Delete 校验密钥后软删除记录并删除文件. key 必须等于曲目的删除密钥或主密钥；
// 否则返回 ErrUnauthorized，记录与文件保持不变.
func (s *TrackService) Delete(ctx context.Context, id uint, key string) (err error) {
	defer func() {
		switch {
		case err == nil:
			metrics.DeletesTotal.WithLabelValues(metrics.OutcomeOK).Inc()
		case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNotFound):
			metrics.DeletesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		default:
			metrics.DeletesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		}
	}()

	t, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	byOwner := key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(t.DeleteKey)) == 1
	byMaster := s.masterKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.masterKey)) == 1

	if !byOwner && !byMaster {
		s.logger.Warn().Uint("track_id", id).Msg("delete rejected: key mismatch")
		return ErrUnauthorized
	}

	before, err := s.repo.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}

	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if before.HasFile() {
		// 记录已删除，文件删除失败只能记录日志
		if _, err := s.files.Remove(*before.Path); err != nil {
			s.logger.Error().Err(err).Uint("track_id", id).Str("path", *before.Path).Msg("remove track file failed")
		}
	}

	s.publishDeleted(ctx, before, byMaster && !byOwner)
	l := octx.WithTraceContext(ctx, s.logger)
	l.Info().Uint("track_id", id).Bool("master", byMaster && !byOwner).Msg("track deleted")

	return nil
}

// OpenFile 按文件名查找可下载的音频文件，返回路径、内容类型与大小.
func (s *TrackService) OpenFile(name string) (path, contentType string, size int64, err error) {
	path, info, err := s.files.Lookup(name)
	if errors.Is(err, os.ErrNotExist) {
		return "", "", 0, ErrNotFound
	}

	if err != nil {
		return "", "", 0, fmt.Errorf("lookup %s: %w", name, err)
	}

	return path, filestore.ContentType(path), info.Size(), nil
}

func (s *TrackService) get(ctx context.Context, id uint) (*model.Track, error) {
	t, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return t, nil
}
