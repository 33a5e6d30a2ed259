package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	octx "github.com/yeisme/octavia/pkg/context"
	"github.com/yeisme/octavia/pkg/internal/filestore"
	"github.com/yeisme/octavia/pkg/internal/metadata"
	"github.com/yeisme/octavia/pkg/internal/model"
	"github.com/yeisme/octavia/pkg/metrics"
	"github.com/yeisme/octavia/pkg/tracing"
)

// deleteKeyAlphabet 删除密钥字符集.
const deleteKeyAlphabet = "abcdefghijklmnopqrstuvwxyz"

// Upload 一次上传请求.
type Upload struct {
	Body io.Reader
	// Filename 客户端声明的文件名，只用于取扩展名
	Filename string
	// ContentType 客户端声明的 MIME 类型
	ContentType string
	// Size 客户端声明的长度，未知时为 -1
	Size int64
}

// Ingest 校验、暂存、提取标签、补全封面与购买链接、入库并提升文件.
// 成功返回已持久化的记录（包含删除密钥）；任何失败都不会留下最终文件或半条记录.
func (s *TrackService) Ingest(ctx context.Context, up Upload) (t *model.Track, err error) {
	ctx, span := tracing.StartSpan(ctx, "track.ingest")
	defer span.End()

	defer func() {
		tracing.RecordError(span, err)
		recordIngest(err)
	}()

	if up.Body == nil {
		return nil, ErrMissingFile
	}

	if up.Size > s.cfg.MaxUploadSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, up.Size, s.cfg.MaxUploadSize)
	}

	mediaType := normalizeMediaType(up.ContentType)
	if !s.cfg.IsAllowedType(mediaType) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, up.ContentType)
	}

	staged, err := s.files.Stage(ctx, up.Body, up.Filename, s.cfg.MaxUploadSize)
	if err != nil {
		// 请求体上限由 handler 的 MaxBytesReader 设置，没有 Content-Length 时在这里才触发
		var maxBytes *http.MaxBytesError

		switch {
		case errors.Is(err, filestore.ErrTooLarge), errors.As(err, &maxBytes):
			return nil, fmt.Errorf("%w: exceeds %d bytes", ErrPayloadTooLarge, s.cfg.MaxUploadSize)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
	}

	span.SetAttributes(attribute.Int64("upload.size", staged.Size), attribute.String("upload.content_type", staged.ContentType))

	promoted := false

	defer func() {
		if promoted {
			return
		}

		if _, rerr := s.files.Remove(staged.Path); rerr != nil {
			s.logger.Warn().Err(rerr).Str("path", staged.Path).Msg("remove staged upload failed")
		}
	}()

	tags, err := s.extractor.Extract(ctx, staged.Path)
	if err != nil {
		switch {
		case errors.Is(err, metadata.ErrIncomplete):
			return nil, fmt.Errorf("%w: title, artist and album are required", ErrIncompleteMetadata)
		case errors.Is(err, metadata.ErrUnreadable):
			return nil, fmt.Errorf("%w: %v", ErrUnreadableMetadata, err)
		default:
			return nil, err
		}
	}

	artwork, buylink := s.enrich(ctx, tags)

	deleteKey, err := gonanoid.Generate(deleteKeyAlphabet, s.cfg.DeleteKeyLength)
	if err != nil {
		return nil, fmt.Errorf("generate delete key: %w", err)
	}

	t = &model.Track{
		Title:        tags.Title,
		Artist:       tags.Artist,
		Album:        tags.Album,
		Artwork:      artwork,
		Buylink:      buylink,
		DateUploaded: s.now(),
		DeleteKey:    deleteKey,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	span.SetAttributes(attribute.Int64("track.id", int64(t.ID)))

	final, err := s.files.Promote(staged.Path, s.files.FinalName(t.ID, t.Title, staged.Ext))
	if err != nil {
		s.rollback(t.ID)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	promoted = true

	stored, err := s.repo.SetPath(ctx, t.ID, final)
	if err != nil {
		if _, rerr := s.files.Remove(final); rerr != nil {
			s.logger.Warn().Err(rerr).Str("path", final).Msg("remove promoted file failed")
		}

		s.rollback(t.ID)

		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	metrics.IngestBytes.Add(float64(staged.Size))
	s.publishUploaded(ctx, stored, staged.Size, staged.ContentType)

	l := octx.WithTraceContext(ctx, s.logger)
	l.Info().
		Uint("track_id", stored.ID).
		Str("title", stored.Title).
		Str("artist", stored.Artist).
		Int64("size", staged.Size).
		Bool("buylink", stored.Buylink != nil).
		Msg("track ingested")

	return stored, nil
}

// enrich 并行解析封面与购买链接，整体受 EnrichmentTimeout 约束.
func (s *TrackService) enrich(ctx context.Context, tags metadata.Tags) (artwork string, buylink *string) {
	if s.cfg.EnrichmentTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.cfg.EnrichmentTimeout)
		defer cancel()
	}

	var g errgroup.Group

	g.Go(func() error {
		artwork = s.resolver.ResolveArtwork(ctx, tags.Artist, tags.Album)
		return nil
	})
	g.Go(func() error {
		buylink = s.resolver.ResolvePurchaseLink(ctx, tags.Artist, tags.Title)
		return nil
	})

	_ = g.Wait()

	if artwork == "" {
		artwork = s.cfg.MissingArtwork
	}

	return artwork, buylink
}

// rollback 删除未完成上传的记录. 使用独立的 ctx，请求被取消时也要执行.
func (s *TrackService) rollback(id uint) {
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()

	if err := s.repo.HardDelete(ctx, id); err != nil {
		s.logger.Error().Err(err).Uint("track_id", id).Msg("rollback track record failed")
	}
}

// normalizeMediaType 去除参数并转为小写，无法解析时原样返回小写形式.
func normalizeMediaType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}

	return mt
}

func recordIngest(err error) {
	reason := ""

	switch {
	case err == nil:
		metrics.IngestTotal.WithLabelValues(metrics.OutcomeOK, "").Inc()
		return
	case errors.Is(err, ErrPayloadTooLarge):
		reason = "too_large"
	case errors.Is(err, ErrUnsupportedMediaType):
		reason = "media_type"
	case errors.Is(err, ErrUnreadableMetadata):
		reason = "unreadable"
	case errors.Is(err, ErrIncompleteMetadata):
		reason = "incomplete"
	case errors.Is(err, ErrMissingFile):
		reason = "missing_file"
	default:
		metrics.IngestTotal.WithLabelValues(metrics.OutcomeError, "internal").Inc()
		return
	}

	metrics.IngestTotal.WithLabelValues(metrics.OutcomeRejected, reason).Inc()
}
