package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	octx "github.com/yeisme/octavia/pkg/context"
	"github.com/yeisme/octavia/pkg/internal/model"
	"github.com/yeisme/octavia/pkg/internal/repository"
	"github.com/yeisme/octavia/pkg/internal/types"
	"github.com/yeisme/octavia/pkg/metrics"
	"github.com/yeisme/octavia/pkg/tracing"
)

// stagingMaxAge 超过该时间的暂存文件视为崩溃残留.
const stagingMaxAge = time.Hour

// Scavenge 回收所有过期曲目的音频文件：删除文件（不存在不算错误）、清空路径，
// 并尽力补全缺失的购买链接. 单条记录失败只记录日志，不影响其余记录.
// 重复执行收敛到相同状态.
func (s *TrackService) Scavenge(ctx context.Context) (report types.ScavengeReport, err error) {
	if !s.scavengeMu.TryLock() {
		return report, ErrScavengeRunning
	}
	defer s.scavengeMu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "track.scavenge")
	defer span.End()

	start := time.Now()
	report.StartedAt = s.now()
	report.Cutoff = s.retentionCutoff()

	defer func() {
		report.Duration = time.Since(start)
		metrics.ScavengeDuration.Observe(report.Duration.Seconds())
		span.SetAttributes(
			attribute.Int("scavenge.candidates", report.Candidates),
			attribute.Int("scavenge.scavenged", report.Scavenged),
			attribute.Int("scavenge.failed", report.Failed),
		)
		tracing.RecordError(span, err)
	}()

	tracks, err := s.repo.ListExpired(ctx, report.Cutoff)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	report.Candidates = len(tracks)

	for i := range tracks {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		s.scavengeOne(ctx, &tracks[i], &report)
	}

	swept, err := s.files.SweepStaging(stagingMaxAge, time.Now())
	if err != nil {
		s.logger.Warn().Err(err).Msg("sweep staging failed")
	}

	report.StagingSwept = swept

	l := octx.WithTraceContext(ctx, s.logger)
	l.Info().
		Time("cutoff", report.Cutoff).
		Int("candidates", report.Candidates).
		Int("scavenged", report.Scavenged).
		Int("files_missing", report.FilesMissing).
		Int("backfilled", report.Backfilled).
		Int("failed", report.Failed).
		Int("staging_swept", report.StagingSwept).
		Msg("scavenge finished")

	return report, nil
}

func (s *TrackService) scavengeOne(ctx context.Context, t *model.Track, report *types.ScavengeReport) {
	l := s.logger.With().Uint("track_id", t.ID).Logger()

	hadFile := t.HasFile()
	fileMissing := false

	if hadFile {
		existed, err := s.files.Remove(*t.Path)
		if err != nil {
			// 文件仍在，保留路径以便下次重试
			l.Error().Err(err).Str("path", *t.Path).Msg("remove expired file failed")
			report.Failed++
			metrics.ScavengedTotal.WithLabelValues(metrics.OutcomeError).Inc()

			return
		}

		fileMissing = !existed
	}

	var link *string
	if t.Buylink == nil {
		link = s.resolver.ResolvePurchaseLink(ctx, t.Artist, t.Title)
	}

	backfilled := false

	_, err := s.repo.Update(ctx, t.ID, func(cur *model.Track) error {
		cur.Path = nil

		if cur.Buylink == nil && link != nil {
			cur.Buylink = link
			backfilled = true
		}

		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		// 期间被删除
		return
	}

	if err != nil {
		l.Error().Err(err).Msg("update scavenged track failed")
		report.Failed++
		metrics.ScavengedTotal.WithLabelValues(metrics.OutcomeError).Inc()

		return
	}

	if hadFile {
		report.Scavenged++
	}

	if fileMissing {
		report.FilesMissing++
	}

	if backfilled {
		report.Backfilled++
	}

	metrics.ScavengedTotal.WithLabelValues(metrics.OutcomeOK).Inc()

	if hadFile || backfilled {
		s.publishScavenged(ctx, t, fileMissing, backfilled)
		l.Info().Bool("file_missing", fileMissing).Bool("backfilled", backfilled).Msg("track scavenged")
	}
}
