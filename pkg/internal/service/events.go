package service

import (
	"context"

	"github.com/yeisme/octavia/pkg/internal/model"
	"github.com/yeisme/octavia/pkg/queue"
	"github.com/yeisme/octavia/pkg/tracing"
)

const producer = "octavia"

func trackRef(t *model.Track) queue.TrackRef {
	return queue.TrackRef{
		ID:       t.ID,
		Title:    t.Title,
		Artist:   t.Artist,
		Album:    t.Album,
		FileName: t.FileName(),
	}
}

// publish 尽力发布事件，失败只记录日志.
func publish[T any](ctx context.Context, s *TrackService, enabled bool, topic string, payload T) {
	if s.publisher == nil || !s.events.Enabled || !enabled {
		return
	}

	err := queue.Publish(s.publisher, topic, payload,
		queue.WithTraceID(tracing.TraceID(ctx)),
		queue.WithProducer(producer),
	)
	if err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("publish event failed")
	}
}

func (s *TrackService) publishUploaded(ctx context.Context, t *model.Track, size int64, contentType string) {
	publish(ctx, s, s.events.Track.Uploaded, queue.TopicTrackUploaded, queue.TrackUploadedPayload{
		Track:       trackRef(t),
		Size:        size,
		ContentType: contentType,
		HasBuylink:  t.Buylink != nil,
	})
}

func (s *TrackService) publishDeleted(ctx context.Context, t *model.Track, byMaster bool) {
	publish(ctx, s, s.events.Track.Deleted, queue.TopicTrackDeleted, queue.TrackDeletedPayload{
		Track:    trackRef(t),
		ByMaster: byMaster,
	})
}

func (s *TrackService) publishScavenged(ctx context.Context, t *model.Track, fileMissing, backfilled bool) {
	publish(ctx, s, s.events.Track.Scavenged, queue.TopicTrackScavenged, queue.TrackScavengedPayload{
		Track:             trackRef(t),
		FileMissing:       fileMissing,
		BuylinkBackfilled: backfilled,
	})
}

func (s *TrackService) publishPlayed(ctx context.Context, t *model.Track) {
	publish(ctx, s, s.events.Track.Played, queue.TopicTrackPlayed, queue.TrackPlayedPayload{
		Track: trackRef(t),
		Plays: t.Plays,
	})
}
