// Package jobs 负责注册与实现业务定时任务（基于 scheduler）.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/octavia/pkg/internal/service"
	"github.com/yeisme/octavia/pkg/internal/types"
	"github.com/yeisme/octavia/pkg/scheduler"
)

// Scavenger 执行一次完整回收.
type Scavenger interface {
	Scavenge(ctx context.Context) (types.ScavengeReport, error)
}

// RegisterJobs 注册周期性回收任务. 首次调度在一个间隔之后，启动时的补偿执行见 CatchUp.
func RegisterJobs(sched *scheduler.Scheduler, svc Scavenger, every time.Duration, logger zerolog.Logger) error {
	if sched == nil {
		return fmt.Errorf("scheduler is nil")
	}

	if svc == nil {
		return fmt.Errorf("scavenger is nil")
	}

	l := logger.With().Str("job", JobScavenge).Logger()

	return sched.AddInterval(JobScavenge, every, func(ctx context.Context) error {
		_, err := runScavenge(ctx, svc, l)
		return err
	})
}

// CatchUp 在启动时同步执行一次回收，处理进程停机期间积压的过期曲目.
// 失败只记录日志，不阻止启动.
func CatchUp(ctx context.Context, svc Scavenger, logger zerolog.Logger) types.ScavengeReport {
	l := logger.With().Str("job", JobScavenge).Str("trigger", "startup").Logger()

	report, err := runScavenge(ctx, svc, l)
	if err != nil {
		l.Error().Err(err).Msg("startup scavenge failed")
	}

	return report
}

func runScavenge(ctx context.Context, svc Scavenger, l zerolog.Logger) (types.ScavengeReport, error) {
	report, err := svc.Scavenge(ctx)
	if errors.Is(err, service.ErrScavengeRunning) {
		l.Info().Msg("scavenge already running, skipped")
		return report, nil
	}

	if err != nil {
		return report, err
	}

	if report.Failed > 0 {
		l.Warn().Int("failed", report.Failed).Int("candidates", report.Candidates).Msg("scavenge finished with failures")
	}

	return report, nil
}
