// Package app 提供应用程序的初始化和配置功能.
package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yeisme/octavia/pkg/configs"
	octx "github.com/yeisme/octavia/pkg/context"
	"github.com/yeisme/octavia/pkg/internal/handle"
	"github.com/yeisme/octavia/pkg/internal/jobs"
	"github.com/yeisme/octavia/pkg/internal/service"
	"github.com/yeisme/octavia/pkg/internal/storage"
	"github.com/yeisme/octavia/pkg/log"
	"github.com/yeisme/octavia/pkg/metrics"
	"github.com/yeisme/octavia/pkg/queue"
	"github.com/yeisme/octavia/pkg/scheduler"
	"github.com/yeisme/octavia/pkg/tracing"
)

// shutdownTimeout 优雅退出等待在途请求的上限.
const shutdownTimeout = 15 * time.Second

// App 持有 HTTP 引擎与其依赖的全部资源.
type App struct {
	Engine *gin.Engine

	config    *configs.AppConfig
	storage   *storage.Manager
	tracks    *service.TrackService
	scheduler *scheduler.Scheduler
	recorder  *queue.Recorder
	logger    zerolog.Logger
}

// NewApp 加载配置并初始化追踪、监控、存储、服务与路由.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	if err := configs.InitConfig(configPath); err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}

	config := configs.GetConfig()

	log.Init()
	configs.OnReload(func(cfg *configs.AppConfig) { log.SetLevel(cfg.Log.Level) })

	l := log.Logger()
	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	if err := tracing.InitTracer(ctx, config.Tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	metrics.InitMetrics(config.Metrics)

	opts := storage.Options{}
	if config.Metrics.Enabled {
		opts.Registerer = metrics.GetRegistry()
	}

	manager, err := storage.New(ctx, config, opts)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	a := &App{
		config:   config,
		storage:  manager,
		recorder: queue.NewRecorder(queue.DefaultRecorderSize),
		logger:   log.Component("app"),
	}

	if err := a.init(octx.WithStorageManager(ctx, manager)); err != nil {
		_ = manager.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) init(ctx context.Context) error {
	tracks, err := NewTrackService(ctx, a.config, a.storage)
	if err != nil {
		return err
	}

	a.tracks = tracks

	logger := log.Logger()

	sched, err := scheduler.NewScheduler(logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	a.scheduler = sched

	if err := jobs.RegisterJobs(sched, tracks, a.config.Track.ScavengeInterval, log.Component("jobs")); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}

	for _, topic := range queue.TrackTopics() {
		a.storage.MQ.AddConsumer("recorder."+topic, topic, a.recorder.Handle)
	}

	accounts, err := loadAdminAccounts(a.config.Auth)
	if err != nil {
		return err
	}

	secret, err := sessionSecret(a.config.Auth, a.logger)
	if err != nil {
		return err
	}

	h := handle.New(handle.Options{
		Tracks:    tracks,
		Scheduler: sched,
		Recorder:  a.recorder,
		DB:        a.storage.DB,
		KV:        a.storage.KV.KVStore,
		MQ:        a.storage.MQ,
		Logger:    log.Component("http"),
	})

	a.Engine = newEngine(a.config, h, secret, accounts)

	return nil
}

// Run 启动消费者、调度器与 HTTP 服务，阻塞直到 ctx 取消或服务出错，然后优雅退出.
func (a *App) Run(ctx context.Context) error {
	if err := a.storage.MQ.Start(ctx); err != nil {
		return errors.Join(fmt.Errorf("start mq consumers: %w", err), a.Close(context.Background()))
	}

	// 补偿停机期间积压的过期曲目，之后再按间隔调度
	jobs.CatchUp(ctx, a.tracks, log.Component("jobs"))
	a.scheduler.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port),
		Handler:           a.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      a.config.Server.GetTimeoutDuration(),
	}

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info().Str("addr", srv.Addr).Str("version", configs.AppVersion).Msg("http server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	var runErr error

	select {
	case <-ctx.Done():
		a.logger.Info().Msg("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http server shutdown failed")
	}

	return errors.Join(runErr, a.Close(shutdownCtx))
}

// Close 停止调度器并释放存储与追踪资源.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.scheduler != nil {
		errs = append(errs, a.scheduler.Shutdown())
	}

	errs = append(errs, a.storage.Close(), tracing.ShutdownTracer(ctx))

	return errors.Join(errs...)
}

// sessionSecret 返回会话签名密钥；未配置时随机生成，重启后旧会话失效.
func sessionSecret(cfg configs.AuthConfig, l zerolog.Logger) ([]byte, error) {
	if cfg.SessionSecret != "" {
		return []byte(cfg.SessionSecret), nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate session secret: %w", err)
	}

	l.Warn().Msg("auth.session_secret not set, using a random secret")

	return secret, nil
}
