// Package storage 聚合数据库、KV 与消息队列等存储资源.
//
// Example:
//
//	mgr, err := storage.New(ctx, cfg, storage.Options{})
//	if err != nil {
//	    // 处理错误
//	}
//	defer mgr.Close()
//
//	db := mgr.DB
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yeisme/octavia/pkg/configs"
	dbc "github.com/yeisme/octavia/pkg/internal/storage/db"
	kvc "github.com/yeisme/octavia/pkg/internal/storage/kv"
	mqc "github.com/yeisme/octavia/pkg/internal/storage/mq"
	nlog "github.com/yeisme/octavia/pkg/log"
)

// Manager 聚合所有存储资源.
type Manager struct {
	DB *dbc.Client
	KV *kvc.Client
	MQ *mqc.Client
}

// Options 控制初始化行为.
type Options struct {
	// Registerer 非空时注册数据库与 MQ 指标
	Registerer prometheus.Registerer
	// SkipMQ 跳过消息队列（CLI 等一次性命令不需要事件通道）
	SkipMQ bool
}

// New 按配置依次初始化 DB、KV、MQ，任何一步失败都会关闭已打开的资源.
func New(ctx context.Context, cfg *configs.AppConfig, opts Options) (*Manager, error) {
	m := &Manager{}

	db, err := dbc.New(ctx, &cfg.DB, dbc.Options{Metrics: opts.Registerer != nil})
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}

	m.DB = db

	kv, err := kvc.NewKVClient(ctx, &cfg.KV)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("init kv: %w", err)
	}

	m.KV = kv

	if !opts.SkipMQ {
		mq, err := mqc.New(ctx, &cfg.MQ, mqc.Options{Registerer: opts.Registerer})
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("init mq: %w", err)
		}

		m.MQ = mq
	}

	nlog.Logger().Info().
		Str("db", cfg.DB.GetDBType()).
		Str("kv", cfg.KV.GetKVType()).
		Str("mq", string(cfg.MQ.GetMQType())).
		Msg("storage manager initialized")

	return m, nil
}

// Close 关闭所有已初始化的资源.
func (m *Manager) Close() error {
	var errs []error

	if m.MQ != nil {
		errs = append(errs, m.MQ.Close())
	}

	if m.KV != nil {
		errs = append(errs, m.KV.Close())
	}

	if m.DB != nil {
		errs = append(errs, m.DB.Close())
	}

	return errors.Join(errs...)
}
