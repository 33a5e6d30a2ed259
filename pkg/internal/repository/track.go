// Package repository 提供曲目记录的持久化访问.
//
// 所有读-改-写都在单条记录粒度的事务中完成：支持行锁的数据库使用 SELECT ... FOR UPDATE，
// SQLite 依靠其写锁串行化. 播放次数只通过原子自增修改，Update 不会覆盖它.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeisme/octavia/pkg/internal/model"
)

// ErrNotFound 记录不存在或已被软删除.
var ErrNotFound = errors.New("repository: track not found")

// mutableColumns Update 允许写回的列；plays 与 delete_key 永远不在其中.
var mutableColumns = []string{"title", "artist", "album", "artwork", "path", "buylink"}

// TrackRepository 基于 GORM 的曲目仓储.
type TrackRepository struct {
	db *gorm.DB
}

// NewTrackRepository 创建曲目仓储.
func NewTrackRepository(db *gorm.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Migrate 自动迁移曲目表.
func (r *TrackRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&model.Track{}); err != nil {
		return fmt.Errorf("migrate tracks: %w", err)
	}

	return nil
}

// Create 插入新记录，成功后 t.ID 被赋值.
func (r *TrackRepository) Create(ctx context.Context, t *model.Track) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create track: %w", err)
	}

	return nil
}

// Get 按 id 读取未删除的记录.
func (r *TrackRepository) Get(ctx context.Context, id uint) (*model.Track, error) {
	var t model.Track

	err := r.db.WithContext(ctx).First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get track %d: %w", id, err)
	}

	return &t, nil
}

// ListActive 返回 cutoff 之后上传且未删除的记录，按上传时间倒序.
func (r *TrackRepository) ListActive(ctx context.Context, cutoff time.Time) ([]model.Track, error) {
	var tracks []model.Track

	err := r.db.WithContext(ctx).
		Where("date_uploaded > ?", cutoff).
		Order("date_uploaded DESC").
		Order("id DESC").
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("list active tracks: %w", err)
	}

	return tracks, nil
}

// ListExpired 返回 cutoff 及之前上传、仍需处理（文件未回收或缺少购买链接）的记录，按 id 升序.
func (r *TrackRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]model.Track, error) {
	var tracks []model.Track

	err := r.db.WithContext(ctx).
		Where("date_uploaded <= ?", cutoff).
		Where("path IS NOT NULL OR buylink IS NULL").
		Order("id ASC").
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("list expired tracks: %w", err)
	}

	return tracks, nil
}

// Update 在事务中锁定记录，交给 fn 修改后写回可变列.
// fn 返回错误时事务回滚；fn 内不应做文件或网络 I/O.
func (r *TrackRepository) Update(ctx context.Context, id uint, fn func(t *model.Track) error) (*model.Track, error) {
	var out model.Track

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&out, id).Error; err != nil {
			return err
		}

		if err := fn(&out); err != nil {
			return err
		}

		return tx.Model(&out).Select(mutableColumns).Updates(&out).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("update track %d: %w", id, err)
	}

	return &out, nil
}

// SetPath 记录文件已提升到最终路径.
func (r *TrackRepository) SetPath(ctx context.Context, id uint, path string) (*model.Track, error) {
	return r.Update(ctx, id, func(t *model.Track) error {
		t.Path = &path
		return nil
	})
}

// IncrementPlays 原子地将播放次数加一，返回新的次数.
func (r *TrackRepository) IncrementPlays(ctx context.Context, id uint) (int64, error) {
	var plays int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Track{}).
			Where("id = ?", id).
			UpdateColumn("plays", gorm.Expr("plays + ?", 1))
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.Model(&model.Track{}).Where("id = ?", id).Pluck("plays", &plays).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}

	if err != nil {
		return 0, fmt.Errorf("increment plays %d: %w", id, err)
	}

	return plays, nil
}

// Delete 软删除记录并清空文件路径，返回删除前的记录以便调用方删除文件.
func (r *TrackRepository) Delete(ctx context.Context, id uint) (*model.Track, error) {
	var before model.Track

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&before, id).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.Track{}).Where("id = ?", id).UpdateColumn("path", nil).Error; err != nil {
			return err
		}

		return tx.Delete(&model.Track{}, id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("delete track %d: %w", id, err)
	}

	return &before, nil
}

// HardDelete 物理删除记录，仅用于回滚未完成的上传.
func (r *TrackRepository) HardDelete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Unscoped().Delete(&model.Track{}, id).Error; err != nil {
		return fmt.Errorf("hard delete track %d: %w", id, err)
	}

	return nil
}

// Count 统计未删除的记录数.
func (r *TrackRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Track{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count tracks: %w", err)
	}

	return n, nil
}
