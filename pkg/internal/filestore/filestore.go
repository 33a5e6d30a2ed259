// Package filestore 管理音频文件的暂存、提升与删除.
//
// 上传先写入暂存目录中的唯一文件，校验通过后用 rename 原子地提升到最终路径，
// 读者永远看不到写了一半的最终文件.
package filestore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid"
)

// ErrTooLarge 写入字节数超过上限.
var ErrTooLarge = errors.New("filestore: payload exceeds limit")

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newName 生成时间有序且唯一的暂存文件名.
func newName(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// Store 文件存储，FilesDir 存放最终文件，StagingDir 存放暂存文件.
type Store struct {
	filesDir   string
	stagingDir string
	slugMax    int
}

// New 创建 Store 并确保目录存在.
func New(filesDir, stagingDir string, slugMax int) (*Store, error) {
	for _, dir := range []string{filesDir, stagingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	return &Store{filesDir: filesDir, stagingDir: stagingDir, slugMax: slugMax}, nil
}

// FilesDir 返回最终文件目录.
func (s *Store) FilesDir() string {
	return s.filesDir
}

// Staged 一份已完整写入暂存目录的上传.
type Staged struct {
	Path string
	Size int64
	// Ext 含点的扩展名，来自客户端文件名或内容探测
	Ext string
	// ContentType 基于内容探测的 MIME 类型
	ContentType string
}

// ctxReader 在每次 Read 前检查 ctx，客户端中断时尽快停止写盘.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}

// Stage 把 r 写入唯一命名的暂存文件；超过 limit 字节返回 ErrTooLarge.
// 任何失败都会删除暂存文件.
func (s *Store) Stage(ctx context.Context, r io.Reader, filename string, limit int64) (st *Staged, err error) {
	ext := Ext(filename)
	path := filepath.Join(s.stagingDir, newName(time.Now())+ext)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	n, err := io.Copy(f, io.LimitReader(ctxReader{ctx: ctx, r: r}, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		return nil, fmt.Errorf("write staging file: %w", err)
	}

	if n > limit {
		return nil, ErrTooLarge
	}

	st = &Staged{Path: path, Size: n, Ext: ext}

	if mt, derr := mimetype.DetectFile(path); derr == nil {
		st.ContentType = mt.String()

		if st.Ext == "" {
			st.Ext = mt.Extension()
		}
	}

	return st, nil
}

// FinalName 由 id、标题 slug 与扩展名得到最终文件名.
func (s *Store) FinalName(id uint, title, ext string) string {
	return fmt.Sprintf("%d-%s%s", id, Slug(title, s.slugMax), ext)
}

// Promote 把暂存文件原子地移动为 FilesDir 下的 name，返回最终路径.
// 跨文件系统时先复制到同目录的临时文件再 rename.
func (s *Store) Promote(stagedPath, name string) (string, error) {
	dst := filepath.Join(s.filesDir, name)

	err := os.Rename(stagedPath, dst)
	if err == nil {
		return dst, nil
	}

	if !errors.Is(err, syscall.EXDEV) {
		return "", fmt.Errorf("promote %s: %w", name, err)
	}

	tmp := filepath.Join(s.filesDir, "."+name+".partial")
	if err := copyFile(stagedPath, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("promote %s: %w", name, err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("promote %s: %w", name, err)
	}

	_ = os.Remove(stagedPath)

	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}

	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}

// Remove 删除文件；文件不存在不算错误，existed 报告删除前文件是否存在.
func (s *Store) Remove(path string) (existed bool, err error) {
	if path == "" {
		return false, nil
	}

	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return true, err
	}

	return true, nil
}

// Lookup 按文件名查找 FilesDir 下的文件；拒绝任何路径分隔或隐藏文件.
func (s *Store) Lookup(name string) (string, os.FileInfo, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", nil, os.ErrNotExist
	}

	path := filepath.Join(s.filesDir, name)

	info, err := os.Stat(path)
	if err != nil {
		return "", nil, err
	}

	if !info.Mode().IsRegular() {
		return "", nil, os.ErrNotExist
	}

	return path, info, nil
}

// ContentType 探测文件内容类型.
func ContentType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}

	return mt.String()
}

// SweepStaging 删除修改时间早于 olderThan 的暂存文件（进程崩溃后残留），返回删除数量.
func (s *Store) SweepStaging(olderThan time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(s.stagingDir)
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		if now.Sub(info.ModTime()) < olderThan {
			continue
		}

		if err := os.Remove(filepath.Join(s.stagingDir, e.Name())); err == nil {
			removed++
		}
	}

	return removed, nil
}
