// Package metadata 从暂存的音频文件中读取标题、艺人与专辑标签.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/dhowden/tag"
	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrUnreadable 文件不是受支持的音频容器或标签无法解析.
	ErrUnreadable = errors.New("metadata: unreadable audio file")
	// ErrIncomplete 标题、艺人或专辑为空.
	ErrIncomplete = errors.New("metadata: incomplete tags")
)

// Tags 提取到的标签，已去除首尾空白并截断到长度上限.
type Tags struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
	// Format 标签格式，如 ID3v2.3、MP4
	Format string `json:"format"`
}

// supported 受支持的容器类型.
var supported = map[tag.FileType]bool{
	tag.MP3:  true,
	tag.M4A:  true,
	tag.M4B:  true,
	tag.M4P:  true,
	tag.ALAC: true,
}

// Extractor 标签提取器.
type Extractor struct {
	maxLen int
}

// New 创建提取器，maxLen 为每个字段保留的最大字符数.
func New(maxLen int) *Extractor {
	return &Extractor{maxLen: maxLen}
}

// Extract 读取 path 的标签. 无法解析返回 ErrUnreadable，字段缺失返回 ErrIncomplete（同时返回已读到的字段）.
func (e *Extractor) Extract(ctx context.Context, path string) (Tags, error) {
	if err := ctx.Err(); err != nil {
		return Tags{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Tags{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	m, err := read(f)
	if err != nil {
		// 没有任何标签块的 MPEG 音频仍是可读文件，只是字段缺失
		if errors.Is(err, tag.ErrNoTagsFound) && untaggedAudio(path) {
			return Tags{}, ErrIncomplete
		}

		return Tags{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	// ID3v1 没有 FileType 信息，只在 mp3 中出现
	if m.Format() != tag.ID3v1 && !supported[m.FileType()] {
		return Tags{}, fmt.Errorf("%w: unsupported container %s", ErrUnreadable, m.FileType())
	}

	tags := Tags{
		Title:  e.clean(m.Title()),
		Artist: e.clean(m.Artist()),
		Album:  e.clean(m.Album()),
		Format: string(m.Format()),
	}

	if tags.Title == "" || tags.Artist == "" || tags.Album == "" {
		return tags, ErrIncomplete
	}

	return tags, nil
}

// untaggedAudio 按内容嗅探判断文件是否为 MPEG 音频帧流.
func untaggedAudio(path string) bool {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}

	return mt.Is("audio/mpeg")
}

// read 包装 tag.ReadFrom，畸形文件触发的 panic 视为解析失败.
func read(f *os.File) (m tag.Metadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("tag reader panic: %v", r)
		}
	}()

	return tag.ReadFrom(f)
}

// clean 去除 NUL 与首尾空白，修复非法 UTF-8，并按字符截断.
func (e *Extractor) clean(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))

	if e.maxLen > 0 && utf8.RuneCountInString(s) > e.maxLen {
		s = string([]rune(s)[:e.maxLen])
	}

	return s
}
