package filestore

import (
	"regexp"
	"strings"
)

var (
	disallowed = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	spaces     = regexp.MustCompile(`\s+`)
	extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)
)

// DefaultSlug 标题清洗后为空时使用的名称.
const DefaultSlug = "track"

// Slug 把标题转换为文件名安全的片段：空白折叠为下划线，只保留 [A-Za-z0-9._-]，
// 截断到 maxLen 字节（maxLen <= 0 表示不截断），结果为空时返回 DefaultSlug.
// 建档与落盘使用同一个函数，保证两处永远一致.
func Slug(title string, maxLen int) string {
	s := spaces.ReplaceAllString(strings.TrimSpace(title), "_")
	s = disallowed.ReplaceAllString(s, "")
	s = strings.Trim(s, ".")

	if maxLen > 0 && len(s) > maxLen {
		s = s[:maxLen]
	}

	if s == "" {
		return DefaultSlug
	}

	return s
}

// Ext 返回客户端文件名的小写扩展名（含点），不合法时返回空串.
func Ext(filename string) string {
	i := strings.LastIndexAny(filename, `./\`)
	if i < 0 || filename[i] != '.' {
		return ""
	}

	ext := strings.ToLower(filename[i:])
	if !extPattern.MatchString(ext) {
		return ""
	}

	return ext
}
