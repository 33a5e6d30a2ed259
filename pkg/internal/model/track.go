package model

import (
	"path/filepath"
	"time"

	"gorm.io/gorm"
)

// MaxTextLength 标题、艺人、专辑等文本字段的存储上限.
const MaxTextLength = 1024

// Track 曲目模型，唯一的持久化实体.
type Track struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Title   string `gorm:"size:1024;not null"       json:"title"`
	Artist  string `gorm:"size:1024;not null"       json:"artist"`
	Album   string `gorm:"size:1024;not null"       json:"album"`
	Artwork string `gorm:"size:1024;not null"       json:"artwork"`
	// Path 音频文件位置，回收后置空
	Path *string `gorm:"size:1024" json:"-"`
	// Buylink 购买链接，可能在回收时回填
	Buylink      *string   `gorm:"size:2048"          json:"buylink,omitempty"`
	DateUploaded time.Time `gorm:"index;not null"     json:"date_uploaded"`
	DeleteKey    string    `gorm:"size:64;not null"   json:"-"`
	Plays        int64     `gorm:"not null;default:0" json:"plays"`

	CreatedAt time.Time      `json:"-"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// FileName 返回音频文件名，文件已回收时为空.
func (t *Track) FileName() string {
	if t.Path == nil || *t.Path == "" {
		return ""
	}

	return filepath.Base(*t.Path)
}

// HasFile 报告音频文件是否仍然存在.
func (t *Track) HasFile() bool {
	return t.Path != nil && *t.Path != ""
}

// ExpiresAt 返回按保留期计算的过期时间.
func (t *Track) ExpiresAt(retention time.Duration) time.Time {
	return t.DateUploaded.Add(retention)
}

// Expired 报告曲目在 now 时刻是否已超过保留期.
func (t *Track) Expired(now time.Time, retention time.Duration) bool {
	return !now.Before(t.ExpiresAt(retention))
}
