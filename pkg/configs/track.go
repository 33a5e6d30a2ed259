package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultFilesDir          = "files"            // 音频文件目录
	DefaultStagingDir        = "files/.staging"   // 上传暂存目录，必须与音频文件目录位于同一文件系统
	DefaultMaxUploadSize     = 20 * 1024 * 1024   // 上传大小上限 20MiB
	DefaultRetentionDays     = 30                 // 曲目保留天数
	DefaultScavengeInterval  = 24 * time.Hour     // 清理任务间隔
	DefaultDeleteKeyLength   = 8                  // 删除密钥长度
	DefaultMaxTagLength      = 1024               // 标签字段最大长度
	DefaultMissingArtwork    = "/img/missing.png" // 封面缺失时的占位路径
	DefaultSlugMaxLength     = 64                 // 文件名 slug 最大长度
	DefaultPlaySessionTTL    = 30 * 24 * time.Hour
	DefaultFlashTTL          = 5 * time.Minute
	DefaultEnrichmentTimeout = 10 * time.Second
)

// TrackConfig 上传与保留策略配置.
type TrackConfig struct {
	FilesDir          string        `mapstructure:"files_dir"          rule:"required"`
	StagingDir        string        `mapstructure:"staging_dir"        rule:"required"`
	MaxUploadSize     int64         `mapstructure:"max_upload_size"    rule:"min=1"`
	AllowedTypes      []string      `mapstructure:"allowed_types"      rule:"min=1,dive,mediatype"`
	RetentionDays     int           `mapstructure:"retention_days"     rule:"min=1"`
	ScavengeInterval  time.Duration `mapstructure:"scavenge_interval"  rule:"min=1m"`
	DeleteKeyLength   int           `mapstructure:"delete_key_length"  rule:"min=8,max=64"`
	MaxTagLength      int           `mapstructure:"max_tag_length"     rule:"min=1,max=1024"`
	MissingArtwork    string        `mapstructure:"missing_artwork"    rule:"required"`
	SlugMaxLength     int           `mapstructure:"slug_max_length"    rule:"min=1,max=200"`
	PlaySessionTTL    time.Duration `mapstructure:"play_session_ttl"`
	FlashTTL          time.Duration `mapstructure:"flash_ttl"`
	EnrichmentTimeout time.Duration `mapstructure:"enrichment_timeout"`
}

// GetRetention 返回保留窗口.
func (c *TrackConfig) GetRetention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// IsAllowedType 判断声明的 MIME 类型是否在允许列表中.
func (c *TrackConfig) IsAllowedType(mimeType string) bool {
	for _, t := range c.AllowedTypes {
		if t == mimeType {
			return true
		}
	}

	return false
}

// setDefaults 设置曲目配置的默认值.
func (c *TrackConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("track.files_dir", DefaultFilesDir)
	v.SetDefault("track.staging_dir", DefaultStagingDir)
	v.SetDefault("track.max_upload_size", DefaultMaxUploadSize)
	v.SetDefault("track.allowed_types", []string{"audio/mpeg", "audio/mp3", "audio/x-m4a"})
	v.SetDefault("track.retention_days", DefaultRetentionDays)
	v.SetDefault("track.scavenge_interval", DefaultScavengeInterval)
	v.SetDefault("track.delete_key_length", DefaultDeleteKeyLength)
	v.SetDefault("track.max_tag_length", DefaultMaxTagLength)
	v.SetDefault("track.missing_artwork", DefaultMissingArtwork)
	v.SetDefault("track.slug_max_length", DefaultSlugMaxLength)
	v.SetDefault("track.play_session_ttl", DefaultPlaySessionTTL)
	v.SetDefault("track.flash_ttl", DefaultFlashTTL)
	v.SetDefault("track.enrichment_timeout", DefaultEnrichmentTimeout)
}
