package configs

import "github.com/spf13/viper"

// EventsConfig 控制事件发布的开关（全局与分主题）。
type EventsConfig struct {
	Enabled bool              `mapstructure:"enabled"` // 总开关
	Track   TrackEventsConfig `mapstructure:"track"`
}

// TrackEventsConfig 针对曲目领域的事件开关。
type TrackEventsConfig struct {
	Uploaded  bool `mapstructure:"uploaded"`
	Deleted   bool `mapstructure:"deleted"`
	Scavenged bool `mapstructure:"scavenged"`
	Played    bool `mapstructure:"played"`
}

func (c *EventsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("events.enabled", true)

	v.SetDefault("events.track.uploaded", true)
	v.SetDefault("events.track.deleted", true)
	v.SetDefault("events.track.scavenged", true)

	// 播放事件量可能很大，默认关闭
	v.SetDefault("events.track.played", false)
}
