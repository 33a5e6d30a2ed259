// Package queue 定义消息主题常量，供发布/订阅使用.
package queue

// 主题命名规范：octavia.<域>.<动作>，尽量稳定且向后兼容.

const (
	// 曲目领域.
	TopicTrackUploaded  = "octavia.track.uploaded"  // 上传成功，文件已就位
	TopicTrackDeleted   = "octavia.track.deleted"   // 持有删除密钥的删除
	TopicTrackScavenged = "octavia.track.scavenged" // 保留期到期，文件被回收
	TopicTrackPlayed    = "octavia.track.played"    // 计入一次播放
)

// TrackTopics 返回全部曲目主题.
func TrackTopics() []string {
	return []string{TopicTrackUploaded, TopicTrackDeleted, TopicTrackScavenged, TopicTrackPlayed}
}
