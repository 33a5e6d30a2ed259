package jobs

// 任务名称常量，便于统一管理与引用.
const (
	// JobScavenge 过期曲目回收.
	JobScavenge = "track.scavenge"
)
