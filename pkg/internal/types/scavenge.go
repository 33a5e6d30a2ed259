package types

import "time"

// ScavengeReport 一次回收的结果.
type ScavengeReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Cutoff    time.Time     `json:"cutoff"`
	// Candidates 本次检查的过期记录数
	Candidates int `json:"candidates"`
	// Scavenged 清空了路径的记录数
	Scavenged int `json:"scavenged"`
	// FilesMissing 路径存在但文件已不在磁盘上
	FilesMissing int `json:"files_missing"`
	// Backfilled 补全了购买链接的记录数
	Backfilled int `json:"backfilled"`
	// Failed 单条处理失败的记录数
	Failed int `json:"failed"`
	// StagingSwept 清理的残留暂存文件数
	StagingSwept int `json:"staging_swept"`
}
