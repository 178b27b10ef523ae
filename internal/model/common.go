package model

// 运行/站点状态枚举（sync_runs.status 与 sync_site_logs.status）
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// 同步模式枚举（sync_runs.mode）
const (
	ModeInitial     = "initial"
	ModeIncremental = "incremental"
)

// 运行阶段（显式状态机：DISCOVERING→SYNCING→AGGREGATING→PRUNING→DONE，FAILED仅限灾难性失败）
type RunPhase string

const (
	PhaseDiscovering RunPhase = "DISCOVERING"
	PhaseSyncing     RunPhase = "SYNCING"
	PhaseAggregating RunPhase = "AGGREGATING"
	PhasePruning     RunPhase = "PRUNING"
	PhaseDone        RunPhase = "DONE"
	PhaseFailed      RunPhase = "FAILED"
)
