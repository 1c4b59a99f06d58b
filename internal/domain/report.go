package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	// StatusSorted 表示文件已确定目的地（apply 时已移动；dry-run 为计划）。
	StatusSorted = "sorted"
	// StatusDuplicate 表示内容与目标树中已有文件重复（apply 时已删除源文件）。
	// 重复不是错误：检测并丢弃重复是符合预期的成功结果。
	StatusDuplicate = "duplicate"
	// StatusSkipped 表示文件被忽略（非图片扩展名 / 源文件已消失）。
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

const (
	ErrCodeDateUnresolved   = "date_unresolved"
	ErrCodeUnreadableFile   = "unreadable_file"
	ErrCodeTargetConflict   = "target_conflict"
	ErrCodeIOFailed         = "io_failed"
	ErrCodeMoveFailed       = "move_failed"
	ErrCodeConfigNotFound   = "config_not_found"
	ErrCodeConfigInvalid    = "config_invalid"
	ErrCodeConfigMissingSrc = "config_missing_src"
	ErrCodeConfigMissingDst = "config_missing_dst"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Sorted     int `json:"sorted"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// ItemResult 是单个输入文件的处理结果。每个文件独立成条：
// 单个文件失败不影响其他文件，也不会中断整次运行。
type ItemResult struct {
	Src string `json:"src"`
	Dst string `json:"dst"`

	Status     string     `json:"status"`
	DateSource DateSource `json:"date_source,omitempty"`

	// Fingerprint 是源文件内容的 SHA-1（hex）。重复判定只看内容，对改名免疫。
	Fingerprint string `json:"fingerprint,omitempty"`
	// DuplicateOf 在 status=duplicate 时给出目标树中内容相同的既有文件。
	DuplicateOf string `json:"duplicate_of,omitempty"`

	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 src 字典序；src=="" 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Src
		b := r.Items[j].Src
		if a == "" && b == "" {
			return false
		}
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusSorted:
			s.Sorted++
		case StatusDuplicate:
			s.Duplicates++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
