package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dbader/photosorter/internal/domain"
)

// 错误码定义在 domain（对外报告的稳定词汇表）；这里只是包内别名。
const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 photosorter.json。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingSrc 表示无参运行但配置文件缺少 src 字段。
	ErrCodeMissingSrc = domain.ErrCodeConfigMissingSrc
	// ErrCodeMissingDst 表示 CLI 与配置文件都没有给出目标目录。
	ErrCodeMissingDst = domain.ErrCodeConfigMissingDst
)

const (
	// DefaultSettle 是 watch 模式的事件静默窗口默认值：文件最后一次写入后
	// 等这么久再处理，避免把写到一半的文件搬走。
	DefaultSettle = 500 * time.Millisecond
	// maxSettleMS 是 settle_ms 的上限；超出截断。
	maxSettleMS = 60_000
)

// CLIArgs 只包含 CLI 暴露的入口（src/dst/apply），并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 config.apply=true。
type CLIArgs struct {
	Src string

	Dst    string
	DstSet bool

	Apply    bool
	ApplySet bool
}

// FileConfig 对应 photosorter.json 的解析结构。
type FileConfig struct {
	Src         string   `json:"src"`
	Dst         string   `json:"dst"`
	Apply       *bool    `json:"apply"`
	ExcludeDirs []string `json:"exclude_dirs"`
	Extensions  []string `json:"extensions"`
	YearDirs    bool     `json:"year_dirs"`
	SettleMS    int      `json:"settle_ms"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置
// （实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Src string
	Dst string

	Apply bool

	ExcludeDirs []string
	Extensions  []string

	// YearDirs 启用原始布局 "YYYY/YYYY-MM"（默认扁平 "YYYY-MM"）。
	YearDirs bool

	// Settle 只在 watch 模式下生效。
	Settle time.Duration
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingSrc:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 src", e.Code, e.Path)
	case ErrCodeMissingDst:
		return fmt.Sprintf("%s：缺少目标目录（--dst 或配置文件的 dst）", e.Code)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 按固定规则发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 src：尝试读取 <src>/photosorter.json（可选）
// 2) CLI 未提供 src：必须读取 <cwd>/photosorter.json（必选），且其中必须包含 src
//
// 覆盖优先级（固定）：
// - src：CLI src > config src
// - dst：CLI --dst > config dst（两边都没有 => config_missing_dst）
// - apply：CLI --apply/--apply=false > config > 默认 false
// - 其他字段：仅由 config 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Src) != "" {
		// CLI 给了 src：配置文件可选，位置固定在 <src>/photosorter.json。
		absSrc := absCleanFrom(cwdAbs, cli.Src)
		cfgPath := filepath.Join(absSrc, "photosorter.json")

		fc, _, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}

		return merge(cwdAbs, absSrc, cli, fc, cfgPath)
	}

	// CLI 没给 src：必须读取 <cwd>/photosorter.json，且其中必须包含 src。
	cfgPath := filepath.Join(cwdAbs, "photosorter.json")
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Src) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingSrc, Path: cfgPath}
	}

	absSrc := absCleanFrom(cwdAbs, fc.Src)
	return merge(cwdAbs, absSrc, cli, fc, cfgPath)
}

func merge(cwdAbs, absSrc string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	// dst：CLI > config；必填。
	dstRaw := ""
	if cli.DstSet {
		dstRaw = cli.Dst
	} else if strings.TrimSpace(fc.Dst) != "" {
		dstRaw = fc.Dst
	}
	if strings.TrimSpace(dstRaw) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingDst, Path: cfgPath}
	}
	// 相对的 dst 以配置文件所在语境为基准：CLI 给的相对 cwd，config 给的相对 src。
	base := cwdAbs
	if !cli.DstSet {
		base = absSrc
	}
	absDst := absCleanFrom(base, dstRaw)

	if absDst == absSrc {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath,
			Err: fmt.Errorf("src 与 dst 不能是同一目录：%q", absSrc)}
	}
	// src 位于 dst 之内：源文件本身就在目标树里，查重会把它当作自己的重复。
	// 反过来（dst 在 src 之内，就地整理）是支持的：扫描会排除 dst。
	if isUnder(absSrc, absDst) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath,
			Err: fmt.Errorf("src 不能位于 dst 之内：%q 在 %q 之下", absSrc, absDst)}
	}

	// apply：CLI > config > 默认 false
	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	settleMS := fc.SettleMS
	if settleMS == 0 {
		return buildEffective(absSrc, absDst, apply, fc, DefaultSettle), nil
	}
	if settleMS < 0 {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath,
			Err: fmt.Errorf("settle_ms 不能为负数：%d", settleMS)}
	}
	if settleMS > maxSettleMS {
		settleMS = maxSettleMS
	}
	return buildEffective(absSrc, absDst, apply, fc, time.Duration(settleMS)*time.Millisecond), nil
}

func buildEffective(absSrc, absDst string, apply bool, fc FileConfig, settle time.Duration) EffectiveConfig {
	return EffectiveConfig{
		Src:         absSrc,
		Dst:         absDst,
		Apply:       apply,
		ExcludeDirs: append([]string(nil), fc.ExcludeDirs...),
		Extensions:  append([]string(nil), fc.Extensions...),
		YearDirs:    fc.YearDirs,
		Settle:      settle,
	}
}

// isUnder 判断 path 是否严格位于 base 之下（不含 base 本身）。
func isUnder(path, base string) bool {
	return strings.HasPrefix(path, base+string(filepath.Separator))
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
