package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dbader/photosorter/internal/app/run"
	"github.com/dbader/photosorter/internal/config"
	"github.com/dbader/photosorter/internal/domain"
	"github.com/dbader/photosorter/internal/infra/fsx"
	"github.com/dbader/photosorter/internal/watch"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	case "watch":
		if code := watchCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Src:      ra.Src,
		Dst:      ra.Dst,
		DstSet:   ra.DstSet,
		Apply:    ra.Apply,
		ApplySet: ra.ApplySet,
	})
	if err != nil {
		rr := reportForConfigError(cwdAbs, ra, err)
		emitReport(rr)
		return 1
	}

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(context.Background(), eff, obs)

	// apply：必须写入 <dst>/cache/report.json；dry-run 禁止落盘。
	if eff.Apply {
		if err := writeReportFile(eff.Dst, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 report.json 失败：%v\n", err)
			emitReport(rr)
			return 1
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if rr.Summary.Failed == 0 {
		return 0
	}
	return 1
}

func watchCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printWatchUsage()
			return 0
		}
	}

	ra, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printWatchUsage()
		return 2
	}
	if ra.ApplySet {
		fmt.Fprintf(os.Stderr, "参数错误：watch 模式始终 apply，不接受 --apply\n\n")
		printWatchUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	// watch 始终 apply：只观察不移动的 watcher 没有意义。
	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Src:      ra.Src,
		Dst:      ra.Dst,
		DstSet:   ra.DstSet,
		Apply:    true,
		ApplySet: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logf := func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	}

	if err := watch.Run(ctx, eff, logf); err != nil {
		fmt.Fprintf(os.Stderr, "watch 失败：%v\n", err)
		return 1
	}
	return 0
}

type cliArgs struct {
	Src      string
	Dst      string
	DstSet   bool
	Apply    bool
	ApplySet bool
}

func parseArgs(args []string) (cliArgs, error) {
	ra := cliArgs{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--dst":
			if i+1 >= len(args) {
				return cliArgs{}, fmt.Errorf("--dst 需要一个值")
			}
			i++
			ra.Dst = args[i]
			ra.DstSet = true
		case strings.HasPrefix(a, "--dst="):
			ra.Dst = strings.TrimPrefix(a, "--dst=")
			ra.DstSet = true
		case a == "--apply":
			ra.Apply = true
			ra.ApplySet = true
		case strings.HasPrefix(a, "--apply="):
			v := strings.TrimPrefix(a, "--apply=")
			switch v {
			case "true":
				ra.Apply = true
			case "false":
				ra.Apply = false
			default:
				return cliArgs{}, fmt.Errorf("--apply 只能是 true 或 false，实际是 %q", v)
			}
			ra.ApplySet = true
		case strings.HasPrefix(a, "-"):
			return cliArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ra.Src != "" {
				return cliArgs{}, fmt.Errorf("重复的 src：%q 与 %q", ra.Src, a)
			}
			ra.Src = a
		}
	}

	if ra.DstSet && strings.TrimSpace(ra.Dst) == "" {
		return cliArgs{}, fmt.Errorf("--dst 不能为空")
	}

	return ra, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  photosorter run [src] [--dst DIR] [--apply[=true|false]]
  photosorter watch [src] [--dst DIR]

命令：
  run     整理一遍源目录（默认 dry-run）
  watch   守护模式：监听源目录，新文件到达后自动归档

使用 "photosorter run --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  photosorter run [src] [--dst DIR] [--apply[=true|false]]

参数：
  src         源目录（未指定则读 <cwd>/photosorter.json 的 src）
  --dst       目标根目录（未指定则读配置文件的 dst）
  --apply     执行移动与重复删除（默认 dry-run）；支持 --apply=false 覆盖配置中的 apply=true
  -h, --help  显示帮助

归档规则：
  <dst>/YYYY-MM/YYYY-MM-DD HH.MM.SS[-N].ext（EXIF 拍摄时间优先，文件时间兜底）
  与目标树内容重复的文件会被删除，不会复制进去。
`)
}

func printWatchUsage() {
	fmt.Fprint(os.Stdout, `用法：
  photosorter watch [src] [--dst DIR]

说明：
  监听 src，新文件静默（settle_ms，默认 500ms）后自动归档到 dst。
  watch 模式始终 apply。Ctrl-C / SIGTERM 退出。
`)
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "完成：sorted=%d duplicates=%d skipped=%d failed=%d\n",
			rr.Summary.Sorted, rr.Summary.Duplicates, rr.Summary.Skipped, rr.Summary.Failed,
		)
		if rr.Summary.Failed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				key := it.Src
				if key == "" {
					key = "<unknown>"
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：sorted=%d duplicates=%d skipped=%d failed=%d\n",
		rr.Summary.Sorted, rr.Summary.Duplicates, rr.Summary.Skipped, rr.Summary.Failed,
	)
}

func reportForConfigError(cwdAbs string, ra cliArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Src:        cwdAbs,
		DryRun:     !(ra.ApplySet && ra.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(dst string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Join(dst, "cache"), "report.json", b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	// 这两行用于降低“完成后不知道产物在哪”的摩擦，且不影响 stdout JSON 契约。
	if w == nil {
		return
	}
	if eff.Apply {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Dst, "cache", "report.json"))
	}
	fmt.Fprintf(w, "dst: %s\n", eff.Dst)
}
