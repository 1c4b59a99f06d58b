package run

import (
	"context"
	"fmt"
	"time"

	"github.com/dbader/photosorter/internal/config"
	"github.com/dbader/photosorter/internal/domain"
	"github.com/dbader/photosorter/internal/fingerprint"
	"github.com/dbader/photosorter/internal/infra/cache"
	"github.com/dbader/photosorter/internal/scan"
	"github.com/dbader/photosorter/internal/sorter"
)

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为 item 级失败（单个文件失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息
// （由上层决定是否启用）。
//
// 取消语义：单个文件一旦开始处理就跑到终态（moved/duplicate/failed），
// 不做中途打断；ctx 只在文件边界检查。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		Src:       eff.Src,
		Dst:       eff.Dst,
		DryRun:    !eff.Apply,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 128),
	}

	store := cache.New(eff.Dst, !eff.Apply)

	ix := fingerprint.NewIndex()
	if entries, ok, err := store.ReadIndex(); err == nil && ok {
		// 坏缓存/过期条目在命中时会被 stat 校验淘汰，这里照单全收。
		ix.Seed(entries)
	}

	scanStarted := time.Now()
	files, err := scan.ScanImages(eff.Src, scanExcludes(eff), eff.Extensions)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("扫描失败：%v", err)))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	scanDur := time.Since(scanStarted)

	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{"files": len(files)}, scanDur)
	}

	srt := sorter.New(sorter.Options{
		Dst:        eff.Dst,
		Apply:      eff.Apply,
		YearDirs:   eff.YearDirs,
		Extensions: eff.Extensions,
	}, ix)

	// 执行阶段：严格单 worker 顺序处理——去重后缀的分配顺序等于到达顺序，
	// 目标树上不存在任何并发竞争。
	for i, f := range files {
		if ctx.Err() != nil {
			break
		}

		oneStarted := time.Now()
		res := srt.Place(f.AbsPath)
		res.Src = f.RelPath
		rr.Items = append(rr.Items, res)

		if obs != nil {
			obs.OnItemDone(i+1, len(files), res, time.Since(oneStarted))
		}
	}

	// 指纹索引只是加速，写失败不影响本次结果。
	if eff.Apply {
		_ = store.WriteIndex(ix.Snapshot())
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

// scanExcludes 返回源目录扫描的排除列表：配置的 exclude_dirs，
// 外加目标根目录（dst 位于 src 之下的就地整理场景，不能重复扫已归档文件）。
func scanExcludes(eff config.EffectiveConfig) []string {
	out := append([]string(nil), eff.ExcludeDirs...)
	out = append(out, eff.Dst)
	return out
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}
