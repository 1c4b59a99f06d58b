// Package watch 是守护模式的事件管线：fsnotify 监听源目录，新文件静默
// 之后交给排序核心处理。监听只是薄胶水——所有决策都在 sorter 里。
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/dbader/photosorter/internal/config"
	"github.com/dbader/photosorter/internal/domain"
	"github.com/dbader/photosorter/internal/fingerprint"
	"github.com/dbader/photosorter/internal/infra/cache"
	"github.com/dbader/photosorter/internal/scan"
	"github.com/dbader/photosorter/internal/sorter"
)

// Logf 是 watch 的输出回调（通常写 stderr）；nil 则静默。
type Logf func(format string, args ...any)

// Run 启动守护循环：先把源目录里已有的文件清一遍（watcher 就绪之后扫，
// 保证不漏事件），然后逐个处理新到文件，直到 ctx 取消。
//
// watch 模式始终 apply——只观察不移动的 watcher 没有意义；dry-run 请用 run。
// 单个文件的任何失败只产生一行日志，循环本身永远活着。
func Run(ctx context.Context, eff config.EffectiveConfig, logf Logf) error {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	store := cache.New(eff.Dst, false)
	ix := fingerprint.NewIndex()
	if entries, ok, err := store.ReadIndex(); err == nil && ok {
		ix.Seed(entries)
	}

	srt := sorter.New(sorter.Options{
		Dst:        eff.Dst,
		Apply:      true,
		YearDirs:   eff.YearDirs,
		Extensions: eff.Extensions,
	}, ix)

	excluded := scan.ExcludedPaths(eff.Src, append(append([]string(nil), eff.ExcludeDirs...), eff.Dst))
	allowed := scan.AllowedExts(eff.Extensions)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addRecursive(w, eff.Src, excluded); err != nil {
		return err
	}

	// 静默窗口到期的路径从计时器 goroutine 塞回事件循环，处理保持单 worker。
	pending := make(chan string, 128)
	deb := newDebouncer(eff.Settle, func(path string) {
		select {
		case pending <- path:
		case <-ctx.Done():
		}
	})
	defer deb.CancelAll()

	// 初始清扫：watcher 先就位再扫，启动前落地的文件不会漏掉。
	sweep(eff, srt, store, ix, logf)

	logf("监听中：%s -> %s（settle=%s）", eff.Src, eff.Dst, eff.Settle)

	for {
		select {
		case <-ctx.Done():
			deb.CancelAll()
			_ = store.WriteIndex(ix.Snapshot())
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if scan.IsExcluded(ev.Name, excluded) {
				continue
			}

			// 新建目录：补上监听（fsnotify 不递归），目录本身不处理。
			if ev.Op&fsnotify.Create != 0 {
				if fi, err := os.Lstat(ev.Name); err == nil && fi.IsDir() {
					_ = addRecursive(w, ev.Name, excluded)
					continue
				}
			}

			if _, ok := allowed[strings.ToLower(filepath.Ext(ev.Name))]; !ok {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				deb.Add(ev.Name)
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				deb.Cancel(ev.Name)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logf("监听错误：%v", err)

		case path := <-pending:
			res := srt.Place(path)
			logItem(logf, eff, res)
			// 每个终态后落盘：守护进程可能随时被杀，索引丢了也只是慢，不是错。
			_ = store.WriteIndex(ix.Snapshot())
		}
	}
}

// sweep 处理源目录里已经存在的文件（启动时调用一次）。
func sweep(eff config.EffectiveConfig, srt *sorter.Sorter, store cache.Store, ix *fingerprint.Index, logf Logf) {
	excl := append(append([]string(nil), eff.ExcludeDirs...), eff.Dst)
	files, err := scan.ScanImages(eff.Src, excl, eff.Extensions)
	if err != nil {
		logf("初始扫描失败：%v", err)
		return
	}
	if len(files) == 0 {
		return
	}

	logf("初始清扫：%d 个文件", len(files))
	for _, f := range files {
		res := srt.Place(f.AbsPath)
		res.Src = f.RelPath
		logItem(logf, eff, res)
	}
	_ = store.WriteIndex(ix.Snapshot())
}

// addRecursive 为 dir 及其所有子目录添加监听（排除目录整棵跳过）。
func addRecursive(w *fsnotify.Watcher, dir string, excluded []string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			return nil
		}
		if scan.IsExcluded(path, excluded) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func logItem(logf Logf, eff config.EffectiveConfig, res domain.ItemResult) {
	src := res.Src
	if rel, err := filepath.Rel(eff.Src, res.Src); err == nil && filepath.IsAbs(res.Src) {
		src = rel
	}

	switch res.Status {
	case domain.StatusSorted:
		logf("已归档：%s -> %s", src, res.Dst)
	case domain.StatusDuplicate:
		logf("重复丢弃：%s（与 %s 内容相同）", src, res.DuplicateOf)
	case domain.StatusSkipped:
		logf("跳过：%s（%s）", src, res.ErrorMsg)
	case domain.StatusFailed:
		logf("失败：%s %s：%s", src, res.ErrorCode, res.ErrorMsg)
	}
}

