// Package sorter 是归档决策核心：给定一个源文件，解析拍摄时间、计算规范
// 目标路径、做全树内容查重、确定性地消解文件名冲突，最后执行移动。
package sorter

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dbader/photosorter/internal/domain"
	"github.com/dbader/photosorter/internal/exifdate"
	"github.com/dbader/photosorter/internal/fingerprint"
	"github.com/dbader/photosorter/internal/infra/fsx"
	"github.com/dbader/photosorter/internal/naming"
	"github.com/dbader/photosorter/internal/scan"
)

// Options 是 Sorter 的显式配置（没有任何包级可变状态）。
type Options struct {
	Dst        string   // 目标根目录（clean + absolute）
	Apply      bool     // false=dry-run：不移动、不删除、不写任何东西
	YearDirs   bool     // true 时使用 "YYYY/YYYY-MM" 两级目录（默认扁平 "YYYY-MM"）
	Extensions []string // 允许的扩展名（空则用 scan.DefaultExtensions 对应的默认集）
}

// Sorter 串行处理"文件出现"事件。移动 vs 按重复删除的决定权只在这里：
// 其他组件一概不碰文件系统。
//
// 约束：单 worker 顺序调用 Place（与去重后缀"不复用"的不变量绑定）；
// 并发分发事件的上层必须自己串行化。
type Sorter struct {
	dst      string
	apply    bool
	yearDirs bool
	allowed  map[string]struct{}

	ix *fingerprint.Index

	// claimed/planned 记录本次进程内已分配的目标路径与已落位的指纹。
	// dry-run 下磁盘不会变化，探测必须能看到之前"规划"的结果；
	// apply 下它们与磁盘状态一致，只是省一次 stat。
	claimed map[string]struct{}
	planned map[fingerprint.Fingerprint]string

	// 可替换的函数指针：拍摄时间解析依赖 EXIF 与平台时间戳，测试需要稳定模拟。
	resolveDate func(string) (time.Time, domain.DateSource, error)
}

func New(opts Options, ix *fingerprint.Index) *Sorter {
	return &Sorter{
		dst:         filepath.Clean(opts.Dst),
		apply:       opts.Apply,
		yearDirs:    opts.YearDirs,
		allowed:     scan.AllowedExts(opts.Extensions),
		ix:          ix,
		claimed:     make(map[string]struct{}, 16),
		planned:     make(map[fingerprint.Fingerprint]string, 16),
		resolveDate: exifdate.Resolve,
	}
}

// Place 处理一个"文件出现"事件，跑到终态为止：
// sorted（已移动/已规划）、duplicate（按重复丢弃）、skipped、failed。
//
// 所有失败都收敛为 item 级结果（带 error_code），绝不向上抛：
// 单个坏文件不能打断整次运行或守护进程。
func (s *Sorter) Place(srcAbs string) domain.ItemResult {
	item := domain.ItemResult{Src: srcAbs, Status: domain.StatusSorted}

	info, err := os.Lstat(srcAbs)
	if err != nil {
		if os.IsNotExist(err) {
			// watcher 竞态：事件送达前文件已被挪走/删除。静默跳过（与原始行为一致）。
			item.Status = domain.StatusSkipped
			item.ErrorMsg = "源文件已不存在"
			return item
		}
		return failed(item, domain.ErrCodeUnreadableFile, err)
	}
	if info.IsDir() {
		item.Status = domain.StatusSkipped
		item.ErrorMsg = "目录事件忽略"
		return item
	}

	ext := naming.Ext(srcAbs)
	if _, ok := s.allowed[ext]; !ok {
		item.Status = domain.StatusSkipped
		item.ErrorMsg = fmt.Sprintf("非图片扩展名 %q", ext)
		return item
	}

	t, source, err := s.resolveDate(srcAbs)
	if err != nil {
		if exifdate.IsMissingTimestamp(err) {
			// 没有可用时间：文件留在源目录等人工处理，绝不猜测。
			return failed(item, domain.ErrCodeDateUnresolved, err)
		}
		if os.IsNotExist(err) {
			item.Status = domain.StatusSkipped
			item.ErrorMsg = "源文件已不存在"
			return item
		}
		return failed(item, domain.ErrCodeUnreadableFile, err)
	}
	item.DateSource = source

	fp, err := s.ix.FileFingerprint(srcAbs)
	if err != nil {
		if os.IsNotExist(err) {
			item.Status = domain.StatusSkipped
			item.ErrorMsg = "源文件已不存在"
			return item
		}
		return failed(item, domain.ErrCodeUnreadableFile, err)
	}
	item.Fingerprint = string(fp)

	// 全树查重：目标树任何位置有同内容文件（哪怕时间戳漂移导致名义路径不同），
	// 源文件都按重复丢弃，目标树不新增任何东西。
	if prior, ok := s.planned[fp]; ok {
		return s.discardDuplicate(item, srcAbs, prior)
	}
	// skip=srcAbs：源目录嵌在目标树内时，文件不能和它自己比对。
	existing, found, err := s.ix.ExistsInTree(s.dst, fp, info.Size(), srcAbs)
	if err != nil {
		return failed(item, domain.ErrCodeIOFailed, err)
	}
	if found {
		return s.discardDuplicate(item, srcAbs, existing)
	}

	dirAbs := filepath.Join(s.dst, naming.SubDir(t, s.yearDirs))
	dstAbs, dupOf, err := s.resolveCollision(srcAbs, dirAbs, t, ext, fp)
	if err != nil {
		return failed(item, domain.ErrCodeIOFailed, err)
	}
	if dupOf != "" {
		return s.discardDuplicate(item, srcAbs, dupOf)
	}
	item.Dst = s.relToDst(dstAbs)

	if !s.apply {
		s.claimed[dstAbs] = struct{}{}
		s.planned[fp] = dstAbs
		return item
	}

	if err := fsx.EnsureDir(dirAbs); err != nil {
		if fsx.IsPathTypeConflict(err) {
			return failed(item, domain.ErrCodeTargetConflict, err)
		}
		return failed(item, domain.ErrCodeIOFailed, err)
	}

	// move：最后一步。失败时源文件原样保留，避免无声的数据丢失。
	if err := fsx.MoveFile(srcAbs, dstAbs); err != nil {
		return failed(item, domain.ErrCodeMoveFailed, err)
	}

	// 落位登记：后续文件的全树查重可以直接命中缓存，不再读这份内容。
	if fi, err := os.Stat(dstAbs); err == nil {
		s.ix.Record(dstAbs, fi.Size(), fi.ModTime().Unix(), fp)
	}
	if dstAbs != srcAbs {
		s.ix.Forget(srcAbs)
	}
	s.claimed[dstAbs] = struct{}{}
	s.planned[fp] = dstAbs
	return item
}

// resolveCollision 从无后缀开始探测 stem、stem-1、stem-2…，返回首个空位；
// 途中任何一个候选与 fp 内容相同，则判定为重复（返回 dupOf）。
//
// 后缀编号只在"同一目录 + 同一 stem"内有意义，从 1 递增；探测只看
// "当前存在的文件"，所以已落位文件的路径永远稳定（不做紧凑化重排）。
func (s *Sorter) resolveCollision(srcAbs, dirAbs string, t time.Time, ext string, fp fingerprint.Fingerprint) (dstAbs, dupOf string, err error) {
	for n := 0; ; n++ {
		cand := filepath.Join(dirAbs, naming.Filename(t, ext, n))
		if _, ok := s.claimed[cand]; ok {
			continue
		}
		if cand == srcAbs {
			// 源文件已经占着自己的规范位置：当作空位返回（原地不动）。
			return cand, "", nil
		}

		fi, err := os.Lstat(cand)
		if err != nil {
			if os.IsNotExist(err) {
				return cand, "", nil
			}
			return "", "", err
		}
		if !fi.Mode().IsRegular() {
			// 候选位置被目录/非常规文件占用：不比较内容，继续探测。
			continue
		}

		have, err := s.ix.FileFingerprint(cand)
		if err != nil {
			return "", "", err
		}
		if have == fp {
			return "", cand, nil
		}
	}
}

// discardDuplicate 处理"内容重复"终态：apply 下删除源文件；
// 重复是符合预期的成功结果，不是错误。
func (s *Sorter) discardDuplicate(item domain.ItemResult, srcAbs, existingAbs string) domain.ItemResult {
	item.Status = domain.StatusDuplicate
	item.DuplicateOf = s.relToDst(existingAbs)

	if s.apply {
		if err := os.Remove(srcAbs); err != nil && !os.IsNotExist(err) {
			return failed(item, domain.ErrCodeIOFailed, err)
		}
		s.ix.Forget(srcAbs)
	}
	return item
}

// relToDst 尽量输出相对目标根的路径；失败则输出原始 abs（至少可追溯）。
func (s *Sorter) relToDst(abs string) string {
	if rel, err := filepath.Rel(s.dst, abs); err == nil {
		return rel
	}
	return abs
}

func failed(item domain.ItemResult, code string, err error) domain.ItemResult {
	item.Status = domain.StatusFailed
	item.ErrorCode = code
	if err != nil {
		item.ErrorMsg = err.Error()
	}
	return item
}
