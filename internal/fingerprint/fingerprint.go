// Package fingerprint 计算文件内容指纹（SHA-1）并在目标树内做重复检测。
//
// 指纹只用于相等性判定，不用于安全目的；全内容哈希让去重对改名与
// 元数据差异免疫。
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Fingerprint 是文件全部内容的 SHA-1（hex，40 字符）。
// 指纹相等即视为内容相同；碰撞在实践中不可能发生。
type Fingerprint string

// Entry 是单个文件的指纹缓存条目。size+mtime 任一变化即视为失效，
// 避免对未变化的文件重复读盘哈希。
type Entry struct {
	Size    int64  `json:"size"`
	ModUnix int64  `json:"mod_unix"`
	SHA1    string `json:"sha1"`
}

// File 流式计算 path 的内容指纹。
func File(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// Index 按 abs path 缓存指纹，并提供目标树的全树重复扫描。
//
// 约束：单 worker 顺序处理（与排序流程一致），不加锁。
// 缓存可通过 Seed/Snapshot 持久化（见 infra/cache），跨进程复用。
type Index struct {
	entries map[string]Entry
}

func NewIndex() *Index {
	return &Index{entries: make(map[string]Entry, 128)}
}

// Seed 用持久化的条目预热缓存（启动时调用一次）。
// 条目照单全收：命中时会先 stat 校验 size+mtime，过期条目自然失效。
func (ix *Index) Seed(entries map[string]Entry) {
	for p, e := range entries {
		ix.entries[p] = e
	}
}

// Snapshot 返回当前缓存的副本（用于持久化）。
func (ix *Index) Snapshot() map[string]Entry {
	out := make(map[string]Entry, len(ix.entries))
	for p, e := range ix.entries {
		out[p] = e
	}
	return out
}

// FileFingerprint 返回 path 的内容指纹，能走缓存就不重新读盘。
func (ix *Index) FileFingerprint(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	if e, ok := ix.entries[path]; ok {
		if e.Size == info.Size() && e.ModUnix == info.ModTime().Unix() && e.SHA1 != "" {
			return Fingerprint(e.SHA1), nil
		}
	}

	fp, err := File(path)
	if err != nil {
		return "", err
	}
	ix.entries[path] = Entry{
		Size:    info.Size(),
		ModUnix: info.ModTime().Unix(),
		SHA1:    string(fp),
	}
	return fp, nil
}

// Record 在文件落位后登记指纹（move 之后 dst 的 size/mtime 已知，
// 直接入缓存，后续全树扫描不再读它）。
func (ix *Index) Record(path string, size int64, modUnix int64, fp Fingerprint) {
	ix.entries[path] = Entry{Size: size, ModUnix: modUnix, SHA1: string(fp)}
}

// Forget 移除一个路径的缓存条目（文件被删除/移走时调用）。
func (ix *Index) Forget(path string) {
	delete(ix.entries, path)
}

// errFound 用于 WalkDir 的短路退出（找到第一处匹配即停）。
var errFound = errors.New("fingerprint: found")

// ExistsInTree 在 root 下递归查找内容指纹等于 fp 的文件，
// 返回首个匹配的绝对路径。
//
// - <root>/cache/ 永久排除（内部状态目录，不参与去重）
// - skip 指定要忽略的路径：传入源文件自身，源目录嵌在 root 之内时
//   才不会把文件判成它自己的重复
// - size 不等的文件直接跳过，不读内容（先比大小再比指纹）
// - 扫描中途的单文件读错误原样返回（上层映射为 io_failed）
func (ix *Index) ExistsInTree(root string, fp Fingerprint, size int64, skip string) (string, bool, error) {
	root = filepath.Clean(root)
	cacheDir := filepath.Join(root, "cache")

	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// root 不存在：目标树为空，自然没有重复。
			if path == root && os.IsNotExist(walkErr) {
				return filepath.SkipAll
			}
			return walkErr
		}
		if d.IsDir() {
			if path == cacheDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if path == skip {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() != size {
			return nil
		}

		have, err := ix.FileFingerprint(path)
		if err != nil {
			return err
		}
		if have == fp {
			found = path
			return errFound
		}
		return nil
	})
	if errors.Is(err, errFound) {
		return found, true, nil
	}
	if err != nil {
		return "", false, err
	}
	return "", false, nil
}
