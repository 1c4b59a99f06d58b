package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/dbader/photosorter/internal/fingerprint"
	"github.com/dbader/photosorter/internal/infra/fsx"
)

// Store 提供 <dst>/cache/ 下的指纹索引持久化。
//
// 索引只是加速：丢失/损坏时全树扫描会按需重建，结果不变。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - apply：允许写（ReadOnly=false）
type Store struct {
	Root     string // <dst>（目标根目录）
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

const indexName = "fingerprints.json"

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// IndexPath 返回指纹索引文件的绝对路径。
func (s Store) IndexPath() string {
	return filepath.Join(s.Root, "cache", indexName)
}

// indexFile 是 fingerprints.json 的磁盘结构。
// version 字段留给未来换哈希算法/结构时做兼容判断。
type indexFile struct {
	Version int                          `json:"version"`
	Entries map[string]fingerprint.Entry `json:"entries"`
}

const indexVersion = 1

// ReadIndex 读取持久化的指纹索引。
// 文件不存在返回 ok=false（不算错误）；解析失败视为坏缓存，同样返回
// ok=false——索引永远可以从零重建。
func (s Store) ReadIndex() (map[string]fingerprint.Entry, bool, error) {
	b, err := os.ReadFile(s.IndexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var f indexFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, false, nil
	}
	if f.Version != indexVersion || f.Entries == nil {
		return nil, false, nil
	}
	return f.Entries, true, nil
}

// WriteIndex 原子写入指纹索引（覆盖旧文件）。
func (s Store) WriteIndex(entries map[string]fingerprint.Entry) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	b, err := json.Marshal(indexFile{Version: indexVersion, Entries: entries})
	if err != nil {
		return err
	}
	dir := filepath.Join(s.Root, "cache")
	return fsx.WriteFileAtomicReplace(dir, indexName, b)
}
