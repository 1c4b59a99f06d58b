package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dbader/photosorter/internal/domain"
)

// DefaultExtensions 是默认处理的图片扩展名（与配置中的 extensions 对应）。
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

// ScanImages 扫描 root 下的图片文件，并应用目录排除规则。
//
// 规则（硬约束）：
// - 永久排除：<root>/cache/（内部状态目录）
// - excludeDirs：来自配置文件，均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）；
//   目标根目录位于 root 之下时（就地整理的场景），上层会把它加进 excludeDirs，
//   避免重复扫到已归档的文件
// - exts：允许的扩展名集合（为空时用 DefaultExtensions）；匹配不区分大小写
//
// 注意：扫描阶段只看名字，不 stat、不读文件内容（stat 推迟到逐个处理时，
// watch 场景下那才是新鲜的）。
func ScanImages(root string, excludeDirs []string, exts []string) ([]domain.PhotoFile, error) {
	root = filepath.Clean(root)
	excluded := ExcludedPaths(root, excludeDirs)
	allowed := AllowedExts(exts)

	files := make([]domain.PhotoFile, 0, 128)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		// 统一的排除判断：目录用 SkipDir，文件则直接跳过。
		if IsExcluded(path, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if _, ok := allowed[ext]; !ok {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		files = append(files, domain.PhotoFile{AbsPath: path, RelPath: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// AllowedExts 把配置里的扩展名列表规范化为查表集合：
// 小写、补前导点、丢弃空串；列表为空时退回 DefaultExtensions。
func AllowedExts(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed[e] = struct{}{}
	}
	return allowed
}

// ExcludedPaths 构建规范化的排除路径列表（watch 模式复用同一套规则）。
func ExcludedPaths(root string, excludeDirs []string) []string {
	cacheDir := filepath.Join(root, "cache")

	excluded := make([]string, 0, 1+len(excludeDirs))
	excluded = append(excluded, filepath.Clean(cacheDir))

	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		// x 是相对路径：相对 root。
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}

	// 排除列表排序后，IsExcluded 的行为更可预测（且便于测试）。
	sort.Strings(excluded)
	return excluded
}

// IsExcluded 判断 path 是否位于任一排除路径之下（含排除路径本身）。
func IsExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
