// Package naming 把拍摄时间映射为目标子目录与文件名（纯函数，无 I/O）。
package naming

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// 目录与文件名的固定格式（Go reference time）。
//
// 说明：文件名里的时分秒用 '.' 分隔而不是 ':'——冒号在 Windows 与多数
// 云同步后端上是非法文件名字符。
const (
	yearLayout  = "2006"
	monthLayout = "2006-01"
	stemLayout  = "2006-01-02 15.04.05"
)

// SubDir 返回时间对应的目标子目录（相对目标根）。
//
// - yearDirs=false（默认）：扁平的 "YYYY-MM"
// - yearDirs=true：两级嵌套 "YYYY/YYYY-MM"
func SubDir(t time.Time, yearDirs bool) string {
	if yearDirs {
		return filepath.Join(t.Format(yearLayout), t.Format(monthLayout))
	}
	return t.Format(monthLayout)
}

// Stem 返回时间对应的文件名主干，形如 "2004-05-07 20.16.31"（精确到秒）。
func Stem(t time.Time) string {
	return t.Format(stemLayout)
}

// Ext 返回 path 的扩展名（含点、已小写）；无扩展名时返回空串。
// 只做大小写规范化，不做改写（".jpeg" 保持 ".jpeg"）。
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// Filename 返回 stem + 小写扩展名。suffix>0 时追加去重后缀（"-1"、"-2"…）。
func Filename(t time.Time, ext string, suffix int) string {
	if suffix > 0 {
		return fmt.Sprintf("%s-%d%s", Stem(t), suffix, strings.ToLower(ext))
	}
	return Stem(t) + strings.ToLower(ext)
}
