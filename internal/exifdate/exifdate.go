// Package exifdate 把文件解析为规范的拍摄时间：
// EXIF 拍摄字段优先，其次文件系统创建时间（birth time），最后 mtime。
package exifdate

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/djherbis/times"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/dbader/photosorter/internal/domain"
)

// exifLayout 是 EXIF 时间字段的固定格式（"2004:05:07 20:16:31"）。
const exifLayout = "2006:01:02 15:04:05"

// 可替换的函数指针：birth time 依赖平台/文件系统，测试需要稳定模拟。
var statTimes = times.Stat

// MissingTimestampError 表示既没有可用 EXIF 时间、文件系统时间也不可读。
// 上层把它映射为 error_code=date_unresolved：文件留在原地，记录并跳过——
// 绝不猜测时间。
type MissingTimestampError struct {
	Path string
	Err  error
}

func (e *MissingTimestampError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("无法确定 %q 的拍摄时间：%v", e.Path, e.Err)
	}
	return fmt.Sprintf("无法确定 %q 的拍摄时间", e.Path)
}

func (e *MissingTimestampError) Unwrap() error { return e.Err }

func IsMissingTimestamp(err error) bool {
	var e *MissingTimestampError
	return errors.As(err, &e)
}

// Resolve 按固定顺序解析拍摄时间：
// 1) EXIF DateTimeOriginal，其次 DateTimeDigitized（字段缺失或格式坏掉都视为无 EXIF）
// 2) 文件系统创建时间（平台支持 birth time 时）
// 3) mtime
//
// 源文件无法打开时原样返回 I/O 错误（上层映射为 unreadable_file）。
// 不做任何时区换算：EXIF 与文件系统给什么本地墙钟时间就用什么。
func Resolve(path string) (time.Time, domain.DateSource, error) {
	t, ok, err := exifTime(path)
	if err != nil {
		return time.Time{}, "", err
	}
	if ok {
		return t, domain.DateSourceEXIF, nil
	}
	return fileTime(path)
}

// exifTime 读取内嵌的 EXIF 拍摄时间。
// 返回 ok=false 表示"没有可用 EXIF"（不是错误）；err 只用于文件不可读。
func exifTime(path string) (time.Time, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, false, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		// 解码失败（png/无 EXIF 段/截断）都走文件系统兜底。
		return time.Time{}, false, nil
	}

	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized} {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		s, err := tag.StringVal()
		if err != nil {
			continue
		}
		if t, ok := parseExifTime(s); ok {
			return t, true, nil
		}
		// 字段存在但格式坏掉：与缺失同样处理（继续找下一个字段/兜底）。
	}
	return time.Time{}, false, nil
}

// parseExifTime 解析 EXIF 时间串。部分相机会在值尾部填充 NUL。
func parseExifTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	t, err := time.ParseInLocation(exifLayout, s, time.Local)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// fileTime 返回文件系统里最可信的时间：
// birth time（平台支持时），否则 mtime。
func fileTime(path string) (time.Time, domain.DateSource, error) {
	ts, err := statTimes(path)
	if err != nil {
		return time.Time{}, "", &MissingTimestampError{Path: path, Err: err}
	}
	if ts.HasBirthTime() {
		if bt := ts.BirthTime(); !bt.IsZero() {
			return bt, domain.DateSourceBirth, nil
		}
	}
	mt := ts.ModTime()
	if mt.IsZero() {
		return time.Time{}, "", &MissingTimestampError{Path: path}
	}
	return mt, domain.DateSourceMTime, nil
}
