package domain

// DateSource 标记拍摄时间的来源，按可信度从高到低。
//
// 约束：要么得到可用时间，要么失败；宁可 skip，也不允许猜测。
type DateSource string

const (
	// DateSourceEXIF 表示时间来自图片内嵌的 EXIF 拍摄字段（首选）。
	DateSourceEXIF DateSource = "exif"
	// DateSourceBirth 表示时间来自文件系统的创建时间（birth time）。
	DateSourceBirth DateSource = "birthtime"
	// DateSourceMTime 表示时间来自文件修改时间（没有 birth time 时的兜底；
	// 不用 ctime：inode 变更时间几乎总是偏晚，属于错误来源）。
	DateSourceMTime DateSource = "mtime"
)
