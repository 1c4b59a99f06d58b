package domain

// PhotoFile 描述一次扫描得到的图片文件。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - RelPath 相对源根目录（报告里对外展示用它）
// - 扫描阶段不读文件内容；大小/时间等属性由消费方按需自取
type PhotoFile struct {
	AbsPath string
	RelPath string
}
