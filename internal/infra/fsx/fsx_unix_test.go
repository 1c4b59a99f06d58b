//go:build unix

package fsx

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestMoveFile_CrossDeviceFallback(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	dst := filepath.Join(dir, "out", "b.jpg")

	if err := os.WriteFile(src, []byte("photo"), 0o600); err != nil {
		t.Fatalf("写源文件失败：%v", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatalf("建目录失败：%v", err)
	}

	// 第一次 rename（src -> dst）模拟 EXDEV；后续 rename（临时文件 -> dst）放行。
	orig := renameFunc
	calls := 0
	renameFunc = func(oldpath, newpath string) error {
		calls++
		if calls == 1 {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
		}
		return orig(oldpath, newpath)
	}
	t.Cleanup(func() { renameFunc = orig })

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("跨盘兜底失败：%v", err)
	}
	if _, err := os.Lstat(src); !os.IsNotExist(err) {
		t.Fatalf("copy 完成后源文件应被删除：err=%v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "photo" {
		t.Fatalf("目标内容不符：%q err=%v", data, err)
	}
	// 权限位跟随源文件。
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("stat 失败：%v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("权限位未保留：%v", info.Mode().Perm())
	}
}

func TestMoveFile_CopyFailureKeepsSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	dst := filepath.Join(dir, "missing-dir", "b.jpg")

	if err := os.WriteFile(src, []byte("photo"), 0o644); err != nil {
		t.Fatalf("写源文件失败：%v", err)
	}

	orig := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	t.Cleanup(func() { renameFunc = orig })

	// 目标目录不存在时 copy 链路必然失败，但 src 必须原样保留。
	if err := MoveFile(src, dst); err == nil {
		t.Fatal("期望失败")
	}
	data, err := os.ReadFile(src)
	if err != nil || string(data) != "photo" {
		t.Fatalf("失败后源文件应原样保留：%q err=%v", data, err)
	}
}

func TestRename_ClassifiesEXDEV(t *testing.T) {
	orig := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	t.Cleanup(func() { renameFunc = orig })

	err := Rename("/a", "/b")
	if !IsCrossDevice(err) {
		t.Fatalf("EXDEV 应被识别为 CrossDeviceError：%v", err)
	}
}
