package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写文件失败：%v", err)
	}
}

func TestFile_KnownSHA1(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.jpg")
	writeFile(t, p, "hello")

	fp, err := File(p)
	if err != nil {
		t.Fatalf("File 失败：%v", err)
	}
	if fp != "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d" {
		t.Fatalf("SHA-1 不符：%s", fp)
	}
}

func TestFile_Missing(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "nope.jpg")); err == nil {
		t.Fatal("不存在的文件应返回错误")
	}
}

func TestIndex_FileFingerprint_CacheAndInvalidation(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.jpg")
	writeFile(t, p, "hello")

	info, err := os.Stat(p)
	if err != nil {
		t.Fatalf("stat 失败：%v", err)
	}

	ix := NewIndex()
	// 预热一条伪造指纹：size+mtime 匹配时应直接命中缓存，不读盘。
	ix.Seed(map[string]Entry{
		p: {Size: info.Size(), ModUnix: info.ModTime().Unix(), SHA1: "cafe"},
	})
	fp, err := ix.FileFingerprint(p)
	if err != nil {
		t.Fatalf("FileFingerprint 失败：%v", err)
	}
	if fp != "cafe" {
		t.Fatalf("缓存未命中：%s", fp)
	}

	// size 不匹配的条目应失效并重新哈希。
	ix.Seed(map[string]Entry{
		p: {Size: info.Size() + 1, ModUnix: info.ModTime().Unix(), SHA1: "cafe"},
	})
	fp, err = ix.FileFingerprint(p)
	if err != nil {
		t.Fatalf("FileFingerprint 失败：%v", err)
	}
	if fp != "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d" {
		t.Fatalf("失效条目未重新哈希：%s", fp)
	}

	snap := ix.Snapshot()
	if e, ok := snap[p]; !ok || e.SHA1 != string(fp) || e.Size != info.Size() {
		t.Fatalf("Snapshot 未反映重新哈希结果：%+v", snap)
	}

	ix.Forget(p)
	if _, ok := ix.Snapshot()[p]; ok {
		t.Fatal("Forget 后条目仍在")
	}
}

func TestExistsInTree_FindsMatchAndSkipsCache(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "2013-01", "a.jpg"), "hello")
	// cache/ 下的同内容文件不得参与去重。
	writeFile(t, filepath.Join(root, "cache", "copy.jpg"), "world")

	ix := NewIndex()

	fpHello, _ := File(filepath.Join(root, "2013-01", "a.jpg"))
	got, ok, err := ix.ExistsInTree(root, fpHello, 5, "")
	if err != nil {
		t.Fatalf("ExistsInTree 失败：%v", err)
	}
	if !ok || got != filepath.Join(root, "2013-01", "a.jpg") {
		t.Fatalf("未找到预期匹配：ok=%v path=%q", ok, got)
	}

	fpWorld, _ := File(filepath.Join(root, "cache", "copy.jpg"))
	if _, ok, err := ix.ExistsInTree(root, fpWorld, 5, ""); err != nil || ok {
		t.Fatalf("cache/ 下的文件不应被视为重复：ok=%v err=%v", ok, err)
	}
}

func TestExistsInTree_SizePrefilter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"), "hello")

	ix := NewIndex()
	fp, _ := File(filepath.Join(root, "a.jpg"))

	// size 不同则即使指纹传对了也不读内容、不命中。
	if _, ok, err := ix.ExistsInTree(root, fp, 999, ""); err != nil || ok {
		t.Fatalf("size 预过滤失效：ok=%v err=%v", ok, err)
	}
	// size 预过滤之下，文件不应进入指纹缓存。
	if len(ix.Snapshot()) != 0 {
		t.Fatalf("预过滤跳过的文件不应被哈希：%+v", ix.Snapshot())
	}
}

func TestExistsInTree_SkipsOwnPath(t *testing.T) {
	root := t.TempDir()
	self := filepath.Join(root, "inbox", "a.jpg")
	writeFile(t, self, "hello")

	ix := NewIndex()
	fp, _ := File(self)

	// 文件不能和它自己比对成重复。
	if _, ok, err := ix.ExistsInTree(root, fp, 5, self); err != nil || ok {
		t.Fatalf("自身不应被判为重复：ok=%v err=%v", ok, err)
	}

	// 其他位置的同内容文件仍要命中。
	other := filepath.Join(root, "2013-01", "b.jpg")
	writeFile(t, other, "hello")
	got, ok, err := ix.ExistsInTree(root, fp, 5, self)
	if err != nil || !ok || got != other {
		t.Fatalf("应命中另一份同内容文件：ok=%v got=%q err=%v", ok, got, err)
	}
}

func TestExistsInTree_MissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "not-created-yet")
	ix := NewIndex()
	if _, ok, err := ix.ExistsInTree(root, "cafe", 5, ""); err != nil || ok {
		t.Fatalf("目标树不存在时应视为无重复：ok=%v err=%v", ok, err)
	}
}
