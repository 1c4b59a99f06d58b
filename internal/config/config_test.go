package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dbader/photosorter/internal/domain"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "photosorter.json")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("写配置失败：%v", err)
	}
	return p
}

func TestLoadEffective_CLISrcAndDst_NoConfigFile(t *testing.T) {
	cwd := t.TempDir()
	src := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{Src: src, Dst: "out", DstSet: true})
	if err != nil {
		t.Fatalf("LoadEffective 失败：%v", err)
	}
	if eff.Src != filepath.Clean(src) {
		t.Fatalf("src 不符：%q", eff.Src)
	}
	// CLI 给的相对 dst 以 cwd 为基准。
	if eff.Dst != filepath.Join(cwd, "out") {
		t.Fatalf("dst 不符：%q", eff.Dst)
	}
	if eff.Apply {
		t.Fatal("apply 默认应为 false")
	}
	if eff.Settle != DefaultSettle {
		t.Fatalf("settle 默认值不符：%v", eff.Settle)
	}
}

func TestLoadEffective_NoArgs_RequiresConfig(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 config_not_found：%v", err)
	}
}

func TestLoadEffective_ConfigMissingSrc(t *testing.T) {
	cwd := t.TempDir()
	writeConfig(t, cwd, `{"dst":"out"}`)

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeMissingSrc {
		t.Fatalf("期望 config_missing_src：%v", err)
	}
}

func TestLoadEffective_MissingDst(t *testing.T) {
	cwd := t.TempDir()
	src := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{Src: src})
	if Code(err) != ErrCodeMissingDst {
		t.Fatalf("期望 config_missing_dst：%v", err)
	}
}

func TestLoadEffective_ConfigDriven(t *testing.T) {
	cwd := t.TempDir()
	src := t.TempDir()
	writeConfig(t, cwd, `{
		"src": "`+src+`",
		"dst": "sorted",
		"apply": true,
		"exclude_dirs": ["done"],
		"extensions": [".jpg"],
		"year_dirs": true,
		"settle_ms": 1500
	}`)

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("LoadEffective 失败：%v", err)
	}
	// config 给的相对 dst 以 src 为基准。
	if eff.Dst != filepath.Join(src, "sorted") {
		t.Fatalf("dst 不符：%q", eff.Dst)
	}
	if !eff.Apply {
		t.Fatal("config 的 apply=true 未生效")
	}
	if len(eff.ExcludeDirs) != 1 || eff.ExcludeDirs[0] != "done" {
		t.Fatalf("exclude_dirs 不符：%+v", eff.ExcludeDirs)
	}
	if !eff.YearDirs {
		t.Fatal("year_dirs 未生效")
	}
	if eff.Settle != 1500*time.Millisecond {
		t.Fatalf("settle 不符：%v", eff.Settle)
	}
}

func TestLoadEffective_CLIOverridesConfig(t *testing.T) {
	cwd := t.TempDir()
	src := t.TempDir()
	writeConfig(t, src, `{"dst":"from-config","apply":true}`)

	// --apply=false 必须能压过 config 的 apply=true。
	eff, err := LoadEffective(cwd, CLIArgs{
		Src:      src,
		Dst:      "from-cli",
		DstSet:   true,
		Apply:    false,
		ApplySet: true,
	})
	if err != nil {
		t.Fatalf("LoadEffective 失败：%v", err)
	}
	if eff.Dst != filepath.Join(cwd, "from-cli") {
		t.Fatalf("CLI dst 未生效：%q", eff.Dst)
	}
	if eff.Apply {
		t.Fatal("--apply=false 未能覆盖 config.apply=true")
	}
}

func TestLoadEffective_SrcEqualsDstInvalid(t *testing.T) {
	cwd := t.TempDir()
	src := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{Src: src, Dst: src, DstSet: true})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("src==dst 应为 config_invalid：%v", err)
	}
}

func TestLoadEffective_SrcInsideDstInvalid(t *testing.T) {
	cwd := t.TempDir()
	dst := t.TempDir()
	src := filepath.Join(dst, "inbox")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatalf("建目录失败：%v", err)
	}

	// src 嵌在 dst 之内：查重会把源文件当作自己的重复，必须在配置层拒绝。
	_, err := LoadEffective(cwd, CLIArgs{Src: src, Dst: dst, DstSet: true})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("src 在 dst 之内应为 config_invalid：%v", err)
	}

	// 反向（dst 在 src 之内，就地整理）仍然允许。
	src2 := t.TempDir()
	eff, err := LoadEffective(cwd, CLIArgs{Src: src2, Dst: filepath.Join(src2, "sorted"), DstSet: true})
	if err != nil {
		t.Fatalf("dst 在 src 之内应被允许：%v", err)
	}
	if eff.Dst != filepath.Join(src2, "sorted") {
		t.Fatalf("dst 不符：%q", eff.Dst)
	}
}

func TestLoadEffective_MalformedJSON(t *testing.T) {
	cwd := t.TempDir()
	writeConfig(t, cwd, `{broken`)

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("坏 JSON 应为 config_invalid：%v", err)
	}
}

func TestErrorCodes_MatchReportVocabulary(t *testing.T) {
	// 配置错误码必须与报告（RunReport）的稳定词汇表一致，不允许各写一套。
	cases := map[string]string{
		ErrCodeNotFound:   domain.ErrCodeConfigNotFound,
		ErrCodeInvalid:    domain.ErrCodeConfigInvalid,
		ErrCodeMissingSrc: domain.ErrCodeConfigMissingSrc,
		ErrCodeMissingDst: domain.ErrCodeConfigMissingDst,
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("错误码不一致：%q vs %q", got, want)
		}
	}
}

func TestLoadEffective_SettleClampAndNegative(t *testing.T) {
	cwd := t.TempDir()
	src := t.TempDir()

	writeConfig(t, src, `{"dst":"out","settle_ms":999999}`)
	eff, err := LoadEffective(cwd, CLIArgs{Src: src})
	if err != nil {
		t.Fatalf("LoadEffective 失败：%v", err)
	}
	if eff.Settle != 60*time.Second {
		t.Fatalf("settle 上限截断未生效：%v", eff.Settle)
	}

	writeConfig(t, src, `{"dst":"out","settle_ms":-1}`)
	if _, err := LoadEffective(cwd, CLIArgs{Src: src}); Code(err) != ErrCodeInvalid {
		t.Fatalf("负 settle_ms 应为 config_invalid：%v", err)
	}
}
