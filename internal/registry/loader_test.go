package registry

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"npud/internal/modeltest"
)

func TestLoadDir_FindsModelFolders(t *testing.T) {
	dir := t.TempDir()
	modeltest.WriteModel(t, dir, "Llama-3.2-1B-NPU2", "llama")
	modeltest.WriteModel(t, dir, "Qwen3-0.6B-NPU2", "qwen3")
	// not a model: no config.json
	if err := os.MkdirAll(filepath.Join(dir, "junk"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	models, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %+v", models)
	}
	if models[0].ID != "Llama-3.2-1B-NPU2" || models[1].ID != "Qwen3-0.6B-NPU2" {
		t.Fatalf("unexpected order: %s, %s", models[0].ID, models[1].ID)
	}
	if models[1].Details.Family != "qwen3" {
		t.Fatalf("family: %q", models[1].Details.Family)
	}
	if models[0].Size < modeltest.WeightsSize {
		t.Fatalf("size %d should include weights", models[0].Size)
	}
}

func TestLoadDir_ExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "npud-registry-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	modeltest.WriteModel(t, hTmp, "m", "llama")
	var tildePath string
	if runtime.GOOS == "windows" {
		tildePath = filepath.Join("~", filepath.Base(hTmp))
	} else {
		tildePath = "~/" + filepath.Base(hTmp)
	}
	models, err := LoadDir(tildePath)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "m" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestMissing(t *testing.T) {
	dir := t.TempDir()
	p := modeltest.WriteModel(t, dir, "m", "llama")
	if got := Missing(p); len(got) != 0 {
		t.Fatalf("complete model reported missing %v", got)
	}
	if err := os.Remove(filepath.Join(p, "lm_head.xclbin")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got := Missing(p)
	if len(got) != 1 || got[0] != "lm_head.xclbin" {
		t.Fatalf("missing = %v", got)
	}
	if got := Missing(filepath.Join(dir, "nope")); len(got) != len(RequiredFiles) {
		t.Fatalf("absent dir should miss everything, got %v", got)
	}
}

func TestLoadDir_Errors(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestCatalogFromModels(t *testing.T) {
	dir := t.TempDir()
	modeltest.WriteModel(t, dir, "tiny", "llama")
	ms, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c := FromModels(dir, ms)
	m, err := c.Resolve("tiny")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.ID != "tiny" || m.Path != filepath.Join(dir, "tiny") || !c.Installed(m) {
		t.Fatalf("unexpected model %+v", m)
	}
	if _, err := c.Resolve("other"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
