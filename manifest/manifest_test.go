package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "ringtail.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[vm]
trace = true

[gc]
floor = 512
stress = true
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !m.VM.Trace {
		t.Error("VM.Trace = false, want true")
	}
	if m.GC.Floor != 512 {
		t.Errorf("GC.Floor = %d, want 512", m.GC.Floor)
	}
	if !m.GC.Stress {
		t.Error("GC.Stress = false, want true")
	}
	if m.Dir == "" {
		t.Error("Dir not recorded")
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.VM.Trace || m.GC.Stress {
		t.Error("zero manifest enabled debug modes")
	}
	if m.GC.Floor != 0 {
		t.Errorf("GC.Floor = %d, want 0 (interpreter default)", m.GC.Floor)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of a bare directory succeeded")
	}
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[vm\ntrace =")

	if _, err := Load(dir); err == nil {
		t.Error("Load of malformed toml succeeded")
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[vm]\ntrace = true\n")

	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad did not find the manifest")
	}
	if !m.VM.Trace {
		t.Error("wrong manifest loaded")
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad errored: %v", err)
	}
	if m != nil {
		t.Errorf("FindAndLoad = %+v, want nil", m)
	}
}
