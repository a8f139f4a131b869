package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a ymsl.toml
	dir := t.TempDir()
	tomlContent := `
[project]
name = "test-app"
version = "0.1.0"

[vm]
heap-size = 128
stack-size = 2048
trace = true

[log]
verbosity = 2
file = "ymsl.log"

[store]
path = "build/modules.db"
`
	if err := os.WriteFile(filepath.Join(dir, "ymsl.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.VM.HeapSize != 128 || m.VM.StackSize != 2048 || !m.VM.Trace {
		t.Errorf("vm = %+v, want 128/2048/trace", m.VM)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
	if got := m.LogPath(); got == nil || *got != filepath.Join(m.Dir, "ymsl.log") {
		t.Errorf("LogPath = %v, want %s", got, filepath.Join(m.Dir, "ymsl.log"))
	}
	if got := m.StorePath(); got != filepath.Join(m.Dir, "build", "modules.db") {
		t.Errorf("StorePath = %q", got)
	}
	if len(m.VMOptions()) != 3 {
		t.Errorf("VMOptions count = %d, want 3", len(m.VMOptions()))
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[project]
name = "minimal"
`
	if err := os.WriteFile(filepath.Join(dir, "ymsl.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := m.StorePath(); got != filepath.Join(m.Dir, ".ymsl", "modules.db") {
		t.Errorf("default store path = %q", got)
	}
	if m.LogPath() != nil {
		t.Errorf("default log path = %q, want stderr", *m.LogPath())
	}
	if len(m.VMOptions()) != 0 {
		t.Errorf("default VMOptions count = %d, want 0", len(m.VMOptions()))
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
project:
  name: yaml-app
vm:
  heap-size: 64
store:
  path: ":memory:"
`
	if err := os.WriteFile(filepath.Join(dir, "ymsl.yaml"), []byte(yamlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != "yaml-app" {
		t.Errorf("project name = %q, want yaml-app", m.Project.Name)
	}
	if m.VM.HeapSize != 64 {
		t.Errorf("heap size = %d, want 64", m.VM.HeapSize)
	}
	if m.StorePath() != ":memory:" {
		t.Errorf("StorePath = %q, want :memory:", m.StorePath())
	}
}

func TestTOMLPreferredOverYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ymsl.toml"), []byte("[project]\nname = \"from-toml\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ymsl.yaml"), []byte("project:\n  name: from-yaml\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != "from-toml" {
		t.Errorf("project name = %q, want from-toml", m.Project.Name)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse([]byte("x"), "json"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Parse(json) error = %v, want ErrUnknownFormat", err)
	}
	if _, err := Parse([]byte("[project\nname ="), TOML); err == nil {
		t.Error("Parse accepted malformed TOML")
	}
	if _, err := Parse([]byte("project: [unclosed"), YAML); err == nil {
		t.Error("Parse accepted malformed YAML")
	}
	if _, err := Load(t.TempDir()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load of empty dir error = %v, want ErrNotExist", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	tomlContent := `[project]
name = "found-project"
`
	if err := os.WriteFile(filepath.Join(dir, "ymsl.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no ymsl.toml exists")
	}
}
