// Package manifest handles ymsl.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"gopkg.in/yaml.v3"

	"github.com/chazu/ymsl/vm"
)

// File names searched for, in order of preference.
const (
	TOMLName = "ymsl.toml"
	YAMLName = "ymsl.yaml"
)

// Format selects the manifest syntax.
type Format string

const (
	TOML Format = "toml"
	YAML Format = "yaml"
)

// ErrUnknownFormat is returned by Parse for formats other than TOML and YAML.
var ErrUnknownFormat = errors.New("unknown manifest format")

// Manifest represents a ymsl.toml (or ymsl.yaml) project configuration.
type Manifest struct {
	Project Project     `toml:"project" yaml:"project"`
	VM      VMConfig    `toml:"vm" yaml:"vm"`
	Log     LogConfig   `toml:"log" yaml:"log"`
	Store   StoreConfig `toml:"store" yaml:"store"`

	// Dir is the directory containing the manifest file (set at load time).
	Dir string `toml:"-" yaml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" yaml:"name"`
	Version string `toml:"version" yaml:"version"`
}

// VMConfig sizes the machine. Zero values keep the vm defaults.
type VMConfig struct {
	HeapSize  int  `toml:"heap-size" yaml:"heap-size"`
	StackSize int  `toml:"stack-size" yaml:"stack-size"`
	Trace     bool `toml:"trace" yaml:"trace"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	File      string `toml:"file" yaml:"file"`
}

// StoreConfig locates the module store.
type StoreConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// Parse decodes a manifest in the given format. Dir is left empty.
func Parse(data []byte, format Format) (*Manifest, error) {
	var m Manifest
	switch format {
	case TOML:
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, err
		}
	case YAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	// Defaults
	if m.Store.Path == "" {
		m.Store.Path = filepath.Join(".ymsl", "modules.db")
	}
	return &m, nil
}

// Load parses the manifest in the given directory, preferring ymsl.toml
// over ymsl.yaml.
func Load(dir string) (*Manifest, error) {
	path, format := manifestFile(dir)
	if path == "" {
		return nil, fmt.Errorf("no %s or %s in %s: %w", TOMLName, YAMLName, dir, os.ErrNotExist)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	commonlog.GetLogger("ymsl.manifest").Debugf("loaded %s", path)
	return m, nil
}

func manifestFile(dir string) (string, Format) {
	for _, c := range []struct {
		name   string
		format Format
	}{{TOMLName, TOML}, {YAMLName, YAML}} {
		path := filepath.Join(dir, c.name)
		if _, err := os.Stat(path); err == nil {
			return path, c.format
		}
	}
	return "", ""
}

// FindAndLoad walks up from startDir to find a manifest, then loads and
// returns it. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if path, _ := manifestFile(dir); path != "" {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// VMOptions turns the [vm] section into machine options.
func (m *Manifest) VMOptions() []vm.Option {
	var opts []vm.Option
	if m.VM.HeapSize > 0 {
		opts = append(opts, vm.WithHeapSize(m.VM.HeapSize))
	}
	if m.VM.StackSize > 0 {
		opts = append(opts, vm.WithStackSize(m.VM.StackSize))
	}
	if m.VM.Trace {
		opts = append(opts, vm.WithTrace(true))
	}
	return opts
}

// StorePath returns the module store location. Relative paths are taken
// from the manifest directory; ":memory:" is passed through.
func (m *Manifest) StorePath() string {
	p := m.Store.Path
	if p == ":memory:" || filepath.IsAbs(p) || strings.HasPrefix(p, "file:") {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// LogPath returns the log file, or nil to log to stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	p := m.Log.File
	if !filepath.IsAbs(p) {
		p = filepath.Join(m.Dir, p)
	}
	return &p
}

// ConfigureLogging applies the [log] section to commonlog.
func (m *Manifest) ConfigureLogging() {
	commonlog.Configure(m.Log.Verbosity, m.LogPath())
}
