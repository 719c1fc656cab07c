// Package config loads the service settings file.
//
// Settings are YAML. Unknown keys are rejected. After defaults are applied
// the result is checked against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable consulted when no settings
// path is given explicitly.
const EnvConfig = "TASKSTORE_CONFIG"

//go:embed settings.cue
var schemaCUE string

// Settings configures where stores live and which external tools are used.
type Settings struct {
	// StoragePath is the root under which per-user store directories are created.
	StoragePath string `yaml:"storage_path" json:"storage_path"`

	// Database is the SQLite file holding the store registry and activity log.
	Database string `yaml:"database" json:"database"`

	// Debug downgrades provisioning failures to logged activity errors.
	Debug bool `yaml:"debug" json:"debug"`

	TaskBinary string `yaml:"task_binary" json:"task_binary"`
	GitBinary  string `yaml:"git_binary" json:"git_binary"`

	Taskd Taskd `yaml:"taskd" json:"taskd"`
}

// Taskd configures the sync server stores are provisioned against.
type Taskd struct {
	Binary   string `yaml:"binary" json:"binary"`
	Certtool string `yaml:"certtool" json:"certtool"`

	// Data is the server's data directory. Its config file supplies the
	// CA key and certificate used for signing.
	Data string `yaml:"data" json:"data"`

	Org string `yaml:"org" json:"org"`

	// Server is the host:port written into provisioned configs.
	Server string `yaml:"server" json:"server"`

	SigningTemplate string `yaml:"signing_template" json:"signing_template"`
}

// Default returns settings rooted at dir with stock binary names.
func Default(dir string) Settings {
	s := Settings{
		StoragePath: filepath.Join(dir, "stores"),
		Database:    filepath.Join(dir, "taskstore.db"),
	}
	s.applyDefaults(dir)
	return s
}

func (s *Settings) applyDefaults(dir string) {
	if s.StoragePath == "" {
		s.StoragePath = filepath.Join(dir, "stores")
	}
	if s.Database == "" {
		s.Database = filepath.Join(dir, "taskstore.db")
	}
	if s.TaskBinary == "" {
		s.TaskBinary = "task"
	}
	if s.GitBinary == "" {
		s.GitBinary = "git"
	}
	if s.Taskd.Binary == "" {
		s.Taskd.Binary = "taskd"
	}
	if s.Taskd.Certtool == "" {
		s.Taskd.Certtool = "certtool"
	}
}

// Load reads settings from path. Relative storage and database paths
// resolve against the settings file's directory.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse decodes YAML settings, applies defaults relative to baseDir, and
// validates the result.
func Parse(data []byte, baseDir string) (Settings, error) {
	var s Settings
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	s.applyDefaults(baseDir)
	s.StoragePath = resolve(baseDir, s.StoragePath)
	s.Database = resolve(baseDir, s.Database)

	if err := Validate(s); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// Resolve loads settings from path, or from $TASKSTORE_CONFIG when path
// is empty. With neither set, Default(cwd) is returned.
func Resolve(path string) (Settings, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		return Load(path)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return Settings{}, fmt.Errorf("resolve settings: %w", err)
	}
	return Default(cwd), nil
}

// Validate checks settings against the embedded schema.
func Validate(s Settings) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile settings schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Settings"))
	value := def.Unify(ctx.Encode(s))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}
