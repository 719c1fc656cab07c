// Package taskrc reads and writes the task engine's key=value config files.
//
// A config document holds its own values plus an ordered list of include
// files. The assembled view merges every include in list order (a later
// include wins over an earlier one) and then overlays the document's own
// values, which win over all includes.
//
// Includes are followed one level deep and only when they live inside the
// including file's directory tree.
package taskrc

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/afero"
)

// ErrReadOnly is returned by every write attempted on a read-only TaskRc.
var ErrReadOnly = errors.New("taskrc: instance is read-only")

// UDA describes a user-defined attribute declared by uda.<name>.type and
// uda.<name>.label keys.
type UDA struct {
	Type  string `json:"type,omitempty"`
	Label string `json:"label,omitempty"`
}

var udaPattern = regexp.MustCompile(`^uda\.([^.]+)\.(type|label)$`)

// TaskRc is a config document bound to a file.
type TaskRc struct {
	fs       afero.Fs
	path     string
	readOnly bool
	now      func() time.Time

	config        *Values
	includes      []string
	includeValues map[string]*Values
}

// Option configures a TaskRc.
type Option func(*TaskRc)

// ReadOnly makes every write return ErrReadOnly.
func ReadOnly() Option {
	return func(rc *TaskRc) { rc.readOnly = true }
}

// WithClock overrides the clock used for the generated-by header.
func WithClock(now func() time.Time) Option {
	return func(rc *TaskRc) { rc.now = now }
}

// Open reads the config at path together with its includes.
// A missing file yields an empty document.
func Open(fs afero.Fs, path string, opts ...Option) (*TaskRc, error) {
	rc := &TaskRc{
		fs:   fs,
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(rc)
	}

	config, includes, err := Read(fs, path, "")
	if err != nil {
		return nil, fmt.Errorf("taskrc: %w", err)
	}
	rc.config = config
	rc.includes = includes

	if err := rc.loadIncludes(); err != nil {
		return nil, err
	}
	return rc, nil
}

func (rc *TaskRc) loadIncludes() error {
	rc.includeValues = make(map[string]*Values, len(rc.includes))
	for _, include := range rc.includes {
		values, _, err := Read(rc.fs, rc.resolve(include), rc.path)
		if err != nil {
			return fmt.Errorf("taskrc: include %s: %w", include, err)
		}
		rc.includeValues[include] = values
	}
	return nil
}

// resolve maps a relative include onto the including file's directory.
func (rc *TaskRc) resolve(include string) string {
	if filepath.IsAbs(include) {
		return filepath.Clean(include)
	}
	return filepath.Join(filepath.Dir(rc.path), include)
}

// Path returns the backing file path.
func (rc *TaskRc) Path() string { return rc.path }

// IsReadOnly reports whether writes are rejected.
func (rc *TaskRc) IsReadOnly() bool { return rc.readOnly }

// Includes returns the include paths in declaration order.
func (rc *TaskRc) Includes() []string {
	out := make([]string, len(rc.includes))
	copy(out, rc.includes)
	return out
}

// Own returns a copy of the document's own values, without includes.
func (rc *TaskRc) Own() *Values {
	return rc.config.Clone()
}

// Assembled merges includes in order, then the document's own values.
func (rc *TaskRc) Assembled() *Values {
	all := NewValues()
	for _, include := range rc.includes {
		all.Merge(rc.includeValues[include])
	}
	all.Merge(rc.config)
	return all
}

// Keys returns the assembled keys.
func (rc *TaskRc) Keys() []string {
	return rc.Assembled().Keys()
}

// Lookup returns the assembled value for key.
func (rc *TaskRc) Lookup(key string) (string, bool) {
	return rc.Assembled().Get(key)
}

// Get returns the assembled value for key, or def when absent.
func (rc *TaskRc) Get(key, def string) string {
	if v, ok := rc.Lookup(key); ok {
		return v
	}
	return def
}

// Set stores a value in the document and rewrites the file.
func (rc *TaskRc) Set(key, value string) error {
	if rc.readOnly {
		return ErrReadOnly
	}
	rc.config.Set(key, value)
	return rc.write()
}

// Update stores every pair of values, in key order, and rewrites the file once.
func (rc *TaskRc) Update(values map[string]string) error {
	if rc.readOnly {
		return ErrReadOnly
	}
	for _, k := range sortedKeys(values) {
		rc.config.Set(k, values[k])
	}
	return rc.write()
}

// AddInclude registers an include path (if not already present), loads
// its values, and rewrites the file.
func (rc *TaskRc) AddInclude(path string) error {
	if rc.readOnly {
		return ErrReadOnly
	}
	if !contains(rc.includes, path) {
		rc.includes = append(rc.includes, path)
	}
	values, _, err := Read(rc.fs, rc.resolve(path), rc.path)
	if err != nil {
		return fmt.Errorf("taskrc: include %s: %w", path, err)
	}
	rc.includeValues[path] = values
	return rc.write()
}

// Reload re-reads the document and its includes from disk.
func (rc *TaskRc) Reload() error {
	config, includes, err := Read(rc.fs, rc.path, "")
	if err != nil {
		return fmt.Errorf("taskrc: %w", err)
	}
	rc.config, rc.includes = config, includes
	return rc.loadIncludes()
}

// Save rewrites the file from the in-memory document.
func (rc *TaskRc) Save() error {
	if rc.readOnly {
		return ErrReadOnly
	}
	return rc.write()
}

func (rc *TaskRc) write() error {
	return Write(rc.fs, rc.path, rc.config, rc.includes, rc.now())
}

// UDAs groups assembled uda.<name>.type / uda.<name>.label keys by name.
func (rc *TaskRc) UDAs() map[string]UDA {
	udas := make(map[string]UDA)
	assembled := rc.Assembled()
	for _, key := range assembled.Keys() {
		m := udaPattern.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		value, _ := assembled.Get(key)
		uda := udas[m[1]]
		switch m[2] {
		case "type":
			uda.Type = value
		case "label":
			uda.Label = value
		}
		udas[m[1]] = uda
	}
	return udas
}

func (rc *TaskRc) String() string {
	return fmt.Sprintf(".taskrc at %s", rc.path)
}
