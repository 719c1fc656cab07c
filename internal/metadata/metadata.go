// Package metadata persists a store's JSON metadata document.
//
// Every Set rewrites the whole document. There is no dirty buffering.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/afero"

	"github.com/roach88/taskstore/internal/fsutil"
)

// Well-known metadata keys.
const (
	KeyVersion      = "version"
	KeyFiles        = "files"
	KeyTaskrc       = "taskrc"
	KeyTaskrcExtras = "taskrc_extras"
	KeyCredentials  = "generated_taskd_credentials"
)

// Store is a JSON-backed key/value document bound to a file.
type Store struct {
	fs   afero.Fs
	path string
	data map[string]any
}

// Open reads the document at path. If the file does not exist, skeleton
// becomes the document and is persisted immediately.
func Open(fs afero.Fs, path string, skeleton map[string]any) (*Store, error) {
	s := &Store{fs: fs, path: path}

	raw, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		s.data = make(map[string]any, len(skeleton))
		for k, v := range skeleton {
			s.data[k] = v
		}
		if err := s.write(); err != nil {
			return nil, err
		}
		return s, nil
	} else if err != nil {
		return nil, fmt.Errorf("metadata: read %s: %w", path, err)
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("metadata: decode %s: %w", path, err)
	}
	if s.data == nil {
		s.data = make(map[string]any)
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Get returns the value stored under key.
func (s *Store) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// GetString returns the string stored under key, or def if the key is
// absent or not a string.
func (s *Store) GetString(key, def string) string {
	if v, ok := s.data[key].(string); ok {
		return v
	}
	return def
}

// Set stores value under key and persists the entire document.
func (s *Store) Set(key string, value any) error {
	s.data[key] = value
	return s.write()
}

// Keys returns the document's keys in lexical order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Items returns a shallow copy of the document.
func (s *Store) Items() map[string]any {
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Version returns the schema version, defaulting to 0.
func (s *Store) Version() int {
	switch v := s.data[KeyVersion].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	default:
		return 0
	}
}

// SetVersion records the schema version.
func (s *Store) SetVersion(version int) error {
	return s.Set(KeyVersion, version)
}

func (s *Store) write() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("metadata: encode: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.fs, s.path, raw, 0600); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	return nil
}

func (s *Store) String() string {
	return fmt.Sprintf("metadata at %s", s.path)
}
