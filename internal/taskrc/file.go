package taskrc

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/roach88/taskstore/internal/fsutil"
)

// HeaderTimeFormat is the timestamp layout of the generated-by header.
const HeaderTimeFormat = "2006-01-02 15:04:05.000000"

const includePrefix = "include "

// Parse reads config lines from r.
//
// The parser is best effort: comment lines are skipped, "include <path>"
// lines contribute (de-duplicated) include targets, "key=value" lines are
// split on the first '=' and trimmed, and any other line is dropped.
func Parse(r io.Reader) (*Values, []string) {
	values := NewValues()
	var includes []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, includePrefix) {
			parts := strings.Split(strings.TrimRight(line, "\r\n"), " ")
			if len(parts) != 2 {
				continue
			}
			target := strings.TrimSpace(parts[1])
			if target != "" && !contains(includes, target) {
				includes = append(includes, target)
			}
			continue
		}

		left, right, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key := strings.TrimSpace(left)
		if key == "" {
			continue
		}
		values.Set(key, strings.TrimSpace(right))
	}
	return values, includes
}

// Read parses the config file at path. A missing file reads as empty.
//
// When includeFrom is non-empty, path is being followed as an include of
// that file, and is read only if it lives inside includeFrom's directory
// tree. Targets outside that boundary read as empty.
func Read(fs afero.Fs, path, includeFrom string) (*Values, []string, error) {
	if includeFrom != "" && !withinDir(filepath.Dir(includeFrom), path) {
		return NewValues(), nil, nil
	}

	f, err := fs.Open(path)
	if os.IsNotExist(err) {
		return NewValues(), nil, nil
	} else if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.IsDir() {
		return NewValues(), nil, nil
	}

	values, includes := Parse(f)
	return values, includes, nil
}

// Write regenerates the config file at path: a generated-by header, the
// include lines, then one key=value line per value.
func Write(fs afero.Fs, path string, values *Values, includes []string, now time.Time) error {
	var buf bytes.Buffer
	Render(&buf, values, includes, now)

	if err := fsutil.WriteFileAtomic(fs, path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Render writes the config file text to w.
func Render(w io.Writer, values *Values, includes []string, now time.Time) {
	fmt.Fprintf(w, "# Generated by taskstore at %s UTC\n", now.UTC().Format(HeaderTimeFormat))
	for _, include := range includes {
		fmt.Fprintf(w, "include %s\n", include)
	}
	if values == nil {
		return
	}
	for _, key := range values.keys {
		fmt.Fprintf(w, "%s=%s\n", key, values.m[key])
	}
}

// withinDir reports whether target is dir itself or lies beneath it,
// comparing cleaned path components rather than raw string prefixes.
func withinDir(dir, target string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absTarget)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
