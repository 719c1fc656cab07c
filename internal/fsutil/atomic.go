// Package fsutil holds small filesystem helpers shared by the on-disk
// config and metadata stores.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// WriteFileAtomic writes data to a temporary file in the destination
// directory and renames it over path, so readers observe either the old
// or the new content and never a partial write.
func WriteFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	f, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	if _, err = f.Write(data); err != nil {
		f.Close()
		_ = fs.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = fs.Chmod(tmp, perm); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("rename %s => %s: %w", tmp, path, err)
	}
	return nil
}

// Exists reports whether path exists and is a regular file.
func Exists(fs afero.Fs, path string) (bool, error) {
	info, err := fs.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
