// Package bilib holds small filesystem and string helpers shared by the
// bisync engine, split out the way cmd/bisync/bilib is in rclone itself.
package bilib

import (
	"os"
	"path/filepath"
	"strings"
)

// sanitizeReplacer removes characters that can't safely appear in a
// filename across platforms. Case is left untouched deliberately: the
// transport side may be case-sensitive.
var sanitizeReplacer = strings.NewReplacer(
	":", "_",
	"/", "_",
	"\\", "_",
)

// SanitizePair derives the deterministic fingerprint used to name the
// baseline and lock files for a given (path1, path2) pair, so that
// multiple independent pairs can coexist in the same workdir/tempdir.
func SanitizePair(path1, path2 string) string {
	return sanitizeReplacer.Replace(path1) + ".." + sanitizeReplacer.Replace(path2)
}

// FileExists reports whether path exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CopyFile copies src to dst, overwriting dst if present. It is used by
// the Baseline Store's dry-run mode to seed working copies without
// touching the real baselines.
func CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// WriteFileAtomic writes data to path via a temp file in the same
// directory followed by a rename, so a crash mid-write never leaves a
// torn baseline in place of the old one.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
