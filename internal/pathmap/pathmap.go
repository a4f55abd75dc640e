// Package pathmap computes the mirrored output path for an input file under
// a target root: canonicalize the source, drop the leading root component of
// its parent, rejoin under the target root, and create the missing
// directories.
package pathmap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dircrypt/internal/errkind"
)

// RelativeTarget computes the canonical mirrored output path for source
// under targetRoot, creating any missing parent directories. Given the same
// source and targetRoot on the same filesystem, the result is stable across
// calls; no component of the original path is lost except the filesystem
// root.
func RelativeTarget(source, targetRoot string) (string, error) {
	fileName := filepath.Base(source)
	if fileName == "." || fileName == string(filepath.Separator) || strings.HasSuffix(source, string(filepath.Separator)) {
		return "", errkind.New(errkind.Path, source, fmt.Errorf("missing file name in path"))
	}

	canonical, err := filepath.EvalSymlinks(source)
	if err != nil {
		if abs, absErr := filepath.Abs(source); absErr == nil {
			canonical = abs
		} else {
			return "", errkind.New(errkind.Path, source, fmt.Errorf("canonicalizing source: %w", err))
		}
	}
	canonical, err = filepath.Abs(canonical)
	if err != nil {
		return "", errkind.New(errkind.Path, source, fmt.Errorf("making source absolute: %w", err))
	}

	parent := filepath.Dir(canonical)
	stripped, err := stripRootComponent(parent)
	if err != nil {
		return "", errkind.New(errkind.Path, source, err)
	}

	targetDir := filepath.Join(targetRoot, stripped)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", errkind.New(errkind.Path, targetDir, fmt.Errorf("creating target directory: %w", err))
	}

	return filepath.Join(targetDir, fileName), nil
}

// stripRootComponent drops the single leading root component of an absolute
// path: "/" on POSIX, or a volume name (drive letter or UNC host+share) on
// Windows.
//
// A path whose parent IS the root (e.g. "/a.txt", parent "/") strips to an
// empty remainder; the caller joins that onto targetRoot unchanged rather
// than treating it as an error.
func stripRootComponent(absPath string) (string, error) {
	vol := filepath.VolumeName(absPath)
	rest := absPath[len(vol):]
	if rest == string(filepath.Separator) {
		return "", nil
	}
	if len(rest) == 0 || rest[0] != filepath.Separator {
		return "", fmt.Errorf("path %q is not absolute under volume %q", absPath, vol)
	}
	return rest[len(string(filepath.Separator)):], nil
}
