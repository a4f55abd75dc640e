// Package handler implements the per-file driver: derive the mirrored
// target path, decide skip-vs-work from mtimes, invoke the file transform,
// and report the outcome.
package handler

import (
	"context"
	"os"

	"dircrypt/internal/keymaterial"
	"dircrypt/internal/pathmap"
	"dircrypt/internal/transform"
)

// Outcome is either Skipped (output already at least as fresh as input) or
// Processed, carrying the input byte count and output path.
type Outcome struct {
	Skipped    bool
	BytesIn    uint64
	OutputPath string
}

// Handler transforms individual files under a shared key and target root,
// riding on a job-wide block-transform pool shared across every file the
// handler is asked to process.
type Handler struct {
	Key        *keymaterial.Material
	TargetRoot string
	Pool       *transform.Pool
}

// Transform derives source's mirrored target path, skips the file if the
// target is already at least as new as the source, and otherwise runs the
// file transform.
func (h *Handler) Transform(ctx context.Context, source string) (Outcome, error) {
	if info, err := os.Lstat(source); err == nil && info.Mode()&os.ModeSymlink != 0 {
		// Symlinks are skipped at the walker boundary; this is a defensive
		// second check for callers that hand the handler a path directly.
		return Outcome{Skipped: true, OutputPath: ""}, nil
	}

	target, err := pathmap.RelativeTarget(source, h.TargetRoot)
	if err != nil {
		return Outcome{}, err
	}

	if !needsWork(source, target) {
		return Outcome{Skipped: true, OutputPath: target}, nil
	}

	bytesIn, err := transform.File(ctx, source, target, h.Key, h.Pool)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{BytesIn: bytesIn, OutputPath: target}, nil
}

// needsWork reports whether target is missing or older than source. When
// either mtime cannot be read, it defaults to doing the work.
func needsWork(source, target string) bool {
	targetInfo, err := os.Stat(target)
	if err != nil {
		return true
	}
	sourceInfo, err := os.Stat(source)
	if err != nil {
		return true
	}
	return targetInfo.ModTime().Before(sourceInfo.ModTime())
}
