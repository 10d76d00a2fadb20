package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// PruneTarget selects rotated log files by glob inside Dir. Files listed in
// Keep, typically the ones this run writes to, are never removed.
type PruneTarget struct {
	Dir     string
	Pattern string
	Keep    []string
}

// PruneLogs removes target files last modified more than retentionDays
// before now and returns how many were removed. retentionDays <= 0 keeps
// everything.
func PruneLogs(logger *slog.Logger, retentionDays int, now time.Time, targets ...PruneTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	removed := 0
	for _, target := range targets {
		if target.Dir == "" {
			continue
		}
		pattern := target.Pattern
		if pattern == "" {
			pattern = "*"
		}
		matches, err := filepath.Glob(filepath.Join(target.Dir, pattern))
		if err != nil {
			continue
		}
		keep := make(map[string]bool, len(target.Keep))
		for _, path := range target.Keep {
			keep[filepath.Clean(path)] = true
		}
		for _, path := range matches {
			if keep[filepath.Clean(path)] {
				continue
			}
			info, err := os.Lstat(path)
			if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "old log file could not be removed", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check ownership of the log directory"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			logger.Info("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
		}
	}
	return removed
}
