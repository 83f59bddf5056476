package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// normalizedFilePattern matches <platform>-normalized-<timestamp>.json,
// the input naming convention cleanup is built around.
var normalizedFilePattern = regexp.MustCompile(`^(.+)-normalized-(\d+)\.json$`)

// CleanupWarning is a non-fatal problem encountered while removing a
// processed input file's siblings: missing or unlinkable files produce
// a warning, never a failure.
type CleanupWarning struct {
	Path string
	Err  error
}

// CleanupInputFiles removes, for every processed <platform>-normalized-
// <timestamp>.json path, every sibling file in the same directory sharing
// that exact platform prefix and timestamp (log, raw, normalized
// variants). A file that doesn't match the naming convention is skipped
// silently — it was never a pipeline-owned artifact to begin with.
func CleanupInputFiles(processedFiles []string) []CleanupWarning {
	var warnings []CleanupWarning

	for _, path := range processedFiles {
		dir := filepath.Dir(path)
		base := filepath.Base(path)

		m := normalizedFilePattern.FindStringSubmatch(base)
		if m == nil {
			continue
		}

		platform, timestamp := m[1], m[2]

		entries, err := os.ReadDir(dir)
		if err != nil {
			warnings = append(warnings, CleanupWarning{Path: dir, Err: fmt.Errorf("read directory: %w", err)})
			continue
		}

		prefix := platform + "-"
		suffix := "-" + timestamp

		for _, entry := range entries {
			name := entry.Name()
			if !matchesPlatformAndTimestamp(name, prefix, suffix) {
				continue
			}

			full := filepath.Join(dir, name)
			if err := os.Remove(full); err != nil {
				warnings = append(warnings, CleanupWarning{Path: full, Err: err})
			}
		}
	}

	return warnings
}

// matchesPlatformAndTimestamp reports whether name is one of
// <platform>-<kind>-<timestamp>.json (kind being "log", "raw", or
// "normalized", or any other pipeline-emitted sibling), sharing both the
// platform prefix and the timestamp suffix before the extension.
func matchesPlatformAndTimestamp(name, prefix, timestampSuffix string) bool {
	if !hasPrefix(name, prefix) {
		return false
	}

	ext := filepath.Ext(name)
	withoutExt := name[:len(name)-len(ext)]

	return hasSuffix(withoutExt, timestampSuffix)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
