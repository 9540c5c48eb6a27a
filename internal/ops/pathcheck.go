package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/errors"
)

// Export file extensions, one per format.
var exportExtensions = map[ExportFormat]string{
	FormatMarkdown: ".md",
	FormatHTML:     ".html",
	FormatJSONL:    ".jsonl",
}

// ValidateExportPath checks an export destination:
//  1. no ".." components
//  2. the extension matches the format
//  3. the file sits directly in ~/.salon/exports or an allowed_paths entry
//     (no subdirectories), unless allow_unsafe_paths is set
//  4. neither the parent directory nor the file is a symlink
//
// The "directly in" rule leaves no intermediate directory that could be
// swapped for a symlink between validation and open; O_NOFOLLOW covers the
// final component.
func ValidateExportPath(path string, format ExportFormat, cfg *config.Config) error {
	if path == "" {
		return errors.NewInvalidInput("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidInput("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	want, ok := exportExtensions[format]
	if !ok {
		return errors.NewInvalidInput(fmt.Sprintf("unknown export format %q", format))
	}
	if !strings.EqualFold(filepath.Ext(cleaned), want) {
		return errors.NewInvalidInput(fmt.Sprintf("path must have %s extension for %s export", want, format))
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidInput(fmt.Sprintf("invalid path: %v", err))
	}

	if cfg == nil || !cfg.AllowUnsafePaths {
		allowedDirs, err := getAllowedDirs(cfg)
		if err != nil {
			return err
		}
		parentDir := filepath.Dir(absPath)
		if !isDirectlyInAllowedDir(parentDir, allowedDirs) {
			return errors.NewInvalidInput(
				fmt.Sprintf("file must be directly in an allowed directory (no subdirectories); allowed: %v",
					allowedDirs))
		}
		if info, err := os.Lstat(parentDir); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidInput("parent directory must not be a symlink")
		}
	}

	// Symlink files are refused even when directory checks are off.
	if info, err := os.Lstat(absPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidInput("path must not be a symlink")
	}
	return nil
}

// getAllowedDirs returns ~/.salon/exports plus absolute allowed_paths entries,
// with symlinked entries resolved to their targets.
func getAllowedDirs(cfg *config.Config) ([]string, error) {
	defaultDir, err := DefaultExportsDir()
	if err != nil {
		return nil, err
	}
	dirs := []string{defaultDir}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				dirs = append(dirs, filepath.Clean(p))
			}
		}
	}

	result := make([]string, 0, len(dirs))
	for _, d := range dirs {
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewInvalidInput(fmt.Sprintf("invalid allowed path: %v", err))
		}
		if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(abs)
			if err != nil {
				return nil, errors.NewInvalidInput(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			abs = resolved
		}
		result = append(result, abs)
	}
	return result, nil
}

func isDirectlyInAllowedDir(parentDir string, allowedDirs []string) bool {
	parentDir = filepath.Clean(parentDir)
	for _, dir := range allowedDirs {
		if parentDir == filepath.Clean(dir) {
			return true
		}
	}
	return false
}

// DefaultExportsDir returns ~/.salon/exports.
func DefaultExportsDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to get home directory: %w", err))
	}
	return filepath.Join(homeDir, ".salon", "exports"), nil
}

// containsTraversal checks each path component for "..", splitting on both
// the OS separator and "/".
func containsTraversal(path string) bool {
	for _, part := range strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	}) {
		if part == ".." {
			return true
		}
	}
	return false
}

// SanitizeForFilename makes s safe as a single filename component.
func SanitizeForFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.ReplaceAll(s, "..", "-")

	var b strings.Builder
	for _, r := range s {
		switch {
		case r < 32 || r == 127:
			// drop control characters
		case r == ' ' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	s = b.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-.")
	if s == "" {
		s = "unnamed"
	}
	return s
}
