package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/errors"
)

func TestValidateExportPath_TraversalRejected(t *testing.T) {
	cfg := config.DefaultConfig()

	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../backup.jsonl"},
		{"deep traversal", "../../etc/backup.jsonl"},
		{"mid-path traversal", "/tmp/../etc/backup.jsonl"},
		{"hidden in path", "/tmp/safe/../../../etc/shadow.jsonl"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateExportPath(tc.path, FormatJSONL, cfg)
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got: %v", err)
			}
		})
	}
}

func TestValidateExportPath_ExtensionMustMatchFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	tests := []struct {
		name   string
		path   string
		format ExportFormat
		ok     bool
	}{
		{"jsonl ok", "/tmp/backup.jsonl", FormatJSONL, true},
		{"md ok", "/tmp/capsule.md", FormatMarkdown, true},
		{"html ok", "/tmp/capsule.html", FormatHTML, true},
		{"upper case ext", "/tmp/capsule.MD", FormatMarkdown, true},
		{"no extension", "/tmp/backup", FormatJSONL, false},
		{"json for jsonl", "/tmp/backup.json", FormatJSONL, false},
		{"md for html", "/tmp/capsule.md", FormatHTML, false},
		{"htm for html", "/tmp/capsule.htm", FormatHTML, false},
		{"unknown format", "/tmp/capsule.txt", ExportFormat("txt"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateExportPath(tc.path, tc.format, cfg)
			if tc.ok && err != nil {
				t.Errorf("expected success, got: %v", err)
			}
			if !tc.ok && !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got: %v", err)
			}
		})
	}
}

func TestValidateExportPath_EmptyPath(t *testing.T) {
	err := ValidateExportPath("", FormatJSONL, config.DefaultConfig())
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got: %v", err)
	}
}

func TestValidateExportPath_DirectoryRestriction(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg := config.DefaultConfig()

	// Only ~/.salon/exports by default.
	if err := ValidateExportPath(filepath.Join(t.TempDir(), "backup.jsonl"), FormatJSONL, cfg); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput outside allowed dirs, got: %v", err)
	}

	inDefault := filepath.Join(home, ".salon", "exports", "backup.jsonl")
	if err := ValidateExportPath(inDefault, FormatJSONL, cfg); err != nil {
		t.Errorf("expected success in default exports dir, got: %v", err)
	}
}

func TestValidateExportPath_AllowedPaths(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	allowed := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowed, "relative/dir"}

	if err := ValidateExportPath(filepath.Join(allowed, "out.md"), FormatMarkdown, cfg); err != nil {
		t.Errorf("expected success for path in AllowedPaths, got: %v", err)
	}
	if err := ValidateExportPath(filepath.Join(t.TempDir(), "out.md"), FormatMarkdown, cfg); err == nil {
		t.Error("expected error for path outside AllowedPaths, got nil")
	}
	// Relative allowed_paths entries are ignored.
	if err := ValidateExportPath("relative/dir/out.md", FormatMarkdown, cfg); err == nil {
		t.Error("expected error for relative allowed path, got nil")
	}
}

func TestValidateExportPath_NestedPathRejected(t *testing.T) {
	allowed := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowed}

	subDir := filepath.Join(allowed, "subdir")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}

	err := ValidateExportPath(filepath.Join(subDir, "out.jsonl"), FormatJSONL, cfg)
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nested path, got: %v", err)
	}
}

func TestValidateExportPath_SymlinkFileRejected(t *testing.T) {
	allowed := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowed}

	target := filepath.Join(t.TempDir(), "secret.jsonl")
	if err := os.WriteFile(target, []byte("{}"), 0600); err != nil {
		t.Fatalf("failed to create target file: %v", err)
	}
	link := filepath.Join(allowed, "out.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	if err := ValidateExportPath(link, FormatJSONL, cfg); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got: %v", err)
	}

	// allow_unsafe_paths lifts the directory rule, not the symlink rule.
	cfg.AllowUnsafePaths = true
	if err := ValidateExportPath(link, FormatJSONL, cfg); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput with unsafe paths, got: %v", err)
	}
}

func TestValidateExportPath_SymlinkedAllowedDirResolved(t *testing.T) {
	realDir := t.TempDir()
	link := filepath.Join(t.TempDir(), "exports-link")
	if err := os.Symlink(realDir, link); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{link}

	if err := ValidateExportPath(filepath.Join(realDir, "out.jsonl"), FormatJSONL, cfg); err != nil {
		t.Errorf("expected success in resolved allowed dir, got: %v", err)
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path     string
		contains bool
	}{
		{"/home/user/file.md", false},
		{"../file.md", true},
		{"/home/../etc/passwd", true},
		{"./file.md", false},
		{"/home/user/.hidden/file.md", false},
		{"file..name.md", false},
		{"/tmp/a/b/../c.jsonl", true},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			if got := containsTraversal(tc.path); got != tc.contains {
				t.Errorf("containsTraversal(%q) = %v, want %v", tc.path, got, tc.contains)
			}
		})
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple name", "capsules", "capsules"},
		{"with spaces", "my capsule", "my-capsule"},
		{"forward slash", "path/to/file", "path-to-file"},
		{"backslash", "path\\to\\file", "path-to-file"},
		{"double dots", "foo..bar", "foo-bar"},
		{"traversal attempt", "../../../etc/passwd", "etc-passwd"},
		{"absolute path", "/tmp/evil", "tmp-evil"},
		{"reserved characters", "a:b*c?d", "a-b-c-d"},
		{"null bytes", "foo\x00bar", "foobar"},
		{"control chars", "foo\x01\x02bar", "foobar"},
		{"empty after sanitize", "../../..", "unnamed"},
		{"only slashes", "///", "unnamed"},
		{"unicode preserved", "capsule-中文", "capsule-中文"},
		{"multiple dashes collapse", "a---b", "a-b"},
		{"trailing dot trimmed", "report.", "report"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeForFilename(tc.input); got != tc.expected {
				t.Errorf("SanitizeForFilename(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}
