package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/salon/internal/capsule"
	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/db"
	"github.com/hpungsan/salon/internal/errors"
)

// ExportFormat selects the export file layout.
type ExportFormat string

const (
	FormatMarkdown ExportFormat = "md"
	FormatHTML     ExportFormat = "html"
	FormatJSONL    ExportFormat = "jsonl"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path   string       `json:"path,omitempty"`   // default: ~/.salon/exports/<name>-<timestamp>.<ext>
	Format ExportFormat `json:"format,omitempty"` // default: jsonl
	ID     string       `json:"id,omitempty"`     // required for md and html
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string       `json:"path"`
	Format     ExportFormat `json:"format"`
	Count      int          `json:"count"`
	ExportedAt int64        `json:"exported_at"`
}

// Export writes one capsule as Markdown or HTML, or every capsule with its
// version history as JSONL. The file is written next to its destination and
// renamed into place, so an existing file survives a failed export.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	format := ExportFormat(strings.ToLower(strings.TrimSpace(string(input.Format))))
	if format == "" {
		format = FormatJSONL
	}
	if _, ok := exportExtensions[format]; !ok {
		return nil, errors.NewInvalidInput(fmt.Sprintf("format must be one of md, html, jsonl; got %q", input.Format))
	}
	id := strings.TrimSpace(input.ID)
	if format != FormatJSONL && id == "" {
		return nil, errors.NewInvalidInput(fmt.Sprintf("id is required for %s export", format))
	}

	now := time.Now()
	exportPath := input.Path
	if exportPath == "" {
		name := "capsules"
		if id != "" {
			name = id
		}
		var err error
		if exportPath, err = defaultExportPath(name, format, now); err != nil {
			return nil, err
		}
	}
	// Default paths are validated too; the id lands in the filename.
	if err := ValidateExportPath(exportPath, format, cfg); err != nil {
		return nil, err
	}

	var (
		body  []byte
		count int
		err   error
	)
	switch format {
	case FormatJSONL:
		body, count, err = renderJSONL(ctx, database, cfg, now.Unix())
	default:
		body, err = renderSingle(ctx, database, cfg, format, id)
		count = 1
	}
	if err != nil {
		return nil, err
	}

	if err := writeAtomic(exportPath, body); err != nil {
		return nil, err
	}

	log.Info().Str("path", exportPath).Str("format", string(format)).Int("count", count).Msg("export written")
	return &ExportOutput{
		Path:       exportPath,
		Format:     format,
		Count:      count,
		ExportedAt: now.Unix(),
	}, nil
}

func renderSingle(ctx context.Context, database *sql.DB, cfg *config.Config, format ExportFormat, id string) ([]byte, error) {
	c, err := GetCapsule(ctx, database, cfg, CapsuleInput{ID: id})
	if err != nil {
		return nil, err
	}
	if format == FormatMarkdown {
		return []byte(capsule.Markdown(c)), nil
	}
	html, err := capsule.HTML(c)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("render html: %w", err))
	}
	return []byte(html), nil
}

// renderJSONL builds the header line followed by one ExportRecord per
// capsule, in list order.
func renderJSONL(ctx context.Context, database *sql.DB, cfg *config.Config, exportedAt int64) ([]byte, int, error) {
	records, err := read(ctx, cfg, func(ctx context.Context) ([]capsule.ExportRecord, error) {
		// LIMIT -1 is unbounded in SQLite.
		items, _, err := db.ListCapsules(ctx, database, db.ListFilter{Limit: -1})
		if err != nil {
			return nil, err
		}
		out := make([]capsule.ExportRecord, 0, len(items))
		for _, c := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			versions, err := db.ListVersions(ctx, database, c.ID)
			if err != nil {
				return nil, err
			}
			out = append(out, capsule.ExportRecord{Capsule: c, Versions: versions})
		}
		return out, nil
	})
	if err != nil {
		return nil, 0, err
	}

	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	header := capsule.ExportHeader{
		SalonExport:   true,
		SchemaVersion: capsule.ExportSchemaVersion,
		ExportedAt:    exportedAt,
		Count:         len(records),
	}
	if err := enc.Encode(header); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
	}
	return []byte(b.String()), len(records), nil
}

// writeAtomic writes body to a random temp file beside path, syncs it, and
// renames it over path.
func writeAtomic(path string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_EXCL, 0600)
	if err != nil {
		if _, ok := err.(*errors.SalonError); ok {
			return err
		}
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	w := bufio.NewWriter(file)
	if _, err := w.Write(body); err != nil {
		return errors.NewInternal(err)
	}
	if err := w.Flush(); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink planted since validation.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidInput("export path is a symlink")
	}

	// On Windows os.Rename fails when the destination exists. That failure is
	// kept rather than a delete+rename that could lose the original.
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidInput("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}

// defaultExportPath returns ~/.salon/exports/<name>-<timestamp>.<ext>.
func defaultExportPath(name string, format ExportFormat, now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s-%s%s", SanitizeForFilename(capsule.Normalize(name)),
		now.Format("2006-01-02T150405"), exportExtensions[format])
	return filepath.Join(dir, filename), nil
}
