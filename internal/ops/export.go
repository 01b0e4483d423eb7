package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

// ExportFormat selects the export file layout.
type ExportFormat string

const (
	FormatCSV   ExportFormat = "csv"   // spreadsheet-friendly, one row per lead
	FormatJSONL ExportFormat = "jsonl" // full backup, importable
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path   string       // optional, default: <data-dir>/exports/leads-<timestamp>.<format>
	Format ExportFormat // default: csv, or inferred from Path's extension
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string       `json:"path"`
	Format     ExportFormat `json:"format"`
	Count      int          `json:"count"`
	ExportedAt int64        `json:"exported_at"`
}

// Export writes every lead to a CSV or JSONL file and records the time as
// the last backup.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	now := time.Now()

	format, err := resolveFormat(input)
	if err != nil {
		return nil, err
	}

	exportPath := input.Path
	if exportPath == "" {
		exportPath = filepath.Join(ExportsDir(cfg),
			fmt.Sprintf("leads-%s.%s", now.Format("2006-01-02T150405"), format))
	}
	if err := ValidatePath(exportPath, PathCheckWrite, cfg, "."+string(format)); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	var count int
	err = writeAtomic(exportPath, func(w io.Writer) error {
		var err error
		if format == FormatJSONL {
			count, err = writeJSONL(ctx, database, w, now)
		} else {
			count, err = writeCSV(ctx, database, w)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	err = db.NewSettings(database).Set(ctx, db.SettingLastBackupAt, strconv.FormatInt(now.UnixMilli(), 10))
	if err != nil {
		return nil, err
	}

	return &ExportOutput{
		Path:       exportPath,
		Format:     format,
		Count:      count,
		ExportedAt: now.Unix(),
	}, nil
}

func resolveFormat(input ExportInput) (ExportFormat, error) {
	format := ExportFormat(strings.ToLower(strings.TrimSpace(string(input.Format))))
	if format == "" {
		format = FormatCSV
		if strings.EqualFold(filepath.Ext(input.Path), ".jsonl") {
			format = FormatJSONL
		}
	}
	if format != FormatCSV && format != FormatJSONL {
		return "", errors.NewInvalidRequest("format must be one of: csv, jsonl")
	}
	return format, nil
}

func writeCSV(ctx context.Context, database *sql.DB, w io.Writer) (int, error) {
	leads, err := collectForExport(ctx, database)
	if err != nil {
		return 0, err
	}
	if err := lead.WriteCSV(w, leads); err != nil {
		return 0, errors.NewInternal(err)
	}
	return len(leads), nil
}

func writeJSONL(ctx context.Context, database *sql.DB, w io.Writer, now time.Time) (int, error) {
	enc := json.NewEncoder(w)
	header := lead.ExportHeader{
		LeadcapExport: true,
		SchemaVersion: lead.ExportSchemaVersion,
		ExportedAt:    now.Unix(),
	}
	if err := enc.Encode(header); err != nil {
		return 0, errors.NewInternal(err)
	}

	rows, err := db.NewLeads(database).Stream(ctx)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		if ctx.Err() != nil {
			return 0, errors.NewCancelled("export")
		}
		l, err := db.ScanLeadFromRows(rows)
		if err != nil {
			return 0, err
		}
		if err := enc.Encode(lead.ToExportRecord(l)); err != nil {
			return 0, errors.NewInternal(err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, errors.NewStorage(err)
	}
	return count, nil
}

func collectForExport(ctx context.Context, database *sql.DB) ([]lead.Lead, error) {
	rows, err := db.NewLeads(database).Stream(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []lead.Lead
	for rows.Next() {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("export")
		}
		l, err := db.ScanLeadFromRows(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(err)
	}
	return leads, nil
}

// writeAtomic writes through a temp file next to path and renames it into
// place, so an existing file survives a failed export.
func writeAtomic(path string, write func(io.Writer) error) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
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

	bw := bufio.NewWriter(file)
	if err := write(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
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
	if isSymlink(path) {
		return errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	// Windows refuses to rename over an existing file. Fail rather than
	// delete-then-rename, which could lose the old export.
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}
