package ops

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on any collision before writing
	ImportModeReplace ImportMode = "replace" // overwrite on collision
	ImportModeRename  ImportMode = "rename"  // import under a fresh id on collision
)

// maxImportLine bounds a single JSONL line. Transcripts can be long.
const maxImportLine = 4 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required, .jsonl
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError represents an error that occurred during import.
type ImportError struct {
	Line    int    `json:"line,omitempty"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type importRecord struct {
	line   int
	record lead.ExportRecord
}

// Import restores leads from a JSONL export.
func Import(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeReplace && input.Mode != ImportModeRename {
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, rename")
	}
	if err := ValidatePath(input.Path, PathCheckRead, cfg, ".jsonl"); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, parseErrors := parseExportFile(file)
	leads := db.NewLeads(database)

	if input.Mode == ImportModeError {
		if len(parseErrors) > 0 {
			return &ImportOutput{Errors: parseErrors}, nil
		}
		collisions, err := findCollisions(ctx, leads, records)
		if err != nil {
			return nil, err
		}
		if len(collisions) > 0 {
			return &ImportOutput{Errors: collisions}, nil
		}
	}

	out := &ImportOutput{Skipped: len(parseErrors), Errors: append([]ImportError{}, parseErrors...)}
	for _, r := range records {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("import")
		}
		l := r.record.ToLead()

		err := leads.Insert(ctx, l)
		if errors.Is(err, db.ErrDuplicateID.Code) {
			switch input.Mode {
			case ImportModeReplace:
				if err = leads.Delete(ctx, l.ID); err == nil {
					err = leads.Insert(ctx, l)
				}
			case ImportModeRename:
				l.ID = ulid.Make().String()
				err = leads.Insert(ctx, l)
			}
		}
		if err != nil {
			out.Skipped++
			out.Errors = append(out.Errors, ImportError{
				Line:    r.line,
				ID:      r.record.ID,
				Code:    "INSERT_FAILED",
				Message: err.Error(),
			})
			continue
		}
		out.Imported++
	}
	return out, nil
}

func findCollisions(ctx context.Context, leads *db.Leads, records []importRecord) ([]ImportError, error) {
	var collisions []ImportError
	for _, r := range records {
		_, err := leads.GetByID(ctx, r.record.ID)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		collisions = append(collisions, ImportError{
			Line:    r.line,
			ID:      r.record.ID,
			Code:    "ID_COLLISION",
			Message: fmt.Sprintf("lead with id %q already exists", r.record.ID),
		})
	}
	return collisions, nil
}

// parseExportFile reads lead records from a JSONL export, skipping the header.
func parseExportFile(r io.Reader) ([]importRecord, []ImportError) {
	var records []importRecord
	var parseErrors []ImportError

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var header lead.ExportHeader
		if json.Unmarshal(line, &header) == nil && header.LeadcapExport {
			continue
		}

		var record lead.ExportRecord
		if err := json.Unmarshal(line, &record); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}
		if record.ID == "" {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "INVALID_RECORD",
				Message: "missing id field",
			})
			continue
		}
		records = append(records, importRecord{line: lineNum, record: record})
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}
	return records, parseErrors
}
