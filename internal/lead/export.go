package lead

import (
	"encoding/csv"
	"io"
	"time"
)

// CSVHeader is the column order of CSV exports.
var CSVHeader = []string{"Name", "Company", "Email", "Phone", "Title", "Notes", "Captured At"}

// utf8BOM makes spreadsheet apps detect the encoding.
const utf8BOM = "\ufeff"

// CSVTimeLayout formats the Captured At column.
const CSVTimeLayout = "2006-01-02 15:04"

// CSVRecord returns the lead as one CSV row in CSVHeader order.
func (l *Lead) CSVRecord() []string {
	return []string{
		l.Name,
		l.Company,
		l.Email,
		l.Phone,
		l.Title,
		l.Notes,
		l.CreatedAt.UTC().Format(CSVTimeLayout),
	}
}

// WriteCSV writes leads as a CSV document with a BOM and header row.
func WriteCSV(w io.Writer, leads []Lead) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for i := range leads {
		if err := cw.Write(leads[i].CSVRecord()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportHeader is the first line of a JSONL export.
type ExportHeader struct {
	LeadcapExport bool   `json:"_leadcap_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
}

// ExportSchemaVersion is written into every JSONL export header.
const ExportSchemaVersion = "1.0"

// ExportRecord is one lead line in a JSONL export. Timestamps are Unix
// milliseconds so the file diffs cleanly.
type ExportRecord struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Company    string   `json:"company"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	Title      string   `json:"title"`
	Notes      string   `json:"notes"`
	Confidence float64  `json:"confidence"`
	Sources    []Source `json:"sources"`
	CreatedAt  int64    `json:"created_at"`
	UpdatedAt  int64    `json:"updated_at"`
}

// ToExportRecord converts a lead for JSONL export.
func ToExportRecord(l *Lead) *ExportRecord {
	sources := l.Sources
	if sources == nil {
		sources = []Source{}
	}
	return &ExportRecord{
		ID:         l.ID,
		Name:       l.Name,
		Company:    l.Company,
		Email:      l.Email,
		Phone:      l.Phone,
		Title:      l.Title,
		Notes:      l.Notes,
		Confidence: l.Confidence,
		Sources:    sources,
		CreatedAt:  l.CreatedAt.UnixMilli(),
		UpdatedAt:  l.UpdatedAt.UnixMilli(),
	}
}

// ToLead converts an export record back into a lead.
func (r *ExportRecord) ToLead() *Lead {
	return &Lead{
		ID:         r.ID,
		Name:       r.Name,
		Company:    r.Company,
		Email:      r.Email,
		Phone:      r.Phone,
		Title:      r.Title,
		Notes:      r.Notes,
		Confidence: ClampConfidence(r.Confidence),
		Sources:    r.Sources,
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:  time.UnixMilli(r.UpdatedAt).UTC(),
	}
}
