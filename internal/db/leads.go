package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

// ErrDuplicateID is returned when an insert reuses an existing lead id.
var ErrDuplicateID = &errors.LeadError{
	Code:    "DUPLICATE_ID",
	Status:  409,
	Message: "a lead with this id already exists",
}

const leadColumns = `id, name, company, email, phone, title, notes, confidence, sources_json, created_at, updated_at`

// Leads is the durable record store. Reads always go to the database.
type Leads struct {
	db  *sql.DB
	now func() time.Time
}

// NewLeads creates a record store over db.
func NewLeads(db *sql.DB) *Leads {
	return &Leads{db: db, now: time.Now}
}

// timestamp returns the current time at the precision the store keeps.
func (s *Leads) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Add stores a new lead built from f and returns it with id and timestamps assigned.
func (s *Leads) Add(ctx context.Context, f lead.Fields) (*lead.Lead, error) {
	now := s.timestamp()
	l := &lead.Lead{
		ID:         ulid.Make().String(),
		Name:       f.Name,
		Company:    f.Company,
		Email:      f.Email,
		Phone:      f.Phone,
		Title:      f.Title,
		Notes:      f.Notes,
		Confidence: lead.ClampConfidence(f.Confidence),
		Sources:    append([]lead.Source{}, f.Sources...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Insert(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Insert stores l as-is, keeping its id and timestamps. Used by import.
func (s *Leads) Insert(ctx context.Context, l *lead.Lead) error {
	sourcesJSON, err := marshalSources(l.Sources)
	if err != nil {
		return err
	}

	query := `INSERT INTO leads (` + leadColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		l.ID, l.Name, l.Company, l.Email, l.Phone, l.Title, l.Notes,
		l.Confidence, sourcesJSON, l.CreatedAt.UnixMilli(), l.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateID
		}
		return errors.NewStorage(err)
	}
	return nil
}

// GetByID reads a lead fresh from the database.
func (s *Leads) GetByID(ctx context.Context, id string) (*lead.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("lead", id)
	}
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	return l, nil
}

// GetAll returns every lead, newest first.
func (s *Leads) GetAll(ctx context.Context) ([]lead.Lead, error) {
	rows, err := s.Stream(ctx)
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

// List returns one page of leads, newest first, and the total count.
func (s *Leads) List(ctx context.Context, limit, offset int) ([]lead.Lead, int, error) {
	total, err := s.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, errors.NewStorage(err)
	}
	leads, err := collectLeads(rows)
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

// Count returns the number of stored leads.
func (s *Leads) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`).Scan(&n); err != nil {
		return 0, errors.NewStorage(err)
	}
	return n, nil
}

// Search returns leads whose name, company or email contains query,
// ignoring case, in store order. Matching happens in Go so non-ASCII
// text folds correctly.
func (s *Leads) Search(ctx context.Context, query string) ([]lead.Lead, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return all, nil
	}

	matches := make([]lead.Lead, 0)
	for i := range all {
		if all[i].Matches(query) {
			matches = append(matches, all[i])
		}
	}
	return matches, nil
}

// Update applies p to the stored lead and bumps updated_at.
// Returns NOT_FOUND if id is absent. A Sources patch that drops or
// reorders existing entries is rejected.
func (s *Leads) Update(ctx context.Context, id string, p lead.Patch) (*lead.Lead, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("lead", id)
	}
	if err != nil {
		return nil, errors.NewStorage(err)
	}

	if p.Sources != nil && !lead.Extends(l.Sources, p.Sources) {
		return nil, errors.NewInvalidRequest("sources can only be appended to")
	}

	p.Apply(l)
	l.Confidence = lead.ClampConfidence(l.Confidence)
	l.UpdatedAt = s.timestamp()

	sourcesJSON, err := marshalSources(l.Sources)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE leads
		SET name = ?, company = ?, email = ?, phone = ?, title = ?, notes = ?,
			confidence = ?, sources_json = ?, updated_at = ?
		WHERE id = ?
	`, l.Name, l.Company, l.Email, l.Phone, l.Title, l.Notes,
		l.Confidence, sourcesJSON, l.UpdatedAt.UnixMilli(), id)
	if err != nil {
		return nil, errors.NewStorage(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewStorage(err)
	}
	return l, nil
}

// Delete removes a lead. Deleting a missing id is not an error.
func (s *Leads) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE id = ?`, id); err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// DeleteAll removes every lead and returns how many were deleted.
func (s *Leads) DeleteAll(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM leads`)
	if err != nil {
		return 0, errors.NewStorage(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewStorage(err)
	}
	return int(n), nil
}

// Stream returns rows for every lead, newest first. Caller must close rows
// and scan with ScanLeadFromRows.
func (s *Leads) Stream(ctx context.Context) (*sql.Rows, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	return rows, nil
}

// ScanLeadFromRows scans the current row of a Stream result.
func ScanLeadFromRows(rows *sql.Rows) (*lead.Lead, error) {
	l, err := scanLead(rows)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	return l, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLead(row scanner) (*lead.Lead, error) {
	var (
		l           lead.Lead
		sourcesJSON string
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(&l.ID, &l.Name, &l.Company, &l.Email, &l.Phone, &l.Title, &l.Notes,
		&l.Confidence, &sourcesJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &l.Sources); err != nil {
		return nil, err
	}
	if l.Sources == nil {
		l.Sources = []lead.Source{}
	}
	l.CreatedAt = time.UnixMilli(createdAt).UTC()
	l.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &l, nil
}

func collectLeads(rows *sql.Rows) ([]lead.Lead, error) {
	defer rows.Close()

	leads := make([]lead.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, errors.NewStorage(err)
		}
		leads = append(leads, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(err)
	}
	return leads, nil
}

func marshalSources(sources []lead.Source) (string, error) {
	if sources == nil {
		sources = []lead.Source{}
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return string(data), nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
