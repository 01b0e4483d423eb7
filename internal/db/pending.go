package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

const pendingColumns = `id, type, payload, mime_type, status, error, created_at`

// Pending is the durable queue of deferred captures. Items are returned in
// enqueue order.
type Pending struct {
	db  *sql.DB
	now func() time.Time
}

// NewPending creates a pending capture store over db.
func NewPending(db *sql.DB) *Pending {
	return &Pending{db: db, now: time.Now}
}

// Enqueue stores a capture with status pending and returns its id.
func (s *Pending) Enqueue(ctx context.Context, c lead.Capture) (string, error) {
	id := ulid.Make().String()
	payload := c.Payload()
	if payload == nil {
		payload = []byte{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_captures (`+pendingColumns+`) VALUES (?, ?, ?, ?, ?, NULL, ?)`,
		id, string(c.Type), payload, c.MimeType, string(lead.StatusPending), s.now().UnixMilli())
	if err != nil {
		return "", errors.NewStorage(err)
	}
	return id, nil
}

// ListPending returns items with status pending, oldest first.
// Processing and failed items are excluded.
func (s *Pending) ListPending(ctx context.Context) ([]lead.PendingCapture, error) {
	status := lead.StatusPending
	return s.List(ctx, &status)
}

// List returns items with the given status, or all items when status is nil,
// oldest first.
func (s *Pending) List(ctx context.Context, status *lead.PendingStatus) ([]lead.PendingCapture, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_captures`
	args := []any{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	defer rows.Close()

	items := make([]lead.PendingCapture, 0)
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, errors.NewStorage(err)
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(err)
	}
	return items, nil
}

// Get returns one item by id.
func (s *Pending) Get(ctx context.Context, id string) (*lead.PendingCapture, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM pending_captures WHERE id = ?`, id)
	p, err := scanPending(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("pending capture", id)
	}
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	return p, nil
}

// MarkProcessing flags an item as being drained.
func (s *Pending) MarkProcessing(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, lead.StatusProcessing, nil)
}

// MarkFailed records a processing failure. The item stays in the queue
// until retried or cleared.
func (s *Pending) MarkFailed(ctx context.Context, id, message string) error {
	return s.setStatus(ctx, id, lead.StatusFailed, &message)
}

// Retry resets an item to pending and clears its error.
func (s *Pending) Retry(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, lead.StatusPending, nil)
}

// MarkComplete removes a successfully drained item.
func (s *Pending) MarkComplete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_captures WHERE id = ?`, id); err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// Clear removes every item and returns how many were removed.
func (s *Pending) Clear(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pending_captures`)
	if err != nil {
		return 0, errors.NewStorage(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewStorage(err)
	}
	return int(n), nil
}

// ResetProcessing moves items left in processing by an interrupted drain
// back to pending. Returns how many were reset.
func (s *Pending) ResetProcessing(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE pending_captures SET status = ?, error = NULL WHERE status = ?`,
		string(lead.StatusPending), string(lead.StatusProcessing))
	if err != nil {
		return 0, errors.NewStorage(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewStorage(err)
	}
	return int(n), nil
}

// Counts returns the number of items per status. Every status is present.
func (s *Pending) Counts(ctx context.Context) (map[lead.PendingStatus]int, error) {
	counts := map[lead.PendingStatus]int{
		lead.StatusPending:    0,
		lead.StatusProcessing: 0,
		lead.StatusFailed:     0,
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM pending_captures GROUP BY status`)
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.NewStorage(err)
		}
		counts[lead.PendingStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage(err)
	}
	return counts, nil
}

func (s *Pending) setStatus(ctx context.Context, id string, status lead.PendingStatus, message *string) error {
	var errText sql.NullString
	if message != nil {
		errText = sql.NullString{String: *message, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE pending_captures SET status = ?, error = ? WHERE id = ?`,
		string(status), errText, id)
	if err != nil {
		return errors.NewStorage(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewStorage(err)
	}
	if rows == 0 {
		return errors.NewNotFound("pending capture", id)
	}
	return nil
}

func scanPending(row scanner) (*lead.PendingCapture, error) {
	var (
		p         lead.PendingCapture
		typ       string
		status    string
		errText   sql.NullString
		createdAt int64
	)
	if err := row.Scan(&p.ID, &typ, &p.Payload, &p.MimeType, &status, &errText, &createdAt); err != nil {
		return nil, err
	}
	p.Type = lead.CaptureType(typ)
	p.Status = lead.PendingStatus(status)
	p.Error = errText.String
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &p, nil
}
