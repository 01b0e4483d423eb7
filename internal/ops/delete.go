package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/leadcap/internal/db"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID string
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Delete removes a lead through the session so an armed append target or
// undo slot pointing at it is dropped too. A missing id is NOT_FOUND here,
// unlike the store, so callers learn about typos.
func Delete(ctx context.Context, database *sql.DB, session Session, input DeleteInput) (*DeleteOutput, error) {
	id, err := ValidateID(input.ID)
	if err != nil {
		return nil, err
	}

	if _, err := db.NewLeads(database).GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := session.DeleteLead(ctx, id); err != nil {
		return nil, err
	}
	return &DeleteOutput{Deleted: true, ID: id}, nil
}
