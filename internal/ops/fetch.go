package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/lead"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID string
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	lead.Lead          // embedded (copy, not pointer)
	DisplayName string `json:"display_name"`
}

// Fetch retrieves one lead by id.
func Fetch(ctx context.Context, database *sql.DB, input FetchInput) (*FetchOutput, error) {
	id, err := ValidateID(input.ID)
	if err != nil {
		return nil, err
	}

	l, err := db.NewLeads(database).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &FetchOutput{Lead: *l, DisplayName: l.DisplayName()}, nil
}
