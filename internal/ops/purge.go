package ops

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/errors"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	Confirm bool // required; guards against accidental wipes
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// Purge permanently deletes every lead and resets the capture session.
func Purge(ctx context.Context, database *sql.DB, session Session, input PurgeInput) (*PurgeOutput, error) {
	if !input.Confirm {
		return nil, errors.NewInvalidRequest("confirm is required to delete all leads")
	}

	count, err := db.NewLeads(database).DeleteAll(ctx)
	if err != nil {
		return nil, err
	}
	session.Reset()

	return &PurgeOutput{
		Purged:  count,
		Message: formatPurgeMessage(count),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count int) string {
	switch count {
	case 0:
		return "No leads to delete"
	case 1:
		return "Permanently deleted 1 lead"
	}
	return fmt.Sprintf("Permanently deleted %d leads", count)
}
