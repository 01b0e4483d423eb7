package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

// UpdateInput contains parameters for the Update operation.
type UpdateInput struct {
	ID string

	// Editable fields (nil = don't change)
	Name    *string
	Company *string
	Email   *string
	Phone   *string
	Title   *string
	Notes   *string
}

// UpdateOutput contains the result of the Update operation.
type UpdateOutput struct {
	Lead lead.Lead `json:"lead"`
}

// Update edits the contact fields of a lead. Sources and confidence are
// not editable. A provided name must not be blank.
func Update(ctx context.Context, database *sql.DB, input UpdateInput) (*UpdateOutput, error) {
	id, err := ValidateID(input.ID)
	if err != nil {
		return nil, err
	}

	if input.Name == nil && input.Company == nil && input.Email == nil &&
		input.Phone == nil && input.Title == nil && input.Notes == nil {
		return nil, errors.NewInvalidRequest("at least one editable field must be provided")
	}

	patch := lead.Patch{
		Name:    trimmed(input.Name),
		Company: trimmed(input.Company),
		Email:   trimmed(input.Email),
		Phone:   trimmed(input.Phone),
		Title:   trimmed(input.Title),
		Notes:   input.Notes,
	}
	if patch.Name != nil && *patch.Name == "" {
		return nil, errors.NewInvalidRequest("name must not be empty")
	}

	l, err := db.NewLeads(database).Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return &UpdateOutput{Lead: *l}, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
