package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/lead"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []lead.Lead `json:"items"`
	Pagination Pagination  `json:"pagination"`
	Sort       string      `json:"sort"`
}

// List returns leads newest first with pagination.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	limit, offset := clampPage(input.Limit, input.Offset)

	items, total, err := db.NewLeads(database).List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []lead.Lead{}
	}

	return &ListOutput{
		Items:      items,
		Pagination: paginate(limit, offset, len(items), total),
		Sort:       "created_at_desc",
	}, nil
}
