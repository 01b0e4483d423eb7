// Package ops holds the stateless read, edit and backup operations shared by
// the CLI, MCP and web surfaces. Capture itself lives in pipeline.
package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/leadcap/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Session is the live capture state that has to forget deleted leads.
// *pipeline.Orchestrator satisfies it.
type Session interface {
	DeleteLead(ctx context.Context, id string) error
	Reset()
}

// ValidateID trims id and rejects an empty one.
func ValidateID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest("id is required")
	}
	return id, nil
}

// clampPage applies limit defaults and bounds and floors offset at zero.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}

func paginate(limit, offset, returned, total int) Pagination {
	return Pagination{
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+returned < total,
		Total:   total,
	}
}
