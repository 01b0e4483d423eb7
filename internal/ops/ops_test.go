package ops

import (
	"context"
	"database/sql"
	"testing"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

func stringPtr(s string) *string { return &s }

// setupOps returns a fresh database and a config rooted at the same data dir.
func setupOps(t *testing.T) (*sql.DB, *config.Config) {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.BaseDir = tmpDir
	return database, cfg
}

func addLeads(t *testing.T, database *sql.DB, fields ...lead.Fields) []*lead.Lead {
	t.Helper()
	store := db.NewLeads(database)
	out := make([]*lead.Lead, 0, len(fields))
	for _, f := range fields {
		l, err := store.Add(context.Background(), f)
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		out = append(out, l)
	}
	return out
}

// fakeSession deletes straight through the store and records resets.
type fakeSession struct {
	leads   *db.Leads
	deleted []string
	resets  int
}

func (s *fakeSession) DeleteLead(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return s.leads.Delete(ctx, id)
}

func (s *fakeSession) Reset() { s.resets++ }

func TestValidateID(t *testing.T) {
	id, err := ValidateID("  01ABC ")
	if err != nil || id != "01ABC" {
		t.Errorf("ValidateID = %q, %v", id, err)
	}
	if _, err := ValidateID("   "); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, DefaultListLimit, 0},
		{-5, -1, DefaultListLimit, 0},
		{500, 3, MaxListLimit, 3},
		{7, 2, 7, 2},
	}
	for _, tt := range tests {
		limit, offset := clampPage(tt.limit, tt.offset)
		if limit != tt.wantLimit || offset != tt.wantOffset {
			t.Errorf("clampPage(%d, %d) = %d, %d; want %d, %d",
				tt.limit, tt.offset, limit, offset, tt.wantLimit, tt.wantOffset)
		}
	}
}
