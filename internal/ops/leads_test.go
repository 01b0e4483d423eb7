package ops

import (
	"context"
	"testing"

	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/lead"
)

func TestList_Pagination(t *testing.T) {
	database, _ := setupOps(t)
	addLeads(t, database, lead.Fields{Name: "a"}, lead.Fields{Name: "b"}, lead.Fields{Name: "c"})

	out, err := List(context.Background(), database, ListInput{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(out.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(out.Items))
	}
	if out.Items[0].Name != "c" {
		t.Errorf("first item = %q, want newest (c)", out.Items[0].Name)
	}
	if !out.Pagination.HasMore || out.Pagination.Total != 3 {
		t.Errorf("Pagination = %+v", out.Pagination)
	}
	if out.Sort != "created_at_desc" {
		t.Errorf("Sort = %q", out.Sort)
	}

	out, err = List(context.Background(), database, ListInput{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(out.Items) != 1 || out.Pagination.HasMore {
		t.Errorf("second page = %d items, HasMore %v", len(out.Items), out.Pagination.HasMore)
	}
}

func TestList_Empty(t *testing.T) {
	database, _ := setupOps(t)

	out, err := List(context.Background(), database, ListInput{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if out.Items == nil {
		t.Error("Items should be an empty slice, not nil")
	}
}

func TestFetch(t *testing.T) {
	database, _ := setupOps(t)
	leads := addLeads(t, database, lead.Fields{Company: "Stripe"})

	out, err := Fetch(context.Background(), database, FetchInput{ID: leads[0].ID})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if out.Company != "Stripe" || out.DisplayName != "Stripe" {
		t.Errorf("Fetch = %+v", out)
	}

	_, err = Fetch(context.Background(), database, FetchInput{ID: "missing"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	database, _ := setupOps(t)
	addLeads(t, database,
		lead.Fields{Name: "Maya Chen", Company: "Stripe"},
		lead.Fields{Name: "Tom", Email: "tom@stripe.com"},
		lead.Fields{Name: "Ana", Company: "Acme"},
	)

	out, err := Search(context.Background(), database, SearchInput{Query: "STRIPE"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(out.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(out.Items))
	}
	if out.Items[0].Name != "Tom" || out.Items[1].Name != "Maya Chen" {
		t.Errorf("order = %q, %q; want store order", out.Items[0].Name, out.Items[1].Name)
	}
	if out.Items[0].MatchedField != "email" || out.Items[0].Snippet != "tom@<b>stripe</b>.com" {
		t.Errorf("item 0 match = %q %q", out.Items[0].MatchedField, out.Items[0].Snippet)
	}
	if out.Items[1].MatchedField != "company" || out.Items[1].Snippet != "<b>Stripe</b>" {
		t.Errorf("item 1 match = %q %q", out.Items[1].MatchedField, out.Items[1].Snippet)
	}

	if _, err := Search(context.Background(), database, SearchInput{Query: "  "}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("empty query: expected INVALID_REQUEST, got %v", err)
	}
}

func TestSearch_EscapesHTML(t *testing.T) {
	database, _ := setupOps(t)
	addLeads(t, database, lead.Fields{Name: "<script>Eve</script>"})

	out, err := Search(context.Background(), database, SearchInput{Query: "eve"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	want := "&lt;script&gt;<b>Eve</b>&lt;/script&gt;"
	if out.Items[0].Snippet != want {
		t.Errorf("Snippet = %q, want %q", out.Items[0].Snippet, want)
	}
}

func TestTruncateSnippet(t *testing.T) {
	s := "aaaa <b>bbbb</b> cccc"
	got := truncateSnippet(s, 10)
	if got != "aaaa <b>bb</b>..." {
		t.Errorf("truncateSnippet = %q", got)
	}
	if truncateSnippet("short", 10) != "short" {
		t.Error("short snippets should be unchanged")
	}
}

func TestUpdate(t *testing.T) {
	database, _ := setupOps(t)
	leads := addLeads(t, database, lead.Fields{Name: "Maya", Company: "Stripe", Confidence: 0.7})

	out, err := Update(context.Background(), database, UpdateInput{
		ID:    leads[0].ID,
		Email: stringPtr("  maya@stripe.com "),
		Notes: stringPtr("demo on Friday"),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if out.Lead.Email != "maya@stripe.com" || out.Lead.Notes != "demo on Friday" {
		t.Errorf("Lead = %+v", out.Lead)
	}
	if out.Lead.Company != "Stripe" || out.Lead.Confidence != 0.7 {
		t.Error("untouched fields changed")
	}
}

func TestUpdate_Validation(t *testing.T) {
	database, _ := setupOps(t)
	leads := addLeads(t, database, lead.Fields{Name: "Maya"})

	tests := []struct {
		name  string
		input UpdateInput
		code  errors.ErrorCode
	}{
		{"no fields", UpdateInput{ID: leads[0].ID}, errors.ErrInvalidRequest},
		{"blank name", UpdateInput{ID: leads[0].ID, Name: stringPtr("   ")}, errors.ErrInvalidRequest},
		{"missing id", UpdateInput{Name: stringPtr("x")}, errors.ErrInvalidRequest},
		{"unknown id", UpdateInput{ID: "nope", Name: stringPtr("x")}, errors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Update(context.Background(), database, tt.input)
			if !errors.Is(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	database, _ := setupOps(t)
	leads := addLeads(t, database, lead.Fields{Name: "Maya"})
	session := &fakeSession{leads: db.NewLeads(database)}

	out, err := Delete(context.Background(), database, session, DeleteInput{ID: leads[0].ID})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !out.Deleted || len(session.deleted) != 1 {
		t.Errorf("Delete = %+v, session deletes %v", out, session.deleted)
	}

	_, err = Delete(context.Background(), database, session, DeleteInput{ID: leads[0].ID})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second delete: expected NOT_FOUND, got %v", err)
	}
}

func TestPurge(t *testing.T) {
	database, _ := setupOps(t)
	addLeads(t, database, lead.Fields{Name: "a"}, lead.Fields{Name: "b"})
	session := &fakeSession{leads: db.NewLeads(database)}

	if _, err := Purge(context.Background(), database, session, PurgeInput{}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("expected INVALID_REQUEST without confirm, got %v", err)
	}

	out, err := Purge(context.Background(), database, session, PurgeInput{Confirm: true})
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if out.Purged != 2 || out.Message != "Permanently deleted 2 leads" {
		t.Errorf("Purge = %+v", out)
	}
	if session.resets != 1 {
		t.Errorf("resets = %d, want 1", session.resets)
	}

	out, err = Purge(context.Background(), database, session, PurgeInput{Confirm: true})
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if out.Message != "No leads to delete" {
		t.Errorf("Message = %q", out.Message)
	}
}
