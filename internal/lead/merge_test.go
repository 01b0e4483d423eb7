package lead

import (
	"testing"
	"time"
)

var (
	t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func existingLead() Lead {
	return Lead{
		ID:         "01EXISTING",
		Name:       "Maya",
		Company:    "Stripe",
		Email:      "maya@stripe.com",
		Title:      "VP",
		Notes:      "Met at booth",
		Confidence: 0.6,
		Sources: []Source{
			{Type: CaptureCard, Timestamp: t0, ImageRef: "sha256:abc"},
		},
		CreatedAt: t0,
		UpdatedAt: t0,
	}
}

func TestMerge_EmptyCandidate(t *testing.T) {
	existing := existingLead()
	merged := Merge(existing, Fields{}, t1)

	if merged.Name != existing.Name || merged.Company != existing.Company ||
		merged.Email != existing.Email || merged.Phone != existing.Phone ||
		merged.Title != existing.Title || merged.Notes != existing.Notes ||
		merged.Confidence != existing.Confidence {
		t.Errorf("Merge(existing, {}) changed fields: %+v", merged)
	}
	if len(merged.Sources) != len(existing.Sources) {
		t.Errorf("Sources len = %d, want %d", len(merged.Sources), len(existing.Sources))
	}
	if !merged.UpdatedAt.Equal(t1) {
		t.Errorf("UpdatedAt = %v, want %v", merged.UpdatedAt, t1)
	}
	if merged.ID != existing.ID || !merged.CreatedAt.Equal(existing.CreatedAt) {
		t.Error("ID and CreatedAt must be carried over unchanged")
	}
}

func TestMerge_ContactFields(t *testing.T) {
	tests := []struct {
		name      string
		existing  string
		candidate string
		want      string
	}{
		{"existing wins", "maya@stripe.com", "m@other.io", "maya@stripe.com"},
		{"fills gap", "", "555-1234", "555-1234"},
		{"both empty", "", "", ""},
		{"whitespace existing is empty", "  ", "555-1234", "555-1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(Lead{Email: tt.existing, Phone: tt.existing},
				Fields{Email: tt.candidate, Phone: tt.candidate}, t1)
			if got.Email != tt.want {
				t.Errorf("Email = %q, want %q", got.Email, tt.want)
			}
			if got.Phone != tt.want {
				t.Errorf("Phone = %q, want %q", got.Phone, tt.want)
			}
		})
	}
}

func TestMerge_Title(t *testing.T) {
	tests := []struct {
		name      string
		existing  string
		candidate string
		want      string
	}{
		{"longer candidate wins", "VP", "VP of Engineering", "VP of Engineering"},
		{"longer existing kept", "VP of Engineering", "VP", "VP of Engineering"},
		{"tie keeps existing", "CEO", "CTO", "CEO"},
		{"empty existing", "", "CTO", "CTO"},
		{"runes not bytes", "Directeurs", "Diréctrice", "Directeurs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(Lead{Title: tt.existing}, Fields{Title: tt.candidate}, t1)
			if got.Title != tt.want {
				t.Errorf("Title = %q, want %q", got.Title, tt.want)
			}
		})
	}
}

func TestMerge_Notes(t *testing.T) {
	tests := []struct {
		name      string
		existing  string
		candidate string
		want      string
	}{
		{"both", "Met at booth", "Wants demo", "Met at booth | Wants demo"},
		{"existing only", "Met at booth", "", "Met at booth"},
		{"candidate only", "", "Wants demo", "Wants demo"},
		{"neither", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(Lead{Notes: tt.existing}, Fields{Notes: tt.candidate}, t1)
			if got.Notes != tt.want {
				t.Errorf("Notes = %q, want %q", got.Notes, tt.want)
			}
		})
	}
}

func TestMerge_Confidence(t *testing.T) {
	tests := []struct {
		existing, candidate, want float64
	}{
		{0.6, 0.9, 0.9},
		{0.9, 0.3, 0.9},
		{0, 0.3, 0.3},
		{0, 0, 0},
		{-1, 2, 1},
	}

	for _, tt := range tests {
		got := Merge(Lead{Confidence: tt.existing}, Fields{Confidence: tt.candidate}, t1)
		if got.Confidence != tt.want {
			t.Errorf("Merge(%v, %v).Confidence = %v, want %v", tt.existing, tt.candidate, got.Confidence, tt.want)
		}
	}
}

func TestMerge_SourcesAppendInOrder(t *testing.T) {
	current := existingLead()
	want := len(current.Sources)

	for i := 0; i < 5; i++ {
		src := Source{Type: CaptureText, Timestamp: t1.Add(time.Duration(i) * time.Minute), Text: "note"}
		prev := current.Sources
		current = Merge(current, Fields{Sources: []Source{src}}, t1)
		want++

		if len(current.Sources) != want {
			t.Fatalf("after merge %d: len = %d, want %d", i, len(current.Sources), want)
		}
		if !Extends(prev, current.Sources) {
			t.Fatalf("after merge %d: sources no longer extend previous list", i)
		}
		if !current.Sources[len(current.Sources)-1].Equal(src) {
			t.Fatalf("after merge %d: last source = %+v, want %+v", i, current.Sources[len(current.Sources)-1], src)
		}
	}
}

func TestMerge_DoesNotAliasExistingSources(t *testing.T) {
	existing := existingLead()
	existing.Sources = make([]Source, 1, 4)
	existing.Sources[0] = Source{Type: CaptureText, Timestamp: t0, Text: "a"}

	first := Merge(existing, Fields{Sources: []Source{{Type: CaptureText, Timestamp: t1, Text: "b"}}}, t1)
	second := Merge(existing, Fields{Sources: []Source{{Type: CaptureText, Timestamp: t1, Text: "c"}}}, t1)

	if first.Sources[1].Text != "b" {
		t.Errorf("first merge sources overwritten by second: %+v", first.Sources)
	}
	if second.Sources[1].Text != "c" {
		t.Errorf("second merge sources = %+v", second.Sources)
	}
}

func TestExtends(t *testing.T) {
	a := Source{Type: CaptureText, Timestamp: t0, Text: "a"}
	b := Source{Type: CaptureVoice, Timestamp: t1, Transcript: "b"}

	tests := []struct {
		name       string
		prev, next []Source
		want       bool
	}{
		{"empty to empty", nil, nil, true},
		{"append", []Source{a}, []Source{a, b}, true},
		{"same", []Source{a, b}, []Source{a, b}, true},
		{"shrink", []Source{a, b}, []Source{a}, false},
		{"reorder", []Source{a, b}, []Source{b, a}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Extends(tt.prev, tt.next); got != tt.want {
				t.Errorf("Extends() = %v, want %v", got, tt.want)
			}
		})
	}
}
