package lead

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// NotesSeparator joins existing and incoming notes on merge.
const NotesSeparator = " | "

// Merge folds candidate into existing and returns the reconciled lead.
// Known contact facts win over re-extracted ones, the longer title wins
// (ties keep existing), notes are concatenated, confidence takes the max and
// sources are appended. ID and CreatedAt are carried over unchanged;
// UpdatedAt is set to now.
func Merge(existing Lead, candidate Fields, now time.Time) Lead {
	merged := existing
	merged.Name = firstNonEmpty(existing.Name, candidate.Name)
	merged.Company = firstNonEmpty(existing.Company, candidate.Company)
	merged.Email = firstNonEmpty(existing.Email, candidate.Email)
	merged.Phone = firstNonEmpty(existing.Phone, candidate.Phone)
	merged.Title = longer(existing.Title, candidate.Title)
	merged.Notes = joinNotes(existing.Notes, candidate.Notes)
	merged.Confidence = max(ClampConfidence(existing.Confidence), ClampConfidence(candidate.Confidence))

	if len(candidate.Sources) > 0 {
		merged.Sources = make([]Source, 0, len(existing.Sources)+len(candidate.Sources))
		merged.Sources = append(merged.Sources, existing.Sources...)
		merged.Sources = append(merged.Sources, candidate.Sources...)
	}

	merged.UpdatedAt = now
	return merged
}

func firstNonEmpty(existing, candidate string) string {
	if strings.TrimSpace(existing) != "" {
		return existing
	}
	return candidate
}

// longer returns candidate only when it is strictly longer than existing.
func longer(existing, candidate string) string {
	if utf8.RuneCountInString(candidate) > utf8.RuneCountInString(existing) {
		return candidate
	}
	return existing
}

func joinNotes(existing, candidate string) string {
	hasExisting := strings.TrimSpace(existing) != ""
	hasCandidate := strings.TrimSpace(candidate) != ""
	switch {
	case hasExisting && hasCandidate:
		return existing + NotesSeparator + candidate
	case hasExisting:
		return existing
	case hasCandidate:
		return candidate
	}
	return ""
}

// ClampConfidence keeps confidence within [0,1]; NaN counts as unknown.
func ClampConfidence(c float64) float64 {
	if c < 0 || math.IsNaN(c) {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
