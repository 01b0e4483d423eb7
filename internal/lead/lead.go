package lead

import "time"

// Lead is a captured contact record.
type Lead struct {
	// ID is a ULID assigned by the store at creation and never changed
	ID string `json:"id"`

	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Title   string `json:"title,omitempty"`
	Notes   string `json:"notes,omitempty"`

	// Confidence is the extraction confidence in [0,1]; zero when unknown
	Confidence float64 `json:"confidence"`

	// Sources records every capture that contributed to this lead, oldest first.
	// The list only ever grows.
	Sources []Source `json:"sources"`

	// CreatedAt is set once at creation
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is set at creation and on every mutation
	UpdatedAt time.Time `json:"updated_at"`
}

// Fields are the mutable parts of a lead. A candidate produced by extraction
// is a Fields value that has not been committed yet.
type Fields struct {
	Name       string   `json:"name,omitempty"`
	Company    string   `json:"company,omitempty"`
	Email      string   `json:"email,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Title      string   `json:"title,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	Confidence float64  `json:"confidence"`
	Sources    []Source `json:"sources,omitempty"`
}

// Fields returns the mutable parts of l.
func (l *Lead) Fields() Fields {
	return Fields{
		Name:       l.Name,
		Company:    l.Company,
		Email:      l.Email,
		Phone:      l.Phone,
		Title:      l.Title,
		Notes:      l.Notes,
		Confidence: l.Confidence,
		Sources:    append([]Source(nil), l.Sources...),
	}
}

// DisplayName returns the best human label for the lead.
func (l *Lead) DisplayName() string {
	switch {
	case l.Name != "":
		return l.Name
	case l.Company != "":
		return l.Company
	case l.Email != "":
		return l.Email
	}
	return "Unnamed lead"
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Name       *string
	Company    *string
	Email      *string
	Phone      *string
	Title      *string
	Notes      *string
	Confidence *float64

	// Sources, when non-nil, replaces the stored list. It must extend the
	// stored list; stores reject anything else.
	Sources []Source
}

// Apply writes the non-nil fields of p onto l. Timestamps are left to the caller.
func (p Patch) Apply(l *Lead) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Company != nil {
		l.Company = *p.Company
	}
	if p.Email != nil {
		l.Email = *p.Email
	}
	if p.Phone != nil {
		l.Phone = *p.Phone
	}
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Notes != nil {
		l.Notes = *p.Notes
	}
	if p.Confidence != nil {
		l.Confidence = *p.Confidence
	}
	if p.Sources != nil {
		l.Sources = append([]Source(nil), p.Sources...)
	}
}

// PatchFrom returns a patch that overwrites every field with f.
func PatchFrom(f Fields) Patch {
	return Patch{
		Name:       &f.Name,
		Company:    &f.Company,
		Email:      &f.Email,
		Phone:      &f.Phone,
		Title:      &f.Title,
		Notes:      &f.Notes,
		Confidence: &f.Confidence,
		Sources:    append([]Source{}, f.Sources...),
	}
}
