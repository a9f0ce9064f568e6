package briefing

import (
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/elecmate/sitebrief/core"
)

// Briefing types
const (
	TypeToolboxTalk     = "toolbox_talk"
	TypeSafetyBriefing  = "safety_briefing"
	TypeSiteInduction   = "site_induction"
	TypeMethodStatement = "method_statement"
)

type (
	Attendee struct {
		Name  string `json:"name"`
		Role  string `json:"role,omitempty"`
		Email string `json:"email,omitempty"`
		// Signature is a data:image URI drawn on the signing page.
		Signature string     `json:"signature,omitempty"`
		SignedAt  *time.Time `json:"timestamp,omitempty"`
	}

	Photo struct {
		Key        string    `json:"key"`
		Caption    string    `json:"caption,omitempty"`
		UploadedAt time.Time `json:"uploaded_at"`
	}

	PDF struct {
		URL         string
		DocumentID  string
		GeneratedAt time.Time
	}

	Briefing struct {
		ID             string     `json:"id"`
		UserID         string     `json:"user_id"`
		OwnerEmail     string     `json:"-"`
		Name           string     `json:"briefing_name"`
		Type           string     `json:"briefing_type"`
		Location       string     `json:"location"`
		Date           time.Time  `json:"briefing_date"`
		ConductorName  string     `json:"conductor_name,omitempty"`
		Description    string     `json:"briefing_description,omitempty"`
		Attendees      []Attendee `json:"attendees"`
		Photos         []Photo    `json:"photos"`
		Completed      bool       `json:"completed"`
		PDFURL         string     `json:"pdf_url,omitempty"`
		PDFDocumentID  string     `json:"pdf_document_id,omitempty"`
		PDFGeneratedAt *time.Time `json:"pdf_generated_at,omitempty"`
		CreatedAt      time.Time  `json:"created_at"`
		UpdatedAt      time.Time  `json:"updated_at"`
	}

	QueryFilter struct {
		UserID    string `query:"-"`
		Search    string `query:"search"`
		Completed *bool  `query:"completed"`
	}
)

// IsSigned reports whether the attendee left a non-blank signature.
func (a Attendee) IsSigned() bool {
	return strings.TrimSpace(a.Signature) != ""
}

func (b Briefing) SignedCount() int {
	var n int
	for _, a := range b.Attendees {
		if a.IsSigned() {
			n++
		}
	}
	return n
}

// Progress is the signed share of attendees, 0 when there are none.
func (b Briefing) Progress() float64 {
	if len(b.Attendees) == 0 {
		return 0
	}
	return float64(b.SignedCount()) / float64(len(b.Attendees))
}

func (b Briefing) ProgressPercent() int {
	return int(math.Round(b.Progress() * 100))
}

func (b Briefing) FullySigned() bool {
	return len(b.Attendees) > 0 && b.SignedCount() == len(b.Attendees)
}

func (b Briefing) IsOwnedBy(userID string) bool {
	return userID != "" && b.UserID == userID
}

func (f *QueryFilter) Clean() {
	f.Search = core.CleanString(f.Search, true /* lower */)
}

// Requests

type (
	NewAttendee struct {
		Name  string `json:"name" validate:"required,notblank,max=120"`
		Role  string `json:"role" validate:"max=120"`
		Email string `json:"email" validate:"omitempty,email"`
	}

	NewBriefing struct {
		Name          string        `json:"briefing_name" validate:"required,notblank,max=200"`
		Type          string        `json:"briefing_type" validate:"omitempty,oneof=toolbox_talk safety_briefing site_induction method_statement"`
		Location      string        `json:"location" validate:"max=200"`
		Date          time.Time     `json:"briefing_date" validate:"required"`
		ConductorName string        `json:"conductor_name" validate:"max=120"`
		Description   string        `json:"briefing_description" validate:"max=5000"`
		Attendees     []NewAttendee `json:"attendees" validate:"max=200,dive"`
	}

	// UpdateBriefing replaces the editable fields. Attendees keep their signature when their name is unchanged.
	UpdateBriefing NewBriefing

	SignAttendee struct {
		// AttendeeIndex selects the attendee; Name is matched when it is nil.
		AttendeeIndex *int   `json:"attendee_index" validate:"omitempty,min=0"`
		Name          string `json:"name" validate:"required_without=AttendeeIndex,max=120"`
		Signature     string `json:"signature" validate:"required,max=512000,signature_image"`
	}

	NewPhoto struct {
		ContentType string `json:"content_type" validate:"required,oneof=image/jpeg image/png image/webp image/heic"`
		Caption     string `json:"caption" validate:"max=300"`
	}
)

func (nb NewBriefing) Validate(validate *validator.Validate) error {
	return validate.Struct(nb)
}

func (ub UpdateBriefing) Validate(validate *validator.Validate) error {
	return validate.Struct(ub)
}

func (sa SignAttendee) Validate(validate *validator.Validate) error {
	return validate.Struct(sa)
}

func (np NewPhoto) Validate(validate *validator.Validate) error {
	return validate.Struct(np)
}

func newAttendees(nas []NewAttendee) []Attendee {
	attendees := make([]Attendee, 0, len(nas))
	for _, na := range nas {
		attendees = append(attendees, Attendee{
			Name:  core.CleanString(na.Name),
			Role:  core.CleanString(na.Role),
			Email: core.CleanString(na.Email, true /* lower */),
		})
	}
	return attendees
}

// mergeAttendees builds the new attendee list, carrying over signatures by name.
// Namesakes keep their signatures in list order.
func mergeAttendees(current []Attendee, nas []NewAttendee) []Attendee {
	signed := make(map[string][]Attendee, len(current))
	for _, a := range current {
		if a.IsSigned() {
			key := normalizeName(a.Name)
			signed[key] = append(signed[key], a)
		}
	}
	merged := newAttendees(nas)
	for i, a := range merged {
		key := normalizeName(a.Name)
		if prevs := signed[key]; len(prevs) > 0 {
			merged[i].Signature = prevs[0].Signature
			merged[i].SignedAt = prevs[0].SignedAt
			signed[key] = prevs[1:]
		}
	}
	return merged
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
