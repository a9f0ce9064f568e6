package briefing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/elecmate/sitebrief/core"
)

// names at least this similar to the typed one are suggested back to the signer
const nameSuggestionRatio = .6

type (
	PublicAttendee struct {
		Index    int        `json:"index"`
		Name     string     `json:"name"`
		Role     string     `json:"role,omitempty"`
		Signed   bool       `json:"signed"`
		SignedAt *time.Time `json:"signed_at,omitempty"`
	}

	// SigningView is what a signing link reveals: no signatures, emails or owner details.
	SigningView struct {
		BriefingName    string           `json:"briefing_name"`
		BriefingType    string           `json:"briefing_type"`
		Location        string           `json:"location"`
		Date            time.Time        `json:"briefing_date"`
		ConductorName   string           `json:"conductor_name,omitempty"`
		Description     string           `json:"briefing_description,omitempty"`
		Attendees       []PublicAttendee `json:"attendees"`
		SignedCount     int              `json:"signed_count"`
		AttendeeCount   int              `json:"attendee_count"`
		ProgressPercent int              `json:"progress_percent"`
		ExpiresAt       time.Time        `json:"expires_at"`
	}
)

func newSigningView(b Briefing, tok SigningToken) SigningView {
	attendees := make([]PublicAttendee, 0, len(b.Attendees))
	for i, a := range b.Attendees {
		attendees = append(attendees, PublicAttendee{
			Index:    i,
			Name:     a.Name,
			Role:     a.Role,
			Signed:   a.IsSigned(),
			SignedAt: a.SignedAt,
		})
	}
	return SigningView{
		BriefingName:    b.Name,
		BriefingType:    b.Type,
		Location:        b.Location,
		Date:            b.Date,
		ConductorName:   b.ConductorName,
		Description:     b.Description,
		Attendees:       attendees,
		SignedCount:     b.SignedCount(),
		AttendeeCount:   len(b.Attendees),
		ProgressPercent: b.ProgressPercent(),
		ExpiresAt:       tok.ExpiresAt,
	}
}

// validToken returns the token behind a signing link if it still grants access.
func (svc *Service) validToken(ctx context.Context, publicToken string) (SigningToken, error) {
	tok, err := svc.tokens.GetTokenByPublicToken(ctx, strings.TrimSpace(publicToken))
	if err != nil {
		return SigningToken{}, err
	}
	if tok.Usable(svc.nowFunc()) {
		return tok, nil
	}
	if !tok.IsActive {
		return SigningToken{}, ErrTokenRevoked
	}
	return SigningToken{}, ErrTokenExpired
}

// GetForSigning returns the public view of the briefing behind a signing link.
func (svc *Service) GetForSigning(ctx context.Context, publicToken string) (SigningView, error) {
	tok, err := svc.validToken(ctx, publicToken)
	if err != nil {
		return SigningView{}, err
	}
	b, err := svc.repo.GetBriefing(ctx, tok.BriefingID)
	if err != nil {
		return SigningView{}, errors.Wrap(err, "getting briefing")
	}
	return newSigningView(b, tok), nil
}

// Sign records one attendee's signature through a signing link.
// The owner is emailed once the last attendee has signed.
func (svc *Service) Sign(ctx context.Context, publicToken string, sa SignAttendee) (SigningView, error) {
	tok, err := svc.validToken(ctx, publicToken)
	if err != nil {
		return SigningView{}, err
	}

	b, err := svc.repo.UpdateBriefing(ctx, tok.BriefingID, func(b *Briefing) error {
		idx, err := resolveAttendee(b.Attendees, sa)
		if err != nil {
			return err
		}
		if b.Attendees[idx].IsSigned() {
			return ErrAlreadySigned
		}
		now := svc.nowFunc()
		b.Attendees[idx].Signature = strings.TrimSpace(sa.Signature)
		b.Attendees[idx].SignedAt = &now
		b.UpdatedAt = now
		return nil
	})
	if err != nil {
		return SigningView{}, err
	}

	if b.FullySigned() {
		svc.notifyFullySigned(b)
	}
	return newSigningView(b, tok), nil
}

func resolveAttendee(attendees []Attendee, sa SignAttendee) (int, error) {
	if sa.AttendeeIndex != nil {
		idx := *sa.AttendeeIndex
		if idx < 0 || idx >= len(attendees) {
			return -1, core.NewValidationError(ErrAttendeeNotFound,
				core.FieldError{Field: "attendee_index", Error: ErrAttendeeNotFound.Error()})
		}
		if sa.Name != "" && normalizeName(sa.Name) != normalizeName(attendees[idx].Name) {
			return -1, core.NewValidationError(ErrAttendeeNotFound,
				core.FieldError{Field: "name", Error: "name does not match the selected attendee"})
		}
		return idx, nil
	}

	// namesakes sign in list order: the first unsigned match wins
	want := normalizeName(sa.Name)
	match := -1
	for i, a := range attendees {
		if normalizeName(a.Name) != want {
			continue
		}
		if !a.IsSigned() {
			return i, nil
		}
		if match < 0 {
			match = i
		}
	}
	if match >= 0 {
		return match, nil
	}

	msg := ErrAttendeeNotFound.Error()
	if suggestion := closestUnsignedName(attendees, want); suggestion != "" {
		msg = fmt.Sprintf("%s; did you mean %q?", msg, suggestion)
	}
	return -1, core.NewValidationError(ErrAttendeeNotFound, core.FieldError{Field: "name", Error: msg})
}

func closestUnsignedName(attendees []Attendee, name string) string {
	if name == "" {
		return ""
	}
	var best string
	var bestRatio float64
	for _, a := range attendees {
		if a.IsSigned() {
			continue
		}
		ratio := difflib.NewMatcher(strings.Split(name, ""), strings.Split(normalizeName(a.Name), "")).Ratio()
		if ratio > bestRatio {
			best, bestRatio = a.Name, ratio
		}
	}
	if bestRatio < nameSuggestionRatio {
		return ""
	}
	return best
}
