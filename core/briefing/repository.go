package briefing

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/elecmate/sitebrief/core"
)

var (
	// errors
	ErrNotFound         = errors.New("briefing not found")
	ErrTokenNotFound    = errors.New("signing link not found")
	ErrTokenExpired     = errors.New("signing link has expired")
	ErrTokenRevoked     = errors.New("signing link is no longer active")
	ErrAttendeeNotFound = errors.New("attendee not found on this briefing")
	ErrAlreadySigned    = errors.New("attendee has already signed")
	ErrCompleted        = errors.New("briefing is completed and can no longer be edited")
	ErrPhotosDisabled   = errors.New("photo storage is not configured")
	ErrPhotoNotFound    = errors.New("photo not found")
)

// OrderColumns maps the sortable fields of a briefing listing to their column.
var OrderColumns = map[string]string{
	"briefing_date": "briefing_date",
	"briefing_name": "briefing_name",
	"created_at":    "created_at",
	"updated_at":    "updated_at",
}

const DefaultOrdering = "briefing_date DESC, created_at DESC"

type (
	// UpdateFunc mutates a briefing inside the store's transaction.
	// Returning an error aborts the update.
	UpdateFunc func(b *Briefing) error

	Repository interface {
		CreateBriefing(ctx context.Context, b Briefing) (Briefing, error)
		GetBriefing(ctx context.Context, id string) (Briefing, error)
		QueryBriefings(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Briefing, error)
		// UpdateBriefing runs fn on the locked row and saves the result atomically.
		UpdateBriefing(ctx context.Context, id string, fn UpdateFunc) (Briefing, error)
	}

	TokenRepository interface {
		// GetOrInsertActiveToken atomically returns the briefing's active, unexpired token,
		// or deactivates an expired one and inserts candidate.
		// At most one active token per briefing exists at any time.
		GetOrInsertActiveToken(ctx context.Context, candidate SigningToken, now time.Time) (SigningToken, error)
		GetTokenByPublicToken(ctx context.Context, publicToken string) (SigningToken, error)
		// AddEmailRecipient adds email to the token's email_sent_to set in one atomic step.
		AddEmailRecipient(ctx context.Context, publicToken, email string) (SigningToken, error)
		// DeactivateTokens deactivates every active token of the briefing.
		DeactivateTokens(ctx context.Context, briefingID string) (int64, error)
	}
)
