package briefing

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenLifetime is how long a signing link stays valid after it is issued.
const TokenLifetime = 7 * 24 * time.Hour

const signingPath = "/briefing-sign/"

// SigningToken is the bearer capability behind a public signing link.
// Anyone holding PublicToken may view the briefing and sign as an attendee until it expires.
type SigningToken struct {
	ID              string    `json:"id"`
	BriefingID      string    `json:"briefing_id"`
	PublicToken     string    `json:"public_token"`
	CreatedByUserID string    `json:"created_by_user_id"`
	ExpiresAt       time.Time `json:"expires_at"`
	IsActive        bool      `json:"is_active"`
	EmailSentTo     []string  `json:"email_sent_to"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewSigningToken returns an active token expiring exactly TokenLifetime after now.
func NewSigningToken(briefingID, userID string, now time.Time) SigningToken {
	now = now.UTC()
	return SigningToken{
		ID:              uuid.New().String(),
		BriefingID:      briefingID,
		PublicToken:     uuid.New().String(),
		CreatedByUserID: userID,
		ExpiresAt:       now.Add(TokenLifetime),
		IsActive:        true,
		EmailSentTo:     []string{},
		CreatedAt:       now,
	}
}

func (t SigningToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Usable reports whether the token still grants access.
func (t SigningToken) Usable(now time.Time) bool {
	return t.IsActive && !t.IsExpired(now)
}

// WasSentTo reports whether the link was already emailed to email.
func (t SigningToken) WasSentTo(email string) bool {
	for _, e := range t.EmailSentTo {
		if e == email {
			return true
		}
	}
	return false
}

// SigningURL returns <origin>/briefing-sign/<token>.
func SigningURL(origin, publicToken string) string {
	return strings.TrimRight(origin, "/") + signingPath + url.PathEscape(publicToken)
}
