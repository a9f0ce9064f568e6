// Package share distributes briefing signing links over the share-sheet channels.
//
// A Sheet issues the signing link lazily and memoizes it, so repeated actions never mint
// another token. Every channel reports a tagged Result instead of falling back silently.
package share

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Outcome tags what a channel did with the link.
type Outcome int

const (
	Failed Outcome = iota
	Delivered
	FallbackOpened
	Cancelled
)

var outcomeNames = map[Outcome]string{
	Failed:         "failed",
	Delivered:      "delivered",
	FallbackOpened: "fallback_opened",
	Cancelled:      "cancelled",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

var (
	ErrShareCancelled = errors.New("share cancelled by user")
	ErrNoRecipient    = errors.New("recipient email is required")
	ErrNoFallback     = errors.New("channel unavailable and no fallback configured")
)

type (
	// Link is a signing link ready to be distributed.
	Link struct {
		BriefingID   string    `json:"briefing_id"`
		BriefingName string    `json:"briefing_name"`
		Location     string    `json:"location,omitempty"`
		SentBy       string    `json:"sent_by,omitempty"`
		Token        string    `json:"token"`
		URL          string    `json:"url"`
		ExpiresAt    time.Time `json:"expires_at"`
	}

	// Result is the outcome of one share action.
	// URL is what the user ends up with: the link itself or the fallback URL.
	// Err is set on Failed results, and on other outcomes when a secondary step failed.
	Result struct {
		Channel string
		Outcome Outcome
		URL     string
		Err     error
	}

	Channel interface {
		Name() string
		Share(ctx context.Context, link Link) Result
	}

	// IssueFunc returns the signing link, creating the token when needed.
	IssueFunc func(ctx context.Context) (Link, error)
)

// Sheet is the share sheet opened for one briefing.
type Sheet struct {
	issue IssueFunc

	mu   sync.Mutex
	link *Link
}

func NewSheet(issue IssueFunc) *Sheet {
	return &Sheet{issue: issue}
}

// Link returns the memoized link, issuing it on first use.
// A failed issuance is not memoized: the next action tries again.
func (s *Sheet) Link(ctx context.Context) (Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link != nil {
		return *s.link, nil
	}
	link, err := s.issue(ctx)
	if err != nil {
		return Link{}, errors.Wrap(err, "issuing signing link")
	}
	s.link = &link
	return link, nil
}

// Share runs ch with the sheet's link.
func (s *Sheet) Share(ctx context.Context, ch Channel) Result {
	link, err := s.Link(ctx)
	if err != nil {
		return Result{Channel: ch.Name(), Outcome: Failed, Err: err}
	}
	return ch.Share(ctx, link)
}
