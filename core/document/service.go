package document

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
	"github.com/elecmate/sitebrief/core/user"
)

type (
	// Generator starts rendering the PDF report of a briefing.
	// It answers with a download URL right away, a failure, or a document ID to poll.
	Generator interface {
		Generate(ctx context.Context, b briefing.Briefing) (Status, error)
	}

	BriefingStore interface {
		Get(ctx context.Context, usr user.User, id string) (briefing.Briefing, error)
		SetPDF(ctx context.Context, usr user.User, id string, pdf briefing.PDF) (briefing.Briefing, error)
	}

	Resolution struct {
		URL         string    `json:"url"`
		Regenerated bool      `json:"regenerated"`
		GeneratedAt time.Time `json:"generated_at,omitempty"`
	}
)

type Service struct {
	briefings BriefingStore
	generator Generator
	poller    *Poller
	margin    time.Duration
	logger    core.Logger

	nowFunc func() time.Time // mockable
}

func NewService(conf *core.Config, briefings BriefingStore, generator Generator, checker StatusChecker, logger core.Logger) (*Service, error) {
	attempts, interval, margin := conf.Document.PollAttempts, conf.Document.PollInterval, conf.Document.ExpiryMargin
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if margin <= 0 {
		margin = DefaultExpiryMargin
	}

	poller, err := NewPoller(checker, attempts, interval, logger)
	if err != nil {
		return nil, errors.Wrap(err, "creating poller")
	}
	return &Service{
		briefings: briefings,
		generator: generator,
		poller:    poller,
		margin:    margin,
		logger:    logger,
		nowFunc:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Resolve returns a usable PDF URL for the briefing, regenerating it when the stored one
// is missing or expires within the margin.
func (svc *Service) Resolve(ctx context.Context, usr user.User, briefingID string) (Resolution, error) {
	b, err := svc.briefings.Get(ctx, usr, briefingID)
	if err != nil {
		return Resolution{}, err
	}
	if b.PDFURL != "" && !ExpiresWithin(b.PDFURL, svc.nowFunc(), svc.margin) {
		res := Resolution{URL: b.PDFURL}
		if b.PDFGeneratedAt != nil {
			res.GeneratedAt = *b.PDFGeneratedAt
		}
		return res, nil
	}
	return svc.regenerate(ctx, usr, b)
}

// Regenerate renders the briefing's PDF again whatever the state of the stored URL.
func (svc *Service) Regenerate(ctx context.Context, usr user.User, briefingID string) (Resolution, error) {
	b, err := svc.briefings.Get(ctx, usr, briefingID)
	if err != nil {
		return Resolution{}, err
	}
	return svc.regenerate(ctx, usr, b)
}

func (svc *Service) regenerate(ctx context.Context, usr user.User, b briefing.Briefing) (Resolution, error) {
	st, err := svc.generator.Generate(ctx, b)
	if err != nil {
		return Resolution{}, errors.Wrap(err, "requesting document generation")
	}

	downloadURL, documentID := st.DownloadURL, st.DocumentID
	switch st.State() {
	case Ready:
	case Failed:
		if st.Error != "" {
			return Resolution{}, errors.Wrap(ErrGenerationFailed, st.Error)
		}
		return Resolution{}, ErrGenerationFailed
	default:
		if documentID == "" {
			return Resolution{}, errors.Wrap(ErrGenerationFailed, "renderer returned neither a download url nor a document id")
		}
		svc.logger.Debug(fmt.Sprintf("polling document %s of briefing %s", documentID, b.ID), b)
		if downloadURL, err = svc.poller.Poll(ctx, documentID); err != nil {
			return Resolution{}, err
		}
	}

	now := svc.nowFunc()
	_, err = svc.briefings.SetPDF(ctx, usr, b.ID, briefing.PDF{URL: downloadURL, DocumentID: documentID, GeneratedAt: now})
	if err != nil {
		return Resolution{}, errors.Wrap(err, "saving pdf url")
	}
	return Resolution{URL: downloadURL, Regenerated: true, GeneratedAt: now}, nil
}
