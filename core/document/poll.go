package document

import (
	"context"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/elecmate/sitebrief/core"
)

const (
	DefaultPollAttempts = 20
	DefaultPollInterval = 3 * time.Second

	statusFailure = "failure"
)

var (
	ErrGenerationFailed = errors.New("document generation failed")
	ErrPollTimeout      = errors.New("document generation timed out")
)

// State of a document being generated.
type State int

const (
	Pending State = iota
	Ready
	Failed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return "pending"
	}
}

// Status is the renderer's answer to both generate and status requests.
type Status struct {
	Success     bool   `json:"success"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	DocumentID  string `json:"documentId,omitempty"`
	Status      string `json:"status,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s Status) State() State {
	switch {
	case s.DownloadURL != "":
		return Ready
	case s.Status == statusFailure:
		return Failed
	default:
		return Pending
	}
}

type StatusChecker interface {
	CheckStatus(ctx context.Context, documentID string) (Status, error)
}

// Poller asks for a document's status at a fixed interval until it is ready,
// fails, or MaxAttempts requests were made.
type Poller struct {
	checker     StatusChecker
	maxAttempts int
	interval    time.Duration
	logger      core.Logger

	sleep func(ctx context.Context, d time.Duration) error // mockable
}

func NewPoller(checker StatusChecker, maxAttempts int, interval time.Duration, logger core.Logger) (*Poller, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(checker, "checker"),
		vala.IsNotNil(logger, "logger"),
		vala.GreaterThan(maxAttempts, 0, "maxAttempts"),
	).Check()
	if err != nil {
		return nil, err
	}
	return &Poller{
		checker:     checker,
		maxAttempts: maxAttempts,
		interval:    interval,
		logger:      logger,
		sleep:       sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poll returns the download URL of documentID.
// A failed status request counts as an attempt; polling goes on.
func (p *Poller) Poll(ctx context.Context, documentID string) (string, error) {
	state := Pending
	for attempt := 1; state == Pending; attempt++ {
		st, err := p.checker.CheckStatus(ctx, documentID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			p.logger.Warn(fmt.Sprintf("checking document %s status (attempt %d/%d)", documentID, attempt, p.maxAttempts), err)
		case st.State() == Ready:
			return st.DownloadURL, nil
		case st.State() == Failed:
			if st.Error != "" {
				return "", errors.Wrap(ErrGenerationFailed, st.Error)
			}
			return "", ErrGenerationFailed
		}

		if attempt >= p.maxAttempts {
			state = TimedOut
			break
		}
		if err = p.sleep(ctx, p.interval); err != nil {
			return "", err
		}
	}
	return "", ErrPollTimeout
}
