package document

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/elecmate/sitebrief/tests"
)

// scriptedChecker answers status requests from a script; the last answer repeats.
type scriptedChecker struct {
	script []Status
	errs   map[int]error
	calls  int
}

func (c *scriptedChecker) CheckStatus(_ context.Context, _ string) (Status, error) {
	c.calls++
	if err, ok := c.errs[c.calls]; ok {
		return Status{}, err
	}
	if c.calls <= len(c.script) {
		return c.script[c.calls-1], nil
	}
	return c.script[len(c.script)-1], nil
}

func newTestPoller(t *testing.T, checker StatusChecker) (*Poller, *[]time.Duration) {
	p, err := NewPoller(checker, DefaultPollAttempts, DefaultPollInterval, testutil.NewLogger())
	require.NoError(t, err)

	var sleeps []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return p, &sleeps
}

func TestPoller_Poll(t *testing.T) {
	pending := Status{Success: true, Status: "processing"}
	ready := Status{Success: true, DownloadURL: "https://cdn.test/report.pdf"}

	tests := []struct {
		name      string
		checker   *scriptedChecker
		wantURL   string
		wantErr   error
		wantCalls int
	}{
		{
			name:      "ready at once",
			checker:   &scriptedChecker{script: []Status{ready}},
			wantURL:   ready.DownloadURL,
			wantCalls: 1,
		},
		{
			name:      "ready on third attempt",
			checker:   &scriptedChecker{script: []Status{pending, pending, ready}},
			wantURL:   ready.DownloadURL,
			wantCalls: 3,
		},
		{
			name:      "failure is terminal",
			checker:   &scriptedChecker{script: []Status{pending, {Status: "failure"}, ready}},
			wantErr:   ErrGenerationFailed,
			wantCalls: 2,
		},
		{
			name:      "times out after 20 attempts",
			checker:   &scriptedChecker{script: []Status{pending}},
			wantErr:   ErrPollTimeout,
			wantCalls: 20,
		},
		{
			name: "transport errors keep polling",
			checker: &scriptedChecker{
				script: []Status{pending, pending, ready},
				errs:   map[int]error{1: errors.New("connection reset")},
			},
			wantURL:   ready.DownloadURL,
			wantCalls: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, sleeps := newTestPoller(t, tt.checker)

			got, err := p.Poll(context.Background(), "doc-1")
			assert.Equal(t, tt.wantErr, errors.Cause(err))
			assert.Equal(t, tt.wantURL, got)
			assert.Equal(t, tt.wantCalls, tt.checker.calls)

			// fixed interval between attempts, none after the last one
			assert.Len(t, *sleeps, tt.wantCalls-1)
			for _, d := range *sleeps {
				assert.Equal(t, DefaultPollInterval, d)
			}
		})
	}
}

func TestPoller_Poll_cancelled(t *testing.T) {
	checker := &scriptedChecker{script: []Status{{Status: "processing"}}}
	p, err := NewPoller(checker, DefaultPollAttempts, time.Hour, testutil.NewLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Poll(ctx, "doc-1")
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 1, checker.calls)
}

func TestNewPoller_invalid(t *testing.T) {
	_, err := NewPoller(nil, DefaultPollAttempts, DefaultPollInterval, testutil.NewLogger())
	assert.Error(t, err)

	_, err = NewPoller(&scriptedChecker{}, 0, DefaultPollInterval, testutil.NewLogger())
	assert.Error(t, err)
}

func TestStatus_State(t *testing.T) {
	assert.Equal(t, Ready, Status{DownloadURL: "x", Status: "failure"}.State())
	assert.Equal(t, Failed, Status{Status: "failure"}.State())
	assert.Equal(t, Pending, Status{Status: "processing"}.State())
	assert.Equal(t, Pending, Status{}.State())
	assert.Equal(t, "timed_out", TimedOut.String())
}
