package document

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elecmate/sitebrief/core/briefing"
	testutil "github.com/elecmate/sitebrief/tests"
)

type fakeGenerator struct {
	status Status
	err    error
	calls  int
}

func (g *fakeGenerator) Generate(_ context.Context, _ briefing.Briefing) (Status, error) {
	g.calls++
	return g.status, g.err
}

type docEnv struct {
	*testutil.BriefingEnv
	docs    *Service
	gen     *fakeGenerator
	checker *scriptedChecker
	now     time.Time
}

func newDocEnv(t *testing.T) *docEnv {
	env := &docEnv{
		BriefingEnv: testutil.NewBriefingEnv(t, nil),
		gen:         &fakeGenerator{},
		checker:     &scriptedChecker{script: []Status{{Status: "processing"}}},
		now:         time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
	}
	env.Service.SetNowFunc(func() time.Time { return env.now })

	docs, err := NewService(env.Conf, env.Service, env.gen, env.checker, testutil.NewLogger())
	require.NoError(t, err)
	docs.nowFunc = func() time.Time { return env.now }
	docs.poller.sleep = func(context.Context, time.Duration) error { return nil }
	env.docs = docs
	return env
}

func (env *docEnv) setPDF(t *testing.T, id, u string) {
	_, err := env.Service.SetPDF(context.Background(), testutil.Owner, id, briefing.PDF{URL: u, DocumentID: "doc-0", GeneratedAt: env.now.Add(-time.Hour)})
	require.NoError(t, err)
}

func TestService_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("valid url is returned as is", func(t *testing.T) {
		env := newDocEnv(t)
		b := testutil.CreateBriefing(t, env.Service, testutil.Owner, "Isolation")
		valid := presignedURL(env.now, "3600")
		env.setPDF(t, b.ID, valid)

		res, err := env.docs.Resolve(ctx, testutil.Owner, b.ID)
		require.NoError(t, err)
		assert.Equal(t, valid, res.URL)
		assert.False(t, res.Regenerated)
		assert.Zero(t, env.gen.calls)
	})

	t.Run("expired url is regenerated", func(t *testing.T) {
		env := newDocEnv(t)
		b := testutil.CreateBriefing(t, env.Service, testutil.Owner, "Isolation", "Amy")
		env.setPDF(t, b.ID, presignedURL(env.now.Add(-6*time.Minute), "300"))
		fresh := presignedURL(env.now, "3600")
		env.gen.status = Status{Success: true, DownloadURL: fresh}

		res, err := env.docs.Resolve(ctx, testutil.Owner, b.ID)
		require.NoError(t, err)
		assert.Equal(t, fresh, res.URL)
		assert.True(t, res.Regenerated)
		assert.Equal(t, 1, env.gen.calls)

		got, err := env.Service.Get(ctx, testutil.Owner, b.ID)
		require.NoError(t, err)
		assert.Equal(t, fresh, got.PDFURL)
		assert.Equal(t, env.now, *got.PDFGeneratedAt)
	})

	t.Run("missing url is generated and polled", func(t *testing.T) {
		env := newDocEnv(t)
		b := testutil.CreateBriefing(t, env.Service, testutil.Owner, "Isolation")
		env.gen.status = Status{Success: true, DocumentID: "doc-7", Status: "processing"}
		env.checker.script = []Status{{Status: "processing"}, {Success: true, DownloadURL: "https://cdn.test/doc-7.pdf"}}

		res, err := env.docs.Resolve(ctx, testutil.Owner, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.test/doc-7.pdf", res.URL)
		assert.Equal(t, 2, env.checker.calls)

		got, err := env.Service.Get(ctx, testutil.Owner, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "doc-7", got.PDFDocumentID)
	})

	t.Run("renderer failure", func(t *testing.T) {
		env := newDocEnv(t)
		b := testutil.CreateBriefing(t, env.Service, testutil.Owner, "Isolation")
		env.gen.status = Status{Status: "failure", Error: "template missing"}

		_, err := env.docs.Resolve(ctx, testutil.Owner, b.ID)
		assert.Equal(t, ErrGenerationFailed, errors.Cause(err))
	})

	t.Run("polling times out", func(t *testing.T) {
		env := newDocEnv(t)
		b := testutil.CreateBriefing(t, env.Service, testutil.Owner, "Isolation")
		env.gen.status = Status{Success: true, DocumentID: "doc-7"}

		_, err := env.docs.Resolve(ctx, testutil.Owner, b.ID)
		assert.Equal(t, ErrPollTimeout, errors.Cause(err))
		assert.Equal(t, DefaultPollAttempts, env.checker.calls)

		got, err := env.Service.Get(ctx, testutil.Owner, b.ID)
		require.NoError(t, err)
		assert.Empty(t, got.PDFURL)
	})

	t.Run("not the owner", func(t *testing.T) {
		env := newDocEnv(t)
		b := testutil.CreateBriefing(t, env.Service, testutil.Owner, "Isolation")

		_, err := env.docs.Resolve(ctx, testutil.Stranger, b.ID)
		assert.Equal(t, briefing.ErrNotFound, err)
		assert.Zero(t, env.gen.calls)
	})
}

func TestService_Regenerate(t *testing.T) {
	ctx := context.Background()
	env := newDocEnv(t)
	b := testutil.CreateBriefing(t, env.Service, testutil.Owner, "Isolation")
	env.setPDF(t, b.ID, presignedURL(env.now, "3600"))

	env.gen.status = Status{Success: true, DownloadURL: "https://cdn.test/new.pdf"}
	res, err := env.docs.Regenerate(ctx, testutil.Owner, b.ID)
	require.NoError(t, err)
	assert.True(t, res.Regenerated)
	assert.Equal(t, "https://cdn.test/new.pdf", res.URL)
	assert.Equal(t, 1, env.gen.calls)

	env.gen.err = errors.New("connection refused")
	_, err = env.docs.Regenerate(ctx, testutil.Owner, b.ID)
	assert.Error(t, err)
}
