package briefing_test

import (
	"context"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
	"github.com/elecmate/sitebrief/core/share"
	"github.com/elecmate/sitebrief/core/user"
	testutil "github.com/elecmate/sitebrief/tests"
)

var (
	owner    = testutil.Owner
	stranger = testutil.Stranger
	t0       = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
)

func newEnv(t *testing.T) *testutil.BriefingEnv {
	env := testutil.NewBriefingEnv(t, nil)
	env.Service.SetNowFunc(func() time.Time { return t0 })
	return env
}

func intPtr(i int) *int { return &i }

func TestService_Create(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	b := testutil.CreateBriefing(t, env.Service, owner, "  Working at height ", "Amy Jones", "Ben Carter")
	assert.Equal(t, "Working at height", b.Name)
	assert.Equal(t, owner.ID, b.UserID)
	assert.Equal(t, "Dave Spark", b.ConductorName)
	assert.Len(t, b.Attendees, 2)
	assert.Zero(t, b.ProgressPercent())

	got, err := env.Service.Get(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = env.Service.Get(ctx, stranger, b.ID)
	assert.Equal(t, briefing.ErrNotFound, err)

	_, err = env.Service.Get(ctx, user.User{}, b.ID)
	assert.Equal(t, core.ErrUnauthenticated, err)

	list, err := env.Service.Query(ctx, owner, briefing.QueryFilter{Search: " HEIGHT"}, nil)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = env.Service.Query(ctx, stranger, briefing.QueryFilter{}, nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_GetOrCreateToken(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	b := testutil.CreateBriefing(t, env.Service, owner, "Working at height", "Amy Jones")

	tok, err := env.Service.GetOrCreateToken(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.True(t, tok.IsActive)
	assert.Equal(t, b.ID, tok.BriefingID)
	assert.Equal(t, owner.ID, tok.CreatedByUserID)
	assert.Equal(t, t0.Add(7*24*time.Hour), tok.ExpiresAt)
	assert.Empty(t, tok.EmailSentTo)

	again, err := env.Service.GetOrCreateToken(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, tok.PublicToken, again.PublicToken)

	assert.Equal(t, "https://sitebrief.test/briefing-sign/"+tok.PublicToken, env.Service.SigningURL(tok.PublicToken))

	t.Run("not the owner", func(t *testing.T) {
		_, err := env.Service.GetOrCreateToken(ctx, stranger, b.ID)
		assert.Equal(t, briefing.ErrNotFound, err)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		_, err := env.Service.GetOrCreateToken(ctx, user.User{}, b.ID)
		assert.Equal(t, core.ErrUnauthenticated, err)
	})

	t.Run("replaced after expiry", func(t *testing.T) {
		later := t0.Add(briefing.TokenLifetime)
		env.Service.SetNowFunc(func() time.Time { return later })
		defer env.Service.SetNowFunc(func() time.Time { return t0 })

		fresh, err := env.Service.GetOrCreateToken(ctx, owner, b.ID)
		require.NoError(t, err)
		assert.NotEqual(t, tok.PublicToken, fresh.PublicToken)
		assert.Equal(t, later.Add(briefing.TokenLifetime), fresh.ExpiresAt)

		old, err := env.Store.GetTokenByPublicToken(ctx, tok.PublicToken)
		require.NoError(t, err)
		assert.False(t, old.IsActive)
	})
}

func TestService_GetOrCreateToken_concurrent(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	b := testutil.CreateBriefing(t, env.Service, owner, "Working at height", "Amy Jones")

	const n = 16
	var wg sync.WaitGroup
	tokens := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := env.Service.GetOrCreateToken(ctx, owner, b.ID)
			assert.NoError(t, err)
			tokens <- tok.PublicToken
		}()
	}
	wg.Wait()
	close(tokens)

	seen := make(map[string]bool)
	for tok := range tokens {
		seen[tok] = true
	}
	assert.Len(t, seen, 1)
}

func TestService_ShareSheet(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	b := testutil.CreateBriefing(t, env.Service, owner, "Working at height", "Amy Jones")

	sheet := env.Service.NewShareSheet(owner, b.ID)
	link, err := sheet.Link(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, link.BriefingID)
	assert.Equal(t, "Working at height", link.BriefingName)
	assert.Equal(t, "Dave Spark", link.SentBy)
	assert.Equal(t, "https://sitebrief.test/briefing-sign/"+link.Token, link.URL)
	assert.Equal(t, t0.Add(briefing.TokenLifetime), link.ExpiresAt)

	templates, err := share.NewTemplates(env.Conf.Share)
	require.NoError(t, err)

	email := share.Email{
		Recipient: " Amy@Example.com ",
		Notifier:  briefing.NewMailNotifier(env.Mail),
		Tracker:   env.Service.Tracker(owner),
		Templates: templates,
	}
	for i := 0; i < 2; i++ {
		res := sheet.Share(ctx, email)
		require.NoError(t, res.Err)
		assert.Equal(t, share.Delivered, res.Outcome)
		assert.Equal(t, link.URL, res.URL)
	}

	tok, err := env.Store.GetTokenByPublicToken(ctx, link.Token)
	require.NoError(t, err)
	assert.Equal(t, []string{"amy@example.com"}, tok.EmailSentTo)

	sent := env.Mail.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "amy@example.com", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, link.URL)
	assert.Contains(t, sent[0].HTMLContent, link.URL)

	// a stranger cannot open a sheet on someone else's briefing
	res := env.Service.NewShareSheet(stranger, b.ID).Share(ctx, email)
	assert.Equal(t, share.Failed, res.Outcome)
	assert.Equal(t, briefing.ErrNotFound, errors.Cause(res.Err))
}

func TestService_RecordEmailRecipient(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	b1 := testutil.CreateBriefing(t, env.Service, owner, "Working at height", "Amy Jones")
	b2 := testutil.CreateBriefing(t, env.Service, owner, "Isolation", "Amy Jones")

	tok, err := env.Service.GetOrCreateToken(ctx, owner, b1.ID)
	require.NoError(t, err)

	tok, err = env.Service.RecordEmailRecipient(ctx, owner, b1.ID, tok.PublicToken, "Ben@Example.com")
	require.NoError(t, err)
	tok, err = env.Service.RecordEmailRecipient(ctx, owner, b1.ID, tok.PublicToken, "ben@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"ben@example.com"}, tok.EmailSentTo)

	_, err = env.Service.RecordEmailRecipient(ctx, owner, b2.ID, tok.PublicToken, "ben@example.com")
	assert.Equal(t, briefing.ErrTokenNotFound, err)
}

func TestService_RevokeTokens(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	b := testutil.CreateBriefing(t, env.Service, owner, "Working at height", "Amy Jones")

	tok, err := env.Service.GetOrCreateToken(ctx, owner, b.ID)
	require.NoError(t, err)

	_, err = env.Service.RevokeTokens(ctx, stranger, b.ID)
	assert.Equal(t, briefing.ErrNotFound, err)

	n, err := env.Service.RevokeTokens(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = env.Service.GetForSigning(ctx, tok.PublicToken)
	assert.Equal(t, briefing.ErrTokenRevoked, err)

	fresh, err := env.Service.GetOrCreateToken(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.NotEqual(t, tok.PublicToken, fresh.PublicToken)
}

func TestService_Sign(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	b := testutil.CreateBriefing(t, env.Service, owner, "Working at height", "Amy Jones", "Ben Carter", "Cara Singh")

	tok, err := env.Service.GetOrCreateToken(ctx, owner, b.ID)
	require.NoError(t, err)

	view, err := env.Service.GetForSigning(ctx, tok.PublicToken)
	require.NoError(t, err)
	assert.Equal(t, "Working at height", view.BriefingName)
	assert.Equal(t, 3, view.AttendeeCount)
	assert.Zero(t, view.ProgressPercent)

	view, err = env.Service.Sign(ctx, tok.PublicToken, briefing.SignAttendee{AttendeeIndex: intPtr(1), Signature: testutil.Signature})
	require.NoError(t, err)
	assert.Equal(t, 1, view.SignedCount)
	assert.Equal(t, 33, view.ProgressPercent)
	assert.True(t, view.Attendees[1].Signed)
	assert.Equal(t, t0, *view.Attendees[1].SignedAt)

	// the owner sees the remote signature on re-fetch
	got, err := env.Service.Get(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 33, got.ProgressPercent())
	assert.Equal(t, testutil.Signature, got.Attendees[1].Signature)

	_, err = env.Service.Sign(ctx, tok.PublicToken, briefing.SignAttendee{Name: "ben carter", Signature: testutil.Signature})
	assert.Equal(t, briefing.ErrAlreadySigned, err)

	t.Run("name suggestion", func(t *testing.T) {
		_, err := env.Service.Sign(ctx, tok.PublicToken, briefing.SignAttendee{Name: "Amy Jone", Signature: testutil.Signature})
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), "got %v", err)
		require.Len(t, verr.Fields, 1)
		assert.Equal(t, "name", verr.Fields[0].Field)
		assert.Contains(t, verr.Fields[0].Error, `did you mean "Amy Jones"?`)
	})

	t.Run("index out of range", func(t *testing.T) {
		_, err := env.Service.Sign(ctx, tok.PublicToken, briefing.SignAttendee{AttendeeIndex: intPtr(7), Signature: testutil.Signature})
		assert.Equal(t, briefing.ErrAttendeeNotFound, errors.Cause(err.(*core.ValidationError).Err))
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := env.Service.Sign(ctx, "not-a-token", briefing.SignAttendee{AttendeeIndex: intPtr(0), Signature: testutil.Signature})
		assert.Equal(t, briefing.ErrTokenNotFound, err)
	})

	// last signatures notify the owner once
	env.Mail.Reset()
	_, err = env.Service.Sign(ctx, tok.PublicToken, briefing.SignAttendee{Name: "  AMY   jones", Signature: testutil.Signature})
	require.NoError(t, err)
	assert.Empty(t, env.Mail.Sent())

	view, err = env.Service.Sign(ctx, tok.PublicToken, briefing.SignAttendee{AttendeeIndex: intPtr(2), Signature: testutil.Signature})
	require.NoError(t, err)
	assert.Equal(t, 100, view.ProgressPercent)

	sent := env.Mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, owner.Email, sent[0].To[0].Address)
	assert.True(t, strings.HasPrefix(sent[0].Subject, "All attendees signed"))
}

func TestService_Sign_expiredToken(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	b := testutil.CreateBriefing(t, env.Service, owner, "Working at height", "Amy Jones")

	tok, err := env.Service.GetOrCreateToken(ctx, owner, b.ID)
	require.NoError(t, err)

	env.Service.SetNowFunc(func() time.Time { return tok.ExpiresAt })
	_, err = env.Service.GetForSigning(ctx, tok.PublicToken)
	assert.Equal(t, briefing.ErrTokenExpired, err)
	_, err = env.Service.Sign(ctx, tok.PublicToken, briefing.SignAttendee{AttendeeIndex: intPtr(0), Signature: testutil.Signature})
	assert.Equal(t, briefing.ErrTokenExpired, err)
}

func TestService_Update(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	b := testutil.CreateBriefing(t, env.Service, owner, "Working at height", "Amy Jones", "Ben Carter")

	tok, err := env.Service.GetOrCreateToken(ctx, owner, b.ID)
	require.NoError(t, err)
	_, err = env.Service.Sign(ctx, tok.PublicToken, briefing.SignAttendee{AttendeeIndex: intPtr(0), Signature: testutil.Signature})
	require.NoError(t, err)

	ub := briefing.UpdateBriefing{
		Name: "Working at height (revised)",
		Date: b.Date,
		Attendees: []briefing.NewAttendee{
			{Name: "Cara Singh"},
			{Name: "amy jones"},
		},
	}
	updated, err := env.Service.Update(ctx, owner, b.ID, ub)
	require.NoError(t, err)
	assert.Equal(t, "Working at height (revised)", updated.Name)
	require.Len(t, updated.Attendees, 2)
	assert.False(t, updated.Attendees[0].IsSigned())
	assert.True(t, updated.Attendees[1].IsSigned())
	assert.Equal(t, 50, updated.ProgressPercent())

	_, err = env.Service.Update(ctx, stranger, b.ID, ub)
	assert.Equal(t, briefing.ErrNotFound, err)

	_, err = env.Service.Complete(ctx, owner, b.ID)
	require.NoError(t, err)
	_, err = env.Service.Update(ctx, owner, b.ID, ub)
	var verr *core.ValidationError
	assert.True(t, errors.As(err, &verr))
}

type fakePhotos struct {
	keys []string
}

func (f *fakePhotos) PresignUpload(_ context.Context, key, _ string) (string, time.Time, error) {
	f.keys = append(f.keys, key)
	return "https://bucket.test/" + key + "?X-Amz-Expires=900", t0.Add(15 * time.Minute), nil
}

func (f *fakePhotos) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://bucket.test/" + key, nil
}

func TestService_AddPhoto(t *testing.T) {
	ctx := context.Background()

	env := newEnv(t)
	b := testutil.CreateBriefing(t, env.Service, owner, "Working at height")
	_, err := env.Service.AddPhoto(ctx, owner, b.ID, briefing.NewPhoto{ContentType: "image/png"})
	assert.Equal(t, briefing.ErrPhotosDisabled, err)

	photos := &fakePhotos{}
	env = testutil.NewBriefingEnv(t, photos)
	env.Service.SetNowFunc(func() time.Time { return t0 })
	b = testutil.CreateBriefing(t, env.Service, owner, "Working at height")

	up, err := env.Service.AddPhoto(ctx, owner, b.ID, briefing.NewPhoto{ContentType: "image/png", Caption: "DB board"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.Photo.Key, "briefings/"+b.ID+"/"))
	assert.True(t, strings.HasSuffix(up.Photo.Key, ".png"))
	assert.Equal(t, []string{up.Photo.Key}, photos.keys)
	assert.Equal(t, t0.Add(15*time.Minute), up.ExpiresAt)

	got, err := env.Service.Get(ctx, owner, b.ID)
	require.NoError(t, err)
	require.Len(t, got.Photos, 1)
	assert.Equal(t, "DB board", got.Photos[0].Caption)

	_, err = env.Service.AddPhoto(ctx, stranger, b.ID, briefing.NewPhoto{ContentType: "image/png"})
	assert.Equal(t, briefing.ErrNotFound, err)
}

func TestService_PhotoURL(t *testing.T) {
	ctx := context.Background()

	env := newEnv(t)
	b := testutil.CreateBriefing(t, env.Service, owner, "Working at height")
	_, err := env.Service.PhotoURL(ctx, owner, b.ID, "any.png")
	assert.Equal(t, briefing.ErrPhotosDisabled, err)

	env = testutil.NewBriefingEnv(t, &fakePhotos{})
	b = testutil.CreateBriefing(t, env.Service, owner, "Working at height")
	up, err := env.Service.AddPhoto(ctx, owner, b.ID, briefing.NewPhoto{ContentType: "image/png"})
	require.NoError(t, err)
	name := path.Base(up.Photo.Key)

	tests := []struct {
		name    string
		usr     user.User
		photo   string
		wantURL string
		wantErr error
	}{
		{name: "owner", usr: owner, photo: name, wantURL: "https://bucket.test/" + up.Photo.Key},
		{name: "unknown photo", usr: owner, photo: "nope.png", wantErr: briefing.ErrPhotoNotFound},
		{name: "key prefix is not a name", usr: owner, photo: up.Photo.Key, wantErr: briefing.ErrPhotoNotFound},
		{name: "stranger", usr: stranger, photo: name, wantErr: briefing.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.Service.PhotoURL(ctx, tt.usr, b.ID, tt.photo)
			assert.Equal(t, tt.wantErr, err)
			assert.Equal(t, tt.wantURL, got)
		})
	}
}
