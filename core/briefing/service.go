package briefing

import (
	"context"
	"fmt"
	"net/mail"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/share"
	"github.com/elecmate/sitebrief/core/user"
)

// PhotoStorage presigns briefing photo uploads and downloads.
type PhotoStorage interface {
	PresignUpload(ctx context.Context, key, contentType string) (url string, expiresAt time.Time, err error)
	PresignDownload(ctx context.Context, key string) (string, error)
}

type PhotoUpload struct {
	Photo     Photo     `json:"photo"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

type Service struct {
	repo    Repository
	tokens  TokenRepository
	mailSvc core.EmailService
	photos  PhotoStorage
	logger  core.Logger
	origin  string

	// collapses concurrent token issuance for one briefing within this process
	flight singleflight.Group

	nowFunc func() time.Time // mockable
}

// NewService returns the briefing service; photos may be nil when uploads are disabled.
func NewService(
	conf *core.Config,
	repo Repository,
	tokens TokenRepository,
	mailSvc core.EmailService,
	photos PhotoStorage,
	logger core.Logger,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tokens, "tokens"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
		vala.StringNotEmpty(conf.Signing.PublicOrigin, "conf.Signing.PublicOrigin"),
	).CheckAndPanic()

	return &Service{
		repo:    repo,
		tokens:  tokens,
		mailSvc: mailSvc,
		photos:  photos,
		logger:  logger,
		origin:  conf.Signing.PublicOrigin,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the service clock.
func (svc *Service) SetNowFunc(now func() time.Time) {
	svc.nowFunc = now
}

func (svc *Service) Create(ctx context.Context, usr user.User, nb NewBriefing) (Briefing, error) {
	if !usr.IsAuthenticated() {
		return Briefing{}, core.ErrUnauthenticated
	}
	typ := nb.Type
	if typ == "" {
		typ = TypeToolboxTalk
	}
	conductor := core.CleanString(nb.ConductorName)
	if conductor == "" {
		conductor = usr.DisplayName()
	}

	now := svc.nowFunc()
	b := Briefing{
		ID:            uuid.New().String(),
		UserID:        usr.ID,
		OwnerEmail:    core.CleanString(usr.Email, true /* lower */),
		Name:          core.CleanString(nb.Name),
		Type:          typ,
		Location:      core.CleanString(nb.Location),
		Date:          nb.Date.UTC(),
		ConductorName: conductor,
		Description:   core.CleanString(nb.Description),
		Attendees:     newAttendees(nb.Attendees),
		Photos:        []Photo{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	b, err := svc.repo.CreateBriefing(ctx, b)
	return b, errors.Wrap(err, "creating briefing")
}

func (svc *Service) Query(ctx context.Context, usr user.User, filter QueryFilter, ordering []core.DBOrdering) ([]Briefing, error) {
	if !usr.IsAuthenticated() {
		return nil, core.ErrUnauthenticated
	}
	filter.UserID = usr.ID
	filter.Clean()
	briefings, err := svc.repo.QueryBriefings(ctx, filter, ordering)
	return briefings, errors.Wrap(err, "querying briefings")
}

// Get returns the briefing when usr owns it; other users get ErrNotFound.
func (svc *Service) Get(ctx context.Context, usr user.User, id string) (Briefing, error) {
	if !usr.IsAuthenticated() {
		return Briefing{}, core.ErrUnauthenticated
	}
	b, err := svc.repo.GetBriefing(ctx, id)
	if err != nil {
		return Briefing{}, err
	}
	if !b.IsOwnedBy(usr.ID) {
		return Briefing{}, ErrNotFound
	}
	return b, nil
}

func (svc *Service) update(ctx context.Context, usr user.User, id string, fn UpdateFunc) (Briefing, error) {
	if !usr.IsAuthenticated() {
		return Briefing{}, core.ErrUnauthenticated
	}
	return svc.repo.UpdateBriefing(ctx, id, func(b *Briefing) error {
		if !b.IsOwnedBy(usr.ID) {
			return ErrNotFound
		}
		if err := fn(b); err != nil {
			return err
		}
		b.UpdatedAt = svc.nowFunc()
		return nil
	})
}

func (svc *Service) Update(ctx context.Context, usr user.User, id string, ub UpdateBriefing) (Briefing, error) {
	return svc.update(ctx, usr, id, func(b *Briefing) error {
		if b.Completed {
			return core.NewValidationError(ErrCompleted)
		}
		b.Name = core.CleanString(ub.Name)
		if ub.Type != "" {
			b.Type = ub.Type
		}
		b.Location = core.CleanString(ub.Location)
		b.Date = ub.Date.UTC()
		if conductor := core.CleanString(ub.ConductorName); conductor != "" {
			b.ConductorName = conductor
		}
		b.Description = core.CleanString(ub.Description)
		b.Attendees = mergeAttendees(b.Attendees, ub.Attendees)
		return nil
	})
}

func (svc *Service) Complete(ctx context.Context, usr user.User, id string) (Briefing, error) {
	return svc.update(ctx, usr, id, func(b *Briefing) error {
		b.Completed = true
		return nil
	})
}

// SetPDF records a freshly generated report.
func (svc *Service) SetPDF(ctx context.Context, usr user.User, id string, pdf PDF) (Briefing, error) {
	return svc.update(ctx, usr, id, func(b *Briefing) error {
		generatedAt := pdf.GeneratedAt.UTC()
		b.PDFURL = pdf.URL
		b.PDFDocumentID = pdf.DocumentID
		b.PDFGeneratedAt = &generatedAt
		return nil
	})
}

// AddPhoto records a new photo and returns where the client must upload it.
func (svc *Service) AddPhoto(ctx context.Context, usr user.User, id string, np NewPhoto) (PhotoUpload, error) {
	if svc.photos == nil {
		return PhotoUpload{}, ErrPhotosDisabled
	}
	b, err := svc.Get(ctx, usr, id)
	if err != nil {
		return PhotoUpload{}, err
	}

	photo := Photo{
		Key:        fmt.Sprintf("briefings/%s/%s%s", b.ID, uuid.New().String(), photoExtensions[np.ContentType]),
		Caption:    core.CleanString(np.Caption),
		UploadedAt: svc.nowFunc(),
	}
	uploadURL, expiresAt, err := svc.photos.PresignUpload(ctx, photo.Key, np.ContentType)
	if err != nil {
		return PhotoUpload{}, errors.Wrap(err, "presigning photo upload")
	}

	_, err = svc.update(ctx, usr, id, func(b *Briefing) error {
		b.Photos = append(b.Photos, photo)
		return nil
	})
	if err != nil {
		return PhotoUpload{}, errors.Wrap(err, "adding photo")
	}
	return PhotoUpload{Photo: photo, UploadURL: uploadURL, ExpiresAt: expiresAt}, nil
}

// PhotoURL returns a presigned download URL for the briefing photo named name.
func (svc *Service) PhotoURL(ctx context.Context, usr user.User, briefingID, name string) (string, error) {
	if svc.photos == nil {
		return "", ErrPhotosDisabled
	}
	b, err := svc.Get(ctx, usr, briefingID)
	if err != nil {
		return "", err
	}
	for _, photo := range b.Photos {
		if path.Base(photo.Key) == name {
			u, err := svc.photos.PresignDownload(ctx, photo.Key)
			return u, errors.Wrap(err, "presigning photo download")
		}
	}
	return "", ErrPhotoNotFound
}

// Signing links

// GetOrCreateToken returns the briefing's signing token, reusing the active one while it is unexpired.
func (svc *Service) GetOrCreateToken(ctx context.Context, usr user.User, briefingID string) (SigningToken, error) {
	b, err := svc.Get(ctx, usr, briefingID)
	if err != nil {
		return SigningToken{}, err
	}
	return svc.issueToken(ctx, usr, b)
}

func (svc *Service) issueToken(ctx context.Context, usr user.User, b Briefing) (SigningToken, error) {
	// callers share the result, so one caller's cancellation must not fail the others
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := svc.flight.Do(b.ID, func() (interface{}, error) {
		now := svc.nowFunc()
		return svc.tokens.GetOrInsertActiveToken(flightCtx, NewSigningToken(b.ID, usr.ID, now), now)
	})
	if err != nil {
		return SigningToken{}, errors.Wrap(err, "getting or inserting active token")
	}
	return v.(SigningToken), nil
}

func (svc *Service) SigningURL(publicToken string) string {
	return SigningURL(svc.origin, publicToken)
}

// ShareLink issues (or reuses) the signing link of the briefing.
func (svc *Service) ShareLink(ctx context.Context, usr user.User, briefingID string) (share.Link, error) {
	b, err := svc.Get(ctx, usr, briefingID)
	if err != nil {
		return share.Link{}, err
	}
	tok, err := svc.issueToken(ctx, usr, b)
	if err != nil {
		return share.Link{}, err
	}
	return share.Link{
		BriefingID:   b.ID,
		BriefingName: b.Name,
		Location:     b.Location,
		SentBy:       b.ConductorName,
		Token:        tok.PublicToken,
		URL:          svc.SigningURL(tok.PublicToken),
		ExpiresAt:    tok.ExpiresAt,
	}, nil
}

// NewShareSheet opens a share sheet for the briefing; the link is issued on the first action.
func (svc *Service) NewShareSheet(usr user.User, briefingID string) *share.Sheet {
	return share.NewSheet(func(ctx context.Context) (share.Link, error) {
		return svc.ShareLink(ctx, usr, briefingID)
	})
}

// RecordEmailRecipient adds email to the set of addresses the link was sent to.
func (svc *Service) RecordEmailRecipient(ctx context.Context, usr user.User, briefingID, publicToken, email string) (SigningToken, error) {
	if _, err := svc.Get(ctx, usr, briefingID); err != nil {
		return SigningToken{}, err
	}
	tok, err := svc.tokens.GetTokenByPublicToken(ctx, publicToken)
	if err != nil {
		return SigningToken{}, err
	}
	if tok.BriefingID != briefingID {
		return SigningToken{}, ErrTokenNotFound
	}
	email = core.CleanString(email, true /* lower */)
	if tok.WasSentTo(email) {
		return tok, nil
	}
	tok, err = svc.tokens.AddEmailRecipient(ctx, publicToken, email)
	return tok, errors.Wrap(err, "adding email recipient")
}

// Tracker returns a share.RecipientTracker acting as usr.
func (svc *Service) Tracker(usr user.User) share.RecipientTracker {
	return recipientTracker{svc: svc, usr: usr}
}

type recipientTracker struct {
	svc *Service
	usr user.User
}

func (t recipientTracker) TrackRecipient(ctx context.Context, link share.Link, email string) error {
	_, err := t.svc.RecordEmailRecipient(ctx, t.usr, link.BriefingID, link.Token, email)
	return err
}

// RevokeTokens deactivates the briefing's signing links; the next share issues a new one.
func (svc *Service) RevokeTokens(ctx context.Context, usr user.User, briefingID string) (int64, error) {
	b, err := svc.Get(ctx, usr, briefingID)
	if err != nil {
		return 0, err
	}
	n, err := svc.tokens.DeactivateTokens(ctx, b.ID)
	if err != nil {
		return 0, errors.Wrap(err, "deactivating tokens")
	}
	svc.logger.Info(fmt.Sprintf("revoked %d signing link(s) of briefing %s", n, b.ID), usr, b)
	return n, nil
}

func (svc *Service) notifyFullySigned(b Briefing) {
	if b.OwnerEmail == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: b.OwnerEmail}},
		Subject:      "All attendees signed: " + b.Name,
		TemplateName: "briefing_signed",
		TemplateData: map[string]interface{}{
			"BriefingName":  b.Name,
			"AttendeeCount": len(b.Attendees),
		},
	})
}
