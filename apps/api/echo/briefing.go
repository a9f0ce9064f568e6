package echoapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
	"github.com/elecmate/sitebrief/core/document"
	"github.com/elecmate/sitebrief/core/share"
)

const maxQRSize = 1024

type (
	briefingResponse struct {
		briefing.Briefing
		SignedCount     int `json:"signed_count"`
		ProgressPercent int `json:"progress_percent"`
	}

	tokenResponse struct {
		Token       string    `json:"token"`
		URL         string    `json:"url"`
		ExpiresAt   time.Time `json:"expires_at"`
		EmailSentTo []string  `json:"email_sent_to"`
	}

	shareResponse struct {
		URL         string    `json:"url"`
		WhatsAppURL string    `json:"whatsapp_url"`
		MailtoURL   string    `json:"mailto_url"`
		QRURL       string    `json:"qr_url"`
		ExpiresAt   time.Time `json:"expires_at"`
	}

	shareEmailRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	shareEmailResponse struct {
		Outcome     share.Outcome `json:"outcome"`
		URL         string        `json:"url,omitempty"`
		MailtoURL   string        `json:"mailto_url,omitempty"`
		EmailSentTo []string      `json:"email_sent_to"`
	}
)

func newBriefingResponse(b briefing.Briefing) briefingResponse {
	return briefingResponse{Briefing: b, SignedCount: b.SignedCount(), ProgressPercent: b.ProgressPercent()}
}

func newTokenResponse(svc *briefing.Service, tok briefing.SigningToken) tokenResponse {
	emails := tok.EmailSentTo
	if emails == nil {
		emails = []string{}
	}
	return tokenResponse{
		Token:       tok.PublicToken,
		URL:         svc.SigningURL(tok.PublicToken),
		ExpiresAt:   tok.ExpiresAt,
		EmailSentTo: emails,
	}
}

type briefingApi struct {
	svc       *briefing.Service
	docs      *document.Service
	templates *share.Templates
	notifier  share.Notifier
	validate  *validator.Validate
	logger    core.Logger
}

func registerBriefingAPI(g *echo.Group, auth []echo.MiddlewareFunc, deps ServerDeps) {
	api := briefingApi{
		svc:       deps.BriefingSvc,
		docs:      deps.DocumentSvc,
		templates: deps.Templates,
		notifier:  deps.Notifier,
		validate:  deps.Validate,
		logger:    deps.Logger,
	}

	bg := g.Group("/briefings", auth...)
	bg.POST("", api.create)
	bg.GET("", api.query)

	// detail endpoints
	dg := bg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.POST("/complete", api.complete)
	dg.POST("/photos", api.addPhoto)
	dg.GET("/photos/:name", api.photoURL)

	dg.POST("/signing-token", api.getOrCreateToken)
	dg.DELETE("/signing-token", api.revokeTokens)

	dg.GET("/share", api.share)
	dg.GET("/share/qr.png", api.shareQR)
	dg.POST("/share/email", api.shareEmail)

	dg.GET("/pdf", api.resolvePDF)
	dg.POST("/pdf", api.regeneratePDF)
}

// Handlers

func (api *briefingApi) create(ctx echo.Context) error {
	var data briefing.NewBriefing
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBriefing")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	b, err := api.svc.Create(ctx.Request().Context(), getContextUser(ctx), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, newBriefingResponse(b))
}

func (api *briefingApi) query(ctx echo.Context) error {
	var ord Ordering
	ord.Bind(ctx)

	briefings, err := api.svc.Query(ctx.Request().Context(), getContextUser(ctx), bindQueryFilter(ctx), ord.Orderings)
	if err != nil {
		return err
	}
	res := make([]briefingResponse, 0, len(briefings))
	for _, b := range briefings {
		res = append(res, newBriefingResponse(b))
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *briefingApi) retrieve(ctx echo.Context) error {
	b, err := api.svc.Get(ctx.Request().Context(), getContextUser(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newBriefingResponse(b))
}

func (api *briefingApi) update(ctx echo.Context) error {
	var data briefing.UpdateBriefing
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBriefing")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	b, err := api.svc.Update(ctx.Request().Context(), getContextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newBriefingResponse(b))
}

func (api *briefingApi) complete(ctx echo.Context) error {
	b, err := api.svc.Complete(ctx.Request().Context(), getContextUser(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newBriefingResponse(b))
}

func (api *briefingApi) addPhoto(ctx echo.Context) error {
	var data briefing.NewPhoto
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPhoto")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	upload, err := api.svc.AddPhoto(ctx.Request().Context(), getContextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, upload)
}

// photoURL answers with a short-lived download URL for one photo.
func (api *briefingApi) photoURL(ctx echo.Context) error {
	u, err := api.svc.PhotoURL(ctx.Request().Context(), getContextUser(ctx), ctx.Param("id"), ctx.Param("name"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"url": u})
}

// Signing links

func (api *briefingApi) getOrCreateToken(ctx echo.Context) error {
	tok, err := api.svc.GetOrCreateToken(ctx.Request().Context(), getContextUser(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newTokenResponse(api.svc, tok))
}

func (api *briefingApi) revokeTokens(ctx echo.Context) error {
	n, err := api.svc.RevokeTokens(ctx.Request().Context(), getContextUser(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"revoked": n})
}

func (api *briefingApi) share(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	sheet := api.svc.NewShareSheet(getContextUser(ctx), ctx.Param("id"))

	link, err := sheet.Link(reqCtx)
	if err != nil {
		return err
	}
	wa := sheet.Share(reqCtx, share.WhatsApp{Templates: api.templates})
	if wa.Outcome == share.Failed {
		return wa.Err
	}
	subject, err := api.templates.MailSubject(link)
	if err != nil {
		return err
	}
	body, err := api.templates.MailBody(link)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, shareResponse{
		URL:         link.URL,
		WhatsAppURL: wa.URL,
		MailtoURL:   share.MailtoURL("", subject, body),
		QRURL:       fmt.Sprintf("%s/qr.png", ctx.Request().URL.Path),
		ExpiresAt:   link.ExpiresAt,
	})
}

func (api *briefingApi) shareQR(ctx echo.Context) error {
	size := share.DefaultQRSize
	if val := ctx.QueryParam("size"); val != "" {
		s, err := strconv.Atoi(val)
		if err != nil || s <= 0 || s > maxQRSize {
			return core.NewValidationError(nil, core.FieldError{
				Field: "size",
				Error: fmt.Sprintf("size must be between 1 and %d", maxQRSize),
			})
		}
		size = s
	}

	link, err := api.svc.ShareLink(ctx.Request().Context(), getContextUser(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	png, err := share.EncodeQR(link.URL, size)
	if err != nil {
		return err
	}
	return ctx.Blob(http.StatusOK, "image/png", png)
}

// shareEmail sends the signing link to one recipient.
// A failed delivery is not an error: the response carries the mailto: fallback.
func (api *briefingApi) shareEmail(ctx echo.Context) error {
	var data shareEmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to shareEmailRequest")
	}
	data.Email = core.CleanString(data.Email, true /* lower */)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr := getContextUser(ctx)
	id := ctx.Param("id")

	sheet := api.svc.NewShareSheet(usr, id)
	res := sheet.Share(reqCtx, share.Email{
		Recipient: data.Email,
		Notifier:  api.notifier,
		Tracker:   api.svc.Tracker(usr),
		Templates: api.templates,
	})

	resp := shareEmailResponse{Outcome: res.Outcome}
	switch res.Outcome {
	case share.Failed:
		return res.Err
	case share.Delivered:
		resp.URL = res.URL
	case share.FallbackOpened:
		resp.MailtoURL = res.URL
	}
	if res.Err != nil {
		link, _ := sheet.Link(reqCtx) // memoized by the share above
		api.logger.Warn(fmt.Sprintf("sharing briefing %s by email: %v", id, res.Err), res.Err, usr, link)
	}

	tok, err := api.svc.GetOrCreateToken(reqCtx, usr, id)
	if err != nil {
		return err
	}
	resp.EmailSentTo = newTokenResponse(api.svc, tok).EmailSentTo
	return ctx.JSON(http.StatusOK, resp)
}

// Reports

func (api *briefingApi) resolvePDF(ctx echo.Context) error {
	res, err := api.docs.Resolve(ctx.Request().Context(), getContextUser(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *briefingApi) regeneratePDF(ctx echo.Context) error {
	res, err := api.docs.Regenerate(ctx.Request().Context(), getContextUser(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
