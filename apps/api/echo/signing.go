package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elecmate/sitebrief/core/briefing"
)

// signingApi serves the public signing page; the link token is the only credential.
type signingApi struct {
	svc      *briefing.Service
	validate *validator.Validate
}

func registerSigningAPI(g *echo.Group, svc *briefing.Service, validate *validator.Validate) {
	api := signingApi{svc: svc, validate: validate}

	sg := g.Group("/briefing-sign/:token")
	sg.GET("", api.retrieve)
	sg.POST("", api.sign)
}

func (api *signingApi) retrieve(ctx echo.Context) error {
	view, err := api.svc.GetForSigning(ctx.Request().Context(), ctx.Param("token"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *signingApi) sign(ctx echo.Context) error {
	var data briefing.SignAttendee
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SignAttendee")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	view, err := api.svc.Sign(ctx.Request().Context(), ctx.Param("token"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, view)
}
