package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
	"github.com/elecmate/sitebrief/core/document"
	"github.com/elecmate/sitebrief/core/share"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// domainHTTPError maps the core sentinel errors to their HTTP response, nil when err is not one.
func domainHTTPError(err error) *echo.HTTPError {
	switch err {
	case core.ErrUnauthenticated:
		return errUnauthorized
	case core.ErrForbidden:
		return errHttpForbidden
	case briefing.ErrNotFound, briefing.ErrTokenNotFound, briefing.ErrTokenRevoked, briefing.ErrPhotoNotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case briefing.ErrTokenExpired:
		return echo.NewHTTPError(http.StatusGone, err.Error())
	case briefing.ErrAlreadySigned:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case briefing.ErrPhotosDisabled:
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case share.ErrNoRecipient, core.ErrNoRecipients:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case document.ErrGenerationFailed:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case document.ErrPollTimeout:
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	}
	return nil
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if herr := domainHTTPError(origErr); herr != nil {
				code = herr.Code
				message = herr.Message
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), getContextUser(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
