package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
	"github.com/trezcool/absensi/core/export"
	"github.com/trezcool/absensi/core/roster"
)

var (
	errUnauthorized    = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden   = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound    = echo.NewHTTPError(http.StatusNotFound, "not found")
	errStudentInactive = echo.NewHTTPError(http.StatusForbidden, "student is inactive")
	errInvalidGateCode = core.NewValidationError(nil, core.FieldError{Field: "gate_code", Error: "invalid gate code"})
)

// businessErrors are expected outcomes of the domain operations; they are not logged.
var businessErrors = map[error]int{
	attendance.ErrAlreadyCheckedIn:    http.StatusConflict,
	attendance.ErrAlreadyCheckedOut:   http.StatusConflict,
	attendance.ErrNotCheckedIn:        http.StatusConflict,
	attendance.ErrCheckOutTooEarly:    http.StatusConflict,
	attendance.ErrConstraintViolation: http.StatusConflict,
	attendance.ErrInvalidStatus:       http.StatusBadRequest,
	attendance.ErrDayNotOver:          http.StatusBadRequest,
	attendance.ErrUnknownStudent:      http.StatusNotFound,
	roster.ErrStudentNotFound:         http.StatusNotFound,
	roster.ErrClassRoomNotFound:       http.StatusNotFound,
	roster.ErrClassRoomNotEmpty:       http.StatusConflict,
	roster.ErrClassRoomExists:         http.StatusBadRequest,
	roster.ErrNISExists:               http.StatusBadRequest,
	roster.ErrNISNExists:              http.StatusBadRequest,
	export.ErrUnknownFormat:           http.StatusBadRequest,
	export.ErrNoRecipients:            http.StatusBadRequest,
}

// businessStatus ranges over businessErrors since cause may not be hashable.
func businessStatus(cause error) (int, bool) {
	for bErr, status := range businessErrors {
		if cause == bErr {
			return status, true
		}
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if status, ok := businessStatus(cause); ok {
			code = status
			message = cause.Error()
		} else {
			switch origErr := cause.(type) {
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
				if flds := origErr.FieldMap(); flds != nil {
					message = flds
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				args := []interface{}{errors.Wrap(err, msg)}
				if p, pErr := getPrincipal(ctx); pErr == nil {
					args = append(args, p)
				}
				logger.Error(msg, args...)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
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
