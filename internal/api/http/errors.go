package http

import (
	"errors"
	"net/http"

	"github.com/GriffinCanCode/microhost/internal/host"
	"github.com/GriffinCanCode/microhost/internal/page"
	"github.com/GriffinCanCode/microhost/internal/shared/types"
	"github.com/GriffinCanCode/microhost/internal/source"
	"github.com/dop251/goja"
	"github.com/gin-gonic/gin"
)

// statusFor maps host errors to HTTP status codes.
func statusFor(err error) int {
	var exception *goja.Exception
	var interrupted *goja.InterruptedError

	switch {
	case errors.Is(err, host.ErrAppNotFound):
		return http.StatusNotFound
	case errors.Is(err, host.ErrAppExists), errors.Is(err, host.ErrTransition):
		return http.StatusConflict
	case errors.Is(err, host.ErrNotStarted), errors.Is(err, page.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, host.ErrScriptTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &interrupted):
		return http.StatusRequestTimeout
	case errors.Is(err, host.ErrInvalidInput),
		errors.Is(err, host.ErrInvalidURL),
		errors.Is(err, host.ErrInvalidGlobal),
		errors.Is(err, page.ErrInvalidURL),
		errors.Is(err, page.ErrCrossOrigin):
		return http.StatusBadRequest
	case errors.Is(err, source.ErrMissingHead),
		errors.Is(err, source.ErrMissingBody),
		errors.Is(err, host.ErrNotLoaded),
		errors.As(err, &exception):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status and records it on the context.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// failWith writes err together with the app instance it left behind.
func failWith(c *gin.Context, err error, app *types.Instance) {
	_ = c.Error(err)
	body := gin.H{"error": err.Error()}
	if app != nil {
		body["app"] = app
	}
	c.JSON(statusFor(err), body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
}
