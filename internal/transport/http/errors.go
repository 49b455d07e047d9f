package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/bookmarket-service/internal/service"
)

type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// statusFor maps the service error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, service.ErrMalformedEvent):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(status int, err error) string {
	switch status {
	case http.StatusInternalServerError:
		return "internal error"
	case http.StatusBadGateway:
		// hide processor detail wrapped behind the sentinel
		var msg string
		for _, target := range []error{service.ErrCheckoutCreationFailed, service.ErrUpstream} {
			if errors.Is(err, target) {
				msg = target.Error()
				break
			}
		}
		return msg
	case http.StatusBadRequest:
		if errors.Is(err, service.ErrInvalidSignature) {
			return service.ErrInvalidSignature.Error()
		}
	}
	return err.Error()
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, errorBody{Status: status, Message: errorMessage(status, err)})
}

func abortWithError(c *gin.Context, err error) {
	writeError(c, err)
	c.Abort()
}

// validation wraps a binding error into the validation taxonomy.
func validation(err error) error {
	if err == nil {
		return fmt.Errorf("%w: invalid id", service.ErrValidation)
	}
	return fmt.Errorf("%w: %v", service.ErrValidation, err)
}
