package mw

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wardrobe-backend/internal/apperr"
	"wardrobe-backend/internal/logger"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

// AbortWithError writes err as a coded JSON error and stops the chain.
// Uncoded errors are logged and reported as INTERNAL_ERROR without detail.
func AbortWithError(c *gin.Context, log *logger.Logger, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Wrap(apperr.CodeInternal, err, "internal server error")
	}

	status := apperr.HTTPStatus(typed.Code())
	if log != nil {
		event := log.Zerolog(c.Request.Context()).Warn()
		if status >= http.StatusInternalServerError {
			event = log.Zerolog(c.Request.Context()).Error()
		}
		event.Err(err).Str("error_code", string(typed.Code())).Msg("request failed")
	}

	c.AbortWithStatusJSON(status, ErrorBody{Error: ErrorDetail{Code: typed.Code(), Message: typed.Message()}})
}
