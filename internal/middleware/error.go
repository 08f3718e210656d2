package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "flow/internal/errors"
	"flow/internal/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error, unless
// a response was already written. Bind errors become INVALID_INPUT; anything
// that is not an AppError is logged and reported as INTERNAL_ERROR.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		last := c.Errors.Last()
		if last.IsType(gin.ErrorTypeBind) {
			writeError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, last.Error()))
			return
		}
		writeError(c, last.Err)
	}
}

// abortWithError stops the chain and writes err in the standard shape.
func abortWithError(c *gin.Context, err error) {
	c.Abort()
	writeError(c, err)
}

func writeError(c *gin.Context, err error) {
	appErr := toAppError(err)

	log := logger.Get()
	switch {
	case appErr.Code == apperrors.ErrInternalServer.Code:
		log.Errorw("request failed",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"request_id", c.GetString(requestIDKey),
			"error", err.Error(),
		)
	case appErr.Internal != nil:
		log.Warnw("request rejected",
			"code", appErr.Code,
			"path", c.Request.URL.Path,
			"internal", appErr.Internal.Error(),
		)
	}

	c.JSON(appErr.StatusCode, gin.H{
		"error": gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		},
	})
}

// toAppError maps err onto the client-facing error. Internal details never
// reach the response body.
func toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.ErrInternalServer
}
