package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"live-session/internal/service"
)

// StatusFor 把服务层错误的 Kind 映射为 HTTP 状态码。
func StatusFor(err error) int {
	e := service.AsError(err)
	switch e.Kind {
	case service.KindAuthorization:
		if e.Code == service.ErrForbidden.Code || e.Code == service.ErrRoomMismatch.Code {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case service.KindAdmission:
		return http.StatusTooManyRequests
	case service.KindPrecondition:
		return http.StatusPreconditionFailed
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HandleServiceError 按错误分类写出 {"code","error"} 响应。
func HandleServiceError(c *gin.Context, err error) {
	e := service.AsError(err)
	status := StatusFor(e)
	if status >= http.StatusInternalServerError {
		// Log the internal error for debugging
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Unhandled internal server error")
	}
	ErrorResponse(c, status, e.Code, e.Message)
}
