package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"live-session/internal/service"
)

func ErrorResponse(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "error": message})
}

func SuccessResponse(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// bindError 是请求体或查询参数校验失败时的响应
func bindError(c *gin.Context, err error) {
	ErrorResponse(c, http.StatusBadRequest, service.ErrInvalidInput.Code, err.Error())
}
