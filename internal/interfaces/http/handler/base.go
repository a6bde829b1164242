// Package handler 提供 HTTP 请求处理器
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flashflow-studio/internal/application/studio"
	"flashflow-studio/internal/interfaces/http/dto"
	"flashflow-studio/internal/interfaces/http/middleware"
	"flashflow-studio/pkg/logger"
)

// respondError 将业务错误映射为 HTTP 响应，5xx 记录错误日志
func respondError(c *gin.Context, op string, err error) {
	appErr := studio.ToAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), op+" failed", err)
	}
	dto.AppError(c, appErr)
}

// currentUser 当前请求的用户 ID
func currentUser(c *gin.Context) string {
	return middleware.GetUserIDFromGin(c)
}
