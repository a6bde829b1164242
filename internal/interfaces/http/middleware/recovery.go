// Package middleware 提供 HTTP 中间件
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"flashflow-studio/internal/interfaces/http/dto"
	apperrors "flashflow-studio/pkg/errors"
	"flashflow-studio/pkg/logger"
)

// Recovery 捕获 panic，返回统一的 500 响应
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered", fmt.Errorf("%v", rec),
				"stack", string(debug.Stack()),
				"route", c.FullPath(),
				"method", c.Request.Method,
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			dto.AppError(c, apperrors.New(apperrors.CodeInternalError, "internal server error"))
			c.Abort()
		}()
		c.Next()
	}
}
