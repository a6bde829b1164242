package node

import (
	"context"
	"errors"
	"strings"

	"flashflow-studio/internal/domain/service"
)

// IsResponseFormatUnsupportedError 判断服务端是否不支持 response_format
func IsResponseFormatUnsupportedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "response_format"):
		return true
	case strings.Contains(msg, "json_schema"):
		return true
	case strings.Contains(msg, "unknown parameter") && strings.Contains(msg, "response"):
		return true
	case strings.Contains(msg, "invalid") && strings.Contains(msg, "response"):
		return true
	case strings.Contains(msg, "response_schema"):
		return true
	case strings.Contains(msg, "failed to parse"):
		return true
	default:
		return false
	}
}

// ClassifyLLMError 将模型调用错误按报错文本归类
func ClassifyLLMError(err error) service.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return service.KindNetwork
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient_quota") || strings.Contains(msg, "insufficient quota"):
		return service.KindQuotaExceeded
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit"):
		return service.KindRateLimited
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "invalid api key") || strings.Contains(msg, "unauthorized"):
		return service.KindUnauthorized
	case strings.Contains(msg, "400") || strings.Contains(msg, "context_length_exceeded") || strings.Contains(msg, "invalid_request"):
		return service.KindValidation
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "504"):
		return service.KindNetwork
	default:
		return service.KindGenerationFailure
	}
}
