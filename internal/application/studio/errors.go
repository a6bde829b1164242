// Package studio 实现创意生成会话：配额守卫、请求组装、生成调度、变体选择、版本历史、编辑覆盖层与成品生命周期
package studio

import (
	"errors"
	"fmt"
	"time"

	"flashflow-studio/internal/domain/service"
	apperrors "flashflow-studio/pkg/errors"
)

var (
	// ErrGenerationInFlight 同一会话已有生成/精修/追加请求在进行
	ErrGenerationInFlight = errors.New("generation already in flight")
	// ErrNothingToRetry 没有可重放的失败请求
	ErrNothingToRetry = errors.New("nothing to retry")
	// ErrRetryUnavailable 上次失败不允许重放（需重新登录或修改参数）
	ErrRetryUnavailable = errors.New("retry unavailable for last failure")
	// ErrStaleResult 异步结果返回时内容已被修改，结果被丢弃
	ErrStaleResult = errors.New("content changed while request was in flight")
	// ErrSessionNotFound 会话不存在或不属于当前用户
	ErrSessionNotFound = errors.New("studio session not found")
	// ErrCreativeNotFound 成品不存在或不属于当前用户
	ErrCreativeNotFound = errors.New("creative not found")
)

// ValidationError 本地同步校验失败，不会发往生成能力
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DenialReason 配额守卫拒绝原因
type DenialReason string

const (
	DenialNoCredits   DenialReason = "no_credits"
	DenialRateLimited DenialReason = "rate_limited"
)

// UpgradeHint 额度耗尽时给调用方的升级指引
const UpgradeHint = "generation credits exhausted; upgrade your plan to continue"

// QuotaDeniedError 本地配额守卫拒绝
type QuotaDeniedError struct {
	Reason     DenialReason
	RetryAfter time.Duration
}

func (e *QuotaDeniedError) Error() string {
	if e.Reason == DenialRateLimited {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
	}
	return UpgradeHint
}

// DispatchError 调用生成能力失败
type DispatchError struct {
	Kind       service.ErrorKind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %s", e.Kind, e.Message)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Retryable 是否允许显式重放
func (e *DispatchError) Retryable() bool {
	switch e.Kind {
	case service.KindUnauthorized, service.KindValidation:
		return false
	default:
		return true
	}
}

// Transient 是否为瞬时故障
func (e *DispatchError) Transient() bool {
	switch e.Kind {
	case service.KindNetwork, service.KindGenerationFailure, service.KindInternal:
		return true
	default:
		return false
	}
}

// ToAppError 将会话错误映射为统一应用错误
func ToAppError(err error) *apperrors.AppError {
	var (
		valErr      *ValidationError
		quotaErr    *QuotaDeniedError
		dispatchErr *DispatchError
	)
	switch {
	case errors.As(err, &valErr):
		return apperrors.ErrValidationFailed.WithDetail(valErr.Error())
	case errors.As(err, &quotaErr):
		if quotaErr.Reason == DenialRateLimited {
			return apperrors.ErrRateLimited.WithRetryAfter(ceilSeconds(quotaErr.RetryAfter)).WithDetail(quotaErr.Error())
		}
		return apperrors.ErrQuotaExceeded.WithDetail(UpgradeHint)
	case errors.As(err, &dispatchErr):
		return dispatchToAppError(dispatchErr)
	case errors.Is(err, ErrGenerationInFlight):
		return apperrors.ErrGenerationInFlight
	case errors.Is(err, ErrNothingToRetry), errors.Is(err, ErrRetryUnavailable):
		return apperrors.ErrNothingToRetry.WithDetail(err.Error())
	case errors.Is(err, ErrStaleResult):
		return apperrors.ErrConflict.WithDetail(err.Error())
	case errors.Is(err, ErrSessionNotFound):
		return apperrors.ErrSessionNotFound
	case errors.Is(err, ErrCreativeNotFound):
		return apperrors.ErrCreativeNotFound
	default:
		return apperrors.AsAppError(err)
	}
}

func dispatchToAppError(e *DispatchError) *apperrors.AppError {
	switch e.Kind {
	case service.KindValidation:
		return apperrors.ErrValidationFailed.WithDetail(e.Message)
	case service.KindUnauthorized:
		return apperrors.ErrUnauthorized.WithDetail(e.Message)
	case service.KindRateLimited:
		return apperrors.ErrRateLimited.WithRetryAfter(ceilSeconds(e.RetryAfter)).WithDetail(e.Message)
	case service.KindQuotaExceeded:
		return apperrors.ErrQuotaExceeded.WithDetail(UpgradeHint)
	case service.KindNetwork:
		return apperrors.ErrNetwork.WithDetail(e.Message)
	case service.KindGenerationFailure:
		return apperrors.ErrGenerationFailed.WithDetail(e.Message)
	default:
		return apperrors.Wrap(e, apperrors.CodeCapabilityError, "generation service error").WithDetail(e.Message)
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
