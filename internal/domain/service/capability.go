// Package service 定义跨层的领域服务契约
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flashflow-studio/internal/domain/entity"
)

// ErrorKind 生成能力返回的错误类别
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindRateLimited       ErrorKind = "rate_limited"
	KindQuotaExceeded     ErrorKind = "quota_exceeded"
	KindGenerationFailure ErrorKind = "generation_failure"
	KindNetwork           ErrorKind = "network"
	KindInternal          ErrorKind = "internal"
)

// ParseErrorKind 解析上游错误类别，未知值归为 internal
func ParseErrorKind(s string) ErrorKind {
	switch k := ErrorKind(s); k {
	case KindValidation, KindUnauthorized, KindRateLimited, KindQuotaExceeded,
		KindGenerationFailure, KindNetwork, KindInternal:
		return k
	default:
		return KindInternal
	}
}

// CapabilityError 生成能力的结构化错误
type CapabilityError struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *CapabilityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capability %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("capability %s: %s", e.Kind, e.Message)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// AsCapabilityError 提取 CapabilityError
func AsCapabilityError(err error) (*CapabilityError, bool) {
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// GenerateResult generate 的返回：多变体集合或旧版单结果
type GenerateResult struct {
	Set *entity.VariationSet
	// Single 旧版单结果格式，Set 为空时使用
	Single *entity.Candidate
	// Usage 上游报告的用量，可为空
	Usage *CallUsage
}

// RefineResult refine 的返回
type RefineResult struct {
	Candidate *entity.Candidate
	Usage     *CallUsage
}

// CallUsage 一次调用的用量
type CallUsage struct {
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// SectionKind 可单独改写的字段类别
type SectionKind string

const (
	SectionHook       SectionKind = "hook"
	SectionCTALine    SectionKind = "cta_line"
	SectionCTAOverlay SectionKind = "cta_overlay"
	SectionBeat       SectionKind = "beat"
	SectionBRoll      SectionKind = "b_roll"
	SectionOverlay    SectionKind = "overlay"
)

// Indexed 是否需要下标
func (k SectionKind) Indexed() bool {
	return k == SectionBeat || k == SectionBRoll || k == SectionOverlay
}

// Valid 是否为合法类别
func (k SectionKind) Valid() bool {
	switch k {
	case SectionHook, SectionCTALine, SectionCTAOverlay, SectionBeat, SectionBRoll, SectionOverlay:
		return true
	default:
		return false
	}
}

// SectionImproveInput improveSection 的输入
type SectionImproveInput struct {
	Kind SectionKind
	// Text 文本字段的当前值
	Text string
	// Beat 分镜的当前值，仅 Kind 为 beat 时使用
	Beat    *entity.Beat
	Context entity.TargetContext
	// Hook 供改写时参考的整体钩子
	Hook string
}

// SectionImproveResult improveSection 的返回：文本或结构化分镜
type SectionImproveResult struct {
	Text string
	Beat *entity.Beat
}

// GenerationCapability 外部生成与评分能力
type GenerationCapability interface {
	Generate(ctx context.Context, req *entity.GenerationRequest) (*GenerateResult, error)
	Refine(ctx context.Context, cand *entity.Candidate, instruction string, target entity.TargetContext) (*RefineResult, error)
	Score(ctx context.Context, cand *entity.Candidate, target entity.TargetContext) (*entity.Score, error)
	ImproveSection(ctx context.Context, in SectionImproveInput) (*SectionImproveResult, error)
}
