package service

import (
	"context"
	"strings"
	"sync"
)

type llmCtxKey string

const (
	llmCtxKeyOperation llmCtxKey = "llm_operation"
	llmCtxKeyProvider  llmCtxKey = "llm_provider"
	llmCtxKeyUsage     llmCtxKey = "llm_usage"
)

func WithOperation(ctx context.Context, operation string) context.Context {
	if ctx == nil {
		return nil
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyOperation, op)
}

func WithProvider(ctx context.Context, provider string) context.Context {
	if ctx == nil {
		return nil
	}
	p := strings.TrimSpace(provider)
	if p == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyProvider, p)
}

func WithOperationProvider(ctx context.Context, operation, provider string) context.Context {
	return WithProvider(WithOperation(ctx, operation), provider)
}

func OperationFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyOperation)
}

func ProviderFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyProvider)
}

func stringFromContext(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return "unknown"
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return strings.TrimSpace(s)
}

// UsageSink 收集一次能力调用内所有模型调用的 token 用量
type UsageSink struct {
	mu               sync.Mutex
	model            string
	promptTokens     int
	completionTokens int
}

// Add 累加一次模型调用的用量
func (s *UsageSink) Add(model string, prompt, completion int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if model != "" {
		s.model = model
	}
	s.promptTokens += prompt
	s.completionTokens += completion
}

// Usage 转为 CallUsage
func (s *UsageSink) Usage(provider string) *CallUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &CallUsage{
		Provider:         provider,
		Model:            s.model,
		PromptTokens:     s.promptTokens,
		CompletionTokens: s.completionTokens,
	}
}

// WithUsageSink 在 ctx 上挂载用量收集器
func WithUsageSink(ctx context.Context) (context.Context, *UsageSink) {
	sink := &UsageSink{}
	return context.WithValue(ctx, llmCtxKeyUsage, sink), sink
}

// UsageSinkFromContext 取出用量收集器，没有时返回 nil
func UsageSinkFromContext(ctx context.Context) *UsageSink {
	if ctx == nil {
		return nil
	}
	sink, _ := ctx.Value(llmCtxKeyUsage).(*UsageSink)
	return sink
}
