// Package capability 提供生成能力端口的适配实现
package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"flashflow-studio/internal/config"
	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/service"
	wfmodel "flashflow-studio/internal/workflow/model"
	"flashflow-studio/pkg/logger"
)

var tracer = otel.Tracer("capability")

const (
	defaultHTTPTimeout = 120 * time.Second
	maxErrorBodyBytes  = 512
)

// 上游路径
const (
	pathGenerate = "/v1/generate"
	pathRefine   = "/v1/refine"
	pathScore    = "/v1/score"
	pathImprove  = "/v1/improve-section"
)

// HTTPClient 通过 HTTP JSON 调用外部生成服务
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ service.GenerationCapability = (*HTTPClient)(nil)

// Option 定制客户端
type Option func(*HTTPClient)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewHTTPClient 创建 HTTP 生成能力客户端
func NewHTTPClient(cfg *config.CapabilityConfig, opts ...Option) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	c := &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *envelopeError  `json:"error"`
}

type envelopeError struct {
	Kind       string  `json:"kind"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
}

// usageEnvelope 上游可选附带的用量信息
type usageEnvelope struct {
	Usage *struct {
		Provider         string `json:"provider"`
		Model            string `json:"model"`
		PromptTokens     int    `json:"prompt_tokens"`
		CompletionTokens int    `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate 生成变体集合
func (c *HTTPClient) Generate(ctx context.Context, req *entity.GenerationRequest) (*service.GenerateResult, error) {
	data, err := c.call(ctx, "Generate", pathGenerate, req)
	if err != nil {
		return nil, err
	}

	var out wfmodel.GenerateOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, malformed("generate", err)
	}
	set, single := out.ToVariationSet()
	if set == nil && single == nil {
		return nil, &service.CapabilityError{Kind: service.KindGenerationFailure, Message: "generate response has no variations"}
	}

	return &service.GenerateResult{Set: set, Single: single, Usage: decodeUsage(data)}, nil
}

func decodeUsage(data []byte) *service.CallUsage {
	var ue usageEnvelope
	if json.Unmarshal(data, &ue) != nil || ue.Usage == nil {
		return nil
	}
	return &service.CallUsage{
		Provider:         ue.Usage.Provider,
		Model:            ue.Usage.Model,
		PromptTokens:     ue.Usage.PromptTokens,
		CompletionTokens: ue.Usage.CompletionTokens,
	}
}

// Refine 按指令改写单个候选
func (c *HTTPClient) Refine(ctx context.Context, cand *entity.Candidate, instruction string, target entity.TargetContext) (*service.RefineResult, error) {
	data, err := c.call(ctx, "Refine", pathRefine, wfmodel.RefineRequest{
		Script:      wfmodel.ScriptFromEntity(cand),
		Instruction: instruction,
		Target:      target,
	})
	if err != nil {
		return nil, err
	}

	var out wfmodel.RefineOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, malformed("refine", err)
	}
	if out.Script == nil {
		// 兼容直接返回脚本本体
		var direct wfmodel.ScriptDTO
		if err := json.Unmarshal(data, &direct); err != nil || direct.Hook == "" {
			return nil, &service.CapabilityError{Kind: service.KindGenerationFailure, Message: "refine response has no script"}
		}
		out.Script = &direct
	}
	return &service.RefineResult{Candidate: out.Script.ToEntity(), Usage: decodeUsage(data)}, nil
}

// Score 评分
func (c *HTTPClient) Score(ctx context.Context, cand *entity.Candidate, target entity.TargetContext) (*entity.Score, error) {
	data, err := c.call(ctx, "Score", pathScore, wfmodel.ScoreRequest{
		Script: wfmodel.ScriptFromEntity(cand),
		Target: target,
	})
	if err != nil {
		return nil, err
	}

	var out wfmodel.ScoreDTO
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, malformed("score", err)
	}
	return out.ToEntity(), nil
}

// ImproveSection 局部改写
func (c *HTTPClient) ImproveSection(ctx context.Context, in service.SectionImproveInput) (*service.SectionImproveResult, error) {
	req := wfmodel.ImproveRequest{
		Section: string(in.Kind),
		Text:    in.Text,
		Hook:    in.Hook,
		Target:  in.Context,
	}
	if in.Beat != nil {
		b := wfmodel.BeatFromEntity(*in.Beat)
		req.Beat = &b
	}
	data, err := c.call(ctx, "ImproveSection", pathImprove, req)
	if err != nil {
		return nil, err
	}

	var out wfmodel.ImproveOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, malformed("improve_section", err)
	}
	return improveResult(in.Kind, &out)
}

func improveResult(kind service.SectionKind, out *wfmodel.ImproveOutput) (*service.SectionImproveResult, error) {
	if kind == service.SectionBeat {
		if out.Beat == nil || strings.TrimSpace(out.Beat.Action) == "" {
			return nil, &service.CapabilityError{Kind: service.KindGenerationFailure, Message: "improve response has no beat"}
		}
		b := out.Beat.ToEntity()
		return &service.SectionImproveResult{Beat: &b}, nil
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return nil, &service.CapabilityError{Kind: service.KindGenerationFailure, Message: "improve response has no text"}
	}
	return &service.SectionImproveResult{Text: text}, nil
}

// call 发送请求并拆开信封，返回 data 部分
func (c *HTTPClient) call(ctx context.Context, op, path string, payload any) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "capability.HTTPClient."+op)
	defer span.End()
	span.SetAttributes(attribute.String("capability.path", path))

	data, err := c.do(ctx, path, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ce, ok := service.AsCapabilityError(err); ok {
			span.SetAttributes(attribute.String("capability.error_kind", string(ce.Kind)))
			logger.Warn(ctx, "capability call failed",
				"operation", op,
				"kind", string(ce.Kind),
				"message", ce.Message,
			)
		}
		return nil, err
	}
	return data, nil
}

func (c *HTTPClient) do(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, &service.CapabilityError{Kind: service.KindInternal, Message: "capability base url not configured"}
	}
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, &service.CapabilityError{Kind: service.KindInternal, Message: "build url", Err: err}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &service.CapabilityError{Kind: service.KindValidation, Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &service.CapabilityError{Kind: service.KindInternal, Message: "new request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &service.CapabilityError{Kind: service.KindNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &service.CapabilityError{Kind: service.KindNetwork, Message: "read response", Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, statusError(resp, raw, &env, decodeErr == nil)
	}
	if decodeErr != nil {
		return nil, malformed("envelope", decodeErr)
	}
	if env.Error != nil || !env.OK {
		return nil, envelopeToError(env.Error, 0)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &service.CapabilityError{Kind: service.KindGenerationFailure, Message: "empty response data"}
	}
	return env.Data, nil
}

// statusError 优先使用信封里的错误，否则按状态码归类
func statusError(resp *http.Response, raw []byte, env *envelope, decoded bool) error {
	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
	if decoded && env.Error != nil && env.Error.Kind != "" {
		return envelopeToError(env.Error, retryAfter)
	}

	msg := strings.TrimSpace(string(raw))
	if decoded && env.Error != nil && env.Error.Message != "" {
		msg = env.Error.Message
	}
	if len(msg) > maxErrorBodyBytes {
		msg = msg[:maxErrorBodyBytes]
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &service.CapabilityError{
		Kind:       KindForStatus(resp.StatusCode),
		Message:    msg,
		RetryAfter: retryAfter,
	}
}

// KindForStatus 状态码到错误类别的兜底映射
func KindForStatus(status int) service.ErrorKind {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return service.KindValidation
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return service.KindUnauthorized
	case status == http.StatusPaymentRequired:
		return service.KindQuotaExceeded
	case status == http.StatusTooManyRequests:
		return service.KindRateLimited
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return service.KindNetwork
	case status >= http.StatusInternalServerError:
		return service.KindInternal
	default:
		return service.KindInternal
	}
}

func envelopeToError(e *envelopeError, headerRetry time.Duration) error {
	if e == nil {
		return &service.CapabilityError{Kind: service.KindInternal, Message: "capability reported failure without error"}
	}
	retry := headerRetry
	if e.RetryAfter > 0 {
		retry = time.Duration(e.RetryAfter * float64(time.Second))
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = e.Kind
	}
	return &service.CapabilityError{
		Kind:       service.ParseErrorKind(e.Kind),
		Message:    msg,
		RetryAfter: retry,
	}
}

func malformed(what string, err error) error {
	return &service.CapabilityError{
		Kind:    service.KindGenerationFailure,
		Message: fmt.Sprintf("malformed %s response", what),
		Err:     err,
	}
}

// parseRetryAfter 支持秒数和 HTTP 日期两种格式
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
