package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/service"
	"flashflow-studio/pkg/logger"
	"flashflow-studio/pkg/metrics"
)

const (
	opGenerate = "generate"
	opRefine   = "refine"
	opExpand   = "expand"
	opScore    = "score"
	opImprove  = "improve_section"
)

// 预置精修指令
const (
	InstructionPunchUpHook  = "punch up the hook"
	InstructionAddTwist     = "add a plot twist"
	InstructionMakeFunnier  = "make funnier"
	InstructionProductFocus = "increase product focus"
)

var cannedInstructions = map[string]string{
	"punch_up_hook":      InstructionPunchUpHook,
	"add_twist":          InstructionAddTwist,
	"make_funnier":       InstructionMakeFunnier,
	"more_product_focus": InstructionProductFocus,
}

// CannedInstructions 预置指令键到指令文本
func CannedInstructions() map[string]string {
	out := make(map[string]string, len(cannedInstructions))
	for k, v := range cannedInstructions {
		out[k] = v
	}
	return out
}

// ResolveInstruction 预置指令键映射为文本，其他输入原样（去首尾空白）返回
func ResolveInstruction(s string) string {
	s = strings.TrimSpace(s)
	if text, ok := cannedInstructions[s]; ok {
		return text
	}
	return s
}

// Dispatcher 调用生成能力并对结果与错误做归类。
// 不做自动重试，只保存最近一次生成请求供调用方显式重放。
type Dispatcher struct {
	capability service.GenerationCapability
	guard      *QuotaGuard
	usage      service.UsageRecorder

	userID      string
	sessionID   string
	beatSeconds int

	mu          sync.Mutex
	lastRequest *entity.GenerationRequest

	now func() time.Time
}

// DispatcherOptions 调度器选项
type DispatcherOptions struct {
	UserID      string
	SessionID   string
	BeatSeconds int
	Usage       service.UsageRecorder
}

// NewDispatcher 创建调度器
func NewDispatcher(capability service.GenerationCapability, guard *QuotaGuard, opts DispatcherOptions) *Dispatcher {
	if opts.BeatSeconds <= 0 {
		opts.BeatSeconds = entity.DefaultBeatSeconds
	}
	return &Dispatcher{
		capability:  capability,
		guard:       guard,
		usage:       opts.Usage,
		userID:      opts.UserID,
		sessionID:   opts.SessionID,
		beatSeconds: opts.BeatSeconds,
		now:         time.Now,
	}
}

// LastRequest 返回最近一次发出的生成请求副本
func (d *Dispatcher) LastRequest() *entity.GenerationRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastRequest.Clone()
}

// Dispatch 发起生成，返回按分数排序的变体集合
func (d *Dispatcher) Dispatch(ctx context.Context, req *entity.GenerationRequest) (*entity.VariationSet, error) {
	return d.generate(ctx, opGenerate, req)
}

func (d *Dispatcher) generate(ctx context.Context, op string, req *entity.GenerationRequest) (*entity.VariationSet, error) {
	if err := d.guard.CheckAndReserve().Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.lastRequest = req.Clone()
	d.mu.Unlock()

	start := d.now()
	res, err := d.capability.Generate(ctx, req)
	if err != nil {
		return nil, d.fail(ctx, op, start, err)
	}
	set, err := d.normalizeResult(res, req)
	if err != nil {
		return nil, d.fail(ctx, op, start, err)
	}

	d.succeed(ctx, op, start, set.Len(), res.Usage)
	metrics.StudioVariationsGenerated.Observe(float64(set.Len()))
	return set, nil
}

// normalizeResult 把多变体或旧版单结果统一为 VariationSet
func (d *Dispatcher) normalizeResult(res *service.GenerateResult, req *entity.GenerationRequest) (*entity.VariationSet, error) {
	var set *entity.VariationSet
	switch {
	case res != nil && res.Set != nil && res.Set.Len() > 0:
		set = res.Set.Clone()
		set.Legacy = false
		if set.Len() < req.VariationCount {
			return nil, &service.CapabilityError{
				Kind:    service.KindGenerationFailure,
				Message: fmt.Sprintf("expected %d variations, got %d", req.VariationCount, set.Len()),
			}
		}
	case res != nil && res.Single != nil:
		set = &entity.VariationSet{Candidates: []*entity.Candidate{res.Single.Clone()}, Legacy: true}
	default:
		return nil, &service.CapabilityError{Kind: service.KindGenerationFailure, Message: "empty generation result"}
	}

	for i, c := range set.Candidates {
		if err := c.Validate(); err != nil {
			return nil, &service.CapabilityError{
				Kind:    service.KindGenerationFailure,
				Message: fmt.Sprintf("variation %d: %v", i, err),
			}
		}
		d.ensureTiming(c)
	}
	set.SortBestFirst()
	if !set.Legacy && set.Len() > req.VariationCount {
		set.Candidates = set.Candidates[:req.VariationCount]
	}
	if !set.AppliedRiskTier.Valid() {
		set.AppliedRiskTier, _ = RiskTierFromLevel(req.RiskLevel)
	}
	set.Clamping = set.Clamping.Merge(entity.ClampFlags{PresetRangeClamped: req.PresetRangeClamped})
	return set, nil
}

// ensureTiming 上游时间轴不连续时按固定节奏重排
func (d *Dispatcher) ensureTiming(c *entity.Candidate) {
	next := 0
	for _, b := range c.Beats {
		if b.Span.Start != next || b.Span.End <= b.Span.Start {
			c.Retime(d.beatSeconds)
			return
		}
		next = b.Span.End
	}
}

// Refine 按指令精修当前候选，返回一个新候选
func (d *Dispatcher) Refine(ctx context.Context, cand *entity.Candidate, instruction string, target entity.TargetContext) (*entity.Candidate, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, invalid("instruction", "must not be empty")
	}
	if cand == nil {
		return nil, invalid("candidate", "nothing to refine")
	}
	if err := d.guard.CheckAndReserve().Err(); err != nil {
		return nil, err
	}

	start := d.now()
	res, err := d.capability.Refine(ctx, cand.Clone(), instruction, target)
	if err == nil {
		switch {
		case res == nil || res.Candidate == nil:
			err = &service.CapabilityError{Kind: service.KindGenerationFailure, Message: "empty refine result"}
		default:
			if verr := res.Candidate.Validate(); verr != nil {
				err = &service.CapabilityError{Kind: service.KindGenerationFailure, Message: verr.Error()}
			}
		}
	}
	if err != nil {
		return nil, d.fail(ctx, opRefine, start, err)
	}
	out := res.Candidate.Clone()
	d.ensureTiming(out)
	d.succeed(ctx, opRefine, start, 1, res.Usage)
	return out, nil
}

// Expand 以相同参数追加生成 count 个变体
func (d *Dispatcher) Expand(ctx context.Context, req *entity.GenerationRequest) (*entity.VariationSet, error) {
	return d.generate(ctx, opExpand, req)
}

// Score 对内容重新评分；不消耗生成额度，但受限流冷却约束
func (d *Dispatcher) Score(ctx context.Context, cand *entity.Candidate, target entity.TargetContext) (*entity.Score, error) {
	if cand == nil {
		return nil, invalid("candidate", "nothing to score")
	}
	if err := d.guard.CheckCooldown().Err(); err != nil {
		return nil, err
	}
	start := d.now()
	score, err := d.capability.Score(ctx, cand.Clone(), target)
	if err == nil && score == nil {
		err = &service.CapabilityError{Kind: service.KindGenerationFailure, Message: "empty score"}
	}
	if err != nil {
		return nil, d.failUnreserved(ctx, opScore, start, err)
	}
	n := score.Normalize()
	d.observe(opScore, "ok", start)
	return &n, nil
}

// ImproveSection 单独改写一个字段或一个分镜
func (d *Dispatcher) ImproveSection(ctx context.Context, in service.SectionImproveInput) (*service.SectionImproveResult, error) {
	if !in.Kind.Valid() {
		return nil, invalid("section", "unknown section %q", in.Kind)
	}
	if in.Kind == service.SectionBeat && in.Beat == nil {
		return nil, invalid("beat", "beat content required")
	}
	if err := d.guard.CheckCooldown().Err(); err != nil {
		return nil, err
	}
	start := d.now()
	out, err := d.capability.ImproveSection(ctx, in)
	if err == nil {
		switch {
		case out == nil:
			err = &service.CapabilityError{Kind: service.KindGenerationFailure, Message: "empty section result"}
		case in.Kind == service.SectionBeat && out.Beat == nil:
			err = &service.CapabilityError{Kind: service.KindGenerationFailure, Message: "expected a beat"}
		case in.Kind != service.SectionBeat && strings.TrimSpace(out.Text) == "":
			err = &service.CapabilityError{Kind: service.KindGenerationFailure, Message: "expected text"}
		}
	}
	if err != nil {
		return nil, d.failUnreserved(ctx, opImprove, start, err)
	}
	d.observe(opImprove, "ok", start)
	return out, nil
}

// succeed 先记账再刷新余额，刷新读到的必须是扣减之后的值
func (d *Dispatcher) succeed(ctx context.Context, op string, start time.Time, variations int, usage *service.CallUsage) {
	d.observe(op, "ok", start)
	defer d.guard.RefreshAsync(ctx)
	if d.usage == nil {
		return
	}
	in := service.UsageInput{
		UserID:     d.userID,
		SessionID:  d.sessionID,
		Operation:  op,
		Credits:    1,
		Variations: variations,
		DurationMs: int(d.now().Sub(start).Milliseconds()),
	}
	if usage != nil {
		in.Provider = usage.Provider
		in.Model = usage.Model
		in.PromptTokens = usage.PromptTokens
		in.CompletionTokens = usage.CompletionTokens
	}
	if err := d.usage.Record(ctx, in); err != nil {
		logger.Warn(ctx, "failed to record generation usage", "operation", op, "error", err.Error())
	}
}

// fail 归类已预扣额度的调用失败
func (d *Dispatcher) fail(ctx context.Context, op string, start time.Time, err error) error {
	de := d.classify(err)
	switch de.Kind {
	case service.KindQuotaExceeded:
		d.guard.NoteQuotaExceeded()
		d.guard.RefreshAsync(ctx)
	default:
		d.guard.Release()
	}
	return d.finishFailure(ctx, op, start, de)
}

// failUnreserved 归类未预扣额度的调用失败
func (d *Dispatcher) failUnreserved(ctx context.Context, op string, start time.Time, err error) error {
	de := d.classify(err)
	if de.Kind == service.KindQuotaExceeded {
		d.guard.NoteQuotaExceeded()
		d.guard.RefreshAsync(ctx)
	}
	return d.finishFailure(ctx, op, start, de)
}

func (d *Dispatcher) finishFailure(ctx context.Context, op string, start time.Time, de *DispatchError) error {
	if de.Kind == service.KindRateLimited {
		de.RetryAfter = d.guard.NoteRateLimited(de.RetryAfter)
	}
	d.observe(op, string(de.Kind), start)
	logger.Warn(ctx, "capability call failed",
		"operation", op,
		"kind", string(de.Kind),
		"retry_after", de.RetryAfter.String(),
		"error", de.Error(),
	)
	return de
}

// classify 把任意错误映射为 DispatchError
func (d *Dispatcher) classify(err error) *DispatchError {
	if ce, ok := service.AsCapabilityError(err); ok {
		return &DispatchError{Kind: ce.Kind, Message: ce.Message, RetryAfter: ce.RetryAfter, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &DispatchError{Kind: service.KindNetwork, Message: "request interrupted", Err: err}
	}
	return &DispatchError{Kind: service.KindInternal, Message: err.Error(), Err: err}
}

func (d *Dispatcher) observe(op, status string, start time.Time) {
	metrics.StudioDispatchTotal.WithLabelValues(op, status).Inc()
	metrics.StudioDispatchDuration.WithLabelValues(op).Observe(d.now().Sub(start).Seconds())
}
