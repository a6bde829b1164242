package quota

import (
	"context"
	"errors"
	"fmt"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/service"
	"flashflow-studio/pkg/logger"
)

// CreditsPerCall 每次生成/精修消耗的额度
const CreditsPerCall = 1

// MeteredCapability 在进程内模型前做服务端额度校验
// 额度扣减由 UsageRecorder 在成功后完成，这里只拦截余额不足的请求
type MeteredCapability struct {
	next    service.GenerationCapability
	checker *CreditChecker
}

var _ service.GenerationCapability = (*MeteredCapability)(nil)

// NewMeteredCapability 包装生成能力
func NewMeteredCapability(next service.GenerationCapability, checker *CreditChecker) *MeteredCapability {
	return &MeteredCapability{next: next, checker: checker}
}

func (m *MeteredCapability) Generate(ctx context.Context, req *entity.GenerationRequest) (*service.GenerateResult, error) {
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	return m.next.Generate(ctx, req)
}

func (m *MeteredCapability) Refine(ctx context.Context, cand *entity.Candidate, instruction string, target entity.TargetContext) (*service.RefineResult, error) {
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	return m.next.Refine(ctx, cand, instruction, target)
}

// Score 评分不计费
func (m *MeteredCapability) Score(ctx context.Context, cand *entity.Candidate, target entity.TargetContext) (*entity.Score, error) {
	return m.next.Score(ctx, cand, target)
}

// ImproveSection 局部改写不计费
func (m *MeteredCapability) ImproveSection(ctx context.Context, in service.SectionImproveInput) (*service.SectionImproveResult, error) {
	return m.next.ImproveSection(ctx, in)
}

func (m *MeteredCapability) check(ctx context.Context) error {
	userID := UserIDFromContext(ctx)
	if userID == "" || m.checker == nil {
		return nil
	}
	_, err := m.checker.Check(ctx, userID, CreditsPerCall)
	if err == nil {
		return nil
	}
	var exhausted CreditsExhaustedError
	if errors.As(err, &exhausted) {
		return &service.CapabilityError{
			Kind:    service.KindQuotaExceeded,
			Message: fmt.Sprintf("no credits left (remaining %d)", exhausted.Remaining),
			Err:     err,
		}
	}
	// 余额读取失败不阻塞生成
	logger.Warn(ctx, "credit check failed, allowing call", "user_id", userID, "error", err.Error())
	return nil
}

// UserIDFromContext 取出鉴权中间件写入的用户 ID
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(logger.UserIDKey).(string)
	return s
}
