package studio

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/repository"
	"flashflow-studio/pkg/logger"
	"flashflow-studio/pkg/metrics"
)

// ProductionHandoff 审核通过后创建制作任务，对同一成品幂等。
// Settle 在成品产出或归档时结束对应任务。
type ProductionHandoff interface {
	CreateFromEntity(ctx context.Context, creativeID string) (string, error)
	Settle(ctx context.Context, jobID string, outcome entity.ProductionJobStatus) error
}

// Lifecycle 成品状态机
type Lifecycle struct {
	repo    repository.CreativeRepository
	handoff ProductionHandoff
	newID   func() string
}

// NewLifecycle 创建成品状态机
func NewLifecycle(repo repository.CreativeRepository, handoff ProductionHandoff) *Lifecycle {
	return &Lifecycle{
		repo:    repo,
		handoff: handoff,
		newID:   uuid.NewString,
	}
}

// DraftInput 保存草稿的内容
type DraftInput struct {
	OwnerID   string
	Title     string
	Candidate *entity.Candidate
	Config    entity.GenerationConfig
	// EditPatch 手工编辑相对生成结果的 JSON merge patch
	EditPatch json.RawMessage
	RiskFlags []string
}

// CreateDraft 首次保存，状态为 draft
func (l *Lifecycle) CreateDraft(ctx context.Context, in DraftInput) (*entity.SavedCreative, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title", "must not be empty")
	}
	if err := in.Candidate.Validate(); err != nil {
		return nil, invalid("candidate", "%v", err)
	}
	creative, err := entity.NewSavedCreative(l.newID(), in.OwnerID, title, in.Candidate, in.Config)
	if err != nil {
		return nil, err
	}
	if len(in.EditPatch) > 0 {
		creative.EditPatch = datatypes.JSON(in.EditPatch)
	}
	creative.RiskFlags = append(creative.RiskFlags, in.RiskFlags...)

	if err := l.repo.Create(ctx, creative); err != nil {
		return nil, fmt.Errorf("failed to save creative: %w", err)
	}
	logger.Info(ctx, "creative saved", "creative_id", creative.ID, "status", string(creative.Status))
	return creative, nil
}

// Get 获取用户自己的成品
func (l *Lifecycle) Get(ctx context.Context, ownerID, id string) (*entity.SavedCreative, error) {
	creative, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if creative == nil || creative.OwnerID != ownerID {
		return nil, ErrCreativeNotFound
	}
	return creative, nil
}

// List 分页列出用户的成品
func (l *Lifecycle) List(ctx context.Context, ownerID string, filter *repository.CreativeFilter, p repository.Pagination) (*repository.PagedResult[*entity.SavedCreative], error) {
	return l.repo.ListByOwner(ctx, ownerID, filter, p)
}

// Transition 切换状态。只能前进（可跳级），任意状态可归档，归档后可去往任意状态。
// 进入 approved 且尚无制作任务时创建一次交接。进入 produced 或 posted 时任务记为交付，
// 进入 archived 时任务取消。
func (l *Lifecycle) Transition(ctx context.Context, ownerID, id string, next entity.CreativeStatus) (*entity.SavedCreative, error) {
	creative, err := l.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	from := creative.Status
	if !from.CanTransitionTo(next) {
		return nil, invalid("status", "cannot move from %s to %s", from, next)
	}

	handedOff := false
	if next == entity.CreativeStatusApproved && !creative.HasHandoff() {
		jobID, err := l.handoff.CreateFromEntity(ctx, creative.ID)
		if err != nil {
			metrics.ProductionHandoffsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("failed to create production handoff: %w", err)
		}
		creative.ProductionJobID = &jobID
		handedOff = true
		metrics.ProductionHandoffsTotal.WithLabelValues("created").Inc()
	}
	if from == next && !handedOff {
		return creative, nil
	}

	if outcome, ok := jobOutcome(next); ok && from != next && creative.HasHandoff() {
		if err := l.handoff.Settle(ctx, *creative.ProductionJobID, outcome); err != nil {
			return nil, fmt.Errorf("failed to settle production job: %w", err)
		}
	}

	creative.Status = next
	if err := l.repo.Upsert(ctx, creative); err != nil {
		return nil, fmt.Errorf("failed to persist creative status: %w", err)
	}
	if from != next {
		metrics.CreativeTransitionsTotal.WithLabelValues(string(from), string(next)).Inc()
		logger.Info(ctx, "creative status changed", "creative_id", id, "from", string(from), "to", string(next))
	}
	return creative, nil
}

func jobOutcome(status entity.CreativeStatus) (entity.ProductionJobStatus, bool) {
	switch status {
	case entity.CreativeStatusProduced, entity.CreativeStatusPosted:
		return entity.ProductionJobDelivered, true
	case entity.CreativeStatusArchived:
		return entity.ProductionJobCancelled, true
	}
	return "", false
}

// Rate 写入用户评分与反馈
func (l *Lifecycle) Rate(ctx context.Context, ownerID, id string, rating int, feedback string) (*entity.SavedCreative, error) {
	creative, err := l.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := creative.SetRating(rating, strings.TrimSpace(feedback)); err != nil {
		return nil, invalid("rating", "%v", err)
	}
	if err := l.repo.Upsert(ctx, creative); err != nil {
		return nil, fmt.Errorf("failed to persist rating: %w", err)
	}
	return creative, nil
}
