package studio

import (
	"errors"
	"time"

	"flashflow-studio/internal/domain/entity"
)

// VersionSummary 版本列表中的一项
type VersionSummary struct {
	Index       int         `json:"index"`
	Seq         int         `json:"seq"`
	Kind        VersionKind `json:"kind"`
	Instruction string      `json:"instruction,omitempty"`
	Variations  int         `json:"variations"`
	CreatedAt   time.Time   `json:"created_at"`
}

// SessionView 会话的只读快照
type SessionView struct {
	ID             string                  `json:"id"`
	Config         entity.GenerationConfig `json:"config"`
	Versions       []VersionSummary        `json:"versions"`
	CurrentVersion int                     `json:"current_version"`
	Variations     []*entity.Candidate     `json:"variations,omitempty"`
	Selected       int                     `json:"selected"`
	Active         *entity.Candidate       `json:"active,omitempty"`
	Edited         bool                    `json:"edited"`
	UndoDepth      int                     `json:"undo_depth"`
	AppliedRisk    entity.RiskTier         `json:"applied_risk_tier,omitempty"`
	RiskScore      float64                 `json:"risk_score"`
	RiskFlags      []string                `json:"risk_flags,omitempty"`
	Clamping       entity.ClampFlags       `json:"clamping"`
	Legacy         bool                    `json:"legacy,omitempty"`
	Quota          QuotaStatus             `json:"quota"`
	Generating     bool                    `json:"generating"`
	LastError      string                  `json:"last_error,omitempty"`
	CanRetry       bool                    `json:"can_retry"`
}

// Snapshot 返回会话当前状态；选中变体有编辑时展示编辑后的内容
func (s *Session) Snapshot() *SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := &SessionView{
		ID:             s.ID,
		Config:         s.config,
		CurrentVersion: s.history.CurrentIndex(),
		Selected:       -1,
		Quota:          s.guard.Status(),
		Generating:     s.inFlight,
		CanRetry:       s.replay != nil,
	}
	if s.lastErr != nil {
		v.LastError = s.lastErr.Error()
	}
	for i, e := range s.history.Entries() {
		v.Versions = append(v.Versions, VersionSummary{
			Index:       i,
			Seq:         e.Seq,
			Kind:        e.Kind,
			Instruction: e.Instruction,
			Variations:  e.Set.Len(),
			CreatedAt:   e.CreatedAt,
		})
	}

	cur := s.history.Current()
	if cur == nil {
		return v
	}
	key := s.keyLocked(cur)
	set := cur.Set.Clone()
	if o, ok := s.overlays[key]; ok {
		set.Candidates[key.variation] = o.Content()
		v.Edited = o.Edited()
		v.UndoDepth = o.UndoLen()
	}
	v.Variations = set.Candidates
	v.Selected = key.variation
	v.Active = set.At(key.variation)
	v.AppliedRisk = set.AppliedRiskTier
	v.RiskScore = set.RiskScore
	v.RiskFlags = set.RiskFlags
	v.Clamping = set.Clamping
	v.Legacy = set.Legacy
	return v
}

// IsQuotaDenied 是否为本地配额守卫拒绝
func IsQuotaDenied(err error) bool {
	var qe *QuotaDeniedError
	return errors.As(err, &qe)
}
