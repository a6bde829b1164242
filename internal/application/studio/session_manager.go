package studio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"flashflow-studio/internal/config"
	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/service"
	"flashflow-studio/pkg/logger"
	"flashflow-studio/pkg/metrics"
)

// DefaultSessionTTL 会话空闲多久后回收
const DefaultSessionTTL = 2 * time.Hour

// SessionManager 管理进程内的创作会话
type SessionManager struct {
	composer   *Composer
	capability service.GenerationCapability
	credits    service.CreditSource
	usage      service.UsageRecorder
	lifecycle  *Lifecycle
	opts       SessionOptions
	ttl        time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	newID func() string
	now   func() time.Time
}

// NewSessionManager 创建会话管理器
func NewSessionManager(
	cfg *config.Config,
	composer *Composer,
	capability service.GenerationCapability,
	credits service.CreditSource,
	usage service.UsageRecorder,
	lifecycle *Lifecycle,
) *SessionManager {
	ttl := cfg.Studio.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		composer:   composer,
		capability: capability,
		credits:    credits,
		usage:      usage,
		lifecycle:  lifecycle,
		opts: SessionOptions{
			UndoDepth:         cfg.Studio.UndoDepth,
			BeatSeconds:       cfg.Studio.BeatSeconds,
			MaxVariations:     cfg.Studio.MaxVariations,
			RateLimitCooldown: cfg.Studio.RateLimitCooldown,
		},
		ttl:      ttl,
		sessions: make(map[string]*Session),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Composer 请求组装器
func (m *SessionManager) Composer() *Composer { return m.composer }

// Create 校验参数并创建会话，随后异步拉取一次额度
func (m *SessionManager) Create(ctx context.Context, userID string, cfg entity.GenerationConfig) (*Session, error) {
	if err := m.composer.Validate(cfg); err != nil {
		return nil, err
	}
	s := m.open(ctx, userID, cfg)
	logger.Info(ctx, "studio session created", "session_id", s.ID)
	return s, nil
}

// CreateFromCreative 以已保存成品的参数和内容开一个新会话，成品内容作为第一个版本。
// 之后可以继续追加变体或精修，不影响原成品。
func (m *SessionManager) CreateFromCreative(ctx context.Context, userID, creativeID string) (*Session, error) {
	creative, err := m.lifecycle.Get(ctx, userID, creativeID)
	if err != nil {
		return nil, err
	}
	saved, err := creative.DecodeConfig()
	if err != nil {
		return nil, err
	}
	// 经过组装再还原，会话拿到的是实际生效的参数（预设范围已收紧）
	req, err := m.composer.Compose(*saved)
	if err != nil {
		return nil, err
	}
	cfg, err := Decompose(req)
	if err != nil {
		return nil, fmt.Errorf("failed to restore saved config: %w", err)
	}
	cand, err := creative.DecodeCandidate()
	if err != nil {
		return nil, err
	}
	if err := cand.Validate(); err != nil {
		return nil, invalid("candidate", "saved creative is not remixable: %v", err)
	}

	s := m.open(ctx, userID, cfg)
	s.seed(&entity.VariationSet{
		Candidates:      []*entity.Candidate{cand},
		AppliedRiskTier: cfg.RiskTier,
		RiskFlags:       append([]string(nil), creative.RiskFlags...),
	})
	logger.Info(ctx, "studio session remixed from creative", "session_id", s.ID, "creative_id", creative.ID)
	return s, nil
}

func (m *SessionManager) open(ctx context.Context, userID string, cfg entity.GenerationConfig) *Session {
	s := NewSession(m.newID(), userID, cfg, SessionDeps{
		Composer:   m.composer,
		Capability: m.capability,
		Credits:    m.credits,
		Usage:      m.usage,
		Lifecycle:  m.lifecycle,
		Options:    m.opts,
	})
	s.now = m.now
	s.lastUsed = m.now()

	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	s.guard.RefreshAsync(ctx)
	return s
}

// Get 获取用户自己的会话
func (m *SessionManager) Get(userID, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || s.UserID != userID {
		return nil, ErrSessionNotFound
	}
	s.touch()
	return s, nil
}

// Close 关闭会话，丢弃所有未保存的内容
func (m *SessionManager) Close(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	logger.Info(ctx, "studio session closed", "session_id", id)
	return nil
}

// Len 当前会话数
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Evict 回收空闲超过 TTL 的会话，返回回收数量
func (m *SessionManager) Evict(ctx context.Context) int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	evicted := 0
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	if evicted > 0 {
		logger.Info(ctx, "idle studio sessions evicted", "count", evicted)
	}
	return evicted
}

// Run 周期性回收空闲会话，直到 ctx 结束
func (m *SessionManager) Run(ctx context.Context) {
	interval := m.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evict(ctx)
		}
	}
}
