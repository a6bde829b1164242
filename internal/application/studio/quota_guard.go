package studio

import (
	"context"
	"sync"
	"time"

	"flashflow-studio/internal/domain/service"
	"flashflow-studio/pkg/logger"
	"flashflow-studio/pkg/metrics"
)

// DefaultRateLimitCooldown 上游限流未给出 retry-after 时的冷却时长
const DefaultRateLimitCooldown = 30 * time.Second

const refreshTimeout = 10 * time.Second

// Decision 配额检查结果
type Decision struct {
	Allowed    bool
	Reason     DenialReason
	RetryAfter time.Duration
}

// Err 拒绝时返回 *QuotaDeniedError
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &QuotaDeniedError{Reason: d.Reason, RetryAfter: d.RetryAfter}
}

// QuotaStatus 守卫当前状态快照
type QuotaStatus struct {
	Known             bool          `json:"known"`
	Remaining         int           `json:"remaining"`
	Unlimited         bool          `json:"unlimited"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
}

// QuotaGuard 本地配额守卫：记录剩余额度猜测和限流冷却截止时间。
// 只做建议性拦截，权威判断在生成能力一侧；服务端刷新结果总是覆盖本地猜测。
type QuotaGuard struct {
	mu            sync.Mutex
	known         bool
	remaining     int
	unlimited     bool
	cooldownUntil time.Time
	cooldown      time.Duration

	userID string
	source service.CreditSource
	now    func() time.Time
}

// NewQuotaGuard 创建配额守卫，source 为空时不做刷新
func NewQuotaGuard(userID string, source service.CreditSource, cooldown time.Duration) *QuotaGuard {
	if cooldown <= 0 {
		cooldown = DefaultRateLimitCooldown
	}
	return &QuotaGuard{
		userID:   userID,
		source:   source,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// CheckAndReserve 检查是否允许发起一次生成，允许时预扣一个本地额度
func (g *QuotaGuard) CheckAndReserve() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if d, ok := g.cooldownDecisionLocked(); ok {
		metrics.QuotaDenialsTotal.WithLabelValues(string(DenialRateLimited)).Inc()
		return d
	}
	if g.known && !g.unlimited {
		if g.remaining <= 0 {
			metrics.QuotaDenialsTotal.WithLabelValues(string(DenialNoCredits)).Inc()
			return Decision{Reason: DenialNoCredits}
		}
		g.remaining--
	}
	return Decision{Allowed: true}
}

// CheckCooldown 只检查限流冷却，不涉及额度（评分、局部改写使用）
func (g *QuotaGuard) CheckCooldown() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if d, ok := g.cooldownDecisionLocked(); ok {
		metrics.QuotaDenialsTotal.WithLabelValues(string(DenialRateLimited)).Inc()
		return d
	}
	return Decision{Allowed: true}
}

func (g *QuotaGuard) cooldownDecisionLocked() (Decision, bool) {
	if g.cooldownUntil.IsZero() {
		return Decision{}, false
	}
	left := g.cooldownUntil.Sub(g.now())
	if left <= 0 {
		g.cooldownUntil = time.Time{}
		return Decision{}, false
	}
	return Decision{Reason: DenialRateLimited, RetryAfter: left}, true
}

// Release 归还一次预扣（调用未计费失败时）
func (g *QuotaGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.known && !g.unlimited {
		g.remaining++
	}
}

// NoteRateLimited 吸收上游 429，重新设置冷却截止时间，返回实际冷却时长
func (g *QuotaGuard) NoteRateLimited(retryAfter time.Duration) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if retryAfter <= 0 {
		retryAfter = g.cooldown
	}
	until := g.now().Add(retryAfter)
	if until.After(g.cooldownUntil) {
		g.cooldownUntil = until
	}
	return g.cooldownUntil.Sub(g.now())
}

// NoteQuotaExceeded 吸收上游 402，本地额度置零
func (g *QuotaGuard) NoteQuotaExceeded() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.known = true
	g.unlimited = false
	g.remaining = 0
}

// Apply 用服务端余额覆盖本地状态
func (g *QuotaGuard) Apply(b service.CreditBalance) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.known = true
	g.remaining = b.Remaining
	g.unlimited = b.Unlimited
}

// Refresh 同步刷新余额
func (g *QuotaGuard) Refresh(ctx context.Context) error {
	if g.source == nil {
		return nil
	}
	b, err := g.source.Balance(ctx, g.userID)
	if err != nil {
		return err
	}
	g.Apply(b)
	return nil
}

// RefreshAsync 异步刷新余额，不阻塞调用方；返回的 channel 在刷新结束后关闭
func (g *QuotaGuard) RefreshAsync(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if g.source == nil {
		close(done)
		return done
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		rctx, cancel := context.WithTimeout(bg, refreshTimeout)
		defer cancel()
		if err := g.Refresh(rctx); err != nil {
			logger.Warn(rctx, "quota refresh failed", "user_id", g.userID, "error", err.Error())
		}
	}()
	return done
}

// Status 返回状态快照
func (g *QuotaGuard) Status() QuotaStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := QuotaStatus{Known: g.known, Remaining: g.remaining, Unlimited: g.unlimited}
	if left := g.cooldownUntil.Sub(g.now()); left > 0 {
		st.CooldownRemaining = left
	}
	return st
}
