// Package quota 提供生成额度相关能力
package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/repository"
	"flashflow-studio/internal/domain/service"
)

// DefaultBalanceTTL 余额缓存时长
const DefaultBalanceTTL = 30 * time.Second

// CreditsExhaustedError 表示用户生成额度已耗尽
type CreditsExhaustedError struct {
	UserID    string
	Remaining int
}

func (e CreditsExhaustedError) Error() string {
	return fmt.Sprintf("generation credits exhausted: user=%s remaining=%d", e.UserID, e.Remaining)
}

// BalanceCache 余额读穿缓存
type BalanceCache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
}

// CreditChecker 读取并检查用户生成额度，实现 service.CreditSource
type CreditChecker struct {
	accounts repository.CreditRepository
	events   repository.UsageEventRepository
	cache    BalanceCache
	ttl      time.Duration
	now      func() time.Time
}

// NewCreditChecker 创建额度检查器，cache 为空时直接读库
func NewCreditChecker(accounts repository.CreditRepository, events repository.UsageEventRepository, cache BalanceCache, ttl time.Duration) *CreditChecker {
	if ttl <= 0 {
		ttl = DefaultBalanceTTL
	}
	return &CreditChecker{
		accounts: accounts,
		events:   events,
		cache:    cache,
		ttl:      ttl,
		now:      time.Now,
	}
}

// BalanceKey 余额缓存键
func BalanceKey(userID string) string {
	return "credits:" + userID
}

// Balance 读取余额；账户不存在视为 0 额度
func (c *CreditChecker) Balance(ctx context.Context, userID string) (service.CreditBalance, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return service.CreditBalance{}, fmt.Errorf("user id is required")
	}
	if c.cache == nil {
		return c.load(ctx, userID)
	}

	data, err := c.cache.GetOrLoadSafe(ctx, BalanceKey(userID), c.ttl, func() (interface{}, error) {
		return c.load(ctx, userID)
	})
	if err != nil {
		return service.CreditBalance{}, fmt.Errorf("failed to load credit balance: %w", err)
	}
	var b service.CreditBalance
	if err := json.Unmarshal(data, &b); err != nil {
		return service.CreditBalance{}, fmt.Errorf("failed to decode credit balance: %w", err)
	}
	return b, nil
}

func (c *CreditChecker) load(ctx context.Context, userID string) (service.CreditBalance, error) {
	account, err := c.accounts.GetByUserID(ctx, userID)
	if err != nil {
		return service.CreditBalance{}, err
	}
	if account == nil {
		return service.CreditBalance{}, nil
	}
	return service.CreditBalance{Remaining: account.Remaining, Unlimited: account.Unlimited}, nil
}

// Check 检查是否还能消耗 n 个额度，不足时返回 CreditsExhaustedError
func (c *CreditChecker) Check(ctx context.Context, userID string, n int) (service.CreditBalance, error) {
	b, err := c.Balance(ctx, userID)
	if err != nil {
		return b, err
	}
	account := entity.CreditAccount{Remaining: b.Remaining, Unlimited: b.Unlimited}
	if !account.CanSpend(n) {
		return b, CreditsExhaustedError{UserID: userID, Remaining: b.Remaining}
	}
	return b, nil
}

// Invalidate 清除余额缓存
func (c *CreditChecker) Invalidate(ctx context.Context, userID string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, BalanceKey(userID))
}

// UsedToday 当日（UTC）已消耗额度
func (c *CreditChecker) UsedToday(ctx context.Context, userID string) (int64, error) {
	if c.events == nil {
		return 0, nil
	}
	now := c.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	return c.events.CountCredits(ctx, userID, start, end)
}
