package quota

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/service"
	"flashflow-studio/pkg/logger"
)

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*entity.CreditAccount
	reads    int
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[string]*entity.CreditAccount)}
}

func (m *memAccounts) GetByUserID(_ context.Context, userID string) (*entity.CreditAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	a, ok := m.accounts[userID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) Upsert(_ context.Context, a *entity.CreditAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.accounts[a.UserID] = &cp
	return nil
}

func (m *memAccounts) Grant(_ context.Context, userID string, credits int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		a = &entity.CreditAccount{UserID: userID}
		m.accounts[userID] = a
	}
	a.Remaining += credits
	return nil
}

func (m *memAccounts) Deduct(_ context.Context, userID string, credits int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok || a.Unlimited {
		return nil
	}
	a.Remaining = max(0, a.Remaining-credits)
	return nil
}

type memEvents struct {
	mu     sync.Mutex
	events []*entity.GenerationUsageEvent
}

func (m *memEvents) Create(_ context.Context, e *entity.GenerationUsageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.CreatedAt = time.Now()
	m.events = append(m.events, e)
	return nil
}

func (m *memEvents) CountCredits(_ context.Context, userID string, start, end time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.events {
		if e.UserID == userID && !e.CreatedAt.Before(start) && e.CreatedAt.Before(end) {
			n += int64(e.Credits)
		}
	}
	return n, nil
}

// mapCache 进程内的读穿缓存
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) GetOrLoadSafe(_ context.Context, key string, _ time.Duration, loader func() (interface{}, error)) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.data[key]; ok {
		return b, nil
	}
	v, err := loader()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	c.data[key] = b
	return b, nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func TestCreditCheckerCachesBalance(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	require.NoError(t, accounts.Grant(ctx, "u1", 3))
	checker := NewCreditChecker(accounts, &memEvents{}, newMapCache(), time.Minute)

	b, err := checker.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, b.Remaining)
	_, err = checker.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, accounts.reads)

	require.NoError(t, checker.Invalidate(ctx, "u1"))
	_, err = checker.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, accounts.reads)
}

func TestCreditCheckerMissingAccountIsEmpty(t *testing.T) {
	checker := NewCreditChecker(newMemAccounts(), nil, nil, 0)

	_, err := checker.Check(context.Background(), "nobody", 1)
	var exhausted CreditsExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "nobody", exhausted.UserID)

	_, err = checker.Balance(context.Background(), " ")
	assert.Error(t, err)
}

func TestUsageRecorderDeductsAndInvalidates(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	require.NoError(t, accounts.Grant(ctx, "u1", 5))
	events := &memEvents{}
	checker := NewCreditChecker(accounts, events, newMapCache(), time.Minute)
	rec := NewUsageRecorder(accounts, events, &recordingTx{}, checker)

	_, err := checker.Balance(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, rec.Record(ctx, service.UsageInput{
		UserID: "u1", SessionID: "s1", Operation: "generate", Credits: 1, Variations: 3,
		Provider: "openai", Model: "gpt-4o", PromptTokens: 100, CompletionTokens: 250,
	}))

	b, err := checker.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, b.Remaining)

	used, err := checker.UsedToday(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, used)
	require.Len(t, events.events, 1)
	assert.Equal(t, 250, events.events[0].TokensCompletion)

	assert.Error(t, rec.Record(ctx, service.UsageInput{UserID: "u1", Credits: -1}))
}

type stubCapability struct {
	generated int
	scored    int
}

func (s *stubCapability) Generate(context.Context, *entity.GenerationRequest) (*service.GenerateResult, error) {
	s.generated++
	return &service.GenerateResult{Single: &entity.Candidate{Hook: "h"}}, nil
}

func (s *stubCapability) Refine(_ context.Context, c *entity.Candidate, _ string, _ entity.TargetContext) (*service.RefineResult, error) {
	return &service.RefineResult{Candidate: c}, nil
}

func (s *stubCapability) Score(context.Context, *entity.Candidate, entity.TargetContext) (*entity.Score, error) {
	s.scored++
	return &entity.Score{}, nil
}

func (s *stubCapability) ImproveSection(context.Context, service.SectionImproveInput) (*service.SectionImproveResult, error) {
	return &service.SectionImproveResult{Text: "x"}, nil
}

func TestMeteredCapabilityRejectsWithoutCredits(t *testing.T) {
	accounts := newMemAccounts()
	next := &stubCapability{}
	m := NewMeteredCapability(next, NewCreditChecker(accounts, nil, nil, 0))
	ctx := logger.WithContext(context.Background(), logger.UserIDKey, "u1")

	_, err := m.Generate(ctx, &entity.GenerationRequest{})
	ce, ok := service.AsCapabilityError(err)
	require.True(t, ok)
	assert.Equal(t, service.KindQuotaExceeded, ce.Kind)
	assert.Zero(t, next.generated)

	// 评分不计费
	_, err = m.Score(ctx, &entity.Candidate{}, entity.TargetContext{})
	require.NoError(t, err)
	assert.Equal(t, 1, next.scored)

	require.NoError(t, accounts.Grant(ctx, "u1", 1))
	_, err = m.Generate(ctx, &entity.GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, next.generated)
}

type failingAccounts struct{ memAccounts }

func (f *failingAccounts) GetByUserID(context.Context, string) (*entity.CreditAccount, error) {
	return nil, errors.New("db down")
}

func TestMeteredCapabilityAllowsOnLookupFailure(t *testing.T) {
	next := &stubCapability{}
	m := NewMeteredCapability(next, NewCreditChecker(&failingAccounts{}, nil, nil, 0))
	ctx := logger.WithContext(context.Background(), logger.UserIDKey, "u1")

	_, err := m.Generate(ctx, &entity.GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, next.generated)
}

// recordingTx 记录事务调用次数
type recordingTx struct {
	calls int
}

func (t *recordingTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type brokenDeduct struct{ *memAccounts }

func (b *brokenDeduct) Deduct(context.Context, string, int) error {
	return errors.New("deadlock detected")
}

func TestUsageRecorderDeductFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	accounts := &brokenDeduct{memAccounts: newMemAccounts()}
	events := &memEvents{}
	cache := newMapCache()
	checker := NewCreditChecker(accounts, events, cache, time.Minute)
	tx := &recordingTx{}
	rec := NewUsageRecorder(accounts, events, tx, checker)

	require.NoError(t, accounts.Grant(ctx, "u1", 2))
	_, err := checker.Balance(ctx, "u1")
	require.NoError(t, err)

	err = rec.Record(ctx, service.UsageInput{UserID: "u1", Operation: "generate", Credits: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock")
	assert.Equal(t, 1, tx.calls)
	assert.Empty(t, events.events)
	// 失败时不失效缓存
	assert.Len(t, cache.data, 1)
}

func TestUsageRecorderRunsInTransaction(t *testing.T) {
	ctx := context.Background()
	accounts := newMemAccounts()
	events := &memEvents{}
	tx := &recordingTx{}
	rec := NewUsageRecorder(accounts, events, tx, nil)

	require.NoError(t, rec.Record(ctx, service.UsageInput{UserID: "u1", Operation: "score"}))
	assert.Equal(t, 1, tx.calls)
	require.Len(t, events.events, 1)
	assert.Zero(t, events.events[0].Credits)

	// 空用户不落库
	require.NoError(t, rec.Record(ctx, service.UsageInput{UserID: " "}))
	assert.Equal(t, 1, tx.calls)
}
