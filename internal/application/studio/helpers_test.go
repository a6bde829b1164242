package studio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/repository"
	"flashflow-studio/internal/domain/service"
)

type mockCapability struct {
	mock.Mock
}

func (m *mockCapability) Generate(ctx context.Context, req *entity.GenerationRequest) (*service.GenerateResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*service.GenerateResult)
	return res, args.Error(1)
}

// Refine 期望值可以是候选本身或完整的 RefineResult
func (m *mockCapability) Refine(ctx context.Context, cand *entity.Candidate, instruction string, target entity.TargetContext) (*service.RefineResult, error) {
	args := m.Called(ctx, cand, instruction, target)
	switch out := args.Get(0).(type) {
	case *service.RefineResult:
		return out, args.Error(1)
	case *entity.Candidate:
		return &service.RefineResult{Candidate: out}, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCapability) Score(ctx context.Context, cand *entity.Candidate, target entity.TargetContext) (*entity.Score, error) {
	args := m.Called(ctx, cand, target)
	out, _ := args.Get(0).(*entity.Score)
	return out, args.Error(1)
}

func (m *mockCapability) ImproveSection(ctx context.Context, in service.SectionImproveInput) (*service.SectionImproveResult, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*service.SectionImproveResult)
	return out, args.Error(1)
}

type fakeCredits struct {
	mu      sync.Mutex
	balance service.CreditBalance
	err     error
	calls   int
}

func (f *fakeCredits) Balance(_ context.Context, _ string) (service.CreditBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.balance, f.err
}

type recordedUsage struct {
	mu     sync.Mutex
	inputs []service.UsageInput
}

func (r *recordedUsage) Record(_ context.Context, in service.UsageInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, in)
	return nil
}

// fakeClock 手动推进的时钟
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testCandidate(hook string, overall float64, beats int) *entity.Candidate {
	c := &entity.Candidate{
		Hook:       hook,
		CTALine:    "Grab yours today",
		CTAOverlay: "SHOP NOW",
		BRoll:      []string{"product on desk"},
		Overlays:   []string{"Day 1"},
	}
	for i := 0; i < beats; i++ {
		c.Beats = append(c.Beats, entity.Beat{
			Action:   fmt.Sprintf("beat %d action", i+1),
			Dialogue: fmt.Sprintf("line %d", i+1),
		})
	}
	c.Retime(entity.DefaultBeatSeconds)
	if overall >= 0 {
		c.Scoring = entity.Scored(entity.Score{
			HookStrength: overall, Humor: overall, Virality: overall, Authenticity: overall,
			ProductIntegration: overall, AudienceFit: overall, Clarity: overall,
		})
	}
	return c
}

func testSet(n int) *entity.VariationSet {
	set := &entity.VariationSet{AppliedRiskTier: entity.RiskTierBalanced, RiskScore: 0.3}
	for i := 0; i < n; i++ {
		set.Candidates = append(set.Candidates, testCandidate(fmt.Sprintf("hook %d", i), float64(9-i), 3))
	}
	return set
}

func testConfig() entity.GenerationConfig {
	cfg := entity.DefaultGenerationConfig()
	cfg.Target = entity.TargetRef{ProductName: "GlowSerum", Brand: "Lumi"}
	return cfg
}

func newTestDispatcher(capability service.GenerationCapability, guard *QuotaGuard, clock *fakeClock) *Dispatcher {
	d := NewDispatcher(capability, guard, DispatcherOptions{UserID: "u1", SessionID: "s1"})
	if clock != nil {
		d.now = clock.Now
	}
	return d
}

func newTestGuard(clock *fakeClock, source service.CreditSource) *QuotaGuard {
	g := NewQuotaGuard("u1", source, DefaultRateLimitCooldown)
	g.now = clock.Now
	return g
}

type memCreativeRepo struct {
	mu    sync.Mutex
	items map[string]*entity.SavedCreative
}

func newMemCreativeRepo() *memCreativeRepo {
	return &memCreativeRepo{items: make(map[string]*entity.SavedCreative)}
}

func (r *memCreativeRepo) Create(_ context.Context, c *entity.SavedCreative) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.items[c.ID] = &cp
	return nil
}

func (r *memCreativeRepo) GetByID(_ context.Context, id string) (*entity.SavedCreative, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memCreativeRepo) Upsert(ctx context.Context, c *entity.SavedCreative) error {
	return r.Create(ctx, c)
}

func (r *memCreativeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *memCreativeRepo) ListByOwner(_ context.Context, ownerID string, filter *repository.CreativeFilter, p repository.Pagination) (*repository.PagedResult[*entity.SavedCreative], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.SavedCreative
	for _, c := range r.items {
		if c.OwnerID != ownerID {
			continue
		}
		if filter != nil && filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	return repository.NewPagedResult(out, int64(len(out)), p), nil
}

func (r *memCreativeRepo) SetProductionJob(_ context.Context, creativeID, jobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[creativeID]
	if !ok || c.ProductionJobID != nil {
		return false, nil
	}
	c.ProductionJobID = &jobID
	return true, nil
}

type countingHandoff struct {
	mu        sync.Mutex
	calls     []string
	err       error
	settled   []string
	settleErr error
}

func (h *countingHandoff) Settle(_ context.Context, jobID string, outcome entity.ProductionJobStatus) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.settleErr != nil {
		return h.settleErr
	}
	h.settled = append(h.settled, jobID+":"+string(outcome))
	return nil
}

func (h *countingHandoff) CreateFromEntity(_ context.Context, creativeID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return "", h.err
	}
	h.calls = append(h.calls, creativeID)
	return fmt.Sprintf("job-%d", len(h.calls)), nil
}
