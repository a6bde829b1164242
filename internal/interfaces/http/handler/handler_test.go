package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashflow-studio/internal/application/studio"
	"flashflow-studio/internal/config"
	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/repository"
	"flashflow-studio/internal/domain/service"
	"flashflow-studio/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubCapability 固定返回一组变体
type stubCapability struct {
	mu       sync.Mutex
	generate error
	calls    int
}

func candidate(hook string, score float64) *entity.Candidate {
	c := &entity.Candidate{
		Hook:    hook,
		CTALine: "Grab yours",
		Beats: []entity.Beat{
			{Action: "unbox", Dialogue: "look at this"},
			{Action: "apply", Dialogue: "so smooth"},
		},
	}
	c.Retime(entity.DefaultBeatSeconds)
	c.Scoring = entity.Scored(entity.Score{
		HookStrength: score, Humor: score, Virality: score, Authenticity: score,
		ProductIntegration: score, AudienceFit: score, Clarity: score,
	})
	return c
}

func (s *stubCapability) Generate(_ context.Context, req *entity.GenerationRequest) (*service.GenerateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.generate != nil {
		return nil, s.generate
	}
	set := &entity.VariationSet{AppliedRiskTier: entity.RiskTierBalanced}
	for i := 0; i < req.VariationCount; i++ {
		set.Candidates = append(set.Candidates, candidate("hook", float64(8-i)))
	}
	return &service.GenerateResult{Set: set}, nil
}

func (s *stubCapability) Refine(_ context.Context, cand *entity.Candidate, instruction string, _ entity.TargetContext) (*service.RefineResult, error) {
	out := cand.Clone()
	out.Hook = cand.Hook + " (" + instruction + ")"
	return &service.RefineResult{Candidate: out}, nil
}

func (s *stubCapability) Score(_ context.Context, _ *entity.Candidate, _ entity.TargetContext) (*entity.Score, error) {
	return &entity.Score{HookStrength: 7, Humor: 7, Virality: 7, Authenticity: 7, ProductIntegration: 7, AudienceFit: 7, Clarity: 7}, nil
}

func (s *stubCapability) ImproveSection(_ context.Context, in service.SectionImproveInput) (*service.SectionImproveResult, error) {
	return &service.SectionImproveResult{Text: "a sharper hook"}, nil
}

type fixedCredits struct {
	balance service.CreditBalance
	used    int64
	err     error
}

func (f *fixedCredits) Balance(context.Context, string) (service.CreditBalance, error) {
	return f.balance, f.err
}

func (f *fixedCredits) UsedToday(context.Context, string) (int64, error) {
	return f.used, nil
}

type memCreatives struct {
	mu    sync.Mutex
	items map[string]*entity.SavedCreative
}

func newMemCreatives() *memCreatives {
	return &memCreatives{items: make(map[string]*entity.SavedCreative)}
}

func (r *memCreatives) Create(_ context.Context, c *entity.SavedCreative) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.items[c.ID] = &cp
	return nil
}

func (r *memCreatives) GetByID(_ context.Context, id string) (*entity.SavedCreative, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memCreatives) Upsert(ctx context.Context, c *entity.SavedCreative) error {
	return r.Create(ctx, c)
}

func (r *memCreatives) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *memCreatives) ListByOwner(_ context.Context, ownerID string, filter *repository.CreativeFilter, p repository.Pagination) (*repository.PagedResult[*entity.SavedCreative], error) {
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
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return repository.NewPagedResult(out, int64(len(out)), p), nil
}

func (r *memCreatives) SetProductionJob(_ context.Context, creativeID, jobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[creativeID]
	if !ok || c.ProductionJobID != nil {
		return false, nil
	}
	c.ProductionJobID = &jobID
	return true, nil
}

type noopHandoff struct{ calls int }

func (h *noopHandoff) CreateFromEntity(context.Context, string) (string, error) {
	h.calls++
	return "job-1", nil
}

func (h *noopHandoff) Settle(context.Context, string, entity.ProductionJobStatus) error {
	return nil
}

type testServer struct {
	engine    *gin.Engine
	cap       *stubCapability
	creatives *memCreatives
	handoff   *noopHandoff
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{}
	cfg.Studio.SessionTTL = time.Hour

	ts := &testServer{cap: &stubCapability{}, creatives: newMemCreatives(), handoff: &noopHandoff{}}
	credits := &fixedCredits{balance: service.CreditBalance{Remaining: 10}, used: 2}
	lifecycle := studio.NewLifecycle(ts.creatives, ts.handoff)
	manager := studio.NewSessionManager(cfg, studio.NewComposer(nil), ts.cap, credits, nil, lifecycle)

	sh := NewStudioHandler(manager)
	ch := NewCreativeHandler(lifecycle)
	qh := NewQuotaHandler(credits)

	engine := gin.New()
	engine.Use(middleware.Auth(middleware.AuthConfig{Enabled: false}))
	v1 := engine.Group("/v1")
	v1.GET("/studio/instructions", sh.Instructions)
	v1.GET("/studio/quota", qh.GetQuota)
	v1.POST("/studio/sessions", sh.CreateSession)
	v1.GET("/studio/sessions/:sid", sh.GetSession)
	v1.DELETE("/studio/sessions/:sid", sh.DeleteSession)
	v1.POST("/studio/sessions/:sid/generate", sh.Generate)
	v1.POST("/studio/sessions/:sid/refine", sh.Refine)
	v1.PUT("/studio/sessions/:sid/selection", sh.Select)
	v1.POST("/studio/sessions/:sid/edits", sh.Edit)
	v1.POST("/studio/sessions/:sid/structure", sh.Structure)
	v1.POST("/studio/sessions/:sid/undo", sh.Undo)
	v1.POST("/studio/sessions/:sid/improve", sh.Improve)
	v1.POST("/studio/sessions/:sid/save", sh.Save)
	v1.GET("/creatives", ch.ListCreatives)
	v1.GET("/creatives/:id", ch.GetCreative)
	v1.PUT("/creatives/:id/status", ch.UpdateStatus)
	v1.PUT("/creatives/:id/rating", ch.Rate)
	v1.POST("/creatives/:id/remix", sh.RemixCreative)
	ts.engine = engine
	return ts
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		ErrorCode  string `json:"error_code"`
		RetryAfter int    `json:"retry_after"`
	} `json:"error"`
}

func (ts *testServer) do(t *testing.T, method, path, user string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(middleware.DevUserHeader, user)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func sessionConfig(count int) map[string]any {
	cfg := entity.DefaultGenerationConfig()
	cfg.Target = entity.TargetRef{ProductName: "GlowSerum", Brand: "Lumi"}
	cfg.VariationCount = count
	return map[string]any{"config": cfg}
}

func (ts *testServer) createSession(t *testing.T, user string, count int) *studio.SessionView {
	t.Helper()
	w, env := ts.do(t, http.MethodPost, "/v1/studio/sessions", user, sessionConfig(count))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var view studio.SessionView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return &view
}

func decodeView(t *testing.T, env envelope) *studio.SessionView {
	t.Helper()
	var view studio.SessionView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return &view
}

func TestStudioGenerateSelectAndSave(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "alice", 3)
	base := "/v1/studio/sessions/" + view.ID

	w, env := ts.do(t, http.MethodPost, base+"/generate", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view = decodeView(t, env)
	assert.Len(t, view.Variations, 3)
	assert.Len(t, view.Versions, 1)

	w, env = ts.do(t, http.MethodPut, base+"/selection", "alice", map[string]int{"index": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, decodeView(t, env).Selected)

	w, env = ts.do(t, http.MethodPost, base+"/save", "alice", map[string]string{"title": "Serum skit"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var saved struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &saved))
	assert.Equal(t, string(entity.CreativeStatusDraft), saved.Status)

	w, _ = ts.do(t, http.MethodGet, "/v1/creatives/"+saved.ID, "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStudioSessionIsScopedToOwner(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "alice", 1)

	w, env := ts.do(t, http.MethodGet, "/v1/studio/sessions/"+view.ID, "mallory", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)

	w, _ = ts.do(t, http.MethodDelete, "/v1/studio/sessions/"+view.ID, "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = ts.do(t, http.MethodGet, "/v1/studio/sessions/"+view.ID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStudioCreateRejectsInvalidConfig(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, http.MethodPost, "/v1/studio/sessions", "alice", sessionConfig(9))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudioGenerateMapsCapabilityErrors(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "alice", 1)
	ts.cap.generate = &service.CapabilityError{Kind: service.KindRateLimited, Message: "slow down", RetryAfter: 30 * time.Second}

	w, env := ts.do(t, http.MethodPost, "/v1/studio/sessions/"+view.ID+"/generate", "alice", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	require.NotNil(t, env.Error)
	assert.Equal(t, 30, env.Error.RetryAfter)
}

func TestStudioEditAndUndo(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "alice", 1)
	base := "/v1/studio/sessions/" + view.ID

	w, _ := ts.do(t, http.MethodPost, base+"/edits", "alice", map[string]any{"section": "hook", "text": "edited"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "no content yet")

	w, _ = ts.do(t, http.MethodPost, base+"/generate", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := ts.do(t, http.MethodPost, base+"/edits", "alice", map[string]any{"section": "hook", "text": "edited"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view = decodeView(t, env)
	assert.True(t, view.Edited)
	assert.Equal(t, "edited", view.Active.Hook)

	w, env = ts.do(t, http.MethodPost, base+"/structure", "alice", map[string]any{"op": "delete_beat", "index": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decodeView(t, env).Active.Beats, 1)

	w, env = ts.do(t, http.MethodPost, base+"/undo", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var undo struct {
		Undone  bool                `json:"undone"`
		Session *studio.SessionView `json:"session"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &undo))
	assert.True(t, undo.Undone)
	assert.Len(t, undo.Session.Active.Beats, 2)

	w, _ = ts.do(t, http.MethodPost, base+"/structure", "alice", map[string]any{"op": "shuffle"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudioRefineAndImprove(t *testing.T) {
	ts := newTestServer(t)
	view := ts.createSession(t, "alice", 1)
	base := "/v1/studio/sessions/" + view.ID
	w, _ := ts.do(t, http.MethodPost, base+"/generate", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = ts.do(t, http.MethodPost, base+"/refine", "alice", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := ts.do(t, http.MethodPost, base+"/refine", "alice", map[string]string{"instruction": "make it punchier"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decodeView(t, env).Versions, 2)

	w, env = ts.do(t, http.MethodPost, base+"/improve", "alice", map[string]any{"section": "hook"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var improved struct {
		Section string `json:"section"`
		Text    string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &improved))
	assert.Equal(t, "hook", improved.Section)
	assert.Equal(t, "a sharper hook", improved.Text)
}

func TestStudioInstructionsAndQuota(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(t, http.MethodGet, "/v1/studio/instructions", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "instructions")

	w, env = ts.do(t, http.MethodGet, "/v1/studio/quota", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var quota struct {
		Remaining int   `json:"remaining"`
		UsedToday int64 `json:"used_today"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &quota))
	assert.Equal(t, 10, quota.Remaining)
	assert.EqualValues(t, 2, quota.UsedToday)
}

func TestQuotaBalanceFailure(t *testing.T) {
	engine := gin.New()
	engine.GET("/quota", NewQuotaHandler(&fixedCredits{err: errors.New("db down")}).GetQuota)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/quota", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func saveCreative(t *testing.T, ts *testServer, user string) string {
	t.Helper()
	view := ts.createSession(t, user, 1)
	base := "/v1/studio/sessions/" + view.ID
	w, _ := ts.do(t, http.MethodPost, base+"/generate", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, env := ts.do(t, http.MethodPost, base+"/save", user, map[string]string{"title": "draft"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var saved struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &saved))
	return saved.ID
}

func TestCreativeLifecycleEndpoints(t *testing.T) {
	ts := newTestServer(t)
	id := saveCreative(t, ts, "alice")
	saveCreative(t, ts, "bob")

	w, env := ts.do(t, http.MethodGet, "/v1/creatives?page=1&page_size=10", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Creatives []struct {
			ID string `json:"id"`
		} `json:"creatives"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Creatives, 1)
	assert.Equal(t, id, list.Creatives[0].ID)

	w, _ = ts.do(t, http.MethodGet, "/v1/creatives/"+id, "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = ts.do(t, http.MethodPut, "/v1/creatives/"+id+"/status", "alice", map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, ts.handoff.calls)

	w, _ = ts.do(t, http.MethodPut, "/v1/creatives/"+id+"/status", "alice", map[string]string{"status": "draft"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodPut, "/v1/creatives/"+id+"/rating", "alice", map[string]any{"rating": 6})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = ts.do(t, http.MethodPut, "/v1/creatives/"+id+"/rating", "alice", map[string]any{"rating": 4, "feedback": "good hook"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rated struct {
		Rating *int `json:"rating"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rated))
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 4, *rated.Rating)
}

func TestRemixCreativeOpensSeededSession(t *testing.T) {
	ts := newTestServer(t)
	id := saveCreative(t, ts, "alice")

	w, env := ts.do(t, http.MethodPost, "/v1/creatives/"+id+"/remix", "alice", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view := decodeView(t, env)
	require.Len(t, view.Versions, 1)
	assert.Equal(t, studio.VersionRemix, view.Versions[0].Kind)
	require.Len(t, view.Variations, 1)
	require.NotNil(t, view.Active)
	assert.False(t, view.Edited)

	w, _ = ts.do(t, http.MethodGet, "/v1/studio/sessions/"+view.ID, "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/v1/creatives/"+id+"/remix", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
