package production

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/repository"
	"flashflow-studio/internal/infrastructure/messaging"
)

type memCreatives struct {
	mu    sync.Mutex
	items map[string]*entity.SavedCreative
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

func (r *memCreatives) ListByOwner(context.Context, string, *repository.CreativeFilter, repository.Pagination) (*repository.PagedResult[*entity.SavedCreative], error) {
	return nil, errors.New("not implemented")
}

func (r *memCreatives) SetProductionJob(_ context.Context, creativeID, jobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[creativeID]
	if !ok || c.HasHandoff() {
		return false, nil
	}
	c.ProductionJobID = &jobID
	return true, nil
}

type memJobs struct {
	mu        sync.Mutex
	items     map[string]*entity.ProductionJob
	createErr error
	updates   int
}

func newMemJobs() *memJobs {
	return &memJobs{items: make(map[string]*entity.ProductionJob)}
}

func (r *memJobs) Create(_ context.Context, job *entity.ProductionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, j := range r.items {
		if j.CreativeID == job.CreativeID {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	cp := *job
	r.items[job.ID] = &cp
	return nil
}

func (r *memJobs) GetByID(_ context.Context, id string) (*entity.ProductionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (r *memJobs) GetByCreativeID(_ context.Context, creativeID string) (*entity.ProductionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.items {
		if j.CreativeID == creativeID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memJobs) Update(_ context.Context, job *entity.ProductionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.items[job.ID] = &cp
	r.updates++
	return nil
}

func (r *memJobs) ListByStatus(_ context.Context, status entity.ProductionJobStatus, limit int) ([]*entity.ProductionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ProductionJob
	for _, j := range r.items {
		if j.Status == status && len(out) < limit {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memJobs) ListOpen(_ context.Context, limit int) ([]*entity.ProductionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ProductionJob
	for _, j := range r.items {
		if j.IsOpen() {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].DueAt.Before(out[b].DueAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type passthroughTx struct{ calls int }

func (t *passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type recordingPublisher struct {
	events []*messaging.CreativeApprovedMessage
	err    error
}

func (p *recordingPublisher) PublishCreativeApproved(_ context.Context, evt *messaging.CreativeApprovedMessage) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, evt)
	return fmt.Sprintf("%d-0", len(p.events)), nil
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seedCreative(t *testing.T, repo *memCreatives, id string, cand *entity.Candidate) *entity.SavedCreative {
	t.Helper()
	cfg := entity.DefaultGenerationConfig()
	cfg.Target = entity.TargetRef{ProductName: "GlowSerum", Brand: "Lumi"}
	c, err := entity.NewSavedCreative(id, "u1", "Serum skit", cand, cfg)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), c))
	return c
}

func briefCandidate() *entity.Candidate {
	c := &entity.Candidate{
		Hook:       "POV: your skin at 7am",
		CTALine:    "Link in bio",
		CTAOverlay: "SHOP NOW",
		BRoll:      []string{"serum dropper close-up"},
		Overlays:   []string{"Day 1 vs Day 30"},
		Beats: []entity.Beat{
			{Action: "Wakes up, checks mirror", Dialogue: "Not again"},
			{Action: "Applies serum", OnScreenText: "2 drops"},
		},
	}
	c.Retime(entity.DefaultBeatSeconds)
	return c
}

func newTestHandoff(creatives *memCreatives, jobs *memJobs, pub Publisher) *Handoff {
	h := NewHandoff(creatives, jobs, &passthroughTx{}, pub)
	n := 0
	h.newID = func() string {
		n++
		return fmt.Sprintf("job-%d", n)
	}
	h.now = func() time.Time { return fixedNow }
	return h
}

func TestHandoffCreatesOnce(t *testing.T) {
	ctx := context.Background()
	creatives := &memCreatives{items: map[string]*entity.SavedCreative{}}
	jobs := newMemJobs()
	pub := &recordingPublisher{}
	seedCreative(t, creatives, "c1", briefCandidate())
	h := newTestHandoff(creatives, jobs, pub)

	id, err := h.CreateFromEntity(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)

	again, err := h.CreateFromEntity(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	job, err := jobs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.ProductionJobPending, job.Status)
	assert.Equal(t, fixedNow.Add(entity.ProductionTurnaround), job.DueAt)

	stored, err := creatives.GetByID(ctx, "c1")
	require.NoError(t, err)
	require.True(t, stored.HasHandoff())
	assert.Equal(t, id, *stored.ProductionJobID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "u1", pub.events[0].OwnerID)
}

func TestHandoffPublishFailureKeepsJob(t *testing.T) {
	ctx := context.Background()
	creatives := &memCreatives{items: map[string]*entity.SavedCreative{}}
	jobs := newMemJobs()
	seedCreative(t, creatives, "c1", briefCandidate())
	h := newTestHandoff(creatives, jobs, &recordingPublisher{err: errors.New("redis down")})

	id, err := h.CreateFromEntity(ctx, "c1")
	require.NoError(t, err)
	job, err := jobs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, job)
}

func TestHandoffErrors(t *testing.T) {
	ctx := context.Background()
	creatives := &memCreatives{items: map[string]*entity.SavedCreative{}}
	jobs := newMemJobs()
	h := newTestHandoff(creatives, jobs, nil)

	_, err := h.CreateFromEntity(ctx, "missing")
	require.Error(t, err)

	seedCreative(t, creatives, "c1", briefCandidate())
	jobs.createErr = errors.New("connection reset")
	_, err = h.CreateFromEntity(ctx, "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRenderBrief(t *testing.T) {
	creatives := &memCreatives{items: map[string]*entity.SavedCreative{}}
	c := seedCreative(t, creatives, "c1", briefCandidate())
	job := entity.NewProductionJob("0123456789abcdef", "c1", "u1", fixedNow)

	out, err := RenderBrief(c, job)
	require.NoError(t, err)
	for _, want := range []string{
		"VIDEO EDITING BRIEF",
		"POV: your skin at 7am",
		"Dialogue: Not again",
		"Text: 2 drops",
		"Link in bio / overlay: SHOP NOW",
		"serum dropper close-up",
		"Quick cuts, jump cuts",
		"Duration: 10 seconds",
		"[ ] CTA present and clear",
		"01234567",
		"Mar 03, 2025",
		"Lumi",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "0123456789abcdef")
}

func TestRenderBriefRejectsEmptyScript(t *testing.T) {
	creatives := &memCreatives{items: map[string]*entity.SavedCreative{}}
	c := seedCreative(t, creatives, "c1", &entity.Candidate{})

	_, err := RenderBrief(c, nil)
	require.Error(t, err)
}

func TestStyleForUnknownFormat(t *testing.T) {
	assert.Equal(t, "Medium", StyleFor("unboxing").Pace)
	assert.Equal(t, "Split-screen cuts", StyleFor(entity.FormatComparison).Pace)
}

func newTestBriefService(creatives *memCreatives, jobs *memJobs) *BriefService {
	s := NewBriefService(creatives, jobs)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestBriefServiceHandlesEvent(t *testing.T) {
	ctx := context.Background()
	creatives := &memCreatives{items: map[string]*entity.SavedCreative{}}
	jobs := newMemJobs()
	seedCreative(t, creatives, "c1", briefCandidate())
	jobID, err := newTestHandoff(creatives, jobs, nil).CreateFromEntity(ctx, "c1")
	require.NoError(t, err)

	svc := newTestBriefService(creatives, jobs)
	msg, err := messaging.NewMessage("m1", messaging.TypeCreativeApproved, "u1", "c1",
		messaging.CreativeApprovedMessage{JobID: jobID, CreativeID: "c1", OwnerID: "u1"})
	require.NoError(t, err)
	require.NoError(t, svc.HandleCreativeApproved(ctx, msg))

	job, err := jobs.GetByID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, entity.ProductionJobBriefed, job.Status)
	assert.True(t, strings.Contains(job.Brief, "POV: your skin at 7am"))
	require.NotNil(t, job.BriefedAt)

	// 重复投递不重写
	updates := jobs.updates
	require.NoError(t, svc.HandleCreativeApproved(ctx, msg))
	assert.Equal(t, updates, jobs.updates)
}

func TestBriefServiceFailsEmptyScriptAndSweepRetries(t *testing.T) {
	ctx := context.Background()
	creatives := &memCreatives{items: map[string]*entity.SavedCreative{}}
	jobs := newMemJobs()
	seedCreative(t, creatives, "c1", &entity.Candidate{})
	jobID, err := newTestHandoff(creatives, jobs, nil).CreateFromEntity(ctx, "c1")
	require.NoError(t, err)

	svc := newTestBriefService(creatives, jobs)
	require.NoError(t, svc.Process(ctx, jobID))
	job, _ := jobs.GetByID(ctx, jobID)
	assert.Equal(t, entity.ProductionJobFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "no script content")

	// 修好内容后扫描重试
	fixed := seedCreative(t, creatives, "c1", briefCandidate())
	fixed.ProductionJobID = &jobID
	require.NoError(t, creatives.Upsert(ctx, fixed))

	n, err := svc.Sweep(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	job, _ = jobs.GetByID(ctx, jobID)
	assert.Equal(t, entity.ProductionJobBriefed, job.Status)
	assert.Equal(t, 1, job.RetryCount)
}

func TestBriefServiceSweepStopsAtRetryLimit(t *testing.T) {
	ctx := context.Background()
	creatives := &memCreatives{items: map[string]*entity.SavedCreative{}}
	jobs := newMemJobs()
	job := entity.NewProductionJob("j1", "gone", "u1", fixedNow)
	job.Fail("creative gone not found")
	job.RetryCount = DefaultMaxRetries
	require.NoError(t, jobs.Create(ctx, job))

	n, err := newTestBriefService(creatives, jobs).Sweep(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
	stored, _ := jobs.GetByID(ctx, "j1")
	assert.Equal(t, entity.ProductionJobFailed, stored.Status)
}

func TestBriefServicePreview(t *testing.T) {
	ctx := context.Background()
	creatives := &memCreatives{items: map[string]*entity.SavedCreative{}}
	jobs := newMemJobs()
	seedCreative(t, creatives, "c1", briefCandidate())
	svc := newTestBriefService(creatives, jobs)

	out, err := svc.Preview(ctx, "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "VIDEO EDITING BRIEF")
	assert.NotContains(t, out, "Due")

	_, err = svc.Preview(ctx, "nope")
	require.Error(t, err)
}

func TestHandoffSettle(t *testing.T) {
	ctx := context.Background()
	creatives := &memCreatives{items: map[string]*entity.SavedCreative{}}
	jobs := newMemJobs()
	seedCreative(t, creatives, "c1", briefCandidate())
	h := newTestHandoff(creatives, jobs, nil)
	jobID, err := h.CreateFromEntity(ctx, "c1")
	require.NoError(t, err)

	require.NoError(t, h.Settle(ctx, jobID, entity.ProductionJobCancelled))
	job, _ := jobs.GetByID(ctx, jobID)
	assert.Equal(t, entity.ProductionJobCancelled, job.Status)
	assert.Nil(t, job.DeliveredAt)

	// 归档后重新产出
	require.NoError(t, h.Settle(ctx, jobID, entity.ProductionJobDelivered))
	job, _ = jobs.GetByID(ctx, jobID)
	assert.Equal(t, entity.ProductionJobDelivered, job.Status)
	require.NotNil(t, job.DeliveredAt)
	assert.Equal(t, fixedNow, *job.DeliveredAt)

	// 交付后不再取消
	require.NoError(t, h.Settle(ctx, jobID, entity.ProductionJobCancelled))
	job, _ = jobs.GetByID(ctx, jobID)
	assert.Equal(t, entity.ProductionJobDelivered, job.Status)

	require.Error(t, h.Settle(ctx, jobID, entity.ProductionJobBriefed))
	assert.NoError(t, h.Settle(ctx, "missing", entity.ProductionJobDelivered))
}

func TestBriefServiceOverdue(t *testing.T) {
	ctx := context.Background()
	creatives := &memCreatives{items: map[string]*entity.SavedCreative{}}
	jobs := newMemJobs()

	pastDue := entity.NewProductionJob("late", "c1", "u1", fixedNow.Add(-50*time.Hour))
	pastDue.MarkBriefed("brief", fixedNow.Add(-49*time.Hour))
	notBriefed := entity.NewProductionJob("slow", "c2", "u1", fixedNow.Add(-5*time.Hour))
	fresh := entity.NewProductionJob("fresh", "c3", "u1", fixedNow.Add(-time.Hour))
	briefed := entity.NewProductionJob("briefed", "c4", "u1", fixedNow.Add(-10*time.Hour))
	briefed.MarkBriefed("brief", fixedNow.Add(-9*time.Hour))
	delivered := entity.NewProductionJob("done", "c5", "u1", fixedNow.Add(-60*time.Hour))
	delivered.MarkDelivered(fixedNow.Add(-time.Hour))
	for _, j := range []*entity.ProductionJob{pastDue, notBriefed, fresh, briefed, delivered} {
		require.NoError(t, jobs.Create(ctx, j))
	}

	svc := newTestBriefService(creatives, jobs)
	overdue, err := svc.Overdue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, "late", overdue[0].Job.ID)
	assert.Equal(t, "past due", overdue[0].Breach)
	assert.Equal(t, 2*time.Hour, overdue[0].Late)
	assert.Equal(t, "slow", overdue[1].Job.ID)
	assert.Equal(t, "not briefed within 4h", overdue[1].Breach)
	assert.Zero(t, overdue[1].Late)

	n, err := svc.SweepOverdue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
