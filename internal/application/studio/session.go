package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	jsonpatch "github.com/evanphx/json-patch"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/service"
)

// SessionOptions 会话参数
type SessionOptions struct {
	UndoDepth         int
	BeatSeconds       int
	MaxVariations     int
	RateLimitCooldown time.Duration
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.UndoDepth <= 0 {
		o.UndoDepth = DefaultUndoDepth
	}
	if o.BeatSeconds <= 0 {
		o.BeatSeconds = entity.DefaultBeatSeconds
	}
	if o.MaxVariations <= 0 || o.MaxVariations > entity.MaxVariations {
		o.MaxVariations = entity.MaxVariations
	}
	if o.RateLimitCooldown <= 0 {
		o.RateLimitCooldown = DefaultRateLimitCooldown
	}
	return o
}

// SessionDeps 会话依赖
type SessionDeps struct {
	Composer   *Composer
	Capability service.GenerationCapability
	Credits    service.CreditSource
	Usage      service.UsageRecorder
	Lifecycle  *Lifecycle
	Options    SessionOptions
}

// Session 一个用户的创作会话上下文。
// 外部调用期间不持有锁；同一时刻最多一个生成/精修/追加请求在途。
// 任何失败都不修改历史和编辑覆盖层。
type Session struct {
	ID     string
	UserID string

	composer   *Composer
	dispatcher *Dispatcher
	guard      *QuotaGuard
	lifecycle  *Lifecycle
	opts       SessionOptions

	mu         sync.Mutex
	config     entity.GenerationConfig
	history    *History
	selections map[int]int // 版本 seq -> 选中的变体下标
	overlays   map[overlayKey]*EditOverlay
	inFlight   bool
	lastErr    error
	replay     func(context.Context) error
	createdAt  time.Time
	lastUsed   time.Time
	now        func() time.Time
}

// NewSession 创建会话，cfg 需已通过校验
func NewSession(id, userID string, cfg entity.GenerationConfig, deps SessionDeps) *Session {
	opts := deps.Options.withDefaults()
	guard := NewQuotaGuard(userID, deps.Credits, opts.RateLimitCooldown)
	now := time.Now()
	return &Session{
		ID:     id,
		UserID: userID,
		dispatcher: NewDispatcher(deps.Capability, guard, DispatcherOptions{
			UserID:      userID,
			SessionID:   id,
			BeatSeconds: opts.BeatSeconds,
			Usage:       deps.Usage,
		}),
		composer:   deps.Composer,
		guard:      guard,
		lifecycle:  deps.Lifecycle,
		opts:       opts,
		config:     cfg,
		history:    NewHistory(),
		selections: make(map[int]int),
		overlays:   make(map[overlayKey]*EditOverlay),
		createdAt:  now,
		lastUsed:   now,
		now:        time.Now,
	}
}

// Guard 会话的配额守卫
func (s *Session) Guard() *QuotaGuard { return s.guard }

// Config 当前创作参数
func (s *Session) Config() entity.GenerationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// SetConfig 替换创作参数
func (s *Session) SetConfig(cfg entity.GenerationConfig) error {
	if err := s.composer.Validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	return nil
}

// Generate 按当前参数生成
func (s *Session) Generate(ctx context.Context) error {
	req, err := s.composer.Compose(s.Config())
	if err != nil {
		return err
	}
	return s.runGenerate(ctx, req)
}

func (s *Session) runGenerate(ctx context.Context, req *entity.GenerationRequest) error {
	if err := s.begin(); err != nil {
		return err
	}
	set, err := s.dispatcher.Dispatch(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		s.recordFailureLocked(err, func(ctx context.Context) error { return s.runGenerate(ctx, req) })
		return err
	}
	s.clearFailureLocked()
	s.overlays = make(map[overlayKey]*EditOverlay)
	entry := s.history.Append(VersionGeneration, set, "", 0)
	s.selections[entry.Seq] = 0
	return nil
}

// seed 写入起始版本，只在会话创建后、对外可见前调用
func (s *Session) seed(set *entity.VariationSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.history.Append(VersionRemix, set, "", 0)
	s.selections[entry.Seq] = 0
}

// RequestMoreVariations 以相同参数追加变体，总数不超过上限
func (s *Session) RequestMoreVariations(ctx context.Context) error {
	s.mu.Lock()
	cur := s.history.Current()
	if cur == nil {
		s.mu.Unlock()
		return invalid("variations", "generate before requesting more")
	}
	room := s.opts.MaxVariations - cur.Set.Len()
	cfg := s.config
	s.mu.Unlock()

	if room <= 0 {
		return invalid("variation_count", "already at the cap of %d variations", s.opts.MaxVariations)
	}
	cfg.VariationCount = min(cfg.VariationCount, room)
	req, err := s.composer.Compose(cfg)
	if err != nil {
		return err
	}
	return s.runExpand(ctx, cur, req)
}

func (s *Session) runExpand(ctx context.Context, base *VersionEntry, req *entity.GenerationRequest) error {
	if err := s.begin(); err != nil {
		return err
	}
	more, err := s.dispatcher.Expand(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		s.recordFailureLocked(err, func(ctx context.Context) error { return s.runExpand(ctx, base, req) })
		return err
	}
	s.clearFailureLocked()

	merged := base.Set.Clone()
	room := s.opts.MaxVariations - merged.Len()
	for _, c := range more.Candidates {
		if room <= 0 {
			break
		}
		merged.Candidates = append(merged.Candidates, c)
		room--
	}
	merged.Legacy = false
	merged.Clamping = merged.Clamping.Merge(more.Clamping)
	merged.RiskFlags = unionFlags(merged.RiskFlags, more.RiskFlags)

	sel := s.selectedLocked(base)
	entry := s.history.Append(VersionExpansion, merged, "", sel)
	s.selections[entry.Seq] = sel
	// 追加变体不替换内容，未保存的编辑随选中项迁移到新版本
	oldKey := overlayKey{seq: base.Seq, variation: sel}
	if o, ok := s.overlays[oldKey]; ok {
		delete(s.overlays, oldKey)
		o.key = overlayKey{seq: entry.Seq, variation: sel}
		s.overlays[o.key] = o
	}
	return nil
}

// Refine 按指令精修当前内容（含手工编辑），成功后追加一个版本
func (s *Session) Refine(ctx context.Context, instruction string) error {
	instruction = ResolveInstruction(instruction)
	if instruction == "" {
		return invalid("instruction", "must not be empty")
	}
	s.mu.Lock()
	cur := s.history.Current()
	if cur == nil {
		s.mu.Unlock()
		return invalid("candidate", "generate before refining")
	}
	cand := s.contentLocked(cur)
	target := s.config.TargetContext()
	s.mu.Unlock()

	return s.runRefine(ctx, cur, cand, instruction, target)
}

func (s *Session) runRefine(ctx context.Context, base *VersionEntry, cand *entity.Candidate, instruction string, target entity.TargetContext) error {
	if err := s.begin(); err != nil {
		return err
	}
	out, err := s.dispatcher.Refine(ctx, cand, instruction, target)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		s.recordFailureLocked(err, func(ctx context.Context) error {
			return s.runRefine(ctx, base, cand, instruction, target)
		})
		return err
	}
	s.clearFailureLocked()

	set := &entity.VariationSet{
		Candidates:      []*entity.Candidate{out},
		AppliedRiskTier: base.Set.AppliedRiskTier,
		RiskScore:       base.Set.RiskScore,
		RiskFlags:       base.Set.RiskFlags,
		Clamping:        base.Set.Clamping,
	}
	s.overlays = make(map[overlayKey]*EditOverlay)
	entry := s.history.Append(VersionRefinement, set, instruction, 0)
	s.selections[entry.Seq] = 0
	return nil
}

// Retry 显式重放最近一次失败的生成/精修/追加请求
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	replay, lastErr := s.replay, s.lastErr
	s.mu.Unlock()

	if replay == nil {
		if lastErr != nil {
			return ErrRetryUnavailable
		}
		return ErrNothingToRetry
	}
	return replay(ctx)
}

// DismissError 关闭错误提示，不影响重放
func (s *Session) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = nil
}

// SelectVariation 选择变体；切换到不同变体会丢弃上一个选中项未保存的编辑
func (s *Session) SelectVariation(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.history.Current()
	if cur == nil {
		return invalid("variation", "nothing generated yet")
	}
	if err := checkIndex("variation", i, cur.Set.Len()); err != nil {
		return err
	}
	prev := s.selectedLocked(cur)
	if prev == i {
		return nil
	}
	delete(s.overlays, overlayKey{seq: cur.Seq, variation: prev})
	s.selections[cur.Seq] = i
	return nil
}

// SwitchVersion 切换到历史中的某个版本，不删除任何版本
func (s *Session) SwitchVersion(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.history.SwitchTo(i)
	return err
}

// ApplyEdit 修改当前内容的一个区块
func (s *Session) ApplyEdit(sec SectionID, val SectionValue) error {
	return s.edit(func(o *EditOverlay) error { return o.ApplyEdit(sec, val) })
}

// MoveBeat 移动分镜
func (s *Session) MoveBeat(i int, dir Direction) error {
	return s.edit(func(o *EditOverlay) error { return o.MoveBeat(i, dir) })
}

// DeleteBeat 删除分镜
func (s *Session) DeleteBeat(i int) error {
	return s.edit(func(o *EditOverlay) error { return o.DeleteBeat(i) })
}

// AddBeat 追加分镜
func (s *Session) AddBeat(b entity.Beat) error {
	return s.edit(func(o *EditOverlay) error { o.AddBeat(b); return nil })
}

// AddBRoll 追加 B-roll
func (s *Session) AddBRoll(text string) error {
	return s.edit(func(o *EditOverlay) error { o.AddBRoll(text); return nil })
}

// DeleteBRoll 删除 B-roll
func (s *Session) DeleteBRoll(i int) error {
	return s.edit(func(o *EditOverlay) error { return o.DeleteBRoll(i) })
}

// AddOverlay 追加贴字
func (s *Session) AddOverlay(text string) error {
	return s.edit(func(o *EditOverlay) error { o.AddOverlay(text); return nil })
}

// DeleteOverlay 删除贴字
func (s *Session) DeleteOverlay(i int) error {
	return s.edit(func(o *EditOverlay) error { return o.DeleteOverlay(i) })
}

// Undo 撤销最近一次编辑；没有可撤销内容时返回 false
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.history.Current()
	if cur == nil {
		return false
	}
	o, ok := s.overlays[s.keyLocked(cur)]
	if !ok {
		return false
	}
	return o.Undo()
}

func (s *Session) edit(fn func(o *EditOverlay) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.history.Current()
	if cur == nil {
		return invalid("candidate", "generate before editing")
	}
	key := s.keyLocked(cur)
	o, ok := s.overlays[key]
	if !ok {
		o = newEditOverlay(key, cur.Set.At(key.variation), s.opts.UndoDepth, s.opts.BeatSeconds)
	}
	if err := fn(o); err != nil {
		return err
	}
	s.overlays[key] = o
	return nil
}

// Rescore 对当前内容显式重新评分
func (s *Session) Rescore(ctx context.Context) (*entity.Score, error) {
	s.mu.Lock()
	cur := s.history.Current()
	if cur == nil {
		s.mu.Unlock()
		return nil, invalid("candidate", "nothing to score")
	}
	key := s.keyLocked(cur)
	rev := s.revisionLocked(key)
	content := s.contentLocked(cur)
	target := s.config.TargetContext()
	s.mu.Unlock()

	score, err := s.dispatcher.Score(ctx, content, target)
	if err != nil {
		s.noteErr(err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revisionLocked(key) != rev {
		return nil, ErrStaleResult
	}
	o, ok := s.overlays[key]
	if !ok {
		o = newEditOverlay(key, content, s.opts.UndoDepth, s.opts.BeatSeconds)
		s.overlays[key] = o
	}
	o.SetScore(*score)
	return score, nil
}

// ImproveSection 让生成能力改写一个区块，结果作为一次可撤销的编辑应用
func (s *Session) ImproveSection(ctx context.Context, sec SectionID) (SectionValue, error) {
	s.mu.Lock()
	cur := s.history.Current()
	if cur == nil {
		s.mu.Unlock()
		return SectionValue{}, invalid("candidate", "generate before improving")
	}
	key := s.keyLocked(cur)
	rev := s.revisionLocked(key)
	content := s.contentLocked(cur)
	target := s.config.TargetContext()
	s.mu.Unlock()

	val, err := sectionOf(content, sec)
	if err != nil {
		return SectionValue{}, err
	}
	out, err := s.dispatcher.ImproveSection(ctx, service.SectionImproveInput{
		Kind:    sec.Kind,
		Text:    val.Text,
		Beat:    val.Beat,
		Context: target,
		Hook:    content.Hook,
	})
	if err != nil {
		s.noteErr(err)
		return SectionValue{}, err
	}
	next := SectionValue{Text: out.Text, Beat: out.Beat}

	s.mu.Lock()
	stale := s.revisionLocked(key) != rev
	if c := s.history.Current(); c == nil || s.keyLocked(c) != key {
		stale = true
	}
	s.mu.Unlock()
	if stale {
		return SectionValue{}, ErrStaleResult
	}
	if err := s.ApplyEdit(sec, next); err != nil {
		return SectionValue{}, err
	}
	return next, nil
}

// Save 保存当前内容为草稿，附带手工编辑的 merge patch
func (s *Session) Save(ctx context.Context, title string) (*entity.SavedCreative, error) {
	s.mu.Lock()
	cur := s.history.Current()
	if cur == nil {
		s.mu.Unlock()
		return nil, invalid("candidate", "nothing to save")
	}
	key := s.keyLocked(cur)
	content := s.contentLocked(cur)
	var patch json.RawMessage
	if o, ok := s.overlays[key]; ok {
		p, err := o.EditPatch()
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		patch = p
	}
	cfg := s.config
	flags := append([]string(nil), cur.Set.RiskFlags...)
	s.mu.Unlock()

	return s.lifecycle.CreateDraft(ctx, DraftInput{
		OwnerID:   s.UserID,
		Title:     title,
		Candidate: content,
		Config:    cfg,
		EditPatch: patch,
		RiskFlags: flags,
	})
}

// editPatch 计算手工编辑相对生成结果的 JSON merge patch，无差异返回 nil
func editPatch(original, edited *entity.Candidate) (json.RawMessage, error) {
	a, err := json.Marshal(original)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal original candidate: %w", err)
	}
	b, err := json.Marshal(edited)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal edited candidate: %w", err)
	}
	patch, err := jsonpatch.CreateMergePatch(a, b)
	if err != nil {
		return nil, fmt.Errorf("failed to diff candidate: %w", err)
	}
	if string(patch) == "{}" {
		return nil, nil
	}
	return patch, nil
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrGenerationInFlight
	}
	s.inFlight = true
	s.lastUsed = s.now()
	return nil
}

func (s *Session) recordFailureLocked(err error, replay func(context.Context) error) {
	s.lastErr = err
	s.replay = nil
	var valErr *ValidationError
	var de *DispatchError
	switch {
	case errors.Is(err, ErrGenerationInFlight), errors.As(err, &valErr):
	case errors.As(err, &de) && !de.Retryable():
	default:
		s.replay = replay
	}
}

func (s *Session) clearFailureLocked() {
	s.lastErr = nil
	s.replay = nil
}

func (s *Session) noteErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

func (s *Session) selectedLocked(e *VersionEntry) int {
	if sel, ok := s.selections[e.Seq]; ok {
		return sel
	}
	return e.Selected
}

func (s *Session) keyLocked(e *VersionEntry) overlayKey {
	return overlayKey{seq: e.Seq, variation: s.selectedLocked(e)}
}

// revisionLocked 覆盖层修订号，没有覆盖层时为 -1
func (s *Session) revisionLocked(key overlayKey) int {
	if o, ok := s.overlays[key]; ok {
		return o.revision
	}
	return -1
}

// contentLocked 当前内容：有覆盖层读覆盖层，否则读选中的候选
func (s *Session) contentLocked(e *VersionEntry) *entity.Candidate {
	key := s.keyLocked(e)
	if o, ok := s.overlays[key]; ok {
		return o.Content()
	}
	return e.Set.At(key.variation).Clone()
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.now()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func unionFlags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, f := range append(append([]string(nil), a...), b...) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
