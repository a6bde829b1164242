package studio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/service"
)

func composeTest(t *testing.T, count int) *entity.GenerationRequest {
	t.Helper()
	cfg := testConfig()
	cfg.VariationCount = count
	req, err := testComposer().Compose(cfg)
	require.NoError(t, err)
	return req
}

func TestDispatchSortsBestFirst(t *testing.T) {
	clock := newFakeClock()
	capability := &mockCapability{}
	set := testSet(3)
	set.Candidates[0], set.Candidates[2] = set.Candidates[2], set.Candidates[0]
	capability.On("Generate", mock.Anything, mock.Anything).Return(&service.GenerateResult{Set: set}, nil)

	usage := &recordedUsage{}
	d := newTestDispatcher(capability, newTestGuard(clock, nil), clock)
	d.usage = usage

	out, err := d.Dispatch(context.Background(), composeTest(t, 3))
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, "hook 0", out.At(0).Hook)
	assert.Equal(t, "hook 2", out.At(2).Hook)
	assert.False(t, out.Legacy)
	require.Len(t, usage.inputs, 1)
	assert.Equal(t, opGenerate, usage.inputs[0].Operation)
	assert.Equal(t, 3, usage.inputs[0].Variations)
	assert.NotNil(t, d.LastRequest())
}

func TestDispatchLegacySingleResult(t *testing.T) {
	clock := newFakeClock()
	capability := &mockCapability{}
	single := testCandidate("legacy", 7, 2)
	capability.On("Generate", mock.Anything, mock.Anything).Return(&service.GenerateResult{Single: single}, nil)

	req := composeTest(t, 3)
	out, err := newTestDispatcher(capability, newTestGuard(clock, nil), clock).Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
	assert.True(t, out.Legacy)
	assert.Equal(t, entity.RiskTierBalanced, out.AppliedRiskTier)
}

func TestDispatchCountMismatchFails(t *testing.T) {
	clock := newFakeClock()
	capability := &mockCapability{}
	capability.On("Generate", mock.Anything, mock.Anything).Return(&service.GenerateResult{Set: testSet(2)}, nil)

	guard := newTestGuard(clock, nil)
	guard.Apply(service.CreditBalance{Remaining: 5})
	_, err := newTestDispatcher(capability, guard, clock).Dispatch(context.Background(), composeTest(t, 3))

	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, service.KindGenerationFailure, de.Kind)
	// 失败归还预扣额度
	assert.Equal(t, 5, guard.Status().Remaining)
}

func TestDispatchRetimesBrokenSpans(t *testing.T) {
	clock := newFakeClock()
	capability := &mockCapability{}
	set := testSet(1)
	set.Candidates[0].Beats[1].Span = entity.TimeSpan{Start: 40, End: 41}
	capability.On("Generate", mock.Anything, mock.Anything).Return(&service.GenerateResult{Set: set}, nil)

	out, err := newTestDispatcher(capability, newTestGuard(clock, nil), clock).Dispatch(context.Background(), composeTest(t, 1))
	require.NoError(t, err)
	beats := out.At(0).Beats
	assert.Equal(t, entity.TimeSpan{Start: 5, End: 10}, beats[1].Span)
}

func TestDispatchRejectsCandidateWithoutBeats(t *testing.T) {
	clock := newFakeClock()
	capability := &mockCapability{}
	set := testSet(1)
	set.Candidates[0].Beats = nil
	capability.On("Generate", mock.Anything, mock.Anything).Return(&service.GenerateResult{Set: set}, nil)

	_, err := newTestDispatcher(capability, newTestGuard(clock, nil), clock).Dispatch(context.Background(), composeTest(t, 1))
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, service.KindGenerationFailure, de.Kind)
}

func TestDispatchClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      service.ErrorKind
		retryable bool
	}{
		{"unauthorized", &service.CapabilityError{Kind: service.KindUnauthorized, Message: "expired"}, service.KindUnauthorized, false},
		{"validation", &service.CapabilityError{Kind: service.KindValidation, Message: "bad"}, service.KindValidation, false},
		{"network", &service.CapabilityError{Kind: service.KindNetwork, Message: "reset"}, service.KindNetwork, true},
		{"deadline", context.DeadlineExceeded, service.KindNetwork, true},
		{"unknown", errors.New("boom"), service.KindInternal, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			capability := &mockCapability{}
			capability.On("Generate", mock.Anything, mock.Anything).Return(nil, tt.err)

			_, err := newTestDispatcher(capability, newTestGuard(clock, nil), clock).Dispatch(context.Background(), composeTest(t, 1))
			var de *DispatchError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.kind, de.Kind)
			assert.Equal(t, tt.retryable, de.Retryable())
		})
	}
}

func TestDispatchAbsorbsRateLimit(t *testing.T) {
	clock := newFakeClock()
	capability := &mockCapability{}
	capability.On("Generate", mock.Anything, mock.Anything).
		Return(nil, &service.CapabilityError{Kind: service.KindRateLimited, Message: "slow down"}).Once()

	guard := newTestGuard(clock, nil)
	d := newTestDispatcher(capability, guard, clock)

	_, err := d.Dispatch(context.Background(), composeTest(t, 1))
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 30*time.Second, de.RetryAfter)

	// 冷却期内不再发出请求
	clock.Advance(10 * time.Second)
	_, err = d.Dispatch(context.Background(), composeTest(t, 1))
	var qe *QuotaDeniedError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, DenialRateLimited, qe.Reason)
	assert.Equal(t, 20*time.Second, qe.RetryAfter)
	capability.AssertNumberOfCalls(t, "Generate", 1)

	_, err = d.Score(context.Background(), testCandidate("x", -1, 1), entity.TargetContext{})
	require.ErrorAs(t, err, &qe)
}

func TestDispatchAbsorbsQuotaExceeded(t *testing.T) {
	clock := newFakeClock()
	capability := &mockCapability{}
	capability.On("Generate", mock.Anything, mock.Anything).
		Return(nil, &service.CapabilityError{Kind: service.KindQuotaExceeded, Message: "out of credits"}).Once()

	guard := newTestGuard(clock, nil)
	guard.Apply(service.CreditBalance{Remaining: 3})
	d := newTestDispatcher(capability, guard, clock)

	_, err := d.Dispatch(context.Background(), composeTest(t, 1))
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, service.KindQuotaExceeded, de.Kind)
	assert.Zero(t, guard.Status().Remaining)

	_, err = d.Dispatch(context.Background(), composeTest(t, 1))
	var qe *QuotaDeniedError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, DenialNoCredits, qe.Reason)
	capability.AssertNumberOfCalls(t, "Generate", 1)
}

func TestRefineRequiresInstruction(t *testing.T) {
	clock := newFakeClock()
	capability := &mockCapability{}
	d := newTestDispatcher(capability, newTestGuard(clock, nil), clock)

	_, err := d.Refine(context.Background(), testCandidate("x", 5, 2), "   ", entity.TargetContext{})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	capability.AssertNotCalled(t, "Refine")
}

func TestScoreNormalizes(t *testing.T) {
	clock := newFakeClock()
	capability := &mockCapability{}
	capability.On("Score", mock.Anything, mock.Anything, mock.Anything).
		Return(&entity.Score{HookStrength: 11, Humor: 8, Virality: 8, Authenticity: 8, ProductIntegration: 8, AudienceFit: 8, Clarity: 8}, nil)

	s, err := newTestDispatcher(capability, newTestGuard(clock, nil), clock).
		Score(context.Background(), testCandidate("x", -1, 2), entity.TargetContext{})
	require.NoError(t, err)
	assert.Equal(t, 10.0, s.HookStrength)
	assert.InDelta(t, 8.3, s.Overall, 0.001)
}

func TestImproveSectionValidatesShape(t *testing.T) {
	clock := newFakeClock()
	capability := &mockCapability{}
	capability.On("ImproveSection", mock.Anything, mock.Anything).Return(&service.SectionImproveResult{Text: "new"}, nil)
	d := newTestDispatcher(capability, newTestGuard(clock, nil), clock)

	b := entity.Beat{Action: "a"}
	_, err := d.ImproveSection(context.Background(), service.SectionImproveInput{Kind: service.SectionBeat, Beat: &b})
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, service.KindGenerationFailure, de.Kind)

	out, err := d.ImproveSection(context.Background(), service.SectionImproveInput{Kind: service.SectionHook, Text: "old"})
	require.NoError(t, err)
	assert.Equal(t, "new", out.Text)
}

func TestResolveInstruction(t *testing.T) {
	assert.Equal(t, InstructionMakeFunnier, ResolveInstruction("make_funnier"))
	assert.Equal(t, "shorter please", ResolveInstruction("  shorter please "))
	assert.Len(t, CannedInstructions(), 4)
}

func TestRefineRecordsUsage(t *testing.T) {
	clock := newFakeClock()
	capability := &mockCapability{}
	capability.On("Refine", mock.Anything, mock.Anything, "make funnier", mock.Anything).Return(&service.RefineResult{
		Candidate: testCandidate("funnier", -1, 2),
		Usage:     &service.CallUsage{Provider: "openai", Model: "gpt-4o", PromptTokens: 120, CompletionTokens: 80},
	}, nil)

	usage := &recordedUsage{}
	d := newTestDispatcher(capability, newTestGuard(clock, nil), clock)
	d.usage = usage

	out, err := d.Refine(context.Background(), testCandidate("x", 5, 2), "make funnier", entity.TargetContext{})
	require.NoError(t, err)
	assert.Equal(t, "funnier", out.Hook)
	require.Len(t, usage.inputs, 1)
	assert.Equal(t, opRefine, usage.inputs[0].Operation)
	assert.Equal(t, "gpt-4o", usage.inputs[0].Model)
	assert.Equal(t, 120, usage.inputs[0].PromptTokens)
	assert.Equal(t, 80, usage.inputs[0].CompletionTokens)
}

func TestRefineEmptyResultIsGenerationFailure(t *testing.T) {
	clock := newFakeClock()
	capability := &mockCapability{}
	capability.On("Refine", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&service.RefineResult{}, nil)

	_, err := newTestDispatcher(capability, newTestGuard(clock, nil), clock).
		Refine(context.Background(), testCandidate("x", 5, 2), "make funnier", entity.TargetContext{})
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, service.KindGenerationFailure, de.Kind)
}
