package studio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/repository"
)

func saveDraft(t *testing.T, l *Lifecycle) *entity.SavedCreative {
	t.Helper()
	c, err := l.CreateDraft(context.Background(), DraftInput{
		OwnerID:   "u1",
		Title:     "Serum skit",
		Candidate: testCandidate("hook", 8, 3),
		Config:    testConfig(),
		RiskFlags: []string{"mild_language"},
	})
	require.NoError(t, err)
	return c
}

func TestLifecycleSingleHandoff(t *testing.T) {
	ctx := context.Background()
	handoff := &countingHandoff{}
	l := NewLifecycle(newMemCreativeRepo(), handoff)
	c := saveDraft(t, l)
	assert.Equal(t, []string{"mild_language"}, []string(c.RiskFlags))

	out, err := l.Transition(ctx, "u1", c.ID, entity.CreativeStatusApproved)
	require.NoError(t, err)
	require.NotNil(t, out.ProductionJobID)
	assert.Equal(t, "job-1", *out.ProductionJobID)

	_, err = l.Transition(ctx, "u1", c.ID, entity.CreativeStatusArchived)
	require.NoError(t, err)
	out, err = l.Transition(ctx, "u1", c.ID, entity.CreativeStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, entity.CreativeStatusApproved, out.Status)

	assert.Len(t, handoff.calls, 1)
}

func TestLifecycleSettlesProductionJob(t *testing.T) {
	ctx := context.Background()
	handoff := &countingHandoff{}
	l := NewLifecycle(newMemCreativeRepo(), handoff)
	c := saveDraft(t, l)

	_, err := l.Transition(ctx, "u1", c.ID, entity.CreativeStatusApproved)
	require.NoError(t, err)
	assert.Empty(t, handoff.settled)

	_, err = l.Transition(ctx, "u1", c.ID, entity.CreativeStatusProduced)
	require.NoError(t, err)
	_, err = l.Transition(ctx, "u1", c.ID, entity.CreativeStatusProduced)
	require.NoError(t, err)
	_, err = l.Transition(ctx, "u1", c.ID, entity.CreativeStatusArchived)
	require.NoError(t, err)

	assert.Equal(t, []string{"job-1:delivered", "job-1:cancelled"}, handoff.settled)
}

func TestLifecycleArchiveWithoutJobSettlesNothing(t *testing.T) {
	ctx := context.Background()
	handoff := &countingHandoff{}
	l := NewLifecycle(newMemCreativeRepo(), handoff)
	c := saveDraft(t, l)

	_, err := l.Transition(ctx, "u1", c.ID, entity.CreativeStatusArchived)
	require.NoError(t, err)
	assert.Empty(t, handoff.settled)
}

func TestLifecycleSettleFailureKeepsStatus(t *testing.T) {
	ctx := context.Background()
	repo := newMemCreativeRepo()
	handoff := &countingHandoff{}
	l := NewLifecycle(repo, handoff)
	c := saveDraft(t, l)
	_, err := l.Transition(ctx, "u1", c.ID, entity.CreativeStatusApproved)
	require.NoError(t, err)

	handoff.settleErr = errors.New("connection reset")
	_, err = l.Transition(ctx, "u1", c.ID, entity.CreativeStatusArchived)
	require.Error(t, err)

	stored, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.CreativeStatusApproved, stored.Status)
}

func TestLifecycleRejectsBackwardMove(t *testing.T) {
	ctx := context.Background()
	l := NewLifecycle(newMemCreativeRepo(), &countingHandoff{})
	c := saveDraft(t, l)

	_, err := l.Transition(ctx, "u1", c.ID, entity.CreativeStatusPosted)
	require.NoError(t, err)

	_, err = l.Transition(ctx, "u1", c.ID, entity.CreativeStatusDraft)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = l.Transition(ctx, "u1", c.ID, "deleted")
	require.ErrorAs(t, err, &ve)
}

func TestLifecycleSkipPastApprovedHasNoHandoff(t *testing.T) {
	ctx := context.Background()
	handoff := &countingHandoff{}
	l := NewLifecycle(newMemCreativeRepo(), handoff)
	c := saveDraft(t, l)

	out, err := l.Transition(ctx, "u1", c.ID, entity.CreativeStatusProduced)
	require.NoError(t, err)
	assert.Nil(t, out.ProductionJobID)
	assert.Empty(t, handoff.calls)
}

func TestLifecycleHandoffFailureKeepsStatus(t *testing.T) {
	ctx := context.Background()
	repo := newMemCreativeRepo()
	l := NewLifecycle(repo, &countingHandoff{err: errors.New("queue unavailable")})
	c := saveDraft(t, l)

	_, err := l.Transition(ctx, "u1", c.ID, entity.CreativeStatusApproved)
	require.Error(t, err)

	stored, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.CreativeStatusDraft, stored.Status)
}

func TestLifecycleOwnership(t *testing.T) {
	ctx := context.Background()
	l := NewLifecycle(newMemCreativeRepo(), &countingHandoff{})
	c := saveDraft(t, l)

	_, err := l.Get(ctx, "someone-else", c.ID)
	assert.ErrorIs(t, err, ErrCreativeNotFound)
	_, err = l.Transition(ctx, "someone-else", c.ID, entity.CreativeStatusApproved)
	assert.ErrorIs(t, err, ErrCreativeNotFound)

	page, err := l.List(ctx, "u1", &repository.CreativeFilter{Status: entity.CreativeStatusDraft}, repository.NewPagination(1, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
}

func TestLifecycleRate(t *testing.T) {
	ctx := context.Background()
	l := NewLifecycle(newMemCreativeRepo(), &countingHandoff{})
	c := saveDraft(t, l)

	out, err := l.Rate(ctx, "u1", c.ID, 4, " punchy ")
	require.NoError(t, err)
	require.NotNil(t, out.Rating)
	assert.Equal(t, 4, *out.Rating)
	assert.Equal(t, "punchy", out.Feedback)

	_, err = l.Rate(ctx, "u1", c.ID, 9, "")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}
