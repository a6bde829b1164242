package studio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashflow-studio/internal/domain/service"
)

func TestQuotaGuardUnknownBalanceAllows(t *testing.T) {
	g := newTestGuard(newFakeClock(), nil)

	for i := 0; i < 3; i++ {
		assert.True(t, g.CheckAndReserve().Allowed)
	}
	assert.False(t, g.Status().Known)
}

func TestQuotaGuardNoCredits(t *testing.T) {
	g := newTestGuard(newFakeClock(), nil)
	g.Apply(service.CreditBalance{Remaining: 1})

	require.True(t, g.CheckAndReserve().Allowed)
	d := g.CheckAndReserve()
	assert.False(t, d.Allowed)
	assert.Equal(t, DenialNoCredits, d.Reason)

	var qe *QuotaDeniedError
	require.ErrorAs(t, d.Err(), &qe)
	assert.Equal(t, UpgradeHint, qe.Error())

	g.Release()
	assert.True(t, g.CheckAndReserve().Allowed)
}

func TestQuotaGuardUnlimited(t *testing.T) {
	g := newTestGuard(newFakeClock(), nil)
	g.Apply(service.CreditBalance{Unlimited: true})

	for i := 0; i < 10; i++ {
		assert.True(t, g.CheckAndReserve().Allowed)
	}
}

func TestQuotaGuardRateLimitCooldown(t *testing.T) {
	clock := newFakeClock()
	g := newTestGuard(clock, nil)

	left := g.NoteRateLimited(0)
	assert.Equal(t, 30*time.Second, left)

	clock.Advance(10 * time.Second)
	d := g.CheckAndReserve()
	assert.False(t, d.Allowed)
	assert.Equal(t, DenialRateLimited, d.Reason)
	assert.Equal(t, 20*time.Second, d.RetryAfter)
	assert.False(t, g.CheckCooldown().Allowed)

	clock.Advance(20 * time.Second)
	assert.True(t, g.CheckAndReserve().Allowed)
	assert.Zero(t, g.Status().CooldownRemaining)
}

func TestQuotaGuardRateLimitUsesRetryAfter(t *testing.T) {
	clock := newFakeClock()
	g := newTestGuard(clock, nil)

	assert.Equal(t, 5*time.Second, g.NoteRateLimited(5*time.Second))
	// 更长的截止时间不会被更短的覆盖
	assert.Equal(t, 60*time.Second, g.NoteRateLimited(60*time.Second))
	assert.Equal(t, 60*time.Second, g.NoteRateLimited(2*time.Second))
}

func TestQuotaGuardQuotaExceeded(t *testing.T) {
	g := newTestGuard(newFakeClock(), nil)
	g.Apply(service.CreditBalance{Remaining: 7})

	g.NoteQuotaExceeded()
	st := g.Status()
	assert.True(t, st.Known)
	assert.Zero(t, st.Remaining)
	assert.False(t, g.CheckAndReserve().Allowed)
}

func TestQuotaGuardRefreshOverwritesLocalGuess(t *testing.T) {
	src := &fakeCredits{balance: service.CreditBalance{Remaining: 12}}
	g := newTestGuard(newFakeClock(), src)
	g.NoteQuotaExceeded()

	<-g.RefreshAsync(context.Background())

	st := g.Status()
	assert.Equal(t, 12, st.Remaining)
	assert.Equal(t, 1, src.calls)
	assert.True(t, g.CheckAndReserve().Allowed)
}

func TestQuotaGuardRefreshErrorKeepsState(t *testing.T) {
	src := &fakeCredits{err: errors.New("redis down")}
	g := newTestGuard(newFakeClock(), src)
	g.Apply(service.CreditBalance{Remaining: 2})

	require.Error(t, g.Refresh(context.Background()))
	assert.Equal(t, 2, g.Status().Remaining)
}
