package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreativeStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to CreativeStatus
		ok       bool
	}{
		{CreativeStatusDraft, CreativeStatusApproved, true},
		{CreativeStatusApproved, CreativeStatusProduced, true},
		{CreativeStatusProduced, CreativeStatusPosted, true},
		{CreativeStatusDraft, CreativeStatusPosted, true},
		{CreativeStatusPosted, CreativeStatusArchived, true},
		{CreativeStatusArchived, CreativeStatusApproved, true},
		{CreativeStatusArchived, CreativeStatusDraft, true},
		{CreativeStatusApproved, CreativeStatusApproved, true},
		{CreativeStatusPosted, CreativeStatusDraft, false},
		{CreativeStatusProduced, CreativeStatusApproved, false},
		{CreativeStatusDraft, CreativeStatus("published"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestNewSavedCreativeRoundTrip(t *testing.T) {
	cfg := DefaultGenerationConfig()
	cfg.Target = TargetRef{ProductName: "Glow Serum", Brand: "Lumi"}
	cand := sampleCandidate()

	sc, err := NewSavedCreative("c-1", "u-1", "Serum skit", cand, cfg)
	require.NoError(t, err)
	assert.Equal(t, CreativeStatusDraft, sc.Status)
	assert.Equal(t, "Glow Serum", sc.ProductName)
	require.NotNil(t, sc.OverallScore)
	assert.False(t, sc.HasHandoff())

	back, err := sc.DecodeCandidate()
	require.NoError(t, err)
	assert.Equal(t, cand.Hook, back.Hook)
	assert.Equal(t, cand.Beats, back.Beats)
	assert.True(t, back.Scoring.IsScored())

	backCfg, err := sc.DecodeConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, *backCfg)
}

func TestSetRating(t *testing.T) {
	sc := &SavedCreative{}
	assert.Error(t, sc.SetRating(0, ""))
	assert.Error(t, sc.SetRating(6, ""))
	require.NoError(t, sc.SetRating(4, "great hook"))
	assert.Equal(t, 4, *sc.Rating)
	assert.Equal(t, "great hook", sc.Feedback)
}
