package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/config"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
)

func uniformScore(v int) domain.Score {
	dims := map[domain.Dimension]domain.DimensionScore{}
	for _, d := range domain.Dimensions {
		dims[d] = domain.DimensionScore{Value: v, Quote: "q", Reasoning: "r"}
	}
	return domain.Score{Dimensions: dims}
}

func reportSession(turns ...domain.Turn) *domain.Session {
	return &domain.Session{
		ID:    "s1",
		Phase: domain.PhaseComplete,
		Gaps:  &domain.GapAnalysis{MatchScore: 72},
		Plan: []domain.Question{
			{ID: 0, Text: "q0", Category: domain.CategoryRapport},
			{ID: 1, Text: "q1", Category: domain.CategoryTechnical},
		},
		Turns: turns,
	}
}

func TestBuildReportAverages(t *testing.T) {
	t.Parallel()
	s := reportSession(
		domain.Turn{QuestionID: 0, Kind: domain.TurnPrimary, Score: uniformScore(5)},
		domain.Turn{QuestionID: 1, Kind: domain.TurnPrimary, Score: uniformScore(3)},
	)
	r := BuildReport(s, config.DefaultPolicy(), time.Now())

	assert.InDelta(t, 4.0, r.OverallMean, 1e-9)
	for _, d := range domain.Dimensions {
		assert.InDelta(t, 4.0, r.DimensionAverages[d], 1e-9)
	}
	assert.Equal(t, domain.RecommendHire, r.Recommendation)
	assert.InDelta(t, 72.0, r.MatchScore, 1e-9)
	assert.False(t, r.Failed)
	require.Len(t, r.Questions, 2)
	assert.Len(t, r.Questions[0].Turns, 1)
}

func TestBuildReportFollowUpWeight(t *testing.T) {
	t.Parallel()
	pol := config.DefaultPolicy()
	pol.FollowUpWeight = 0.5
	s := reportSession(
		domain.Turn{QuestionID: 0, Kind: domain.TurnPrimary, Score: uniformScore(2)},
		domain.Turn{QuestionID: 0, Kind: domain.TurnFollowUp, Score: uniformScore(4)},
	)
	r := BuildReport(s, pol, time.Now())
	// (2*1.0 + 4*0.5) / 1.5
	assert.InDelta(t, 8.0/3.0, r.OverallMean, 1e-9)
}

func TestBuildReportSkipsUnverifiableTurns(t *testing.T) {
	t.Parallel()
	s := reportSession(
		domain.Turn{QuestionID: 0, Kind: domain.TurnPrimary, Score: uniformScore(4)},
		domain.Turn{QuestionID: 1, Kind: domain.TurnPrimary, Score: domain.Score{Unverifiable: true}},
	)
	r := BuildReport(s, config.DefaultPolicy(), time.Now())
	assert.Equal(t, 1, r.UnverifiableTurns)
	assert.InDelta(t, 4.0, r.OverallMean, 1e-9)
}

func TestBuildReportRecommendationBands(t *testing.T) {
	t.Parallel()
	cases := []struct {
		score int
		want  domain.Recommendation
	}{
		{5, domain.RecommendHire},
		{4, domain.RecommendHire},
		{3, domain.RecommendConsider},
		{2, domain.RecommendReject},
	}
	for _, tc := range cases {
		s := reportSession(domain.Turn{QuestionID: 0, Kind: domain.TurnPrimary, Score: uniformScore(tc.score)})
		r := BuildReport(s, config.DefaultPolicy(), time.Now())
		assert.Equal(t, tc.want, r.Recommendation, "score %d", tc.score)
	}
}

func TestBuildReportPartialOnFailure(t *testing.T) {
	t.Parallel()
	s := reportSession(domain.Turn{QuestionID: 0, Kind: domain.TurnPrimary, Score: uniformScore(4)})
	s.Phase = domain.PhaseFailed
	s.FailReason = "gateway exhausted"
	r := BuildReport(s, config.DefaultPolicy(), time.Now())
	assert.True(t, r.Failed)
	assert.Equal(t, "gateway exhausted", r.FailReason)
	// Scored turns still aggregate on a failed session.
	assert.InDelta(t, 4.0, r.OverallMean, 1e-9)
	assert.Equal(t, domain.RecommendHire, r.Recommendation)
}

func TestBuildReportNoScoredTurns(t *testing.T) {
	t.Parallel()
	s := reportSession()
	s.Phase = domain.PhaseFailed
	r := BuildReport(s, config.DefaultPolicy(), time.Now())
	assert.Zero(t, r.OverallMean)
	assert.Equal(t, domain.RecommendReject, r.Recommendation)
}
