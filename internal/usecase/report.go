package usecase

import (
	"time"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/config"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
)

// BuildReport aggregates a session into its report. It works on whatever
// turns exist, so a failed session still yields a partial report with the
// failure recorded. Unverifiable turns are counted but never averaged.
func BuildReport(s *domain.Session, pol config.InterviewPolicy, now time.Time) *domain.Report {
	r := &domain.Report{
		SessionID:         s.ID,
		Phase:             s.Phase,
		Failed:            s.Phase == domain.PhaseFailed,
		FailReason:        s.FailReason,
		DimensionAverages: map[domain.Dimension]float64{},
		GeneratedAt:       now.UTC(),
	}
	if s.Gaps != nil {
		r.MatchScore = s.Gaps.MatchScore
	}

	for _, q := range s.Plan {
		r.Questions = append(r.Questions, domain.QuestionResult{
			Question: q,
			Turns:    s.TurnsFor(q.ID),
		})
	}

	sums := map[domain.Dimension]float64{}
	var weightSum float64
	for _, t := range s.Turns {
		if t.Score.Unverifiable {
			r.UnverifiableTurns++
			continue
		}
		if len(t.Score.Dimensions) == 0 {
			continue
		}
		w := 1.0
		if t.Kind == domain.TurnFollowUp {
			w = pol.FollowUpWeight
		}
		for _, dim := range domain.Dimensions {
			sums[dim] += w * float64(t.Score.Dimensions[dim].Value)
		}
		weightSum += w
	}
	if weightSum > 0 {
		var total float64
		for _, dim := range domain.Dimensions {
			avg := sums[dim] / weightSum
			r.DimensionAverages[dim] = avg
			total += avg
		}
		r.OverallMean = total / float64(len(domain.Dimensions))
	}

	switch {
	case r.Failed && weightSum == 0:
		// Nothing scored; a failed session with no evidence cannot be
		// recommended either way.
		r.Recommendation = domain.RecommendReject
	case r.OverallMean >= pol.HireBand:
		r.Recommendation = domain.RecommendHire
	case r.OverallMean >= pol.ConsiderBand:
		r.Recommendation = domain.RecommendConsider
	default:
		r.Recommendation = domain.RecommendReject
	}
	return r
}
