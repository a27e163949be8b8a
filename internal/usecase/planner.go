package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/config"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
)

// Planner turns a gap analysis into the fixed interview plan. The model
// proposes questions; the planner owns the structural policy: a rapport
// opener, gap-linked questions ordered by probe priority, an open closer,
// and the configured count window.
type Planner struct {
	Gateway domain.ModelGateway
	Policy  config.InterviewPolicy
}

// NewPlanner constructs a Planner.
func NewPlanner(gw domain.ModelGateway, pol config.InterviewPolicy) Planner {
	return Planner{Gateway: gw, Policy: pol}
}

// planAttempts bounds re-asks when the model under-delivers on count or
// omits a required anchor question.
const planAttempts = 2

// Plan requests and normalizes the interview plan. A proposal missing an
// anchor, or staying below the minimum after normalization, counts as a
// failed attempt; once the attempts are spent the stage fails like any
// exhausted gateway call. The planner reorders and trims, it never writes
// questions of its own.
func (p Planner) Plan(ctx context.Context, cv domain.CVProfile, jd domain.JDProfile, gaps domain.GapAnalysis) ([]domain.Question, error) {
	req := domain.PlanRequest{
		CV:           cv,
		JD:           jd,
		Gaps:         gaps,
		MinQuestions: p.Policy.MinQuestions,
		MaxQuestions: p.Policy.MaxQuestions,
	}
	var lastErr error
	for attempt := 0; attempt < planAttempts; attempt++ {
		raw, err := p.Gateway.Invoke(ctx, domain.TaskGenerateQs, req)
		if err != nil {
			return nil, err
		}
		res, err := domain.DecodeResult(domain.TaskGenerateQs, raw)
		if err != nil {
			lastErr = err
			continue
		}
		plan, err := p.normalize(res.(*domain.PlanResult).Questions, gaps)
		if err != nil {
			lastErr = err
			continue
		}
		if len(plan) < p.Policy.MinQuestions {
			lastErr = fmt.Errorf("%w: plan has %d questions, need at least %d",
				domain.ErrSchemaInvalid, len(plan), p.Policy.MinQuestions)
			continue
		}
		return plan, nil
	}
	return nil, fmt.Errorf("op=planner.plan: %w: %v", domain.ErrGatewayExhausted, lastErr)
}

// normalize applies the structural policy to the model's proposal:
// slot 0 is a rapport question with no gap link, matched-skill questions
// come before missing/probe questions, probes sort by descending priority
// (stable within a priority), and the final slot is an open question.
// Over-long proposals are trimmed from the middle so both anchors survive.
// A proposal without both anchors is rejected; only the model writes
// question text.
func (p Planner) normalize(proposed []domain.PlannedQuestion, gaps domain.GapAnalysis) ([]domain.Question, error) {
	var rapport *domain.PlannedQuestion
	var open *domain.PlannedQuestion
	var middle []domain.PlannedQuestion
	for i := range proposed {
		q := proposed[i]
		switch {
		case q.Category == domain.CategoryRapport && rapport == nil:
			q.GapLink = domain.GapLinkNone
			rapport = &q
		case q.Category == domain.CategoryOpen && open == nil:
			q.GapLink = domain.GapLinkNone
			open = &q
		default:
			middle = append(middle, q)
		}
	}
	if rapport == nil || open == nil {
		return nil, fmt.Errorf("%w: proposal lacks a rapport opener or an open closer", domain.ErrSchemaInvalid)
	}

	prio := probePriorities(gaps)
	sort.SliceStable(middle, func(i, j int) bool {
		return middleRank(middle[i], prio) < middleRank(middle[j], prio)
	})

	if max := p.Policy.MaxQuestions - 2; len(middle) > max {
		middle = middle[:max]
	}

	plan := make([]domain.Question, 0, len(middle)+2)
	appendQ := func(q domain.PlannedQuestion) {
		plan = append(plan, domain.Question{
			ID:               len(plan),
			Text:             q.Text,
			Category:         q.Category,
			TargetCompetency: q.TargetCompetency,
			RubricGuide:      q.RubricGuide,
			FollowUpHint:     q.FollowUpHint,
			GapLink:          q.GapLink,
		})
	}
	appendQ(*rapport)
	for _, q := range middle {
		appendQ(q)
	}
	appendQ(*open)
	return plan, nil
}

// middleRank orders the gap-linked block: matched first, then missing and
// probe questions by the priority of the probe area they target. Unlinked
// stragglers sort last.
func middleRank(q domain.PlannedQuestion, prio map[string]domain.Priority) int {
	switch q.GapLink {
	case domain.GapLinkMatched:
		return 0
	case domain.GapLinkMissing, domain.GapLinkProbe:
		if p, ok := prio[q.TargetCompetency]; ok {
			return 1 + p.Rank()
		}
		return 1 + domain.PriorityMedium.Rank()
	default:
		return 10
	}
}

func probePriorities(gaps domain.GapAnalysis) map[string]domain.Priority {
	m := make(map[string]domain.Priority, len(gaps.ProbeAreas))
	for _, p := range gaps.ProbeAreas {
		m[p.Skill] = p.Priority
	}
	return m
}
