// Package stub provides a deterministic in-process ModelGateway for
// development and tests. Responses are derived from the request payload so
// downstream evidence validation passes without a live model provider.
package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
)

// Gateway answers every task immediately with a schema-valid payload.
type Gateway struct{}

// New returns a stub gateway.
func New() *Gateway { return &Gateway{} }

// Invoke fabricates a deterministic response for task and validates it
// through the same schema path as the real gateway.
func (g *Gateway) Invoke(_ context.Context, task domain.GatewayTask, payload any) (json.RawMessage, error) {
	var res any
	switch task {
	case domain.TaskExtractCV:
		req := as[domain.ExtractRequest](payload)
		res = domain.CVExtractResult{CVProfile: domain.CVProfile{
			Name:            "Sample Candidate",
			Skills:          keywords(req.Text, []string{"Go", "Python", "SQL", "Kubernetes", "Kafka"}),
			ExperienceYears: 5,
			Titles:          []string{"Software Engineer"},
			Summary:         firstWords(req.Text, 20),
		}}
	case domain.TaskExtractJD:
		req := as[domain.ExtractRequest](payload)
		res = domain.JDExtractResult{JDProfile: domain.JDProfile{
			Title:            "Software Engineer",
			RequiredSkills:   keywords(req.Text, []string{"Go", "Python", "SQL", "Kubernetes", "Kafka"}),
			ExperienceNeeded: "3+ years",
			Summary:          firstWords(req.Text, 20),
		}}
	case domain.TaskCompareGaps:
		req := as[domain.CompareRequest](payload)
		matched, missing := intersect(req.CV.Skills, req.JD.RequiredSkills)
		probes := make([]domain.ProbeArea, 0, len(missing))
		for _, s := range missing {
			probes = append(probes, domain.ProbeArea{
				Skill:    s,
				Reason:   "not evidenced on the CV",
				Priority: domain.PriorityHigh,
			})
		}
		score := 100.0
		if n := len(req.JD.RequiredSkills); n > 0 {
			score = 100 * float64(len(matched)) / float64(n)
		}
		res = domain.CompareResult{GapAnalysis: domain.GapAnalysis{
			MatchScore:    score,
			MatchedSkills: matched,
			MissingSkills: missing,
			ProbeAreas:    probes,
		}}
	case domain.TaskGenerateQs:
		req := as[domain.PlanRequest](payload)
		res = plan(req)
	case domain.TaskScoreAnswer:
		req := as[domain.ScoreRequest](payload)
		quote := firstWords(req.Transcript, 12)
		dim := func(score int, why string) domain.ScoredDimension {
			return domain.ScoredDimension{Score: score, Quote: quote, Reasoning: why}
		}
		res = domain.ScoreResult{
			Relevance:     dim(4, "answer addresses the question asked"),
			Depth:         dim(3, "describes the approach without trade-offs"),
			Competency:    dim(4, "demonstrates the target competency"),
			Communication: dim(4, "clear and structured response"),
		}
	case domain.TaskGenerateFollowUp:
		req := as[domain.FollowUpRequest](payload)
		hint := req.Hint
		if hint == "" {
			hint = "walk me through a concrete example"
		}
		res = domain.FollowUpResult{Utterance: "Could you go deeper: " + hint + "?"}
	default:
		return nil, fmt.Errorf("%w: unknown task %q", domain.ErrInvalidArgument, task)
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("op=stub.invoke: %w", err)
	}
	if _, err := domain.DecodeResult(task, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func plan(req domain.PlanRequest) domain.PlanResult {
	n := req.MinQuestions
	if n < 3 {
		n = 6
	}
	qs := make([]domain.PlannedQuestion, 0, n)
	qs = append(qs, domain.PlannedQuestion{
		Text:             "To start, tell me a bit about yourself and what drew you to this role.",
		Category:         domain.CategoryRapport,
		TargetCompetency: "self-presentation",
		RubricGuide:      "coherent narrative connecting background to the role",
		FollowUpHint:     "what part of the role excites you most",
		GapLink:          domain.GapLinkNone,
	})
	subjects := append([]string{}, req.Gaps.MatchedSkills...)
	for _, p := range req.Gaps.ProbeAreas {
		subjects = append(subjects, p.Skill)
	}
	if len(subjects) == 0 {
		subjects = []string{"your strongest technical skill"}
	}
	for i := 0; len(qs) < n-1; i++ {
		s := subjects[i%len(subjects)]
		qs = append(qs, domain.PlannedQuestion{
			Text:             fmt.Sprintf("Describe a project where you used %s and the hardest problem you hit.", s),
			Category:         domain.CategoryTechnical,
			TargetCompetency: s,
			RubricGuide:      "specific project, concrete obstacle, owned resolution",
			FollowUpHint:     "what you would do differently now",
			GapLink:          domain.GapLinkProbe,
		})
	}
	qs = append(qs, domain.PlannedQuestion{
		Text:             "Is there anything about your experience we have not covered that you want on the record?",
		Category:         domain.CategoryOpen,
		TargetCompetency: "self-assessment",
		RubricGuide:      "adds substantive new information",
		FollowUpHint:     "",
		GapLink:          domain.GapLinkNone,
	})
	return domain.PlanResult{Questions: qs}
}

// as round-trips payload through JSON so callers may pass either the typed
// record or an equivalent map.
func as[T any](payload any) T {
	var out T
	if v, ok := payload.(T); ok {
		return v
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(b, &out)
	return out
}

func keywords(text string, candidates []string) []string {
	lower := strings.ToLower(text)
	found := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if strings.Contains(lower, strings.ToLower(c)) {
			found = append(found, c)
		}
	}
	if len(found) == 0 {
		found = append(found, "general engineering")
	}
	return found
}

func intersect(have, want []string) (matched, missing []string) {
	set := make(map[string]bool, len(have))
	for _, s := range have {
		set[strings.ToLower(s)] = true
	}
	matched = []string{}
	missing = []string{}
	for _, s := range want {
		if set[strings.ToLower(s)] {
			matched = append(matched, s)
		} else {
			missing = append(missing, s)
		}
	}
	return matched, missing
}

func firstWords(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "candidate response"
	}
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}
