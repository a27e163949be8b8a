package ai

import "github.com/fairyhunter13/ai-voice-interviewer/internal/domain"

// taskSpec fixes the prompt envelope per gateway task. The exact wording
// is deliberately thin; callers supply all domain content in the payload.
type taskSpec struct {
	system      string
	temperature float64
	maxTokens   int
}

var taskSpecs = map[domain.GatewayTask]taskSpec{
	domain.TaskExtractCV: {
		system: `Extract structured data from the CV in the "text" field.
Return a JSON object with keys: name, skills (list), experience_years (number),
titles (list), education (list), projects (list), summary.`,
		temperature: 0.2,
		maxTokens:   1500,
	},
	domain.TaskExtractJD: {
		system: `Extract structured requirements from the job description in the "text" field.
Return a JSON object with keys: title, required_skills (list), preferred_skills (list),
experience_needed, responsibilities (list), summary.`,
		temperature: 0.2,
		maxTokens:   1200,
	},
	domain.TaskCompareGaps: {
		system: `Compare the candidate CV extraction against the job requirements.
You are the sole authority on synonym and implied-skill judgments; categorize decisively.
Return a JSON object with keys: match_score (0-100), matched_skills (list),
missing_skills (list), probe_areas (list of {skill, reason, priority: high|medium|low}).`,
		temperature: 0.2,
		maxTokens:   1200,
	},
	domain.TaskGenerateQs: {
		system: `Generate targeted interview questions from the gap analysis, between
min_questions and max_questions of them. Open with rapport, verify matched skills,
probe missing skills and probe areas, close with an open question for the candidate.
Return a JSON object: {"questions": [{text, category: rapport|behavioral|technical|situational|open,
target_competency, rubric_guide, follow_up_hint, gap_link: matched|missing|probe|none}]}.`,
		temperature: 0.5,
		maxTokens:   2000,
	},
	domain.TaskScoreAnswer: {
		system: `Score the candidate transcript against the question rubric on four
dimensions: relevance, depth, competency, communication. Every score MUST cite a
verbatim quote from the transcript as evidence, plus reasoning distinct from the quote.
Return a JSON object: {relevance: {score 0-5, quote, reasoning}, depth: {...},
competency: {...}, communication: {...}}.`,
		temperature: 0.2,
		maxTokens:   1200,
	},
	domain.TaskGenerateFollowUp: {
		system: `The candidate gave a weak answer. Using the hint, ask one polite but
probing follow-up question. Return a JSON object: {"utterance": "..."}.`,
		temperature: 0.7,
		maxTokens:   300,
	},
}
