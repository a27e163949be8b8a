package domain

import (
	"encoding/json"
	"fmt"
)

// Tagged request/response records for each gateway task. The gateway
// validates the response shape before it ever enters the data model;
// a failed Validate is a retryable gateway failure, not a caller error.

// ExtractRequest carries raw document text for extract-cv / extract-jd.
type ExtractRequest struct {
	Text string `json:"text"`
}

// CompareRequest feeds both structured extractions into compare-gaps.
type CompareRequest struct {
	CV CVProfile `json:"cv"`
	JD JDProfile `json:"jd"`
}

// PlanRequest asks generate-questions for a full interview plan.
type PlanRequest struct {
	CV           CVProfile   `json:"cv"`
	JD           JDProfile   `json:"jd"`
	Gaps         GapAnalysis `json:"gaps"`
	MinQuestions int         `json:"min_questions"`
	MaxQuestions int         `json:"max_questions"`
}

// ScoreRequest asks score-answer to grade one transcript.
type ScoreRequest struct {
	Question   Question `json:"question"`
	Transcript string   `json:"transcript"`
}

// FollowUpRequest asks generate-followup for an interviewer utterance.
type FollowUpRequest struct {
	Question   Question `json:"question"`
	Transcript string   `json:"transcript"`
	Hint       string   `json:"hint"`
}

// SchemaResult is implemented by every task response record; Validate
// performs the structural check the gateway enforces per task.
type SchemaResult interface {
	Validate() error
}

// CVExtractResult is the extract-cv response.
type CVExtractResult struct {
	CVProfile
}

// Validate checks the structural contract of a CV extraction.
func (r CVExtractResult) Validate() error {
	if r.Skills == nil {
		return fmt.Errorf("%w: cv extraction missing skills", ErrSchemaInvalid)
	}
	if r.ExperienceYears < 0 || r.ExperienceYears > 80 {
		return fmt.Errorf("%w: experience_years %v out of range", ErrSchemaInvalid, r.ExperienceYears)
	}
	return nil
}

// JDExtractResult is the extract-jd response.
type JDExtractResult struct {
	JDProfile
}

// Validate checks the structural contract of a JD extraction.
func (r JDExtractResult) Validate() error {
	if r.Title == "" {
		return fmt.Errorf("%w: jd extraction missing title", ErrSchemaInvalid)
	}
	if r.RequiredSkills == nil {
		return fmt.Errorf("%w: jd extraction missing required_skills", ErrSchemaInvalid)
	}
	return nil
}

// CompareResult is the compare-gaps response.
type CompareResult struct {
	GapAnalysis
}

// Validate checks score range and probe priorities.
func (r CompareResult) Validate() error {
	if r.MatchScore < 0 || r.MatchScore > 100 {
		return fmt.Errorf("%w: match_score %v out of [0,100]", ErrSchemaInvalid, r.MatchScore)
	}
	if r.MatchedSkills == nil && r.MissingSkills == nil {
		return fmt.Errorf("%w: comparison missing skill sets", ErrSchemaInvalid)
	}
	for _, p := range r.ProbeAreas {
		if p.Skill == "" {
			return fmt.Errorf("%w: probe area missing skill", ErrSchemaInvalid)
		}
		switch p.Priority {
		case PriorityHigh, PriorityMedium, PriorityLow:
		default:
			return fmt.Errorf("%w: probe priority %q", ErrSchemaInvalid, p.Priority)
		}
	}
	return nil
}

// PlannedQuestion is one model-proposed plan entry before the planner
// applies its structural policy.
type PlannedQuestion struct {
	Text             string           `json:"text"`
	Category         QuestionCategory `json:"category"`
	TargetCompetency string           `json:"target_competency"`
	RubricGuide      string           `json:"rubric_guide"`
	FollowUpHint     string           `json:"follow_up_hint"`
	GapLink          GapLink          `json:"gap_link"`
}

// PlanResult is the generate-questions response.
type PlanResult struct {
	Questions []PlannedQuestion `json:"questions"`
}

// Validate checks every proposed question carries its required metadata.
// The count window is the planner's decision, not a schema concern, except
// that an empty list is always malformed.
func (r PlanResult) Validate() error {
	if len(r.Questions) == 0 {
		return fmt.Errorf("%w: empty question list", ErrSchemaInvalid)
	}
	for i, q := range r.Questions {
		if q.Text == "" || q.TargetCompetency == "" || q.RubricGuide == "" {
			return fmt.Errorf("%w: question %d missing required fields", ErrSchemaInvalid, i)
		}
		switch q.Category {
		case CategoryRapport, CategoryBehavioral, CategoryTechnical, CategorySituational, CategoryOpen:
		default:
			return fmt.Errorf("%w: question %d category %q", ErrSchemaInvalid, i, q.Category)
		}
		switch q.GapLink {
		case GapLinkMatched, GapLinkMissing, GapLinkProbe, GapLinkNone:
		default:
			return fmt.Errorf("%w: question %d gap_link %q", ErrSchemaInvalid, i, q.GapLink)
		}
	}
	return nil
}

// ScoredDimension mirrors DimensionScore on the wire.
type ScoredDimension struct {
	Score     int    `json:"score"`
	Quote     string `json:"quote"`
	Reasoning string `json:"reasoning"`
}

// ScoreResult is the score-answer response.
type ScoreResult struct {
	Relevance     ScoredDimension `json:"relevance"`
	Depth         ScoredDimension `json:"depth"`
	Competency    ScoredDimension `json:"competency"`
	Communication ScoredDimension `json:"communication"`
}

// Validate checks numeric ranges only; the evidence contract (quote,
// reasoning) belongs to the evidence validator, which produces targeted
// rejection reasons instead of a blanket schema error.
func (r ScoreResult) Validate() error {
	for name, d := range r.ByDimension() {
		if d.Score < 0 || d.Score > 5 {
			return fmt.Errorf("%w: %s score %d out of [0,5]", ErrSchemaInvalid, name, d.Score)
		}
	}
	return nil
}

// ByDimension exposes the four axes keyed by Dimension.
func (r ScoreResult) ByDimension() map[Dimension]ScoredDimension {
	return map[Dimension]ScoredDimension{
		DimRelevance:     r.Relevance,
		DimDepth:         r.Depth,
		DimCompetency:    r.Competency,
		DimCommunication: r.Communication,
	}
}

// ToScore converts a validated wire result into a stored Score.
func (r ScoreResult) ToScore() Score {
	dims := make(map[Dimension]DimensionScore, len(Dimensions))
	for dim, d := range r.ByDimension() {
		dims[dim] = DimensionScore{Value: d.Score, Quote: d.Quote, Reasoning: d.Reasoning}
	}
	return Score{Dimensions: dims}
}

// FollowUpResult is the generate-followup response.
type FollowUpResult struct {
	Utterance string `json:"utterance"`
}

// Validate rejects an empty interviewer utterance.
func (r FollowUpResult) Validate() error {
	if r.Utterance == "" {
		return fmt.Errorf("%w: empty follow-up utterance", ErrSchemaInvalid)
	}
	return nil
}

// DecodeResult unmarshals raw gateway output for task into its tagged
// record and runs the schema check.
func DecodeResult(task GatewayTask, raw json.RawMessage) (SchemaResult, error) {
	var res SchemaResult
	switch task {
	case TaskExtractCV:
		res = &CVExtractResult{}
	case TaskExtractJD:
		res = &JDExtractResult{}
	case TaskCompareGaps:
		res = &CompareResult{}
	case TaskGenerateQs:
		res = &PlanResult{}
	case TaskScoreAnswer:
		res = &ScoreResult{}
	case TaskGenerateFollowUp:
		res = &FollowUpResult{}
	default:
		return nil, fmt.Errorf("%w: unknown task %q", ErrInvalidArgument, task)
	}
	if err := json.Unmarshal(raw, res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}
