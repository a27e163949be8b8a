// Package domain defines the interview entities, ports and error taxonomy.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrSessionBusy      = errors.New("session busy")
	ErrUpstreamTimeout  = errors.New("upstream timeout")
	ErrRateLimited      = errors.New("upstream rate limit")
	ErrSchemaInvalid    = errors.New("schema invalid")
	ErrGatewayExhausted = errors.New("gateway exhausted")
	ErrEvidenceRejected = errors.New("evidence rejected")
	ErrExtractionFailed = errors.New("extraction failed")
	ErrComparisonFailed = errors.New("comparison failed")
	ErrInternal         = errors.New("internal error")
)

// Phase is the lifecycle state of an interview session.
type Phase string

const (
	PhaseCreated     Phase = "created"
	PhaseAnalyzing   Phase = "analyzing"
	PhasePlanned     Phase = "planned"
	PhaseQuestioning Phase = "questioning"
	PhaseFollowUp    Phase = "follow_up"
	PhaseScoring     Phase = "scoring"
	PhaseReporting   Phase = "reporting"
	PhaseComplete    Phase = "complete"
	PhaseFailed      Phase = "failed"
)

// Terminal reports whether no further transitions are possible from p.
func (p Phase) Terminal() bool { return p == PhaseComplete || p == PhaseFailed }

// CVProfile is the structured extraction of a candidate CV.
type CVProfile struct {
	Name            string   `json:"name"`
	Skills          []string `json:"skills"`
	ExperienceYears float64  `json:"experience_years"`
	Titles          []string `json:"titles"`
	Education       []string `json:"education"`
	Projects        []string `json:"projects"`
	Summary         string   `json:"summary"`
}

// JDProfile is the structured extraction of a job description.
type JDProfile struct {
	Title            string   `json:"title"`
	RequiredSkills   []string `json:"required_skills"`
	PreferredSkills  []string `json:"preferred_skills"`
	ExperienceNeeded string   `json:"experience_needed"`
	Responsibilities []string `json:"responsibilities"`
	Summary          string   `json:"summary"`
}

// Priority ranks a probe area for questioning order.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank maps priorities to a sortable weight; unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// ProbeArea is a skill or ambiguity the interview must verify.
type ProbeArea struct {
	Skill    string   `json:"skill"`
	Reason   string   `json:"reason"`
	Priority Priority `json:"priority"`
}

// GapAnalysis compares a CV against a JD. Immutable once attached to a session.
type GapAnalysis struct {
	MatchScore    float64     `json:"match_score"`
	MatchedSkills []string    `json:"matched_skills"`
	MissingSkills []string    `json:"missing_skills"`
	ProbeAreas    []ProbeArea `json:"probe_areas"`
}

// QuestionCategory classifies a planned question.
type QuestionCategory string

const (
	CategoryRapport     QuestionCategory = "rapport"
	CategoryBehavioral  QuestionCategory = "behavioral"
	CategoryTechnical   QuestionCategory = "technical"
	CategorySituational QuestionCategory = "situational"
	CategoryOpen        QuestionCategory = "open"
)

// GapLink ties a question back to the gap analysis category it probes.
type GapLink string

const (
	GapLinkMatched GapLink = "matched"
	GapLinkMissing GapLink = "missing"
	GapLinkProbe   GapLink = "probe"
	GapLinkNone    GapLink = "none"
)

// Question is one entry of the fixed interview plan.
type Question struct {
	ID               int              `json:"id"`
	Text             string           `json:"text"`
	Category         QuestionCategory `json:"category"`
	TargetCompetency string           `json:"target_competency"`
	RubricGuide      string           `json:"rubric_guide"`
	FollowUpHint     string           `json:"follow_up_hint"`
	GapLink          GapLink          `json:"gap_link"`
}

// Dimension names the four scored rubric axes.
type Dimension string

const (
	DimRelevance     Dimension = "relevance"
	DimDepth         Dimension = "depth"
	DimCompetency    Dimension = "competency"
	DimCommunication Dimension = "communication"
)

// Dimensions lists the rubric axes in report order.
var Dimensions = []Dimension{DimRelevance, DimDepth, DimCompetency, DimCommunication}

// DimensionScore is one scored axis with its evidence contract fields.
type DimensionScore struct {
	Value     int    `json:"value"`
	Quote     string `json:"quote"`
	Reasoning string `json:"reasoning"`
}

// Score holds the four dimension scores for one turn.
// Unverifiable marks the sentinel stored after evidence validation is
// exhausted; an unverifiable score carries no dimension values.
type Score struct {
	Dimensions   map[Dimension]DimensionScore `json:"dimensions,omitempty"`
	Unverifiable bool                         `json:"unverifiable,omitempty"`
}

// Mean returns the average of the four dimension values. Unverifiable
// scores have no mean and report 0 with ok=false.
func (s Score) Mean() (float64, bool) {
	if s.Unverifiable || len(s.Dimensions) == 0 {
		return 0, false
	}
	sum := 0
	for _, d := range Dimensions {
		sum += s.Dimensions[d].Value
	}
	return float64(sum) / float64(len(Dimensions)), true
}

// TurnKind distinguishes a primary answer from its follow-up.
type TurnKind string

const (
	TurnPrimary  TurnKind = "primary"
	TurnFollowUp TurnKind = "followup"
)

// Turn is one candidate utterance and its validated score.
type Turn struct {
	QuestionID int       `json:"question_id"`
	Kind       TurnKind  `json:"kind"`
	Transcript string    `json:"transcript"`
	Score      Score     `json:"score"`
	AskedAt    time.Time `json:"asked_at"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Session is the full interview state for one candidate. Owned by the
// SessionStore; mutated only by the orchestrator holding the session gate.
type Session struct {
	ID              string       `json:"id"`
	Phase           Phase        `json:"phase"`
	CVText          string       `json:"cv_text"`
	JDText          string       `json:"jd_text"`
	CV              *CVProfile   `json:"cv,omitempty"`
	JD              *JDProfile   `json:"jd,omitempty"`
	Gaps            *GapAnalysis `json:"gaps,omitempty"`
	Plan            []Question   `json:"plan,omitempty"`
	Turns           []Turn       `json:"turns,omitempty"`
	CurrentQ        int          `json:"current_q"`
	FollowedUp      map[int]bool `json:"followed_up,omitempty"`
	PendingFollowUp string       `json:"pending_follow_up,omitempty"`
	FailReason      string       `json:"fail_reason,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// TurnsFor returns the turns recorded for one question, in order.
func (s *Session) TurnsFor(questionID int) []Turn {
	var out []Turn
	for _, t := range s.Turns {
		if t.QuestionID == questionID {
			out = append(out, t)
		}
	}
	return out
}

// Recommendation buckets the overall interview outcome.
type Recommendation string

const (
	RecommendHire     Recommendation = "hire"
	RecommendConsider Recommendation = "consider"
	RecommendReject   Recommendation = "reject"
)

// QuestionResult summarizes one plan entry inside a report.
type QuestionResult struct {
	Question Question `json:"question"`
	Turns    []Turn   `json:"turns"`
}

// Report is the aggregated interview outcome. Stable once generated.
type Report struct {
	SessionID         string                `json:"session_id"`
	Phase             Phase                 `json:"phase"`
	Failed            bool                  `json:"failed"`
	FailReason        string                `json:"fail_reason,omitempty"`
	MatchScore        float64               `json:"match_score"`
	DimensionAverages map[Dimension]float64 `json:"dimension_averages"`
	OverallMean       float64               `json:"overall_mean"`
	Recommendation    Recommendation        `json:"recommendation"`
	Questions         []QuestionResult      `json:"questions"`
	UnverifiableTurns int                   `json:"unverifiable_turns"`
	GeneratedAt       time.Time             `json:"generated_at"`
}

// GatewayTask selects a model capability at the gateway boundary.
type GatewayTask string

const (
	TaskExtractCV        GatewayTask = "extract-cv"
	TaskExtractJD        GatewayTask = "extract-jd"
	TaskCompareGaps      GatewayTask = "compare-gaps"
	TaskGenerateQs       GatewayTask = "generate-questions"
	TaskScoreAnswer      GatewayTask = "score-answer"
	TaskGenerateFollowUp GatewayTask = "generate-followup"
)

// ModelGateway (port). Invoke runs one task against the model provider and
// returns the raw structured payload; implementations own retry, credential
// rotation and the model cascade. Only ErrGatewayExhausted escapes retries.
type ModelGateway interface {
	Invoke(ctx context.Context, task GatewayTask, payload any) (json.RawMessage, error)
}

// Transcriber (port). A transcription failure means "no answer", never a
// gateway retry.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Synthesizer (port). Failures degrade delivery to text-only.
type Synthesizer interface {
	Synthesize(ctx context.Context, utterance, voice string) ([]byte, error)
}

// SessionRepository (port) persists lossless session snapshots.
type SessionRepository interface {
	SaveSnapshot(ctx context.Context, s *Session) error
	GetSnapshot(ctx context.Context, id string) (*Session, error)
}

// SnapshotPublisher (port) emits session snapshots for downstream consumers.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, s *Session) error
}
