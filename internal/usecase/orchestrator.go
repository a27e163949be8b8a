package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/config"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
)

// Orchestrator drives the interview session through its phases. It is the
// only component that mutates sessions; every mutation happens while holding
// the session gate and ends with a persisted snapshot.
type Orchestrator struct {
	Store     *SessionStore
	Gaps      GapService
	Planner   Planner
	Gateway   domain.ModelGateway
	Repo      domain.SessionRepository
	Publisher domain.SnapshotPublisher
	Policy    config.InterviewPolicy
	now       func() time.Time
}

// NewOrchestrator wires the orchestrator. Repo and Publisher may be nil;
// snapshots then stay in memory only.
func NewOrchestrator(store *SessionStore, gw domain.ModelGateway, repo domain.SessionRepository, pub domain.SnapshotPublisher, pol config.InterviewPolicy) *Orchestrator {
	return &Orchestrator{
		Store:     store,
		Gaps:      NewGapService(gw),
		Planner:   NewPlanner(gw, pol),
		Gateway:   gw,
		Repo:      repo,
		Publisher: pub,
		Policy:    pol,
		now:       time.Now,
	}
}

// Prompt is what the interviewer says next: either the current plan
// question, a follow-up utterance, or nothing because the interview ended.
type Prompt struct {
	Done      bool             `json:"done"`
	Kind      domain.TurnKind  `json:"kind,omitempty"`
	Question  *domain.Question `json:"question,omitempty"`
	Utterance string           `json:"utterance,omitempty"`
}

// StartSession creates a session from raw document text and runs the
// analysis and planning stages. On success the session is left in the
// questioning phase with the first prompt ready; any stage failure moves it
// to the failed phase, which is absorbing.
func (o *Orchestrator) StartSession(ctx context.Context, cvText, jdText string) (*domain.Session, *Prompt, error) {
	cvText = strings.TrimSpace(cvText)
	jdText = strings.TrimSpace(jdText)
	if cvText == "" || jdText == "" {
		return nil, nil, fmt.Errorf("%w: cv and jd text required", domain.ErrInvalidArgument)
	}

	now := o.now().UTC()
	sess := &domain.Session{
		ID:         ulid.Make().String(),
		Phase:      domain.PhaseCreated,
		CVText:     cvText,
		JDText:     jdText,
		FollowedUp: map[int]bool{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.Store.Put(sess); err != nil {
		return nil, nil, err
	}
	defer o.Store.Release(sess.ID)
	observability.SessionsActive.Inc()

	// Cancel reaches the in-flight gateway calls through this context.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.Store.BindCancel(sess.ID, cancel)

	o.transition(ctx, sess, domain.PhaseAnalyzing)
	cv, jd, gaps, err := o.Gaps.Analyze(ctx, cvText, jdText)
	if err != nil {
		o.fail(ctx, sess, err)
		return sess, nil, err
	}
	sess.CV, sess.JD, sess.Gaps = cv, jd, gaps

	o.transition(ctx, sess, domain.PhasePlanned)
	plan, err := o.Planner.Plan(ctx, *cv, *jd, *gaps)
	if err != nil {
		o.fail(ctx, sess, err)
		return sess, nil, err
	}
	sess.Plan = plan
	sess.CurrentQ = 0

	o.transition(ctx, sess, domain.PhaseQuestioning)
	q := sess.Plan[0]
	return sess, &Prompt{Kind: domain.TurnPrimary, Question: &q, Utterance: q.Text}, nil
}

// SubmitAnswer records one candidate transcript against the pending prompt,
// scores it, and returns what the interviewer says next. Exactly one answer
// may be in flight per session. An empty transcript is rejected before any
// session state changes; the pending question stays open.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, id, transcript string) (*Prompt, error) {
	sess, err := o.Store.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer o.Store.Release(id)

	if sess.Phase != domain.PhaseQuestioning && sess.Phase != domain.PhaseFollowUp {
		return nil, fmt.Errorf("%w: session %s is %s, not awaiting an answer", domain.ErrConflict, id, sess.Phase)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, fmt.Errorf("%w: empty transcript", domain.ErrInvalidArgument)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.Store.BindCancel(id, cancel)

	kind := domain.TurnPrimary
	if sess.Phase == domain.PhaseFollowUp {
		kind = domain.TurnFollowUp
	}
	q := sess.Plan[sess.CurrentQ]

	o.transition(ctx, sess, domain.PhaseScoring)
	score, err := o.scoreAnswer(ctx, q, transcript)
	if err != nil {
		o.fail(ctx, sess, err)
		return nil, err
	}
	turn := domain.Turn{
		QuestionID: q.ID,
		Kind:       kind,
		Transcript: transcript,
		Score:      score,
		AskedAt:    sess.UpdatedAt,
		AnsweredAt: o.now().UTC(),
	}
	sess.Turns = append(sess.Turns, turn)
	sess.PendingFollowUp = ""
	if mean, ok := score.Mean(); ok {
		observability.TurnMeanHistogram.Observe(mean)
	}

	// Follow-up decision applies to primary turns only; a follow-up answer
	// never chains another follow-up.
	if kind == domain.TurnPrimary && !sess.FollowedUp[q.ID] {
		if mean, ok := score.Mean(); ok && mean < o.Policy.FollowUpThreshold {
			utterance, err := o.generateFollowUp(ctx, q, transcript)
			if err != nil {
				o.fail(ctx, sess, err)
				return nil, err
			}
			sess.FollowedUp[q.ID] = true
			sess.PendingFollowUp = utterance
			o.transition(ctx, sess, domain.PhaseFollowUp)
			observability.FollowUpsIssuedTotal.Inc()
			return &Prompt{Kind: domain.TurnFollowUp, Question: &q, Utterance: utterance}, nil
		}
	}

	sess.CurrentQ++
	if sess.CurrentQ < len(sess.Plan) {
		o.transition(ctx, sess, domain.PhaseQuestioning)
		next := sess.Plan[sess.CurrentQ]
		return &Prompt{Kind: domain.TurnPrimary, Question: &next, Utterance: next.Text}, nil
	}

	o.transition(ctx, sess, domain.PhaseReporting)
	persistErr := o.transition(ctx, sess, domain.PhaseComplete)
	report := BuildReport(sess, o.Policy, sess.UpdatedAt)
	o.Store.SetReport(sess.ID, report)
	observability.SessionsActive.Dec()
	observability.SessionsCompletedTotal.WithLabelValues(string(domain.PhaseComplete)).Inc()
	if o.Repo != nil && persistErr == nil {
		// Archived: the acknowledged snapshot is the record now, the live
		// entry can go. Reads fall back to the repository.
		o.Store.Delete(sess.ID)
	}
	return &Prompt{Done: true}, nil
}

// Reprompt re-issues the pending prompt without consuming the turn. Used
// when the candidate's answer never arrived, such as a transcription
// failure or silent audio.
func (o *Orchestrator) Reprompt(_ context.Context, id string) (*Prompt, error) {
	sess, err := o.Store.Peek(id)
	if err != nil {
		return nil, err
	}
	switch sess.Phase {
	case domain.PhaseQuestioning:
		q := sess.Plan[sess.CurrentQ]
		return &Prompt{Kind: domain.TurnPrimary, Question: &q, Utterance: q.Text}, nil
	case domain.PhaseFollowUp:
		q := sess.Plan[sess.CurrentQ]
		return &Prompt{Kind: domain.TurnFollowUp, Question: &q, Utterance: sess.PendingFollowUp}, nil
	default:
		return nil, fmt.Errorf("%w: session %s is %s, not awaiting an answer", domain.ErrConflict, id, sess.Phase)
	}
}

// scoreAnswer grades one transcript, re-asking the model when the evidence
// contract is violated. Once the evidence retry budget is spent the
// unverifiable sentinel is stored instead of a silently defaulted score.
func (o *Orchestrator) scoreAnswer(ctx context.Context, q domain.Question, transcript string) (domain.Score, error) {
	var lastEvidence error
	for attempt := 0; attempt <= o.Policy.EvidenceRetryBudget; attempt++ {
		raw, err := o.Gateway.Invoke(ctx, domain.TaskScoreAnswer, domain.ScoreRequest{
			Question:   q,
			Transcript: transcript,
		})
		if err != nil {
			return domain.Score{}, err
		}
		res, err := domain.DecodeResult(domain.TaskScoreAnswer, raw)
		if err != nil {
			return domain.Score{}, err
		}
		sr := res.(*domain.ScoreResult)
		if err := ValidateEvidence(sr, transcript); err != nil {
			lastEvidence = err
			slog.Warn("score evidence rejected",
				slog.Int("question_id", q.ID),
				slog.Int("attempt", attempt+1),
				slog.Any("error", err))
			continue
		}
		return sr.ToScore(), nil
	}
	slog.Warn("evidence retries exhausted, storing unverifiable score",
		slog.Int("question_id", q.ID),
		slog.Any("last_error", lastEvidence))
	observability.UnverifiableScoresTotal.Inc()
	return domain.Score{Unverifiable: true}, nil
}

func (o *Orchestrator) generateFollowUp(ctx context.Context, q domain.Question, transcript string) (string, error) {
	raw, err := o.Gateway.Invoke(ctx, domain.TaskGenerateFollowUp, domain.FollowUpRequest{
		Question:   q,
		Transcript: transcript,
		Hint:       q.FollowUpHint,
	})
	if err != nil {
		return "", err
	}
	res, err := domain.DecodeResult(domain.TaskGenerateFollowUp, raw)
	if err != nil {
		return "", err
	}
	return res.(*domain.FollowUpResult).Utterance, nil
}

// State returns the session for read-only inspection. Archived sessions are
// loaded from the snapshot repository.
func (o *Orchestrator) State(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := o.Store.Peek(id)
	if errors.Is(err, domain.ErrNotFound) && o.Repo != nil {
		return o.Repo.GetSnapshot(ctx, id)
	}
	return sess, err
}

// Report returns the session report. Live sessions serve the cached report
// (failed ones get a partial report assembled on first request); archived
// sessions rebuild it from the snapshot, which is deterministic because
// GeneratedAt pins to the session's final UpdatedAt.
func (o *Orchestrator) Report(ctx context.Context, id string) (*domain.Report, error) {
	if r, ok := o.Store.Report(id); ok {
		return r, nil
	}
	sess, err := o.Store.Peek(id)
	if errors.Is(err, domain.ErrNotFound) && o.Repo != nil {
		sess, err = o.Repo.GetSnapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		if !sess.Phase.Terminal() {
			return nil, fmt.Errorf("%w: session %s is %s, report not ready", domain.ErrConflict, id, sess.Phase)
		}
		return BuildReport(sess, o.Policy, sess.UpdatedAt), nil
	}
	if err != nil {
		return nil, err
	}
	if sess.Phase != domain.PhaseFailed {
		return nil, fmt.Errorf("%w: session %s is %s, report not ready", domain.ErrConflict, id, sess.Phase)
	}
	r := BuildReport(sess, o.Policy, sess.UpdatedAt)
	o.Store.SetReport(id, r)
	if cached, ok := o.Store.Report(id); ok {
		return cached, nil
	}
	return r, nil
}

// Cancel moves a live session to the failed phase. When an operation is in
// flight it aborts that operation's gateway call instead; the gate holder
// then records the failure. Terminal sessions are left untouched.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	sess, err := o.Store.Acquire(id)
	if errors.Is(err, domain.ErrSessionBusy) {
		return o.Store.Abort(id)
	}
	if err != nil {
		return err
	}
	defer o.Store.Release(id)
	if sess.Phase.Terminal() {
		return fmt.Errorf("%w: session %s already %s", domain.ErrConflict, id, sess.Phase)
	}
	o.fail(ctx, sess, errors.New("cancelled by caller"))
	return nil
}

// transition advances the phase and snapshots the session, reporting
// whether the snapshot was acknowledged by the repository.
func (o *Orchestrator) transition(ctx context.Context, sess *domain.Session, to domain.Phase) error {
	sess.Phase = to
	sess.UpdatedAt = o.now().UTC()
	return o.snapshot(ctx, sess)
}

// fail moves the session into the absorbing failed phase, keeping whatever
// partial progress exists for the partial report. The failure record must
// outlive the caller's context, cancelled or not.
func (o *Orchestrator) fail(ctx context.Context, sess *domain.Session, cause error) {
	sess.FailReason = cause.Error()
	o.transition(context.WithoutCancel(ctx), sess, domain.PhaseFailed)
	observability.SessionsActive.Dec()
	observability.SessionsCompletedTotal.WithLabelValues(string(domain.PhaseFailed)).Inc()
	observability.SessionLogger(sess.ID).Error("session failed", slog.Any("error", cause))
}

// snapshot persists and publishes the session. Problems are logged, never
// surfaced as operation failures; the returned error only reports whether
// the repository acknowledged the write, so callers can gate archival on it.
func (o *Orchestrator) snapshot(ctx context.Context, sess *domain.Session) error {
	var repoErr error
	if o.Repo != nil {
		if err := o.Repo.SaveSnapshot(ctx, sess); err != nil {
			observability.SessionLogger(sess.ID).Error("session snapshot save failed", slog.Any("error", err))
			repoErr = err
		}
	}
	if o.Publisher != nil {
		if err := o.Publisher.PublishSnapshot(ctx, sess); err != nil {
			observability.SessionLogger(sess.ID).Warn("session snapshot publish failed", slog.Any("error", err))
		}
	}
	return repoErr
}
