package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/config"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
)

// fakeGateway scripts per-task responses. A task with no handler fails the
// test; handlers may return errors to simulate exhaustion.
type fakeGateway struct {
	t        *testing.T
	handlers map[domain.GatewayTask]func(payload any) (any, error)
	calls    map[domain.GatewayTask]int
}

func newFakeGateway(t *testing.T) *fakeGateway {
	return &fakeGateway{
		t:        t,
		handlers: map[domain.GatewayTask]func(payload any) (any, error){},
		calls:    map[domain.GatewayTask]int{},
	}
}

func (f *fakeGateway) on(task domain.GatewayTask, h func(payload any) (any, error)) {
	f.handlers[task] = h
}

func (f *fakeGateway) Invoke(_ context.Context, task domain.GatewayTask, payload any) (json.RawMessage, error) {
	f.calls[task]++
	h, ok := f.handlers[task]
	if !ok {
		f.t.Fatalf("unexpected gateway task %s", task)
	}
	res, err := h(payload)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(res)
	require.NoError(f.t, err)
	return raw, nil
}

func scoreResult(score int, quote string) domain.ScoreResult {
	d := domain.ScoredDimension{Score: score, Quote: quote, Reasoning: "grounded in the cited answer"}
	return domain.ScoreResult{Relevance: d, Depth: d, Competency: d, Communication: d}
}

func sixQuestionPlan() domain.PlanResult {
	qs := []domain.PlannedQuestion{
		{Text: "Tell me about yourself.", Category: domain.CategoryRapport, TargetCompetency: "self-presentation", RubricGuide: "coherent narrative", GapLink: domain.GapLinkNone},
	}
	for i := 0; i < 4; i++ {
		qs = append(qs, domain.PlannedQuestion{
			Text:             fmt.Sprintf("Technical question %d?", i+1),
			Category:         domain.CategoryTechnical,
			TargetCompetency: "Go",
			RubricGuide:      "specific project and obstacle",
			FollowUpHint:     "a concrete example",
			GapLink:          domain.GapLinkProbe,
		})
	}
	qs = append(qs, domain.PlannedQuestion{Text: "Anything we missed?", Category: domain.CategoryOpen, TargetCompetency: "self-assessment", RubricGuide: "new information", GapLink: domain.GapLinkNone})
	return domain.PlanResult{Questions: qs}
}

func wireAnalysis(gw *fakeGateway) {
	gw.on(domain.TaskExtractCV, func(any) (any, error) {
		return domain.CVExtractResult{CVProfile: domain.CVProfile{Name: "A", Skills: []string{"Go", "SQL"}, ExperienceYears: 5}}, nil
	})
	gw.on(domain.TaskExtractJD, func(any) (any, error) {
		return domain.JDExtractResult{JDProfile: domain.JDProfile{Title: "Engineer", RequiredSkills: []string{"Go", "Kafka"}}}, nil
	})
	gw.on(domain.TaskCompareGaps, func(any) (any, error) {
		return domain.CompareResult{GapAnalysis: domain.GapAnalysis{
			MatchScore:    50,
			MatchedSkills: []string{"Go"},
			MissingSkills: []string{"Kafka"},
			ProbeAreas:    []domain.ProbeArea{{Skill: "Kafka", Reason: "absent", Priority: domain.PriorityHigh}},
		}}, nil
	})
	gw.on(domain.TaskGenerateQs, func(any) (any, error) { return sixQuestionPlan(), nil })
}

func newTestOrchestrator(t *testing.T, gw domain.ModelGateway) *Orchestrator {
	return NewOrchestrator(NewSessionStore(), gw, nil, nil, config.DefaultPolicy())
}

func TestInterviewHappyPath(t *testing.T) {
	gw := newFakeGateway(t)
	wireAnalysis(gw)
	answer := "I designed the ingestion service end to end"
	gw.on(domain.TaskScoreAnswer, func(any) (any, error) { return scoreResult(4, answer), nil })

	o := newTestOrchestrator(t, gw)
	sess, prompt, err := o.StartSession(context.Background(), "cv text", "jd text")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseQuestioning, sess.Phase)
	require.NotNil(t, prompt.Question)
	assert.Equal(t, domain.CategoryRapport, prompt.Question.Category)
	require.Len(t, sess.Plan, 6)

	for i := 0; i < 6; i++ {
		prompt, err = o.SubmitAnswer(context.Background(), sess.ID, answer)
		require.NoError(t, err)
	}
	assert.True(t, prompt.Done)
	assert.Equal(t, domain.PhaseComplete, sess.Phase)

	report, err := o.Report(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, report.Failed)
	assert.InDelta(t, 4.0, report.OverallMean, 1e-9)
	assert.Equal(t, domain.RecommendHire, report.Recommendation)
	assert.Len(t, report.Questions, 6)
	assert.InDelta(t, 50.0, report.MatchScore, 1e-9)
}

func TestWeakAnswerTriggersOneFollowUp(t *testing.T) {
	gw := newFakeGateway(t)
	wireAnalysis(gw)
	weak := "I am not sure about that honestly"
	strong := "I rebuilt the consumer group rebalancing logic myself"
	gw.on(domain.TaskScoreAnswer, func(payload any) (any, error) {
		req := payload.(domain.ScoreRequest)
		if req.Transcript == weak {
			return scoreResult(2, weak), nil
		}
		return scoreResult(4, strong), nil
	})
	gw.on(domain.TaskGenerateFollowUp, func(any) (any, error) {
		return domain.FollowUpResult{Utterance: "Could you walk me through a concrete example?"}, nil
	})

	o := newTestOrchestrator(t, gw)
	sess, _, err := o.StartSession(context.Background(), "cv", "jd")
	require.NoError(t, err)

	prompt, err := o.SubmitAnswer(context.Background(), sess.ID, weak)
	require.NoError(t, err)
	require.False(t, prompt.Done)
	assert.Equal(t, domain.TurnFollowUp, prompt.Kind)
	assert.Equal(t, "Could you walk me through a concrete example?", prompt.Utterance)
	assert.Equal(t, domain.PhaseFollowUp, sess.Phase)
	// The follow-up stays on the same question.
	assert.Equal(t, 0, sess.CurrentQ)

	// A weak follow-up answer never chains a second follow-up.
	prompt, err = o.SubmitAnswer(context.Background(), sess.ID, weak)
	require.NoError(t, err)
	assert.Equal(t, domain.TurnPrimary, prompt.Kind)
	assert.Equal(t, 1, sess.CurrentQ)
	assert.Len(t, sess.TurnsFor(0), 2)

	for i := 1; i < 6; i++ {
		prompt, err = o.SubmitAnswer(context.Background(), sess.ID, strong)
		require.NoError(t, err)
	}
	assert.True(t, prompt.Done)
	assert.Equal(t, 1, gw.calls[domain.TaskGenerateFollowUp])
}

func TestEvidenceRetriesExhaustToUnverifiable(t *testing.T) {
	gw := newFakeGateway(t)
	wireAnalysis(gw)
	// Quote never appears in the transcript, so every attempt is rejected.
	gw.on(domain.TaskScoreAnswer, func(any) (any, error) {
		return scoreResult(4, "a fabricated quotation"), nil
	})

	o := newTestOrchestrator(t, gw)
	sess, _, err := o.StartSession(context.Background(), "cv", "jd")
	require.NoError(t, err)

	prompt, err := o.SubmitAnswer(context.Background(), sess.ID, "my actual answer text")
	require.NoError(t, err)
	require.False(t, prompt.Done)

	turns := sess.TurnsFor(0)
	require.Len(t, turns, 1)
	assert.True(t, turns[0].Score.Unverifiable)
	// Initial attempt plus the evidence retry budget.
	assert.Equal(t, config.DefaultPolicy().EvidenceRetryBudget+1, gw.calls[domain.TaskScoreAnswer])
	// An unverifiable primary turn has no mean, so no follow-up fires.
	assert.Equal(t, domain.PhaseQuestioning, sess.Phase)
}

func TestEmptyTranscriptRejectedWithoutConsumingQuestion(t *testing.T) {
	gw := newFakeGateway(t)
	wireAnalysis(gw)
	answer := "I led the migration to event sourcing myself"
	gw.on(domain.TaskScoreAnswer, func(any) (any, error) { return scoreResult(4, answer), nil })

	o := newTestOrchestrator(t, gw)
	sess, _, err := o.StartSession(context.Background(), "cv", "jd")
	require.NoError(t, err)

	_, err = o.SubmitAnswer(context.Background(), sess.ID, "   ")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, sess.Turns)
	assert.Equal(t, 0, sess.CurrentQ)
	assert.Equal(t, domain.PhaseQuestioning, sess.Phase)
	assert.Zero(t, gw.calls[domain.TaskScoreAnswer])

	// The question is still open and answerable.
	_, err = o.SubmitAnswer(context.Background(), sess.ID, answer)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.CurrentQ)
}

func TestRepromptReissuesPendingPrompt(t *testing.T) {
	gw := newFakeGateway(t)
	wireAnalysis(gw)
	weak := "I am not sure about that"
	gw.on(domain.TaskScoreAnswer, func(any) (any, error) { return scoreResult(2, weak), nil })
	gw.on(domain.TaskGenerateFollowUp, func(any) (any, error) {
		return domain.FollowUpResult{Utterance: "Could you give a concrete example?"}, nil
	})

	o := newTestOrchestrator(t, gw)
	sess, first, err := o.StartSession(context.Background(), "cv", "jd")
	require.NoError(t, err)

	// Reprompting a waiting question repeats it verbatim, turn-free.
	prompt, err := o.Reprompt(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Utterance, prompt.Utterance)
	assert.Equal(t, domain.TurnPrimary, prompt.Kind)
	assert.Empty(t, sess.Turns)

	// A pending follow-up is re-issued with its generated utterance.
	_, err = o.SubmitAnswer(context.Background(), sess.ID, weak)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseFollowUp, sess.Phase)
	prompt, err = o.Reprompt(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TurnFollowUp, prompt.Kind)
	assert.Equal(t, "Could you give a concrete example?", prompt.Utterance)
}

func TestAnalysisFailureIsAbsorbingWithPartialReport(t *testing.T) {
	gw := newFakeGateway(t)
	wireAnalysis(gw)
	gw.on(domain.TaskCompareGaps, func(any) (any, error) {
		return nil, fmt.Errorf("op=gateway.invoke: %w", domain.ErrGatewayExhausted)
	})

	o := newTestOrchestrator(t, gw)
	sess, _, err := o.StartSession(context.Background(), "cv", "jd")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrComparisonFailed)
	assert.Equal(t, domain.PhaseFailed, sess.Phase)

	// Failed is absorbing: no answers accepted.
	_, err = o.SubmitAnswer(context.Background(), sess.ID, "hello")
	assert.ErrorIs(t, err, domain.ErrConflict)

	report, err := o.Report(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.True(t, report.Failed)
	assert.NotEmpty(t, report.FailReason)
	assert.Equal(t, domain.RecommendReject, report.Recommendation)

	// Report is stable once generated.
	again, err := o.Report(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, report.GeneratedAt, again.GeneratedAt)
}

func TestScoringGatewayFailureFailsSession(t *testing.T) {
	gw := newFakeGateway(t)
	wireAnalysis(gw)
	gw.on(domain.TaskScoreAnswer, func(any) (any, error) {
		return nil, fmt.Errorf("op=gateway.invoke: %w", domain.ErrGatewayExhausted)
	})

	o := newTestOrchestrator(t, gw)
	sess, _, err := o.StartSession(context.Background(), "cv", "jd")
	require.NoError(t, err)

	_, err = o.SubmitAnswer(context.Background(), sess.ID, "an answer")
	require.ErrorIs(t, err, domain.ErrGatewayExhausted)
	assert.Equal(t, domain.PhaseFailed, sess.Phase)
}

func TestCancelSession(t *testing.T) {
	gw := newFakeGateway(t)
	wireAnalysis(gw)

	o := newTestOrchestrator(t, gw)
	sess, _, err := o.StartSession(context.Background(), "cv", "jd")
	require.NoError(t, err)

	require.NoError(t, o.Cancel(context.Background(), sess.ID))
	assert.Equal(t, domain.PhaseFailed, sess.Phase)
	assert.ErrorIs(t, o.Cancel(context.Background(), sess.ID), domain.ErrConflict)
}

// blockingGateway parks one task on its context so tests can cancel it
// mid-flight; everything else is delegated.
type blockingGateway struct {
	inner   domain.ModelGateway
	block   domain.GatewayTask
	started chan struct{}
}

func (b *blockingGateway) Invoke(ctx context.Context, task domain.GatewayTask, payload any) (json.RawMessage, error) {
	if task == b.block {
		close(b.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return b.inner.Invoke(ctx, task, payload)
}

func TestCancelAbortsInFlightGatewayCall(t *testing.T) {
	gw := newFakeGateway(t)
	wireAnalysis(gw)
	bg := &blockingGateway{inner: gw, block: domain.TaskScoreAnswer, started: make(chan struct{})}

	o := newTestOrchestrator(t, bg)
	sess, _, err := o.StartSession(context.Background(), "cv", "jd")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := o.SubmitAnswer(context.Background(), sess.ID, "an answer")
		errCh <- err
	}()
	<-bg.started

	// The session gate is held, so Cancel reaches the in-flight call
	// instead of acquiring.
	require.NoError(t, o.Cancel(context.Background(), sess.ID))
	err = <-errCh
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.PhaseFailed, sess.Phase)
	assert.ErrorIs(t, o.Cancel(context.Background(), sess.ID), domain.ErrConflict)
}

// fakeSessionRepo archives snapshots through a JSON round trip, like the
// real repository does.
type fakeSessionRepo struct {
	rows map[string][]byte
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{rows: map[string][]byte{}}
}

func (r *fakeSessionRepo) SaveSnapshot(_ context.Context, s *domain.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	r.rows[s.ID] = b
	return nil
}

func (r *fakeSessionRepo) GetSnapshot(_ context.Context, id string) (*domain.Session, error) {
	b, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	var s domain.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func TestCompletedSessionArchivedAndServedFromSnapshot(t *testing.T) {
	gw := newFakeGateway(t)
	wireAnalysis(gw)
	answer := "I designed the ingestion service end to end"
	gw.on(domain.TaskScoreAnswer, func(any) (any, error) { return scoreResult(4, answer), nil })

	repo := newFakeSessionRepo()
	store := NewSessionStore()
	o := NewOrchestrator(store, gw, repo, nil, config.DefaultPolicy())

	sess, _, err := o.StartSession(context.Background(), "cv", "jd")
	require.NoError(t, err)
	var prompt *Prompt
	for i := 0; i < len(sess.Plan); i++ {
		prompt, err = o.SubmitAnswer(context.Background(), sess.ID, answer)
		require.NoError(t, err)
	}
	require.True(t, prompt.Done)

	// The acknowledged snapshot replaces the live entry.
	assert.Equal(t, 0, store.Len())

	state, err := o.State(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseComplete, state.Phase)
	assert.Len(t, state.Turns, len(sess.Plan))

	report, err := o.Report(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecommendHire, report.Recommendation)
	assert.False(t, report.Failed)

	// Rebuilding from the snapshot is deterministic.
	again, err := o.Report(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, report.GeneratedAt, again.GeneratedAt)
	assert.Equal(t, report.OverallMean, again.OverallMean)
}

func TestStartSessionRejectsEmptyDocuments(t *testing.T) {
	o := newTestOrchestrator(t, newFakeGateway(t))
	_, _, err := o.StartSession(context.Background(), " ", "jd")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSessionGateRejectsConcurrentOperations(t *testing.T) {
	store := NewSessionStore()
	sess := &domain.Session{ID: "s1", Phase: domain.PhaseQuestioning}
	require.NoError(t, store.Put(sess))
	// Put leaves the creator owning the gate.
	_, err := store.Acquire("s1")
	assert.ErrorIs(t, err, domain.ErrSessionBusy)

	store.Release("s1")
	got, err := store.Acquire("s1")
	require.NoError(t, err)
	assert.Same(t, sess, got)

	_, err = store.Acquire("s1")
	assert.ErrorIs(t, err, domain.ErrSessionBusy)

	_, err = store.Acquire("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStoreAbortFiresBoundCancel(t *testing.T) {
	store := NewSessionStore()
	sess := &domain.Session{ID: "s1"}
	require.NoError(t, store.Put(sess))

	ctx, cancel := context.WithCancel(context.Background())
	store.BindCancel("s1", cancel)
	require.NoError(t, store.Abort("s1"))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	// Release clears the binding; a later Abort has nothing to fire.
	store.Release("s1")
	require.NoError(t, store.Abort("s1"))

	assert.ErrorIs(t, store.Abort("missing"), domain.ErrNotFound)
}
