package usecase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
)

func validScore(quote string) domain.ScoreResult {
	d := domain.ScoredDimension{Score: 4, Quote: quote, Reasoning: "demonstrates ownership of the work"}
	return domain.ScoreResult{Relevance: d, Depth: d, Competency: d, Communication: d}
}

func TestValidateEvidenceAccepts(t *testing.T) {
	t.Parallel()
	transcript := "I led the migration to Kafka and owned the rollout."
	res := validScore("owned the rollout")
	require.NoError(t, ValidateEvidence(&res, transcript))
}

func TestValidateEvidenceToleratesWhitespaceDifferences(t *testing.T) {
	t.Parallel()
	transcript := "I led the migration\n  to Kafka and owned the rollout."
	res := validScore("the migration to Kafka")
	require.NoError(t, ValidateEvidence(&res, transcript))
}

func TestValidateEvidenceIsCaseSensitive(t *testing.T) {
	t.Parallel()
	transcript := "I led the migration to Kafka."
	res := validScore("THE MIGRATION TO KAFKA")
	err := ValidateEvidence(&res, transcript)
	require.Error(t, err)
	var ee *EvidenceError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, RejectQuoteNotFound, ee.Reason)
}

func TestValidateEvidenceRejections(t *testing.T) {
	t.Parallel()
	transcript := "I led the migration to Kafka."
	cases := []struct {
		name   string
		mutate func(*domain.ScoreResult)
		want   RejectionReason
		dim    domain.Dimension
	}{
		{
			name:   "empty quote",
			mutate: func(r *domain.ScoreResult) { r.Depth.Quote = "  " },
			want:   RejectEmptyQuote,
			dim:    domain.DimDepth,
		},
		{
			name:   "fabricated quote",
			mutate: func(r *domain.ScoreResult) { r.Communication.Quote = "I invented Kubernetes" },
			want:   RejectQuoteNotFound,
			dim:    domain.DimCommunication,
		},
		{
			name:   "empty reasoning",
			mutate: func(r *domain.ScoreResult) { r.Relevance.Reasoning = "" },
			want:   RejectEmptyReasoning,
			dim:    domain.DimRelevance,
		},
		{
			name: "reasoning echoes quote",
			mutate: func(r *domain.ScoreResult) {
				r.Competency.Quote = "led the migration"
				r.Competency.Reasoning = "led  the\tmigration"
			},
			want: RejectReasoningEcho,
			dim:  domain.DimCompetency,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := validScore("led the migration")
			tc.mutate(&res)
			err := ValidateEvidence(&res, transcript)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrEvidenceRejected)
			var ee *EvidenceError
			require.True(t, errors.As(err, &ee))
			assert.Equal(t, tc.want, ee.Reason)
			assert.Equal(t, tc.dim, ee.Dimension)
		})
	}
}
