package usecase

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-voice-interviewer/pkg/textx"
)

// RejectionReason names the evidence rule a score violated.
type RejectionReason string

const (
	RejectEmptyQuote     RejectionReason = "empty_quote"
	RejectQuoteNotFound  RejectionReason = "quote_not_in_transcript"
	RejectEmptyReasoning RejectionReason = "empty_reasoning"
	RejectReasoningEcho  RejectionReason = "reasoning_echoes_quote"
)

// EvidenceError carries the dimension and rule behind a rejected score.
type EvidenceError struct {
	Dimension domain.Dimension
	Reason    RejectionReason
}

func (e *EvidenceError) Error() string {
	return fmt.Sprintf("evidence rejected: %s dimension %s", e.Reason, e.Dimension)
}

// Unwrap ties evidence errors into the sentinel taxonomy.
func (e *EvidenceError) Unwrap() error { return domain.ErrEvidenceRejected }

// ValidateEvidence enforces the evidence contract on a structurally valid
// score: each dimension's quote must be a verbatim substring of the
// transcript (whitespace differences tolerated, case preserved) and its
// reasoning must be non-empty and not a restatement of the quote. The first
// violated rule is returned; callers treat it as grounds to re-ask the
// model, not to fail the session.
func ValidateEvidence(res *domain.ScoreResult, transcript string) error {
	collapsed := textx.CollapseWhitespace(transcript)
	for _, dim := range domain.Dimensions {
		d := res.ByDimension()[dim]
		if strings.TrimSpace(d.Quote) == "" {
			return reject(dim, RejectEmptyQuote)
		}
		if !strings.Contains(transcript, d.Quote) &&
			!strings.Contains(collapsed, textx.CollapseWhitespace(d.Quote)) {
			return reject(dim, RejectQuoteNotFound)
		}
		reasoning := strings.TrimSpace(d.Reasoning)
		if reasoning == "" {
			return reject(dim, RejectEmptyReasoning)
		}
		if textx.CollapseWhitespace(reasoning) == textx.CollapseWhitespace(d.Quote) {
			return reject(dim, RejectReasoningEcho)
		}
	}
	return nil
}

func reject(dim domain.Dimension, reason RejectionReason) error {
	observability.EvidenceRejectionsTotal.WithLabelValues(string(reason)).Inc()
	return &EvidenceError{Dimension: dim, Reason: reason}
}
