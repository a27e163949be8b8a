package usecase

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
)

// GapService runs the analysis stage: both document extractions in parallel,
// then the comparison over the structured results.
type GapService struct {
	Gateway domain.ModelGateway
}

// NewGapService constructs a GapService.
func NewGapService(gw domain.ModelGateway) GapService {
	return GapService{Gateway: gw}
}

// Analyze extracts both documents concurrently and compares them. Either
// extraction failing fails the whole stage; the comparison never runs on a
// partial pair.
func (s GapService) Analyze(ctx context.Context, cvText, jdText string) (*domain.CVProfile, *domain.JDProfile, *domain.GapAnalysis, error) {
	var cv domain.CVProfile
	var jd domain.JDProfile

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := s.Gateway.Invoke(gctx, domain.TaskExtractCV, domain.ExtractRequest{Text: cvText})
		if err != nil {
			return fmt.Errorf("%w: cv: %w", domain.ErrExtractionFailed, err)
		}
		res, err := domain.DecodeResult(domain.TaskExtractCV, raw)
		if err != nil {
			return fmt.Errorf("%w: cv: %w", domain.ErrExtractionFailed, err)
		}
		cv = res.(*domain.CVExtractResult).CVProfile
		return nil
	})
	g.Go(func() error {
		raw, err := s.Gateway.Invoke(gctx, domain.TaskExtractJD, domain.ExtractRequest{Text: jdText})
		if err != nil {
			return fmt.Errorf("%w: jd: %w", domain.ErrExtractionFailed, err)
		}
		res, err := domain.DecodeResult(domain.TaskExtractJD, raw)
		if err != nil {
			return fmt.Errorf("%w: jd: %w", domain.ErrExtractionFailed, err)
		}
		jd = res.(*domain.JDExtractResult).JDProfile
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	raw, err := s.Gateway.Invoke(ctx, domain.TaskCompareGaps, domain.CompareRequest{CV: cv, JD: jd})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", domain.ErrComparisonFailed, err)
	}
	res, err := domain.DecodeResult(domain.TaskCompareGaps, raw)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", domain.ErrComparisonFailed, err)
	}
	gaps := res.(*domain.CompareResult).GapAnalysis
	observability.MatchScoreHistogram.Observe(gaps.MatchScore)
	return &cv, &jd, &gaps, nil
}
