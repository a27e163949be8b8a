package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/config"
)

// ErrSynthesisUnavailable signals the caller to deliver the utterance as
// text only. It is never retried.
var ErrSynthesisUnavailable = fmt.Errorf("speech synthesis unavailable")

// HTTPSynthesizer renders interviewer utterances as audio through a
// neural-voice HTTP endpoint. With no endpoint configured every call
// degrades to text-only.
type HTTPSynthesizer struct {
	baseURL string
	voice   string
	hc      *http.Client
}

// NewHTTPSynthesizer builds a synthesizer from config; cfg.TTSBaseURL may
// be empty.
func NewHTTPSynthesizer(cfg config.Config) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		baseURL: cfg.TTSBaseURL,
		voice:   cfg.TTSVoice,
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Synthesize returns spoken audio for utterance, or ErrSynthesisUnavailable
// when voice delivery cannot happen. voice overrides the configured default
// when non-empty.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, utterance, voice string) ([]byte, error) {
	if s.baseURL == "" {
		return nil, ErrSynthesisUnavailable
	}
	if voice == "" {
		voice = s.voice
	}
	body, err := json.Marshal(map[string]string{"text": utterance, "voice": voice})
	if err != nil {
		return nil, fmt.Errorf("op=speech.synthesize: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("op=speech.synthesize: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		slog.Warn("tts request failed", slog.Any("error", err))
		return nil, ErrSynthesisUnavailable
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("tts request failed", slog.Int("status", resp.StatusCode))
		return nil, ErrSynthesisUnavailable
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil || len(audio) == 0 {
		return nil, ErrSynthesisUnavailable
	}
	return audio, nil
}
