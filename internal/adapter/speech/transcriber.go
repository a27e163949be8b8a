// Package speech holds the voice collaborators: speech-to-text for candidate
// answers and text-to-speech for interviewer utterances. Both are best-effort
// edges of the pipeline; their failures never feed the gateway retry path.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/config"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
)

// WhisperTranscriber transcribes answer audio through an OpenAI-compatible
// audio transcription endpoint.
type WhisperTranscriber struct {
	baseURL string
	model   string
	pool    *domain.CredentialPool
	hc      *http.Client
}

// NewWhisperTranscriber builds a transcriber sharing the gateway credential
// pool, so STT rate limits participate in the same cooldown bookkeeping.
func NewWhisperTranscriber(cfg config.Config, pool *domain.CredentialPool) *WhisperTranscriber {
	return &WhisperTranscriber{
		baseURL: cfg.STTBaseURL,
		model:   cfg.STTModel,
		pool:    pool,
		hc:      &http.Client{Timeout: 60 * time.Second},
	}
}

// Transcribe uploads audio and returns its text. An empty transcript is a
// valid result meaning the candidate said nothing intelligible.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty audio payload", domain.ErrInvalidArgument)
	}
	key, ok := t.pool.Next()
	if !ok {
		return "", fmt.Errorf("%w: no credentials configured", domain.ErrInvalidArgument)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("op=speech.transcribe: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("op=speech.transcribe: %w", err)
	}
	if err := mw.WriteField("model", t.model); err != nil {
		return "", fmt.Errorf("op=speech.transcribe: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("op=speech.transcribe: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("op=speech.transcribe: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("op=speech.transcribe: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("op=speech.transcribe: %w: %v", domain.ErrUpstreamTimeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		t.pool.MarkCooldown(key, 30*time.Second)
		return "", fmt.Errorf("op=speech.transcribe: %w", domain.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("stt request failed",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)))
		return "", fmt.Errorf("op=speech.transcribe: status %d", resp.StatusCode)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("op=speech.transcribe: decode: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
