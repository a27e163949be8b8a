// Package ai implements the model gateway: the single choke-point for all
// calls to the external reasoning service. It owns retry with backoff,
// credential rotation, cooldown bookkeeping and the model-fallback cascade.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/config"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
)

// CooldownStore shares per-credential cooldown state across replicas.
// A nil store keeps cooldowns in-process only.
type CooldownStore interface {
	SetCooldown(ctx context.Context, key string, d time.Duration) error
	InCooldown(ctx context.Context, key string) (bool, error)
}

// Gateway implements domain.ModelGateway over an OpenAI-compatible
// chat-completions endpoint.
type Gateway struct {
	cfg       config.Config
	pool      *domain.CredentialPool
	cooldowns CooldownStore
	hc        *http.Client
	tokens    *tokencount.Counter
}

// New constructs a Gateway. cooldowns may be nil.
func New(cfg config.Config, pool *domain.CredentialPool, cooldowns CooldownStore) *Gateway {
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "llm " + r.Method + " " + r.URL.Path
		}),
	)
	return &Gateway{
		cfg:       cfg,
		pool:      pool,
		cooldowns: cooldowns,
		hc:        &http.Client{Timeout: cfg.LLMTimeout, Transport: transport},
		tokens:    tokencount.NewCounter(),
	}
}

type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

type clientError struct{ err error }

func (e clientError) Error() string { return e.err.Error() }
func (e clientError) Unwrap() error { return e.err }

// Invoke runs one task through the cascade. Each model gets the full retry
// budget with exponential backoff and jitter; advancing the cascade resets
// both the attempt counter and the backoff. Only domain.ErrGatewayExhausted
// escapes retries; everything transient (timeout, rate limit, 5xx,
// malformed schema) is absorbed here.
func (g *Gateway) Invoke(ctx context.Context, task domain.GatewayTask, payload any) (json.RawMessage, error) {
	spec, ok := taskSpecs[task]
	if !ok {
		return nil, fmt.Errorf("%w: unknown gateway task %q", domain.ErrInvalidArgument, task)
	}
	if g.pool.Size() == 0 {
		return nil, fmt.Errorf("%w: no credentials configured", domain.ErrInvalidArgument)
	}
	user, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("op=gateway.invoke: marshal payload: %w", err)
	}

	initial, maxIv, mult := g.cfg.GatewayBackoff()
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = initial
	expo.MaxInterval = maxIv
	expo.Multiplier = mult
	expo.MaxElapsedTime = 0

	cascade := domain.NewCascadeState(g.cfg.LLMModels, g.cfg.LLMRetryBudget)
	var lastErr error
	for {
		model, ok := cascade.Model()
		if !ok {
			break
		}
		raw, err := g.attempt(ctx, task, model, spec, user)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, fmt.Errorf("op=gateway.invoke task=%s: %w", task, ctx.Err())
		}
		slog.Warn("gateway attempt failed",
			slog.String("task", string(task)),
			slog.String("model", model),
			slog.Int("attempt", cascade.Attempt+1),
			slog.Any("error", err))

		var ce clientError
		if errors.As(err, &ce) {
			// The model rejected the request shape; the same input will
			// keep failing, so spend the rest of this model's budget.
			for pos := cascade.Position; cascade.Position == pos; {
				if !cascade.Fail() {
					break
				}
			}
		} else {
			pos := cascade.Position
			if cascade.Fail() && cascade.Position == pos {
				// Same model: wait out the backoff before the next attempt.
				select {
				case <-time.After(expo.NextBackOff()):
				case <-ctx.Done():
					return nil, fmt.Errorf("op=gateway.invoke task=%s: %w", task, ctx.Err())
				}
				continue
			}
		}
		if !cascade.Exhausted() {
			expo.Reset()
			observability.GatewayCascadeAdvanceTotal.WithLabelValues(string(task)).Inc()
			if m, ok := cascade.Model(); ok {
				slog.Info("advancing model cascade",
					slog.String("task", string(task)),
					slog.String("next_model", m))
			}
		}
	}
	return nil, fmt.Errorf("op=gateway.invoke task=%s: %w: %v", task, domain.ErrGatewayExhausted, lastErr)
}

// attempt performs one HTTP call with one credential and validates the
// structured response. All failures it returns are retryable unless
// wrapped as clientError.
func (g *Gateway) attempt(ctx context.Context, task domain.GatewayTask, model string, spec taskSpec, user []byte) (json.RawMessage, error) {
	key, err := g.selectCredential(ctx)
	if err != nil {
		return nil, err
	}

	userContent := g.tokens.Truncate(model, string(user), g.cfg.LLMMaxPromptToks)
	body := map[string]any{
		"model":       model,
		"temperature": spec.temperature,
		"max_tokens":  spec.maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": spec.system},
			{"role": "user", "content": userContent},
		},
		"response_format": map[string]string{"type": "json_object"},
	}
	b, _ := json.Marshal(body)

	cctx, cancel := context.WithTimeout(ctx, g.cfg.LLMTimeout)
	defer cancel()

	start := time.Now()
	req, _ := http.NewRequestWithContext(cctx, http.MethodPost, g.cfg.LLMBaseURL+"/chat/completions", bytes.NewReader(b))
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.hc.Do(req)
	observability.GatewayRequestDuration.WithLabelValues(string(task), model).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.GatewayRequestsTotal.WithLabelValues(string(task), model, "transport_error").Inc()
		// Deadline expiry is treated identically to a transient failure.
		return nil, retryableError{fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		g.markRateLimited(ctx, key, resp.Header.Get("Retry-After"))
		observability.GatewayRequestsTotal.WithLabelValues(string(task), model, "rate_limited").Inc()
		return nil, retryableError{fmt.Errorf("%w: status 429", domain.ErrRateLimited)}
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.GatewayRequestsTotal.WithLabelValues(string(task), model, "read_error").Inc()
		return nil, retryableError{err}
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		snippet := string(bodyBytes)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		slog.Warn("model provider 4xx",
			slog.String("task", string(task)),
			slog.String("model", model),
			slog.Int("status", resp.StatusCode),
			slog.String("body", snippet))
		observability.GatewayRequestsTotal.WithLabelValues(string(task), model, "client_error").Inc()
		return nil, clientError{fmt.Errorf("chat status %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.GatewayRequestsTotal.WithLabelValues(string(task), model, "server_error").Inc()
		return nil, retryableError{fmt.Errorf("chat status %d", resp.StatusCode)}
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		observability.GatewayRequestsTotal.WithLabelValues(string(task), model, "decode_error").Inc()
		return nil, retryableError{fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)}
	}
	if len(out.Choices) == 0 {
		observability.GatewayRequestsTotal.WithLabelValues(string(task), model, "empty_choices").Inc()
		return nil, retryableError{fmt.Errorf("%w: empty choices", domain.ErrSchemaInvalid)}
	}

	raw := json.RawMessage(CleanJSON(out.Choices[0].Message.Content))
	// Structural validation failures count against the retry budget; the
	// next attempt asks again rather than trusting a malformed shape.
	if _, err := domain.DecodeResult(task, raw); err != nil {
		observability.GatewayRequestsTotal.WithLabelValues(string(task), model, "schema_invalid").Inc()
		return nil, retryableError{err}
	}
	observability.GatewayRequestsTotal.WithLabelValues(string(task), model, "ok").Inc()
	return raw, nil
}

// selectCredential picks the next available key, consulting the shared
// cooldown store when configured.
func (g *Gateway) selectCredential(ctx context.Context) (string, error) {
	size := g.pool.Size()
	for i := 0; i < size; i++ {
		key, ok := g.pool.Next()
		if !ok {
			break
		}
		if g.cooldowns == nil {
			return key, nil
		}
		cooling, err := g.cooldowns.InCooldown(ctx, key)
		if err != nil {
			// Shared store unavailable: fall back to local bookkeeping.
			slog.Warn("cooldown store check failed", slog.Any("error", err))
			return key, nil
		}
		if !cooling {
			return key, nil
		}
	}
	// Every key cooling everywhere; local pool still yields the soonest.
	if key, ok := g.pool.Next(); ok {
		return key, nil
	}
	return "", fmt.Errorf("%w: no credentials configured", domain.ErrInvalidArgument)
}

// markRateLimited updates cooldown bookkeeping. The write must land even
// when the session that triggered it was cancelled mid-flight, so the
// shared-store update uses a detached context.
func (g *Gateway) markRateLimited(ctx context.Context, key, retryAfter string) {
	d := g.cfg.LLMCooldown
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			d = time.Duration(secs) * time.Second
		}
	}
	g.pool.MarkCooldown(key, d)
	observability.CredentialCooldownsTotal.Inc()
	if g.cooldowns != nil {
		if err := g.cooldowns.SetCooldown(context.WithoutCancel(ctx), key, d); err != nil {
			slog.Warn("cooldown store update failed", slog.Any("error", err))
		}
	}
}
