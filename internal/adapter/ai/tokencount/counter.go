// Package tokencount provides token counting for model prompt budgeting.
//
// It uses tiktoken-go, a Go port of OpenAI's tiktoken library, so prompt
// truncation happens on token boundaries rather than byte guesses.
package tokencount

import (
	"log/slog"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter provides thread-safe token counting with per-model encoding cache.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{encodingCache: make(map[string]*tiktoken.Tiktoken)}
}

func (c *Counter) encodingFor(model string) *tiktoken.Tiktoken {
	c.mu.RLock()
	if enc, ok := c.encodingCache[model]; ok {
		c.mu.RUnlock()
		return enc
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// cl100k_base covers modern chat models well enough for budgeting.
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model),
			slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil
		}
	}
	c.encodingCache[model] = enc
	return enc
}

// Count returns the token count of text for model. When no encoding is
// available it falls back to a bytes/4 estimate.
func (c *Counter) Count(model, text string) int {
	enc := c.encodingFor(model)
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// Truncate cuts text down to at most maxTokens tokens for model. Text
// within budget is returned unchanged.
func (c *Counter) Truncate(model, text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	enc := c.encodingFor(model)
	if enc == nil {
		if len(text) <= maxTokens*4 {
			return text
		}
		return text[:maxTokens*4]
	}
	toks := enc.Encode(text, nil, nil)
	if len(toks) <= maxTokens {
		return text
	}
	return enc.Decode(toks[:maxTokens])
}
