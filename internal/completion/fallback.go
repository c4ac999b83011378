package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"claimsqa/internal/observability"
	"claimsqa/internal/port"
)

// provider is one entry of the fallback chain. pausedUntil is set when the
// provider reports a rate limit and cleared implicitly once it passes.
type provider struct {
	name      string
	completer port.Completer

	mu          sync.Mutex
	pausedUntil time.Time
}

func (p *provider) paused(now time.Time) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pausedUntil, now.Before(p.pausedUntil)
}

func (p *provider) pause(until time.Time) {
	p.mu.Lock()
	p.pausedUntil = until
	p.mu.Unlock()
}

// FallbackCompleter implements port.Completer over an ordered provider
// chain. A rate-limited provider is skipped until its Retry-After elapses.
type FallbackCompleter struct {
	providers []*provider
}

// NewFallbackCompleter builds the chain; names[i] labels completers[i].
func NewFallbackCompleter(completers []port.Completer, names []string) *FallbackCompleter {
	providers := make([]*provider, len(completers))
	for i, c := range completers {
		name := fmt.Sprintf("provider-%d", i)
		if i < len(names) {
			name = names[i]
		}
		providers[i] = &provider{name: name, completer: c}
	}
	return &FallbackCompleter{providers: providers}
}

func (f *FallbackCompleter) Complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	logger := observability.LoggerFromContext(ctx)
	now := time.Now()

	var (
		lastErr     error
		onlyLimited = true
		resumeAt    time.Time
	)
	noteResume := func(t time.Time) {
		if resumeAt.IsZero() || t.Before(resumeAt) {
			resumeAt = t
		}
	}

	for _, p := range f.providers {
		if until, paused := p.paused(now); paused {
			logger.Debug().Str("provider", p.name).Time("paused_until", until).
				Msg("completion.Fallback: provider paused")
			noteResume(until)
			continue
		}

		out, err := p.completer.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err

		var rl *RateLimitError
		if !errors.As(err, &rl) {
			onlyLimited = false
			logger.Warn().Err(err).Str("provider", p.name).Msg("completion.Fallback: provider failed")
			continue
		}
		until := now.Add(rl.RetryAfter)
		p.pause(until)
		noteResume(until)
		logger.Warn().Err(err).Str("provider", p.name).Dur("retry_after", rl.RetryAfter).
			Msg("completion.Fallback: provider rate limited")
	}

	if lastErr != nil && !onlyLimited {
		return nil, fmt.Errorf("all completion providers failed: %w", lastErr)
	}
	wait := time.Until(resumeAt)
	if wait < time.Second {
		wait = time.Second
	}
	return nil, NewRateLimitError("all", errors.New("all completion providers rate limited"), int(wait.Seconds()))
}
