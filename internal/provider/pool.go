package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// ErrAllProvidersFailed is returned by Complete when no eligible provider
// produced a completion.
var ErrAllProvidersFailed = errors.New("all providers failed or unavailable")

// FallbackProviderID tags responses drawn from the static fallback set.
const FallbackProviderID = "fallback"

// defaultFallbackResponses is the static bank used when configuration
// supplies none.
var defaultFallbackResponses = []string{
	"I'm having a little trouble answering right now. Could you try again in a moment?",
	"Sorry, I couldn't put together a proper answer just now. Please try once more.",
	"I can't reach my knowledge sources at the moment. Give me a minute and ask again.",
}

// PoolConfig configures a provider pool.
type PoolConfig struct {
	// RequestTimeout bounds each individual provider attempt.
	RequestTimeout time.Duration

	// RateWindow, RateLimit, and MaxConsecutiveErrors parameterize the
	// per-provider State created for each adapter.
	RateWindow           time.Duration
	RateLimit            int
	MaxConsecutiveErrors int

	// FallbackResponses overrides the static fallback bank when non-empty.
	FallbackResponses []string
}

// Pool holds the provider adapters in priority order, each wrapped by a
// State. Generate never returns an error; exhaustion degrades to a static
// fallback response.
type Pool struct {
	logger   *slog.Logger
	adapters []Adapter
	states   map[string]*State

	timeout   time.Duration
	fallbacks []string

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewPool creates a pool over the adapters in the given priority order.
func NewPool(logger *slog.Logger, adapters []Adapter, cfg PoolConfig) *Pool {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	fallbacks := cfg.FallbackResponses
	if len(fallbacks) == 0 {
		fallbacks = defaultFallbackResponses
	}

	states := make(map[string]*State, len(adapters))
	for _, a := range adapters {
		states[a.Name()] = NewState(cfg.RateWindow, cfg.RateLimit, cfg.MaxConsecutiveErrors)
	}

	return &Pool{
		logger:    logger.With("component", "provider_pool"),
		adapters:  adapters,
		states:    states,
		timeout:   cfg.RequestTimeout,
		fallbacks: fallbacks,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Generate tries providers in priority order, skipping any that are rate
// limited or circuit-broken, and returns the first successful completion.
// If every eligible provider is skipped or fails, it returns a fallback
// response with Success=false. Generate never returns an error.
func (p *Pool) Generate(ctx context.Context, req Request) Response {
	start := time.Now()
	messages := req.BuildMessages()

	for _, adapter := range p.adapters {
		name := adapter.Name()
		state := p.states[name]

		if !state.CanUse() {
			p.logger.DebugContext(ctx, "Skipping unavailable provider",
				"provider", name, "consecutive_errors", state.ConsecutiveErrors())
			continue
		}

		content, err := p.tryAdapter(ctx, adapter, messages, req.Options)
		if err != nil {
			state.RecordFailure()
			p.logger.WarnContext(ctx, "Provider attempt failed, advancing to next",
				"provider", name, "error", err,
				"consecutive_errors", state.ConsecutiveErrors())
			continue
		}

		state.RecordSuccess()
		return Response{
			Content:        content,
			ProviderID:     name,
			Success:        true,
			Confidence:     0.9,
			Timestamp:      time.Now().UTC(),
			ProcessingTime: time.Since(start),
		}
	}

	p.logger.WarnContext(ctx, "All providers exhausted, using static fallback")
	return Response{
		Content:        p.fallbackContent(),
		ProviderID:     FallbackProviderID,
		Success:        false,
		Confidence:     0.1,
		Timestamp:      time.Now().UTC(),
		ProcessingTime: time.Since(start),
	}
}

// Complete runs a single short completion through the provider chain and
// returns an error when every eligible provider fails. It is used for
// classification calls where the caller has its own rule-based fallback.
func (p *Pool) Complete(ctx context.Context, systemInstruction, prompt string, opts Options) (string, error) {
	messages := Request{
		SystemInstruction: systemInstruction,
		Prompt:            prompt,
		Options:           opts,
	}.BuildMessages()

	var lastErr error
	for _, adapter := range p.adapters {
		name := adapter.Name()
		state := p.states[name]

		if !state.CanUse() {
			continue
		}

		content, err := p.tryAdapter(ctx, adapter, messages, opts)
		if err != nil {
			state.RecordFailure()
			lastErr = err
			continue
		}

		state.RecordSuccess()
		return content, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
	}
	return "", ErrAllProvidersFailed
}

// CanUse reports whether the named provider is currently available.
func (p *Pool) CanUse(providerID string) bool {
	state, ok := p.states[providerID]
	if !ok {
		return false
	}
	return state.CanUse()
}

// RecordAttempt updates the named provider's state: failures increment the
// consecutive-error counter, successes count against the rate window.
func (p *Pool) RecordAttempt(providerID string, success bool) {
	state, ok := p.states[providerID]
	if !ok {
		return
	}
	if success {
		state.RecordSuccess()
	} else {
		state.RecordFailure()
	}
}

// ResetProvider clears the named provider's circuit and rate window.
func (p *Pool) ResetProvider(providerID string) {
	if state, ok := p.states[providerID]; ok {
		state.Reset()
		p.logger.Info("Provider state reset", "provider", providerID)
	}
}

// tryAdapter runs one bounded provider attempt. Panics inside an adapter
// are converted to errors so a misbehaving backend cannot take down the
// pipeline.
func (p *Pool) tryAdapter(ctx context.Context, adapter Adapter, messages []Message, opts Options) (content string, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider %s panicked: %v", adapter.Name(), r)
		}
	}()

	content, err = adapter.Generate(attemptCtx, messages, opts)
	if err != nil {
		return "", err
	}
	if content == "" {
		return "", fmt.Errorf("provider %s returned empty content", adapter.Name())
	}
	return content, nil
}

func (p *Pool) fallbackContent() string {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.fallbacks[p.rng.Intn(len(p.fallbacks))]
}
