package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/availability"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/ratelimit"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/utils"
)

// TokenSource supplies the credential for one provider. Refresh is
// called at most once per request, after an auth rejection.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// StaticTokenSource wraps a fixed API key. Refresh hands back the same
// key; a second auth rejection then surfaces as a hard failure.
type StaticTokenSource struct {
	Key string
}

func (s StaticTokenSource) Token(context.Context) (string, error)   { return s.Key, nil }
func (s StaticTokenSource) Refresh(context.Context) (string, error) { return s.Key, nil }

// ErrNoProviders is returned by CallWithFallback when every candidate
// was exhausted without a successful response.
var ErrNoProviders = errors.New("no provider produced a response")

// GatewayConfig tunes retry behavior.
type GatewayConfig struct {
	MaxAttempts      int
	BaseBackoff      time.Duration
	RequestTimeout   time.Duration
	MaxMessageLength int
}

// Gateway is the single entry point for upstream LLM calls. It owns
// sanitization, rate limit consultation, the retry loop and availability
// bookkeeping; adapters only translate wire formats.
type Gateway struct {
	providers map[models.ProviderName]Provider
	tokens    map[models.ProviderName]TokenSource
	limits    *ratelimit.Tracker
	avail     *availability.Tracker
	cfg       GatewayConfig
	logger    *utils.Logger

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(time.Duration)
}

// NewGateway wires the gateway. All trackers are injected; the gateway
// holds no global state.
func NewGateway(
	adapters []Provider,
	tokens map[models.ProviderName]TokenSource,
	limits *ratelimit.Tracker,
	avail *availability.Tracker,
	cfg GatewayConfig,
	logger *utils.Logger,
) *Gateway {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 8000
	}

	if logger == nil {
		logger = utils.NewLogger("gateway")
	}

	byName := make(map[models.ProviderName]Provider, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}

	return &Gateway{
		providers: byName,
		tokens:    tokens,
		limits:    limits,
		avail:     avail,
		cfg:       cfg,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// Call runs one provider request through validation, the rate limiter
// and the retry loop, and returns a normalized response.
func (g *Gateway) Call(ctx context.Context, provider models.ProviderName, req ChatRequest) (*models.AIResponse, error) {
	adapter, ok := g.providers[provider]
	if !ok {
		return nil, validationError(string(provider), "provider is not configured")
	}

	limits := models.LimitsFor(provider)
	if req.MaxTokens > limits.MaxTokensCeiling {
		return nil, validationError(string(provider),
			fmt.Sprintf("max_tokens %d exceeds ceiling %d", req.MaxTokens, limits.MaxTokensCeiling))
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = limits.MaxTokensCeiling
	}

	sanitized := make([]models.ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		sanitized[i] = models.ChatMessage{Role: m.Role, Content: Sanitize(m.Content, g.cfg.MaxMessageLength)}
	}
	req.Messages = sanitized

	// Rate limit is checked before any network traffic; a throttled
	// provider costs the caller nothing upstream.
	if !g.limits.CheckLimit(provider) {
		return nil, &Error{Kind: KindRateLimit, Provider: string(provider), Detail: "local rate limit window exhausted"}
	}

	source, ok := g.tokens[provider]
	if !ok {
		return nil, &Error{Kind: KindAuth, Provider: string(provider), Detail: "no credentials configured"}
	}
	key, err := source.Token(ctx)
	if err != nil {
		return nil, &Error{Kind: KindAuth, Provider: string(provider), Detail: err.Error()}
	}

	var lastErr error
	refreshed := false

	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if g.cfg.RequestTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, g.cfg.RequestTimeout)
		}

		start := time.Now()
		result, err := adapter.Chat(callCtx, key, req)
		elapsed := time.Since(start)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			g.limits.Record(provider, result.Tokens)
			g.avail.MarkAvailable(provider)
			return &models.AIResponse{
				Provider:       provider,
				Model:          req.Model,
				Content:        result.Content,
				Confidence:     ScoreConfidence(provider, result.Content),
				Tokens:         result.Tokens,
				ResponseTimeMS: elapsed.Milliseconds(),
			}, nil
		}

		lastErr = err
		perr, typed := AsError(err)
		if !typed {
			perr = transportError(string(provider), err)
			lastErr = perr
		}

		g.logger.Warn("provider call failed",
			"provider", string(provider),
			"attempt", attempt,
			"kind", string(perr.Kind),
			"detail", perr.Detail,
		)

		switch perr.Kind {
		case KindAuth:
			if !refreshed {
				refreshed = true
				if newKey, rerr := source.Refresh(ctx); rerr == nil && newKey != "" && newKey != key {
					key = newKey
					// Fresh credentials get an immediate retry that does
					// not count against the attempt budget.
					attempt--
					continue
				}
			}
			g.avail.MarkUnavailable(provider, perr.Detail)
			return nil, lastErr
		case KindValidation:
			return nil, lastErr
		}

		if ctx.Err() != nil {
			return nil, lastErr
		}
		if attempt < g.cfg.MaxAttempts {
			g.sleep(g.cfg.BaseBackoff << (attempt - 1))
		}
	}

	// Retries exhausted on transient failures; sideline the provider so
	// fallback traffic stops hitting it until the cooldown elapses. A
	// provider that throttles through every attempt counts too.
	if perr, ok := AsError(lastErr); ok && (perr.Kind == KindUpstream || perr.Kind == KindRateLimit) {
		g.avail.MarkUnavailable(provider, perr.Detail)
	}
	return nil, lastErr
}

// CallWithFallback walks an ordered candidate list and returns the first
// successful response. Unavailable providers are skipped up front;
// per-candidate errors are joined when nothing succeeds.
func (g *Gateway) CallWithFallback(ctx context.Context, candidates []models.ProviderName, req ChatRequest) (*models.AIResponse, error) {
	if len(candidates) == 0 {
		candidates = models.AllProviders()
	}

	errs := make([]error, 0, len(candidates))
	for _, provider := range candidates {
		if !g.avail.IsAvailable(provider) {
			errs = append(errs, fmt.Errorf("%s: skipped, in cooldown", provider))
			continue
		}

		resp, err := g.Call(ctx, provider, req)
		if err == nil {
			return resp, nil
		}
		errs = append(errs, err)

		if ctx.Err() != nil {
			break
		}
	}

	return nil, errors.Join(append([]error{ErrNoProviders}, errs...)...)
}

// Available reports which of the known providers are currently taking
// traffic, in default fallback order.
func (g *Gateway) Available() []models.ProviderName {
	out := make([]models.ProviderName, 0, len(g.providers))
	for _, p := range models.AllProviders() {
		if _, ok := g.providers[p]; !ok {
			continue
		}
		if g.avail.IsAvailable(p) {
			out = append(out, p)
		}
	}
	return out
}
