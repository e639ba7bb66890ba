package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/AgentHub/internal/pkg/env"
	"github.com/ManuelReschke/AgentHub/internal/pkg/metrics"
	"github.com/ManuelReschke/AgentHub/internal/pkg/pricing"
)

const (
	// DefaultTimeout bounds a single generation call.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxTokens caps the reply length requested from providers.
	DefaultMaxTokens = 2048
)

// Message is one prior turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// Request is everything a provider needs to produce one reply.
type Request struct {
	Model     string
	System    string
	Knowledge string
	History   []Message
	Message   string
	MaxTokens int
}

// Result is a generated reply. Usage is nil when the provider did not report
// token counts and the caller has to estimate them.
type Result struct {
	Text  string
	Model string
	Usage *pricing.Usage
}

// Provider is a black-box completion capability.
type Provider interface {
	Name() string
	// SupportsCaching reports whether the provider bills repeated prompt
	// prefixes as cached input tokens.
	SupportsCaching() bool
	Generate(ctx context.Context, req Request) (*Result, error)
}

// UpstreamError is returned for every failure at the completion boundary,
// including timeouts and non-2xx responses.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Timeout    bool
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: generation timed out", e.Provider)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: upstream error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: upstream error: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s: upstream error: %s", e.Provider, e.Message)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ErrNoProvider is returned when no provider is configured for a model.
var ErrNoProvider = errors.New("completion: no provider configured for model")

type route struct {
	prefix   string
	provider Provider
}

// Router dispatches requests to a provider by model prefix and enforces the
// per-call timeout.
type Router struct {
	routes   []route
	fallback Provider
	timeout  time.Duration
}

// NewRouter creates a router. A zero timeout uses DefaultTimeout.
func NewRouter(timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Router{timeout: timeout}
}

// NewRouterFromEnv wires the OpenAI and Anthropic providers whose API keys are configured.
func NewRouterFromEnv() *Router {
	r := NewRouter(time.Duration(env.GetEnvInt("COMPLETION_TIMEOUT_SECONDS", 0)) * time.Second)
	if key := strings.TrimSpace(env.GetEnv("ANTHROPIC_API_KEY", "")); key != "" {
		r.Route("claude", NewAnthropicProvider(AnthropicConfig{
			APIKey:  key,
			BaseURL: env.GetEnv("ANTHROPIC_BASE_URL", ""),
		}))
	}
	if key := strings.TrimSpace(env.GetEnv("OPENAI_API_KEY", "")); key != "" {
		r.Fallback(NewOpenAIProvider(OpenAIConfig{
			APIKey:  key,
			BaseURL: env.GetEnv("OPENAI_BASE_URL", ""),
		}))
	}
	return r
}

// Route sends models starting with prefix to p.
func (r *Router) Route(prefix string, p Provider) *Router {
	r.routes = append(r.routes, route{prefix: strings.ToLower(prefix), provider: p})
	return r
}

// Fallback sets the provider for models no route matches.
func (r *Router) Fallback(p Provider) *Router {
	r.fallback = p
	return r
}

// Resolve returns the provider serving model.
func (r *Router) Resolve(model string) (Provider, error) {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, rt := range r.routes {
		if strings.HasPrefix(m, rt.prefix) {
			return rt.provider, nil
		}
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoProvider, model)
}

// Generate runs req on the provider for req.Model within the router timeout.
// Every failure is reported as *UpstreamError.
func (r *Router) Generate(ctx context.Context, req Request) (*Result, error) {
	p, err := r.Resolve(req.Model)
	if err != nil {
		return nil, &UpstreamError{Provider: "router", Message: err.Error(), Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	res, err := p.Generate(callCtx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.CompletionDuration.WithLabelValues(p.Name(), status).Observe(time.Since(start).Seconds())
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				upstream.Timeout = true
			}
			return nil, upstream
		}
		return nil, &UpstreamError{
			Provider: p.Name(),
			Timeout:  errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded),
			Err:      err,
		}
	}
	if res == nil || strings.TrimSpace(res.Text) == "" {
		return nil, &UpstreamError{Provider: p.Name(), Message: "empty completion"}
	}
	return res, nil
}

// knowledgeBlock frames agent knowledge for the system prompt.
func knowledgeBlock(knowledge string) string {
	k := strings.TrimSpace(knowledge)
	if k == "" {
		return ""
	}
	return "Use the following reference material when it is relevant to the question:\n\n" + k
}
