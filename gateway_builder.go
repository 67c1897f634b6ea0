package mathchat

import (
	"go.uber.org/zap"

	"github.com/mhpenta/mathchat/ratelimiter"
)

// GatewayOption configures the Gateway.
type GatewayOption func(*Gateway)

// WithLogger sets a structured logger for the gateway.
func WithLogger(logger *zap.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithModel selects the model by public or API name.
func WithModel(model Model) GatewayOption {
	return func(g *Gateway) {
		g.model = model
	}
}

// WithRateLimiter sets a limiter checked once before every call.
func WithRateLimiter(limiter ratelimiter.Limiter) GatewayOption {
	return func(g *Gateway) {
		g.limiter = limiter
		g.limiterSet = true
	}
}

// WithGenerateConfig sets the base request options.
func WithGenerateConfig(cfg *GenerateConfig) GatewayOption {
	return func(g *Gateway) {
		if cfg != nil {
			g.genConfig = cfg
		}
	}
}

// WithPromptTemplate overrides the solution prompt. The template should
// contain the {{problem}} placeholder.
func WithPromptTemplate(template string) GatewayOption {
	return func(g *Gateway) {
		if template != "" {
			g.template = template
		}
	}
}

// NewGateway creates a Gateway in front of the given provider.
//
// Example:
//
//	gen, err := gemini.NewWithAPIKey(ctx, apiKey)
//	if err != nil {
//	    return err
//	}
//	gateway := mathchat.NewGateway(gen)
//
// With options:
//
//	gateway := mathchat.NewGateway(gen,
//	    mathchat.WithLogger(logger),
//	    mathchat.WithModel(mathchat.ModelNanoBanana2),
//	)
//
// Unless WithRateLimiter is given, a local limiter is created from the
// selected model's published rate limits.
func NewGateway(provider ImageGenerator, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		provider:       provider,
		template:       DefaultPromptTemplate,
		genConfig:      DefaultConfig(),
		tokenEstimator: NewSimpleTokenEstimator(),
		logger:         zap.NewNop(),
	}

	for _, opt := range opts {
		opt(g)
	}

	if !g.limiterSet {
		if info, ok := LookupModel(provider.Models(), g.model); ok {
			limits := info.RateLimits
			if limits.TokensPerMinute > 0 || limits.RequestsPerMinute > 0 {
				g.limiter = ratelimiter.New(limits.TokensPerMinute, limits.RequestsPerMinute)
			}
		}
	}

	return g
}
