package mathchat

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mhpenta/mathchat/ratelimiter"
)

// Gateway wraps one outbound call to the remote generation service.
// It builds the solution prompt, validates the optional image, extracts the
// first inline image of the response and maps every failure to a
// GenerationError. Calls are exactly-once: no retries, no waiting.
type Gateway struct {
	provider ImageGenerator

	// Model to request; empty means the provider default
	model Model

	// Prompt template with a {{problem}} placeholder
	template string

	// Base request options; Model is overridden by the resolved model
	genConfig *GenerateConfig

	// Admission control (optional)
	limiter    ratelimiter.Limiter
	limiterSet bool

	tokenEstimator TokenEstimator

	logger *zap.Logger

	mu sync.RWMutex
}

// Ensure Gateway implements Generator.
var _ Generator = (*Gateway)(nil)

// Generate solves promptText (and the optional image) and returns the
// base64 payload of the first image in the response.
func (g *Gateway) Generate(ctx context.Context, promptText string, image *InputImage) (string, error) {
	g.mu.RLock()
	provider := g.provider
	limiter := g.limiter
	logger := g.logger
	template := g.template
	g.mu.RUnlock()

	models := provider.Models()
	apiModel := ResolveModel(models, g.model)
	start := time.Now()

	fail := func(err error) (string, error) {
		logger.Error("generation failed",
			zap.String("model", apiModel),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return "", &GenerationError{Model: apiModel, Err: err}
	}

	var images []InputImage
	if image != nil {
		if err := ValidateInputImage(*image); err != nil {
			return fail(err)
		}
		images = []InputImage{*image}
	}

	prompt := BuildPrompt(template, promptText)

	logger.Debug("starting solution generation",
		zap.String("model", apiModel),
		zap.Int("problem_length", len(promptText)),
		zap.Bool("has_image", image != nil),
	)

	if err := g.checkRateLimit(limiter, apiModel, prompt, len(images)); err != nil {
		logger.Warn("rate limit hit",
			zap.String("model", apiModel),
			zap.Error(err),
		)
		return "", &GenerationError{Model: apiModel, Err: err}
	}

	cfg := g.genConfig.WithModel(Model(apiModel))
	result, err := provider.Generate(ctx, prompt, images, cfg)
	if err != nil {
		return fail(err)
	}

	img, ok := result.FirstImage()
	if !ok {
		return fail(ErrNoImage)
	}

	fields := []zap.Field{
		zap.String("model", apiModel),
		zap.Duration("duration", time.Since(start)),
		zap.Int("image_bytes", len(img.Data)),
		zap.String("mime_type", img.MIMEType),
	}
	if result.UsageMetadata != nil {
		fields = append(fields,
			zap.Int("prompt_tokens", result.UsageMetadata.PromptTokens),
			zap.Int("response_tokens", result.UsageMetadata.CandidatesTokens),
			zap.Int("total_tokens", result.UsageMetadata.TotalTokens),
			zap.Int("image_count", result.UsageMetadata.ImageCount),
		)
	}
	logger.Info("generation completed", fields...)

	return base64.StdEncoding.EncodeToString(img.Data), nil
}

// Models returns the provider's model catalogue.
func (g *Gateway) Models() []ModelInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.provider.Models()
}

// Model returns the API model name requests are sent to.
func (g *Gateway) Model() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return ResolveModel(g.provider.Models(), g.model)
}

// SetRateLimiter replaces the admission limiter. Nil disables limiting.
func (g *Gateway) SetRateLimiter(limiter ratelimiter.Limiter) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.limiter = limiter
	return g
}

// Validate checks the base request options against the selected model's
// catalogue entry. Models missing from the catalogue are not checked.
func (g *Gateway) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	info, ok := LookupModel(g.provider.Models(), g.model)
	if !ok {
		return nil
	}
	if ar := g.genConfig.AspectRatio; !info.SupportsAspectRatio(ar) {
		return &ConfigError{
			Field: "aspect_ratio",
			Err:   fmt.Errorf("model %s does not support aspect ratio %q", info.Name, ar),
		}
	}
	return nil
}

// Close releases provider resources.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.provider == nil {
		return nil
	}
	if err := g.provider.Close(); err != nil {
		return fmt.Errorf("closing provider: %w", err)
	}
	return nil
}

// checkRateLimit consumes capacity for one request or fails immediately.
func (g *Gateway) checkRateLimit(limiter ratelimiter.Limiter, model, prompt string, imageCount int) error {
	if limiter == nil {
		return nil
	}

	estimatedTokens := estimateRequest(g.tokenEstimator, prompt, imageCount)

	if !limiter.TryConsume(estimatedTokens) {
		return &RateLimitError{
			RetryAfter: limiter.TimeUntilAvailable(estimatedTokens),
			LimitType:  "tokens",
			Model:      model,
		}
	}

	return nil
}
