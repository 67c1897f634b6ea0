// Package gemini provides an ImageGenerator implementation using Google's Gemini API.
//
// This provider uses the Gemini API backend via the official Go SDK:
// https://github.com/googleapis/go-genai
package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/mhpenta/mathchat"
)

// Model name constants - the actual API model names.
const (
	// APIModelNanoBanana2 is the actual API name for Gemini 3 Pro Image
	APIModelNanoBanana2 = "gemini-3-pro-image-preview"

	// APIModelNanoBanana1 is the actual API name for Gemini 2.5 Flash Image
	APIModelNanoBanana1 = "gemini-2.5-flash-image"
)

// GeminiGenerator implements ImageGenerator using Google's Gemini API.
type GeminiGenerator struct {
	client *genai.Client
}

// Ensure GeminiGenerator implements the interface.
var _ mathchat.ImageGenerator = (*GeminiGenerator)(nil)

// New creates a new GeminiGenerator from a ProviderConfig.
// The API key is required; the SDK is never left to read it from the environment.
func New(ctx context.Context, config *mathchat.ProviderConfig) (*GeminiGenerator, error) {
	if config == nil || config.APIKey == "" {
		return nil, &mathchat.ConfigError{Field: "api_key", Err: mathchat.ErrMissingAPIKey}
	}

	clientCfg := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  config.APIKey,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
	}, nil
}

// NewWithAPIKey creates a generator with an API key for Gemini API.
func NewWithAPIKey(ctx context.Context, apiKey string) (*GeminiGenerator, error) {
	return New(ctx, &mathchat.ProviderConfig{
		Provider: mathchat.ProviderGeminiAPI,
		APIKey:   apiKey,
	})
}

// Generate sends the prompt followed by any inline images as one user turn
// and asks for an image-only response.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, images []mathchat.InputImage, config *mathchat.GenerateConfig) (*mathchat.GenerateResult, error) {
	if err := mathchat.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	for i, img := range images {
		if err := mathchat.ValidateInputImage(img); err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
	}

	if config == nil {
		config = mathchat.DefaultConfig()
	}

	modelName := g.resolveModel(config)

	parts := make([]*genai.Part, 0, len(images)+1)
	parts = append(parts, &genai.Part{Text: prompt})
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				Data:     img.Data,
				MIMEType: img.MIMEType,
			},
		})
	}

	contents := []*genai.Content{
		{Role: genai.RoleUser, Parts: parts},
	}

	result, err := g.client.Models.GenerateContent(ctx, modelName, contents, buildGenerateContentConfig(config))
	if err != nil {
		if rlErr := checkRateLimitError(err, modelName); rlErr != nil {
			return nil, rlErr
		}
		return nil, err
	}

	return parseResult(result), nil
}

// Models returns the model definitions supported by this provider.
// The first model (NanoBanana1) is the default.
func (g *GeminiGenerator) Models() []mathchat.ModelInfo {
	return []mathchat.ModelInfo{
		NanoBanana1Info,
		NanoBanana2Info,
	}
}

// Close releases any resources held by the generator.
func (g *GeminiGenerator) Close() error {
	// The genai.Client doesn't require explicit closing in the current SDK
	return nil
}

// resolveModel determines which API model name to use.
func (g *GeminiGenerator) resolveModel(config *mathchat.GenerateConfig) string {
	return mathchat.ResolveModel(g.Models(), config.Model)
}

// buildGenerateContentConfig converts our config to Gemini's GenerateContentConfig format.
func buildGenerateContentConfig(config *mathchat.GenerateConfig) *genai.GenerateContentConfig {
	genConfig := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage)},
	}

	if config.AspectRatio != "" {
		genConfig.ImageConfig = &genai.ImageConfig{
			AspectRatio: config.AspectRatio.String(),
		}
	}

	if config.Temperature != nil {
		genConfig.Temperature = genai.Ptr(*config.Temperature)
	}

	return genConfig
}

// parseResult converts Gemini response to our result type. A response
// without candidates yields an empty result; the caller decides whether
// missing images are an error.
func parseResult(result *genai.GenerateContentResponse) *mathchat.GenerateResult {
	genResult := &mathchat.GenerateResult{
		Images: make([]mathchat.GeneratedImage, 0),
	}
	if result == nil {
		return genResult
	}

	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}

		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}

			if part.Text != "" {
				genResult.Text += part.Text
			}

			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				genResult.Images = append(genResult.Images, mathchat.GeneratedImage{
					Data:     part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
				})
			}
		}
	}

	if result.UsageMetadata != nil {
		genResult.UsageMetadata = &mathchat.UsageMetadata{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CandidatesTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
			ImageCount:       len(genResult.Images),
		}
	}

	return genResult
}

// ImageFromBase64 decodes a base64 payload into an input image.
func ImageFromBase64(b64 string, mimeType string) (mathchat.InputImage, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return mathchat.InputImage{}, fmt.Errorf("invalid base64: %w", err)
	}
	return mathchat.InputImage{
		Data:     data,
		MIMEType: mimeType,
	}, nil
}

// checkRateLimitError checks if an error from the Gemini API is a rate limit error.
// If so, it wraps it in a RateLimitError for standardized handling; otherwise returns nil.
func checkRateLimitError(err error, model string) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return nil
	}

	if apiErr.Code != http.StatusTooManyRequests && apiErr.Status != "RESOURCE_EXHAUSTED" {
		return nil
	}

	return &mathchat.RateLimitError{
		RetryAfter: 60 * time.Second, // Default; API doesn't reliably provide Retry-After
		LimitType:  "requests",
		Model:      model,
		Err:        err,
	}
}
