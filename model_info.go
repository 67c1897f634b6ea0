package mathchat

// Provider represents a model provider/backend.
type Provider string

const (
	ProviderGeminiAPI Provider = "gemini"
)

const (
	ModelNanoBanana1 Model = "nano-banana-1" // Gemini 2.5 Flash Image
	ModelNanoBanana2 Model = "nano-banana-2" // Gemini 3 Pro Image

	ModelDefault Model = ModelNanoBanana1
)

// ProviderConfig configures a specific provider.
type ProviderConfig struct {
	// Provider type
	Provider Provider

	// APIKey for authentication. Required.
	APIKey string

	// BaseURL for custom endpoints (optional)
	BaseURL string
}

// RateLimits defines rate limiting parameters for a model.
type RateLimits struct {
	TokensPerMinute   int
	RequestsPerMinute int
}

// ModelInfo contains complete metadata for a model.
type ModelInfo struct {
	// Identity
	Name         string   // Public model name (e.g., "nano-banana-1")
	Provider     Provider // Which provider serves this model
	APIModelName string   // Actual API name (e.g., "gemini-2.5-flash-image")

	SupportedAspectRatios []AspectRatio

	RateLimits RateLimits
}

// SupportsAspectRatio reports whether the model accepts ar. The automatic
// ratio is always accepted, as is anything when no ratios are listed.
func (m ModelInfo) SupportsAspectRatio(ar AspectRatio) bool {
	if ar == AspectRatioAuto || len(m.SupportedAspectRatios) == 0 {
		return true
	}
	for _, supported := range m.SupportedAspectRatios {
		if supported == ar {
			return true
		}
	}
	return false
}

// ResolveModel maps a public model name to the API model name using the
// provider's catalogue. Unknown names are passed through unchanged so that
// raw API model names keep working.
func ResolveModel(models []ModelInfo, model Model) string {
	if model == "" {
		if len(models) == 0 {
			return ""
		}
		return models[0].APIModelName
	}
	for _, info := range models {
		if Model(info.Name) == model || info.APIModelName == string(model) {
			return info.APIModelName
		}
	}
	return string(model)
}

// LookupModel returns the catalogue entry for a public or API model name.
func LookupModel(models []ModelInfo, model Model) (ModelInfo, bool) {
	api := ResolveModel(models, model)
	for _, info := range models {
		if info.APIModelName == api {
			return info, true
		}
	}
	return ModelInfo{}, false
}
