package gemini

import "github.com/mhpenta/mathchat"

var supportedAspectRatios = []mathchat.AspectRatio{
	mathchat.AspectRatio1x1,
	mathchat.AspectRatio4x3,
	mathchat.AspectRatio3x4,
	mathchat.AspectRatio9x16,
}

// NanoBanana1Info is the model info for Gemini 2.5 Flash Image (nano-banana-1),
// the default model for solution images.
var NanoBanana1Info = mathchat.ModelInfo{
	Name:         string(mathchat.ModelNanoBanana1),
	Provider:     mathchat.ProviderGeminiAPI,
	APIModelName: APIModelNanoBanana1,

	SupportedAspectRatios: supportedAspectRatios,

	RateLimits: mathchat.RateLimits{
		TokensPerMinute:   4000000,
		RequestsPerMinute: 500, // ~500 RPM for Tier 1
	},
}

// NanoBanana2Info is the model info for Gemini 3 Pro Image (nano-banana-2).
//
// Nano Banana Pro (official name: Gemini 3 Pro Image) is slower and more
// expensive but renders dense step-by-step text more reliably.
var NanoBanana2Info = mathchat.ModelInfo{
	Name:         string(mathchat.ModelNanoBanana2),
	Provider:     mathchat.ProviderGeminiAPI,
	APIModelName: APIModelNanoBanana2,

	SupportedAspectRatios: supportedAspectRatios,

	RateLimits: mathchat.RateLimits{
		TokensPerMinute:   4000000,
		RequestsPerMinute: 360,
	},
}
