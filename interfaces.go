package mathchat

import "context"

// ImageGenerator is the interface implemented by remote model providers.
// Implement this interface to add support for new models or providers.
//
// The first model returned by Models() is considered the default model.
type ImageGenerator interface {
	// Generate sends one prompt, plus optional inline images, and returns
	// whatever the model produced.
	Generate(ctx context.Context, prompt string, images []InputImage, genConfig *GenerateConfig) (*GenerateResult, error)

	// Models returns the model definitions supported by this provider.
	// The first model in the list is the default.
	Models() []ModelInfo

	// Close releases any resources held by the generator.
	Close() error
}

// Generator turns a problem into a base64 encoded solution image.
// Gateway is the production implementation; Store depends only on this.
type Generator interface {
	Generate(ctx context.Context, promptText string, image *InputImage) (string, error)
}
