package mathchat

import (
	"context"
)

// MockImageGenerator is a mock implementation of ImageGenerator.
type MockImageGenerator struct {
	GenerateFunc func(ctx context.Context, prompt string, images []InputImage, config *GenerateConfig) (*GenerateResult, error)
	ModelsFunc   func() []ModelInfo
	CloseFunc    func() error
}

func (m *MockImageGenerator) Generate(ctx context.Context, prompt string, images []InputImage, config *GenerateConfig) (*GenerateResult, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, images, config)
	}
	return &GenerateResult{}, nil
}

func (m *MockImageGenerator) Models() []ModelInfo {
	if m.ModelsFunc != nil {
		return m.ModelsFunc()
	}
	return []ModelInfo{}
}

func (m *MockImageGenerator) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// MockGenerator is a mock implementation of Generator used by Store tests.
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, promptText string, image *InputImage) (string, error)
}

func (m *MockGenerator) Generate(ctx context.Context, promptText string, image *InputImage) (string, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, promptText, image)
	}
	return "", nil
}
