package mathchat

import (
	"math"
)

const (
	// imageTokenCost approximates the prompt cost of one inline image.
	imageTokenCost = 258

	// requestOverhead covers the role and config fields of a request.
	requestOverhead = 100
)

// TokenEstimator approximates prompt size for admission control.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// SimpleTokenEstimator assumes about four characters per token and pads
// the estimate by SafetyMargin.
type SimpleTokenEstimator struct {
	SafetyMargin float64
}

func NewSimpleTokenEstimator() *SimpleTokenEstimator {
	return &SimpleTokenEstimator{
		SafetyMargin: 1.2,
	}
}

func (e *SimpleTokenEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	estimate := float64(len([]rune(text))) / 4.0 * e.SafetyMargin
	return int(math.Ceil(estimate)) + 3
}

// estimateRequest prices one remote call: the prompt, each inline image
// and a fixed overhead.
func estimateRequest(e TokenEstimator, prompt string, images int) int {
	return e.EstimateTokens(prompt) + images*imageTokenCost + requestOverhead
}
