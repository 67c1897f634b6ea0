package mathchat

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoImage is returned when the model answered without any inline image data.
	ErrNoImage = errors.New("No image was generated in the API response.")

	// ErrMissingAPIKey is returned when the provider credential is absent at startup.
	ErrMissingAPIKey = errors.New("API key not set")

	// ErrEmptyTurn is returned by Store.Dispatch when neither text nor image was given.
	ErrEmptyTurn = errors.New("turn has no text and no image")

	// ErrRequestPending is returned by Store.Dispatch while a generation is in flight.
	ErrRequestPending = errors.New("a request is already pending")

	// ErrKindMismatch is returned by Store.Append when a message's Kind
	// contradicts its role and content.
	ErrKindMismatch = errors.New("message kind does not match its content")
)

// GenerationError is the single failure kind surfaced by the Gateway.
// Transport, authentication, service, rate limit and empty-response failures
// are all reported through it; the cause stays available via errors.Is/As.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return "An unknown error occurred while communicating with the API."
	}
	return "Failed to process your request: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsGenerationError checks if an error is a GenerationError.
func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}

// ConfigError reports an unusable configuration. It is fatal at startup.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// RateLimitError is returned when a rate limit is hit.
type RateLimitError struct {
	RetryAfter time.Duration
	LimitType  string
	Model      string
	Err        error // Underlying error from the provider
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %s limit, retry after %v",
		e.Model, e.LimitType, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// IsRateLimitError checks if an error is a RateLimitError.
func IsRateLimitError(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}
