package mathchat

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Kind tags how a message's content must be interpreted.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindError Kind = "error"
)

const (
	// ImageDataPrefix marks a model message whose content is a rendered solution.
	ImageDataPrefix = "data:image/"

	// ErrorPrefix starts every model message produced from a failed generation.
	ErrorPrefix = "I encountered an error. "

	// FallbackPrompt replaces empty text when only an image is submitted.
	FallbackPrompt = "Solve the problem in the image."

	// Greeting seeds every new conversation.
	Greeting = "Hello. I can help you solve mathematical problems. Upload an image or type your question."

	// GreetingID is the fixed ID of the seeded greeting.
	GreetingID = "initial"

	solutionURIPrefix = "data:image/png;base64,"
)

// Message is one immutable entry of the conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Kind      Kind      `json:"kind"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is one user submission.
type Turn struct {
	Text  string
	Image *InputImage
}

// EffectivePrompt returns the text sent to the model and shown for the turn.
func (t Turn) EffectivePrompt() string {
	if strings.TrimSpace(t.Text) == "" && t.Image != nil {
		return FallbackPrompt
	}
	return t.Text
}

// IsEmpty reports whether the turn carries neither text nor an image.
func (t Turn) IsEmpty() bool {
	return strings.TrimSpace(t.Text) == "" && t.Image == nil
}

// IsImage reports whether the message holds a rendered solution.
func (m Message) IsImage() bool {
	return m.Role == RoleModel && strings.HasPrefix(m.Content, ImageDataPrefix)
}

// IsError reports whether the message describes a failed generation.
func (m Message) IsError() bool {
	return m.Kind == KindError
}

// ImageData decodes the solution image carried by a model message.
func (m Message) ImageData() (data []byte, mimeType string, err error) {
	if !m.IsImage() {
		return nil, "", errors.New("message does not contain an image")
	}
	header, payload, ok := strings.Cut(m.Content, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, "", errors.New("malformed image data URI")
	}
	mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", err
	}
	return data, mimeType, nil
}

// resolveKind returns the Kind stored for a message. Whether a message is an
// image is always decided by role and content; the requested kind may only
// add KindError to a model message that is not an image.
func resolveKind(role Role, content string, requested Kind) (Kind, error) {
	derived := KindText
	if role == RoleModel && strings.HasPrefix(content, ImageDataPrefix) {
		derived = KindImage
	}

	switch requested {
	case "", derived:
		return derived, nil
	case KindError:
		if role == RoleModel && derived == KindText {
			return KindError, nil
		}
	case KindText, KindImage:
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrKindMismatch, requested)
	}
	return "", fmt.Errorf("%w: %s message tagged %q holds %s content", ErrKindMismatch, role, requested, derived)
}

// solutionContent wraps a base64 payload as the data URI stored in the chat.
func solutionContent(payload string) string {
	return solutionURIPrefix + payload
}

// errorContent renders a generation failure as chat text.
func errorContent(err error) string {
	if err == nil {
		return ErrorPrefix + "An unexpected error occurred."
	}
	return ErrorPrefix + err.Error()
}
