package mathchat

import (
	"context"
	"encoding/base64"
)

// Storage is an interface for persisting uploaded images so the chat can
// re-display them. Implementations can wrap existing storage clients
// (GCS, S3, an in-memory map) with this interface.
type Storage interface {
	// SaveFile saves image data to storage and returns the URL it can be displayed from.
	// The path should include the full object path (e.g., "uploads/<id>.png").
	// The contentType is typically the image's MIME type (e.g., "image/png").
	SaveFile(ctx context.Context, data []byte, path string, contentType string) (string, error)
}

// SaveUpload stores an uploaded image under uploads/{id}.{ext} and returns
// its display URL. Without storage the image is inlined as a data URI.
func SaveUpload(ctx context.Context, storage Storage, id string, img InputImage) (string, error) {
	if storage == nil {
		return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data), nil
	}
	path := "uploads/" + id + "." + extensionFromMIME(img.MIMEType)
	return storage.SaveFile(ctx, img.Data, path, img.MIMEType)
}

// extensionFromMIME returns a file extension for common image MIME types.
func extensionFromMIME(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}
