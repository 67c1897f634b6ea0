package mathchat

import (
	"errors"
	"testing"
)

func TestValidatePrompt(t *testing.T) {
	tests := []struct {
		name    string
		prompt  string
		wantErr error
	}{
		{
			name:    "valid prompt",
			prompt:  "Solve for x: 2x=4",
			wantErr: nil,
		},
		{
			name:    "empty prompt",
			prompt:  "",
			wantErr: ErrEmptyPrompt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePrompt(tt.prompt)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidatePrompt() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateInputImage(t *testing.T) {
	tests := []struct {
		name    string
		img     InputImage
		wantErr error
	}{
		{
			name:    "png",
			img:     InputImage{Data: []byte("fake image data"), MIMEType: "image/png"},
			wantErr: nil,
		},
		{
			name:    "jpeg",
			img:     InputImage{Data: []byte("fake image data"), MIMEType: "image/jpeg"},
			wantErr: nil,
		},
		{
			name:    "webp",
			img:     InputImage{Data: []byte("fake image data"), MIMEType: "image/webp"},
			wantErr: nil,
		},
		{
			name:    "large image is accepted",
			img:     InputImage{Data: make([]byte, 30*1024*1024), MIMEType: "image/png"},
			wantErr: nil,
		},
		{
			name:    "empty image",
			img:     InputImage{},
			wantErr: ErrEmptyImageData,
		},
		{
			name:    "missing MIME type",
			img:     InputImage{Data: []byte("data")},
			wantErr: ErrInvalidMIMEType,
		},
		{
			name:    "unsupported MIME type",
			img:     InputImage{Data: []byte("GIF89a"), MIMEType: "image/gif"},
			wantErr: ErrInvalidMIMEType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInputImage(tt.img)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateInputImage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
