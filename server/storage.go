package server

import (
	"context"
	"strings"
	"sync"

	"github.com/mhpenta/mathchat"
)

// AttachmentsPrefix is the route uploaded images are served from.
const AttachmentsPrefix = "/attachments/"

type attachment struct {
	data        []byte
	contentType string
}

// MemoryStorage keeps uploaded images in process memory. Entries are never
// released; they live as long as the conversation does.
type MemoryStorage struct {
	mu    sync.RWMutex
	files map[string]attachment
}

var _ mathchat.Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{files: make(map[string]attachment)}
}

// SaveFile stores a copy of data and returns its URL under AttachmentsPrefix.
func (m *MemoryStorage) SaveFile(ctx context.Context, data []byte, path string, contentType string) (string, error) {
	if len(data) == 0 {
		return "", mathchat.ErrEmptyImageData
	}
	path = strings.TrimPrefix(path, "/")

	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.files[path] = attachment{data: buf, contentType: contentType}
	m.mu.Unlock()

	return AttachmentsPrefix + path, nil
}

// Get returns a stored file by the path it was saved under.
func (m *MemoryStorage) Get(path string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[strings.TrimPrefix(path, "/")]
	return f.data, f.contentType, ok
}

// Len returns the number of stored files.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
