package memory

import (
	"context"
	"fmt"
	"sync"

	"optin/internal/storage"
	"optin/pkg/platform/sentinel"
)

// Backend keeps entries in process memory. It suits single-instance
// deployments and tests; entries are lost on restart.
type Backend struct {
	mu       sync.RWMutex
	visitors map[string]map[string]string
}

func New() *Backend {
	return &Backend{visitors: make(map[string]map[string]string)}
}

func (b *Backend) Get(_ context.Context, visitorID, key string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if value, ok := b.visitors[visitorID][key]; ok {
		return value, nil
	}
	return "", fmt.Errorf("visitor %s key %q: %w", visitorID, key, sentinel.ErrNotFound)
}

func (b *Backend) SetMany(_ context.Context, visitorID string, items []storage.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries, ok := b.visitors[visitorID]
	if !ok {
		entries = make(map[string]string, len(items))
		b.visitors[visitorID] = entries
	}
	for _, item := range items {
		entries[item.Key] = item.Value
	}
	return nil
}
