package client

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/enhancely/api/internal/config"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process. Used for local development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	objects  map[string]memoryObject
	locators locatorBase
}

// NewMemoryStore creates a store whose locators live under baseURL
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://objects"
	}
	return &MemoryStore{
		objects:  make(map[string]memoryObject),
		locators: newLocatorBase(baseURL),
	}
}

// Put stores a copy of body
func (s *MemoryStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.objects[key] = memoryObject{data: data, contentType: contentType}
	s.mu.Unlock()

	return s.locators.URL(key), nil
}

// Get returns the object behind a locator
func (s *MemoryStore) Get(ctx context.Context, locator string) ([]byte, string, error) {
	key, err := s.locators.Key(locator)
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("object %q not found", key)
	}
	return append([]byte(nil), obj.data...), obj.contentType, nil
}

// Resolve returns the public locator URL for key or locator
func (s *MemoryStore) Resolve(ctx context.Context, locator string) (string, error) {
	key, err := s.locators.Key(locator)
	if err != nil {
		return "", err
	}
	return s.locators.URL(key), nil
}

// Keys lists stored object keys
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

// Name identifies the backend in health output
func (s *MemoryStore) Name() string {
	return config.BackendMemory
}
