// Package objectstore is the durable blob storage boundary for staged videos.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrNotFound is returned by Read for a missing object.
var ErrNotFound = errors.New("object not found")

// UploadOptions describes an object being written.
type UploadOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Store uploads, reads, and signs staged objects.
type Store interface {
	// Upload writes r under key and returns the storage path.
	Upload(ctx context.Context, r io.Reader, key string, opts UploadOptions) (string, error)
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	Read(ctx context.Context, path string) (io.ReadCloser, error)
}

// Object is a stored blob in Memory.
type Object struct {
	Data []byte
	UploadOptions
}

// Memory is an in-process Store. Paths take the form mem://<key>.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]Object
	BaseURL string
}

// NewMemory creates an empty in-memory store. Signed URLs are built on baseURL.
func NewMemory(baseURL string) *Memory {
	return &Memory{objects: make(map[string]Object), BaseURL: baseURL}
}

func (m *Memory) Upload(ctx context.Context, r io.Reader, key string, opts UploadOptions) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read upload body: %w", err)
	}
	path := "mem://" + key
	m.mu.Lock()
	m.objects[path] = Object{Data: data, UploadOptions: opts}
	m.mu.Unlock()
	return path, nil
}

func (m *Memory) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[path]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return fmt.Sprintf("%s/%s?ttl=%d", m.BaseURL, path[len("mem://"):], int(ttl.Seconds())), nil
}

func (m *Memory) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objects[path]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.Data)), nil
}

// Get returns the stored object at path.
func (m *Memory) Get(path string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	return obj, ok
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
