package download

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// ReferenceStore hands out transient references to in-memory payloads.
type ReferenceStore interface {
	Create(data []byte) string
	Open(ref string) (io.Reader, error)
	Revoke(ref string) error
	Outstanding() int
}

// BlobStore is the default ReferenceStore. Every reference it creates must be
// revoked; Outstanding reports the ones that were not.
type BlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewBlobStore creates an empty blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

// Create registers data under a fresh reference.
func (s *BlobStore) Create(data []byte) string {
	ref := "blob:" + uuid.NewString()
	s.mu.Lock()
	s.blobs[ref] = data
	s.mu.Unlock()
	return ref
}

// Open returns a reader over the payload behind ref.
func (s *BlobStore) Open(ref string) (io.Reader, error) {
	s.mu.Lock()
	data, ok := s.blobs[ref]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", ref, ErrUnknownReference)
	}
	return bytes.NewReader(data), nil
}

// Revoke releases ref.
func (s *BlobStore) Revoke(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ref]; !ok {
		return fmt.Errorf("blob %s: %w", ref, ErrUnknownReference)
	}
	delete(s.blobs, ref)
	return nil
}

// Outstanding returns the number of live references.
func (s *BlobStore) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
