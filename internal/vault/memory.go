package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"cas-go/internal/cas"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It stores all chunks and metadata in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name            string
	chunks          map[string][]byte // digest -> bytes
	metadata        map[string][]byte // "tenantID/name" -> metadata
	metadataVersion map[string]int64  // "tenantID/name" -> version
	mu              sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:            name,
		chunks:          make(map[string][]byte),
		metadata:        make(map[string][]byte),
		metadataVersion: make(map[string]int64),
	}
}

// metadataKey returns the map key for a tenant/name pair.
func metadataKey(tenantID, name string) string {
	return tenantID + "/" + name
}

// readExactly reads all of r and checks it produced size bytes.
func readExactly(r io.Reader, size int64) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read data: %w", cas.ErrStorageIO, err)
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d: %w", size, len(data), cas.ErrValidation)
	}
	return data, nil
}

// PutChunk stores chunk bytes under their digest.
func (m *MemoryVault) PutChunk(ctx context.Context, digest string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := readExactly(r, size)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotent: storing the same digest multiple times is safe
	m.chunks[digest] = data
	return nil
}

// GetChunk writes the bytes stored under digest to w.
func (m *MemoryVault) GetChunk(ctx context.Context, digest string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	data, ok := m.chunks[digest]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("chunk %s: %w", digest, cas.ErrNotFound)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: failed to write chunk: %w", cas.ErrStorageIO, err)
	}
	return nil
}

// DeleteChunk removes the bytes stored under digest.
func (m *MemoryVault) DeleteChunk(ctx context.Context, digest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.chunks, digest)
	return nil
}

// HasChunk reports whether bytes are stored under digest.
func (m *MemoryVault) HasChunk(digest string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.chunks[digest]
	return ok
}

// ChunkCount returns the number of stored chunks.
func (m *MemoryVault) ChunkCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.chunks)
}

// PutMetadata stores a named metadata item for a specific tenant.
func (m *MemoryVault) PutMetadata(ctx context.Context, tenantID, name string, r io.Reader, size int64, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := readExactly(r, size)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := metadataKey(tenantID, name)
	m.metadata[key] = data
	m.metadataVersion[key] = version
	return nil
}

// GetMetadataVersion returns the metadata version for a named item of a tenant.
// Returns 0 if no metadata has been stored for this tenant/name.
func (m *MemoryVault) GetMetadataVersion(ctx context.Context, tenantID, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.metadataVersion[metadataKey(tenantID, name)], nil
}

// GetMetadata retrieves a named metadata item for a specific tenant.
func (m *MemoryVault) GetMetadata(ctx context.Context, tenantID, name string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.metadata[metadataKey(tenantID, name)]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("metadata %q for tenant %s: %w", name, tenantID, cas.ErrNotFound)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: failed to write metadata: %w", cas.ErrStorageIO, err)
	}
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return nil
}

func (m *MemoryVault) Close() error {
	return nil
}

// Compile-time check that MemoryVault implements cas.Vault interface
var _ cas.Vault = (*MemoryVault)(nil)
