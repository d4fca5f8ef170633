package cas

import (
	"context"
	"io"
)

// Vault is the durable byte store behind the chunk index.
// All operations stream through io.Reader/io.Writer.
//
// Backends report a missing chunk with an error wrapping ErrNotFound and
// any other failure with an error wrapping ErrStorageIO.
type Vault interface {
	// PutChunk stores the bytes of a chunk under its digest.
	// Storing the same digest more than once is safe.
	// size is the number of bytes that will be read from r.
	PutChunk(ctx context.Context, digest string, r io.Reader, size int64) error

	// GetChunk writes the bytes stored under digest to w.
	GetChunk(ctx context.Context, digest string, w io.Writer) error

	// DeleteChunk removes the bytes stored under digest. Deleting a
	// missing chunk is not an error.
	DeleteChunk(ctx context.Context, digest string) error

	// PutMetadata stores a named metadata item for a tenant along with a
	// version used for consistency checks. Known names: "db".
	PutMetadata(ctx context.Context, tenantID, name string, r io.Reader, size int64, version int64) error

	// GetMetadata writes a named metadata item for a tenant to w.
	GetMetadata(ctx context.Context, tenantID, name string, w io.Writer) error

	// GetMetadataVersion returns the stored version, or 0 if none exists.
	GetMetadataVersion(ctx context.Context, tenantID, name string) (int64, error)

	// ValidateSetup verifies that the vault is reachable and writable.
	ValidateSetup(ctx context.Context) error

	Close() error
}
