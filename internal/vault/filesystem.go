package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cas-go/internal/cas"
)

// FileSystemVault is a filesystem-based implementation of the Vault interface.
// It stores chunks and metadata as files in a directory structure:
//
//	<root>/
//	  chunks/
//	    <d[0:2]>/<digest>   (chunk bytes, sharded by digest prefix)
//	  metadata/
//	    <tenantID>/<name>          (per-tenant metadata files)
//	    <tenantID>/<name>.version
type FileSystemVault struct {
	name        string
	root        string
	chunkDir    string
	metadataDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	chunkDir := filepath.Join(root, "chunks")
	metadataDir := filepath.Join(root, "metadata")

	for _, dir := range []string{chunkDir, metadataDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create vault directory: %w", err)
		}
	}

	return &FileSystemVault{
		name:        name,
		root:        root,
		chunkDir:    chunkDir,
		metadataDir: metadataDir,
	}, nil
}

func (v *FileSystemVault) chunkPath(digest string) string {
	shard := digest
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(v.chunkDir, shard, digest)
}

// PutChunk stores chunk bytes under their digest.
// The operation is idempotent: storing the same digest multiple times is safe.
func (v *FileSystemVault) PutChunk(ctx context.Context, digest string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	destPath := v.chunkPath(digest)

	// Existing bytes for a digest are identical; drain and skip.
	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("%w: failed to read chunk: %w", cas.ErrStorageIO, err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d: %w", size, written, cas.ErrValidation)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("%w: failed to create shard directory: %w", cas.ErrStorageIO, err)
	}
	return writeFile(destPath, r, size)
}

// GetChunk retrieves chunk bytes by digest and writes them to w.
func (v *FileSystemVault) GetChunk(ctx context.Context, digest string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return readFile(v.chunkPath(digest), w, "chunk "+digest)
}

// DeleteChunk removes a chunk file. A missing file is not an error.
func (v *FileSystemVault) DeleteChunk(ctx context.Context, digest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(v.chunkPath(digest)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: failed to delete chunk: %w", cas.ErrStorageIO, err)
	}
	return nil
}

// PutMetadata stores metadata for a specific tenant along with a version marker.
func (v *FileSystemVault) PutMetadata(ctx context.Context, tenantID, name string, r io.Reader, size int64, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(v.metadataDir, tenantID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create metadata directory: %w", cas.ErrStorageIO, err)
	}

	if err := writeFile(filepath.Join(dir, name), r, size); err != nil {
		return err
	}

	versionData := strconv.FormatInt(version, 10)
	if err := os.WriteFile(filepath.Join(dir, name+".version"), []byte(versionData), 0644); err != nil {
		return fmt.Errorf("%w: writing version file: %w", cas.ErrStorageIO, err)
	}
	return nil
}

// GetMetadataVersion returns the metadata version for a tenant's item.
// Returns 0 if no version file exists.
func (v *FileSystemVault) GetMetadataVersion(ctx context.Context, tenantID, name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(v.metadataDir, tenantID, name+".version"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: reading version file: %w", cas.ErrStorageIO, err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing version: %w", cas.ErrStorageIO, err)
	}
	return version, nil
}

// GetMetadata retrieves metadata for a specific tenant and writes it to w.
func (v *FileSystemVault) GetMetadata(ctx context.Context, tenantID, name string, w io.Writer) error {
	return readFile(filepath.Join(v.metadataDir, tenantID, name), w, fmt.Sprintf("metadata %q for tenant %s", name, tenantID))
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup(ctx context.Context) error {
	for _, dir := range []string{v.root, v.chunkDir, v.metadataDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("%w: vault directory not accessible: %w", cas.ErrStorageIO, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s: %w", dir, cas.ErrStorageIO)
		}
	}
	return nil
}

func (v *FileSystemVault) Close() error {
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Same directory so the rename stays atomic.
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %w", cas.ErrStorageIO, err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("%w: failed to write data: %w", cas.ErrStorageIO, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("%w: failed to close temp file: %w", cas.ErrStorageIO, err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d: %w", expectedSize, written, cas.ErrValidation)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("%w: failed to rename temp file: %w", cas.ErrStorageIO, err)
	}

	success = true
	return nil
}

// readFile copies the file at srcPath to w. what names the item in errors.
func readFile(srcPath string, w io.Writer, what string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", what, cas.ErrNotFound)
		}
		return fmt.Errorf("%w: failed to open file: %w", cas.ErrStorageIO, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("%w: failed to read file: %w", cas.ErrStorageIO, err)
	}
	return nil
}

// Compile-time check that FileSystemVault implements cas.Vault interface
var _ cas.Vault = (*FileSystemVault)(nil)
