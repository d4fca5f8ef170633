package vault

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v3"

	"cas-go/internal/cas"
)

// Key prefixes inside the badger keyspace.
const (
	badgerChunkPrefix   = "chunk/"
	badgerMetaPrefix    = "meta/"
	badgerMetaVerPrefix = "metaver/"
)

// BadgerVault stores chunks and metadata in an embedded badger key-value store.
type BadgerVault struct {
	name string
	db   *badger.DB
}

// NewBadgerVault opens a badger store in dir, or an in-memory one when inMemory is set.
func NewBadgerVault(name, dir string, inMemory bool) (*BadgerVault, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if dir == "" {
			return nil, fmt.Errorf("badger vault requires badger_dir to be set")
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}
	return &BadgerVault{name: name, db: db}, nil
}

func badgerChunkKey(digest string) []byte {
	return []byte(badgerChunkPrefix + digest)
}

func badgerMetaKey(tenantID, name string) []byte {
	return []byte(badgerMetaPrefix + tenantID + "/" + name)
}

func badgerMetaVersionKey(tenantID, name string) []byte {
	return []byte(badgerMetaVerPrefix + tenantID + "/" + name)
}

// PutChunk stores chunk bytes under their digest.
func (v *BadgerVault) PutChunk(ctx context.Context, digest string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := readExactly(r, size)
	if err != nil {
		return err
	}

	err = v.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerChunkKey(digest), data)
	})
	if err != nil {
		return fmt.Errorf("%w: storing chunk: %w", cas.ErrStorageIO, err)
	}
	return nil
}

// GetChunk writes the bytes stored under digest to w.
func (v *BadgerVault) GetChunk(ctx context.Context, digest string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := v.read(badgerChunkKey(digest))
	if err != nil {
		return fmt.Errorf("chunk %s: %w", digest, err)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: failed to write chunk: %w", cas.ErrStorageIO, err)
	}
	return nil
}

// DeleteChunk removes a chunk. Deleting a missing key is not an error.
func (v *BadgerVault) DeleteChunk(ctx context.Context, digest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := v.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerChunkKey(digest))
	})
	if err != nil {
		return fmt.Errorf("%w: deleting chunk: %w", cas.ErrStorageIO, err)
	}
	return nil
}

// PutMetadata stores a metadata item and its version in one transaction.
func (v *BadgerVault) PutMetadata(ctx context.Context, tenantID, name string, r io.Reader, size int64, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := readExactly(r, size)
	if err != nil {
		return err
	}

	var ver [8]byte
	binary.BigEndian.PutUint64(ver[:], uint64(version))

	err = v.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(badgerMetaKey(tenantID, name), data); err != nil {
			return err
		}
		return txn.Set(badgerMetaVersionKey(tenantID, name), ver[:])
	})
	if err != nil {
		return fmt.Errorf("%w: storing metadata: %w", cas.ErrStorageIO, err)
	}
	return nil
}

// GetMetadata writes a tenant's metadata item to w.
func (v *BadgerVault) GetMetadata(ctx context.Context, tenantID, name string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := v.read(badgerMetaKey(tenantID, name))
	if err != nil {
		return fmt.Errorf("metadata %q for tenant %s: %w", name, tenantID, err)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: failed to write metadata: %w", cas.ErrStorageIO, err)
	}
	return nil
}

// GetMetadataVersion returns the stored version, or 0 when none exists.
func (v *BadgerVault) GetMetadataVersion(ctx context.Context, tenantID, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := v.read(badgerMetaVersionKey(tenantID, name))
	if err != nil {
		if errors.Is(err, cas.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: malformed metadata version", cas.ErrStorageIO)
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

// ValidateSetup checks that the store is open.
func (v *BadgerVault) ValidateSetup(ctx context.Context) error {
	if v.db.IsClosed() {
		return fmt.Errorf("badger store is closed: %w", cas.ErrStorageIO)
	}
	return nil
}

func (v *BadgerVault) Close() error {
	return v.db.Close()
}

func (v *BadgerVault) read(key []byte) ([]byte, error) {
	var data []byte
	err := v.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, cas.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", cas.ErrStorageIO, err)
	}
	return data, nil
}

// Compile-time check that BadgerVault implements cas.Vault interface
var _ cas.Vault = (*BadgerVault)(nil)
