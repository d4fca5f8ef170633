package cas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"cas-go/internal/chunk"
	"cas-go/internal/model"
)

// GC modes.
const (
	GCImmediate = "immediate" // reclaim as soon as a purge drops a chunk to zero
	GCDeferred  = "deferred"  // leave zero-reference chunks for the collector sweep
)

// PutResult describes the outcome of storing one chunk.
type PutResult struct {
	Digest string
	Size   int64
	Stored bool // false on a dedup hit
}

// ChunkStore owns chunk bytes (in the vault) and the dedup index (reference
// counts in the database). Reference counts change only through this type.
//
// Every digest has its own lock. Reference count changes and the
// check-and-delete step of reclamation take that lock; vault I/O never runs
// under it. A digest pinned by an in-flight upload is never reclaimed, which
// keeps a put followed by a commit safe against a concurrent purge of the
// same content.
type ChunkStore struct {
	db        Database
	vault     Vault
	hasher    *chunk.Hasher
	locks     *lockTable
	logger    Logger
	metrics   Metrics
	clock     Clock
	immediate bool
}

// NewChunkStore creates a chunk store. gcMode is GCImmediate or GCDeferred.
func NewChunkStore(db Database, vault Vault, hasher *chunk.Hasher, gcMode string, logger Logger, metrics Metrics, clock Clock) *ChunkStore {
	return &ChunkStore{
		db:        db,
		vault:     vault,
		hasher:    hasher,
		locks:     newLockTable(),
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
		immediate: gcMode != GCDeferred,
	}
}

// PutChunk hashes data and stores it unless a chunk with the same digest
// already exists. A new chunk starts with a reference count of zero.
// On success the digest stays pinned until Release is called with it.
func (s *ChunkStore) PutChunk(ctx context.Context, data []byte) (PutResult, error) {
	return s.put(ctx, s.hasher.Sum(data), data)
}

func (s *ChunkStore) put(ctx context.Context, digest string, data []byte) (PutResult, error) {
	size := int64(len(data))

	for {
		l := s.locks.lock(digest)
		if wait := l.reclaiming; wait != nil {
			// The old copy is being deleted; store afresh once it is gone.
			s.locks.unlock(digest, l)
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return PutResult{}, ctx.Err()
			}
		}

		existing, err := s.db.FindChunk(ctx, digest)
		if err != nil {
			s.locks.unlock(digest, l)
			return PutResult{}, fmt.Errorf("looking up chunk: %w", err)
		}
		l.pins++
		s.locks.unlock(digest, l)

		if existing != nil {
			s.metrics.DedupHit(existing.Size)
			return PutResult{Digest: digest, Size: existing.Size}, nil
		}
		break
	}

	if err := s.vault.PutChunk(ctx, digest, bytes.NewReader(data), size); err != nil {
		s.unpin(digest)
		return PutResult{}, fmt.Errorf("storing chunk bytes: %w", err)
	}

	l := s.locks.lock(digest)
	created, err := s.db.InsertChunk(ctx, digest, size, s.clock.Now())
	s.locks.unlock(digest, l)
	if err != nil {
		s.unpin(digest)
		return PutResult{}, fmt.Errorf("indexing chunk: %w", err)
	}

	if created {
		s.metrics.ChunkStored(size)
		s.logger.Debug("chunk stored", "digest", digest, "size", size)
	} else {
		s.metrics.DedupHit(size)
	}
	return PutResult{Digest: digest, Size: size, Stored: created}, nil
}

// Pin pins digest if it is already indexed, so the caller can reference it
// without sending its bytes again. It reports false when the chunk is
// unknown or currently being reclaimed.
func (s *ChunkStore) Pin(ctx context.Context, digest string) (bool, error) {
	l := s.locks.lock(digest)
	defer s.locks.unlock(digest, l)

	if l.reclaiming != nil {
		return false, nil
	}
	existing, err := s.db.FindChunk(ctx, digest)
	if err != nil {
		return false, fmt.Errorf("looking up chunk: %w", err)
	}
	if existing == nil {
		return false, nil
	}
	l.pins++
	s.metrics.DedupHit(existing.Size)
	return true, nil
}

// Release drops one pin per listed digest. In immediate mode a digest left
// without pins is reclaimed if nothing references it, which covers chunks
// stored by a failed upload and chunks a purge skipped while they were
// pinned.
func (s *ChunkStore) Release(ctx context.Context, digests []string) {
	ctx = context.WithoutCancel(ctx)
	for _, d := range digests {
		if !s.unpin(d) || !s.immediate {
			continue
		}
		if _, err := s.Reclaim(ctx, d); err != nil {
			s.logger.Warn("reclaiming released chunk failed", "digest", d, "error", err)
		}
	}
}

// unpin drops one pin and reports whether digest is now unpinned.
func (s *ChunkStore) unpin(digest string) bool {
	l := s.locks.lock(digest)
	defer s.locks.unlock(digest, l)
	if l.pins > 0 {
		l.pins--
	}
	return l.pins == 0
}

// IncrementRef adds one reference to digest.
func (s *ChunkStore) IncrementRef(ctx context.Context, digest string) error {
	return s.commitRefs(ctx, []string{digest}, nil)
}

// DecrementRef removes one reference from digest. Going below zero is an
// invariant violation. In immediate mode a chunk that reaches zero and is
// not pinned is reclaimed before DecrementRef returns.
func (s *ChunkStore) DecrementRef(ctx context.Context, digest string) error {
	_, err := s.releaseRefs(ctx, []string{digest}, nil)
	return err
}

// GetChunk returns the bytes of a referenced chunk. Chunks that were never
// stored, were reclaimed, or are waiting for reclamation are not found.
func (s *ChunkStore) GetChunk(ctx context.Context, digest string) ([]byte, error) {
	c, err := s.db.FindChunk(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("looking up chunk: %w", err)
	}
	if c == nil || c.RefCount == 0 {
		return nil, fmt.Errorf("chunk %s: %w", digest, ErrNotFound)
	}

	var buf bytes.Buffer
	buf.Grow(int(c.Size))
	if err := s.vault.GetChunk(ctx, digest, &buf); err != nil {
		return nil, fmt.Errorf("reading chunk bytes: %w", err)
	}
	return buf.Bytes(), nil
}

// Lookup returns the index record for digest, or nil.
func (s *ChunkStore) Lookup(ctx context.Context, digest string) (*model.Chunk, error) {
	return s.db.FindChunk(ctx, digest)
}

// Reclaim deletes a chunk whose reference count is zero and that no
// upload has pinned. It reports whether the chunk was reclaimed.
func (s *ChunkStore) Reclaim(ctx context.Context, digest string) (bool, error) {
	l := s.locks.lock(digest)
	if l.pins > 0 || l.reclaiming != nil {
		s.locks.unlock(digest, l)
		return false, nil
	}

	c, err := s.db.FindChunk(ctx, digest)
	if err != nil || c == nil || c.RefCount != 0 {
		s.locks.unlock(digest, l)
		if err != nil {
			return false, fmt.Errorf("looking up chunk: %w", err)
		}
		return false, nil
	}

	deleted, err := s.db.DeleteUnreferencedChunk(ctx, digest)
	if err != nil || !deleted {
		s.locks.unlock(digest, l)
		if err != nil {
			return false, fmt.Errorf("removing chunk from index: %w", err)
		}
		return false, nil
	}
	l.reclaiming = make(chan struct{})
	s.locks.unlock(digest, l)

	s.finishReclaim(ctx, c)
	return true, nil
}

// commitRefs locks the distinct digests, then runs fn and adds one
// reference per slot in a single transaction.
func (s *ChunkStore) commitRefs(ctx context.Context, slots []string, fn func(Store) error) error {
	counts := countSlots(slots)
	held := s.locks.lockAll(slices.Collect(maps.Keys(counts)))
	defer s.locks.unlockAll(held)

	return s.db.InTx(ctx, func(tx Store) error {
		if fn != nil {
			if err := fn(tx); err != nil {
				return err
			}
		}
		for _, d := range slices.Sorted(maps.Keys(counts)) {
			if _, err := tx.AddChunkRefs(ctx, d, counts[d]); err != nil {
				return fmt.Errorf("incrementing chunk references: %w", err)
			}
		}
		return nil
	})
}

// releaseRefs locks the distinct digests, then runs fn and removes one
// reference per slot in a single transaction. Chunks that reach zero are
// removed from the index in the same transaction (immediate mode, unpinned
// only) and their bytes are deleted after the locks are released.
func (s *ChunkStore) releaseRefs(ctx context.Context, slots []string, fn func(Store) error) ([]*model.Chunk, error) {
	counts := countSlots(slots)
	held := s.locks.lockAll(slices.Collect(maps.Keys(counts)))

	var reclaim []*model.Chunk
	err := s.db.InTx(ctx, func(tx Store) error {
		reclaim = reclaim[:0]
		if fn != nil {
			if err := fn(tx); err != nil {
				return err
			}
		}
		for _, d := range slices.Sorted(maps.Keys(counts)) {
			n, err := tx.AddChunkRefs(ctx, d, -counts[d])
			if err != nil {
				if errors.Is(err, ErrInvariantViolation) {
					s.logger.Error("reference count would go negative", "digest", d, "delta", -counts[d])
				}
				return fmt.Errorf("decrementing chunk references: %w", err)
			}
			if n != 0 || !s.immediate || held[d].pins > 0 {
				continue
			}
			c, err := tx.FindChunk(ctx, d)
			if err != nil {
				return fmt.Errorf("looking up chunk: %w", err)
			}
			deleted, err := tx.DeleteUnreferencedChunk(ctx, d)
			if err != nil {
				return fmt.Errorf("removing chunk from index: %w", err)
			}
			if deleted && c != nil {
				reclaim = append(reclaim, c)
			}
		}
		return nil
	})
	if err != nil {
		s.locks.unlockAll(held)
		return nil, err
	}

	for _, c := range reclaim {
		held[c.Digest].reclaiming = make(chan struct{})
	}
	s.locks.unlockAll(held)

	for _, c := range reclaim {
		s.finishReclaim(ctx, c)
	}
	return reclaim, nil
}

// finishReclaim deletes the bytes of a chunk already removed from the index
// and wakes any put waiting on it. A failed delete leaves unreachable bytes
// behind; a later put of the same content overwrites them.
func (s *ChunkStore) finishReclaim(ctx context.Context, c *model.Chunk) {
	err := s.vault.DeleteChunk(context.WithoutCancel(ctx), c.Digest)

	l := s.locks.lock(c.Digest)
	close(l.reclaiming)
	l.reclaiming = nil
	s.locks.unlock(c.Digest, l)

	if err != nil {
		s.logger.Warn("deleting reclaimed chunk bytes failed", "digest", c.Digest, "error", err)
		return
	}
	s.metrics.ChunkReclaimed(c.Size)
	s.logger.Debug("chunk reclaimed", "digest", c.Digest, "size", c.Size)
}

func countSlots(slots []string) map[string]int64 {
	counts := make(map[string]int64, len(slots))
	for _, d := range slots {
		counts[d]++
	}
	return counts
}
