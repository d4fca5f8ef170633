package cas

import (
	"context"
	"errors"
	"fmt"

	"cas-go/internal/model"
)

// PurgeResult summarizes a purge or an emptied trash.
type PurgeResult struct {
	Files          int
	Versions       int
	ChunkRefs      int // version-chunk slots released
	Reclaimed      int // chunks whose bytes were deleted
	ReclaimedBytes int64
}

func (r *PurgeResult) add(o PurgeResult) {
	r.Files += o.Files
	r.Versions += o.Versions
	r.ChunkRefs += o.ChunkRefs
	r.Reclaimed += o.Reclaimed
	r.ReclaimedBytes += o.ReclaimedBytes
}

// Trash moves files between the live namespace and the trash, and purges
// them for good. Trashing and restoring never touch reference counts;
// purging releases one reference per version-chunk slot.
type Trash struct {
	db       Database
	chunks   *ChunkStore
	versions *VersionManager
	clock    Clock
	logger   Logger
}

// NewTrash creates the trash component. It shares per-file locks with the
// version manager.
func NewTrash(db Database, chunks *ChunkStore, versions *VersionManager, logger Logger, clock Clock) *Trash {
	return &Trash{db: db, chunks: chunks, versions: versions, clock: clock, logger: logger}
}

// MoveToTrash removes a live file from the live namespace.
func (t *Trash) MoveToTrash(ctx context.Context, fileID string) error {
	unlock := t.versions.lockFile(fileID)
	defer unlock()

	err := t.db.InTx(ctx, func(tx Store) error {
		f, err := tx.FindFile(ctx, fileID)
		if err != nil {
			return fmt.Errorf("finding file: %w", err)
		}
		if f == nil || f.Trashed() {
			return fmt.Errorf("live file %s: %w", fileID, ErrNotFound)
		}
		return tx.InsertTrashEntry(ctx, fileID, t.clock.Now())
	})
	if err != nil {
		return err
	}

	t.logger.Info("file moved to trash", "file", fileID)
	return nil
}

// RestoreFromTrash puts a trashed file back into the live namespace
// unchanged.
func (t *Trash) RestoreFromTrash(ctx context.Context, fileID string) error {
	unlock := t.versions.lockFile(fileID)
	defer unlock()

	err := t.db.InTx(ctx, func(tx Store) error {
		deleted, err := tx.DeleteTrashEntry(ctx, fileID)
		if err != nil {
			return fmt.Errorf("removing trash entry: %w", err)
		}
		if !deleted {
			return fmt.Errorf("trashed file %s: %w", fileID, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}

	t.logger.Info("file restored from trash", "file", fileID)
	return nil
}

// Purge permanently deletes a trashed file and its versions, releasing
// their chunk references. Chunks that drop to zero are reclaimed.
func (t *Trash) Purge(ctx context.Context, fileID string) (PurgeResult, error) {
	unlock := t.versions.lockFile(fileID)
	defer unlock()

	f, err := t.db.FindFile(ctx, fileID)
	if err != nil {
		return PurgeResult{}, fmt.Errorf("finding file: %w", err)
	}
	if f == nil || !f.Trashed() {
		return PurgeResult{}, fmt.Errorf("trashed file %s: %w", fileID, ErrNotFound)
	}

	versions, err := t.db.ListVersions(ctx, fileID)
	if err != nil {
		return PurgeResult{}, fmt.Errorf("listing versions: %w", err)
	}
	var slots []string
	for _, v := range versions {
		slots = append(slots, v.Chunks...)
	}

	reclaimed, err := t.chunks.releaseRefs(ctx, slots, func(tx Store) error {
		deleted, err := tx.DeleteTrashEntry(ctx, fileID)
		if err != nil {
			return fmt.Errorf("removing trash entry: %w", err)
		}
		if !deleted {
			return fmt.Errorf("trashed file %s: %w", fileID, ErrNotFound)
		}
		if err := tx.DeleteFile(ctx, fileID); err != nil {
			return fmt.Errorf("deleting file: %w", err)
		}
		return nil
	})
	if err != nil {
		return PurgeResult{}, err
	}

	res := PurgeResult{Files: 1, Versions: len(versions), ChunkRefs: len(slots), Reclaimed: len(reclaimed)}
	for _, c := range reclaimed {
		res.ReclaimedBytes += c.Size
	}
	t.logger.Info("file purged", "file", fileID, "versions", res.Versions, "chunk_refs", res.ChunkRefs, "reclaimed", res.Reclaimed)
	return res, nil
}

// EmptyTrash purges every trashed file. Files restored concurrently are
// skipped; other failures are collected and returned together.
func (t *Trash) EmptyTrash(ctx context.Context) (PurgeResult, error) {
	entries, err := t.db.ListTrash(ctx)
	if err != nil {
		return PurgeResult{}, fmt.Errorf("listing trash: %w", err)
	}

	var total PurgeResult
	var errs []error
	for _, e := range entries {
		res, err := t.Purge(ctx, e.File.ID)
		switch {
		case err == nil:
			total.add(res)
		case errors.Is(err, ErrNotFound):
			t.logger.Debug("trash entry vanished before purge", "file", e.File.ID)
		default:
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}
	return total, errors.Join(errs...)
}

// ListTrash returns trashed files, most recently deleted first.
func (t *Trash) ListTrash(ctx context.Context) ([]*model.TrashEntry, error) {
	entries, err := t.db.ListTrash(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing trash: %w", err)
	}
	return entries, nil
}
