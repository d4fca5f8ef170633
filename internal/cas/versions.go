package cas

import (
	"context"
	"fmt"
	"io"

	"cas-go/internal/chunk"
	"cas-go/internal/model"
)

// Notes recorded on generated versions.
const (
	NoteInitialUpload = "Initial upload"
	NoteNewVersion    = "Uploaded new version"
	restoredPrefix    = "Restored from "
)

// FileSpec describes a file to create.
type FileSpec struct {
	Name     string
	Type     string
	FolderID string
	OwnerID  string
}

// VersionSpec describes version content that is ready to be committed.
// Chunks lists digests in byte order; every digest must be pinned or
// already referenced.
type VersionSpec struct {
	Chunks    []string
	Size      int64
	Digest    string
	Note      string
	DedupHits int64 // chunk slots that matched existing chunks
}

// VersionManager appends immutable versions to files. Committing a version
// is the only place reference counts increase, and it happens in the same
// transaction that records the version.
type VersionManager struct {
	db     Database
	chunks *ChunkStore
	files  *lockTable
	hasher *chunk.Hasher
	ids    IDGenerator
	clock  Clock
	logger Logger
}

// NewVersionManager creates a version manager over the given chunk store.
func NewVersionManager(db Database, chunks *ChunkStore, hasher *chunk.Hasher, logger Logger, clock Clock, ids IDGenerator) *VersionManager {
	return &VersionManager{
		db:     db,
		chunks: chunks,
		files:  newLockTable(),
		hasher: hasher,
		ids:    ids,
		clock:  clock,
		logger: logger,
	}
}

// lockFile serializes mutations of one file and returns the unlock func.
func (m *VersionManager) lockFile(fileID string) func() {
	l := m.files.lock(fileID)
	return func() { m.files.unlock(fileID, l) }
}

// CreateFile records a new file together with its first version.
func (m *VersionManager) CreateFile(ctx context.Context, spec FileSpec, v VersionSpec) (*model.File, *model.Version, error) {
	if err := validateVersion(v); err != nil {
		return nil, nil, err
	}

	now := m.clock.Now()
	file := &model.File{
		ID:         m.ids.New(),
		Name:       spec.Name,
		Type:       spec.Type,
		FolderID:   spec.FolderID,
		OwnerID:    spec.OwnerID,
		CreatedAt:  now,
		ModifiedAt: now,
		Size:       v.Size,
		Digest:     v.Digest,
	}
	version := m.newVersion(file.ID, 1, v)

	unlock := m.lockFile(file.ID)
	defer unlock()

	err := m.chunks.commitRefs(ctx, v.Chunks, func(tx Store) error {
		if spec.FolderID != "" {
			folder, err := tx.FindFolder(ctx, spec.FolderID)
			if err != nil {
				return fmt.Errorf("finding folder: %w", err)
			}
			if folder == nil {
				return fmt.Errorf("folder %s: %w", spec.FolderID, ErrNotFound)
			}
		}
		if err := tx.InsertFile(ctx, file); err != nil {
			return fmt.Errorf("creating file: %w", err)
		}
		if err := tx.InsertVersion(ctx, version); err != nil {
			return fmt.Errorf("creating version: %w", err)
		}
		return tx.AddDedupHits(ctx, v.DedupHits)
	})
	if err != nil {
		return nil, nil, err
	}

	m.logger.Info("file created", "file", file.ID, "name", file.Name, "size", file.Size, "chunks", len(v.Chunks))
	return file, version, nil
}

// CommitVersion appends a version to a live file and makes it current.
func (m *VersionManager) CommitVersion(ctx context.Context, fileID string, v VersionSpec) (*model.Version, error) {
	if err := validateVersion(v); err != nil {
		return nil, err
	}

	unlock := m.lockFile(fileID)
	defer unlock()

	var version *model.Version
	err := m.chunks.commitRefs(ctx, v.Chunks, func(tx Store) error {
		file, err := tx.FindFile(ctx, fileID)
		if err != nil {
			return fmt.Errorf("finding file: %w", err)
		}
		if file == nil || file.Trashed() {
			return fmt.Errorf("file %s: %w", fileID, ErrNotFound)
		}

		seq, err := tx.LatestVersionSeq(ctx, fileID)
		if err != nil {
			return fmt.Errorf("reading version sequence: %w", err)
		}
		if seq == 0 {
			return fmt.Errorf("file %s has no versions: %w", fileID, ErrInvariantViolation)
		}

		version = m.newVersion(fileID, seq+1, v)
		if err := tx.InsertVersion(ctx, version); err != nil {
			return fmt.Errorf("appending version: %w", err)
		}

		file.Size = v.Size
		file.Digest = v.Digest
		file.ModifiedAt = version.CreatedAt
		if err := tx.UpdateFile(ctx, file); err != nil {
			return fmt.Errorf("updating file: %w", err)
		}
		return tx.AddDedupHits(ctx, v.DedupHits)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("version committed", "file", fileID, "version", version.ID, "seq", version.Seq, "size", version.Size)
	return version, nil
}

// RestoreVersion appends a new version that references the same chunks as
// an older one. History is preserved; nothing is rolled back.
func (m *VersionManager) RestoreVersion(ctx context.Context, fileID, versionID string) (*model.Version, error) {
	target, err := m.db.FindVersion(ctx, fileID, versionID)
	if err != nil {
		return nil, fmt.Errorf("finding version: %w", err)
	}
	if target == nil {
		return nil, fmt.Errorf("version %s of file %s: %w", versionID, fileID, ErrNotFound)
	}

	return m.CommitVersion(ctx, fileID, VersionSpec{
		Chunks: target.Chunks,
		Size:   target.Size,
		Digest: target.Digest,
		Note:   restoredPrefix + target.Note,
	})
}

// ListVersions returns a file's versions, oldest first.
func (m *VersionManager) ListVersions(ctx context.Context, fileID string) ([]*model.Version, error) {
	file, err := m.db.FindFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	if file == nil {
		return nil, fmt.Errorf("file %s: %w", fileID, ErrNotFound)
	}

	versions, err := m.db.ListVersions(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("file %s has no versions: %w", fileID, ErrInvariantViolation)
	}
	return versions, nil
}

// ReadVersion reassembles a version's bytes into w and verifies its digest.
// An empty versionID selects the current version.
func (m *VersionManager) ReadVersion(ctx context.Context, fileID, versionID string, w io.Writer) (*model.Version, error) {
	versions, err := m.ListVersions(ctx, fileID)
	if err != nil {
		return nil, err
	}

	version := versions[len(versions)-1]
	if versionID != "" {
		version = nil
		for _, v := range versions {
			if v.ID == versionID {
				version = v
				break
			}
		}
		if version == nil {
			return nil, fmt.Errorf("version %s of file %s: %w", versionID, fileID, ErrNotFound)
		}
	}

	d := m.hasher.New()
	out := io.MultiWriter(w, d)
	for _, digest := range version.Chunks {
		data, err := m.chunks.GetChunk(ctx, digest)
		if err != nil {
			return nil, fmt.Errorf("reading chunk: %w", err)
		}
		if _, err := out.Write(data); err != nil {
			return nil, fmt.Errorf("writing content: %w", err)
		}
	}

	if got := chunk.Hex(d); got != version.Digest {
		return nil, fmt.Errorf("version %s content digest mismatch: %w", version.ID, ErrInvariantViolation)
	}
	return version, nil
}

func (m *VersionManager) newVersion(fileID string, seq int64, v VersionSpec) *model.Version {
	return &model.Version{
		ID:        m.ids.New(),
		FileID:    fileID,
		Seq:       seq,
		CreatedAt: m.clock.Now(),
		Size:      v.Size,
		Digest:    v.Digest,
		Note:      v.Note,
		Chunks:    v.Chunks,
	}
}

func validateVersion(v VersionSpec) error {
	if v.Size < 0 {
		return fmt.Errorf("negative size %d: %w", v.Size, ErrValidation)
	}
	if v.Digest == "" {
		return fmt.Errorf("missing content digest: %w", ErrValidation)
	}
	return nil
}
