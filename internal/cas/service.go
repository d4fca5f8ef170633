package cas

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"cas-go/internal/chunk"
	"cas-go/internal/model"
)

const settingHashAlgorithm = "hash_algorithm"

// Options configures the storage core. Zero values take defaults.
type Options struct {
	ChunkSize     int
	HashAlgorithm string
	Workers       int
	GCMode        string
	Retry         RetryPolicy
}

// Service is the storage core's entry point. It composes the chunk store,
// version manager, upload pipeline, trash and collector, and reports every
// failure as an *OpError naming the operation and the error kind.
type Service struct {
	db        Database
	hasher    *chunk.Hasher
	chunks    *ChunkStore
	versions  *VersionManager
	pipeline  *Pipeline
	trash     *Trash
	collector *Collector
	logger    Logger
	clock     Clock
	ids       IDGenerator

	// folderMu serializes folder moves so two moves cannot form a cycle.
	folderMu sync.Mutex
}

// NewService wires the storage core over a metadata database and a vault.
func NewService(db Database, vault Vault, opts Options, logger Logger, metrics Metrics, clock Clock, ids IDGenerator) (*Service, error) {
	hasher, err := chunk.NewHasher(opts.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("creating hasher: %w", err)
	}
	if opts.GCMode != "" && opts.GCMode != GCImmediate && opts.GCMode != GCDeferred {
		return nil, fmt.Errorf("unknown gc mode: %s", opts.GCMode)
	}

	chunks := NewChunkStore(db, vault, hasher, opts.GCMode, logger, metrics, clock)
	versions := NewVersionManager(db, chunks, hasher, logger, clock, ids)
	pipeline := NewPipeline(chunks, versions, hasher, PipelineConfig{
		ChunkSize: opts.ChunkSize,
		Workers:   opts.Workers,
		Retry:     opts.Retry,
	}, logger, metrics, clock)

	return &Service{
		db:        db,
		hasher:    hasher,
		chunks:    chunks,
		versions:  versions,
		pipeline:  pipeline,
		trash:     NewTrash(db, chunks, versions, logger, clock),
		collector: NewCollector(db, chunks, pipeline.cfg.Workers, logger),
		logger:    logger,
		clock:     clock,
		ids:       ids,
	}, nil
}

// VerifySettings records the hash algorithm on first use and refuses to
// run against a store created with a different one.
func (s *Service) VerifySettings(ctx context.Context) error {
	stored, err := s.db.GetSetting(ctx, settingHashAlgorithm)
	if err != nil {
		return opError("verify settings", err)
	}
	switch stored {
	case "":
		return opError("verify settings", s.db.PutSetting(ctx, settingHashAlgorithm, s.hasher.Algorithm()))
	case s.hasher.Algorithm():
		return nil
	default:
		return opError("verify settings", fmt.Errorf("store uses %s, configured %s: %w", stored, s.hasher.Algorithm(), ErrValidation))
	}
}

// Upload

// StartUpload begins an upload and returns its progress handle.
func (s *Service) StartUpload(ctx context.Context, req UploadRequest) (*Upload, error) {
	u, err := s.pipeline.Start(ctx, req)
	return u, opError("upload", err)
}

// Upload stores a new file and waits for it to complete.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	u, err := s.StartUpload(ctx, req)
	if err != nil {
		return UploadResult{}, err
	}
	return u.Wait()
}

// UploadVersion appends new content to an existing file.
func (s *Service) UploadVersion(ctx context.Context, fileID string, content io.ReaderAt, size int64) (UploadResult, error) {
	return s.Upload(ctx, UploadRequest{FileID: fileID, Content: content, Size: size})
}

// Versions

func (s *Service) RestoreVersion(ctx context.Context, fileID, versionID string) (*model.Version, error) {
	v, err := s.versions.RestoreVersion(ctx, fileID, versionID)
	return v, opError("restore version", err)
}

func (s *Service) ListVersions(ctx context.Context, fileID string) ([]*model.Version, error) {
	vs, err := s.versions.ListVersions(ctx, fileID)
	return vs, opError("list versions", err)
}

// ReadFile writes a version's content to w. An empty versionID reads the
// current version.
func (s *Service) ReadFile(ctx context.Context, fileID, versionID string, w io.Writer) (*model.Version, error) {
	v, err := s.versions.ReadVersion(ctx, fileID, versionID, w)
	return v, opError("read file", err)
}

// GetChunk returns the bytes of a referenced chunk.
func (s *Service) GetChunk(ctx context.Context, digest string) ([]byte, error) {
	b, err := s.chunks.GetChunk(ctx, digest)
	return b, opError("get chunk", err)
}

// Trash

// DeleteFile moves a file to the trash.
func (s *Service) DeleteFile(ctx context.Context, fileID string) error {
	return opError("delete file", s.trash.MoveToTrash(ctx, fileID))
}

func (s *Service) RestoreFromTrash(ctx context.Context, fileID string) error {
	return opError("restore from trash", s.trash.RestoreFromTrash(ctx, fileID))
}

func (s *Service) PurgeFile(ctx context.Context, fileID string) (PurgeResult, error) {
	res, err := s.trash.Purge(ctx, fileID)
	return res, opError("purge file", err)
}

func (s *Service) EmptyTrash(ctx context.Context) (PurgeResult, error) {
	res, err := s.trash.EmptyTrash(ctx)
	return res, opError("empty trash", err)
}

func (s *Service) ListTrash(ctx context.Context) ([]*model.TrashEntry, error) {
	entries, err := s.trash.ListTrash(ctx)
	return entries, opError("list trash", err)
}

// Garbage collection

// CollectGarbage runs one sweep over zero-reference chunks.
func (s *Service) CollectGarbage(ctx context.Context) (SweepResult, error) {
	res, err := s.collector.Sweep(ctx)
	return res, opError("collect garbage", err)
}

// RunCollector sweeps every interval until ctx is done.
func (s *Service) RunCollector(ctx context.Context, interval time.Duration) error {
	return s.collector.Run(ctx, interval)
}

// History returns the most recent recorded operations.
func (s *Service) History(ctx context.Context, limit int) ([]*model.Operation, error) {
	ops, err := s.db.ListOperations(ctx, limit)
	return ops, opError("history", err)
}
