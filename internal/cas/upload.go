package cas

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"cas-go/internal/chunk"
)

// UploadRequest describes one incoming file. Content must stay readable
// until the upload finishes; it is read more than once.
type UploadRequest struct {
	Content      io.ReaderAt
	Size         int64
	Name         string
	DeclaredType string // inferred from Name when empty
	FolderID     string
	OwnerID      string

	// FileID appends a new version to an existing file instead of
	// creating one. Name, type and folder are then ignored.
	FileID string
	Note   string // defaults to NoteInitialUpload or NoteNewVersion
}

// PipelineConfig tunes the upload pipeline.
type PipelineConfig struct {
	ChunkSize int
	Workers   int
	Retry     RetryPolicy
}

// Pipeline turns incoming bytes into chunks, stores the new ones and
// commits a version. Each upload runs Chunking, Hashing, DedupCheck and
// Committing in order and ends Complete or Failed.
type Pipeline struct {
	chunks   *ChunkStore
	versions *VersionManager
	hasher   *chunk.Hasher
	cfg      PipelineConfig
	logger   Logger
	metrics  Metrics
	clock    Clock
}

// NewPipeline creates an upload pipeline. Zero config values take defaults.
func NewPipeline(chunks *ChunkStore, versions *VersionManager, hasher *chunk.Hasher, cfg PipelineConfig, logger Logger, metrics Metrics, clock Clock) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunk.DefaultSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	return &Pipeline{
		chunks:   chunks,
		versions: versions,
		hasher:   hasher,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
	}
}

// Start validates the request and runs the upload in the background.
func (p *Pipeline) Start(ctx context.Context, req UploadRequest) (*Upload, error) {
	if err := validateUpload(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	u := newUpload(cancel)
	go func() {
		defer cancel()
		res, err := p.run(ctx, u, req)
		u.finish(res, opError("upload", err))
	}()
	return u, nil
}

// Upload runs an upload to completion.
func (p *Pipeline) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	u, err := p.Start(ctx, req)
	if err != nil {
		return UploadResult{}, err
	}
	return u.Wait()
}

func validateUpload(req UploadRequest) error {
	if req.FileID == "" && strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("empty file name: %w", ErrValidation)
	}
	if req.Size < 0 {
		return fmt.Errorf("negative size %d: %w", req.Size, ErrValidation)
	}
	if req.Content == nil && req.Size > 0 {
		return fmt.Errorf("missing content: %w", ErrValidation)
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, u *Upload, req UploadRequest) (res UploadResult, err error) {
	start := p.clock.Now()
	defer func() {
		state := StateComplete
		if err != nil {
			state = StateFailed
			p.logger.Warn("upload failed", "name", req.Name, "file", req.FileID, "state", u.Progress().State, "error", err)
		}
		p.metrics.UploadFinished(string(state), p.clock.Now().Sub(start))
	}()

	u.enter(StateChunking, 0)
	chunker, err := chunk.NewChunker(req.Content, req.Size, p.cfg.ChunkSize)
	if err != nil {
		return res, fmt.Errorf("chunking: %w: %w", ErrValidation, err)
	}
	n := chunker.Count()

	u.enter(StateHashing, n)
	digests, fileDigest, err := p.hash(ctx, u, chunker, req)
	if err != nil {
		return res, err
	}

	u.enter(StateDedupCheck, n)
	pinned, dups, err := p.dedup(ctx, u, chunker, digests)
	defer func() { p.chunks.Release(ctx, pinned) }()
	if err != nil {
		return res, err
	}

	u.enter(StateCommitting, n)
	spec := VersionSpec{
		Chunks:    digests,
		Size:      req.Size,
		Digest:    fileDigest,
		Note:      req.Note,
		DedupHits: int64(dups),
	}
	if err := retry(ctx, p.cfg.Retry, "commit version", p.logger, p.metrics, func() error {
		return p.commit(ctx, req, spec, &res)
	}); err != nil {
		return res, err
	}

	res.Size = req.Size
	res.ChunkCount = n
	res.DuplicateChunks = dups
	res.NewChunks = u.Progress().NewChunks
	p.logger.Info("upload complete", "file", res.FileID, "version", res.VersionID, "chunks", n, "new", res.NewChunks, "duplicates", dups)
	return res, nil
}

// hash computes every chunk digest plus the whole-file digest.
func (p *Pipeline) hash(ctx context.Context, u *Upload, chunker *chunk.Chunker, req UploadRequest) ([]string, string, error) {
	digests := make([]string, chunker.Count())
	var fileDigest string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	g.Go(func() error {
		d := p.hasher.New()
		if _, err := io.Copy(d, io.NewSectionReader(req.Content, 0, req.Size)); err != nil {
			return fmt.Errorf("hashing content: %w", err)
		}
		fileDigest = chunk.Hex(d)
		return nil
	})

	for i, rg := range chunker.All() {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			data, err := chunker.Read(rg)
			if err != nil {
				return err
			}
			digests[i] = p.hasher.Sum(data)
			u.chunkDone(false, false)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	return digests, fileDigest, nil
}

// dedup pins chunks that already exist and stores the rest. It returns
// every pin taken, which the caller must release, and the number of chunk
// slots that matched existing content.
func (p *Pipeline) dedup(ctx context.Context, u *Upload, chunker *chunk.Chunker, digests []string) ([]string, int, error) {
	var (
		mu     sync.Mutex
		pinned []string
		dups   int
	)
	record := func(digest string, stored bool) {
		mu.Lock()
		pinned = append(pinned, digest)
		if !stored {
			dups++
		}
		mu.Unlock()
		u.chunkDone(stored, !stored)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for i, rg := range chunker.All() {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			var hit bool
			err := retry(gctx, p.cfg.Retry, "pin chunk", p.logger, p.metrics, func() (err error) {
				hit, err = p.chunks.Pin(gctx, digests[i])
				return err
			})
			if err != nil {
				return err
			}
			if hit {
				record(digests[i], false)
				return nil
			}

			data, err := chunker.Read(rg)
			if err != nil {
				return err
			}
			var put PutResult
			err = retry(gctx, p.cfg.Retry, "put chunk", p.logger, p.metrics, func() (err error) {
				put, err = p.chunks.PutChunk(gctx, data)
				return err
			})
			if err != nil {
				return err
			}
			if put.Digest != digests[i] {
				p.chunks.Release(gctx, []string{put.Digest})
				return fmt.Errorf("chunk %d changed during upload: %w", i, ErrValidation)
			}
			record(put.Digest, put.Stored)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return pinned, dups, err
}

func (p *Pipeline) commit(ctx context.Context, req UploadRequest, spec VersionSpec, res *UploadResult) error {
	if req.FileID != "" {
		if spec.Note == "" {
			spec.Note = NoteNewVersion
		}
		v, err := p.versions.CommitVersion(ctx, req.FileID, spec)
		if err != nil {
			return err
		}
		res.FileID, res.VersionID = req.FileID, v.ID
		return nil
	}

	if spec.Note == "" {
		spec.Note = NoteInitialUpload
	}
	fileType := req.DeclaredType
	if fileType == "" {
		fileType = DetectType(req.Name)
	}
	f, v, err := p.versions.CreateFile(ctx, FileSpec{
		Name:     strings.TrimSpace(req.Name),
		Type:     fileType,
		FolderID: req.FolderID,
		OwnerID:  req.OwnerID,
	}, spec)
	if err != nil {
		return err
	}
	res.FileID, res.VersionID = f.ID, v.ID
	return nil
}
