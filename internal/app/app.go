package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cas-go/internal/cas"
	"cas-go/internal/config"
	"cas-go/internal/database"
	"cas-go/internal/fs"
	"cas-go/internal/metrics"
	"cas-go/internal/model"
	"cas-go/internal/staging"
	"cas-go/internal/vault"
)

// metadataDB is the vault metadata name of the database snapshot.
const metadataDB = "db"

// CasApp is the application layer between the CLI and the storage service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the DB lifecycle on Close.
type CasApp struct {
	cfg       *config.Config
	db        cas.Database
	vault     cas.Vault
	staging   *staging.StagingArea
	fsmgr     *fs.OSFilesystemManager
	metrics   *metrics.Recorder
	service   *cas.Service
	clock     cas.Clock
	op        *Operation
	logCloser io.Closer
}

// UploadOptions controls where uploaded files land.
type UploadOptions struct {
	FolderID     string // "" = root
	DeclaredType string // inferred from the file name when empty
	OwnerID      string
	Recursive    bool

	// Observe, when set, is called with each upload as soon as it starts
	// and may block until the upload finishes.
	Observe func(name string, u *cas.Upload)
}

// UploadedFile pairs a local path with the result of its upload.
type UploadedFile struct {
	Path   string
	Result cas.UploadResult
}

// NewCasApp creates a fully wired CasApp from the given config.
// operation identifies the CLI command being run (e.g. "Upload", "EmptyTrash").
// The caller must call Close when done.
func NewCasApp(ctx context.Context, cfg *config.Config, operation string) (*CasApp, error) {
	if len(cfg.Vaults) == 0 {
		return nil, fmt.Errorf("no vaults configured")
	}
	v, err := vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	fsmgr := fs.NewOSFilesystemManager(fs.NewIgnoreMatcher(cfg.Filesystem.Ignore))
	sa, err := staging.NewStagingAreaFromConfig(cfg.Staging, fsmgr)
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("creating staging area: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.TenantID)
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}

	closeAll := func() {
		db.Close()
		v.Close()
	}

	if err := db.CheckMigrations(); err != nil {
		closeAll()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	// Check local DB version against remote vault version.
	remoteVersion, err := v.GetMetadataVersion(ctx, cfg.TenantID, metadataDB)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("checking remote metadata version: %w", err)
	}

	localMax, err := db.MaxOperationID(ctx)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("checking local metadata version: %w", err)
	}

	if remoteVersion > localMax {
		closeAll()
		return nil, fmt.Errorf("local database is behind remote (local=%d, remote=%d): restore from vault or re-initialize", localMax, remoteVersion)
	}

	clock := cas.RealClock{}
	opID := clock.Now().Format("20060102T150405Z")
	logger, logCloser, err := newLogger(cfg.Log, cfg.LogDir, opID)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	recorder := metrics.NewRecorder()
	svc, err := cas.NewService(db, v, serviceOptions(cfg.Storage), &slogAdapter{l: logger}, recorder, clock, cas.UUIDGenerator{})
	if err != nil {
		closeAll()
		logCloser.Close()
		return nil, fmt.Errorf("creating service: %w", err)
	}
	if err := svc.VerifySettings(ctx); err != nil {
		closeAll()
		logCloser.Close()
		return nil, fmt.Errorf("verifying store settings: %w", err)
	}

	return &CasApp{
		cfg:       cfg,
		db:        db,
		vault:     v,
		staging:   sa,
		fsmgr:     fsmgr,
		metrics:   recorder,
		service:   svc,
		clock:     clock,
		op:        NewOperation(operation, ""),
		logCloser: logCloser,
	}, nil
}

func serviceOptions(cfg config.StorageConfig) cas.Options {
	return cas.Options{
		ChunkSize:     cfg.ChunkSize,
		HashAlgorithm: cfg.Hash,
		Workers:       cfg.UploadWorkers,
		GCMode:        cfg.GCMode,
		Retry: cas.RetryPolicy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff.Duration,
			MaxBackoff:     cfg.Retry.MaxBackoff.Duration,
		},
	}
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for DB-mutating commands.
func (a *CasApp) persistOperation(ctx context.Context, params ...string) error {
	if a.op.Persisted() {
		return nil // already persisted
	}
	a.op.Parameters = strings.Join(params, " ")
	dbOp, err := a.db.CreateOperation(ctx, a.op.Operation, a.op.Parameters, a.clock.Now())
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// Upload resolves the given path and uploads it. A directory becomes a
// folder of the same name with its files, and subfolders when recursive,
// mirrored below it.
func (a *CasApp) Upload(ctx context.Context, rawPath string, opts UploadOptions) ([]UploadedFile, error) {
	if err := a.persistOperation(ctx, rawPath); err != nil {
		return nil, err
	}
	src, err := a.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, a.op.Record(fmt.Errorf("resolving path: %w", err))
	}

	if !src.IsDir() {
		res, err := a.uploadSource(ctx, src, opts.FolderID, opts)
		if err != nil {
			return nil, a.op.Record(err)
		}
		return []UploadedFile{{Path: src.String(), Result: res}}, nil
	}

	uploaded, err := a.uploadDir(ctx, src, opts)
	return uploaded, a.op.Record(err)
}

func (a *CasApp) uploadDir(ctx context.Context, dir *fs.Source, opts UploadOptions) ([]UploadedFile, error) {
	ignore, err := fs.LoadIgnoreMatcher(dir.String(), a.cfg.Filesystem.Ignore)
	if err != nil {
		return nil, fmt.Errorf("loading ignore rules: %w", err)
	}
	sources, err := fs.NewOSFilesystemManager(ignore).FindFiles(dir, opts.Recursive)
	if err != nil {
		return nil, fmt.Errorf("finding files: %w", err)
	}

	root, err := a.service.CreateFolder(ctx, dir.Name(), opts.FolderID, opts.OwnerID, "")
	if err != nil {
		return nil, err
	}
	folders := map[string]string{".": root.ID}

	uploaded := make([]UploadedFile, 0, len(sources))
	for _, src := range sources {
		folderID, err := a.ensureFolder(ctx, folders, filepath.Dir(src.RelPath()), opts.OwnerID)
		if err != nil {
			return uploaded, err
		}
		res, err := a.uploadSource(ctx, src, folderID, opts)
		if err != nil {
			return uploaded, fmt.Errorf("uploading %s: %w", src.RelPath(), err)
		}
		uploaded = append(uploaded, UploadedFile{Path: src.String(), Result: res})
	}
	return uploaded, nil
}

// ensureFolder returns the folder for a relative directory, creating it
// and any missing parents. folders maps relative directories to folder IDs.
func (a *CasApp) ensureFolder(ctx context.Context, folders map[string]string, rel, ownerID string) (string, error) {
	if id, ok := folders[rel]; ok {
		return id, nil
	}
	parentID, err := a.ensureFolder(ctx, folders, filepath.Dir(rel), ownerID)
	if err != nil {
		return "", err
	}
	f, err := a.service.CreateFolder(ctx, filepath.Base(rel), parentID, ownerID, "")
	if err != nil {
		return "", err
	}
	folders[rel] = f.ID
	return f.ID, nil
}

func (a *CasApp) uploadSource(ctx context.Context, src *fs.Source, folderID string, opts UploadOptions) (cas.UploadResult, error) {
	content, err := a.staging.StageFile(src)
	if err != nil {
		return cas.UploadResult{}, fmt.Errorf("staging %s: %w", src, err)
	}
	return a.uploadStaged(ctx, content, src.Name(), cas.UploadRequest{
		Name:         src.Name(),
		DeclaredType: opts.DeclaredType,
		FolderID:     folderID,
		OwnerID:      opts.OwnerID,
	}, opts.Observe)
}

// UploadStream uploads everything r produces as a new file named name.
func (a *CasApp) UploadStream(ctx context.Context, r io.Reader, name string, opts UploadOptions) (cas.UploadResult, error) {
	if err := a.persistOperation(ctx, name); err != nil {
		return cas.UploadResult{}, err
	}
	content, err := a.staging.Stage(r)
	if err != nil {
		return cas.UploadResult{}, a.op.Record(fmt.Errorf("staging input: %w", err))
	}
	res, err := a.uploadStaged(ctx, content, name, cas.UploadRequest{
		Name:         name,
		DeclaredType: opts.DeclaredType,
		FolderID:     opts.FolderID,
		OwnerID:      opts.OwnerID,
	}, opts.Observe)
	return res, a.op.Record(err)
}

// UpdateFile uploads the file at rawPath as a new version of fileID.
func (a *CasApp) UpdateFile(ctx context.Context, fileID, rawPath string, observe func(string, *cas.Upload)) (cas.UploadResult, error) {
	if err := a.persistOperation(ctx, fileID, rawPath); err != nil {
		return cas.UploadResult{}, err
	}
	src, err := a.fsmgr.Resolve(rawPath)
	if err != nil {
		return cas.UploadResult{}, a.op.Record(fmt.Errorf("resolving path: %w", err))
	}
	content, err := a.staging.StageFile(src)
	if err != nil {
		return cas.UploadResult{}, a.op.Record(fmt.Errorf("staging %s: %w", src, err))
	}
	res, err := a.uploadStaged(ctx, content, src.Name(), cas.UploadRequest{FileID: fileID}, observe)
	return res, a.op.Record(err)
}

func (a *CasApp) uploadStaged(ctx context.Context, content *staging.Staged, name string, req cas.UploadRequest, observe func(string, *cas.Upload)) (cas.UploadResult, error) {
	defer content.Release()

	req.Content = content
	req.Size = content.Size()
	u, err := a.service.StartUpload(ctx, req)
	if err != nil {
		return cas.UploadResult{}, err
	}
	if observe != nil {
		observe(name, u)
	}
	return u.Wait()
}

// ReadFile writes a version of a file to w. An empty versionID reads the current version.
func (a *CasApp) ReadFile(ctx context.Context, fileID, versionID string, w io.Writer) (*model.Version, error) {
	return a.service.ReadFile(ctx, fileID, versionID, w)
}

// ReadFileTo writes a version of a file to a local path, replacing it
// only once the whole content has been read back.
func (a *CasApp) ReadFileTo(ctx context.Context, fileID, versionID, destPath string) (*model.Version, error) {
	absPath, err := filepath.Abs(destPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(absPath), ".cas-restore-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	v, err := a.service.ReadFile(ctx, fileID, versionID, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing temp file: %w", cerr)
	}
	if err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), absPath); err != nil {
		return nil, fmt.Errorf("moving restored file into place: %w", err)
	}
	return v, nil
}

func (a *CasApp) ListVersions(ctx context.Context, fileID string) ([]*model.Version, error) {
	return a.service.ListVersions(ctx, fileID)
}

// RestoreVersion makes an older version current again by committing a copy of it.
func (a *CasApp) RestoreVersion(ctx context.Context, fileID, versionID string) (*model.Version, error) {
	if err := a.persistOperation(ctx, fileID, versionID); err != nil {
		return nil, err
	}
	v, err := a.service.RestoreVersion(ctx, fileID, versionID)
	return v, a.op.Record(err)
}

func (a *CasApp) GetFile(ctx context.Context, fileID string) (*model.File, error) {
	return a.service.GetFile(ctx, fileID)
}

// ListFolder returns the direct content of a folder ("" for the root) and
// its breadcrumb trail.
func (a *CasApp) ListFolder(ctx context.Context, folderID string) (*cas.Listing, []cas.Crumb, error) {
	listing, err := a.service.ListFolder(ctx, folderID)
	if err != nil {
		return nil, nil, err
	}
	crumbs, err := a.service.Breadcrumbs(ctx, folderID)
	if err != nil {
		return nil, nil, err
	}
	return listing, crumbs, nil
}

func (a *CasApp) RecentFiles(ctx context.Context, limit int) ([]*model.File, error) {
	return a.service.RecentFiles(ctx, limit)
}

func (a *CasApp) StarredFiles(ctx context.Context) ([]*model.File, error) {
	return a.service.StarredFiles(ctx)
}

// CreateFolder creates a folder under parentID ("" for the root).
func (a *CasApp) CreateFolder(ctx context.Context, name, parentID, color string) (*model.Folder, error) {
	if err := a.persistOperation(ctx, name, parentID); err != nil {
		return nil, err
	}
	f, err := a.service.CreateFolder(ctx, name, parentID, "", color)
	return f, a.op.Record(err)
}

func (a *CasApp) MoveFolder(ctx context.Context, folderID, parentID string) error {
	if err := a.persistOperation(ctx, folderID, parentID); err != nil {
		return err
	}
	return a.op.Record(a.service.MoveFolder(ctx, folderID, parentID))
}

func (a *CasApp) ToggleStar(ctx context.Context, fileID string) (bool, error) {
	if err := a.persistOperation(ctx, fileID); err != nil {
		return false, err
	}
	starred, err := a.service.ToggleStar(ctx, fileID)
	return starred, a.op.Record(err)
}

func (a *CasApp) SetShared(ctx context.Context, fileID string, shared bool) error {
	if err := a.persistOperation(ctx, fileID); err != nil {
		return err
	}
	return a.op.Record(a.service.SetShared(ctx, fileID, shared))
}

func (a *CasApp) Rename(ctx context.Context, fileID, name string) error {
	if err := a.persistOperation(ctx, fileID, name); err != nil {
		return err
	}
	return a.op.Record(a.service.Rename(ctx, fileID, name))
}

// DeleteFile moves a file to the trash.
func (a *CasApp) DeleteFile(ctx context.Context, fileID string) error {
	if err := a.persistOperation(ctx, fileID); err != nil {
		return err
	}
	return a.op.Record(a.service.DeleteFile(ctx, fileID))
}

func (a *CasApp) ListTrash(ctx context.Context) ([]*model.TrashEntry, error) {
	return a.service.ListTrash(ctx)
}

func (a *CasApp) RestoreFromTrash(ctx context.Context, fileID string) error {
	if err := a.persistOperation(ctx, fileID); err != nil {
		return err
	}
	return a.op.Record(a.service.RestoreFromTrash(ctx, fileID))
}

func (a *CasApp) PurgeFile(ctx context.Context, fileID string) (cas.PurgeResult, error) {
	if err := a.persistOperation(ctx, fileID); err != nil {
		return cas.PurgeResult{}, err
	}
	res, err := a.service.PurgeFile(ctx, fileID)
	return res, a.op.Record(err)
}

func (a *CasApp) EmptyTrash(ctx context.Context) (cas.PurgeResult, error) {
	if err := a.persistOperation(ctx); err != nil {
		return cas.PurgeResult{}, err
	}
	res, err := a.service.EmptyTrash(ctx)
	return res, a.op.Record(err)
}

// CollectGarbage runs one collector sweep.
func (a *CasApp) CollectGarbage(ctx context.Context) (cas.SweepResult, error) {
	if err := a.persistOperation(ctx); err != nil {
		return cas.SweepResult{}, err
	}
	res, err := a.service.CollectGarbage(ctx)
	return res, a.op.Record(err)
}

// RunCollector sweeps at the configured interval until ctx is done.
func (a *CasApp) RunCollector(ctx context.Context) error {
	interval := a.cfg.Storage.GCInterval.Duration
	if interval <= 0 {
		return fmt.Errorf("gc_interval must be positive, got %s", interval)
	}
	if err := a.persistOperation(ctx); err != nil {
		return err
	}
	return a.op.Record(a.service.RunCollector(ctx, interval))
}

func (a *CasApp) GetStorageStats(ctx context.Context) (*cas.StorageStats, error) {
	return a.service.GetStorageStats(ctx)
}

// GetHistory returns the most recent operations.
func (a *CasApp) GetHistory(ctx context.Context, limit int) ([]*model.Operation, error) {
	return a.service.History(ctx, limit)
}

// ValidateVault checks that the configured vault is reachable.
func (a *CasApp) ValidateVault(ctx context.Context) error {
	return a.vault.ValidateSetup(ctx)
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the operation record, backs up the DB, and uploads to vault.
// For non-persisted operations: just closes the database.
func (a *CasApp) Close() error {
	// Close runs after the command's context may have been cancelled.
	ctx := context.Background()
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if a.op.Persisted() {
		// Finalize the operation record
		if err := a.db.FinishOperation(ctx, a.op.ID, a.op.Status, a.clock.Now()); err != nil {
			keep(fmt.Errorf("finishing operation: %w", err))
		}

		// Snapshot the DB to a temp file
		tmpPath, err := a.snapshotDatabase()
		if err != nil {
			keep(err)
		}

		// Close the database
		if err := a.db.Close(); err != nil {
			keep(fmt.Errorf("closing database: %w", err))
		}

		// Upload DB snapshot to vault with version = operation ID
		if tmpPath != "" {
			if err := a.uploadMetadata(ctx, tmpPath, a.op.ID); err != nil {
				keep(err)
			}
		}
	} else {
		// Non-mutating operation: just close the database, no upload
		if err := a.db.Close(); err != nil {
			keep(fmt.Errorf("closing database: %w", err))
		}
	}

	if path := a.cfg.Metrics.TextfilePath; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			keep(err)
		}
	}

	if err := a.vault.Close(); err != nil {
		keep(fmt.Errorf("closing vault: %w", err))
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}

	return firstErr
}

// snapshotDatabase writes a consistent copy of the database to a temp file
// and returns its path.
func (a *CasApp) snapshotDatabase() (string, error) {
	tmpDir, err := os.MkdirTemp("", "cas-db-backup-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir for db backup: %w", err)
	}
	// VACUUM INTO refuses to overwrite an existing file.
	tmpPath := filepath.Join(tmpDir, "snapshot.db")
	if err := a.db.BackupTo(tmpPath); err != nil {
		os.RemoveAll(tmpDir)
		return "", fmt.Errorf("backing up database: %w", err)
	}
	return tmpPath, nil
}

// uploadMetadata opens the temp DB file and uploads it to the vault as metadata.
func (a *CasApp) uploadMetadata(ctx context.Context, path string, version int64) error {
	defer os.RemoveAll(filepath.Dir(path))

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening db backup for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat db backup: %w", err)
	}

	if err := a.vault.PutMetadata(ctx, a.cfg.TenantID, metadataDB, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading metadata to vault: %w", err)
	}

	return nil
}
