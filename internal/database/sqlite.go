package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"cas-go/internal/cas"
	"cas-go/internal/database/migrations"
	"cas-go/internal/database/sqlc"
	"cas-go/internal/model"
)

const counterDedupHits = "dedup_hits"

// SQLiteDatabase implements the cas.Database interface using SQLite.
type SQLiteDatabase struct {
	*store
	db   *sql.DB
	path string
}

// store implements cas.Store over a set of queries, bound either to the
// connection pool or to a transaction.
type store struct {
	queries *sqlc.Queries
}

// NewSQLiteDatabase opens a SQLite database and migrates it to the latest
// schema. path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &SQLiteDatabase{
		store: &store{queries: sqlc.New(db)},
		db:    db,
		path:  path,
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{
		store: &store{queries: sqlc.New(db)},
		db:    db,
	}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases alive for the life of
	// the pool and serializes writers. PRAGMAs below apply to it.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// InTx runs fn inside a transaction. The pool holds a single connection,
// so fn must not touch the database through anything but tx.
func (s *SQLiteDatabase) InTx(ctx context.Context, fn func(cas.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&store{queries: s.queries.WithTx(tx)}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Chunk operations

func (s *store) FindChunk(ctx context.Context, digest string) (*model.Chunk, error) {
	c, err := s.queries.GetChunk(ctx, digest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding chunk: %w", err)
	}
	return toChunk(c), nil
}

func (s *store) InsertChunk(ctx context.Context, digest string, size int64, at time.Time) (bool, error) {
	n, err := s.queries.InsertChunk(ctx, sqlc.InsertChunkParams{
		Digest:    digest,
		Size:      size,
		CreatedAt: at,
	})
	if err != nil {
		return false, fmt.Errorf("inserting chunk: %w", err)
	}
	return n == 1, nil
}

// AddChunkRefs adjusts a chunk's reference count by delta and returns the
// new count. The update is refused as a whole if it would go negative.
func (s *store) AddChunkRefs(ctx context.Context, digest string, delta int64) (int64, error) {
	n, err := s.queries.AddChunkRefs(ctx, sqlc.AddChunkRefsParams{Delta: delta, Digest: digest})
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("updating chunk references: %w", err)
	}

	c, err := s.FindChunk(ctx, digest)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, fmt.Errorf("chunk %s: %w", digest, cas.ErrNotFound)
	}
	return 0, fmt.Errorf("chunk %s has %d references, cannot apply %d: %w", digest, c.RefCount, delta, cas.ErrInvariantViolation)
}

func (s *store) DeleteUnreferencedChunk(ctx context.Context, digest string) (bool, error) {
	n, err := s.queries.DeleteUnreferencedChunk(ctx, digest)
	if err != nil {
		return false, fmt.Errorf("deleting chunk: %w", err)
	}
	return n == 1, nil
}

func (s *store) ListUnreferencedChunks(ctx context.Context, limit int) ([]*model.Chunk, error) {
	chunks, err := s.queries.ListUnreferencedChunks(ctx, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing unreferenced chunks: %w", err)
	}

	result := make([]*model.Chunk, len(chunks))
	for i := range chunks {
		result[i] = toChunk(chunks[i])
	}
	return result, nil
}

// Folder operations

func (s *store) InsertFolder(ctx context.Context, folder *model.Folder) error {
	err := s.queries.InsertFolder(ctx, sqlc.InsertFolderParams{
		ID:        folder.ID,
		Name:      folder.Name,
		ParentID:  nullString(folder.ParentID),
		OwnerID:   folder.OwnerID,
		Color:     folder.Color,
		CreatedAt: folder.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("inserting folder: %w", classify(err))
	}
	return nil
}

func (s *store) FindFolder(ctx context.Context, id string) (*model.Folder, error) {
	f, err := s.queries.GetFolder(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding folder: %w", err)
	}
	return toFolder(f), nil
}

func (s *store) ListFolders(ctx context.Context, parentID string) ([]*model.Folder, error) {
	var (
		folders []sqlc.Folder
		err     error
	)
	if parentID == "" {
		folders, err = s.queries.ListRootFolders(ctx)
	} else {
		folders, err = s.queries.ListChildFolders(ctx, nullString(parentID))
	}
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}

	result := make([]*model.Folder, len(folders))
	for i := range folders {
		result[i] = toFolder(folders[i])
	}
	return result, nil
}

func (s *store) UpdateFolderParent(ctx context.Context, id, parentID string) error {
	err := s.queries.UpdateFolderParent(ctx, sqlc.UpdateFolderParentParams{
		ParentID: nullString(parentID),
		ID:       id,
	})
	if err != nil {
		return fmt.Errorf("updating folder parent: %w", err)
	}
	return nil
}

// File operations

func (s *store) InsertFile(ctx context.Context, file *model.File) error {
	err := s.queries.InsertFile(ctx, sqlc.InsertFileParams{
		ID:         file.ID,
		Name:       file.Name,
		Type:       file.Type,
		FolderID:   nullString(file.FolderID),
		OwnerID:    file.OwnerID,
		CreatedAt:  file.CreatedAt,
		ModifiedAt: file.ModifiedAt,
		Starred:    file.Starred,
		Shared:     file.Shared,
		Size:       file.Size,
		Digest:     file.Digest,
	})
	if err != nil {
		return fmt.Errorf("inserting file: %w", classify(err))
	}
	return nil
}

func (s *store) FindFile(ctx context.Context, id string) (*model.File, error) {
	row, err := s.queries.GetFile(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file: %w", err)
	}
	return toFile(row.File, row.DeletedAt), nil
}

func (s *store) UpdateFile(ctx context.Context, file *model.File) error {
	err := s.queries.UpdateFile(ctx, sqlc.UpdateFileParams{
		Name:       file.Name,
		Type:       file.Type,
		FolderID:   nullString(file.FolderID),
		ModifiedAt: file.ModifiedAt,
		Starred:    file.Starred,
		Shared:     file.Shared,
		Size:       file.Size,
		Digest:     file.Digest,
		ID:         file.ID,
	})
	if err != nil {
		return fmt.Errorf("updating file: %w", err)
	}
	return nil
}

// DeleteFile removes a file; its versions, version chunks and trash entry
// go with it.
func (s *store) DeleteFile(ctx context.Context, id string) error {
	if err := s.queries.DeleteFile(ctx, id); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

func (s *store) ListFiles(ctx context.Context, q cas.FileQuery) ([]*model.File, error) {
	rows, err := s.queries.ListFiles(ctx, sqlc.ListFilesParams{
		Trashed:     q.Trashed,
		ByFolder:    q.ByFolder,
		FolderID:    q.FolderID,
		StarredOnly: q.StarredOnly,
		RecentFirst: q.RecentFirst,
		MaxRows:     sqlLimit(q.Limit),
	})
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	result := make([]*model.File, len(rows))
	for i := range rows {
		result[i] = toFile(rows[i].File, rows[i].DeletedAt)
	}
	return result, nil
}

// Version operations

func (s *store) InsertVersion(ctx context.Context, v *model.Version) error {
	err := s.queries.InsertVersion(ctx, sqlc.InsertVersionParams{
		ID:        v.ID,
		FileID:    v.FileID,
		Seq:       v.Seq,
		CreatedAt: v.CreatedAt,
		Size:      v.Size,
		Digest:    v.Digest,
		Note:      v.Note,
	})
	if err != nil {
		return fmt.Errorf("inserting version: %w", classify(err))
	}

	for i, digest := range v.Chunks {
		err := s.queries.InsertVersionChunk(ctx, sqlc.InsertVersionChunkParams{
			VersionID:   v.ID,
			Position:    int64(i),
			ChunkDigest: digest,
		})
		if err != nil {
			return fmt.Errorf("inserting version chunk %d: %w", i, err)
		}
	}
	return nil
}

func (s *store) FindVersion(ctx context.Context, fileID, versionID string) (*model.Version, error) {
	v, err := s.queries.GetVersion(ctx, sqlc.GetVersionParams{ID: versionID, FileID: fileID})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding version: %w", err)
	}
	return s.withChunks(ctx, v)
}

// ListVersions returns a file's versions in sequence order.
func (s *store) ListVersions(ctx context.Context, fileID string) ([]*model.Version, error) {
	versions, err := s.queries.ListVersionsByFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}

	result := make([]*model.Version, len(versions))
	for i := range versions {
		if result[i], err = s.withChunks(ctx, versions[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *store) LatestVersionSeq(ctx context.Context, fileID string) (int64, error) {
	seq, err := s.queries.GetLatestVersionSeq(ctx, fileID)
	if err != nil {
		return 0, fmt.Errorf("getting latest version sequence: %w", err)
	}
	return seq, nil
}

func (s *store) withChunks(ctx context.Context, v sqlc.Version) (*model.Version, error) {
	chunks, err := s.queries.ListVersionChunks(ctx, v.ID)
	if err != nil {
		return nil, fmt.Errorf("listing version chunks: %w", err)
	}
	return &model.Version{
		ID:        v.ID,
		FileID:    v.FileID,
		Seq:       v.Seq,
		CreatedAt: v.CreatedAt,
		Size:      v.Size,
		Digest:    v.Digest,
		Note:      v.Note,
		Chunks:    chunks,
	}, nil
}

// Trash operations

func (s *store) InsertTrashEntry(ctx context.Context, fileID string, at time.Time) error {
	err := s.queries.InsertTrashEntry(ctx, sqlc.InsertTrashEntryParams{FileID: fileID, DeletedAt: at})
	if err != nil {
		return fmt.Errorf("inserting trash entry: %w", classify(err))
	}
	return nil
}

func (s *store) DeleteTrashEntry(ctx context.Context, fileID string) (bool, error) {
	n, err := s.queries.DeleteTrashEntry(ctx, fileID)
	if err != nil {
		return false, fmt.Errorf("deleting trash entry: %w", err)
	}
	return n == 1, nil
}

// ListTrash returns trashed files, most recently deleted first.
func (s *store) ListTrash(ctx context.Context) ([]*model.TrashEntry, error) {
	rows, err := s.queries.ListTrash(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing trash: %w", err)
	}

	result := make([]*model.TrashEntry, len(rows))
	for i := range rows {
		deletedAt := rows[i].DeletedAt
		result[i] = &model.TrashEntry{
			File:      toFile(rows[i].File, sql.NullTime{Time: deletedAt, Valid: true}),
			DeletedAt: deletedAt,
		}
	}
	return result, nil
}

// Counters and settings

func (s *store) AddDedupHits(ctx context.Context, n int64) error {
	if n == 0 {
		return nil
	}
	if err := s.queries.AddCounter(ctx, sqlc.AddCounterParams{Name: counterDedupHits, Value: n}); err != nil {
		return fmt.Errorf("adding dedup hits: %w", err)
	}
	return nil
}

func (s *store) Stats(ctx context.Context) (*model.StorageStats, error) {
	files, err := s.queries.GetLiveFileStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting files: %w", err)
	}
	folders, err := s.queries.CountFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting folders: %w", err)
	}
	versions, err := s.queries.CountVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting versions: %w", err)
	}
	chunks, err := s.queries.GetChunkStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarizing chunks: %w", err)
	}
	hits, err := s.queries.GetCounter(ctx, counterDedupHits)
	if err != nil {
		return nil, fmt.Errorf("reading dedup hits: %w", err)
	}
	byType, err := s.queries.SumLiveFileSizeByType(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarizing file types: %w", err)
	}

	stats := &model.StorageStats{
		TotalFiles:        files.FileCount,
		TotalFolders:      folders,
		TotalVersions:     versions,
		TotalStorageUsed:  files.TotalSize,
		TotalChunks:       chunks.TotalRefs,
		UniqueChunks:      chunks.ReferencedChunks,
		StoredBytes:       chunks.StoredBytes,
		ReferencedBytes:   chunks.ReferencedBytes,
		DuplicatesAvoided: hits,
		ReclaimableChunks: chunks.UnreferencedChunks,
		SizeByType:        make(map[string]int64, len(byType)),
	}
	for _, row := range byType {
		stats.SizeByType[row.Type] = row.TotalSize
	}
	return stats, nil
}

// GetSetting returns the value stored under key, or "" if unset.
func (s *store) GetSetting(ctx context.Context, key string) (string, error) {
	v, err := s.queries.GetSetting(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("reading setting %s: %w", key, err)
	}
	return v, nil
}

func (s *store) PutSetting(ctx context.Context, key, value string) error {
	if err := s.queries.PutSetting(ctx, sqlc.PutSettingParams{Key: key, Value: value}); err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}

// Operation tracking

func (s *store) CreateOperation(ctx context.Context, operation, parameters string, at time.Time) (*model.Operation, error) {
	op, err := s.queries.InsertOperation(ctx, sqlc.InsertOperationParams{
		StartedAt:  at,
		Operation:  operation,
		Parameters: parameters,
	})
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return toOperation(op), nil
}

func (s *store) FinishOperation(ctx context.Context, id int64, status string, at time.Time) error {
	err := s.queries.UpdateOperationFinished(ctx, sqlc.UpdateOperationFinishedParams{
		FinishedAt: sql.NullTime{Time: at, Valid: true},
		Status:     status,
		ID:         id,
	})
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *store) ListOperations(ctx context.Context, limit int) ([]*model.Operation, error) {
	ops, err := s.queries.ListOperations(ctx, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}

	result := make([]*model.Operation, len(ops))
	for i := range ops {
		result[i] = toOperation(ops[i])
	}
	return result, nil
}

func (s *store) MaxOperationID(ctx context.Context) (int64, error) {
	id, err := s.queries.GetMaxOperationID(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting max operation ID: %w", err)
	}
	return id, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// classify marks unique constraint violations as concurrent modifications.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %w", cas.ErrConcurrentModification, err)
	}
	return err
}

// sqlLimit maps "no limit" (0 or less) onto SQLite's LIMIT -1.
func sqlLimit(limit int) int64 {
	if limit <= 0 {
		return -1
	}
	return int64(limit)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toChunk(c sqlc.Chunk) *model.Chunk {
	return &model.Chunk{
		Digest:    c.Digest,
		Size:      c.Size,
		RefCount:  c.RefCount,
		CreatedAt: c.CreatedAt,
	}
}

func toFolder(f sqlc.Folder) *model.Folder {
	return &model.Folder{
		ID:        f.ID,
		Name:      f.Name,
		ParentID:  f.ParentID.String,
		OwnerID:   f.OwnerID,
		Color:     f.Color,
		CreatedAt: f.CreatedAt,
	}
}

func toFile(f sqlc.File, deletedAt sql.NullTime) *model.File {
	file := &model.File{
		ID:         f.ID,
		Name:       f.Name,
		Type:       f.Type,
		FolderID:   f.FolderID.String,
		OwnerID:    f.OwnerID,
		CreatedAt:  f.CreatedAt,
		ModifiedAt: f.ModifiedAt,
		Starred:    f.Starred,
		Shared:     f.Shared,
		Size:       f.Size,
		Digest:     f.Digest,
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		file.TrashedAt = &t
	}
	return file
}

func toOperation(op sqlc.Operation) *model.Operation {
	o := &model.Operation{
		ID:         op.ID,
		StartedAt:  op.StartedAt,
		Operation:  op.Operation,
		Parameters: op.Parameters,
		Status:     op.Status,
	}
	if op.FinishedAt.Valid {
		t := op.FinishedAt.Time
		o.FinishedAt = &t
	}
	return o
}

// Compile-time check that SQLiteDatabase implements cas.Database interface
var _ cas.Database = (*SQLiteDatabase)(nil)
