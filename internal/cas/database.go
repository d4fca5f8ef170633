package cas

import (
	"context"
	"time"

	"cas-go/internal/model"
)

// FileQuery selects files for listings.
type FileQuery struct {
	FolderID    string // only used when ByFolder is set; "" = root
	ByFolder    bool
	Trashed     bool // list trashed files instead of live ones
	StarredOnly bool
	RecentFirst bool // order by modification time, newest first
	Limit       int  // 0 = unlimited
}

// Store is the record-level interface to the metadata database. The same
// operations are available on the database itself and inside a
// transaction started with Database.InTx.
//
// Find* methods return (nil, nil) when the record does not exist.
type Store interface {
	// Chunk index. Reference counts are only changed through the chunk store.
	FindChunk(ctx context.Context, digest string) (*model.Chunk, error)
	InsertChunk(ctx context.Context, digest string, size int64, at time.Time) (bool, error)
	AddChunkRefs(ctx context.Context, digest string, delta int64) (int64, error)
	DeleteUnreferencedChunk(ctx context.Context, digest string) (bool, error)
	ListUnreferencedChunks(ctx context.Context, limit int) ([]*model.Chunk, error)

	// Folders.
	InsertFolder(ctx context.Context, folder *model.Folder) error
	FindFolder(ctx context.Context, id string) (*model.Folder, error)
	ListFolders(ctx context.Context, parentID string) ([]*model.Folder, error)
	UpdateFolderParent(ctx context.Context, id, parentID string) error

	// Files. FindFile returns live and trashed files alike.
	InsertFile(ctx context.Context, file *model.File) error
	FindFile(ctx context.Context, id string) (*model.File, error)
	UpdateFile(ctx context.Context, file *model.File) error
	DeleteFile(ctx context.Context, id string) error
	ListFiles(ctx context.Context, q FileQuery) ([]*model.File, error)

	// Versions, with their ordered chunk slots.
	InsertVersion(ctx context.Context, v *model.Version) error
	FindVersion(ctx context.Context, fileID, versionID string) (*model.Version, error)
	ListVersions(ctx context.Context, fileID string) ([]*model.Version, error)
	LatestVersionSeq(ctx context.Context, fileID string) (int64, error)

	// Trash.
	InsertTrashEntry(ctx context.Context, fileID string, at time.Time) error
	DeleteTrashEntry(ctx context.Context, fileID string) (bool, error)
	ListTrash(ctx context.Context) ([]*model.TrashEntry, error)

	// Counters and settings.
	AddDedupHits(ctx context.Context, n int64) error
	Stats(ctx context.Context) (*model.StorageStats, error)
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error

	// Operation history.
	CreateOperation(ctx context.Context, operation, parameters string, at time.Time) (*model.Operation, error)
	FinishOperation(ctx context.Context, id int64, status string, at time.Time) error
	ListOperations(ctx context.Context, limit int) ([]*model.Operation, error)
	MaxOperationID(ctx context.Context) (int64, error)
}

// Database is the metadata store.
type Database interface {
	Store

	// InTx runs fn inside a single transaction. fn must only use the Store
	// it is given; the transaction commits when fn returns nil and rolls
	// back otherwise, including when ctx is cancelled.
	InTx(ctx context.Context, fn func(Store) error) error

	// CheckMigrations verifies the schema is up to date.
	CheckMigrations() error

	// BackupTo writes a consistent copy of the database to destPath.
	BackupTo(destPath string) error

	Close() error
}
