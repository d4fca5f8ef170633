package model

import "time"

// Chunk is a unique piece of content in the chunk store.
// The digest is derived from the chunk bytes, so it doubles as the vault key.
type Chunk struct {
	Digest    string // hex digest of the chunk bytes
	Size      int64
	RefCount  int64 // version-chunk slots pointing at this chunk
	CreatedAt time.Time
}

// Folder groups files and other folders. An empty ParentID means the root.
type Folder struct {
	ID        string // UUID
	Name      string
	ParentID  string
	OwnerID   string
	Color     string
	CreatedAt time.Time
}

// File is the live (or trashed) record of an uploaded file.
// Size and Digest mirror the latest version.
type File struct {
	ID         string // UUID
	Name       string
	Type       string // declared or inferred from the extension
	FolderID   string // "" = root
	OwnerID    string
	CreatedAt  time.Time
	ModifiedAt time.Time
	Starred    bool
	Shared     bool
	Size       int64
	Digest     string
	TrashedAt  *time.Time // non-nil while the file sits in the trash
}

// Trashed reports whether the file is currently in the trash.
func (f *File) Trashed() bool {
	return f.TrashedAt != nil
}

// Version is an immutable snapshot of a file's content as an ordered chunk list.
type Version struct {
	ID        string // UUID
	FileID    string
	Seq       int64 // 1-based position in the file's history
	CreatedAt time.Time
	Size      int64
	Digest    string   // digest of the reassembled content
	Note      string
	Chunks    []string // chunk digests in byte order
}

// TrashEntry wraps a deleted file with its deletion timestamp.
type TrashEntry struct {
	File      *File
	DeletedAt time.Time
}

// Operation is a recorded CLI operation that mutated the database.
type Operation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Operation  string
	Parameters string
	Status     string
}

// StorageStats is the raw aggregate view of the metadata store.
type StorageStats struct {
	TotalFiles        int64
	TotalFolders      int64
	TotalVersions     int64
	TotalStorageUsed  int64 // sum of live file sizes
	TotalChunks       int64 // sum of reference counts
	UniqueChunks      int64 // chunks with at least one reference
	StoredBytes       int64 // bytes held by referenced chunks
	ReferencedBytes   int64 // bytes that would be held without dedup
	DuplicatesAvoided int64
	ReclaimableChunks int64
	SizeByType        map[string]int64 // live file bytes per declared type
}
