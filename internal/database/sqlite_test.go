package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cas-go/internal/cas"
	"cas-go/internal/model"
)

var t0 = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func insertChunk(t *testing.T, db *SQLiteDatabase, digest string, size, refs int64) {
	t.Helper()
	ctx := context.Background()

	if _, err := db.InsertChunk(ctx, digest, size, t0); err != nil {
		t.Fatalf("InsertChunk() error = %v", err)
	}
	if refs > 0 {
		if _, err := db.AddChunkRefs(ctx, digest, refs); err != nil {
			t.Fatalf("AddChunkRefs() error = %v", err)
		}
	}
}

func insertFile(t *testing.T, db *SQLiteDatabase, id, name, fileType string, size int64, modified time.Time) *model.File {
	t.Helper()

	f := &model.File{
		ID:         id,
		Name:       name,
		Type:       fileType,
		CreatedAt:  t0,
		ModifiedAt: modified,
		Size:       size,
		Digest:     "digest-" + id,
	}
	if err := db.InsertFile(context.Background(), f); err != nil {
		t.Fatalf("InsertFile() error = %v", err)
	}
	return f
}

func TestSQLiteDatabase_Chunks(t *testing.T) {
	ctx := context.Background()

	t.Run("returns nil when chunk not found", func(t *testing.T) {
		db := newTestDB(t)

		c, err := db.FindChunk(ctx, "missing")
		if err != nil {
			t.Fatalf("FindChunk() error = %v", err)
		}
		if c != nil {
			t.Errorf("FindChunk() = %v, want nil", c)
		}
	})

	t.Run("insert is idempotent", func(t *testing.T) {
		db := newTestDB(t)

		created, err := db.InsertChunk(ctx, "aa", 10, t0)
		if err != nil {
			t.Fatalf("InsertChunk() error = %v", err)
		}
		if !created {
			t.Error("first InsertChunk() created = false, want true")
		}

		created, err = db.InsertChunk(ctx, "aa", 10, t0)
		if err != nil {
			t.Fatalf("second InsertChunk() error = %v", err)
		}
		if created {
			t.Error("second InsertChunk() created = true, want false")
		}

		c, err := db.FindChunk(ctx, "aa")
		if err != nil {
			t.Fatalf("FindChunk() error = %v", err)
		}
		if c.Size != 10 || c.RefCount != 0 {
			t.Errorf("FindChunk() = %+v, want size 10 and no references", c)
		}
		if !c.CreatedAt.Equal(t0) {
			t.Errorf("CreatedAt = %v, want %v", c.CreatedAt, t0)
		}
	})

	t.Run("reference counts", func(t *testing.T) {
		db := newTestDB(t)
		insertChunk(t, db, "aa", 10, 0)

		n, err := db.AddChunkRefs(ctx, "aa", 3)
		if err != nil {
			t.Fatalf("AddChunkRefs(+3) error = %v", err)
		}
		if n != 3 {
			t.Errorf("AddChunkRefs(+3) = %d, want 3", n)
		}

		n, err = db.AddChunkRefs(ctx, "aa", -2)
		if err != nil {
			t.Fatalf("AddChunkRefs(-2) error = %v", err)
		}
		if n != 1 {
			t.Errorf("AddChunkRefs(-2) = %d, want 1", n)
		}

		_, err = db.AddChunkRefs(ctx, "aa", -2)
		if !errors.Is(err, cas.ErrInvariantViolation) {
			t.Errorf("AddChunkRefs(-2) below zero error = %v, want ErrInvariantViolation", err)
		}

		c, _ := db.FindChunk(ctx, "aa")
		if c.RefCount != 1 {
			t.Errorf("RefCount after refused decrement = %d, want 1", c.RefCount)
		}

		_, err = db.AddChunkRefs(ctx, "missing", 1)
		if !errors.Is(err, cas.ErrNotFound) {
			t.Errorf("AddChunkRefs() on missing chunk error = %v, want ErrNotFound", err)
		}
	})

	t.Run("only unreferenced chunks are deleted and listed", func(t *testing.T) {
		db := newTestDB(t)
		insertChunk(t, db, "aa", 10, 0)
		insertChunk(t, db, "bb", 20, 1)

		unreferenced, err := db.ListUnreferencedChunks(ctx, 0)
		if err != nil {
			t.Fatalf("ListUnreferencedChunks() error = %v", err)
		}
		if len(unreferenced) != 1 || unreferenced[0].Digest != "aa" {
			t.Errorf("ListUnreferencedChunks() = %v, want [aa]", unreferenced)
		}

		deleted, err := db.DeleteUnreferencedChunk(ctx, "bb")
		if err != nil {
			t.Fatalf("DeleteUnreferencedChunk(bb) error = %v", err)
		}
		if deleted {
			t.Error("DeleteUnreferencedChunk(bb) deleted a referenced chunk")
		}

		deleted, err = db.DeleteUnreferencedChunk(ctx, "aa")
		if err != nil {
			t.Fatalf("DeleteUnreferencedChunk(aa) error = %v", err)
		}
		if !deleted {
			t.Error("DeleteUnreferencedChunk(aa) = false, want true")
		}
	})
}

func TestSQLiteDatabase_Versions(t *testing.T) {
	ctx := context.Background()

	t.Run("stores chunk slots in order", func(t *testing.T) {
		db := newTestDB(t)
		insertChunk(t, db, "aa", 10, 0)
		insertChunk(t, db, "bb", 10, 0)
		insertFile(t, db, "f1", "a.txt", "document", 30, t0)

		v := &model.Version{ID: "v1", FileID: "f1", Seq: 1, CreatedAt: t0, Size: 30, Digest: "d1", Note: "Initial upload",
			Chunks: []string{"bb", "aa", "bb"}}
		if err := db.InsertVersion(ctx, v); err != nil {
			t.Fatalf("InsertVersion() error = %v", err)
		}

		got, err := db.FindVersion(ctx, "f1", "v1")
		if err != nil {
			t.Fatalf("FindVersion() error = %v", err)
		}
		want := []string{"bb", "aa", "bb"}
		if len(got.Chunks) != len(want) {
			t.Fatalf("Chunks = %v, want %v", got.Chunks, want)
		}
		for i := range want {
			if got.Chunks[i] != want[i] {
				t.Errorf("Chunks[%d] = %q, want %q", i, got.Chunks[i], want[i])
			}
		}
		if got.Note != "Initial upload" {
			t.Errorf("Note = %q, want %q", got.Note, "Initial upload")
		}

		missing, err := db.FindVersion(ctx, "other-file", "v1")
		if err != nil {
			t.Fatalf("FindVersion() error = %v", err)
		}
		if missing != nil {
			t.Error("FindVersion() with wrong file returned a version")
		}
	})

	t.Run("sequence numbers", func(t *testing.T) {
		db := newTestDB(t)
		insertFile(t, db, "f1", "a.txt", "document", 0, t0)

		seq, err := db.LatestVersionSeq(ctx, "f1")
		if err != nil {
			t.Fatalf("LatestVersionSeq() error = %v", err)
		}
		if seq != 0 {
			t.Errorf("LatestVersionSeq() = %d, want 0", seq)
		}

		for i, id := range []string{"v1", "v2"} {
			v := &model.Version{ID: id, FileID: "f1", Seq: int64(i + 1), CreatedAt: t0, Digest: "d"}
			if err := db.InsertVersion(ctx, v); err != nil {
				t.Fatalf("InsertVersion(%s) error = %v", id, err)
			}
		}

		seq, _ = db.LatestVersionSeq(ctx, "f1")
		if seq != 2 {
			t.Errorf("LatestVersionSeq() = %d, want 2", seq)
		}

		dup := &model.Version{ID: "v3", FileID: "f1", Seq: 2, CreatedAt: t0, Digest: "d"}
		err = db.InsertVersion(ctx, dup)
		if !errors.Is(err, cas.ErrConcurrentModification) {
			t.Errorf("InsertVersion() with taken seq error = %v, want ErrConcurrentModification", err)
		}

		versions, err := db.ListVersions(ctx, "f1")
		if err != nil {
			t.Fatalf("ListVersions() error = %v", err)
		}
		if len(versions) != 2 || versions[0].Seq != 1 || versions[1].Seq != 2 {
			t.Errorf("ListVersions() = %v, want seq 1 then 2", versions)
		}
	})
}

func TestSQLiteDatabase_FilesAndTrash(t *testing.T) {
	ctx := context.Background()

	t.Run("trash entry marks file trashed", func(t *testing.T) {
		db := newTestDB(t)
		insertFile(t, db, "f1", "a.txt", "document", 10, t0)

		f, err := db.FindFile(ctx, "f1")
		if err != nil {
			t.Fatalf("FindFile() error = %v", err)
		}
		if f.Trashed() {
			t.Error("new file is trashed")
		}

		deletedAt := t0.Add(time.Hour)
		if err := db.InsertTrashEntry(ctx, "f1", deletedAt); err != nil {
			t.Fatalf("InsertTrashEntry() error = %v", err)
		}

		f, _ = db.FindFile(ctx, "f1")
		if !f.Trashed() || !f.TrashedAt.Equal(deletedAt) {
			t.Errorf("TrashedAt = %v, want %v", f.TrashedAt, deletedAt)
		}

		entries, err := db.ListTrash(ctx)
		if err != nil {
			t.Fatalf("ListTrash() error = %v", err)
		}
		if len(entries) != 1 || entries[0].File.ID != "f1" || !entries[0].DeletedAt.Equal(deletedAt) {
			t.Errorf("ListTrash() = %v, want f1", entries)
		}

		removed, err := db.DeleteTrashEntry(ctx, "f1")
		if err != nil {
			t.Fatalf("DeleteTrashEntry() error = %v", err)
		}
		if !removed {
			t.Error("DeleteTrashEntry() = false, want true")
		}
		removed, _ = db.DeleteTrashEntry(ctx, "f1")
		if removed {
			t.Error("second DeleteTrashEntry() = true, want false")
		}
	})

	t.Run("list files", func(t *testing.T) {
		db := newTestDB(t)
		folder := &model.Folder{ID: "d1", Name: "Docs", Color: "#4285f4", CreatedAt: t0}
		if err := db.InsertFolder(ctx, folder); err != nil {
			t.Fatalf("InsertFolder() error = %v", err)
		}

		insertFile(t, db, "f1", "old.txt", "document", 1, t0)
		f2 := insertFile(t, db, "f2", "new.txt", "document", 2, t0.Add(2*time.Hour))
		f3 := &model.File{ID: "f3", Name: "in-folder.png", Type: "image", FolderID: "d1", CreatedAt: t0,
			ModifiedAt: t0.Add(time.Hour), Starred: true, Digest: "x"}
		if err := db.InsertFile(ctx, f3); err != nil {
			t.Fatalf("InsertFile() error = %v", err)
		}
		insertFile(t, db, "f4", "gone.txt", "document", 4, t0.Add(3*time.Hour))
		if err := db.InsertTrashEntry(ctx, "f4", t0); err != nil {
			t.Fatalf("InsertTrashEntry() error = %v", err)
		}

		tests := []struct {
			name  string
			query cas.FileQuery
			want  []string
		}{
			{"live files by name", cas.FileQuery{}, []string{"f3", "f2", "f1"}},
			{"recent first", cas.FileQuery{RecentFirst: true}, []string{"f2", "f3", "f1"}},
			{"recent with limit", cas.FileQuery{RecentFirst: true, Limit: 1}, []string{"f2"}},
			{"root folder", cas.FileQuery{ByFolder: true}, []string{"f2", "f1"}},
			{"named folder", cas.FileQuery{ByFolder: true, FolderID: "d1"}, []string{"f3"}},
			{"starred", cas.FileQuery{StarredOnly: true}, []string{"f3"}},
			{"trashed", cas.FileQuery{Trashed: true}, []string{"f4"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				files, err := db.ListFiles(ctx, tt.query)
				if err != nil {
					t.Fatalf("ListFiles() error = %v", err)
				}
				if len(files) != len(tt.want) {
					t.Fatalf("ListFiles() returned %d files, want %d", len(files), len(tt.want))
				}
				for i, id := range tt.want {
					if files[i].ID != id {
						t.Errorf("files[%d] = %s, want %s", i, files[i].ID, id)
					}
				}
			})
		}

		f2.Name = "renamed.txt"
		f2.Starred = true
		if err := db.UpdateFile(ctx, f2); err != nil {
			t.Fatalf("UpdateFile() error = %v", err)
		}
		got, _ := db.FindFile(ctx, "f2")
		if got.Name != "renamed.txt" || !got.Starred {
			t.Errorf("FindFile() after update = %+v", got)
		}
	})

	t.Run("delete cascades to versions and trash", func(t *testing.T) {
		db := newTestDB(t)
		insertChunk(t, db, "aa", 10, 1)
		insertFile(t, db, "f1", "a.txt", "document", 10, t0)
		v := &model.Version{ID: "v1", FileID: "f1", Seq: 1, CreatedAt: t0, Size: 10, Digest: "d", Chunks: []string{"aa"}}
		if err := db.InsertVersion(ctx, v); err != nil {
			t.Fatalf("InsertVersion() error = %v", err)
		}
		if err := db.InsertTrashEntry(ctx, "f1", t0); err != nil {
			t.Fatalf("InsertTrashEntry() error = %v", err)
		}

		if err := db.DeleteFile(ctx, "f1"); err != nil {
			t.Fatalf("DeleteFile() error = %v", err)
		}

		versions, _ := db.ListVersions(ctx, "f1")
		if len(versions) != 0 {
			t.Errorf("ListVersions() after delete = %d versions, want 0", len(versions))
		}
		entries, _ := db.ListTrash(ctx)
		if len(entries) != 0 {
			t.Errorf("ListTrash() after delete = %d entries, want 0", len(entries))
		}
	})
}

func TestSQLiteDatabase_Folders(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	root := &model.Folder{ID: "r", Name: "Work", Color: "#4285f4", CreatedAt: t0}
	child := &model.Folder{ID: "c", Name: "Reports", ParentID: "r", OwnerID: "u1", Color: "#ff0000", CreatedAt: t0}
	for _, f := range []*model.Folder{root, child} {
		if err := db.InsertFolder(ctx, f); err != nil {
			t.Fatalf("InsertFolder(%s) error = %v", f.ID, err)
		}
	}

	got, err := db.FindFolder(ctx, "c")
	if err != nil {
		t.Fatalf("FindFolder() error = %v", err)
	}
	if got.ParentID != "r" || got.OwnerID != "u1" || got.Color != "#ff0000" {
		t.Errorf("FindFolder() = %+v", got)
	}

	rootFolders, _ := db.ListFolders(ctx, "")
	if len(rootFolders) != 1 || rootFolders[0].ID != "r" {
		t.Errorf("ListFolders(root) = %v, want [r]", rootFolders)
	}

	if err := db.UpdateFolderParent(ctx, "c", ""); err != nil {
		t.Fatalf("UpdateFolderParent() error = %v", err)
	}
	rootFolders, _ = db.ListFolders(ctx, "")
	if len(rootFolders) != 2 {
		t.Errorf("ListFolders(root) after move = %d folders, want 2", len(rootFolders))
	}
}

func TestSQLiteDatabase_InTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		db := newTestDB(t)

		err := db.InTx(ctx, func(tx cas.Store) error {
			_, err := tx.InsertChunk(ctx, "aa", 1, t0)
			return err
		})
		if err != nil {
			t.Fatalf("InTx() error = %v", err)
		}
		if c, _ := db.FindChunk(ctx, "aa"); c == nil {
			t.Error("chunk missing after committed transaction")
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db := newTestDB(t)
		boom := errors.New("boom")

		err := db.InTx(ctx, func(tx cas.Store) error {
			if _, err := tx.InsertChunk(ctx, "aa", 1, t0); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("InTx() error = %v, want %v", err, boom)
		}
		if c, _ := db.FindChunk(ctx, "aa"); c != nil {
			t.Error("chunk present after rolled back transaction")
		}
	})
}

func TestSQLiteDatabase_Stats(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	insertChunk(t, db, "aa", 100, 2)
	insertChunk(t, db, "bb", 50, 1)
	insertChunk(t, db, "cc", 30, 0)
	insertFile(t, db, "f1", "a.txt", "document", 150, t0)
	insertFile(t, db, "f2", "b.png", "image", 100, t0)
	insertFile(t, db, "f3", "c.png", "image", 7, t0)
	if err := db.InsertTrashEntry(ctx, "f3", t0); err != nil {
		t.Fatalf("InsertTrashEntry() error = %v", err)
	}
	if err := db.AddDedupHits(ctx, 3); err != nil {
		t.Fatalf("AddDedupHits() error = %v", err)
	}
	if err := db.AddDedupHits(ctx, 2); err != nil {
		t.Fatalf("AddDedupHits() error = %v", err)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"TotalFiles", stats.TotalFiles, 2},
		{"TotalStorageUsed", stats.TotalStorageUsed, 250},
		{"TotalChunks", stats.TotalChunks, 3},
		{"UniqueChunks", stats.UniqueChunks, 2},
		{"StoredBytes", stats.StoredBytes, 150},
		{"ReferencedBytes", stats.ReferencedBytes, 250},
		{"DuplicatesAvoided", stats.DuplicatesAvoided, 5},
		{"ReclaimableChunks", stats.ReclaimableChunks, 1},
		{"SizeByType[image]", stats.SizeByType["image"], 100},
		{"SizeByType[document]", stats.SizeByType["document"], 150},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestSQLiteDatabase_Settings(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	v, err := db.GetSetting(ctx, "hash_algorithm")
	if err != nil {
		t.Fatalf("GetSetting() error = %v", err)
	}
	if v != "" {
		t.Errorf("GetSetting() = %q, want empty", v)
	}

	for _, want := range []string{"sha256", "blake3"} {
		if err := db.PutSetting(ctx, "hash_algorithm", want); err != nil {
			t.Fatalf("PutSetting() error = %v", err)
		}
		got, _ := db.GetSetting(ctx, "hash_algorithm")
		if got != want {
			t.Errorf("GetSetting() = %q, want %q", got, want)
		}
	}
}

func TestSQLiteDatabase_Operations(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	maxID, err := db.MaxOperationID(ctx)
	if err != nil {
		t.Fatalf("MaxOperationID() error = %v", err)
	}
	if maxID != 0 {
		t.Errorf("MaxOperationID() on empty db = %d, want 0", maxID)
	}

	op1, err := db.CreateOperation(ctx, "upload", "a.txt", t0)
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	if op1.Status != "running" || op1.FinishedAt != nil {
		t.Errorf("new operation = %+v, want running and unfinished", op1)
	}
	op2, _ := db.CreateOperation(ctx, "purge", "f1", t0.Add(time.Minute))

	if err := db.FinishOperation(ctx, op1.ID, "success", t0.Add(time.Second)); err != nil {
		t.Fatalf("FinishOperation() error = %v", err)
	}

	ops, err := db.ListOperations(ctx, 10)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(ops) != 2 || ops[0].ID != op2.ID {
		t.Fatalf("ListOperations() = %v, want newest first", ops)
	}
	if ops[1].Status != "success" || ops[1].FinishedAt == nil {
		t.Errorf("finished operation = %+v", ops[1])
	}

	maxID, _ = db.MaxOperationID(ctx)
	if maxID != op2.ID {
		t.Errorf("MaxOperationID() = %d, want %d", maxID, op2.ID)
	}
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	insertChunk(t, db, "aa", 10, 1)

	dest := filepath.Join(t.TempDir(), "backup.db")
	if err := db.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	restored, err := NewSQLiteDatabase(dest)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer restored.Close()

	if err := restored.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() on backup error = %v", err)
	}
	c, err := restored.FindChunk(ctx, "aa")
	if err != nil {
		t.Fatalf("FindChunk() error = %v", err)
	}
	if c == nil || c.RefCount != 1 {
		t.Errorf("FindChunk() on backup = %v, want refcount 1", c)
	}
}
