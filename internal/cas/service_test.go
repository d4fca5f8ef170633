package cas_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"cas-go/internal/cas"
	"cas-go/internal/chunk"
	"cas-go/internal/testutil"
)

func TestService_DedupLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	data := testutil.Pattern(600000)

	a := env.upload(t, "a.txt", data)
	if a.ChunkCount != 3 || a.NewChunks != 3 || a.DuplicateChunks != 0 {
		t.Fatalf("Upload(a.txt) = %+v, want 3 chunks all new", a)
	}

	b := env.upload(t, "b.txt", data)
	if b.ChunkCount != 3 || b.NewChunks != 0 || b.DuplicateChunks != 3 {
		t.Fatalf("Upload(b.txt) = %+v, want 3 chunks all duplicates", b)
	}

	digests := env.currentVersion(t, a.FileID).Chunks
	if len(digests) != 3 {
		t.Fatalf("version has %d chunks, want 3", len(digests))
	}
	for _, d := range digests {
		if got := env.refCount(t, d); got != 2 {
			t.Errorf("refCount(%s) = %d, want 2", d, got)
		}
	}
	if got := env.mem.ChunkCount(); got != 3 {
		t.Errorf("vault holds %d chunks, want 3", got)
	}

	stats, err := env.svc.GetStorageStats(ctx)
	if err != nil {
		t.Fatalf("GetStorageStats() error = %v", err)
	}
	if stats.UniqueChunks != 3 || stats.TotalChunks != 6 || stats.DuplicatesAvoided != 3 {
		t.Errorf("stats chunks = (unique %d, total %d, avoided %d), want (3, 6, 3)", stats.UniqueChunks, stats.TotalChunks, stats.DuplicatesAvoided)
	}
	if stats.StoredBytes != 600000 || stats.StorageSaved != 600000 {
		t.Errorf("stats bytes = (stored %d, saved %d), want (600000, 600000)", stats.StoredBytes, stats.StorageSaved)
	}

	// Trashing leaves references alone
	if err := env.svc.DeleteFile(ctx, a.FileID); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	for _, d := range digests {
		if got := env.refCount(t, d); got != 2 {
			t.Errorf("refCount(%s) after trash = %d, want 2", d, got)
		}
	}

	res, err := env.svc.PurgeFile(ctx, a.FileID)
	if err != nil {
		t.Fatalf("PurgeFile(a) error = %v", err)
	}
	if res.ChunkRefs != 3 || res.Reclaimed != 0 {
		t.Errorf("PurgeFile(a) = %+v, want 3 refs released and nothing reclaimed", res)
	}
	for _, d := range digests {
		if got := env.refCount(t, d); got != 1 {
			t.Errorf("refCount(%s) after first purge = %d, want 1", d, got)
		}
	}
	if got := env.read(t, b.FileID, ""); !bytes.Equal(got, data) {
		t.Error("b.txt content changed after purging a.txt")
	}

	res = env.trashAndPurge(t, b.FileID)
	if res.Reclaimed != 3 || res.ReclaimedBytes != 600000 {
		t.Errorf("PurgeFile(b) = %+v, want 3 chunks and 600000 bytes reclaimed", res)
	}
	for _, d := range digests {
		if got := env.refCount(t, d); got != -1 {
			t.Errorf("chunk %s still indexed with %d refs", d, got)
		}
		if _, err := env.svc.GetChunk(ctx, d); !errors.Is(err, cas.ErrNotFound) {
			t.Errorf("GetChunk() error = %v, want ErrNotFound", err)
		}
	}
	if got := env.mem.ChunkCount(); got != 0 {
		t.Errorf("vault holds %d chunks after purge, want 0", got)
	}
}

func TestService_RoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		chunkSize  int
		wantChunks int
	}{
		{name: "smaller than a chunk", size: 100, chunkSize: 1024, wantChunks: 1},
		{name: "exact multiple", size: 4096, chunkSize: 1024, wantChunks: 4},
		{name: "trailing partial chunk", size: 4097, chunkSize: 1024, wantChunks: 5},
		{name: "default chunk size", size: 600000, wantChunks: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, withChunkSize(tt.chunkSize))
			data := testutil.Pattern(tt.size)

			res := env.upload(t, "file.bin", data)
			if res.ChunkCount != tt.wantChunks {
				t.Errorf("ChunkCount = %d, want %d", res.ChunkCount, tt.wantChunks)
			}
			if got := env.read(t, res.FileID, ""); !bytes.Equal(got, data) {
				t.Errorf("ReadFile() returned %d bytes differing from the %d uploaded", len(got), len(data))
			}

			f, err := env.svc.GetFile(context.Background(), res.FileID)
			if err != nil {
				t.Fatalf("GetFile() error = %v", err)
			}
			if f.Size != int64(tt.size) || f.Digest != testutil.SHA256Hex(data) {
				t.Errorf("file = (size %d, digest %s), want (%d, %s)", f.Size, f.Digest, tt.size, testutil.SHA256Hex(data))
			}
			if f.Type != "other" {
				t.Errorf("Type = %q, want %q", f.Type, "other")
			}
		})
	}
}

func TestService_ZeroByteFile(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.Upload(context.Background(), cas.UploadRequest{Name: "empty.txt"})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if res.ChunkCount != 0 || res.Size != 0 {
		t.Errorf("Upload() = %+v, want zero chunks and size", res)
	}

	v := env.currentVersion(t, res.FileID)
	if len(v.Chunks) != 0 {
		t.Errorf("version has %d chunks, want 0", len(v.Chunks))
	}
	if v.Digest != testutil.SHA256Hex(nil) {
		t.Errorf("version digest = %s, want digest of empty input", v.Digest)
	}
	if got := env.read(t, res.FileID, ""); len(got) != 0 {
		t.Errorf("ReadFile() returned %d bytes, want 0", len(got))
	}
	if got := env.mem.ChunkCount(); got != 0 {
		t.Errorf("vault holds %d chunks, want 0", got)
	}

	// Purging an empty file releases nothing
	purge := env.trashAndPurge(t, res.FileID)
	if purge.ChunkRefs != 0 || purge.Versions != 1 {
		t.Errorf("PurgeFile() = %+v, want 1 version and no chunk refs", purge)
	}
}

func TestService_UploadValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  cas.UploadRequest
	}{
		{name: "empty name", req: cas.UploadRequest{Name: "  ", Content: bytes.NewReader([]byte("x")), Size: 1}},
		{name: "negative size", req: cas.UploadRequest{Name: "a.txt", Size: -1}},
		{name: "missing content", req: cas.UploadRequest{Name: "a.txt", Size: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.StartUpload(context.Background(), tt.req)
			if !errors.Is(err, cas.ErrValidation) {
				t.Fatalf("StartUpload() error = %v, want ErrValidation", err)
			}
			var opErr *cas.OpError
			if !errors.As(err, &opErr) || opErr.Op != "upload" {
				t.Errorf("StartUpload() error = %#v, want *OpError for upload", err)
			}
		})
	}

	t.Run("content shorter than size", func(t *testing.T) {
		_, err := env.svc.Upload(context.Background(), cas.UploadRequest{
			Name:    "short.txt",
			Content: bytes.NewReader([]byte("abc")),
			Size:    10,
		})
		if err == nil {
			t.Fatal("Upload() expected error for short content")
		}
		files, err := env.svc.ListFiles(context.Background(), cas.FileQuery{})
		if err != nil {
			t.Fatalf("ListFiles() error = %v", err)
		}
		if len(files) != 0 {
			t.Errorf("ListFiles() = %d files, want 0 after failed upload", len(files))
		}
	})
}

func TestService_Versions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, withChunkSize(4))

	v1Data := []byte("hello")
	v2Data := []byte("hello world")
	first := env.upload(t, "notes.md", v1Data)

	env.clock.Advance(time.Minute)
	second, err := env.svc.UploadVersion(ctx, first.FileID, bytes.NewReader(v2Data), int64(len(v2Data)))
	if err != nil {
		t.Fatalf("UploadVersion() error = %v", err)
	}
	if second.FileID != first.FileID {
		t.Errorf("UploadVersion() FileID = %s, want %s", second.FileID, first.FileID)
	}
	if got := env.read(t, first.FileID, ""); string(got) != "hello world" {
		t.Errorf("current content = %q, want %q", got, "hello world")
	}
	if got := env.read(t, first.FileID, first.VersionID); string(got) != "hello" {
		t.Errorf("first version content = %q, want %q", got, "hello")
	}

	restored, err := env.svc.RestoreVersion(ctx, first.FileID, first.VersionID)
	if err != nil {
		t.Fatalf("RestoreVersion() error = %v", err)
	}
	if restored.Seq != 3 || restored.Note != "Restored from Initial upload" {
		t.Errorf("RestoreVersion() = (seq %d, note %q), want (3, %q)", restored.Seq, restored.Note, "Restored from Initial upload")
	}

	versions, err := env.svc.ListVersions(ctx, first.FileID)
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	wantNotes := []string{cas.NoteInitialUpload, cas.NoteNewVersion, "Restored from Initial upload"}
	if len(versions) != len(wantNotes) {
		t.Fatalf("ListVersions() = %d versions, want %d", len(versions), len(wantNotes))
	}
	for i, v := range versions {
		if v.Seq != int64(i+1) || v.Note != wantNotes[i] {
			t.Errorf("versions[%d] = (seq %d, note %q), want (%d, %q)", i, v.Seq, v.Note, i+1, wantNotes[i])
		}
	}

	f, err := env.svc.GetFile(ctx, first.FileID)
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if f.Size != 5 || f.Digest != testutil.SHA256Hex(v1Data) {
		t.Errorf("file after restore = (size %d, digest %s), want content of first version", f.Size, f.Digest)
	}
	if got := env.read(t, first.FileID, ""); string(got) != "hello" {
		t.Errorf("current content after restore = %q, want %q", got, "hello")
	}

	// "hell" is referenced by all three versions
	if got := env.refCount(t, testutil.SHA256Hex([]byte("hell"))); got != 3 {
		t.Errorf("refCount(hell) = %d, want 3", got)
	}

	t.Run("unknown version", func(t *testing.T) {
		_, err := env.svc.RestoreVersion(ctx, first.FileID, "missing")
		if !errors.Is(err, cas.ErrNotFound) {
			t.Errorf("RestoreVersion() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("trashed file", func(t *testing.T) {
		if err := env.svc.DeleteFile(ctx, first.FileID); err != nil {
			t.Fatalf("DeleteFile() error = %v", err)
		}
		defer env.svc.RestoreFromTrash(ctx, first.FileID)

		_, err := env.svc.RestoreVersion(ctx, first.FileID, first.VersionID)
		if !errors.Is(err, cas.ErrNotFound) {
			t.Errorf("RestoreVersion() on trashed file error = %v, want ErrNotFound", err)
		}
		_, err = env.svc.UploadVersion(ctx, first.FileID, bytes.NewReader(v1Data), 5)
		if !errors.Is(err, cas.ErrNotFound) {
			t.Errorf("UploadVersion() on trashed file error = %v, want ErrNotFound", err)
		}
	})
}

func TestService_VerifySettings(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)
	newSvc := func(algorithm string) *cas.Service {
		t.Helper()
		svc, err := cas.NewService(db, testutil.NewTestVault(), cas.Options{HashAlgorithm: algorithm}, cas.NewNopLogger(), cas.NopMetrics{}, testutil.FixedClock(), testutil.NewStubIDGenerator())
		if err != nil {
			t.Fatalf("NewService() error = %v", err)
		}
		return svc
	}

	if err := newSvc(chunk.HashSHA256).VerifySettings(ctx); err != nil {
		t.Fatalf("VerifySettings() first run error = %v", err)
	}
	if err := newSvc(chunk.HashSHA256).VerifySettings(ctx); err != nil {
		t.Errorf("VerifySettings() same algorithm error = %v", err)
	}
	if err := newSvc(chunk.HashBLAKE3).VerifySettings(ctx); !errors.Is(err, cas.ErrValidation) {
		t.Errorf("VerifySettings() different algorithm error = %v, want ErrValidation", err)
	}
}

func TestNewService_InvalidOptions(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	tests := []struct {
		name string
		opts cas.Options
	}{
		{name: "unknown hash", opts: cas.Options{HashAlgorithm: "md5"}},
		{name: "unknown gc mode", opts: cas.Options{GCMode: "never"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cas.NewService(db, testutil.NewTestVault(), tt.opts, cas.NewNopLogger(), cas.NopMetrics{}, testutil.FixedClock(), testutil.NewStubIDGenerator())
			if err == nil {
				t.Error("NewService() expected error")
			}
		})
	}
}
