package cas_test

import (
	"context"
	"testing"

	"cas-go/internal/testutil"
)

func TestStorageStats(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, withChunkSize(1024))

	if _, err := env.svc.CreateFolder(ctx, "Media", "", "", ""); err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	env.upload(t, "photo.png", testutil.Pattern(2048))
	env.upload(t, "clip.mp4", testutil.Pattern(1024))
	env.upload(t, "main.go", []byte("package main"))
	env.upload(t, "notes.txt", []byte("notes"))
	trashed := env.upload(t, "old.pptx", []byte("slides"))
	if err := env.svc.DeleteFile(ctx, trashed.FileID); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}

	stats, err := env.svc.GetStorageStats(ctx)
	if err != nil {
		t.Fatalf("GetStorageStats() error = %v", err)
	}

	if stats.TotalFiles != 4 || stats.TotalFolders != 1 || stats.TotalVersions != 5 {
		t.Errorf("counts = (files %d, folders %d, versions %d), want (4, 1, 5)", stats.TotalFiles, stats.TotalFolders, stats.TotalVersions)
	}
	if want := int64(2048 + 1024 + 12 + 5); stats.TotalStorageUsed != want {
		t.Errorf("TotalStorageUsed = %d, want %d", stats.TotalStorageUsed, want)
	}

	// clip.mp4 repeats the first chunk of photo.png
	if stats.UniqueChunks != 5 || stats.TotalChunks != 6 || stats.DuplicatesAvoided != 1 {
		t.Errorf("chunks = (unique %d, total %d, avoided %d), want (5, 6, 1)", stats.UniqueChunks, stats.TotalChunks, stats.DuplicatesAvoided)
	}
	if stats.StorageSaved != 1024 {
		t.Errorf("StorageSaved = %d, want 1024", stats.StorageSaved)
	}

	want := map[string]int64{
		"documents":     5,
		"images":        2048,
		"videos":        1024,
		"presentations": 0,
		"code":          12,
		"other":         0,
	}
	for category, size := range want {
		if got := stats.Breakdown[category]; got != size {
			t.Errorf("Breakdown[%s] = %d, want %d", category, got, size)
		}
	}
	if len(stats.Breakdown) != len(want) {
		t.Errorf("Breakdown has %d categories, want %d", len(stats.Breakdown), len(want))
	}
}
