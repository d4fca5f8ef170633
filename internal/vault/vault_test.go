package vault

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"cas-go/internal/cas"
)

// newVaults returns every backend that can run without external services.
func newVaults(t *testing.T) map[string]cas.Vault {
	t.Helper()

	fsVault, err := NewFileSystemVault("test-fs", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	badgerVault, err := NewBadgerVault("test-badger", "", true)
	if err != nil {
		t.Fatalf("NewBadgerVault() error = %v", err)
	}
	t.Cleanup(func() { badgerVault.Close() })

	return map[string]cas.Vault{
		"memory":     NewMemoryVault("test-memory"),
		"filesystem": fsVault,
		"badger":     badgerVault,
	}
}

func TestVault_PutAndGetChunk(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		digest  string
		content string
	}{
		{name: "store and retrieve chunk", digest: "abc123", content: "hello world"},
		{name: "store empty chunk", digest: "empty", content: ""},
		{name: "store large chunk", digest: "large", content: strings.Repeat("x", 300000)},
	}

	for backend, v := range newVaults(t) {
		for _, tt := range tests {
			t.Run(backend+"/"+tt.name, func(t *testing.T) {
				if err := v.PutChunk(ctx, tt.digest, strings.NewReader(tt.content), int64(len(tt.content))); err != nil {
					t.Fatalf("PutChunk() error = %v", err)
				}

				var buf bytes.Buffer
				if err := v.GetChunk(ctx, tt.digest, &buf); err != nil {
					t.Fatalf("GetChunk() error = %v", err)
				}
				if got := buf.String(); got != tt.content {
					t.Errorf("GetChunk() returned %d bytes, want %d", len(got), len(tt.content))
				}
			})
		}
	}
}

func TestVault_PutChunkIdempotent(t *testing.T) {
	ctx := context.Background()

	for backend, v := range newVaults(t) {
		t.Run(backend, func(t *testing.T) {
			for i := 0; i < 2; i++ {
				if err := v.PutChunk(ctx, "dup", strings.NewReader("same bytes"), 10); err != nil {
					t.Fatalf("PutChunk() call %d error = %v", i+1, err)
				}
			}

			var buf bytes.Buffer
			if err := v.GetChunk(ctx, "dup", &buf); err != nil {
				t.Fatalf("GetChunk() error = %v", err)
			}
			if buf.String() != "same bytes" {
				t.Errorf("GetChunk() = %q, want %q", buf.String(), "same bytes")
			}
		})
	}
}

func TestVault_GetChunkNotFound(t *testing.T) {
	for backend, v := range newVaults(t) {
		t.Run(backend, func(t *testing.T) {
			err := v.GetChunk(context.Background(), "missing", &bytes.Buffer{})
			if !errors.Is(err, cas.ErrNotFound) {
				t.Errorf("GetChunk() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestVault_PutChunkSizeMismatch(t *testing.T) {
	for backend, v := range newVaults(t) {
		t.Run(backend, func(t *testing.T) {
			err := v.PutChunk(context.Background(), "short", strings.NewReader("abc"), 10)
			if !errors.Is(err, cas.ErrValidation) {
				t.Fatalf("PutChunk() error = %v, want ErrValidation", err)
			}
			if err := v.GetChunk(context.Background(), "short", &bytes.Buffer{}); !errors.Is(err, cas.ErrNotFound) {
				t.Errorf("GetChunk() after failed put error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestVault_DeleteChunk(t *testing.T) {
	ctx := context.Background()

	for backend, v := range newVaults(t) {
		t.Run(backend, func(t *testing.T) {
			if err := v.PutChunk(ctx, "gone", strings.NewReader("data"), 4); err != nil {
				t.Fatalf("PutChunk() error = %v", err)
			}
			if err := v.DeleteChunk(ctx, "gone"); err != nil {
				t.Fatalf("DeleteChunk() error = %v", err)
			}
			if err := v.GetChunk(ctx, "gone", &bytes.Buffer{}); !errors.Is(err, cas.ErrNotFound) {
				t.Errorf("GetChunk() after delete error = %v, want ErrNotFound", err)
			}

			// Deleting a missing chunk is not an error
			if err := v.DeleteChunk(ctx, "gone"); err != nil {
				t.Errorf("DeleteChunk() of missing chunk error = %v", err)
			}
		})
	}
}

func TestVault_Metadata(t *testing.T) {
	ctx := context.Background()

	for backend, v := range newVaults(t) {
		t.Run(backend, func(t *testing.T) {
			version, err := v.GetMetadataVersion(ctx, "tenant-1", "db")
			if err != nil {
				t.Fatalf("GetMetadataVersion() error = %v", err)
			}
			if version != 0 {
				t.Errorf("GetMetadataVersion() before put = %d, want 0", version)
			}
			if err := v.GetMetadata(ctx, "tenant-1", "db", &bytes.Buffer{}); !errors.Is(err, cas.ErrNotFound) {
				t.Errorf("GetMetadata() before put error = %v, want ErrNotFound", err)
			}

			if err := v.PutMetadata(ctx, "tenant-1", "db", strings.NewReader("first"), 5, 3); err != nil {
				t.Fatalf("PutMetadata() error = %v", err)
			}
			if err := v.PutMetadata(ctx, "tenant-1", "db", strings.NewReader("second"), 6, 7); err != nil {
				t.Fatalf("PutMetadata() overwrite error = %v", err)
			}

			var buf bytes.Buffer
			if err := v.GetMetadata(ctx, "tenant-1", "db", &buf); err != nil {
				t.Fatalf("GetMetadata() error = %v", err)
			}
			if buf.String() != "second" {
				t.Errorf("GetMetadata() = %q, want %q", buf.String(), "second")
			}

			version, err = v.GetMetadataVersion(ctx, "tenant-1", "db")
			if err != nil {
				t.Fatalf("GetMetadataVersion() error = %v", err)
			}
			if version != 7 {
				t.Errorf("GetMetadataVersion() = %d, want 7", version)
			}

			// Tenants are isolated
			if err := v.GetMetadata(ctx, "tenant-2", "db", &bytes.Buffer{}); !errors.Is(err, cas.ErrNotFound) {
				t.Errorf("GetMetadata() for other tenant error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestVault_ValidateSetup(t *testing.T) {
	for backend, v := range newVaults(t) {
		t.Run(backend, func(t *testing.T) {
			if err := v.ValidateSetup(context.Background()); err != nil {
				t.Errorf("ValidateSetup() error = %v", err)
			}
		})
	}
}

func TestVault_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for backend, v := range newVaults(t) {
		t.Run(backend, func(t *testing.T) {
			err := v.PutChunk(ctx, "abc", strings.NewReader("x"), 1)
			if !errors.Is(err, context.Canceled) {
				t.Errorf("PutChunk() error = %v, want context.Canceled", err)
			}
		})
	}
}

func TestMemoryVault_ChunkCount(t *testing.T) {
	ctx := context.Background()
	v := NewMemoryVault("test")

	for _, d := range []string{"a", "b", "a"} {
		if err := v.PutChunk(ctx, d, strings.NewReader(d), 1); err != nil {
			t.Fatalf("PutChunk() error = %v", err)
		}
	}
	if got := v.ChunkCount(); got != 2 {
		t.Errorf("ChunkCount() = %d, want 2", got)
	}
	if !v.HasChunk("a") || v.HasChunk("c") {
		t.Errorf("HasChunk() = (%v, %v), want (true, false)", v.HasChunk("a"), v.HasChunk("c"))
	}
}

func TestBadgerVault_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v, err := NewBadgerVault("test", dir, false)
	if err != nil {
		t.Fatalf("NewBadgerVault() error = %v", err)
	}
	if err := v.PutChunk(ctx, "abc", strings.NewReader("persisted"), 9); err != nil {
		t.Fatalf("PutChunk() error = %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewBadgerVault("test", dir, false)
	if err != nil {
		t.Fatalf("NewBadgerVault() reopen error = %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	var buf bytes.Buffer
	if err := reopened.GetChunk(ctx, "abc", &buf); err != nil {
		t.Fatalf("GetChunk() error = %v", err)
	}
	if buf.String() != "persisted" {
		t.Errorf("GetChunk() = %q, want %q", buf.String(), "persisted")
	}
}

func TestBadgerVault_CancelledContext(t *testing.T) {
	v, err := NewBadgerVault("test", "", true)
	if err != nil {
		t.Fatalf("NewBadgerVault() error = %v", err)
	}
	t.Cleanup(func() { v.Close() })

	ctx := context.Background()
	if err := v.PutMetadata(ctx, "tenant", "db", strings.NewReader("snapshot"), 8, 3); err != nil {
		t.Fatalf("PutMetadata() error = %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	tests := []struct {
		name string
		call func() error
	}{
		{"GetMetadata", func() error {
			var buf bytes.Buffer
			return v.GetMetadata(cancelled, "tenant", "db", &buf)
		}},
		{"GetMetadataVersion", func() error {
			_, err := v.GetMetadataVersion(cancelled, "tenant", "db")
			return err
		}},
		{"GetChunk", func() error {
			var buf bytes.Buffer
			return v.GetChunk(cancelled, "abc", &buf)
		}},
		{"DeleteChunk", func() error { return v.DeleteChunk(cancelled, "abc") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, context.Canceled) {
				t.Errorf("%s() error = %v, want context.Canceled", tt.name, err)
			}
		})
	}
}

func TestNewBadgerVault_RequiresDir(t *testing.T) {
	if _, err := NewBadgerVault("test", "", false); err == nil {
		t.Error("NewBadgerVault() expected error without dir")
	}
}
