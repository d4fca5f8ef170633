package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cas-go/internal/cas"
	"cas-go/internal/config"
	"cas-go/internal/database"
	"cas-go/internal/vault"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()

	cfg := config.NewConfig("tenant-test", base)
	cfg.Vaults = []config.VaultConfig{{Type: "filesystem", Name: "local", FSVaultRoot: filepath.Join(base, "vault")}}
	cfg.Database = config.DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(base, "db")}
	cfg.Staging = config.StagingConfig{Type: "memory", MaxSize: 1 << 20}
	cfg.Storage.ChunkSize = 1024
	cfg.Storage.UploadWorkers = 2
	cfg.Metrics.TextfilePath = filepath.Join(base, "metrics", "cas.prom")
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, operation string) *CasApp {
	t.Helper()
	a, err := NewCasApp(context.Background(), cfg, operation)
	if err != nil {
		t.Fatalf("NewCasApp() error = %v", err)
	}
	return a
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestNewCasApp_NoVaults(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Vaults = nil

	if _, err := NewCasApp(context.Background(), cfg, "Upload"); err == nil {
		t.Fatal("NewCasApp() expected error with no vaults")
	}
}

func TestCasApp_UploadFileAndRead(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	src := filepath.Join(t.TempDir(), "notes.txt")
	content := strings.Repeat("content-addressed ", 200)
	writeFile(t, src, content)

	a := newTestApp(t, cfg, "Upload")
	defer a.Close()

	var observed []string
	uploaded, err := a.Upload(ctx, src, UploadOptions{
		Observe: func(name string, u *cas.Upload) {
			observed = append(observed, name)
			<-u.Done()
		},
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(uploaded) != 1 {
		t.Fatalf("Upload() uploaded %d files, want 1", len(uploaded))
	}
	if len(observed) != 1 || observed[0] != "notes.txt" {
		t.Errorf("observed = %v, want [notes.txt]", observed)
	}

	res := uploaded[0].Result
	if res.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", res.Size, len(content))
	}

	var buf bytes.Buffer
	if _, err := a.ReadFile(ctx, res.FileID, "", &buf); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if buf.String() != content {
		t.Error("ReadFile() content does not match upload")
	}

	dest := filepath.Join(t.TempDir(), "restored.txt")
	if _, err := a.ReadFileTo(ctx, res.FileID, "", dest); err != nil {
		t.Fatalf("ReadFileTo() error = %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != content {
		t.Error("ReadFileTo() content does not match upload")
	}
}

func TestCasApp_UploadDirectory(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	cfg.Filesystem.Ignore = []string{"*.log"}

	dir := filepath.Join(t.TempDir(), "project")
	writeFile(t, filepath.Join(dir, "readme.md"), "hello")
	writeFile(t, filepath.Join(dir, "debug.log"), "ignored by config")
	writeFile(t, filepath.Join(dir, "secret.key"), "ignored by file")
	writeFile(t, filepath.Join(dir, ".casignore"), "*.key\n")
	writeFile(t, filepath.Join(dir, "src", "main.go"), "package main")
	writeFile(t, filepath.Join(dir, "src", "lib", "util.go"), "package lib")

	tests := []struct {
		name      string
		recursive bool
		wantFiles int
	}{
		{name: "top level only", recursive: false, wantFiles: 1},
		{name: "recursive", recursive: true, wantFiles: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t, newTestConfigLike(t, cfg), "Upload")
			defer a.Close()

			uploaded, err := a.Upload(ctx, dir, UploadOptions{Recursive: tt.recursive})
			if err != nil {
				t.Fatalf("Upload() error = %v", err)
			}
			if len(uploaded) != tt.wantFiles {
				t.Fatalf("Upload() uploaded %d files, want %d", len(uploaded), tt.wantFiles)
			}

			root, _, err := a.ListFolder(ctx, "")
			if err != nil {
				t.Fatalf("ListFolder() error = %v", err)
			}
			if len(root.Folders) != 1 || root.Folders[0].Name != "project" {
				t.Fatalf("root folders = %v, want [project]", root.Folders)
			}

			project, _, err := a.ListFolder(ctx, root.Folders[0].ID)
			if err != nil {
				t.Fatalf("ListFolder() error = %v", err)
			}
			if len(project.Files) != 1 || project.Files[0].Name != "readme.md" {
				t.Errorf("project files = %v, want [readme.md]", project.Files)
			}
			if !tt.recursive {
				if len(project.Folders) != 0 {
					t.Errorf("project folders = %d, want 0", len(project.Folders))
				}
				return
			}

			if len(project.Folders) != 1 || project.Folders[0].Name != "src" {
				t.Fatalf("project folders = %v, want [src]", project.Folders)
			}
			src, _, err := a.ListFolder(ctx, project.Folders[0].ID)
			if err != nil {
				t.Fatalf("ListFolder() error = %v", err)
			}
			if len(src.Files) != 1 || len(src.Folders) != 1 {
				t.Fatalf("src has %d files and %d folders, want 1 and 1", len(src.Files), len(src.Folders))
			}
			_, crumbs, err := a.ListFolder(ctx, src.Folders[0].ID)
			if err != nil {
				t.Fatalf("ListFolder() error = %v", err)
			}
			var names []string
			for _, c := range crumbs {
				names = append(names, c.Name)
			}
			if got, want := strings.Join(names, "/"), cas.RootFolderName+"/project/src/lib"; got != want {
				t.Errorf("breadcrumbs = %q, want %q", got, want)
			}
		})
	}
}

// newTestConfigLike returns a fresh store configured like cfg.
func newTestConfigLike(t *testing.T, cfg *config.Config) *config.Config {
	t.Helper()
	fresh := newTestConfig(t)
	fresh.Filesystem = cfg.Filesystem
	return fresh
}

func TestCasApp_UploadStream(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t), "Upload")
	defer a.Close()

	res, err := a.UploadStream(ctx, strings.NewReader("from stdin"), "stdin.txt", UploadOptions{})
	if err != nil {
		t.Fatalf("UploadStream() error = %v", err)
	}

	f, err := a.GetFile(ctx, res.FileID)
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if f.Name != "stdin.txt" || f.Size != int64(len("from stdin")) {
		t.Errorf("file = %s (%d bytes), want stdin.txt (10 bytes)", f.Name, f.Size)
	}
	if a.staging.Size() != 0 {
		t.Errorf("staging Size() = %d after upload, want 0", a.staging.Size())
	}
}

func TestCasApp_UpdateAndRestoreVersion(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t), "Upload")
	defer a.Close()

	path := filepath.Join(t.TempDir(), "doc.txt")
	writeFile(t, path, "first")
	uploaded, err := a.Upload(ctx, path, UploadOptions{})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	fileID := uploaded[0].Result.FileID

	writeFile(t, path, "second draft")
	if _, err := a.UpdateFile(ctx, fileID, path, nil); err != nil {
		t.Fatalf("UpdateFile() error = %v", err)
	}

	versions, err := a.ListVersions(ctx, fileID)
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("ListVersions() = %d versions, want 2", len(versions))
	}

	var first string
	for _, v := range versions {
		if v.Seq == 1 {
			first = v.ID
		}
	}
	if _, err := a.RestoreVersion(ctx, fileID, first); err != nil {
		t.Fatalf("RestoreVersion() error = %v", err)
	}

	var buf bytes.Buffer
	if _, err := a.ReadFile(ctx, fileID, "", &buf); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if buf.String() != "first" {
		t.Errorf("current content = %q, want %q", buf.String(), "first")
	}
}

func TestCasApp_TrashLifecycle(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, newTestConfig(t), "Upload")
	defer a.Close()

	res, err := a.UploadStream(ctx, strings.NewReader("to be purged"), "tmp.txt", UploadOptions{})
	if err != nil {
		t.Fatalf("UploadStream() error = %v", err)
	}

	if err := a.DeleteFile(ctx, res.FileID); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	trash, err := a.ListTrash(ctx)
	if err != nil {
		t.Fatalf("ListTrash() error = %v", err)
	}
	if len(trash) != 1 {
		t.Fatalf("ListTrash() = %d entries, want 1", len(trash))
	}

	purged, err := a.EmptyTrash(ctx)
	if err != nil {
		t.Fatalf("EmptyTrash() error = %v", err)
	}
	if purged.Files != 1 || purged.Reclaimed != 1 {
		t.Errorf("EmptyTrash() = %+v, want 1 file and 1 reclaimed chunk", purged)
	}

	if _, err := a.GetFile(ctx, res.FileID); !errors.Is(err, cas.ErrNotFound) {
		t.Errorf("GetFile() after purge error = %v, want ErrNotFound", err)
	}
}

func TestCasApp_FailedOperationIsRecorded(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)

	a := newTestApp(t, cfg, "DeleteFile")
	if err := a.DeleteFile(ctx, "missing"); !errors.Is(err, cas.ErrNotFound) {
		t.Fatalf("DeleteFile() error = %v, want ErrNotFound", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	b := newTestApp(t, cfg, "GetHistory")
	defer b.Close()
	ops, err := b.GetHistory(ctx, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("GetHistory() = %d operations, want 1", len(ops))
	}
	if ops[0].Operation != "DeleteFile" || ops[0].Status != StatusError || ops[0].Parameters != "missing" {
		t.Errorf("operation = %+v, want failed DeleteFile of missing", ops[0])
	}
	if ops[0].FinishedAt == nil {
		t.Error("operation FinishedAt not set")
	}
}

func TestCasApp_Close_UploadsSnapshot(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)

	a := newTestApp(t, cfg, "CreateFolder")
	if _, err := a.CreateFolder(ctx, "Photos", "", ""); err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	opID := a.op.ID
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	v, err := vault.NewFileSystemVault("check", cfg.Vaults[0].FSVaultRoot)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	version, err := v.GetMetadataVersion(ctx, cfg.TenantID, metadataDB)
	if err != nil {
		t.Fatalf("GetMetadataVersion() error = %v", err)
	}
	if version != opID {
		t.Errorf("snapshot version = %d, want %d", version, opID)
	}

	// The snapshot is a usable database holding the folder.
	var buf bytes.Buffer
	if err := v.GetMetadata(ctx, cfg.TenantID, metadataDB, &buf); err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	snapshotPath := filepath.Join(t.TempDir(), "snapshot.db")
	if err := os.WriteFile(snapshotPath, buf.Bytes(), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	db, err := database.NewSQLiteDatabase(snapshotPath)
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	defer db.Close()
	folders, err := db.ListFolders(ctx, "")
	if err != nil {
		t.Fatalf("ListFolders() error = %v", err)
	}
	if len(folders) != 1 || folders[0].Name != "Photos" {
		t.Errorf("snapshot folders = %v, want [Photos]", folders)
	}

	if _, err := os.Stat(cfg.Metrics.TextfilePath); err != nil {
		t.Errorf("metrics textfile not written: %v", err)
	}
}

func TestCasApp_Close_ReadOnlySkipsSnapshot(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)

	a := newTestApp(t, cfg, "ListTrash")
	if _, err := a.ListTrash(ctx); err != nil {
		t.Fatalf("ListTrash() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	v, err := vault.NewFileSystemVault("check", cfg.Vaults[0].FSVaultRoot)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	version, err := v.GetMetadataVersion(ctx, cfg.TenantID, metadataDB)
	if err != nil {
		t.Fatalf("GetMetadataVersion() error = %v", err)
	}
	if version != 0 {
		t.Errorf("snapshot version = %d after read-only command, want 0", version)
	}
}

func TestNewCasApp_LocalBehindRemote(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)

	a := newTestApp(t, cfg, "CreateFolder")
	if _, err := a.CreateFolder(ctx, "Docs", "", ""); err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Losing the local database leaves it behind the vault snapshot.
	if err := os.RemoveAll(cfg.Database.DataDir); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}

	_, err := NewCasApp(ctx, cfg, "ListTrash")
	if err == nil || !strings.Contains(err.Error(), "local database is behind remote") {
		t.Fatalf("NewCasApp() error = %v, want local database is behind remote", err)
	}
}

func TestNewCasApp_HashMismatch(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)

	a := newTestApp(t, cfg, "ListTrash")
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	cfg.Storage.Hash = "blake3"
	if _, err := NewCasApp(ctx, cfg, "ListTrash"); !errors.Is(err, cas.ErrValidation) {
		t.Fatalf("NewCasApp() error = %v, want ErrValidation", err)
	}
}
