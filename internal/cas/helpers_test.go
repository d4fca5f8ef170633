package cas_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"cas-go/internal/cas"
	"cas-go/internal/model"
	"cas-go/internal/testutil"
	"cas-go/internal/vault"
)

// fastRetry keeps retry tests quick.
var fastRetry = cas.RetryPolicy{
	MaxAttempts:    4,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     5 * time.Millisecond,
}

type testEnv struct {
	svc   *cas.Service
	db    cas.Database
	mem   *vault.MemoryVault
	clock *testutil.StubClock
}

type envSetup struct {
	opts  cas.Options
	vault cas.Vault
	db    cas.Database
}

type envOption func(*envSetup)

func withChunkSize(n int) envOption {
	return func(s *envSetup) { s.opts.ChunkSize = n }
}

func withWorkers(n int) envOption {
	return func(s *envSetup) { s.opts.Workers = n }
}

func withGCMode(mode string) envOption {
	return func(s *envSetup) { s.opts.GCMode = mode }
}

// withVault wraps the memory vault, for example to inject failures.
func withVault(wrap func(cas.Vault) cas.Vault) envOption {
	return func(s *envSetup) { s.vault = wrap(s.vault) }
}

// withDatabase wraps the test database the service runs on. env.db stays
// the unwrapped database.
func withDatabase(wrap func(cas.Database) cas.Database) envOption {
	return func(s *envSetup) { s.db = wrap(s.db) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	mem := testutil.NewTestVault()
	db := testutil.NewTestDatabase(t)
	setup := envSetup{opts: cas.Options{Retry: fastRetry}, vault: mem, db: db}
	for _, opt := range opts {
		opt(&setup)
	}

	clock := testutil.FixedClock()
	svc, err := cas.NewService(setup.db, setup.vault, setup.opts, cas.NewNopLogger(), cas.NopMetrics{}, clock, testutil.NewStubIDGenerator())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return &testEnv{svc: svc, db: db, mem: mem, clock: clock}
}

func (e *testEnv) upload(t *testing.T, name string, data []byte) cas.UploadResult {
	t.Helper()
	res, err := e.svc.Upload(context.Background(), cas.UploadRequest{
		Content: bytes.NewReader(data),
		Size:    int64(len(data)),
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Upload(%s) error = %v", name, err)
	}
	return res
}

func (e *testEnv) read(t *testing.T, fileID, versionID string) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := e.svc.ReadFile(context.Background(), fileID, versionID, &buf); err != nil {
		t.Fatalf("ReadFile(%s) error = %v", fileID, err)
	}
	return buf.Bytes()
}

func (e *testEnv) currentVersion(t *testing.T, fileID string) *model.Version {
	t.Helper()
	versions, err := e.svc.ListVersions(context.Background(), fileID)
	if err != nil {
		t.Fatalf("ListVersions(%s) error = %v", fileID, err)
	}
	return versions[len(versions)-1]
}

// refCount returns a chunk's reference count, or -1 when it is not indexed.
func (e *testEnv) refCount(t *testing.T, digest string) int64 {
	t.Helper()
	c, err := e.db.FindChunk(context.Background(), digest)
	if err != nil {
		t.Fatalf("FindChunk() error = %v", err)
	}
	if c == nil {
		return -1
	}
	return c.RefCount
}

func (e *testEnv) trashAndPurge(t *testing.T, fileID string) cas.PurgeResult {
	t.Helper()
	ctx := context.Background()
	if err := e.svc.DeleteFile(ctx, fileID); err != nil {
		t.Fatalf("DeleteFile(%s) error = %v", fileID, err)
	}
	res, err := e.svc.PurgeFile(ctx, fileID)
	if err != nil {
		t.Fatalf("PurgeFile(%s) error = %v", fileID, err)
	}
	return res
}
