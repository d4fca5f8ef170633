package staging

import (
	"bytes"
	"fmt"
	"io"
)

// memoryStore spools content into memory. Useful for tests and small uploads.
type memoryStore struct{}

type memoryContent struct {
	*bytes.Reader
}

func (memoryContent) Close() error { return nil }

func (memoryStore) Spool(r io.Reader, limit int64) (spooled, int64, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, 0, false, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, 0, true, nil
	}
	return memoryContent{bytes.NewReader(data)}, int64(len(data)), false, nil
}

// NewMemoryStagingArea creates a staging area that spools into memory.
// maxSize is the maximum total size in bytes; must be positive.
func NewMemoryStagingArea(fsmgr FilesystemManager, maxSize int64) *StagingArea {
	return newStagingArea(fsmgr, memoryStore{}, maxSize)
}
