package staging

import (
	"fmt"
	"io"
	"os"
)

// fileStore spools content into temporary files under dir:
//
//	<staging_dir>/
//	  spool-<random>    (one per staged upload, removed on release)
type fileStore struct {
	dir string
}

type fileContent struct {
	*os.File
}

// Close closes and removes the spool file.
func (f fileContent) Close() error {
	closeErr := f.File.Close()
	if err := os.Remove(f.File.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing spool file: %w", err)
	}
	return closeErr
}

func (s fileStore) Spool(r io.Reader, limit int64) (spooled, int64, bool, error) {
	f, err := os.CreateTemp(s.dir, "spool-*")
	if err != nil {
		return nil, 0, false, fmt.Errorf("creating spool file: %w", err)
	}
	content := fileContent{f}

	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if err != nil {
		content.Close()
		return nil, 0, false, fmt.Errorf("writing spool file: %w", err)
	}
	if n > limit {
		content.Close()
		return nil, 0, true, nil
	}
	return content, n, false, nil
}

// NewFileSystemStagingArea creates a staging area that spools into stagingDir.
// maxSize is the maximum total size in bytes; must be positive.
func NewFileSystemStagingArea(fsmgr FilesystemManager, stagingDir string, maxSize int64) (*StagingArea, error) {
	if err := os.MkdirAll(stagingDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return newStagingArea(fsmgr, fileStore{dir: stagingDir}, maxSize), nil
}
