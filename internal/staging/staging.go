package staging

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"sync"

	"cas-go/internal/fs"
)

// ErrFull is returned when staging content would exceed the area's max size.
var ErrFull = errors.New("staging area full")

// FilesystemManager is the part of the filesystem the staging area reads from.
type FilesystemManager interface {
	Open(src *fs.Source) (io.ReadCloser, error)
	Stat(src *fs.Source) (iofs.FileInfo, error)
	ExtractStatData(info iofs.FileInfo) (*fs.StatData, error)
}

// StagingArea spools upload content so the pipeline can read it at
// arbitrary offsets while the source stays free to change.
type StagingArea struct {
	fsmgr   FilesystemManager
	store   stagingStore
	maxSize int64

	mu   sync.Mutex
	used int64
}

func newStagingArea(fsmgr FilesystemManager, store stagingStore, maxSize int64) *StagingArea {
	return &StagingArea{fsmgr: fsmgr, store: store, maxSize: maxSize}
}

// Staged is spooled content. Release it once the upload has finished.
type Staged struct {
	content spooled
	size    int64
	area    *StagingArea
	once    sync.Once
}

func (s *Staged) ReadAt(p []byte, off int64) (int, error) { return s.content.ReadAt(p, off) }

// Size returns the number of spooled bytes.
func (s *Staged) Size() int64 { return s.size }

// Release frees the spooled content. Calling it more than once is safe.
func (s *Staged) Release() error {
	var err error
	s.once.Do(func() {
		err = s.content.Close()
		s.area.mu.Lock()
		s.area.used -= s.size
		s.area.mu.Unlock()
	})
	return err
}

// Stage spools everything r produces.
func (s *StagingArea) Stage(r io.Reader) (*Staged, error) {
	content, size, truncated, err := s.store.Spool(r, s.maxSize)
	if err != nil {
		return nil, fmt.Errorf("storing content: %w", err)
	}
	if truncated {
		return nil, fmt.Errorf("%w: content exceeds max size of %d bytes", ErrFull, s.maxSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.used+size > s.maxSize {
		content.Close()
		return nil, fmt.Errorf("%w: would exceed max size of %d bytes", ErrFull, s.maxSize)
	}
	s.used += size
	return &Staged{content: content, size: size, area: s}, nil
}

// StageFile spools a file and checks that it did not change while being read.
func (s *StagingArea) StageFile(src *fs.Source) (*Staged, error) {
	// 1. Get initial stat from the source
	info1 := src.Info()
	stat1, err := s.fsmgr.ExtractStatData(info1)
	if err != nil {
		return nil, fmt.Errorf("extracting stat data: %w", err)
	}

	// 2. Open and spool the content
	reader, err := s.fsmgr.Open(src)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	staged, err := s.Stage(reader)
	reader.Close()
	if err != nil {
		return nil, err
	}

	// 3. Re-stat to validate file hasn't changed
	info2, err := s.fsmgr.Stat(src)
	if err != nil {
		staged.Release()
		return nil, fmt.Errorf("re-stat file: %w", err)
	}
	stat2, err := s.fsmgr.ExtractStatData(info2)
	if err != nil {
		staged.Release()
		return nil, fmt.Errorf("extracting re-stat data: %w", err)
	}
	if err := validateStatUnchanged(info1, info2, stat1, stat2); err != nil {
		staged.Release()
		return nil, fmt.Errorf("file changed during staging: %w", err)
	}
	if staged.Size() != info2.Size() {
		staged.Release()
		return nil, fmt.Errorf("file changed during staging: read %d bytes, stat reports %d", staged.Size(), info2.Size())
	}

	return staged, nil
}

// Size returns the total size of staged content in bytes.
func (s *StagingArea) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// validateStatUnchanged checks that file metadata hasn't changed.
// We ignore access time as it may change from our read.
func validateStatUnchanged(info1, info2 iofs.FileInfo, stat1, stat2 *fs.StatData) error {
	if info1.Size() != info2.Size() {
		return fmt.Errorf("size changed: %d -> %d", info1.Size(), info2.Size())
	}
	if info1.Mode() != info2.Mode() {
		return fmt.Errorf("mode changed: %v -> %v", info1.Mode(), info2.Mode())
	}
	if !info1.ModTime().Equal(info2.ModTime()) {
		return fmt.Errorf("mtime changed: %v -> %v", info1.ModTime(), info2.ModTime())
	}
	if !stat1.Ctime.Equal(stat2.Ctime) {
		return fmt.Errorf("ctime changed: %v -> %v", stat1.Ctime, stat2.Ctime)
	}
	if stat1.UID != stat2.UID {
		return fmt.Errorf("uid changed: %d -> %d", stat1.UID, stat2.UID)
	}
	if stat1.GID != stat2.GID {
		return fmt.Errorf("gid changed: %d -> %d", stat1.GID, stat2.GID)
	}
	return nil
}
