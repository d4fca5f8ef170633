package fs

import (
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Source is a regular file or directory selected for upload.
type Source struct {
	path    string
	relPath string // relative to the directory being uploaded; base name otherwise
	info    fs.FileInfo
}

// NewSource creates a Source for an already-resolved path.
func NewSource(path, relPath string, info fs.FileInfo) *Source {
	return &Source{path: path, relPath: relPath, info: info}
}

func (s *Source) String() string     { return s.path }
func (s *Source) RelPath() string    { return s.relPath }
func (s *Source) IsDir() bool        { return s.info.IsDir() }
func (s *Source) Info() fs.FileInfo  { return s.info }
func (s *Source) Name() string       { return filepath.Base(s.path) }
func (s *Source) Size() int64        { return s.info.Size() }
func (s *Source) ModTime() time.Time { return s.info.ModTime() }

// StatData holds platform-specific file metadata extracted from fs.FileInfo.
type StatData struct {
	UID       int64
	GID       int64
	Atime     time.Time
	Ctime     time.Time
	BirthTime sql.NullTime
}

// OSFilesystemManager reads upload sources from the real filesystem.
type OSFilesystemManager struct {
	ignore *IgnoreMatcher
}

// NewOSFilesystemManager creates a filesystem manager. A nil matcher ignores nothing.
func NewOSFilesystemManager(ignore *IgnoreMatcher) *OSFilesystemManager {
	if ignore == nil {
		ignore = NewIgnoreMatcher(nil)
	}
	return &OSFilesystemManager{ignore: ignore}
}

// Resolve validates a raw path and returns a Source.
func (m *OSFilesystemManager) Resolve(rawPath string) (*Source, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	// Check for special file types we don't support
	mode := info.Mode()
	if mode&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlinks not supported: %s", absPath)
	}
	if mode&os.ModeDevice != 0 {
		return nil, fmt.Errorf("device files not supported: %s", absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return nil, fmt.Errorf("named pipes not supported: %s", absPath)
	}
	if mode&os.ModeSocket != 0 {
		return nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return &Source{path: absPath, relPath: filepath.Base(absPath), info: info}, nil
}

// Open opens a source file for reading.
func (m *OSFilesystemManager) Open(src *Source) (io.ReadCloser, error) {
	if src.IsDir() {
		return nil, fmt.Errorf("cannot open directory as file: %s", src)
	}
	return os.Open(src.path)
}

// Stat returns fresh file info for a source.
func (m *OSFilesystemManager) Stat(src *Source) (fs.FileInfo, error) {
	return os.Stat(src.path)
}

// FindFiles discovers regular files under a directory source, skipping
// anything the ignore matcher selects.
func (m *OSFilesystemManager) FindFiles(dir *Source, recursive bool) ([]*Source, error) {
	if !dir.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dir)
	}

	var sources []*Source
	err := filepath.WalkDir(dir.path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir.path {
			return nil
		}

		rel, err := filepath.Rel(dir.path, p)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", p, err)
		}
		if d.IsDir() {
			if !recursive || m.ignore.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || m.ignore.Match(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		sources = append(sources, &Source{path: p, relPath: rel, info: info})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return sources, nil
}
