package cas

import (
	"context"
	"fmt"
	"strings"

	"cas-go/internal/model"
)

// DefaultRecentLimit is the number of files RecentFiles returns by default.
const DefaultRecentLimit = 8

// GetFile returns a file, live or trashed.
func (s *Service) GetFile(ctx context.Context, id string) (*model.File, error) {
	f, err := s.db.FindFile(ctx, id)
	if err != nil {
		return nil, opError("get file", fmt.Errorf("finding file: %w", err))
	}
	if f == nil {
		return nil, opError("get file", fmt.Errorf("file %s: %w", id, ErrNotFound))
	}
	return f, nil
}

// ListFiles returns the files selected by q.
func (s *Service) ListFiles(ctx context.Context, q FileQuery) ([]*model.File, error) {
	files, err := s.db.ListFiles(ctx, q)
	return files, opError("list files", err)
}

// RecentFiles returns live files by modification time, newest first.
func (s *Service) RecentFiles(ctx context.Context, limit int) ([]*model.File, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	files, err := s.db.ListFiles(ctx, FileQuery{RecentFirst: true, Limit: limit})
	return files, opError("recent files", err)
}

// StarredFiles returns starred live files.
func (s *Service) StarredFiles(ctx context.Context) ([]*model.File, error) {
	files, err := s.db.ListFiles(ctx, FileQuery{StarredOnly: true})
	return files, opError("starred files", err)
}

// ToggleStar flips a live file's starred flag and returns the new value.
func (s *Service) ToggleStar(ctx context.Context, id string) (bool, error) {
	var starred bool
	err := s.updateLiveFile(ctx, id, func(f *model.File) error {
		f.Starred = !f.Starred
		starred = f.Starred
		return nil
	})
	return starred, opError("toggle star", err)
}

// SetShared marks a live file as shared or private.
func (s *Service) SetShared(ctx context.Context, id string, shared bool) error {
	return opError("set shared", s.updateLiveFile(ctx, id, func(f *model.File) error {
		f.Shared = shared
		return nil
	}))
}

// Rename changes a live file's name.
func (s *Service) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return opError("rename", fmt.Errorf("empty file name: %w", ErrValidation))
	}
	return opError("rename", s.updateLiveFile(ctx, id, func(f *model.File) error {
		f.Name = name
		f.ModifiedAt = s.clock.Now()
		return nil
	}))
}

// updateLiveFile applies fn to a live file under its file lock.
func (s *Service) updateLiveFile(ctx context.Context, id string, fn func(*model.File) error) error {
	unlock := s.versions.lockFile(id)
	defer unlock()

	return s.db.InTx(ctx, func(tx Store) error {
		f, err := tx.FindFile(ctx, id)
		if err != nil {
			return fmt.Errorf("finding file: %w", err)
		}
		if f == nil || f.Trashed() {
			return fmt.Errorf("live file %s: %w", id, ErrNotFound)
		}
		if err := fn(f); err != nil {
			return err
		}
		if err := tx.UpdateFile(ctx, f); err != nil {
			return fmt.Errorf("updating file: %w", err)
		}
		return nil
	})
}
