package cas

import (
	"context"
	"fmt"
	"strings"

	"cas-go/internal/model"
)

const (
	DefaultFolderColor = "#4285f4"
	RootFolderName     = "My Drive"
)

// Crumb is one step of a breadcrumb trail. The root has an empty ID.
type Crumb struct {
	ID   string
	Name string
}

// Listing is the direct content of a folder.
type Listing struct {
	Folder  *model.Folder // nil for the root
	Folders []*model.Folder
	Files   []*model.File
}

// CreateFolder creates a folder under parentID ("" for the root).
func (s *Service) CreateFolder(ctx context.Context, name, parentID, ownerID, color string) (*model.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, opError("create folder", fmt.Errorf("empty folder name: %w", ErrValidation))
	}
	if color == "" {
		color = DefaultFolderColor
	}

	folder := &model.Folder{
		ID:        s.ids.New(),
		Name:      name,
		ParentID:  parentID,
		OwnerID:   ownerID,
		Color:     color,
		CreatedAt: s.clock.Now(),
	}
	err := s.db.InTx(ctx, func(tx Store) error {
		if err := requireFolder(ctx, tx, parentID); err != nil {
			return err
		}
		return tx.InsertFolder(ctx, folder)
	})
	if err != nil {
		return nil, opError("create folder", err)
	}

	s.logger.Info("folder created", "folder", folder.ID, "name", folder.Name, "parent", parentID)
	return folder, nil
}

// MoveFolder re-parents a folder. Moving a folder into itself or one of
// its descendants is refused.
func (s *Service) MoveFolder(ctx context.Context, id, parentID string) error {
	s.folderMu.Lock()
	defer s.folderMu.Unlock()

	err := s.db.InTx(ctx, func(tx Store) error {
		folder, err := tx.FindFolder(ctx, id)
		if err != nil {
			return fmt.Errorf("finding folder: %w", err)
		}
		if folder == nil {
			return fmt.Errorf("folder %s: %w", id, ErrNotFound)
		}
		if err := requireFolder(ctx, tx, parentID); err != nil {
			return err
		}

		seen := map[string]bool{}
		for cur := parentID; cur != ""; {
			if cur == id {
				return fmt.Errorf("moving folder %s under its own descendant: %w", id, ErrInvariantViolation)
			}
			if seen[cur] {
				return fmt.Errorf("folder %s has a cyclic ancestry: %w", cur, ErrInvariantViolation)
			}
			seen[cur] = true

			f, err := tx.FindFolder(ctx, cur)
			if err != nil {
				return fmt.Errorf("finding folder: %w", err)
			}
			if f == nil {
				return fmt.Errorf("folder %s: %w", cur, ErrNotFound)
			}
			cur = f.ParentID
		}

		return tx.UpdateFolderParent(ctx, id, parentID)
	})
	if err != nil {
		return opError("move folder", err)
	}

	s.logger.Info("folder moved", "folder", id, "parent", parentID)
	return nil
}

// Breadcrumbs returns the path from the root to folderID, root first.
func (s *Service) Breadcrumbs(ctx context.Context, folderID string) ([]Crumb, error) {
	var trail []Crumb
	seen := map[string]bool{}
	for cur := folderID; cur != ""; {
		if seen[cur] {
			return nil, opError("breadcrumbs", fmt.Errorf("folder %s has a cyclic ancestry: %w", cur, ErrInvariantViolation))
		}
		seen[cur] = true

		f, err := s.db.FindFolder(ctx, cur)
		if err != nil {
			return nil, opError("breadcrumbs", fmt.Errorf("finding folder: %w", err))
		}
		if f == nil {
			return nil, opError("breadcrumbs", fmt.Errorf("folder %s: %w", cur, ErrNotFound))
		}
		trail = append(trail, Crumb{ID: f.ID, Name: f.Name})
		cur = f.ParentID
	}
	trail = append(trail, Crumb{Name: RootFolderName})

	for i, j := 0, len(trail)-1; i < j; i, j = i+1, j-1 {
		trail[i], trail[j] = trail[j], trail[i]
	}
	return trail, nil
}

// ListFolder returns the subfolders and live files directly inside
// folderID ("" for the root).
func (s *Service) ListFolder(ctx context.Context, folderID string) (*Listing, error) {
	listing := &Listing{}
	if folderID != "" {
		f, err := s.db.FindFolder(ctx, folderID)
		if err != nil {
			return nil, opError("list folder", fmt.Errorf("finding folder: %w", err))
		}
		if f == nil {
			return nil, opError("list folder", fmt.Errorf("folder %s: %w", folderID, ErrNotFound))
		}
		listing.Folder = f
	}

	folders, err := s.db.ListFolders(ctx, folderID)
	if err != nil {
		return nil, opError("list folder", fmt.Errorf("listing folders: %w", err))
	}
	files, err := s.db.ListFiles(ctx, FileQuery{FolderID: folderID, ByFolder: true})
	if err != nil {
		return nil, opError("list folder", fmt.Errorf("listing files: %w", err))
	}
	listing.Folders = folders
	listing.Files = files
	return listing, nil
}

func requireFolder(ctx context.Context, st Store, id string) error {
	if id == "" {
		return nil
	}
	f, err := st.FindFolder(ctx, id)
	if err != nil {
		return fmt.Errorf("finding folder: %w", err)
	}
	if f == nil {
		return fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	return nil
}
