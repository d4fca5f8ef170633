package staging

import (
	"fmt"

	"cas-go/internal/config"
)

// DefaultMaxSize is the default maximum staging area size (1GiB).
const DefaultMaxSize int64 = 1 << 30

// NewStagingAreaFromConfig creates a StagingArea based on the config type.
func NewStagingAreaFromConfig(cfg config.StagingConfig, fsmgr FilesystemManager) (*StagingArea, error) {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	switch cfg.Type {
	case "memory":
		return NewMemoryStagingArea(fsmgr, maxSize), nil
	case "filesystem":
		if cfg.StagingDir == "" {
			return nil, fmt.Errorf("filesystem staging area requires staging_dir to be set")
		}
		return NewFileSystemStagingArea(fsmgr, cfg.StagingDir, maxSize)
	default:
		return nil, fmt.Errorf("unknown staging area type: %s", cfg.Type)
	}
}
