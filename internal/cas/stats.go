package cas

import (
	"context"
	"fmt"
)

// Breakdown categories.
var breakdownCategories = []string{"documents", "images", "videos", "presentations", "code", "other"}

// StorageStats summarizes the namespace and the dedup index.
type StorageStats struct {
	TotalFiles       int64
	TotalFolders     int64
	TotalVersions    int64
	TotalStorageUsed int64 // current size of all live files

	TotalChunks       int64 // version-chunk slots, the sum of reference counts
	UniqueChunks      int64 // chunks with at least one reference
	StoredBytes       int64 // bytes of referenced chunks, stored once each
	StorageSaved      int64 // bytes referenced beyond the stored copies
	DuplicatesAvoided int64
	ReclaimableChunks int64 // chunks at zero references awaiting collection

	Breakdown map[string]int64 // live bytes by category
}

// GetStorageStats computes storage statistics.
func (s *Service) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	raw, err := s.db.Stats(ctx)
	if err != nil {
		return nil, opError("storage stats", fmt.Errorf("reading stats: %w", err))
	}

	stats := &StorageStats{
		TotalFiles:        raw.TotalFiles,
		TotalFolders:      raw.TotalFolders,
		TotalVersions:     raw.TotalVersions,
		TotalStorageUsed:  raw.TotalStorageUsed,
		TotalChunks:       raw.TotalChunks,
		UniqueChunks:      raw.UniqueChunks,
		StoredBytes:       raw.StoredBytes,
		StorageSaved:      raw.ReferencedBytes - raw.StoredBytes,
		DuplicatesAvoided: raw.DuplicatesAvoided,
		ReclaimableChunks: raw.ReclaimableChunks,
		Breakdown:         make(map[string]int64, len(breakdownCategories)),
	}
	for _, c := range breakdownCategories {
		stats.Breakdown[c] = 0
	}
	for fileType, size := range raw.SizeByType {
		stats.Breakdown[breakdownCategory(fileType)] += size
	}
	return stats, nil
}
