// Package store is the persistence layer of the variant forest. All typed
// queries and every mutation live here; engines and handlers never touch
// SQL directly. Multi-row writes run inside a single transaction, and the
// closure table is maintained in the same transaction as the node rows it
// describes.
package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/oxhq/varix/models"
)

// inChunkSize bounds IN (...) parameter lists; SQLite caps bound
// parameters per statement.
const inChunkSize = 500

// Store wraps the database handle with typed forest operations.
type Store struct {
	db *gorm.DB
}

// New creates a Store on top of a connected database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// HealthInfo reports basic row counts for the health endpoint.
type HealthInfo struct {
	TotalNodes int64 `json:"total_nodes"`
	TotalPaths int64 `json:"total_paths"`
}

// Health counts nodes and closure rows.
func (s *Store) Health(ctx context.Context) (HealthInfo, error) {
	var info HealthInfo
	if err := s.db.WithContext(ctx).Model(&models.Node{}).Count(&info.TotalNodes).Error; err != nil {
		return info, err
	}
	if err := s.db.WithContext(ctx).Model(&models.NodePath{}).Count(&info.TotalPaths).Error; err != nil {
		return info, err
	}
	return info, nil
}

// chunkIDs splits an id list into IN-clause sized pieces.
func chunkIDs(ids []uint, size int) [][]uint {
	if len(ids) == 0 {
		return nil
	}
	var chunks [][]uint
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// containsID reports membership without imposing order.
func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
