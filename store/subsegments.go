package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/oxhq/varix/models"
)

// SubsegmentFilter narrows a subsegment listing. Zero values match
// everything.
type SubsegmentFilter struct {
	FamilyCode string
	GroupName  string
	Level      *int
}

// Subsegments lists stored sub-segment definitions.
func (s *Store) Subsegments(ctx context.Context, filter SubsegmentFilter) ([]models.SegmentSubsegment, error) {
	q := s.db.WithContext(ctx).Model(&models.SegmentSubsegment{})
	if filter.FamilyCode != "" {
		q = q.Where("family_code = ?", filter.FamilyCode)
	}
	if filter.GroupName != "" {
		q = q.Where("group_name = ?", filter.GroupName)
	}
	if filter.Level != nil {
		q = q.Where("level = ?", *filter.Level)
	}

	var entries []models.SegmentSubsegment
	err := q.Order("family_code, group_name, level, id").Find(&entries).Error
	return entries, err
}

// ReplaceSubsegments swaps the whole table for a fresh import.
func (s *Store) ReplaceSubsegments(ctx context.Context, entries []models.SegmentSubsegment) (int, error) {
	var imported int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.SegmentSubsegment{}).Error; err != nil {
			return err
		}
		for i := range entries {
			entries[i].ID = 0
			if err := tx.Create(&entries[i]).Error; err != nil {
				return err
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}
