package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/oxhq/varix/models"
)

// LabelSegments lists a node's label segments in code position order.
func (s *Store) LabelSegments(ctx context.Context, nodeID uint) ([]models.NodeLabel, error) {
	var segments []models.NodeLabel
	err := s.db.WithContext(ctx).
		Where("node_id = ?", nodeID).
		Order("position_start, display_order").
		Find(&segments).Error
	return segments, err
}

// ReplaceLabelSegments swaps a node's label segments for a fresh set.
func (s *Store) ReplaceLabelSegments(ctx context.Context, nodeID uint, segments []models.NodeLabel) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("node_id = ?", nodeID).Delete(&models.NodeLabel{}).Error; err != nil {
			return err
		}
		for i := range segments {
			segments[i].ID = 0
			segments[i].NodeID = nodeID
			if err := tx.Create(&segments[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// CodeHint explains one segment of a code being typed: which characters it
// covers, what they mean, and whether the typed prefix already matches.
type CodeHint struct {
	Position  *int    `json:"position"`
	Character string  `json:"character"`
	Title     string  `json:"title"`
	LabelDE   string  `json:"label_de"`
	LabelEN   *string `json:"label_en"`
	Matched   bool    `json:"matched"`
}

// CodeHints matches a partially typed code against the node's label
// segments. Positions are 1-based inclusive.
func (s *Store) CodeHints(ctx context.Context, nodeID uint, partialCode string) ([]CodeHint, error) {
	var segments []models.NodeLabel
	err := s.db.WithContext(ctx).
		Where("node_id = ? AND code_segment IS NOT NULL", nodeID).
		Order("position_start").
		Find(&segments).Error
	if err != nil {
		return nil, err
	}

	hints := make([]CodeHint, 0, len(segments))
	for _, seg := range segments {
		hint := CodeHint{
			Position: seg.PositionStart,
			Title:    seg.Title,
			LabelDE:  seg.LabelDE,
			LabelEN:  seg.LabelEN,
		}
		if seg.CodeSegment != nil {
			hint.Character = *seg.CodeSegment
		}
		if seg.PositionStart != nil && seg.PositionEnd != nil {
			hint.Matched = segmentMatches(partialCode, *seg.PositionStart, *seg.PositionEnd, hint.Character)
		}
		hints = append(hints, hint)
	}
	return hints, nil
}

// segmentMatches slices the typed code at the segment's 1-based positions
// and compares. A segment past the end of the input never matches.
func segmentMatches(partial string, start, end int, segment string) bool {
	if start < 1 || start > len(partial) {
		return "" == segment
	}
	if end > len(partial) {
		end = len(partial)
	}
	if end < start {
		return "" == segment
	}
	return partial[start-1:end] == segment
}

// NodeDatesByID loads the typecode date statistics of a node, or nil when
// the importer recorded none.
func (s *Store) NodeDatesByID(ctx context.Context, nodeID uint) (*models.NodeDates, error) {
	var dates models.NodeDates
	err := s.db.WithContext(ctx).First(&dates, "node_id = ?", nodeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dates, nil
}

// UpsertNodeDates writes the date statistics for a node, replacing any
// previous row.
func (s *Store) UpsertNodeDates(ctx context.Context, dates models.NodeDates) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("node_id = ?", dates.NodeID).Delete(&models.NodeDates{}).Error; err != nil {
			return err
		}
		return tx.Create(&dates).Error
	})
}
