package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
)

// CopyResult reports what a deep copy produced.
type CopyResult struct {
	NodeID       uint `json:"node_id"`
	CopiedNodes  int  `json:"copied_nodes"`
	NodesCreated int  `json:"nodes_created"`
}

// DeepCopy creates a new node and clones the source node's whole subtree
// below it. The closure table makes this a flat walk instead of a
// recursion: one query lists the subtree depth-ordered, an id map rewires
// each copy to its copied parent, and the standard closure insert links
// every copy to both the subtree-internal ancestors and the new parent's
// ancestor chain.
func (s *Store) DeepCopy(ctx context.Context, in NodeInput, sourceNodeID uint) (*CopyResult, error) {
	type subtreeRow struct {
		ID        uint
		Code      *string
		Name      string
		Label     string
		LabelEN   *string
		Level     int
		ParentID  *uint
		Position  *int
		Pattern   *int
		GroupName *string
		Depth     int
	}

	var result CopyResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parent := in.toNode()
		if err := tx.Create(&parent).Error; err != nil {
			return err
		}
		if err := insertClosure(tx, parent.ID, in.ParentID); err != nil {
			return err
		}
		result.NodeID = parent.ID

		var rows []subtreeRow
		err := tx.Raw(`
			SELECT n.id, n.code, n.name, n.label, n.label_en, n.level,
			       n.parent_id, n.position, n.pattern, n.group_name, p.depth
			FROM nodes n
			INNER JOIN node_paths p ON n.id = p.descendant_id
			WHERE p.ancestor_id = ?
			ORDER BY p.depth, n.id`, sourceNodeID).Scan(&rows).Error
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			result.NodesCreated = 1
			return nil
		}

		// Depth order guarantees each row's parent was copied before it.
		oldToNew := make(map[uint]uint, len(rows))
		for _, row := range rows {
			var copyParentID uint
			if row.Depth == 0 {
				copyParentID = parent.ID
			} else {
				if row.ParentID == nil {
					return fault.New(fault.Internal, "subtree node %d has no parent", row.ID)
				}
				mapped, ok := oldToNew[*row.ParentID]
				if !ok {
					return fault.New(fault.Internal, "parent mapping not found for node %d", row.ID)
				}
				copyParentID = mapped
			}

			clone := models.Node{
				Code:      row.Code,
				Name:      row.Name,
				Label:     row.Label,
				LabelEN:   row.LabelEN,
				Level:     row.Level,
				ParentID:  &copyParentID,
				Position:  row.Position,
				Pattern:   row.Pattern,
				GroupName: row.GroupName,
			}
			if err := tx.Create(&clone).Error; err != nil {
				return err
			}
			if err := insertClosure(tx, clone.ID, &copyParentID); err != nil {
				return err
			}
			oldToNew[row.ID] = clone.ID
		}

		result.CopiedNodes = len(rows)
		result.NodesCreated = len(rows) + 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
