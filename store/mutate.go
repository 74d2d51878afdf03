package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
)

// NodeInput carries the writable fields for a new node.
type NodeInput struct {
	Code      *string `json:"code"`
	Name      string  `json:"name"`
	Label     string  `json:"label"`
	LabelEN   *string `json:"label_en"`
	Level     int     `json:"level"`
	ParentID  *uint   `json:"parent_id"`
	Position  int     `json:"position"`
	Pattern   *int    `json:"pattern"`
	GroupName *string `json:"group_name"`
}

func (in NodeInput) toNode() models.Node {
	pos := in.Position
	return models.Node{
		Code:      in.Code,
		Name:      in.Name,
		Label:     in.Label,
		LabelEN:   in.LabelEN,
		Level:     in.Level,
		ParentID:  in.ParentID,
		Position:  &pos,
		Pattern:   in.Pattern,
		GroupName: in.GroupName,
	}
}

// CreateNode inserts a node and its closure rows: the self path plus one
// row per ancestor of the parent.
func (s *Store) CreateNode(ctx context.Context, in NodeInput) (*models.Node, error) {
	node := in.toNode()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&node).Error; err != nil {
			return err
		}
		return insertClosure(tx, node.ID, in.ParentID)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// CreateFamily inserts a level-0 root. The code doubles as the name, the
// position continues after the current maximum.
func (s *Store) CreateFamily(ctx context.Context, code, label string, labelEN *string) (*models.Node, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fault.New(fault.Validation, "family code must not be empty")
	}
	label = strings.TrimSpace(label)
	if labelEN != nil {
		trimmed := strings.TrimSpace(*labelEN)
		labelEN = &trimmed
	}

	var family models.Node
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Node{}).
			Where("code = ? AND parent_id IS NULL", code).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fault.New(fault.Conflict, "product family %q already exists", code)
		}

		var position int
		if err := tx.Raw(`
			SELECT COALESCE(MAX(position), -1) + 1
			FROM nodes
			WHERE parent_id IS NULL`).Scan(&position).Error; err != nil {
			return err
		}

		family = models.Node{
			Code:     &code,
			Name:     code,
			Label:    label,
			LabelEN:  labelEN,
			Level:    0,
			Position: &position,
		}
		if err := tx.Create(&family).Error; err != nil {
			return err
		}
		return insertClosure(tx, family.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return &family, nil
}

// UpdateFamilyLabels sets the labels of a level-0 root. The name follows
// the German label.
func (s *Store) UpdateFamilyLabels(ctx context.Context, familyCode, label string, labelEN *string) (*models.Node, error) {
	var family models.Node
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("code = ? AND parent_id IS NULL AND level = 0", strings.ToUpper(familyCode)).
			First(&family).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.NotFound, "product family %q not found", familyCode)
		}
		if err != nil {
			return err
		}
		updates := map[string]any{
			"label":    label,
			"label_en": labelEN,
			"name":     label,
		}
		if err := tx.Model(&models.Node{}).Where("id = ?", family.ID).Updates(updates).Error; err != nil {
			return err
		}
		family.Label = label
		family.LabelEN = labelEN
		family.Name = label
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &family, nil
}

// WipeResult reports what a cascading delete removed.
type WipeResult struct {
	Code              string `json:"code"`
	Level             int    `json:"level"`
	NodesWithSameCode int    `json:"nodes_with_same_code,omitempty"`
	DeletedNodes      int64  `json:"deleted_nodes"`
	DeletedSuccessors int64  `json:"deleted_successors"`
}

// DeleteFamily removes a level-0 root with its whole subtree, the closure
// rows, dependent metadata and every successor link touching the subtree.
func (s *Store) DeleteFamily(ctx context.Context, familyCode string) (*WipeResult, error) {
	result := &WipeResult{Code: familyCode}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var family models.Node
		err := tx.Where("code = ? AND parent_id IS NULL AND level = 0", strings.ToUpper(familyCode)).
			First(&family).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.NotFound, "product family %q not found", familyCode)
		}
		if err != nil {
			return err
		}

		if err := tx.Where("family_id = ?", family.ID).Delete(&models.KmatReference{}).Error; err != nil {
			return err
		}

		deletedNodes, deletedSuccessors, err := wipeNodeSet(tx, []uint{family.ID})
		if err != nil {
			return err
		}
		result.DeletedNodes = deletedNodes
		result.DeletedSuccessors = deletedSuccessors
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteNodeCascade removes every node sharing the given node's code and
// level across the whole forest, together with all their descendants. The
// same code can sit on several paths, so a single-path delete would leave
// stale siblings behind.
func (s *Store) DeleteNodeCascade(ctx context.Context, nodeID uint) (*WipeResult, error) {
	var result WipeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var node models.Node
		err := tx.First(&node, "id = ?", nodeID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.NotFound, "node %d not found", nodeID)
		}
		if err != nil {
			return err
		}
		if node.Level == 0 {
			return fault.New(fault.Integrity,
				"product families must be deleted through the family endpoint")
		}

		var sameCodeIDs []uint
		if err := tx.Model(&models.Node{}).
			Where("code = ? AND level = ?", node.Code, node.Level).
			Pluck("id", &sameCodeIDs).Error; err != nil {
			return err
		}
		if len(sameCodeIDs) == 0 {
			return fault.New(fault.NotFound,
				"no nodes with code %q at level %d", node.CodeString(), node.Level)
		}

		deletedNodes, deletedSuccessors, err := wipeNodeSet(tx, sameCodeIDs)
		if err != nil {
			return err
		}
		result = WipeResult{
			Code:              node.CodeString(),
			Level:             node.Level,
			NodesWithSameCode: len(sameCodeIDs),
			DeletedNodes:      deletedNodes,
			DeletedSuccessors: deletedSuccessors,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// wipeNodeSet deletes the closed descendant set of the roots: successor
// links first, then labels, dates, closure rows and finally the nodes.
func wipeNodeSet(tx *gorm.DB, rootIDs []uint) (deletedNodes, deletedSuccessors int64, err error) {
	ids, err := descendantIDs(tx, rootIDs)
	if err != nil {
		return 0, 0, err
	}
	if len(ids) == 0 {
		return 0, 0, nil
	}

	successorIDs := make(map[uint]struct{})
	for _, chunk := range chunkIDs(ids, inChunkSize) {
		var rows []uint
		if err := tx.Model(&models.ProductSuccessor{}).
			Where("source_node_id IN ? OR target_node_id IN ?", chunk, chunk).
			Pluck("id", &rows).Error; err != nil {
			return 0, 0, err
		}
		for _, id := range rows {
			successorIDs[id] = struct{}{}
		}
	}
	if len(successorIDs) > 0 {
		condemned := make([]uint, 0, len(successorIDs))
		for id := range successorIDs {
			condemned = append(condemned, id)
		}
		for _, chunk := range chunkIDs(condemned, inChunkSize) {
			res := tx.Where("id IN ?", chunk).Delete(&models.ProductSuccessor{})
			if res.Error != nil {
				return 0, 0, res.Error
			}
			deletedSuccessors += res.RowsAffected
		}
	}

	for _, chunk := range chunkIDs(ids, inChunkSize) {
		if err := tx.Where("node_id IN ?", chunk).Delete(&models.NodeLabel{}).Error; err != nil {
			return 0, 0, err
		}
		if err := tx.Where("node_id IN ?", chunk).Delete(&models.NodeDates{}).Error; err != nil {
			return 0, 0, err
		}
		if err := tx.Where("descendant_id IN ?", chunk).Delete(&models.NodePath{}).Error; err != nil {
			return 0, 0, err
		}
		res := tx.Where("id IN ?", chunk).Delete(&models.Node{})
		if res.Error != nil {
			return 0, 0, res.Error
		}
		deletedNodes += res.RowsAffected
	}
	return deletedNodes, deletedSuccessors, nil
}

// DeletePreview is the dry run of a cascading delete.
type DeletePreview struct {
	NodeID              uint     `json:"node_id,omitempty"`
	Code                string   `json:"code"`
	Label               string   `json:"label"`
	Level               int      `json:"level"`
	NodesWithSameCode   int      `json:"nodes_with_same_code,omitempty"`
	AffectedNodes       int64    `json:"affected_nodes"`
	AffectedSuccessors  int64    `json:"affected_successors"`
	AffectedConstraints int64    `json:"affected_constraints"`
	CanDelete           bool     `json:"can_delete"`
	Warnings            []string `json:"warnings"`
}

// PreviewNodeDeletion counts what DeleteNodeCascade would remove.
func (s *Store) PreviewNodeDeletion(ctx context.Context, nodeID uint) (*DeletePreview, error) {
	node, err := s.NodeByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.Level == 0 {
		return nil, fault.New(fault.Integrity,
			"product families must be previewed through the family endpoint")
	}

	db := s.db.WithContext(ctx)
	var sameCodeIDs []uint
	if err := db.Model(&models.Node{}).
		Where("code = ? AND level = ?", node.Code, node.Level).
		Pluck("id", &sameCodeIDs).Error; err != nil {
		return nil, err
	}
	if len(sameCodeIDs) == 0 {
		return nil, fault.New(fault.NotFound,
			"no nodes with code %q at level %d", node.CodeString(), node.Level)
	}

	affectedNodes, affectedSuccessors, err := s.countCascade(ctx, sameCodeIDs)
	if err != nil {
		return nil, err
	}

	preview := &DeletePreview{
		NodeID:             node.ID,
		Code:               node.CodeString(),
		Label:              node.Label,
		Level:              node.Level,
		NodesWithSameCode:  len(sameCodeIDs),
		AffectedNodes:      affectedNodes,
		AffectedSuccessors: affectedSuccessors,
		CanDelete:          true,
	}
	preview.Warnings = append(preview.Warnings,
		fmt.Sprintf("%d Nodes mit Code '%s' auf Level %d werden gelöscht", len(sameCodeIDs), preview.Code, preview.Level),
		fmt.Sprintf("%d Nodes gesamt (inkl. alle Descendants)", affectedNodes))
	if affectedSuccessors > 0 {
		preview.Warnings = append(preview.Warnings,
			fmt.Sprintf("%d Nachfolger-Beziehungen werden gelöscht", affectedSuccessors))
	}
	return preview, nil
}

// PreviewFamilyDeletion counts what DeleteFamily would remove.
func (s *Store) PreviewFamilyDeletion(ctx context.Context, familyCode string) (*DeletePreview, error) {
	var family models.Node
	err := s.db.WithContext(ctx).
		Where("code = ? AND parent_id IS NULL AND level = 0", strings.ToUpper(familyCode)).
		First(&family).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.New(fault.NotFound, "product family %q not found", familyCode)
	}
	if err != nil {
		return nil, err
	}

	affectedNodes, affectedSuccessors, err := s.countCascade(ctx, []uint{family.ID})
	if err != nil {
		return nil, err
	}

	preview := &DeletePreview{
		Code:               family.CodeString(),
		Label:              family.Label,
		AffectedNodes:      affectedNodes,
		AffectedSuccessors: affectedSuccessors,
		CanDelete:          true,
	}
	preview.Warnings = append(preview.Warnings,
		fmt.Sprintf("%d Nodes werden gelöscht", affectedNodes))
	if affectedSuccessors > 0 {
		preview.Warnings = append(preview.Warnings,
			fmt.Sprintf("%d Nachfolger-Beziehungen werden gelöscht", affectedSuccessors))
	}
	return preview, nil
}

func (s *Store) countCascade(ctx context.Context, rootIDs []uint) (nodes, successors int64, err error) {
	db := s.db.WithContext(ctx)
	ids, err := descendantIDs(db, rootIDs)
	if err != nil {
		return 0, 0, err
	}
	nodes = int64(len(ids))
	if nodes == 0 {
		return 0, 0, nil
	}

	successorIDs := make(map[uint]struct{})
	for _, chunk := range chunkIDs(ids, inChunkSize) {
		var rows []uint
		if err := db.Model(&models.ProductSuccessor{}).
			Where("source_node_id IN ? OR target_node_id IN ?", chunk, chunk).
			Pluck("id", &rows).Error; err != nil {
			return 0, 0, err
		}
		for _, id := range rows {
			successorIDs[id] = struct{}{}
		}
	}
	return nodes, int64(len(successorIDs)), nil
}

// UpdateNodeFields are the patchable node columns. A nil field is left
// untouched.
type UpdateNodeFields struct {
	Code      *string `json:"code"`
	Name      *string `json:"name"`
	Label     *string `json:"label"`
	LabelEN   *string `json:"label_en"`
	GroupName *string `json:"group_name"`
}

// UpdateNode patches a node. Code changes are rejected since patterns and
// stored typecodes reference the code. A group name change propagates to
// every descendant.
func (s *Store) UpdateNode(ctx context.Context, nodeID uint, fields UpdateNodeFields) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var node models.Node
		err := tx.First(&node, "id = ?", nodeID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.NotFound, "node %d not found", nodeID)
		}
		if err != nil {
			return err
		}

		if fields.Code != nil && *fields.Code != node.CodeString() {
			return fault.New(fault.Integrity,
				"code changes are not allowed, delete and recreate the node instead")
		}

		updates := map[string]any{}
		if fields.Name != nil {
			updates["name"] = *fields.Name
		}
		if fields.Label != nil {
			updates["label"] = *fields.Label
		}
		if fields.LabelEN != nil {
			updates["label_en"] = *fields.LabelEN
		}
		if fields.GroupName != nil && !equalStringPtr(fields.GroupName, node.GroupName) {
			updates["group_name"] = *fields.GroupName
			err := tx.Exec(`
				UPDATE nodes SET group_name = ?
				WHERE id IN (
					SELECT descendant_id FROM node_paths
					WHERE ancestor_id = ? AND ancestor_id != descendant_id
				)`, *fields.GroupName, nodeID).Error
			if err != nil {
				return err
			}
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&models.Node{}).Where("id = ?", nodeID).Updates(updates).Error
	})
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// BulkUpdateFields drives a bulk patch: plain fields overwrite, append
// fields extend the current value. Name and group name append with a
// space, labels with a blank line.
type BulkUpdateFields struct {
	Name            *string `json:"name"`
	Label           *string `json:"label"`
	LabelEN         *string `json:"label_en"`
	GroupName       *string `json:"group_name"`
	AppendName      string  `json:"append_name"`
	AppendLabel     string  `json:"append_label"`
	AppendLabelEN   string  `json:"append_label_en"`
	AppendGroupName string  `json:"append_group_name"`
}

func (f BulkUpdateFields) hasAppend() bool {
	return f.AppendName != "" || f.AppendLabel != "" || f.AppendLabelEN != "" || f.AppendGroupName != ""
}

// BulkUpdateNodes patches many nodes at once. Code is deliberately not
// bulk-editable.
func (s *Store) BulkUpdateNodes(ctx context.Context, nodeIDs []uint, fields BulkUpdateFields) (int64, error) {
	if len(nodeIDs) == 0 {
		return 0, fault.New(fault.Validation, "no node ids provided")
	}

	var updated int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if fields.hasAppend() {
			for _, id := range nodeIDs {
				var node models.Node
				err := tx.Select("id", "name", "label", "label_en", "group_name").
					First(&node, "id = ?", id).Error
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				if err != nil {
					return err
				}

				updates := map[string]any{}
				if fields.AppendName != "" {
					updates["name"] = strings.TrimSpace(node.Name + " " + fields.AppendName)
				}
				if fields.AppendLabel != "" {
					updates["label"] = strings.TrimSpace(node.Label + "\n\n" + fields.AppendLabel)
				}
				if fields.AppendLabelEN != "" {
					current := ""
					if node.LabelEN != nil {
						current = *node.LabelEN
					}
					updates["label_en"] = strings.TrimSpace(current + "\n\n" + fields.AppendLabelEN)
				}
				if fields.AppendGroupName != "" {
					current := ""
					if node.GroupName != nil {
						current = *node.GroupName
					}
					updates["group_name"] = strings.TrimSpace(current + " " + fields.AppendGroupName)
				}
				if len(updates) == 0 {
					continue
				}
				res := tx.Model(&models.Node{}).Where("id = ?", id).Updates(updates)
				if res.Error != nil {
					return res.Error
				}
				updated += res.RowsAffected
			}
			return nil
		}

		updates := map[string]any{}
		if fields.Name != nil {
			updates["name"] = *fields.Name
		}
		if fields.Label != nil {
			updates["label"] = *fields.Label
		}
		if fields.LabelEN != nil {
			updates["label_en"] = *fields.LabelEN
		}
		if fields.GroupName != nil {
			updates["group_name"] = *fields.GroupName
		}
		if len(updates) == 0 {
			return fault.New(fault.Validation, "no valid update fields")
		}

		for _, chunk := range chunkIDs(nodeIDs, inChunkSize) {
			res := tx.Model(&models.Node{}).Where("id IN ?", chunk).Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			updated += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}
