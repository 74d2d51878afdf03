package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
)

// insertClosure writes the reflexive row for a new node and, when a parent
// is given, extends every path ending at the parent by one hop.
func insertClosure(tx *gorm.DB, nodeID uint, parentID *uint) error {
	if err := tx.Create(&models.NodePath{AncestorID: nodeID, DescendantID: nodeID, Depth: 0}).Error; err != nil {
		return err
	}
	if parentID == nil {
		return nil
	}
	return tx.Exec(`INSERT INTO node_paths (ancestor_id, descendant_id, depth)
		SELECT ancestor_id, ?, depth + 1 FROM node_paths WHERE descendant_id = ?`,
		nodeID, *parentID).Error
}

// BatchPathExists reports whether any listed ancestor reaches any listed
// descendant. One EXISTS query per id chunk pair; never a per-id loop.
func (s *Store) BatchPathExists(ctx context.Context, ancestorIDs, descendantIDs []uint) (bool, error) {
	return batchPathExists(s.db.WithContext(ctx), ancestorIDs, descendantIDs)
}

func batchPathExists(tx *gorm.DB, ancestorIDs, descendantIDs []uint) (bool, error) {
	if len(ancestorIDs) == 0 || len(descendantIDs) == 0 {
		return false, nil
	}
	for _, as := range chunkIDs(ancestorIDs, inChunkSize) {
		for _, ds := range chunkIDs(descendantIDs, inChunkSize) {
			var hit int
			err := tx.Raw(`SELECT EXISTS (
				SELECT 1 FROM node_paths
				WHERE ancestor_id IN ? AND descendant_id IN ?)`, as, ds).Scan(&hit).Error
			if err != nil {
				return false, err
			}
			if hit == 1 {
				return true, nil
			}
		}
	}
	return false, nil
}

// FilterDescendants keeps the candidates reachable from any of the given
// ancestors (the reflexive row makes a node its own descendant). Candidate
// order is preserved.
func (s *Store) FilterDescendants(ctx context.Context, ancestorIDs, candidateIDs []uint) ([]uint, error) {
	return filterByPath(s.db.WithContext(ctx), ancestorIDs, candidateIDs, true)
}

// FilterAncestors keeps the candidates from which any of the given
// descendants is reachable. Candidate order is preserved.
func (s *Store) FilterAncestors(ctx context.Context, descendantIDs, candidateIDs []uint) ([]uint, error) {
	return filterByPath(s.db.WithContext(ctx), descendantIDs, candidateIDs, false)
}

func filterByPath(tx *gorm.DB, fixedIDs, candidateIDs []uint, candidatesBelow bool) ([]uint, error) {
	if len(fixedIDs) == 0 || len(candidateIDs) == 0 {
		return nil, nil
	}
	matched := make(map[uint]struct{}, len(candidateIDs))
	for _, fixed := range chunkIDs(fixedIDs, inChunkSize) {
		for _, cands := range chunkIDs(candidateIDs, inChunkSize) {
			var ids []uint
			q := tx.Model(&models.NodePath{})
			if candidatesBelow {
				q = q.Where("ancestor_id IN ? AND descendant_id IN ?", fixed, cands).
					Distinct().Pluck("descendant_id", &ids)
			} else {
				q = q.Where("descendant_id IN ? AND ancestor_id IN ?", fixed, cands).
					Distinct().Pluck("ancestor_id", &ids)
			}
			if q.Error != nil {
				return nil, q.Error
			}
			for _, id := range ids {
				matched[id] = struct{}{}
			}
		}
	}
	out := make([]uint, 0, len(matched))
	for _, id := range candidateIDs {
		if _, ok := matched[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// DescendantIDs lists every node reachable from the given roots, the roots
// themselves included.
func (s *Store) DescendantIDs(ctx context.Context, rootIDs []uint) ([]uint, error) {
	return descendantIDs(s.db.WithContext(ctx), rootIDs)
}

func descendantIDs(tx *gorm.DB, rootIDs []uint) ([]uint, error) {
	if len(rootIDs) == 0 {
		return nil, nil
	}
	seen := make(map[uint]struct{})
	var out []uint
	for _, chunk := range chunkIDs(rootIDs, inChunkSize) {
		var ids []uint
		err := tx.Model(&models.NodePath{}).
			Where("ancestor_id IN ?", chunk).
			Distinct().Pluck("descendant_id", &ids).Error
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// PathStep is one coded ancestor on the way from a family root to a node.
// Depth counts hops up from the node, so the root carries the largest one.
type PathStep struct {
	Code    string  `json:"code"`
	Label   *string `json:"label,omitempty"`
	LabelEN *string `json:"label_en,omitempty"`
	Level   int     `json:"level"`
	Depth   int     `json:"depth"`
}

// NodePathByCode resolves the first node carrying the code and returns its
// coded ancestor chain ordered root first, the node itself last. Pattern
// containers are skipped.
func (s *Store) NodePathByCode(ctx context.Context, code string) ([]PathStep, error) {
	node, err := s.NodeByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	var steps []PathStep
	err = s.db.WithContext(ctx).Raw(`
		SELECT n.code, n.label, n.label_en, n.level, np.depth
		FROM node_paths np
		INNER JOIN nodes n ON np.ancestor_id = n.id
		WHERE np.descendant_id = ? AND n.code IS NOT NULL
		ORDER BY np.depth DESC`, node.ID).Scan(&steps).Error
	if err != nil {
		return nil, err
	}
	return steps, nil
}

// FamilyOf returns the level-0 ancestor of a node.
func (s *Store) FamilyOf(ctx context.Context, nodeID uint) (*models.Node, error) {
	var family models.Node
	err := s.db.WithContext(ctx).Raw(`
		SELECT n.* FROM nodes n
		INNER JOIN node_paths np ON np.ancestor_id = n.id
		WHERE np.descendant_id = ? AND n.level = 0
		LIMIT 1`, nodeID).Scan(&family).Error
	if err != nil {
		return nil, err
	}
	if family.ID == 0 {
		return nil, fault.New(fault.NotFound, "no family found for node %d", nodeID)
	}
	return &family, nil
}

// SubtreeStats summarises the subtree hanging off one node.
type SubtreeStats struct {
	NodeID          uint    `json:"node_id"`
	Code            *string `json:"code"`
	Label           *string `json:"label"`
	DescendantCount int     `json:"descendant_count"`
	TreeDepth       int     `json:"tree_depth"`
}

// SubtreeInfo counts the descendants of a node and the depth of the
// deepest one.
func (s *Store) SubtreeInfo(ctx context.Context, nodeID uint) (*SubtreeStats, error) {
	node, err := s.NodeByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	var row struct {
		Cnt   int
		Depth int
	}
	err = s.db.WithContext(ctx).Raw(`
		SELECT COUNT(DISTINCT descendant_id) - 1 AS cnt, COALESCE(MAX(depth), 0) AS depth
		FROM node_paths WHERE ancestor_id = ?`, nodeID).Scan(&row).Error
	if err != nil {
		return nil, err
	}

	label := node.Label
	return &SubtreeStats{
		NodeID:          node.ID,
		Code:            node.Code,
		Label:           &label,
		DescendantCount: row.Cnt,
		TreeDepth:       row.Depth,
	}, nil
}

// MaxDepthBelowCode returns the deepest hop count under the first node
// carrying the code.
func (s *Store) MaxDepthBelowCode(ctx context.Context, code string) (int, error) {
	node, err := s.NodeByCode(ctx, code)
	if err != nil {
		return 0, err
	}
	var depth int
	err = s.db.WithContext(ctx).Raw(`
		SELECT COALESCE(MAX(depth), 0) FROM node_paths WHERE ancestor_id = ?`, node.ID).Scan(&depth).Error
	if err != nil {
		return 0, err
	}
	return depth, nil
}

// MaxLevelBelowCode returns the deepest configurator level reachable from
// nodes carrying the code. With a family code the search covers every
// occurrence inside that family; without one only the first occurrence.
func (s *Store) MaxLevelBelowCode(ctx context.Context, code, familyCode string) (int, error) {
	if familyCode != "" {
		var level int
		err := s.db.WithContext(ctx).Raw(`
			SELECT COALESCE(MAX(dn.level), 0)
			FROM nodes src
			INNER JOIN node_paths np ON np.ancestor_id = src.id
			INNER JOIN nodes dn ON dn.id = np.descendant_id
			WHERE src.code = ?
			  AND EXISTS (
				SELECT 1 FROM node_paths fp
				INNER JOIN nodes f ON f.id = fp.ancestor_id
				WHERE fp.descendant_id = src.id AND f.code = ? AND f.level = 0
			  )`, code, familyCode).Scan(&level).Error
		return level, err
	}

	node, err := s.NodeByCode(ctx, code)
	if err != nil {
		return 0, err
	}
	var level int
	err = s.db.WithContext(ctx).Raw(`
		SELECT COALESCE(MAX(n.level), 0)
		FROM node_paths np
		INNER JOIN nodes n ON n.id = np.descendant_id
		WHERE np.ancestor_id = ?`, node.ID).Scan(&level).Error
	return level, err
}

// RebuildClosure drops and regenerates every closure row from parent_id,
// level by level, so each parent's paths exist before its children extend
// them.
func (s *Store) RebuildClosure(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return rebuildClosure(tx)
	})
}

func rebuildClosure(tx *gorm.DB) error {
	if err := tx.Exec(`DELETE FROM node_paths`).Error; err != nil {
		return err
	}
	type nodeRow struct {
		ID       uint
		ParentID *uint
	}
	var nodes []nodeRow
	if err := tx.Raw(`SELECT id, parent_id FROM nodes ORDER BY level ASC, id ASC`).Scan(&nodes).Error; err != nil {
		return err
	}
	for _, n := range nodes {
		if err := insertClosure(tx, n.ID, n.ParentID); err != nil {
			return err
		}
	}
	return nil
}
