package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
)

// NodeByID loads one node.
func (s *Store) NodeByID(ctx context.Context, id uint) (*models.Node, error) {
	var node models.Node
	err := s.db.WithContext(ctx).First(&node, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.New(fault.NotFound, "node %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// NodeByCode loads the first node carrying the code, lowest id first.
func (s *Store) NodeByCode(ctx context.Context, code string) (*models.Node, error) {
	var node models.Node
	err := s.db.WithContext(ctx).
		Where("code = ?", code).
		Order("id ASC").
		First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.New(fault.NotFound, "node with code %q not found", code)
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// Families lists every level-0 root ordered by position, then code.
func (s *Store) Families(ctx context.Context) ([]models.Node, error) {
	var families []models.Node
	err := s.db.WithContext(ctx).
		Where("parent_id IS NULL AND code IS NOT NULL").
		Order("position, code").
		Find(&families).Error
	return families, err
}

// FamilyByCode loads one level-0 root by its code.
func (s *Store) FamilyByCode(ctx context.Context, code string) (*models.Node, error) {
	var family models.Node
	err := s.db.WithContext(ctx).
		Where("code = ? AND level = 0 AND parent_id IS NULL", code).
		First(&family).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.New(fault.NotFound, "product family %q not found", code)
	}
	if err != nil {
		return nil, err
	}
	return &family, nil
}

// FamilyGroups lists the distinct non-NULL group names used anywhere
// inside a family.
func (s *Store) FamilyGroups(ctx context.Context, familyCode string) ([]string, error) {
	var groups []string
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT n.group_name
		FROM nodes n
		INNER JOIN node_paths p ON n.id = p.descendant_id
		INNER JOIN nodes family ON p.ancestor_id = family.id
		WHERE family.code = ?
		  AND family.level = 0
		  AND n.group_name IS NOT NULL
		ORDER BY n.group_name`, familyCode).Scan(&groups).Error
	return groups, err
}

// GroupMaxLevel returns the deepest level a group reaches inside a family.
func (s *Store) GroupMaxLevel(ctx context.Context, familyCode, groupName string) (int, error) {
	var level *int
	err := s.db.WithContext(ctx).Raw(`
		SELECT MAX(n.level)
		FROM nodes n
		INNER JOIN node_paths p ON n.id = p.descendant_id
		INNER JOIN nodes family ON p.ancestor_id = family.id
		WHERE family.code = ?
		  AND family.level = 0
		  AND n.group_name = ?`, familyCode, groupName).Scan(&level).Error
	if err != nil {
		return 0, err
	}
	if level == nil {
		return 0, nil
	}
	return *level, nil
}

// OptionNode is one resolver candidate: a coded node at the target level
// together with its parent's pattern for grouping.
type OptionNode struct {
	ID            uint           `json:"id"`
	Code          string         `json:"code"`
	Name          string         `json:"name"`
	Label         string         `json:"label"`
	LabelEN       *string        `json:"label_en"`
	Level         int            `json:"level"`
	Position      *int           `json:"position"`
	GroupName     *string        `json:"group_name"`
	Pictures      datatypes.JSON `json:"pictures"`
	Links         datatypes.JSON `json:"links"`
	ParentID      *uint          `json:"parent_id"`
	ParentPattern *int           `json:"parent_pattern"`
}

// OptionsAtLevel lists every coded node of the family at the target level,
// ordered by parent pattern, position and code.
func (s *Store) OptionsAtLevel(ctx context.Context, familyID uint, level int) ([]OptionNode, error) {
	var rows []OptionNode
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT
			n.id, n.code, n.name, n.label, n.label_en, n.level, n.position,
			n.group_name, n.pictures, n.links,
			parent.id AS parent_id, parent.pattern AS parent_pattern
		FROM nodes n
		INNER JOIN node_paths p ON n.id = p.descendant_id
		LEFT JOIN nodes parent ON n.parent_id = parent.id
		WHERE n.level = ?
		  AND n.code IS NOT NULL
		  AND p.ancestor_id = ?
		ORDER BY parent.pattern, n.position, n.code`, level, familyID).Scan(&rows).Error
	return rows, err
}

// HasGroupMember reports whether any descendant of the given nodes carries
// the group name. One EXISTS query.
func (s *Store) HasGroupMember(ctx context.Context, nodeIDs []uint, groupName string) (bool, error) {
	if len(nodeIDs) == 0 {
		return false, nil
	}
	for _, chunk := range chunkIDs(nodeIDs, inChunkSize) {
		var hit int
		err := s.db.WithContext(ctx).Raw(`
			SELECT EXISTS (
				SELECT 1 FROM nodes n
				INNER JOIN node_paths p ON n.id = p.descendant_id
				WHERE p.ancestor_id IN ? AND n.group_name = ?)`, chunk, groupName).Scan(&hit).Error
		if err != nil {
			return false, err
		}
		if hit == 1 {
			return true, nil
		}
	}
	return false, nil
}

// ChildrenOfNodeID lists the coded children of a node, tunnelling through
// pattern containers so their children count as direct ones.
func (s *Store) ChildrenOfNodeID(ctx context.Context, parentID uint) ([]models.Node, error) {
	var children []models.Node
	err := s.db.WithContext(ctx).Raw(`
		WITH RECURSIVE children_recursive AS (
			SELECT n.* FROM nodes n WHERE n.parent_id = ?
			UNION ALL
			SELECT n.* FROM nodes n
			INNER JOIN children_recursive cr ON n.parent_id = cr.id
			WHERE cr.pattern IS NOT NULL AND cr.code IS NULL
		)
		SELECT * FROM children_recursive
		WHERE code IS NOT NULL
		ORDER BY position, code`, parentID).Scan(&children).Error
	return children, err
}

// ChildrenOfCode resolves the first node with the code and lists its coded
// children the same way.
func (s *Store) ChildrenOfCode(ctx context.Context, code string) ([]models.Node, error) {
	node, err := s.NodeByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.ChildrenOfNodeID(ctx, node.ID)
}

// DescendantsWithCodeAtLevel finds nodes carrying the code at the level
// that hang below any of the frontier nodes. Used by the decoder walk.
func (s *Store) DescendantsWithCodeAtLevel(ctx context.Context, frontierIDs []uint, code string, level int) ([]models.Node, error) {
	if len(frontierIDs) == 0 {
		return nil, nil
	}
	var out []models.Node
	for _, chunk := range chunkIDs(frontierIDs, inChunkSize) {
		var part []models.Node
		err := s.db.WithContext(ctx).Raw(`
			SELECT DISTINCT n.*
			FROM nodes n
			INNER JOIN node_paths p ON n.id = p.descendant_id
			WHERE p.ancestor_id IN ?
			  AND n.code = ?
			  AND n.level = ?
			ORDER BY n.id`, chunk, code, level).Scan(&part).Error
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return dedupeNodesByID(out), nil
}

// CodedDescendantsAtLevel finds every coded node at the level below the
// frontier. Used by the wildcard decoder to advance across a whole level.
func (s *Store) CodedDescendantsAtLevel(ctx context.Context, frontierIDs []uint, level int) ([]models.Node, error) {
	if len(frontierIDs) == 0 {
		return nil, nil
	}
	var out []models.Node
	for _, chunk := range chunkIDs(frontierIDs, inChunkSize) {
		var part []models.Node
		err := s.db.WithContext(ctx).Raw(`
			SELECT DISTINCT n.*
			FROM nodes n
			INNER JOIN node_paths p ON n.id = p.descendant_id
			WHERE p.ancestor_id IN ?
			  AND n.code IS NOT NULL
			  AND n.level = ?
			ORDER BY n.code, n.id`, chunk, level).Scan(&part).Error
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return dedupeNodesByID(out), nil
}

func dedupeNodesByID(nodes []models.Node) []models.Node {
	seen := make(map[uint]struct{}, len(nodes))
	out := nodes[:0]
	for _, n := range nodes {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	return out
}

// NodesByCodeLevel lists every node with the code at the level, optionally
// restricted to one family.
func (s *Store) NodesByCodeLevel(ctx context.Context, code string, level int, familyCode string) ([]models.Node, error) {
	var nodes []models.Node
	if familyCode == "" {
		err := s.db.WithContext(ctx).
			Where("code = ? AND level = ?", code, level).
			Order("id").
			Find(&nodes).Error
		return nodes, err
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT n.* FROM nodes n
		WHERE n.code = ? AND n.level = ?
		  AND EXISTS (
			SELECT 1 FROM node_paths p
			INNER JOIN nodes family ON family.id = p.ancestor_id
			WHERE p.descendant_id = n.id AND family.code = ? AND family.level = 0
		  )
		ORDER BY n.id`, code, level, familyCode).Scan(&nodes).Error
	return nodes, err
}

// NodeIDsByCodeLevel lists every node id carrying the code at the level,
// forest wide, ordered by id.
func (s *Store) NodeIDsByCodeLevel(ctx context.Context, code string, level int) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.Node{}).
		Where("code = ? AND level = ?", code, level).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// SuggestCodes completes a partial code against its level inside a family.
func (s *Store) SuggestCodes(ctx context.Context, partial, familyCode string, level, limit int) ([]string, error) {
	var codes []string
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT n.code
		FROM nodes n
		INNER JOIN node_paths p ON n.id = p.descendant_id
		INNER JOIN nodes family ON p.ancestor_id = family.id
		WHERE family.code = ?
		  AND family.level = 0
		  AND n.level = ?
		  AND n.code IS NOT NULL
		  AND n.code LIKE ?
		ORDER BY n.code
		LIMIT ?`, familyCode, level, partial+"%", limit).Scan(&codes).Error
	return codes, err
}

// CodeCountAt counts nodes with the code at a level of a family. With a
// parent id only that parent's subtree is searched.
func (s *Store) CodeCountAt(ctx context.Context, code, familyCode string, level int, parentID *uint) (int64, error) {
	var count int64
	if parentID != nil {
		err := s.db.WithContext(ctx).Raw(`
			SELECT COUNT(*) FROM nodes n
			INNER JOIN node_paths p ON n.id = p.descendant_id
			WHERE p.ancestor_id = ?
			  AND n.code = ?
			  AND n.level = ?`, *parentID, code, level).Scan(&count).Error
		return count, err
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) FROM nodes n
		INNER JOIN node_paths p ON n.id = p.descendant_id
		INNER JOIN nodes family ON p.ancestor_id = family.id
		WHERE family.code = ?
		  AND family.level = 0
		  AND n.code = ?
		  AND n.level = ?`, familyCode, code, level).Scan(&count).Error
	return count, err
}

// AutocompleteEntry groups every node sharing a code and level.
type AutocompleteEntry struct {
	Code    string  `json:"code"`
	Label   *string `json:"label"`
	LabelEN *string `json:"label_en"`
	Level   int     `json:"level"`
	IDs     []uint  `json:"ids"`
}

// Autocomplete searches codes and labels, grouping identical codes per
// level and collecting all their ids.
func (s *Store) Autocomplete(ctx context.Context, level *int, search, familyCode string, limit int) ([]AutocompleteEntry, error) {
	type row struct {
		Code    string
		Label   *string
		LabelEN *string
		Level   int
		IDs     string
	}

	query := `
		SELECT n.code, n.label, n.label_en, n.level, GROUP_CONCAT(n.id) AS ids
		FROM nodes n`
	var args []any
	where := " WHERE n.code IS NOT NULL"
	if familyCode != "" {
		query += `
		INNER JOIN node_paths p ON n.id = p.descendant_id
		INNER JOIN nodes fam ON p.ancestor_id = fam.id`
		where += " AND fam.code = ? AND fam.level = 0"
		args = append(args, familyCode)
	}
	if level != nil {
		where += " AND n.level = ?"
		args = append(args, *level)
	}
	if search != "" {
		where += " AND (n.code LIKE ? OR n.label LIKE ? OR n.label_en LIKE ?)"
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern, pattern)
	}
	query += where + " GROUP BY n.code, n.level ORDER BY n.code LIMIT ?"
	args = append(args, limit)

	var rows []row
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]AutocompleteEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, AutocompleteEntry{
			Code:    r.Code,
			Label:   r.Label,
			LabelEN: r.LabelEN,
			Level:   r.Level,
			IDs:     parseIDList(r.IDs),
		})
	}
	return entries, nil
}

func parseIDList(concat string) []uint {
	if concat == "" {
		return []uint{}
	}
	var ids []uint
	start := 0
	push := func(tok string) {
		var id uint
		if _, err := fmt.Sscanf(tok, "%d", &id); err == nil {
			ids = append(ids, id)
		}
	}
	for i := 0; i < len(concat); i++ {
		if concat[i] == ',' {
			push(concat[start:i])
			start = i + 1
		}
	}
	push(concat[start:])
	return ids
}

// SearchQuery filters for AdvancedSearch. Pattern matches the exact code
// length; Prefix and Postfix are uppercased before matching.
type SearchQuery struct {
	Level   int
	Pattern *int
	Prefix  string
	Postfix string
	Label   string
	Family  string
}

// SearchRow is one AdvancedSearch hit.
type SearchRow struct {
	ID        uint    `json:"id"`
	Code      string  `json:"code"`
	Label     string  `json:"label"`
	LabelEN   *string `json:"label_en"`
	Name      string  `json:"name"`
	GroupName *string `json:"group_name"`
	Position  *int    `json:"position"`
	Pattern   *int    `json:"pattern"`
}

// AdvancedSearch runs the level-scoped search with optional code shape and
// label filters.
func (s *Store) AdvancedSearch(ctx context.Context, q SearchQuery) ([]SearchRow, error) {
	query := `
		SELECT DISTINCT n.id, n.code, n.label, n.label_en, n.name, n.group_name, n.position, n.pattern
		FROM nodes n
		WHERE n.level = ? AND n.code IS NOT NULL`
	args := []any{q.Level}

	if q.Pattern != nil {
		query += " AND LENGTH(n.code) = ?"
		args = append(args, *q.Pattern)
	}
	if q.Prefix != "" {
		query += " AND n.code LIKE ?"
		args = append(args, strings.ToUpper(q.Prefix)+"%")
	}
	if q.Postfix != "" {
		query += " AND n.code LIKE ?"
		args = append(args, "%"+strings.ToUpper(q.Postfix))
	}
	if q.Label != "" {
		query += " AND (n.label LIKE ? OR n.label_en LIKE ?)"
		pattern := "%" + q.Label + "%"
		args = append(args, pattern, pattern)
	}
	if q.Family != "" {
		query += `
		AND n.id IN (
			SELECT DISTINCT np.descendant_id
			FROM node_paths np
			INNER JOIN nodes family ON family.id = np.ancestor_id
			WHERE family.code = ? AND family.level = 0
		)`
		args = append(args, strings.ToUpper(q.Family))
	}
	query += " ORDER BY n.code"

	var rows []SearchRow
	err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error
	return rows, err
}

// CodeOccurrence describes where a code appears: one family and level, the
// deduplicated metadata and the node count.
type CodeOccurrence struct {
	Family       string   `json:"family"`
	Level        int      `json:"level"`
	Names        []string `json:"names"`
	LabelsDE     []string `json:"labels_de"`
	LabelsEN     []string `json:"labels_en"`
	NodeCount    int      `json:"node_count"`
	SampleNodeID *uint    `json:"sample_node_id,omitempty"`
}

// SearchCodeOccurrences finds every occurrence of a code across the whole
// forest, grouped by family and level.
func (s *Store) SearchCodeOccurrences(ctx context.Context, code string) ([]CodeOccurrence, error) {
	type row struct {
		ID         uint
		Code       string
		Name       string
		Label      string
		LabelEN    *string
		Level      int
		FamilyCode string
	}
	var rows []row
	err := s.db.WithContext(ctx).Raw(`
		SELECT n.id, n.code, n.name, n.label, n.label_en, n.level, family.code AS family_code
		FROM nodes n
		INNER JOIN node_paths np ON n.id = np.descendant_id
		INNER JOIN nodes family ON np.ancestor_id = family.id
		WHERE n.code = ?
		  AND family.level = 0
		  AND family.code IS NOT NULL
		ORDER BY family.code, n.level, n.id`, code).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	type key struct {
		family string
		level  int
	}
	type agg struct {
		names    map[string]struct{}
		labelsDE map[string]struct{}
		labelsEN map[string]struct{}
		ids      []uint
	}
	groups := make(map[key]*agg)
	var order []key
	for _, r := range rows {
		k := key{family: r.FamilyCode, level: r.Level}
		g, ok := groups[k]
		if !ok {
			g = &agg{
				names:    map[string]struct{}{},
				labelsDE: map[string]struct{}{},
				labelsEN: map[string]struct{}{},
			}
			groups[k] = g
			order = append(order, k)
		}
		if r.Name != "" {
			g.names[r.Name] = struct{}{}
		}
		if r.Label != "" {
			g.labelsDE[r.Label] = struct{}{}
		}
		if r.LabelEN != nil && *r.LabelEN != "" {
			g.labelsEN[*r.LabelEN] = struct{}{}
		}
		g.ids = append(g.ids, r.ID)
	}

	occurrences := make([]CodeOccurrence, 0, len(order))
	for _, k := range order {
		g := groups[k]
		occ := CodeOccurrence{
			Family:    k.family,
			Level:     k.level,
			Names:     sortedKeys(g.names),
			LabelsDE:  sortedKeys(g.labelsDE),
			LabelsEN:  sortedKeys(g.labelsEN),
			NodeCount: len(g.ids),
		}
		if len(g.ids) > 0 {
			id := g.ids[0]
			occ.SampleNodeID = &id
		}
		occurrences = append(occurrences, occ)
	}
	return occurrences, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FindNodeIDByPath disambiguates a (code, level) pair by walking the given
// parent codes level by level from the family root.
func (s *Store) FindNodeIDByPath(ctx context.Context, familyCode string, parentCodes []string, code string, level int) (*models.Node, error) {
	family, err := s.FamilyByCode(ctx, familyCode)
	if err != nil {
		return nil, err
	}

	parentID := family.ID
	for i, parentCode := range parentCodes {
		var next models.Node
		err := s.db.WithContext(ctx).
			Where("parent_id = ? AND code = ? AND level = ?", parentID, parentCode, i+1).
			Order("id").
			First(&next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.New(fault.NotFound,
				"path broken at level %d: no child %q under node %d", i+1, parentCode, parentID)
		}
		if err != nil {
			return nil, err
		}
		parentID = next.ID
	}

	var node models.Node
	err = s.db.WithContext(ctx).
		Where("parent_id = ? AND code = ? AND level = ?", parentID, code, level).
		Order("id").
		First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.New(fault.NotFound,
			"no node %q at level %d under the given path", code, level)
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// LeafNode carries the fields derived-group inference needs.
type LeafNode struct {
	ID        uint    `json:"id"`
	GroupName *string `json:"group_name"`
}

// GroupedLeaves lists the family's leaf nodes that carry a group name. A
// leaf is a node that is nobody's parent.
func (s *Store) GroupedLeaves(ctx context.Context, familyID uint) ([]LeafNode, error) {
	var leaves []LeafNode
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT n.id, n.group_name
		FROM nodes n
		INNER JOIN node_paths p ON n.id = p.descendant_id
		WHERE p.ancestor_id = ?
		  AND n.id NOT IN (SELECT DISTINCT parent_id FROM nodes WHERE parent_id IS NOT NULL)
		  AND n.group_name IS NOT NULL`, familyID).Scan(&leaves).Error
	return leaves, err
}

// NodeByFullTypecode finds the node whose stored full typecode matches.
func (s *Store) NodeByFullTypecode(ctx context.Context, full string) (*models.Node, error) {
	var node models.Node
	err := s.db.WithContext(ctx).
		Where("full_typecode = ?", full).
		Order("id").
		First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.New(fault.NotFound, "no node with full typecode %q", full)
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// NodesByCode lists every coded node carrying the given code, shallowest
// level first.
func (s *Store) NodesByCode(ctx context.Context, code string) ([]models.Node, error) {
	var nodes []models.Node
	err := s.db.WithContext(ctx).
		Where("code = ?", code).
		Order("level ASC, id ASC").
		Find(&nodes).Error
	return nodes, err
}

// FamiliesOfCode returns the distinct family codes whose trees contain the
// given code anywhere.
func (s *Store) FamiliesOfCode(ctx context.Context, code string) ([]string, error) {
	var families []string
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT family.code
		FROM nodes n
		INNER JOIN node_paths p ON n.id = p.descendant_id
		INNER JOIN nodes family ON p.ancestor_id = family.id
		WHERE n.code = ?
		  AND family.level = 0
		  AND family.code IS NOT NULL
		ORDER BY family.code`, code).Scan(&families).Error
	return families, err
}

// FamiliesOfFullTypecode returns the distinct family codes whose trees
// contain a node with the given stored full typecode.
func (s *Store) FamiliesOfFullTypecode(ctx context.Context, full string) ([]string, error) {
	var families []string
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT family.code
		FROM nodes n
		INNER JOIN node_paths p ON n.id = p.descendant_id
		INNER JOIN nodes family ON p.ancestor_id = family.id
		WHERE n.full_typecode = ?
		  AND family.level = 0
		  AND family.code IS NOT NULL
		ORDER BY family.code`, full).Scan(&families).Error
	return families, err
}

// DescendantWithCodeAtLevel resolves a single descendant of ancestorID that
// carries the given code at the given level. Used by the decode path walk,
// which treats ambiguity as "pick any one".
func (s *Store) DescendantWithCodeAtLevel(ctx context.Context, ancestorID uint, code string, level int) (*models.Node, error) {
	var node models.Node
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT n.*
		FROM nodes n
		INNER JOIN node_paths p ON n.id = p.descendant_id
		WHERE p.ancestor_id = ?
		  AND n.code = ?
		  AND n.level = ?
		ORDER BY n.id
		LIMIT 1`, ancestorID, code, level).Scan(&node).Error
	if err != nil {
		return nil, err
	}
	if node.ID == 0 {
		return nil, fault.New(fault.NotFound, "no descendant of node %d with code %q at level %d", ancestorID, code, level)
	}
	return &node, nil
}

// FamilyNodesWithCodeAtOrAbove lists the family's nodes carrying the code at
// the given level or deeper. Wildcard checks use it to seed candidates from
// the last fixed code of a pattern: wildcards may stretch a path, so the code
// can sit deeper than its slot in the input, never shallower.
func (s *Store) FamilyNodesWithCodeAtOrAbove(ctx context.Context, familyID uint, code string, minLevel int) ([]models.Node, error) {
	var nodes []models.Node
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT n.*
		FROM nodes n
		INNER JOIN node_paths p ON n.id = p.descendant_id
		WHERE p.ancestor_id = ?
		  AND n.code = ?
		  AND n.level >= ?
		ORDER BY n.level, n.id`, familyID, code, minLevel).Scan(&nodes).Error
	return nodes, err
}

// AncestorStep is one coded hop on the way down to a node.
type AncestorStep struct {
	Code  string `json:"code"`
	Level int    `json:"level"`
}

// CodedAncestorSteps returns the coded ancestors of a node below the family
// root, including the node itself, ordered root-outward.
func (s *Store) CodedAncestorSteps(ctx context.Context, nodeID uint) ([]AncestorStep, error) {
	var steps []AncestorStep
	err := s.db.WithContext(ctx).Raw(`
		SELECT anc.code, anc.level
		FROM node_paths p
		INNER JOIN nodes anc ON p.ancestor_id = anc.id
		WHERE p.descendant_id = ?
		  AND anc.level > 0
		  AND anc.code IS NOT NULL
		ORDER BY anc.level`, nodeID).Scan(&steps).Error
	return steps, err
}
