package store

import (
	"context"
)

// BulkOptionRow is one code group of a family level: duplicate nodes
// collapse onto their smallest id and the aggregate of their fields.
type BulkOptionRow struct {
	ID            uint    `json:"id"`
	Code          string  `json:"code"`
	Label         string  `json:"label"`
	LabelEN       *string `json:"label_en"`
	Name          string  `json:"name"`
	Level         int     `json:"level"`
	Position      *int    `json:"position"`
	GroupName     *string `json:"group_name"`
	Pattern       *int    `json:"pattern"`
	ParentPattern *int    `json:"parent_pattern"`
}

// BulkFilterCandidates lists the code groups of a family level. Group and
// name narrow the result in SQL; code criteria stay out of the query so
// callers can flag mismatches instead of dropping them.
func (s *Store) BulkFilterCandidates(ctx context.Context, level int, familyCode, groupName, nameSearch string) ([]BulkOptionRow, error) {
	query := `
		SELECT
			MIN(n.id) AS id,
			n.code,
			MIN(n.label) AS label,
			MIN(n.label_en) AS label_en,
			MIN(n.name) AS name,
			n.level,
			MIN(n.position) AS position,
			MIN(n.group_name) AS group_name,
			MIN(n.pattern) AS pattern,
			MIN(parent.pattern) AS parent_pattern
		FROM nodes n
		LEFT JOIN nodes parent ON parent.id = n.parent_id
		LEFT JOIN node_paths p ON p.descendant_id = n.id
		WHERE n.level = ?
		  AND n.code IS NOT NULL
		  AND EXISTS (
			SELECT 1 FROM nodes family
			WHERE family.code = ? AND family.level = 0 AND p.ancestor_id = family.id
		  )`
	args := []any{level, familyCode}

	if groupName != "" {
		query += " AND n.group_name = ?"
		args = append(args, groupName)
	}
	if nameSearch != "" {
		query += " AND n.name LIKE ?"
		args = append(args, "%"+nameSearch+"%")
	}
	query += " GROUP BY n.code, n.level ORDER BY position, n.code"

	var rows []BulkOptionRow
	err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error
	return rows, err
}

// AncestorCodesByLevel maps the coded proper ancestors of a node by level,
// the level 0 family included.
func (s *Store) AncestorCodesByLevel(ctx context.Context, nodeID uint) (map[int]string, error) {
	var rows []struct {
		Level int
		Code  string
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT anc.level, anc.code
		FROM node_paths p
		INNER JOIN nodes anc ON anc.id = p.ancestor_id
		WHERE p.descendant_id = ?
		  AND p.depth > 0
		  AND anc.code IS NOT NULL
		ORDER BY anc.level`, nodeID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	codes := make(map[int]string, len(rows))
	for _, row := range rows {
		codes[row.Level] = row.Code
	}
	return codes, nil
}
