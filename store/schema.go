package store

import (
	"context"

	"github.com/oxhq/varix/models"
)

// TypecodedNodes lists the nodes of a family carrying a full typecode,
// optionally restricted to one group. Inner nodes count, not only leaves.
func (s *Store) TypecodedNodes(ctx context.Context, familyID uint, groupName *string) ([]models.Node, error) {
	query := `
		SELECT n.* FROM nodes n
		INNER JOIN node_paths p ON p.descendant_id = n.id
		WHERE p.ancestor_id = ?
		  AND n.full_typecode IS NOT NULL`
	args := []any{familyID}
	if groupName != nil {
		query += " AND n.group_name = ?"
		args = append(args, *groupName)
	}
	query += " ORDER BY n.id"

	var nodes []models.Node
	err := s.db.WithContext(ctx).Raw(query, args...).Scan(&nodes).Error
	return nodes, err
}

// AncestorNameAt returns the name of the path node above (or at) the
// given node that carries the code at the level. Nil when the path has no
// such node or it is unnamed.
func (s *Store) AncestorNameAt(ctx context.Context, nodeID uint, level int, code string) (*string, error) {
	var rows []struct {
		Name *string
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT n.name
		FROM node_paths p
		INNER JOIN nodes n ON p.ancestor_id = n.id
		WHERE p.descendant_id = ?
		  AND n.level = ?
		  AND n.code = ?
		LIMIT 1`, nodeID, level, code).Scan(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	if rows[0].Name == nil || *rows[0].Name == "" {
		return nil, nil
	}
	return rows[0].Name, nil
}
