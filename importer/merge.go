package importer

import (
	"context"
	"fmt"
	"sort"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
	"github.com/oxhq/varix/store"
)

// LabelDiff is a unified diff of one node's label text.
type LabelDiff struct {
	Path string `json:"path"`
	Diff string `json:"diff"`
}

// FamilyDiff describes how an incoming family differs from the stored
// one. Removed nodes are only in the database; a merge would keep them.
type FamilyDiff struct {
	FamilyCode string      `json:"family_code"`
	New        bool        `json:"new,omitempty"`
	Added      []string    `json:"added,omitempty"`
	Removed    []string    `json:"removed,omitempty"`
	LabelDiffs []LabelDiff `json:"label_diffs,omitempty"`
}

// MergeResult is the full preview of merging a tree file into the forest.
type MergeResult struct {
	Families     []FamilyDiff `json:"families"`
	AddedCount   int          `json:"added_count"`
	RemovedCount int          `json:"removed_count"`
	ChangedCount int          `json:"changed_count"`
}

// MergePreview compares an incoming tree file against the stored forest
// without writing anything. Nodes are matched by their code path; pattern
// containers by pattern length and position, as codeless nodes have no
// other identity.
func (im *Importer) MergePreview(ctx context.Context, jsonPath string) (*MergeResult, error) {
	families, err := LoadTree(jsonPath)
	if err != nil {
		return nil, err
	}

	st := store.New(im.db)
	result := &MergeResult{}
	for i := range families {
		family := &families[i]
		if family.Code == nil || *family.Code == "" {
			return nil, fault.New(fault.Validation, "incoming family %d has no code", i)
		}

		incoming := map[string]string{}
		flattenTree([]TreeNode{*family}, "", incoming)

		diff := FamilyDiff{FamilyCode: *family.Code}
		stored, err := st.FamilyByCode(ctx, *family.Code)
		if fault.IsKind(err, fault.NotFound) {
			diff.New = true
			diff.Added = sortedKeys(incoming)
			result.AddedCount += len(diff.Added)
			result.Families = append(result.Families, diff)
			continue
		}
		if err != nil {
			return nil, err
		}

		existing, err := im.storedSubtree(ctx, stored.ID)
		if err != nil {
			return nil, err
		}

		for _, path := range sortedKeys(incoming) {
			storedLabel, ok := existing[path]
			if !ok {
				diff.Added = append(diff.Added, path)
				continue
			}
			if text := unifiedLabelDiff(storedLabel, incoming[path]); text != "" {
				diff.LabelDiffs = append(diff.LabelDiffs, LabelDiff{Path: path, Diff: text})
			}
		}
		for _, path := range sortedKeys(existing) {
			if _, ok := incoming[path]; !ok {
				diff.Removed = append(diff.Removed, path)
			}
		}

		result.AddedCount += len(diff.Added)
		result.RemovedCount += len(diff.Removed)
		result.ChangedCount += len(diff.LabelDiffs)
		result.Families = append(result.Families, diff)
	}
	return result, nil
}

// storedSubtree indexes a family's stored nodes by identifier path.
func (im *Importer) storedSubtree(ctx context.Context, familyID uint) (map[string]string, error) {
	var rows []models.Node
	err := im.db.WithContext(ctx).
		Joins("JOIN node_paths ON node_paths.descendant_id = nodes.id").
		Where("node_paths.ancestor_id = ?", familyID).
		Order("nodes.level, nodes.position, nodes.id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	children := map[uint][]*models.Node{}
	var root *models.Node
	for i := range rows {
		node := &rows[i]
		if node.ID == familyID {
			root = node
			continue
		}
		if node.ParentID != nil {
			children[*node.ParentID] = append(children[*node.ParentID], node)
		}
	}
	if root == nil {
		return nil, fault.New(fault.NotFound, "family %d has no closure rows", familyID)
	}

	index := map[string]string{}
	var walk func(node *models.Node, prefix string)
	walk = func(node *models.Node, prefix string) {
		path := nodeIdentifier(node.Code, node.Pattern, node.Position)
		if prefix != "" {
			path = prefix + "/" + path
		}
		index[path] = node.Label
		for _, child := range children[node.ID] {
			walk(child, path)
		}
	}
	walk(root, "")
	return index, nil
}

func flattenTree(nodes []TreeNode, prefix string, out map[string]string) {
	for i := range nodes {
		node := &nodes[i]
		path := nodeIdentifier(node.Code, node.Pattern, node.Position)
		if prefix != "" {
			path = prefix + "/" + path
		}
		out[path] = node.Label
		flattenTree(node.Children, path, out)
	}
}

func nodeIdentifier(code *string, pattern, position *int) string {
	if code != nil && *code != "" {
		return "code:" + *code
	}
	if pattern != nil {
		pos := 0
		if position != nil {
			pos = *position
		}
		return fmt.Sprintf("pattern:%d:%d", *pattern, pos)
	}
	return "unnamed"
}

func unifiedLabelDiff(stored, incoming string) string {
	if stored == incoming {
		return ""
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(stored),
		B:        difflib.SplitLines(incoming),
		FromFile: "stored",
		ToFile:   "incoming",
		Context:  2,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return fmt.Sprintf("--- stored\n+++ incoming\n@@ changes @@\n%d bytes -> %d bytes",
			len(stored), len(incoming))
	}
	return text
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
