package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/oxhq/varix/models"
)

// maxUngroupedSchemas caps the schema listing for families without group
// names; anything noisier renders empty.
const maxUngroupedSchemas = 5

// SchemaPattern is one distinct typecode shape of a family: the segment
// lengths plus an example code and the names along its path.
type SchemaPattern struct {
	Pattern         []int     `json:"pattern"`
	PatternString   string    `json:"pattern_string"`
	ExampleCode     string    `json:"example_code"`
	SegmentNames    []*string `json:"segment_names"`
	SegmentExamples []string  `json:"segment_examples"`
	Count           int       `json:"count"`
}

// GroupSchema collects the patterns of one group name.
type GroupSchema struct {
	GroupName string          `json:"group_name"`
	Patterns  []SchemaPattern `json:"patterns"`
}

// FamilySchema is the schema overview of a product family.
type FamilySchema struct {
	FamilyCode    string        `json:"family_code"`
	FamilyLabel   string        `json:"family_label"`
	HasGroupNames bool          `json:"has_group_names"`
	Groups        []GroupSchema `json:"groups"`
}

// FamilySchemaVisualization analyses the typecode shapes of a family.
// Families with group names get one schema block per group, typecodes
// without a group ignored. Families without groups get a single block
// over everything, shown only while the shapes stay readable.
func (e *Engine) FamilySchemaVisualization(ctx context.Context, familyCode string) (*FamilySchema, error) {
	family, err := e.store.FamilyByCode(ctx, familyCode)
	if err != nil {
		return nil, err
	}

	groupNames, err := e.store.FamilyGroups(ctx, familyCode)
	if err != nil {
		return nil, err
	}
	hasGroups := len(groupNames) > 0

	groups := []GroupSchema{}
	if hasGroups {
		for _, name := range groupNames {
			nodes, err := e.store.TypecodedNodes(ctx, family.ID, &name)
			if err != nil {
				return nil, err
			}
			patterns, err := e.schemaPatterns(ctx, nodes)
			if err != nil {
				return nil, err
			}
			if len(patterns) > 0 {
				groups = append(groups, GroupSchema{GroupName: name, Patterns: patterns})
			}
		}
	} else {
		nodes, err := e.store.TypecodedNodes(ctx, family.ID, nil)
		if err != nil {
			return nil, err
		}
		patterns, err := e.schemaPatterns(ctx, nodes)
		if err != nil {
			return nil, err
		}
		if len(patterns) <= maxUngroupedSchemas {
			groups = append(groups, GroupSchema{
				GroupName: fmt.Sprintf("Alle Typecodes (%s)", familyCode),
				Patterns:  patterns,
			})
		}
	}

	return &FamilySchema{
		FamilyCode:    family.CodeString(),
		FamilyLabel:   family.Label,
		HasGroupNames: hasGroups,
		Groups:        groups,
	}, nil
}

// schemaPatterns collapses the nodes onto their distinct segment length
// shapes. The first node seen per shape serves as its example.
func (e *Engine) schemaPatterns(ctx context.Context, nodes []models.Node) ([]SchemaPattern, error) {
	type example struct {
		full     string
		segments []string
		nodeID   uint
	}
	examples := map[string]example{}
	counts := map[string]int{}

	for _, n := range nodes {
		if n.FullTypecode == nil || *n.FullTypecode == "" {
			continue
		}
		segments := strings.Split(*n.FullTypecode, "-")
		lengths := make([]string, len(segments))
		for i, seg := range segments {
			lengths[i] = strconv.Itoa(len(seg))
		}
		key := strings.Join(lengths, "-")

		counts[key]++
		if _, ok := examples[key]; !ok {
			examples[key] = example{full: *n.FullTypecode, segments: segments, nodeID: n.ID}
		}
	}

	keys := make([]string, 0, len(examples))
	for key := range examples {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	patterns := make([]SchemaPattern, 0, len(keys))
	for _, key := range keys {
		ex := examples[key]
		lengths := make([]int, len(ex.segments))
		for i, seg := range ex.segments {
			lengths[i] = len(seg)
		}

		names, err := e.segmentNames(ctx, ex.nodeID, ex.segments)
		if err != nil {
			return nil, err
		}

		patterns = append(patterns, SchemaPattern{
			Pattern:         lengths,
			PatternString:   key,
			ExampleCode:     ex.full,
			SegmentNames:    names,
			SegmentExamples: ex.segments,
			Count:           counts[key],
		})
	}
	return patterns, nil
}

// segmentNames resolves each segment of an example typecode against the
// node's own path, level by level.
func (e *Engine) segmentNames(ctx context.Context, nodeID uint, segments []string) ([]*string, error) {
	names := make([]*string, 0, len(segments))
	for level, code := range segments {
		name, err := e.store.AncestorNameAt(ctx, nodeID, level, code)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}
