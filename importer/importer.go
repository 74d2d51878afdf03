// Package importer loads exchange-format JSON into the variant forest:
// hierarchical family trees, parsed label segments, catalogue dates, KMAT
// references and sub-segment definitions. The closure table is rebuilt
// after a tree import rather than maintained incrementally.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oxhq/varix/models"
	"github.com/oxhq/varix/store"
)

// TreeNode is one node of the exchange tree. Both a top-level array of
// families and a {"children": [...]} wrapper are accepted.
type TreeNode struct {
	Code               *string         `json:"code"`
	Name               string          `json:"name"`
	Label              string          `json:"label"`
	LabelEN            *string         `json:"label_en"`
	LabelENDashed      *string         `json:"label-en"`
	Position           *int            `json:"position"`
	Pattern            *int            `json:"pattern"`
	FullTypecode       *string         `json:"full_typecode"`
	IsIntermediateCode bool            `json:"is_intermediate_code"`
	Group              *string         `json:"group"`
	Pictures           json.RawMessage `json:"pictures"`
	Links              json.RawMessage `json:"links"`
	DateInfo           *DateInfo       `json:"date_info"`
	Children           []TreeNode      `json:"children"`
}

// labelEN returns the English label. Older exports write "label-en",
// newer ones "label_en".
func (n *TreeNode) labelEN() *string {
	if n.LabelENDashed != nil {
		return n.LabelENDashed
	}
	return n.LabelEN
}

// DateInfo carries the catalogue date ranges of one node.
type DateInfo struct {
	TypecodeCount    int        `json:"typecode_count"`
	CreationDate     *DateRange `json:"creation_date"`
	ModificationDate *DateRange `json:"modification_date"`
}

// DateRange is an earliest/latest pair of date strings.
type DateRange struct {
	Earliest *string `json:"earliest"`
	Latest   *string `json:"latest"`
}

// Options control what an import run touches.
type Options struct {
	// IncludeDates also loads date_info blocks into node_dates.
	IncludeDates bool
	// Recreate clears all product data first. User accounts survive.
	Recreate bool
}

// Stats counts what one run imported.
type Stats struct {
	NodesImported        int   `json:"nodes_imported"`
	ProductFamilies      int   `json:"product_families"`
	PatternContainers    int   `json:"pattern_containers"`
	CodeNodes            int   `json:"code_nodes"`
	LeafProducts         int   `json:"leaf_products"`
	IntermediateProducts int   `json:"intermediate_products"`
	LabelSegments        int   `json:"label_segments"`
	DatesImported        int   `json:"dates_imported"`
	PathsCreated         int64 `json:"paths_created"`
}

// Importer writes exchange data into the forest.
type Importer struct {
	db  *gorm.DB
	log *zap.Logger
}

// New returns an Importer on an already migrated database.
func New(db *gorm.DB, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{db: db, log: log}
}

// LoadTree reads a tree file into its family list.
func LoadTree(jsonPath string) ([]TreeNode, error) {
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("read tree file: %w", err)
	}
	return decodeTree(raw)
}

func decodeTree(raw []byte) ([]TreeNode, error) {
	var families []TreeNode
	if err := json.Unmarshal(raw, &families); err == nil {
		return families, nil
	}
	var wrapper struct {
		Children []TreeNode `json:"children"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.Children == nil {
		return nil, fmt.Errorf("unexpected tree format, want an array or an object with children")
	}
	return wrapper.Children, nil
}

// Import walks the tree file, inserts every node with its label segments
// and optional dates, then rebuilds the closure table.
func (im *Importer) Import(ctx context.Context, jsonPath string, opts Options) (*Stats, error) {
	families, err := LoadTree(jsonPath)
	if err != nil {
		return nil, err
	}
	im.log.Info("tree loaded", zap.String("file", jsonPath), zap.Int("families", len(families)))

	stats := &Stats{}
	err = im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if opts.Recreate {
			if err := wipeProductData(tx); err != nil {
				return err
			}
			im.log.Info("product data cleared, user accounts preserved")
		}
		for i := range families {
			if _, err := im.importNode(tx, &families[i], nil, -1, opts, stats); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := store.New(im.db).RebuildClosure(ctx); err != nil {
		return nil, fmt.Errorf("rebuild closure: %w", err)
	}
	if err := im.db.WithContext(ctx).Model(&models.NodePath{}).Count(&stats.PathsCreated).Error; err != nil {
		return nil, err
	}

	im.log.Info("import finished",
		zap.Int("nodes", stats.NodesImported),
		zap.Int("families", stats.ProductFamilies),
		zap.Int("label_segments", stats.LabelSegments),
		zap.Int64("paths", stats.PathsCreated))
	return stats, nil
}

func (im *Importer) importNode(tx *gorm.DB, node *TreeNode, parentID *uint, parentLevel int, opts Options, stats *Stats) (uint, error) {
	isPattern := node.Pattern != nil && node.Code == nil

	// Pattern containers are transparent: they keep their parent's level
	// so the levels of real options stay contiguous.
	level := parentLevel + 1
	if isPattern {
		level = parentLevel
	}

	row := models.Node{
		ParentID:           parentID,
		Level:              level,
		Code:               node.Code,
		Name:               node.Name,
		Label:              node.Label,
		LabelEN:            node.labelEN(),
		Position:           node.Position,
		Pattern:            node.Pattern,
		FullTypecode:       node.FullTypecode,
		IsIntermediateCode: node.IsIntermediateCode,
		GroupName:          node.Group,
		Pictures:           jsonArrayOrEmpty(node.Pictures),
		Links:              jsonArrayOrEmpty(node.Links),
	}
	if err := tx.Create(&row).Error; err != nil {
		return 0, fmt.Errorf("insert node %q: %w", row.CodeString(), err)
	}
	stats.NodesImported++

	labelEN := node.labelEN()
	if node.Label != "" || labelEN != nil {
		segments := MergeLabelSegments(row.ID, row.CodeString(), node.Label, labelEN)
		if len(segments) > 0 {
			if err := tx.Create(&segments).Error; err != nil {
				return 0, fmt.Errorf("insert label segments for node %d: %w", row.ID, err)
			}
			stats.LabelSegments += len(segments)
		}
	}

	switch {
	case parentID == nil:
		stats.ProductFamilies++
	case isPattern:
		stats.PatternContainers++
	case node.Code != nil:
		stats.CodeNodes++
		if node.FullTypecode != nil {
			if node.IsIntermediateCode {
				stats.IntermediateProducts++
			} else {
				stats.LeafProducts++
			}
		}
	}

	if opts.IncludeDates && node.DateInfo != nil {
		if err := tx.Create(nodeDates(row.ID, node.DateInfo)).Error; err != nil {
			return 0, fmt.Errorf("insert dates for node %d: %w", row.ID, err)
		}
		stats.DatesImported++
	}

	for i := range node.Children {
		if _, err := im.importNode(tx, &node.Children[i], &row.ID, level, opts, stats); err != nil {
			return 0, err
		}
	}
	return row.ID, nil
}

func nodeDates(nodeID uint, info *DateInfo) *models.NodeDates {
	dates := &models.NodeDates{NodeID: nodeID, TypecodeCount: info.TypecodeCount}
	if info.CreationDate != nil {
		dates.CreationEarliest = info.CreationDate.Earliest
		dates.CreationLatest = info.CreationDate.Latest
	}
	if info.ModificationDate != nil {
		dates.ModificationEarliest = info.ModificationDate.Earliest
		dates.ModificationLatest = info.ModificationDate.Latest
	}
	return dates
}

func jsonArrayOrEmpty(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 || string(raw) == "null" {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}

// wipeProductData clears every product table. Users stay untouched so a
// re-import never locks the admins out.
func wipeProductData(tx *gorm.DB) error {
	tables := []string{
		"node_labels",
		"node_dates",
		"constraint_conditions",
		"constraint_codes",
		"constraints",
		"product_successors",
		"kmat_references",
		"segment_subsegments",
		"node_paths",
		"nodes",
	}
	for _, table := range tables {
		if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
