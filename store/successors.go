package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
)

// severityOrder ranks warnings so critical beats warning beats info, with
// the newest entry winning inside a rank.
const severityOrder = `
	CASE ps.warning_severity
		WHEN 'critical' THEN 1
		WHEN 'warning' THEN 2
		ELSE 3
	END, ps.created_at DESC`

// activePick keeps only warnings that are switched on and already
// effective.
const activePick = `
	ps.show_warning = 1
	AND (ps.effective_date IS NULL OR date(ps.effective_date) <= date('now'))`

// SuccessorWarning is the resolved warning shown in the configurator,
// flattened with the target node's data.
type SuccessorWarning struct {
	ID                uint    `json:"id"`
	SourceNodeID      uint    `json:"source_node_id"`
	SourceCode        *string `json:"source_code,omitempty"`
	SourceLabel       *string `json:"source_label,omitempty"`
	SourceType        string  `json:"source_type"`
	TargetNodeID      *uint   `json:"target_node_id"`
	TargetFullCode    *string `json:"target_full_code"`
	TargetFamilyCode  *string `json:"target_family_code"`
	ReplacementType   string  `json:"replacement_type"`
	MigrationNote     string  `json:"migration_note"`
	MigrationNoteEN   *string `json:"migration_note_en"`
	WarningSeverity   string  `json:"warning_severity"`
	AllowOldSelection bool    `json:"allow_old_selection"`
	TargetCode        *string `json:"target_code"`
	TargetName        *string `json:"target_name"`
	TargetLabel       *string `json:"target_label"`
}

// ActiveNodeSuccessor returns the strongest active warning attached to one
// node, or nil when there is none.
func (s *Store) ActiveNodeSuccessor(ctx context.Context, nodeID uint) (*SuccessorWarning, error) {
	var rows []SuccessorWarning
	err := s.db.WithContext(ctx).Raw(`
		SELECT
			ps.id, ps.source_node_id, ps.source_type, ps.target_node_id,
			COALESCE(ps.target_full_code, target.full_typecode) AS target_full_code,
			ps.target_family_code, ps.replacement_type,
			ps.migration_note, ps.migration_note_en,
			ps.warning_severity, ps.allow_old_selection,
			target.code AS target_code,
			target.name AS target_name,
			target.label AS target_label
		FROM product_successors ps
		LEFT JOIN nodes target ON ps.target_node_id = target.id
		WHERE ps.source_node_id = ? AND `+activePick+`
		ORDER BY `+severityOrder+`
		LIMIT 1`, nodeID).Scan(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// ActiveProductSuccessor returns the strongest active warning across every
// node of a configured path, or nil when none fires.
func (s *Store) ActiveProductSuccessor(ctx context.Context, nodeIDs []uint) (*SuccessorWarning, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	var rows []SuccessorWarning
	err := s.db.WithContext(ctx).Raw(`
		SELECT
			ps.id, ps.source_node_id, ps.source_type, ps.target_node_id,
			source.code AS source_code,
			source.label AS source_label,
			COALESCE(ps.target_full_code, target.full_typecode) AS target_full_code,
			ps.target_family_code, ps.replacement_type,
			ps.migration_note, ps.migration_note_en,
			ps.warning_severity, ps.allow_old_selection,
			target.code AS target_code,
			target.name AS target_name,
			target.label AS target_label
		FROM product_successors ps
		INNER JOIN nodes source ON ps.source_node_id = source.id
		LEFT JOIN nodes target ON ps.target_node_id = target.id
		WHERE ps.source_node_id IN ? AND `+activePick+`
		ORDER BY `+severityOrder+`
		LIMIT 1`, nodeIDs).Scan(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// NodeIDByProductCode finds the node a configured product code points at,
// matching the full typecode first and the plain code as fallback. Nil
// when nothing matches.
func (s *Store) NodeIDByProductCode(ctx context.Context, code string) (*uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Raw(`
		SELECT id FROM nodes
		WHERE full_typecode = ? OR code = ?
		ORDER BY id
		LIMIT 1`, code, code).Scan(&ids).Error
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	return &ids[0], nil
}

// SuccessorAdminRow is one entry of the admin listing, enriched with the
// level-0 ancestors of both ends.
type SuccessorAdminRow struct {
	ID                uint       `json:"id"`
	SourceNodeID      uint       `json:"source_node_id"`
	SourceCode        *string    `json:"source_code"`
	SourceLabel       *string    `json:"source_label"`
	SourceTypecode    *string    `json:"source_typecode"`
	SourceLevel       *int       `json:"source_level"`
	SourceFamilyCode  *string    `json:"source_family_code"`
	SourceType        string     `json:"source_type"`
	TargetNodeID      *uint      `json:"target_node_id"`
	TargetCode        *string    `json:"target_code"`
	TargetLabel       *string    `json:"target_label"`
	TargetTypecode    *string    `json:"target_typecode"`
	TargetLevel       *int       `json:"target_level"`
	TargetFullCode    *string    `json:"target_full_code"`
	TargetFamilyCode  *string    `json:"target_family_code"`
	ReplacementType   string     `json:"replacement_type"`
	MigrationNote     string     `json:"migration_note"`
	MigrationNoteEN   *string    `json:"migration_note_en"`
	EffectiveDate     *time.Time `json:"effective_date"`
	ShowWarning       bool       `json:"show_warning"`
	AllowOldSelection bool       `json:"allow_old_selection"`
	WarningSeverity   string     `json:"warning_severity"`
	CreatedAt         time.Time  `json:"created_at"`
	CreatedBy         string     `json:"created_by"`
}

// AllSuccessors lists every successor link, newest first. The family codes
// come from the level-0 ancestor of each end.
func (s *Store) AllSuccessors(ctx context.Context) ([]SuccessorAdminRow, error) {
	var rows []SuccessorAdminRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT
			ps.id, ps.source_node_id, ps.source_type, ps.target_node_id,
			ps.target_full_code, ps.replacement_type,
			ps.migration_note, ps.migration_note_en, ps.effective_date,
			ps.show_warning, ps.allow_old_selection, ps.warning_severity,
			ps.created_at, ps.created_by,
			source.code AS source_code,
			source.label AS source_label,
			source.full_typecode AS source_typecode,
			source.level AS source_level,
			source_family.code AS source_family_code,
			target.code AS target_code,
			target.label AS target_label,
			target.full_typecode AS target_typecode,
			target.level AS target_level,
			target_family.code AS target_family_code
		FROM product_successors ps
		INNER JOIN nodes source ON ps.source_node_id = source.id
		LEFT JOIN node_paths sp ON sp.descendant_id = source.id
		LEFT JOIN nodes source_family ON source_family.id = sp.ancestor_id AND source_family.level = 0
		LEFT JOIN nodes target ON ps.target_node_id = target.id
		LEFT JOIN node_paths tp ON tp.descendant_id = target.id
		LEFT JOIN nodes target_family ON target_family.id = tp.ancestor_id AND target_family.level = 0
		WHERE (sp.ancestor_id IS NULL OR source_family.id IS NOT NULL)
		  AND (ps.target_node_id IS NULL OR tp.ancestor_id IS NULL OR target_family.id IS NOT NULL)
		GROUP BY ps.id
		ORDER BY ps.created_at DESC, ps.id DESC`).Scan(&rows).Error
	return rows, err
}

// SuccessorInput carries the writable successor fields.
type SuccessorInput struct {
	SourceNodeID      uint       `json:"source_node_id"`
	SourceType        string     `json:"source_type"`
	TargetNodeID      *uint      `json:"target_node_id"`
	TargetFullCode    *string    `json:"target_full_code"`
	ReplacementType   string     `json:"replacement_type"`
	MigrationNote     string     `json:"migration_note"`
	MigrationNoteEN   *string    `json:"migration_note_en"`
	EffectiveDate     *time.Time `json:"effective_date"`
	ShowWarning       bool       `json:"show_warning"`
	AllowOldSelection bool       `json:"allow_old_selection"`
	WarningSeverity   string     `json:"warning_severity"`
}

// CreateSuccessor inserts a successor link. The target family code is
// derived from the target node's level-0 ancestor when a target node is
// given.
func (s *Store) CreateSuccessor(ctx context.Context, in SuccessorInput, createdBy string) (*models.ProductSuccessor, error) {
	if in.TargetNodeID == nil && in.TargetFullCode == nil {
		return nil, fault.New(fault.Validation,
			"either target_node_id or target_full_code must be provided")
	}

	var successor models.ProductSuccessor
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sourceCount int64
		if err := tx.Model(&models.Node{}).Where("id = ?", in.SourceNodeID).Count(&sourceCount).Error; err != nil {
			return err
		}
		if sourceCount == 0 {
			return fault.New(fault.NotFound, "source node not found")
		}

		var targetFamilyCode *string
		if in.TargetNodeID != nil {
			var targetCount int64
			if err := tx.Model(&models.Node{}).Where("id = ?", *in.TargetNodeID).Count(&targetCount).Error; err != nil {
				return err
			}
			if targetCount == 0 {
				return fault.New(fault.NotFound, "target node not found")
			}
			var familyCode *string
			err := tx.Raw(`
				SELECT n.code FROM nodes n
				INNER JOIN node_paths np ON np.ancestor_id = n.id
				WHERE np.descendant_id = ? AND n.level = 0
				LIMIT 1`, *in.TargetNodeID).Scan(&familyCode).Error
			if err != nil {
				return err
			}
			targetFamilyCode = familyCode
		}

		successor = models.ProductSuccessor{
			SourceNodeID:      in.SourceNodeID,
			SourceType:        in.SourceType,
			TargetNodeID:      in.TargetNodeID,
			TargetFullCode:    in.TargetFullCode,
			TargetFamilyCode:  targetFamilyCode,
			ReplacementType:   in.ReplacementType,
			MigrationNote:     in.MigrationNote,
			MigrationNoteEN:   in.MigrationNoteEN,
			EffectiveDate:     in.EffectiveDate,
			ShowWarning:       in.ShowWarning,
			AllowOldSelection: in.AllowOldSelection,
			WarningSeverity:   in.WarningSeverity,
			CreatedBy:         createdBy,
		}
		return tx.Create(&successor).Error
	})
	if err != nil {
		return nil, err
	}
	return &successor, nil
}

// UpdateSuccessorFields are the patchable successor columns.
type UpdateSuccessorFields struct {
	ReplacementType   *string    `json:"replacement_type"`
	MigrationNote     *string    `json:"migration_note"`
	MigrationNoteEN   *string    `json:"migration_note_en"`
	EffectiveDate     *time.Time `json:"effective_date"`
	ShowWarning       *bool      `json:"show_warning"`
	AllowOldSelection *bool      `json:"allow_old_selection"`
	WarningSeverity   *string    `json:"warning_severity"`
}

// UpdateSuccessor patches a successor link.
func (s *Store) UpdateSuccessor(ctx context.Context, id uint, fields UpdateSuccessorFields) error {
	updates := map[string]any{}
	if fields.ReplacementType != nil {
		updates["replacement_type"] = *fields.ReplacementType
	}
	if fields.MigrationNote != nil {
		updates["migration_note"] = *fields.MigrationNote
	}
	if fields.MigrationNoteEN != nil {
		updates["migration_note_en"] = *fields.MigrationNoteEN
	}
	if fields.EffectiveDate != nil {
		updates["effective_date"] = *fields.EffectiveDate
	}
	if fields.ShowWarning != nil {
		updates["show_warning"] = *fields.ShowWarning
	}
	if fields.AllowOldSelection != nil {
		updates["allow_old_selection"] = *fields.AllowOldSelection
	}
	if fields.WarningSeverity != nil {
		updates["warning_severity"] = *fields.WarningSeverity
	}
	if len(updates) == 0 {
		return fault.New(fault.Validation, "no fields to update")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ProductSuccessor{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fault.New(fault.NotFound, "successor not found")
		}
		return tx.Model(&models.ProductSuccessor{}).Where("id = ?", id).Updates(updates).Error
	})
}

// DeleteSuccessor removes a successor link.
func (s *Store) DeleteSuccessor(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ProductSuccessor{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fault.New(fault.NotFound, "successor not found")
	}
	return nil
}

// SuccessorPair names the two ends of one created link.
type SuccessorPair struct {
	SourceNodeID uint    `json:"source_node_id"`
	SourceCode   *string `json:"source_code"`
	TargetNodeID uint    `json:"target_node_id"`
	TargetCode   *string `json:"target_code"`
}

// BulkSuccessorResult reports what a bulk creation produced.
type BulkSuccessorResult struct {
	Type         string          `json:"type"`
	CreatedCount int             `json:"created_count"`
	SkippedCount int             `json:"skipped_count"`
	SourceCount  int             `json:"source_count,omitempty"`
	TargetCount  int             `json:"target_count,omitempty"`
	Successors   []SuccessorPair `json:"successors"`
}

// BulkCreateSuccessors links a batch of sources to a batch of targets.
// When both sides are complete typecodes and the counts match, each source
// gets its own 1:1 warning link. Otherwise every source gets an info hint
// to every target, with a note naming the group sizes. Existing pairs are
// skipped either way.
func (s *Store) BulkCreateSuccessors(ctx context.Context, sourceIDs, targetIDs []uint, migrationNote, createdBy string) (*BulkSuccessorResult, error) {
	if len(sourceIDs) == 0 {
		return nil, fault.New(fault.Validation, "source_node_ids cannot be empty")
	}
	if len(targetIDs) == 0 {
		return nil, fault.New(fault.Validation, "target_node_ids cannot be empty")
	}

	var result BulkSuccessorResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sources, err := nodesByIDsOrdered(tx, sourceIDs)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			return fault.New(fault.NotFound, "no source nodes found with provided ids")
		}
		if len(sources) != len(sourceIDs) {
			return fault.New(fault.NotFound,
				"some source node ids not found (%d found, %d requested)", len(sources), len(sourceIDs))
		}

		targets, err := nodesByIDsOrdered(tx, targetIDs)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			return fault.New(fault.NotFound, "no target nodes found with provided ids")
		}
		if len(targets) != len(targetIDs) {
			return fault.New(fault.NotFound,
				"some target node ids not found (%d found, %d requested)", len(targets), len(targetIDs))
		}

		allComplete := func(nodes []models.Node) bool {
			for _, n := range nodes {
				if n.FullTypecode == nil || *n.FullTypecode == "" {
					return false
				}
			}
			return true
		}

		if allComplete(sources) && allComplete(targets) && len(sources) == len(targets) {
			result.Type = "links"
			for i := range sources {
				created, err := insertBulkLink(tx, &sources[i], &targets[i], migrationNote, "warning", createdBy)
				if err != nil {
					return err
				}
				if created == nil {
					result.SkippedCount++
					continue
				}
				result.Successors = append(result.Successors, *created)
			}
			result.CreatedCount = len(result.Successors)
			return nil
		}

		result.Type = "hint"
		result.SourceCount = len(sources)
		result.TargetCount = len(targets)

		autoNote := fmt.Sprintf("Allgemeine Referenz: %d Source-Node(s) → %d Target-Node(s)", len(sources), len(targets))
		note := autoNote
		if migrationNote != "" {
			note = migrationNote + ". " + autoNote
		}

		for i := range sources {
			for j := range targets {
				created, err := insertBulkLink(tx, &sources[i], &targets[j], note, "info", createdBy)
				if err != nil {
					return err
				}
				if created == nil {
					result.SkippedCount++
					continue
				}
				result.CreatedCount++
				if len(result.Successors) < 10 {
					result.Successors = append(result.Successors, *created)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Successors == nil {
		result.Successors = []SuccessorPair{}
	}
	return &result, nil
}

func nodesByIDsOrdered(tx *gorm.DB, ids []uint) ([]models.Node, error) {
	var nodes []models.Node
	for _, chunk := range chunkIDs(ids, inChunkSize) {
		var part []models.Node
		if err := tx.Where("id IN ?", chunk).Order("id").Find(&part).Error; err != nil {
			return nil, err
		}
		nodes = append(nodes, part...)
	}
	return nodes, nil
}

func insertBulkLink(tx *gorm.DB, source, target *models.Node, note, severity, createdBy string) (*SuccessorPair, error) {
	var existing int64
	err := tx.Model(&models.ProductSuccessor{}).
		Where("source_node_id = ? AND target_node_id = ?", source.ID, target.ID).
		Count(&existing).Error
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, nil
	}

	sourceType := "node"
	if source.FullTypecode != nil && *source.FullTypecode != "" {
		if source.IsIntermediateCode {
			sourceType = "intermediate"
		} else {
			sourceType = "leaf"
		}
	}

	targetID := target.ID
	link := models.ProductSuccessor{
		SourceNodeID:      source.ID,
		SourceType:        sourceType,
		TargetNodeID:      &targetID,
		ReplacementType:   "successor",
		MigrationNote:     note,
		ShowWarning:       true,
		AllowOldSelection: true,
		WarningSeverity:   severity,
		CreatedBy:         createdBy,
	}
	if err := tx.Create(&link).Error; err != nil {
		return nil, err
	}
	return &SuccessorPair{
		SourceNodeID: source.ID,
		SourceCode:   source.Code,
		TargetNodeID: target.ID,
		TargetCode:   target.Code,
	}, nil
}
