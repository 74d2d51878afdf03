package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/oxhq/varix/auth"
	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
	"github.com/oxhq/varix/store"
)

// KmatEntry is one exchange row for a stored KMAT reference. The path is
// given as codes from the family root down and resolved to node ids here.
type KmatEntry struct {
	FamilyCode    string   `json:"family_code"`
	PathCodes     []string `json:"path_codes"`
	FullTypecode  string   `json:"full_typecode"`
	KmatReference string   `json:"kmat_reference"`
}

// KmatStats counts the outcome of a KMAT import.
type KmatStats struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ImportKmatReferences resolves each entry's code path against the forest
// and upserts the reference. Entries whose path is broken are skipped,
// not fatal: references routinely outlive catalogue revisions.
func (im *Importer) ImportKmatReferences(ctx context.Context, jsonPath, createdBy string) (*KmatStats, error) {
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("read kmat file: %w", err)
	}
	var entries []KmatEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode kmat file: %w", err)
	}

	st := store.New(im.db)
	stats := &KmatStats{}
	for _, entry := range entries {
		family, err := st.FamilyByCode(ctx, entry.FamilyCode)
		if fault.IsKind(err, fault.NotFound) {
			im.log.Warn("kmat entry skipped, family not found",
				zap.String("family", entry.FamilyCode),
				zap.String("typecode", entry.FullTypecode))
			stats.Skipped++
			continue
		}
		if err != nil {
			return nil, err
		}

		pathIDs, ok, err := im.resolveCodePath(ctx, family.ID, entry.PathCodes)
		if err != nil {
			return nil, err
		}
		if !ok {
			im.log.Warn("kmat entry skipped, path broken",
				zap.String("family", entry.FamilyCode),
				zap.Strings("path", entry.PathCodes))
			stats.Skipped++
			continue
		}

		if _, _, err := st.UpsertKmatReference(ctx, family.ID, pathIDs, entry.FullTypecode, entry.KmatReference, createdBy); err != nil {
			return nil, err
		}
		stats.Imported++
	}
	im.log.Info("kmat references imported", zap.Int("imported", stats.Imported), zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// resolveCodePath walks codes[1:] down from the family root, one
// parent-child hop per code. The first code names the family itself.
func (im *Importer) resolveCodePath(ctx context.Context, familyID uint, codes []string) ([]uint, bool, error) {
	pathIDs := []uint{familyID}
	parentID := familyID

	rest := codes
	if len(rest) > 0 {
		rest = rest[1:]
	}
	for _, code := range rest {
		var node models.Node
		err := im.db.WithContext(ctx).
			Where("code = ? AND parent_id = ?", code, parentID).
			First(&node).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		pathIDs = append(pathIDs, node.ID)
		parentID = node.ID
	}
	return pathIDs, true, nil
}

// SubsegmentEntry is one exchange row of a sub-segment definition.
type SubsegmentEntry struct {
	FamilyCode    string          `json:"family_code"`
	GroupName     string          `json:"group_name"`
	Level         int             `json:"level"`
	PatternString *string         `json:"pattern_string"`
	Subsegments   json.RawMessage `json:"subsegments"`
	CreatedBy     flexString      `json:"created_by"`
}

// ImportSubsegments replaces all stored sub-segment definitions with the
// file's contents. createdBy fills entries that carry no author.
func (im *Importer) ImportSubsegments(ctx context.Context, jsonPath, createdBy string) (int, error) {
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return 0, fmt.Errorf("read subsegments file: %w", err)
	}
	var entries []SubsegmentEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 0, fmt.Errorf("decode subsegments file: %w", err)
	}

	rows := make([]models.SegmentSubsegment, 0, len(entries))
	for _, entry := range entries {
		author := string(entry.CreatedBy)
		if author == "" {
			author = createdBy
		}
		rows = append(rows, models.SegmentSubsegment{
			FamilyCode:    entry.FamilyCode,
			GroupName:     entry.GroupName,
			Level:         entry.Level,
			PatternString: entry.PatternString,
			Subsegments:   jsonArrayOrEmpty(entry.Subsegments),
			CreatedBy:     author,
		})
	}

	count, err := store.New(im.db).ReplaceSubsegments(ctx, rows)
	if err != nil {
		return 0, err
	}
	im.log.Info("sub-segment definitions replaced", zap.Int("count", count))
	return count, nil
}

// SeedAdmin creates the initial admin account when no active admin
// exists. The account must change its password on first login.
func (im *Importer) SeedAdmin(ctx context.Context, username, email, password string) (bool, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	created, err := store.New(im.db).EnsureAdmin(ctx, username, email, hash)
	if err != nil {
		return false, err
	}
	if created {
		im.log.Info("initial admin created", zap.String("username", username))
	} else {
		im.log.Info("admin account already present, nothing to seed")
	}
	return created, nil
}

// flexString accepts JSON strings and numbers; exchange files written by
// different exporters disagree on the created_by type.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}
