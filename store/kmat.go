package store

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
)

// kmatPathKey serialises a configuration path so it can key the unique
// index. Order matters: the same nodes in a different order are a
// different path.
func kmatPathKey(pathNodeIDs []uint) (datatypes.JSON, error) {
	raw, err := json.Marshal(pathNodeIDs)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// UpsertKmatReference stores the KMAT reference for one configured path,
// overwriting a previous reference for the same path.
func (s *Store) UpsertKmatReference(ctx context.Context, familyID uint, pathNodeIDs []uint, fullTypecode, reference, createdBy string) (*models.KmatReference, bool, error) {
	pathKey, err := kmatPathKey(pathNodeIDs)
	if err != nil {
		return nil, false, err
	}

	var kmat models.KmatReference
	var updated bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("family_id = ? AND path_node_ids = ?", familyID, string(pathKey)).
			First(&kmat).Error
		switch {
		case err == nil:
			updated = true
			kmat.Reference = reference
			kmat.FullTypecode = fullTypecode
			return tx.Model(&models.KmatReference{}).Where("id = ?", kmat.ID).Updates(map[string]any{
				"kmat_reference": reference,
				"full_typecode":  fullTypecode,
			}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			kmat = models.KmatReference{
				FamilyID:     familyID,
				PathNodeIDs:  pathKey,
				FullTypecode: fullTypecode,
				Reference:    reference,
				CreatedBy:    createdBy,
			}
			return tx.Create(&kmat).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, false, err
	}
	return &kmat, updated, nil
}

// KmatReferenceForPath looks up the reference stored for one configured
// path, or nil when none exists.
func (s *Store) KmatReferenceForPath(ctx context.Context, familyID uint, pathNodeIDs []uint) (*models.KmatReference, error) {
	pathKey, err := kmatPathKey(pathNodeIDs)
	if err != nil {
		return nil, err
	}

	var kmat models.KmatReference
	err = s.db.WithContext(ctx).
		Where("family_id = ? AND path_node_ids = ?", familyID, string(pathKey)).
		First(&kmat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &kmat, nil
}

// KmatReferencesByFamily lists every stored reference of a family.
func (s *Store) KmatReferencesByFamily(ctx context.Context, familyID uint) ([]models.KmatReference, error) {
	var refs []models.KmatReference
	err := s.db.WithContext(ctx).
		Where("family_id = ?", familyID).
		Order("id").
		Find(&refs).Error
	return refs, err
}

// DeleteKmatReference removes one stored reference.
func (s *Store) DeleteKmatReference(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.KmatReference{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fault.New(fault.NotFound, "kmat reference %d not found", id)
	}
	return nil
}
