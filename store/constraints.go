package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
)

// ConstraintsForLevel lists every constraint guarding a level, with
// conditions and codes preloaded.
func (s *Store) ConstraintsForLevel(ctx context.Context, level int) ([]models.Constraint, error) {
	var constraints []models.Constraint
	err := s.db.WithContext(ctx).
		Preload("Conditions").
		Preload("Codes").
		Where("level = ?", level).
		Order("id").
		Find(&constraints).Error
	return constraints, err
}

// ConstraintByID loads one constraint with its children.
func (s *Store) ConstraintByID(ctx context.Context, id uint) (*models.Constraint, error) {
	var constraint models.Constraint
	err := s.db.WithContext(ctx).
		Preload("Conditions").
		Preload("Codes").
		First(&constraint, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.New(fault.NotFound, "constraint %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &constraint, nil
}

// ConstraintInput carries a constraint with its conditions and codes.
type ConstraintInput struct {
	Level       int                          `json:"level"`
	Mode        string                       `json:"mode"`
	Description *string                      `json:"description"`
	Conditions  []models.ConstraintCondition `json:"conditions"`
	Codes       []models.ConstraintCode      `json:"codes"`
}

// CreateConstraint inserts a constraint with its children and returns the
// stored object.
func (s *Store) CreateConstraint(ctx context.Context, in ConstraintInput) (*models.Constraint, error) {
	constraint := models.Constraint{
		Level:       in.Level,
		Mode:        in.Mode,
		Description: in.Description,
		Conditions:  in.Conditions,
		Codes:       in.Codes,
	}
	if err := s.db.WithContext(ctx).Create(&constraint).Error; err != nil {
		return nil, err
	}
	return s.ConstraintByID(ctx, constraint.ID)
}

// UpdateConstraint rewrites a constraint: the row itself is patched and
// the conditions and codes are replaced wholesale.
func (s *Store) UpdateConstraint(ctx context.Context, id uint, in ConstraintInput) (*models.Constraint, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Constraint{}).Where("id = ?", id).Updates(map[string]any{
			"level":       in.Level,
			"mode":        in.Mode,
			"description": in.Description,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fault.New(fault.NotFound, "constraint %d not found", id)
		}

		if err := tx.Where("constraint_id = ?", id).Delete(&models.ConstraintCondition{}).Error; err != nil {
			return err
		}
		if err := tx.Where("constraint_id = ?", id).Delete(&models.ConstraintCode{}).Error; err != nil {
			return err
		}
		for i := range in.Conditions {
			in.Conditions[i].ID = 0
			in.Conditions[i].ConstraintID = id
			if err := tx.Create(&in.Conditions[i]).Error; err != nil {
				return err
			}
		}
		for i := range in.Codes {
			in.Codes[i].ID = 0
			in.Codes[i].ConstraintID = id
			if err := tx.Create(&in.Codes[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ConstraintByID(ctx, id)
}

// DeleteConstraint removes a constraint with its conditions and codes.
func (s *Store) DeleteConstraint(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("constraint_id = ?", id).Delete(&models.ConstraintCondition{}).Error; err != nil {
			return err
		}
		if err := tx.Where("constraint_id = ?", id).Delete(&models.ConstraintCode{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Constraint{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fault.New(fault.NotFound, "constraint %d not found", id)
		}
		return nil
	})
}
