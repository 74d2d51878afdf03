package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
)

// UserByUsername loads a user by name.
func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.New(fault.NotFound, "user %q not found", username)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserByID loads a user by id.
func (s *Store) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.New(fault.NotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns every account, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&users).Error
	return users, err
}

// CreateUser inserts an account. New accounts must change their password
// on first login.
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash, role string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fault.New(fault.Validation, "username already exists")
		}
		user = models.User{
			Username:           username,
			Email:              email,
			PasswordHash:       passwordHash,
			Role:               role,
			IsActive:           true,
			MustChangePassword: true,
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// TouchLastLogin records a successful login.
func (s *Store) TouchLastLogin(ctx context.Context, userID uint) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_login", &now).Error
}

// SetPassword stores a new hash and clears the change flag. Used by the
// self-service password change.
func (s *Store) SetPassword(ctx context.Context, userID uint, passwordHash string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"password_hash":        passwordHash,
			"must_change_password": false,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fault.New(fault.NotFound, "user not found")
	}
	return nil
}

// ResetPassword stores an admin-issued hash and forces a change on the
// next login.
func (s *Store) ResetPassword(ctx context.Context, userID uint, passwordHash string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"password_hash":        passwordHash,
			"must_change_password": true,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fault.New(fault.NotFound, "user not found")
	}
	return nil
}

// UserFlags are the admin-editable account switches.
type UserFlags struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// UpdateUserFlags toggles role or active state. Demoting or deactivating
// the last active admin is refused so the system never loses its last
// administrator.
func (s *Store) UpdateUserFlags(ctx context.Context, userID uint, flags UserFlags) (*models.User, error) {
	if flags.Role == nil && flags.IsActive == nil {
		return nil, fault.New(fault.Validation, "no fields to update")
	}
	if flags.Role != nil && *flags.Role != "admin" && *flags.Role != "user" {
		return nil, fault.New(fault.Validation, "role must be 'admin' or 'user'")
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&user, "id = ?", userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.NotFound, "user not found")
		}
		if err != nil {
			return err
		}

		losesAdmin := user.Role == "admin" && user.IsActive &&
			((flags.Role != nil && *flags.Role != "admin") ||
				(flags.IsActive != nil && !*flags.IsActive))
		if losesAdmin {
			var others int64
			err := tx.Model(&models.User{}).
				Where("role = 'admin' AND is_active = ? AND id != ?", true, userID).
				Count(&others).Error
			if err != nil {
				return err
			}
			if others == 0 {
				return fault.New(fault.Validation, "cannot remove the last active admin")
			}
		}

		updates := map[string]any{}
		if flags.Role != nil {
			updates["role"] = *flags.Role
			user.Role = *flags.Role
		}
		if flags.IsActive != nil {
			updates["is_active"] = *flags.IsActive
			user.IsActive = *flags.IsActive
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes an account. Self-deletion, the bootstrap admin
// (id 1) and the last admin are protected. The last-admin check happens
// in the DELETE itself, so SQLite's single-writer lock makes the count
// and the delete one atomic step.
func (s *Store) DeleteUser(ctx context.Context, userID, currentUserID uint) (string, error) {
	if userID == currentUserID {
		return "", fault.New(fault.Validation, "cannot delete your own account")
	}
	if userID == 1 {
		return "", fault.New(fault.Forbidden, "cannot delete initial admin account")
	}

	var username string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.First(&user, "id = ?", userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.NotFound, "user not found")
		}
		if err != nil {
			return err
		}
		username = user.Username

		if user.Role == "admin" {
			res := tx.Exec(`
				DELETE FROM users
				WHERE id = ?
				  AND (SELECT COUNT(*) FROM users WHERE role = 'admin') > 1`, userID)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fault.New(fault.Validation, "cannot delete the last admin account")
			}
			return nil
		}
		return tx.Delete(&models.User{}, "id = ?", userID).Error
	})
	if err != nil {
		return "", err
	}
	return username, nil
}

// EnsureAdmin creates the bootstrap admin when no admin account exists
// yet. Returns true when one was created.
func (s *Store) EnsureAdmin(ctx context.Context, username, email, passwordHash string) (bool, error) {
	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admins int64
		if err := tx.Model(&models.User{}).Where("role = 'admin'").Count(&admins).Error; err != nil {
			return err
		}
		if admins > 0 {
			return nil
		}
		admin := models.User{
			Username:           username,
			Email:              email,
			PasswordHash:       passwordHash,
			Role:               "admin",
			IsActive:           true,
			MustChangePassword: true,
		}
		if err := tx.Create(&admin).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}
