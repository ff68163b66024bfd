package database

import (
	"fmt"

	"starminder/internal/models"

	"gorm.io/gorm"
)

// CreateUser creates a user together with its profile. The profile is created
// in the same transaction so a user row never exists without one.
func (gdb *GormDB) CreateUser(username, name, email string) (*models.User, error) {
	user := &models.User{
		Username: username,
		Name:     name,
		Email:    email,
	}

	err := gdb.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		profile := &models.UserProfile{
			UserID:     user.ID,
			DayOfWeek:  models.EveryDay,
			MaxEntries: models.DefaultMaxEntries,
		}
		return tx.Create(profile).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (gdb *GormDB) GetUserByID(userID string) (*models.User, error) {
	var user models.User
	err := gdb.db.First(&user, "id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (gdb *GormDB) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	err := gdb.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
