package database

import (
	"fmt"

	"gorm.io/gorm"

	"starminder/internal/models"
)

// CreateReminder persists a reminder and its star snapshots in one
// transaction. Snapshots are written in selection order so their
// autoincrementing IDs preserve it.
func (gdb *GormDB) CreateReminder(userID string, selected []models.TempStar) (*models.Reminder, error) {
	reminder := &models.Reminder{UserID: userID}

	err := gdb.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(reminder).Error; err != nil {
			return err
		}
		for _, temp := range selected {
			star := models.Star{
				ReminderID: reminder.ID,
				UserID:     userID,
				StarFields: temp.StarFields,
			}
			if err := tx.Create(&star).Error; err != nil {
				return err
			}
			reminder.Stars = append(reminder.Stars, star)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder for user %s: %w", userID, err)
	}

	return reminder, nil
}

// ShownProviderIDs returns the set of provider IDs already snapshotted during
// the current cycle, i.e. star rows at or past the cycle marker. A nil marker
// means a fresh cycle: nothing has been shown yet. The archived filter must
// match the one applied to the candidate pool, so both sides of the cycle
// arithmetic count the same population.
func (gdb *GormDB) ShownProviderIDs(userID string, cycleStartID *uint, includeArchived bool) (map[string]bool, error) {
	shown := make(map[string]bool)
	if cycleStartID == nil {
		return shown, nil
	}

	query := gdb.db.Model(&models.Star{}).
		Where("user_id = ? AND id >= ?", userID, *cycleStartID)
	if !includeArchived {
		query = query.Where("archived = ?", false)
	}

	var ids []string
	err := query.Pluck("provider_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get shown records for user %s: %w", userID, err)
	}

	for _, id := range ids {
		shown[id] = true
	}
	return shown, nil
}

// GetReminderByID retrieves one reminder with its star snapshots in
// selection order.
func (gdb *GormDB) GetReminderByID(reminderID string) (*models.Reminder, error) {
	var reminder models.Reminder
	err := gdb.db.
		Preload("Stars", func(db *gorm.DB) *gorm.DB {
			return db.Order("stars.id ASC")
		}).
		First(&reminder, "id = ?", reminderID).Error
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

// RemindersForUser returns the user's reminders, newest first, with their
// star snapshots preloaded in selection order.
func (gdb *GormDB) RemindersForUser(userID string, limit int) ([]models.Reminder, error) {
	var reminders []models.Reminder
	query := gdb.db.Where("user_id = ?", userID).
		Preload("Stars", func(db *gorm.DB) *gorm.DB {
			return db.Order("stars.id ASC")
		}).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("failed to get reminders for user %s: %w", userID, err)
	}
	return reminders, nil
}

// RemindersForFeed resolves a public feed key to its user's reminders.
func (gdb *GormDB) RemindersForFeed(feedID string, limit int) (*models.User, []models.Reminder, error) {
	profile, err := gdb.GetProfileByFeedID(feedID)
	if err != nil {
		return nil, nil, err
	}
	user, err := gdb.GetUserByID(profile.UserID)
	if err != nil {
		return nil, nil, err
	}
	reminders, err := gdb.RemindersForUser(profile.UserID, limit)
	if err != nil {
		return nil, nil, err
	}
	return user, reminders, nil
}
