package database

import (
	"fmt"
	"time"

	"starminder/internal/models"
)

// GetProfileForUser retrieves the profile owned by a user.
func (gdb *GormDB) GetProfileForUser(userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := gdb.db.Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get profile for user %s: %w", userID, err)
	}
	return &profile, nil
}

// GetProfileByFeedID retrieves a profile by its public feed key.
func (gdb *GormDB) GetProfileByFeedID(feedID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := gdb.db.Where("feed_id = ?", feedID).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// DueProfiles returns every profile whose schedule matches the given instant:
// the hour matches exactly and the day either matches or is the every-day
// sentinel.
func (gdb *GormDB) DueProfiles(now time.Time) ([]models.UserProfile, error) {
	weekday := (int(now.Weekday()) + 6) % 7

	var profiles []models.UserProfile
	err := gdb.db.
		Where("hour_of_day = ? AND day_of_week IN (?, ?)", now.Hour(), weekday, models.EveryDay).
		Find(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query due profiles: %w", err)
	}

	return profiles, nil
}

// SaveProfileSettings persists the dashboard-owned fields of a profile.
func (gdb *GormDB) SaveProfileSettings(profile *models.UserProfile) error {
	if err := gdb.db.Save(profile).Error; err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// UpdateCycleStart moves (or clears) the cycle boundary marker. This is the
// only profile field the pipeline mutates.
func (gdb *GormDB) UpdateCycleStart(profileID string, starID *uint) error {
	err := gdb.db.Model(&models.UserProfile{}).
		Where("id = ?", profileID).
		Update("cycle_start_id", starID).Error
	if err != nil {
		return fmt.Errorf("failed to update cycle start: %w", err)
	}
	return nil
}
