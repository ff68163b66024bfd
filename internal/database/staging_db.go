package database

import (
	"fmt"

	"gorm.io/datatypes"

	"starminder/internal/models"
	"starminder/internal/provider"
)

// AppendTempStars stages one fetched page of records for a user. Records are
// appended as-is; dedup across pages happens at sampling time.
func (gdb *GormDB) AppendTempStars(userID string, providerName string, records []provider.StarRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]models.TempStar, 0, len(records))
	for _, rec := range records {
		rows = append(rows, models.TempStar{
			UserID: userID,
			StarFields: models.StarFields{
				Provider:    providerName,
				ProviderID:  rec.ProviderID,
				Owner:       rec.Owner,
				OwnerID:     rec.OwnerID,
				Name:        rec.Name,
				Description: rec.Description,
				StarCount:   rec.StarCount,
				RepoURL:     rec.RepoURL,
				ProjectURL:  rec.ProjectURL,
				Archived:    rec.Archived,
			},
			Raw: datatypes.JSON(rec.Raw),
		})
	}

	if err := gdb.db.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to stage %d records for user %s: %w", len(rows), userID, err)
	}
	return nil
}

// TempStarsForUser returns all staged rows for a user in insertion order.
func (gdb *GormDB) TempStarsForUser(userID string) ([]models.TempStar, error) {
	var rows []models.TempStar
	err := gdb.db.Where("user_id = ?", userID).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get staged records for user %s: %w", userID, err)
	}
	return rows, nil
}

// DeleteTempStarsForUser drops every staged row for a user and reports how
// many were removed. Deleting an empty staging area is not an error.
func (gdb *GormDB) DeleteTempStarsForUser(userID string) (int64, error) {
	result := gdb.db.Where("user_id = ?", userID).Delete(&models.TempStar{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear staged records for user %s: %w", userID, result.Error)
	}
	return result.RowsAffected, nil
}
