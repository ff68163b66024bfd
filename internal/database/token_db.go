package database

import (
	"fmt"

	"starminder/internal/models"
)

// CreateProviderToken seals and stores a bearer credential for a user.
func (gdb *GormDB) CreateProviderToken(userID, providerName, plaintext string) (*models.ProviderToken, error) {
	sealed, err := gdb.keeper.Seal(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to seal token: %w", err)
	}

	token := &models.ProviderToken{
		UserID:      userID,
		Provider:    providerName,
		TokenSealed: sealed,
	}
	if err := gdb.db.Create(token).Error; err != nil {
		return nil, fmt.Errorf("failed to create provider token: %w", err)
	}

	return token, nil
}

// TokensForUser returns the user's tokens in creation order.
func (gdb *GormDB) TokensForUser(userID string) ([]models.ProviderToken, error) {
	var tokens []models.ProviderToken
	err := gdb.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens for user %s: %w", userID, err)
	}
	return tokens, nil
}

// GetTokenByID retrieves one token row.
func (gdb *GormDB) GetTokenByID(tokenID string) (*models.ProviderToken, error) {
	var token models.ProviderToken
	err := gdb.db.First(&token, "id = ?", tokenID).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// TokenPlaintext opens a sealed token for use against the provider API.
func (gdb *GormDB) TokenPlaintext(token *models.ProviderToken) (string, error) {
	plaintext, err := gdb.keeper.Open(token.TokenSealed)
	if err != nil {
		return "", fmt.Errorf("failed to open token %s: %w", token.ID, err)
	}
	return plaintext, nil
}
