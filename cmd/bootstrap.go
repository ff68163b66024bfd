package cmd

import (
	"fmt"
	"time"

	"starminder/config"
	"starminder/internal/database"
	"starminder/internal/provider"
	"starminder/internal/secrets"
)

// app holds the shared pieces every subcommand needs: validated config, an
// open migrated database, and the provider clients.
type app struct {
	cfg       *config.Config
	db        *database.GormDB
	providers provider.Registry
}

func bootstrap() (*app, error) {
	cfg, err := config.LoadConfigWithViper()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	keeper, err := secrets.NewKeeper(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}

	db, err := database.NewGormDB(cfg.Database.Type, cfg.Database, keeper)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	registry, err := buildRegistry(cfg.Providers)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{cfg: cfg, db: db, providers: registry}, nil
}

func (a *app) close() {
	a.db.Close()
}

func (a *app) fetchTimeout() time.Duration {
	return time.Duration(a.cfg.Providers.RequestTimeoutSeconds) * time.Second
}

// buildRegistry validates the configured provider names up front, so an
// unknown provider is a startup error rather than a silent runtime skip.
func buildRegistry(cfg config.ProvidersConfig) (provider.Registry, error) {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second

	registry := make(provider.Registry, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		p, err := provider.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("invalid provider in config: %w", err)
		}
		switch p {
		case provider.GitHub:
			registry[p] = provider.NewGitHubClient(cfg.GitHubAPIURL, timeout)
		}
	}
	return registry, nil
}
