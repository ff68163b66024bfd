package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"starminder/config"
	"starminder/internal/models"
	"starminder/internal/secrets"
)

type GormDB struct {
	db     *gorm.DB
	keeper *secrets.Keeper
}

// NewGormDB creates a new GORM database connection
func NewGormDB(dbType string, cfg config.DatabaseConfig, keeper *secrets.Keeper) (*GormDB, error) {
	var db *gorm.DB
	var err error

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	switch dbType {
	case "sqlite":
		if cfg.SQLitePath == "" {
			cfg.SQLitePath = "./starminder.db"
		}
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
		}
		log.Printf("📊 Connected to SQLite: %s", cfg.SQLitePath)

	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
			cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode)

		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		log.Printf("📊 Connected to PostgreSQL: %s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Name)

	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &GormDB{db: db, keeper: keeper}, nil
}

// AutoMigrate runs database migrations
func (gdb *GormDB) AutoMigrate() error {
	log.Println("🔄 Running database migrations...")

	err := gdb.db.AutoMigrate(
		&models.User{},
		&models.UserProfile{},
		&models.ProviderToken{},
		&models.TempStar{},
		&models.Reminder{},
		&models.Star{},
	)

	if err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}

	log.Println("✅ Database migrations completed")
	return nil
}

// Close closes the underlying connection pool.
func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
