package database

import (
	"fmt"
	"time"

	"example.com/fasttrack/services/delivery/config"
	"example.com/fasttrack/services/delivery/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is an interface for database operations
type DB interface {
	DB() (*gorm.DB, error)
	Close() error
}

// GormDatabase implements the DB interface for GORM
type GormDatabase struct {
	db *gorm.DB
}

// Connect establishes the primary (read-write) connection.
func Connect(cfg config.DatabaseConfig) (DB, error) {
	return open(cfg.DSN, cfg, 1)
}

// ConnectReadOnly establishes the read replica connection. It falls back
// to the primary DSN when no replica is configured, and the replica pool
// is sized at twice the primary since reads dominate the workload.
func ConnectReadOnly(cfg config.DatabaseConfig) (DB, error) {
	dsn := cfg.ReadOnlyDSN
	if dsn == "" {
		dsn = cfg.DSN
	}
	return open(dsn, cfg, 2)
}

func open(dsn string, cfg config.DatabaseConfig, poolFactor int) (DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns * poolFactor)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns * poolFactor)
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	sqlDB.SetConnMaxLifetime(lifetime)

	return &GormDatabase{db: db}, nil
}

// DB returns the underlying gorm.DB instance
func (d *GormDatabase) DB() (*gorm.DB, error) {
	return d.db, nil
}

// Close closes the database connection
func (d *GormDatabase) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate runs database migrations
func AutoMigrate(db DB) error {
	gormDB, err := db.DB()
	if err != nil {
		return err
	}
	return models.SetupModels(gormDB)
}
