// Package database owns the gorm/sqlite connection shared by every
// repository. A single process-wide handle is fine: the store runs
// single-host, and gorm/sqlite serialize writes internally.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/voxforge/voxforge/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB is the global database instance, set by Initialize.
var DB *gorm.DB

// Initialize opens the sqlite connection with WAL mode and the pragma
// tuning the teacher's store uses, then auto-migrates every entity.
func Initialize(dbPath string) error {
	var err error

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?"+
		"_pragma=foreign_keys(1)&"+
		"_pragma=journal_mode(WAL)&"+
		"_pragma=synchronous(NORMAL)&"+
		"_pragma=cache_size(-64000)&"+
		"_pragma=temp_store(MEMORY)&"+
		"_pragma=mmap_size(268435456)&"+
		"_timeout=30000",
		dbPath)

	DB, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:          gormlogger.Default.LogMode(gormlogger.Warn),
		CreateBatchSize: 100,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := DB.AutoMigrate(
		&models.Job{},
		&models.VoiceProfile{},
		&models.QualityProfile{},
	); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	return nil
}

// Close closes the database connection gracefully.
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	DB = nil
	return err
}

// HealthCheck pings the database for the /health probe.
func HealthCheck() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}

// Stats returns connection pool statistics for diagnostics.
func Stats() sql.DBStats {
	if DB == nil {
		return sql.DBStats{}
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return sql.DBStats{}
	}
	return sqlDB.Stats()
}
