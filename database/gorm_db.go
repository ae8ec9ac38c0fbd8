package database

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jaliph/residence-companion/models"
	"github.com/jaliph/residence-companion/utils"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// GormDB is the GORM connection holding the companion registry. It lives
// in an in-memory SQLite database and is gone when the process exits.
type GormDB struct {
	db *gorm.DB
}

// memoryDSN names a shared-cache in-memory database so every pooled
// connection sees the same data
func memoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

// NewGormDB opens the in-memory companion database called name
func NewGormDB(name string, debug bool) (*GormDB, error) {
	level := logger.Silent
	if debug {
		level = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(memoryDSN(name)), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open companion database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access companion database pool: %w", err)
	}
	// a single connection keeps the memory database alive and serializes writes
	sqlDB.SetMaxOpenConns(1)

	gormDB := &GormDB{db: db}
	if err := gormDB.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate companion database: %w", err)
	}

	utils.Logger.Debug("Companion database ready", "name", name)
	return gormDB, nil
}

// migrate runs database migrations
func (gdb *GormDB) migrate() error {
	return gdb.db.AutoMigrate(&models.Companion{})
}

// InsertCompanion stores a new companion. The generated sequence number
// places it ahead of every existing record.
func (gdb *GormDB) InsertCompanion(c *models.Companion) error {
	if err := gdb.db.Create(c).Error; err != nil {
		return fmt.Errorf("failed to store companion: %w", err)
	}
	return nil
}

// ListCompanions returns companions newest first
func (gdb *GormDB) ListCompanions() ([]models.Companion, error) {
	var companions []models.Companion
	if err := gdb.db.Order("seq DESC").Find(&companions).Error; err != nil {
		return nil, fmt.Errorf("failed to list companions: %w", err)
	}
	return companions, nil
}

// GetCompanion looks a companion up by id
func (gdb *GormDB) GetCompanion(id string) (*models.Companion, error) {
	var c models.Companion
	err := gdb.db.Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get companion: %w", err)
	}
	return &c, nil
}

// DeleteCompanion removes a companion and reports how many rows went away
func (gdb *GormDB) DeleteCompanion(id string) (int64, error) {
	result := gdb.db.Where("id = ?", id).Delete(&models.Companion{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete companion: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// UpdateCompanionStatus changes the status of a companion
func (gdb *GormDB) UpdateCompanionStatus(id string, status models.CompanionStatus) error {
	result := gdb.db.Model(&models.Companion{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update companion status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountCompanionsByStatus counts companions in the given status
func (gdb *GormDB) CountCompanionsByStatus(status models.CompanionStatus) (int64, error) {
	var n int64
	if err := gdb.db.Model(&models.Companion{}).Where("status = ?", status).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count companions: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
