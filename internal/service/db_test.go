package service

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/promostream/promostream/internal/models"
)

// newTestDB opens an in-memory database with the full schema. Connections
// are pinned to one so every query sees the same memory store.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access underlying connection: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.Offer{},
		&models.Credential{},
		&models.AutomationConfig{},
		&models.PostHistory{},
	); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}

	return db
}
