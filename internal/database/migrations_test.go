package database

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/cache"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsDropsEmptyCatalogPayloads(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&cache.CatalogEntry{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	entries := []cache.CatalogEntry{
		{Kind: "trainers", Key: "all", PayloadJSON: "null", FetchedAtSeconds: 1700000000},
		{Kind: "energy", Key: "all", PayloadJSON: `[{"name":"Fire Energy"}]`, FetchedAtSeconds: 1700000000},
	}
	if err := database.Create(&entries).Error; err != nil {
		testContext.Fatalf("failed to insert entries: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var remaining []cache.CatalogEntry
	if err := database.Find(&remaining).Error; err != nil {
		testContext.Fatalf("failed to reload entries: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Kind != "energy" {
		testContext.Fatalf("expected only the energy entry to remain, got %#v", remaining)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationDropEmptyCatalogPayloads).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestOpenSQLiteIsIdempotent(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "pokedeck.db")

	first, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("first open failed: %v", err)
	}
	firstSQL, _ := first.DB()
	_ = firstSQL.Close()

	second, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("second open failed: %v", err)
	}
	var count int64
	if err := second.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migrations: %v", err)
	}
	if count != 1 {
		testContext.Fatalf("expected one migration record, got %d", count)
	}
	if !second.Migrator().HasTable(&cache.DeckSnapshot{}) {
		testContext.Fatalf("expected deck snapshot table")
	}
}

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}
