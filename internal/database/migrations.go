package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/cache"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationDropEmptyCatalogPayloads = "2026-09-14_drop_empty_catalog_payloads"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationDropEmptyCatalogPayloads, apply: dropEmptyCatalogPayloads},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// dropEmptyCatalogPayloads removes catalog rows written as JSON null, which
// would otherwise be served as fresh empty lists until they expire.
func dropEmptyCatalogPayloads(db *gorm.DB) error {
	return db.Where("payload_json IN ?", []string{"", "null"}).
		Delete(&cache.CatalogEntry{}).Error
}
