package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/quotesync/internal/models"
)

// SchemaVersion is the durable schema revision understood by this build.
// Bump it whenever a model gains a column or an index.
const SchemaVersion = 3

const schemaMetaID = 1

// UpgradeResult reports the schema versions before and after Upgrade.
type UpgradeResult struct {
	From    int
	To      int
	Applied bool
}

// AutoMigrate creates or updates the database schema for all local collections.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errNilDB
	}
	return db.AutoMigrate(
		&models.Customer{},
		&models.Item{},
		&models.Quote{},
		&models.Settings{},
		&models.SyncQueueEntry{},
		&models.CacheEntry{},
	)
}

// Upgrade applies AutoMigrate when the recorded schema version is older than
// SchemaVersion. Running it against an up-to-date database is a no-op.
func Upgrade(db *gorm.DB) (UpgradeResult, error) {
	if db == nil {
		return UpgradeResult{}, errNilDB
	}
	if err := db.AutoMigrate(&models.SchemaMeta{}); err != nil {
		return UpgradeResult{}, fmt.Errorf("schema meta: %w", err)
	}

	current, err := CurrentSchemaVersion(db)
	if err != nil {
		return UpgradeResult{}, err
	}
	result := UpgradeResult{From: current, To: current}
	if current >= SchemaVersion {
		return result, nil
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := AutoMigrate(tx); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		meta := models.SchemaMeta{ID: schemaMetaID, Version: SchemaVersion}
		return tx.Save(&meta).Error
	})
	if err != nil {
		return result, err
	}

	result.To = SchemaVersion
	result.Applied = true
	return result, nil
}

// CurrentSchemaVersion returns the recorded schema version, or 0 for a fresh database.
func CurrentSchemaVersion(db *gorm.DB) (int, error) {
	var meta models.SchemaMeta
	err := db.Take(&meta, "id = ?", schemaMetaID).Error
	switch {
	case err == nil:
		return meta.Version, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return 0, nil
	default:
		return 0, fmt.Errorf("read schema version: %w", err)
	}
}
