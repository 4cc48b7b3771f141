package database

import (
	"fmt"

	libraryRepo "github.com/xpanvictor/xscribe/internal/repository/library"
	"gorm.io/gorm"
)

func MigrateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&libraryRepo.AudioEntity{},
		&libraryRepo.TranscriptionEntity{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}
