package models

import (
	"fmt"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates every table the panel owns.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Subscriber{},
		&Package{},
		&Setting{},
		&User{},
		&SystemPreference{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
