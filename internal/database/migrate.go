package database

import (
	"github.com/resumekit/resumekit/internal/domain"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Account{},
		&domain.PasswordHistoryEntry{},
		&domain.Session{},
		&domain.Resume{},
	)
}
