package migration_1

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Generation struct {
	Id    uuid.UUID `gorm:"type:uuid;primaryKey"`
	AppId uuid.UUID `gorm:"type:uuid;not null;index"`

	UserMessageId      uuid.UUID     `gorm:"type:uuid;not null"`
	AssistantMessageId uuid.NullUUID `gorm:"type:uuid"`

	Status      string `gorm:"size:20;not null"`
	ParseMode   string `gorm:"size:32"`
	Model       string
	RawResponse string
	Error       sql.NullString

	CreationTime   time.Time
	CompletionTime sql.NullTime
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&Generation{}); err != nil {
		return fmt.Errorf("error creating generations table: %w", err)
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&Generation{}); err != nil {
		return fmt.Errorf("error dropping generations table: %w", err)
	}
	return nil
}
