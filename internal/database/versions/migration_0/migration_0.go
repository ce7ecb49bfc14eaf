package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type App struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"not null"`
	Slug        string    `gorm:"size:255;not null;uniqueIndex"`
	Description sql.NullString

	Html string `gorm:"not null;default:''"`
	Css  string `gorm:"not null;default:''"`
	Js   string `gorm:"not null;default:''"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	Messages []Message `gorm:"foreignKey:AppId;constraint:OnDelete:CASCADE"`
}

type Message struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AppId     uuid.UUID `gorm:"type:uuid;not null;index"`
	Role      string    `gorm:"size:20;not null"`
	Content   string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"index"`
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&App{}, &Message{}); err != nil {
		return fmt.Errorf("error creating apps and messages tables: %w", err)
	}
	return nil
}
