package migration_2

import (
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Generation struct {
	Usage        datatypes.JSON `gorm:"type:jsonb"`
	PreviewSaved bool           `gorm:"default:false"`
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&Generation{}, "Usage"); err != nil {
		return fmt.Errorf("error adding usage column: %w", err)
	}

	if err := db.Migrator().AddColumn(&Generation{}, "PreviewSaved"); err != nil {
		return fmt.Errorf("error adding preview_saved column: %w", err)
	}

	if err := db.Model(&Generation{}).
		Where("preview_saved IS NULL").
		Update("preview_saved", false).Error; err != nil {
		return fmt.Errorf("error setting default value for preview_saved: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&Generation{}, "Usage"); err != nil {
		return fmt.Errorf("error dropping usage column: %w", err)
	}

	if err := db.Migrator().DropColumn(&Generation{}, "PreviewSaved"); err != nil {
		return fmt.Errorf("error dropping preview_saved column: %w", err)
	}

	return nil
}
