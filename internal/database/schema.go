package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RoleUser      string = "user"
	RoleAssistant string = "assistant"
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

	Messages    []Message    `gorm:"foreignKey:AppId;constraint:OnDelete:CASCADE"`
	Generations []Generation `gorm:"foreignKey:AppId;constraint:OnDelete:CASCADE"`
}

type Message struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AppId     uuid.UUID `gorm:"type:uuid;not null;index"`
	Role      string    `gorm:"size:20;not null"`
	Content   string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"index"`
}

const (
	GenerationQueued    string = "QUEUED"
	GenerationRunning   string = "RUNNING"
	GenerationCompleted string = "COMPLETED"
	GenerationFailed    string = "FAILED"
)

type Generation struct {
	Id    uuid.UUID `gorm:"type:uuid;primaryKey"`
	AppId uuid.UUID `gorm:"type:uuid;not null;index"`

	UserMessageId      uuid.UUID     `gorm:"type:uuid;not null"`
	AssistantMessageId uuid.NullUUID `gorm:"type:uuid"`

	Status       string `gorm:"size:20;not null"`
	ParseMode    string `gorm:"size:32"`
	Model        string
	RawResponse  string
	Usage        datatypes.JSON `gorm:"type:jsonb"` // {"input_tokens":…,"output_tokens":…}
	Error        sql.NullString
	PreviewSaved bool `gorm:"default:false"`

	CreationTime   time.Time
	CompletionTime sql.NullTime
}
