package api

import (
	"time"

	"github.com/google/uuid"
)

type Preview struct {
	Html string
	Css  string
	Js   string
}

type App struct {
	Id          uuid.UUID
	Name        string
	Slug        string
	Description string `json:"Description,omitempty"`

	Preview Preview

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	Id        uuid.UUID
	Role      string
	Content   string
	CreatedAt time.Time
}

type Generation struct {
	Id                 uuid.UUID
	AppId              uuid.UUID
	UserMessageId      uuid.UUID
	AssistantMessageId *uuid.UUID `json:"AssistantMessageId,omitempty"`

	Status       string
	ParseMode    string         `json:"ParseMode,omitempty"`
	Model        string         `json:"Model,omitempty"`
	Usage        map[string]int `json:"Usage,omitempty"`
	Error        string         `json:"Error,omitempty"`
	PreviewSaved bool

	CreationTime   time.Time
	CompletionTime *time.Time `json:"CompletionTime,omitempty"`
}

type ListAppsParams struct {
	Limit  int `schema:"limit"`
	Offset int `schema:"offset"`
}

type CreateAppRequest struct {
	Name        string
	Slug        string
	Description string
}

type UpdateAppRequest struct {
	Name        *string
	Description *string
}

type UpdatePreviewRequest struct {
	Html string
	Css  string
	Js   string
}

type SendMessageRequest struct {
	Message string
	Async   bool
}

type SendMessageResponse struct {
	UserMessage      Message
	AssistantMessage *Message `json:"AssistantMessage,omitempty"`
	Generation       Generation
	Preview          *Preview `json:"Preview,omitempty"`
	PreviewUpdated   bool
}

type DownloadParams struct {
	Format string `schema:"format"`
}

type PublishResponse struct {
	Bucket string
	Keys   []string
	Url    string `json:"Url,omitempty"`
}
