package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"appgen-backend/internal/preview"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrAppNotFound        = errors.New("app not found")
	ErrGenerationNotFound = errors.New("generation not found")
)

const maxSlugAttempts = 5

type CreateAppData struct {
	Name        string
	Slug        string
	Description string
}

type UpdateAppData struct {
	Name        *string
	Description *string
	Preview     *preview.Preview
}

func (a *App) Preview() preview.Preview {
	return preview.Preview{HTML: a.Html, CSS: a.Css, JS: a.Js}
}

func ListApps(ctx context.Context, db *gorm.DB, limit, offset int) ([]App, error) {
	query := db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var apps []App
	if err := query.Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("error listing apps: %w", err)
	}
	return apps, nil
}

func GetApp(ctx context.Context, db *gorm.DB, id uuid.UUID) (App, error) {
	var app App
	if err := db.WithContext(ctx).First(&app, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return App{}, ErrAppNotFound
		}
		return App{}, fmt.Errorf("error getting app %v: %w", id, err)
	}
	return app, nil
}

func GetAppBySlug(ctx context.Context, db *gorm.DB, slug string) (App, error) {
	var app App
	if err := db.WithContext(ctx).First(&app, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return App{}, ErrAppNotFound
		}
		return App{}, fmt.Errorf("error getting app with slug '%s': %w", slug, err)
	}
	return app, nil
}

func CreateApp(ctx context.Context, db *gorm.DB, data CreateAppData) (App, error) {
	base := data.Slug
	if base == "" {
		base = GenerateSlug(data.Name)
	}

	defaults := preview.DefaultPreview(data.Name)

	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		var existing []string
		if err := db.WithContext(ctx).Model(&App{}).Pluck("slug", &existing).Error; err != nil {
			return App{}, fmt.Errorf("error listing existing slugs: %w", err)
		}

		app := App{
			Id:          uuid.New(),
			Name:        data.Name,
			Slug:        EnsureUniqueSlug(base, existing),
			Description: sql.NullString{String: data.Description, Valid: data.Description != ""},
			Html:        defaults.HTML,
			Css:         defaults.CSS,
			Js:          defaults.JS,
		}

		err := db.WithContext(ctx).Create(&app).Error
		if err == nil {
			return app, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return App{}, fmt.Errorf("error creating app: %w", err)
		}
		slog.Warn("slug was claimed concurrently, retrying", "slug", app.Slug, "attempt", attempt+1)
	}

	return App{}, fmt.Errorf("error creating app: could not allocate a unique slug for '%s'", base)
}

func UpdateApp(ctx context.Context, db *gorm.DB, id uuid.UUID, data UpdateAppData) (App, error) {
	updates := map[string]any{}
	if data.Name != nil {
		updates["name"] = *data.Name
	}
	if data.Description != nil {
		updates["description"] = sql.NullString{String: *data.Description, Valid: *data.Description != ""}
	}
	if data.Preview != nil {
		updates["html"] = data.Preview.HTML
		updates["css"] = data.Preview.CSS
		updates["js"] = data.Preview.JS
	}

	if len(updates) > 0 {
		result := db.WithContext(ctx).Model(&App{Id: id}).Updates(updates)
		if result.Error != nil {
			return App{}, fmt.Errorf("error updating app %v: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return App{}, ErrAppNotFound
		}
	}

	return GetApp(ctx, db, id)
}

func UpdateAppPreview(ctx context.Context, db *gorm.DB, id uuid.UUID, p preview.Preview) error {
	_, err := UpdateApp(ctx, db, id, UpdateAppData{Preview: &p})
	return err
}

func DeleteApp(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	return db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Delete(&Generation{}, "app_id = ?", id).Error; err != nil {
			return fmt.Errorf("error deleting generations for app %v: %w", id, err)
		}
		if err := txn.Delete(&Message{}, "app_id = ?", id).Error; err != nil {
			return fmt.Errorf("error deleting messages for app %v: %w", id, err)
		}
		result := txn.Delete(&App{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("error deleting app %v: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAppNotFound
		}
		return nil
	})
}

func GetConversation(ctx context.Context, db *gorm.DB, appId uuid.UUID) ([]Message, error) {
	var messages []Message
	if err := db.WithContext(ctx).
		Where("app_id = ?", appId).
		Order("created_at ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("error getting conversation for app %v: %w", appId, err)
	}
	return messages, nil
}

func AddMessage(ctx context.Context, db *gorm.DB, appId uuid.UUID, role, content string) (Message, error) {
	message := Message{
		Id:      uuid.New(),
		AppId:   appId,
		Role:    role,
		Content: content,
	}
	if err := db.WithContext(ctx).Create(&message).Error; err != nil {
		slog.Error("error adding message", "app_id", appId, "role", role, "error", err)
		return Message{}, fmt.Errorf("error adding message: %w", err)
	}
	return message, nil
}

func CreateGeneration(ctx context.Context, db *gorm.DB, appId, userMessageId uuid.UUID, status string) (Generation, error) {
	generation := Generation{
		Id:            uuid.New(),
		AppId:         appId,
		UserMessageId: userMessageId,
		Status:        status,
		CreationTime:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(&generation).Error; err != nil {
		return Generation{}, fmt.Errorf("error creating generation: %w", err)
	}
	return generation, nil
}

func GetGeneration(ctx context.Context, db *gorm.DB, id uuid.UUID) (Generation, error) {
	var generation Generation
	if err := db.WithContext(ctx).First(&generation, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Generation{}, ErrGenerationNotFound
		}
		return Generation{}, fmt.Errorf("error getting generation %v: %w", id, err)
	}
	return generation, nil
}

func UpdateGenerationStatus(ctx context.Context, txn *gorm.DB, id uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == GenerationCompleted || status == GenerationFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&Generation{Id: id}).Updates(updates).Error; err != nil {
		slog.Error("error updating generation status", "generation_id", id, "status", status, "error", err)
		return err
	}
	return nil
}

type GenerationResult struct {
	Status             string
	ParseMode          string
	Model              string
	RawResponse        string
	Usage              map[string]int
	AssistantMessageId uuid.UUID
	PreviewSaved       bool
	Error              error
}

func CompleteGeneration(ctx context.Context, txn *gorm.DB, id uuid.UUID, result GenerationResult) error {
	updates := map[string]any{
		"status":          result.Status,
		"parse_mode":      result.ParseMode,
		"model":           result.Model,
		"raw_response":    result.RawResponse,
		"preview_saved":   result.PreviewSaved,
		"completion_time": time.Now().UTC(),
	}

	if result.AssistantMessageId != uuid.Nil {
		updates["assistant_message_id"] = uuid.NullUUID{UUID: result.AssistantMessageId, Valid: true}
	}
	if result.Error != nil {
		updates["error"] = sql.NullString{String: result.Error.Error(), Valid: true}
	}
	if result.Usage != nil {
		usage, err := json.Marshal(result.Usage)
		if err != nil {
			return fmt.Errorf("could not marshal usage: %w", err)
		}
		updates["usage"] = datatypes.JSON(usage)
	}

	if err := txn.WithContext(ctx).Model(&Generation{Id: id}).Updates(updates).Error; err != nil {
		slog.Error("error completing generation", "generation_id", id, "status", result.Status, "error", err)
		return fmt.Errorf("error completing generation %v: %w", id, err)
	}
	return nil
}

func ListGenerationsByStatus(ctx context.Context, db *gorm.DB, status string) ([]Generation, error) {
	var generations []Generation
	if err := db.WithContext(ctx).
		Where("status = ?", status).
		Order("creation_time ASC").
		Find(&generations).Error; err != nil {
		return nil, fmt.Errorf("error listing %s generations: %w", status, err)
	}
	return generations, nil
}
