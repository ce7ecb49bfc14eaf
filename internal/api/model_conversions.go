package api

import (
	"encoding/json"
	"log/slog"

	"appgen-backend/internal/database"
	"appgen-backend/pkg/api"
)

func convertApp(a database.App) api.App {
	return api.App{
		Id:          a.Id,
		Name:        a.Name,
		Slug:        a.Slug,
		Description: a.Description.String,
		Preview:     api.Preview{Html: a.Html, Css: a.Css, Js: a.Js},
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func convertApps(as []database.App) []api.App {
	apps := make([]api.App, 0, len(as))
	for _, a := range as {
		apps = append(apps, convertApp(a))
	}
	return apps
}

func convertMessage(m database.Message) api.Message {
	return api.Message{
		Id:        m.Id,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func convertMessages(ms []database.Message) []api.Message {
	messages := make([]api.Message, 0, len(ms))
	for _, m := range ms {
		messages = append(messages, convertMessage(m))
	}
	return messages
}

func convertGeneration(g database.Generation) api.Generation {
	generation := api.Generation{
		Id:            g.Id,
		AppId:         g.AppId,
		UserMessageId: g.UserMessageId,
		Status:        g.Status,
		ParseMode:     g.ParseMode,
		Model:         g.Model,
		Error:         g.Error.String,
		PreviewSaved:  g.PreviewSaved,
		CreationTime:  g.CreationTime,
	}

	if g.AssistantMessageId.Valid {
		id := g.AssistantMessageId.UUID
		generation.AssistantMessageId = &id
	}
	if g.CompletionTime.Valid {
		t := g.CompletionTime.Time
		generation.CompletionTime = &t
	}
	if len(g.Usage) > 0 {
		if err := json.Unmarshal(g.Usage, &generation.Usage); err != nil {
			slog.Warn("error decoding generation usage", "generation_id", g.Id, "error", err)
		}
	}

	return generation
}
