package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"appgen-backend/internal/builder"
	"appgen-backend/internal/database"
	"appgen-backend/internal/preview"
	"appgen-backend/internal/storage"
	"appgen-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxNameLength    = 255
)

type BackendService struct {
	db        *gorm.DB
	builder   *builder.Builder
	publisher *storage.AppPublisher
}

// NewBackendService creates the http service. publisher may be nil, in which case the
// publish endpoint reports that publishing is not configured.
func NewBackendService(db *gorm.DB, builder *builder.Builder, publisher *storage.AppPublisher) *BackendService {
	return &BackendService{db: db, builder: builder, publisher: publisher}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	r.Route("/apps", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListApps))
		r.Post("/", RestHandler(s.CreateApp))
		r.Get("/slug/{slug}", RestHandler(s.GetAppBySlug))

		r.Route("/{app_id}", func(r chi.Router) {
			r.Get("/", RestHandler(s.GetApp))
			r.Patch("/", RestHandler(s.UpdateApp))
			r.Delete("/", RestHandler(s.DeleteApp))

			r.Get("/messages", RestHandler(s.ListMessages))
			r.Post("/messages", RestHandler(s.SendMessage))
			r.Get("/generations/{generation_id}", RestHandler(s.GetGeneration))

			r.Put("/preview", RestHandler(s.UpdatePreview))
			r.Get("/preview", RawHandler(s.RenderPreview))
			r.Get("/frame", RawHandler(s.RenderFrame))
			r.Get("/download", RawHandler(s.Download))
			r.Post("/publish", RestHandler(s.Publish))
		})
	})
}

func appError(err error, action string) error {
	switch {
	case errors.Is(err, database.ErrAppNotFound):
		return CodedErrorf(http.StatusNotFound, "app not found")
	case errors.Is(err, database.ErrGenerationNotFound):
		return CodedErrorf(http.StatusNotFound, "generation not found")
	case errors.Is(err, builder.ErrEmptyMessage):
		return CodedError(http.StatusBadRequest, err)
	case errors.Is(err, builder.ErrAsyncUnavailable):
		return CodedError(http.StatusNotImplemented, err)
	default:
		slog.Error("error "+action, "error", err)
		return CodedErrorf(http.StatusInternalServerError, "error %s", action)
	}
}

func (s *BackendService) loadApp(r *http.Request) (database.App, error) {
	appId, err := URLParamUUID(r, "app_id")
	if err != nil {
		return database.App{}, err
	}

	app, err := database.GetApp(r.Context(), s.db, appId)
	if err != nil {
		return database.App{}, appError(err, "retrieving app")
	}
	return app, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", CodedErrorf(http.StatusBadRequest, "app name is required")
	}
	if len(name) > maxNameLength {
		return "", CodedErrorf(http.StatusBadRequest, "app name must be at most %d characters", maxNameLength)
	}
	return name, nil
}

func (s *BackendService) ListApps(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListAppsParams](r)
	if err != nil {
		return nil, err
	}

	if params.Limit < 0 || params.Offset < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "limit and offset must be non-negative")
	}
	if params.Limit == 0 {
		params.Limit = defaultListLimit
	}
	params.Limit = min(params.Limit, maxListLimit)

	apps, err := database.ListApps(r.Context(), s.db, params.Limit, params.Offset)
	if err != nil {
		return nil, appError(err, "listing apps")
	}

	return convertApps(apps), nil
}

func (s *BackendService) CreateApp(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateAppRequest](r)
	if err != nil {
		return nil, err
	}

	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}

	app, err := database.CreateApp(r.Context(), s.db, database.CreateAppData{
		Name:        name,
		Slug:        database.GenerateSlug(req.Slug),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return nil, appError(err, "creating app")
	}

	slog.Info("created app", "app_id", app.Id, "slug", app.Slug)

	return convertApp(app), nil
}

func (s *BackendService) GetApp(r *http.Request) (any, error) {
	app, err := s.loadApp(r)
	if err != nil {
		return nil, err
	}
	return convertApp(app), nil
}

func (s *BackendService) GetAppBySlug(r *http.Request) (any, error) {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "missing {slug} url parameter")
	}

	app, err := database.GetAppBySlug(r.Context(), s.db, slug)
	if err != nil {
		return nil, appError(err, "retrieving app")
	}
	return convertApp(app), nil
}

func (s *BackendService) UpdateApp(r *http.Request) (any, error) {
	appId, err := URLParamUUID(r, "app_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.UpdateAppRequest](r)
	if err != nil {
		return nil, err
	}

	data := database.UpdateAppData{}
	if req.Name != nil {
		name, err := validateName(*req.Name)
		if err != nil {
			return nil, err
		}
		data.Name = &name
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		data.Description = &description
	}

	app, err := database.UpdateApp(r.Context(), s.db, appId, data)
	if err != nil {
		return nil, appError(err, "updating app")
	}
	return convertApp(app), nil
}

func (s *BackendService) DeleteApp(r *http.Request) (any, error) {
	app, err := s.loadApp(r)
	if err != nil {
		return nil, err
	}

	if err := database.DeleteApp(r.Context(), s.db, app.Id); err != nil {
		return nil, appError(err, "deleting app")
	}

	if s.publisher != nil {
		if err := s.publisher.Unpublish(r.Context(), app.Slug); err != nil {
			slog.Warn("error removing published files of deleted app", "app_id", app.Id, "error", err)
		}
	}

	slog.Info("deleted app", "app_id", app.Id)

	return nil, nil
}

func (s *BackendService) UpdatePreview(r *http.Request) (any, error) {
	appId, err := URLParamUUID(r, "app_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.UpdatePreviewRequest](r)
	if err != nil {
		return nil, err
	}

	pv := preview.Preview{HTML: req.Html, CSS: req.Css, JS: req.Js}
	app, err := database.UpdateApp(r.Context(), s.db, appId, database.UpdateAppData{Preview: &pv})
	if err != nil {
		return nil, appError(err, "updating preview")
	}
	return convertApp(app), nil
}

func (s *BackendService) ListMessages(r *http.Request) (any, error) {
	app, err := s.loadApp(r)
	if err != nil {
		return nil, err
	}

	messages, err := database.GetConversation(r.Context(), s.db, app.Id)
	if err != nil {
		return nil, appError(err, "retrieving messages")
	}
	return convertMessages(messages), nil
}

func (s *BackendService) SendMessage(r *http.Request) (any, error) {
	appId, err := URLParamUUID(r, "app_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.SendMessageRequest](r)
	if err != nil {
		return nil, err
	}

	if req.Async {
		result, err := s.builder.EnqueueMessage(r.Context(), appId, req.Message)
		if err != nil {
			return nil, appError(err, "queueing message")
		}
		return api.SendMessageResponse{
			UserMessage: convertMessage(result.UserMessage),
			Generation:  convertGeneration(result.Generation),
		}, nil
	}

	result, err := s.builder.SendMessage(r.Context(), appId, req.Message)
	if err != nil {
		return nil, appError(err, "processing message")
	}

	assistant := convertMessage(result.AssistantMessage)
	pv := api.Preview{Html: result.Preview.HTML, Css: result.Preview.CSS, Js: result.Preview.JS}

	return api.SendMessageResponse{
		UserMessage:      convertMessage(result.UserMessage),
		AssistantMessage: &assistant,
		Generation:       convertGeneration(result.Generation),
		Preview:          &pv,
		PreviewUpdated:   result.PreviewUpdated,
	}, nil
}

func (s *BackendService) GetGeneration(r *http.Request) (any, error) {
	appId, err := URLParamUUID(r, "app_id")
	if err != nil {
		return nil, err
	}
	generationId, err := URLParamUUID(r, "generation_id")
	if err != nil {
		return nil, err
	}

	generation, err := database.GetGeneration(r.Context(), s.db, generationId)
	if err != nil {
		return nil, appError(err, "retrieving generation")
	}
	if generation.AppId != appId {
		return nil, CodedErrorf(http.StatusNotFound, "generation not found")
	}

	return convertGeneration(generation), nil
}

func (s *BackendService) RenderPreview(r *http.Request) (RawResponse, error) {
	app, err := s.loadApp(r)
	if err != nil {
		return RawResponse{}, err
	}

	document, err := preview.PreviewDocument(app.Name, app.Preview())
	if err != nil {
		return RawResponse{}, appError(err, "rendering preview")
	}

	return RawResponse{
		ContentType: "text/html; charset=utf-8",
		Headers: map[string]string{
			"Content-Security-Policy": preview.ContentSecurityPolicy(),
			"X-Content-Type-Options":  "nosniff",
		},
		Body: []byte(document),
	}, nil
}

func (s *BackendService) RenderFrame(r *http.Request) (RawResponse, error) {
	app, err := s.loadApp(r)
	if err != nil {
		return RawResponse{}, err
	}

	document, err := preview.PreviewDocument(app.Name, app.Preview())
	if err != nil {
		return RawResponse{}, appError(err, "rendering preview")
	}

	frame, err := preview.SandboxFrame(app.Name, document)
	if err != nil {
		return RawResponse{}, appError(err, "rendering preview frame")
	}

	return RawResponse{ContentType: "text/html; charset=utf-8", Body: []byte(frame)}, nil
}

func (s *BackendService) Download(r *http.Request) (RawResponse, error) {
	params, err := ParseRequestQueryParams[api.DownloadParams](r)
	if err != nil {
		return RawResponse{}, err
	}

	app, err := s.loadApp(r)
	if err != nil {
		return RawResponse{}, err
	}

	pv := app.Preview()
	base := preview.BaseFilename(app.Name, app.Slug)

	format := strings.ToLower(params.Format)
	switch format {
	case "", "html":
		document, err := preview.CompleteDocument(app.Name, pv)
		if err != nil {
			return RawResponse{}, appError(err, "rendering document")
		}
		return RawResponse{ContentType: preview.TypeHTML, Filename: base + ".html", Body: []byte(document)}, nil

	case "css", "js":
		contentType := preview.TypeCSS
		if format == "js" {
			contentType = preview.TypeJavaScript
		}
		for _, f := range preview.ProjectFiles(app.Name, app.Slug, pv) {
			if f.ContentType == contentType {
				return RawResponse{ContentType: f.ContentType, Filename: f.Name, Body: []byte(f.Content)}, nil
			}
		}
		return RawResponse{}, CodedErrorf(http.StatusNotFound, "app has no %s to download", format)

	case "zip":
		files, err := preview.DownloadFiles(app.Name, app.Slug, pv)
		if err != nil {
			return RawResponse{}, appError(err, "rendering download")
		}
		if len(files) == 0 {
			return RawResponse{}, CodedErrorf(http.StatusNotFound, "app has no content to download")
		}
		archive, err := preview.ZipArchive(files)
		if err != nil {
			return RawResponse{}, appError(err, "building archive")
		}
		return RawResponse{ContentType: "application/zip", Filename: base + ".zip", Body: archive}, nil

	default:
		return RawResponse{}, CodedErrorf(http.StatusBadRequest, "unsupported download format '%s': expected html, css, js or zip", params.Format)
	}
}

func (s *BackendService) Publish(r *http.Request) (any, error) {
	if s.publisher == nil {
		return nil, CodedErrorf(http.StatusNotImplemented, "publishing is not configured")
	}

	app, err := s.loadApp(r)
	if err != nil {
		return nil, err
	}

	if app.Preview().IsEmpty() {
		return nil, CodedErrorf(http.StatusBadRequest, "app has no content to publish")
	}

	publication, err := s.publisher.Publish(r.Context(), app.Name, app.Slug, app.Preview())
	if err != nil {
		return nil, appError(fmt.Errorf("error publishing app %v: %w", app.Id, err), "publishing app")
	}

	return api.PublishResponse{
		Bucket: publication.Bucket,
		Keys:   publication.Keys,
		Url:    publication.URL,
	}, nil
}

