package api_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	backend "appgen-backend/internal/api"
	"appgen-backend/internal/builder"
	"appgen-backend/internal/database"
	"appgen-backend/internal/llm"
	"appgen-backend/internal/messaging"
	"appgen-backend/internal/storage"
	"appgen-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := database.NewSqliteDatabase(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	return db
}

type testEnv struct {
	db     *gorm.DB
	model  *llm.Static
	queue  *messaging.InMemoryQueue
	store  *storage.LocalObjectStore
	router *chi.Mux
}

func setup(t *testing.T, responses ...string) testEnv {
	db := createDB(t)
	model := llm.NewStatic(responses...)
	queue := messaging.NewInMemoryQueue()
	t.Cleanup(queue.Close)

	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	publisher := storage.NewAppPublisher(store, "apps", "")

	b := builder.NewBuilder(db, model, builder.DefaultProfile(), queue)
	service := backend.NewBackendService(db, b, publisher)
	router := chi.NewRouter()
	service.AddRoutes(router)

	return testEnv{db: db, model: model, queue: queue, store: store, router: router}
}

func doRequest(router http.Handler, method, endpoint string, payload any) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, endpoint, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func createApp(t *testing.T, router http.Handler, name string) api.App {
	return decode[api.App](t, doRequest(router, http.MethodPost, "/apps", api.CreateAppRequest{Name: name}))
}

func TestHealth(t *testing.T) {
	env := setup(t)
	rec := doRequest(env.router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateApp(t *testing.T) {
	env := setup(t)

	app := createApp(t, env.router, "  My Todo App!  ")
	assert.Equal(t, "My Todo App!", app.Name)
	assert.Equal(t, "my-todo-app", app.Slug)
	assert.Contains(t, app.Preview.Html, "My Todo App!")
	assert.NotEmpty(t, app.Preview.Css)

	second := createApp(t, env.router, "My Todo App")
	assert.Equal(t, "my-todo-app-1", second.Slug)

	custom := decode[api.App](t, doRequest(env.router, http.MethodPost, "/apps", api.CreateAppRequest{Name: "Other", Slug: "Custom Slug", Description: "desc"}))
	assert.Equal(t, "custom-slug", custom.Slug)
	assert.Equal(t, "desc", custom.Description)

	rec := doRequest(env.router, http.MethodPost, "/apps", api.CreateAppRequest{Name: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/apps", bytes.NewReader([]byte("{bad json")))
	badRec := httptest.NewRecorder()
	env.router.ServeHTTP(badRec, req)
	assert.Equal(t, http.StatusBadRequest, badRec.Code)
}

func TestListAndGetApps(t *testing.T) {
	env := setup(t)

	first := createApp(t, env.router, "First")
	second := createApp(t, env.router, "Second")

	apps := decode[[]api.App](t, doRequest(env.router, http.MethodGet, "/apps", nil))
	require.Len(t, apps, 2)
	assert.ElementsMatch(t, []uuid.UUID{first.Id, second.Id}, []uuid.UUID{apps[0].Id, apps[1].Id})

	apps = decode[[]api.App](t, doRequest(env.router, http.MethodGet, "/apps?limit=1", nil))
	assert.Len(t, apps, 1)

	rec := doRequest(env.router, http.MethodGet, "/apps?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	got := decode[api.App](t, doRequest(env.router, http.MethodGet, "/apps/"+first.Id.String(), nil))
	assert.Equal(t, first.Id, got.Id)

	bySlug := decode[api.App](t, doRequest(env.router, http.MethodGet, "/apps/slug/second", nil))
	assert.Equal(t, second.Id, bySlug.Id)

	rec = doRequest(env.router, http.MethodGet, "/apps/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(env.router, http.MethodGet, "/apps/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(env.router, http.MethodGet, "/apps/slug/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateAndDeleteApp(t *testing.T) {
	env := setup(t)
	app := createApp(t, env.router, "Before")

	name, description := "After", "updated"
	updated := decode[api.App](t, doRequest(env.router, http.MethodPatch, "/apps/"+app.Id.String(), api.UpdateAppRequest{Name: &name, Description: &description}))
	assert.Equal(t, "After", updated.Name)
	assert.Equal(t, "updated", updated.Description)
	assert.Equal(t, app.Slug, updated.Slug)

	empty := " "
	rec := doRequest(env.router, http.MethodPatch, "/apps/"+app.Id.String(), api.UpdateAppRequest{Name: &empty})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	pv := decode[api.App](t, doRequest(env.router, http.MethodPut, "/apps/"+app.Id.String()+"/preview", api.UpdatePreviewRequest{Html: "<p>manual</p>"}))
	assert.Equal(t, api.Preview{Html: "<p>manual</p>"}, pv.Preview)

	rec = doRequest(env.router, http.MethodDelete, "/apps/"+app.Id.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(env.router, http.MethodGet, "/apps/"+app.Id.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(env.router, http.MethodDelete, "/apps/"+app.Id.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessage(t *testing.T) {
	env := setup(t, `{"html": "<h1>Hello</h1>", "css": "h1 { color: green; }", "explanation": "Added a greeting"}`)
	app := createApp(t, env.router, "Greeter")

	res := decode[api.SendMessageResponse](t, doRequest(env.router, http.MethodPost, "/apps/"+app.Id.String()+"/messages", api.SendMessageRequest{Message: "say hello"}))

	assert.Equal(t, "say hello", res.UserMessage.Content)
	require.NotNil(t, res.AssistantMessage)
	assert.Equal(t, "Added a greeting", res.AssistantMessage.Content)
	assert.True(t, res.PreviewUpdated)
	require.NotNil(t, res.Preview)
	assert.Equal(t, "<h1>Hello</h1>", res.Preview.Html)
	assert.Equal(t, database.GenerationCompleted, res.Generation.Status)
	assert.Equal(t, builder.ModeJSON, res.Generation.ParseMode)
	assert.Equal(t, map[string]int{"input_tokens": 0, "output_tokens": 0}, res.Generation.Usage)

	messages := decode[[]api.Message](t, doRequest(env.router, http.MethodGet, "/apps/"+app.Id.String()+"/messages", nil))
	require.Len(t, messages, 2)
	assert.Equal(t, database.RoleUser, messages[0].Role)
	assert.Equal(t, database.RoleAssistant, messages[1].Role)

	generation := decode[api.Generation](t, doRequest(env.router, http.MethodGet, "/apps/"+app.Id.String()+"/generations/"+res.Generation.Id.String(), nil))
	assert.Equal(t, res.Generation.Id, generation.Id)
	require.NotNil(t, generation.AssistantMessageId)
	assert.Equal(t, res.AssistantMessage.Id, *generation.AssistantMessageId)

	other := createApp(t, env.router, "Other")
	rec := doRequest(env.router, http.MethodGet, "/apps/"+other.Id.String()+"/generations/"+res.Generation.Id.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(env.router, http.MethodPost, "/apps/"+app.Id.String()+"/messages", api.SendMessageRequest{Message: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(env.router, http.MethodPost, "/apps/"+uuid.New().String()+"/messages", api.SendMessageRequest{Message: "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(env.router, http.MethodGet, "/apps/"+uuid.New().String()+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessageModelError(t *testing.T) {
	env := setup(t)
	env.model.Err = context.DeadlineExceeded
	app := createApp(t, env.router, "Timeout")

	res := decode[api.SendMessageResponse](t, doRequest(env.router, http.MethodPost, "/apps/"+app.Id.String()+"/messages", api.SendMessageRequest{Message: "build"}))
	require.NotNil(t, res.AssistantMessage)
	assert.Equal(t, builder.ApologyExplanation, res.AssistantMessage.Content)
	assert.False(t, res.PreviewUpdated)
	assert.Equal(t, database.GenerationFailed, res.Generation.Status)
	assert.Equal(t, builder.ModeModelError, res.Generation.ParseMode)
	assert.NotEmpty(t, res.Generation.Error)
}

func TestSendMessageAsync(t *testing.T) {
	env := setup(t, `{"js": "console.log(1)", "explanation": "Added logging"}`)
	app := createApp(t, env.router, "Async")

	res := decode[api.SendMessageResponse](t, doRequest(env.router, http.MethodPost, "/apps/"+app.Id.String()+"/messages", api.SendMessageRequest{Message: "log something", Async: true}))
	assert.Equal(t, database.GenerationQueued, res.Generation.Status)
	assert.Nil(t, res.AssistantMessage)
	assert.Nil(t, res.Preview)

	worker := messaging.NewWorker(builder.NewBuilder(env.db, env.model, builder.DefaultProfile(), nil), env.queue, 1, 0)
	worker.ProcessTask(<-env.queue.Tasks())

	generation := decode[api.Generation](t, doRequest(env.router, http.MethodGet, "/apps/"+app.Id.String()+"/generations/"+res.Generation.Id.String(), nil))
	assert.Equal(t, database.GenerationCompleted, generation.Status)
	assert.True(t, generation.PreviewSaved)
	assert.NotNil(t, generation.CompletionTime)

	updated := decode[api.App](t, doRequest(env.router, http.MethodGet, "/apps/"+app.Id.String(), nil))
	assert.Equal(t, "console.log(1)", updated.Preview.Js)
}

func TestRenderPreview(t *testing.T) {
	env := setup(t)
	app := createApp(t, env.router, "Render")
	decode[api.App](t, doRequest(env.router, http.MethodPut, "/apps/"+app.Id.String()+"/preview", api.UpdatePreviewRequest{Html: "<p>hi</p>", Css: "p { margin: 0; }", Js: "console.log('x')"}))

	rec := doRequest(env.router, http.MethodGet, "/apps/"+app.Id.String()+"/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "sandbox allow-scripts allow-forms")
	assert.Contains(t, rec.Body.String(), "<p>hi</p>")
	assert.Contains(t, rec.Body.String(), "<script>")

	rec = doRequest(env.router, http.MethodGet, "/apps/"+app.Id.String()+"/frame", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sandbox="allow-scripts allow-forms"`)
	assert.Contains(t, rec.Body.String(), `title="App Preview"`)
	assert.Contains(t, rec.Body.String(), "&lt;p&gt;hi&lt;/p&gt;")

	rec = doRequest(env.router, http.MethodGet, "/apps/"+uuid.New().String()+"/preview", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownload(t *testing.T) {
	env := setup(t)
	app := createApp(t, env.router, "Download Me")
	decode[api.App](t, doRequest(env.router, http.MethodPut, "/apps/"+app.Id.String()+"/preview", api.UpdatePreviewRequest{Html: "<p>file</p>", Css: "p { color: red; }"}))

	base := "/apps/" + app.Id.String() + "/download"

	rec := doRequest(env.router, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="download-me.html"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "<p>file</p>")
	assert.Contains(t, rec.Body.String(), "p { color: red; }")
	assert.NotContains(t, rec.Body.String(), "<script>")

	rec = doRequest(env.router, http.MethodGet, base+"?format=css", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p { color: red; }", rec.Body.String())

	rec = doRequest(env.router, http.MethodGet, base+"?format=js", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(env.router, http.MethodGet, base+"?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(env.router, http.MethodGet, base+"?format=zip", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	reader, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"download-me.html", "download-me.css"}, names)
}

func TestPublish(t *testing.T) {
	env := setup(t)
	app := createApp(t, env.router, "Publish")

	res := decode[api.PublishResponse](t, doRequest(env.router, http.MethodPost, "/apps/"+app.Id.String()+"/publish", nil))
	assert.Equal(t, "apps", res.Bucket)
	assert.Contains(t, res.Keys, "publish/index.html")

	objects, err := env.store.ListObjects(context.Background(), "apps", "publish/")
	require.NoError(t, err)
	assert.NotEmpty(t, objects)

	rec := doRequest(env.router, http.MethodDelete, "/apps/"+app.Id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	objects, err = env.store.ListObjects(context.Background(), "apps", "publish/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestPublishNotConfigured(t *testing.T) {
	db := createDB(t)
	service := backend.NewBackendService(db, builder.NewBuilder(db, llm.NewStatic(), builder.DefaultProfile(), nil), nil)
	router := chi.NewRouter()
	service.AddRoutes(router)

	app := createApp(t, router, "No publisher")
	rec := doRequest(router, http.MethodPost, "/apps/"+app.Id.String()+"/publish", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = doRequest(router, http.MethodPost, "/apps/"+app.Id.String()+"/messages", api.SendMessageRequest{Message: "hi", Async: true})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
