package builder

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"appgen-backend/internal/database"
	"appgen-backend/internal/llm"
	"appgen-backend/internal/messaging"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := database.NewSqliteDatabase(filepath.Join(t.TempDir(), "builder.db"))
	require.NoError(t, err)
	return db
}

func createApp(t *testing.T, db *gorm.DB, name string) database.App {
	app, err := database.CreateApp(context.Background(), db, database.CreateAppData{Name: name})
	require.NoError(t, err)
	return app
}

func TestSendMessageUpdatesPreview(t *testing.T) {
	ctx := context.Background()
	db := createDB(t)
	app := createApp(t, db, "Counter")

	model := llm.NewStatic(`{"html": "<button id=\"c\">0</button>", "css": "button { color: blue; }", "js": "", "explanation": "Added a counter button"}`)
	b := NewBuilder(db, model, DefaultProfile(), nil)

	result, err := b.SendMessage(ctx, app.Id, "  build a counter  ")
	require.NoError(t, err)

	assert.Equal(t, "build a counter", result.UserMessage.Content)
	assert.Equal(t, "Added a counter button", result.AssistantMessage.Content)
	assert.True(t, result.PreviewUpdated)
	assert.Equal(t, `<button id="c">0</button>`, result.Preview.HTML)
	assert.Equal(t, "button { color: blue; }", result.Preview.CSS)
	assert.Equal(t, app.Js, result.Preview.JS)

	assert.Equal(t, database.GenerationCompleted, result.Generation.Status)
	assert.Equal(t, ModeJSON, result.Generation.ParseMode)
	assert.Equal(t, DefaultModel, result.Generation.Model)
	assert.True(t, result.Generation.PreviewSaved)
	assert.True(t, result.Generation.CompletionTime.Valid)

	stored, err := database.GetApp(ctx, db, app.Id)
	require.NoError(t, err)
	assert.Equal(t, result.Preview, stored.Preview())

	conversation, err := database.GetConversation(ctx, db, app.Id)
	require.NoError(t, err)
	require.Len(t, conversation, 2)
	assert.Equal(t, database.RoleUser, conversation[0].Role)
	assert.Equal(t, database.RoleAssistant, conversation[1].Role)

	req, ok := model.LastRequest()
	require.True(t, ok)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "build a counter", req.Messages[0].Content)
	assert.Contains(t, req.System, "- App name: Counter")
}

func TestSendMessageCarriesHistory(t *testing.T) {
	ctx := context.Background()
	db := createDB(t)
	app := createApp(t, db, "Notes")

	model := llm.NewStatic(
		`{"html": "<ul></ul>", "explanation": "Made a list"}`,
		`{"css": "ul { padding: 0; }", "explanation": "Styled the list"}`,
	)
	b := NewBuilder(db, model, DefaultProfile(), nil)

	_, err := b.SendMessage(ctx, app.Id, "make a list")
	require.NoError(t, err)

	result, err := b.SendMessage(ctx, app.Id, "style it")
	require.NoError(t, err)
	assert.Equal(t, "<ul></ul>", result.Preview.HTML)
	assert.Equal(t, "ul { padding: 0; }", result.Preview.CSS)

	req, ok := model.LastRequest()
	require.True(t, ok)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "make a list"}, req.Messages[0])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "Made a list"}, req.Messages[1])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "style it"}, req.Messages[2])
	assert.Contains(t, req.System, "- Current HTML: <ul></ul>")
}

func TestSendMessageWithoutCodeKeepsPreview(t *testing.T) {
	ctx := context.Background()
	db := createDB(t)
	app := createApp(t, db, "Chat")

	b := NewBuilder(db, llm.NewStatic("Could you describe the layout you want?"), DefaultProfile(), nil)

	result, err := b.SendMessage(ctx, app.Id, "make it nice")
	require.NoError(t, err)

	assert.False(t, result.PreviewUpdated)
	assert.Equal(t, "Could you describe the layout you want?", result.AssistantMessage.Content)
	assert.Equal(t, ModePlainText, result.Generation.ParseMode)
	assert.Equal(t, app.Preview(), result.Preview)

	stored, err := database.GetApp(ctx, db, app.Id)
	require.NoError(t, err)
	assert.Equal(t, app.Preview(), stored.Preview())
}

func TestSendMessageModelFailure(t *testing.T) {
	ctx := context.Background()
	db := createDB(t)
	app := createApp(t, db, "Broken")

	model := llm.NewStatic()
	model.Err = errors.New("upstream unavailable")
	b := NewBuilder(db, model, DefaultProfile(), nil)

	result, err := b.SendMessage(ctx, app.Id, "build something")
	require.NoError(t, err)

	assert.Equal(t, ApologyExplanation, result.AssistantMessage.Content)
	assert.False(t, result.PreviewUpdated)
	assert.Equal(t, database.GenerationFailed, result.Generation.Status)
	assert.Equal(t, ModeModelError, result.Generation.ParseMode)
	assert.Equal(t, "upstream unavailable", result.Generation.Error.String)

	stored, err := database.GetApp(ctx, db, app.Id)
	require.NoError(t, err)
	assert.Equal(t, app.Preview(), stored.Preview())

	conversation, err := database.GetConversation(ctx, db, app.Id)
	require.NoError(t, err)
	require.Len(t, conversation, 2)
	assert.Equal(t, ApologyExplanation, conversation[1].Content)
}

// cancellingModel cancels the caller's context mid request, like a client that
// disconnects or a generation timeout firing.
type cancellingModel struct {
	cancel context.CancelFunc
}

func (m *cancellingModel) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	m.cancel()
	<-ctx.Done()
	return llm.Response{}, ctx.Err()
}

func TestSendMessageContextCancelled(t *testing.T) {
	db := createDB(t)
	app := createApp(t, db, "Cancelled")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBuilder(db, &cancellingModel{cancel: cancel}, DefaultProfile(), nil)

	result, err := b.SendMessage(ctx, app.Id, "build something")
	require.NoError(t, err)
	assert.Equal(t, ApologyExplanation, result.AssistantMessage.Content)
	assert.Equal(t, database.GenerationFailed, result.Generation.Status)
	assert.Equal(t, ModeModelError, result.Generation.ParseMode)

	stored, err := database.GetGeneration(context.Background(), db, result.Generation.Id)
	require.NoError(t, err)
	assert.Equal(t, database.GenerationFailed, stored.Status)
	assert.True(t, stored.CompletionTime.Valid)
	assert.Equal(t, context.Canceled.Error(), stored.Error.String)

	conversation, err := database.GetConversation(context.Background(), db, app.Id)
	require.NoError(t, err)
	require.Len(t, conversation, 2)
	assert.Equal(t, database.RoleAssistant, conversation[1].Role)
	assert.Equal(t, ApologyExplanation, conversation[1].Content)
}

func TestGenerateTimeoutMarksFailed(t *testing.T) {
	db := createDB(t)
	app := createApp(t, db, "Timeout")
	queue := messaging.NewInMemoryQueue()
	t.Cleanup(queue.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBuilder(db, &cancellingModel{cancel: cancel}, DefaultProfile(), queue)

	queued, err := b.EnqueueMessage(context.Background(), app.Id, "build something")
	require.NoError(t, err)

	require.NoError(t, b.Generate(ctx, queued.Generation.Id))

	stored, err := database.GetGeneration(context.Background(), db, queued.Generation.Id)
	require.NoError(t, err)
	assert.Equal(t, database.GenerationFailed, stored.Status)
	assert.Equal(t, ModeModelError, stored.ParseMode)
	assert.True(t, stored.AssistantMessageId.Valid)
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	db := createDB(t)
	app := createApp(t, db, "Validation")
	model := llm.NewStatic(`{"html": "<p>x</p>"}`)
	b := NewBuilder(db, model, DefaultProfile(), nil)

	_, err := b.SendMessage(ctx, app.Id, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = b.SendMessage(ctx, uuid.New(), "hello")
	assert.ErrorIs(t, err, database.ErrAppNotFound)

	conversation, err := database.GetConversation(ctx, db, app.Id)
	require.NoError(t, err)
	assert.Empty(t, conversation)
	assert.Empty(t, model.Requests)
}

func TestSendMessageHardensHtml(t *testing.T) {
	ctx := context.Background()
	db := createDB(t)
	app := createApp(t, db, "Form")

	b := NewBuilder(db, llm.NewStatic(`{"html": "<form action=\"https://evil.example/collect\"><input name=\"q\"></form><script src=\"https://cdn.example/x.js\"></script>", "explanation": "Added a form"}`), DefaultProfile(), nil)

	result, err := b.SendMessage(ctx, app.Id, "add a search form")
	require.NoError(t, err)

	assert.NotContains(t, result.Preview.HTML, "evil.example")
	assert.NotContains(t, result.Preview.HTML, "cdn.example")
	assert.Contains(t, result.Preview.HTML, `<input name="q"/>`)
}

func TestEnqueueMessageAndGenerate(t *testing.T) {
	ctx := context.Background()
	db := createDB(t)
	app := createApp(t, db, "Queued")

	queue := messaging.NewInMemoryQueue()
	defer queue.Close()

	model := llm.NewStatic(`{"html": "<h1>Queued</h1>", "explanation": "Added a title"}`)
	b := NewBuilder(db, model, DefaultProfile(), queue)

	queued, err := b.EnqueueMessage(ctx, app.Id, "add a title")
	require.NoError(t, err)
	generation := queued.Generation
	assert.Equal(t, database.GenerationQueued, generation.Status)
	assert.Equal(t, "add a title", queued.UserMessage.Content)
	assert.Empty(t, model.Requests)

	task := <-queue.Tasks()
	assert.Equal(t, messaging.GenerationQueue, task.Type())

	var payload messaging.GenerationPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, messaging.GenerationPayload{GenerationId: generation.Id, AppId: app.Id}, payload)

	require.NoError(t, b.Generate(ctx, payload.GenerationId))

	stored, err := database.GetGeneration(ctx, db, generation.Id)
	require.NoError(t, err)
	assert.Equal(t, database.GenerationCompleted, stored.Status)
	assert.True(t, stored.AssistantMessageId.Valid)

	updated, err := database.GetApp(ctx, db, app.Id)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Queued</h1>", updated.Html)

	// already finished generations are not rerun
	require.NoError(t, b.Generate(ctx, payload.GenerationId))
	assert.Len(t, model.Requests, 1)
}

func TestQueuedGenerationIgnoresLaterMessages(t *testing.T) {
	ctx := context.Background()
	db := createDB(t)
	app := createApp(t, db, "Ordering")

	queue := messaging.NewInMemoryQueue()
	defer queue.Close()

	model := llm.NewStatic(`{"explanation": "ok"}`)
	b := NewBuilder(db, model, DefaultProfile(), queue)

	first, err := b.EnqueueMessage(ctx, app.Id, "first")
	require.NoError(t, err)
	_, err = b.EnqueueMessage(ctx, app.Id, "second")
	require.NoError(t, err)

	require.NoError(t, b.Generate(ctx, first.Generation.Id))

	req, ok := model.LastRequest()
	require.True(t, ok)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "first", req.Messages[0].Content)
}

func TestEnqueueMessageRequiresPublisher(t *testing.T) {
	db := createDB(t)
	app := createApp(t, db, "Sync only")

	b := NewBuilder(db, llm.NewStatic("hi"), DefaultProfile(), nil)
	_, err := b.EnqueueMessage(context.Background(), app.Id, "hello")
	assert.ErrorIs(t, err, ErrAsyncUnavailable)
}

func TestGenerateMissingGeneration(t *testing.T) {
	db := createDB(t)
	b := NewBuilder(db, llm.NewStatic("hi"), DefaultProfile(), nil)

	err := b.Generate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, database.ErrGenerationNotFound)
}

func TestConcurrentMessagesKeepBothChanges(t *testing.T) {
	ctx := context.Background()
	db := createDB(t)
	app := createApp(t, db, "Concurrent")

	model := llm.NewStatic(
		`{"css": "p { color: red; }", "explanation": "styled"}`,
		`{"js": "console.log(2)", "explanation": "scripted"}`,
	)
	b := NewBuilder(db, model, DefaultProfile(), nil)

	wg := sync.WaitGroup{}
	errs := make([]error, 2)
	for i, msg := range []string{"first", "second"} {
		wg.Add(1)
		go func(i int, msg string) {
			defer wg.Done()
			_, errs[i] = b.SendMessage(ctx, app.Id, msg)
		}(i, msg)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	stored, err := database.GetApp(ctx, db, app.Id)
	require.NoError(t, err)
	assert.Equal(t, "p { color: red; }", stored.Css)
	assert.Equal(t, "console.log(2)", stored.Js)
	assert.Equal(t, app.Html, stored.Html)
	assert.Zero(t, b.locks.size())

	conversation, err := database.GetConversation(ctx, db, app.Id)
	require.NoError(t, err)
	require.Len(t, conversation, 4)
	for i, msg := range conversation {
		if i%2 == 0 {
			assert.Equal(t, database.RoleUser, msg.Role)
		} else {
			assert.Equal(t, database.RoleAssistant, msg.Role)
		}
	}

	// the second turn saw the first turn's reply
	require.Len(t, model.Requests, 2)
	second := model.Requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, llm.RoleUser, second[0].Role)
	assert.Equal(t, llm.RoleAssistant, second[1].Role)
	assert.Equal(t, llm.RoleUser, second[2].Role)
}
