package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"appgen-backend/internal/database"
	"appgen-backend/internal/llm"
	"appgen-backend/internal/messaging"
	"appgen-backend/internal/preview"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// finishTimeout bounds the writes that record a failed turn. They run detached from
// the caller's context, which is often the reason the turn failed.
const finishTimeout = 10 * time.Second

var (
	ErrEmptyMessage      = errors.New("message cannot be empty")
	ErrAsyncUnavailable  = errors.New("asynchronous generation is not configured")
	ErrMessageNotInStore = errors.New("generation references a missing user message")
)

type Builder struct {
	db        *gorm.DB
	model     llm.LLM
	profile   Profile
	publisher messaging.Publisher
	locks     *appLocks
}

// NewBuilder returns a Builder. The publisher may be nil, in which case only
// synchronous generation is available.
func NewBuilder(db *gorm.DB, model llm.LLM, profile Profile, publisher messaging.Publisher) *Builder {
	return &Builder{
		db:        db,
		model:     model,
		profile:   profile.withDefaults(),
		publisher: publisher,
		locks:     newAppLocks(),
	}
}

type Result struct {
	Generation       database.Generation
	UserMessage      database.Message
	AssistantMessage database.Message
	Preview          preview.Preview
	PreviewUpdated   bool
}

func (b *Builder) startGeneration(ctx context.Context, appId uuid.UUID, message, status string) (database.Message, database.Generation, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return database.Message{}, database.Generation{}, ErrEmptyMessage
	}

	if _, err := database.GetApp(ctx, b.db, appId); err != nil {
		return database.Message{}, database.Generation{}, err
	}

	var userMessage database.Message
	var generation database.Generation
	err := b.db.Transaction(func(txn *gorm.DB) error {
		var err error
		userMessage, err = database.AddMessage(ctx, txn, appId, database.RoleUser, message)
		if err != nil {
			return err
		}
		generation, err = database.CreateGeneration(ctx, txn, appId, userMessage.Id, status)
		return err
	})
	if err != nil {
		return database.Message{}, database.Generation{}, err
	}

	return userMessage, generation, nil
}

// SendMessage records the user's message and runs the generation before returning.
// The message is stored under the app's lock so that it follows the reply to any
// turn still in progress.
func (b *Builder) SendMessage(ctx context.Context, appId uuid.UUID, message string) (Result, error) {
	defer b.lockApp(appId)()

	_, generation, err := b.startGeneration(ctx, appId, message, database.GenerationRunning)
	if err != nil {
		return Result{}, err
	}
	return b.run(ctx, generation)
}

// EnqueueMessage records the user's message and leaves the generation to a worker.
// The returned result only carries the user message and the queued generation.
func (b *Builder) EnqueueMessage(ctx context.Context, appId uuid.UUID, message string) (Result, error) {
	if b.publisher == nil {
		return Result{}, ErrAsyncUnavailable
	}

	userMessage, generation, err := b.startGeneration(ctx, appId, message, database.GenerationQueued)
	if err != nil {
		return Result{}, err
	}

	payload := messaging.GenerationPayload{GenerationId: generation.Id, AppId: appId}
	if err := b.publisher.PublishGenerationTask(ctx, payload); err != nil {
		slog.Error("error publishing generation task", "generation_id", generation.Id, "error", err)
		result := database.GenerationResult{Status: database.GenerationFailed, Error: err}
		if err := database.CompleteGeneration(ctx, b.db, generation.Id, result); err != nil {
			slog.Error("error marking unpublished generation as failed", "generation_id", generation.Id, "error", err)
		}
		return Result{}, fmt.Errorf("error queueing generation: %w", err)
	}

	return Result{Generation: generation, UserMessage: userMessage}, nil
}

// Generate runs a queued generation. Generations that already finished are skipped.
func (b *Builder) Generate(ctx context.Context, generationId uuid.UUID) error {
	queued, err := database.GetGeneration(ctx, b.db, generationId)
	if err != nil {
		return err
	}

	defer b.lockApp(queued.AppId)()

	// A redelivered task may have been finished while waiting for the lock.
	generation, err := database.GetGeneration(ctx, b.db, generationId)
	if err != nil {
		return err
	}

	switch generation.Status {
	case database.GenerationCompleted, database.GenerationFailed:
		slog.Info("generation already finished, skipping", "generation_id", generationId, "status", generation.Status)
		return nil
	}

	if err := database.UpdateGenerationStatus(ctx, b.db, generationId, database.GenerationRunning); err != nil {
		return fmt.Errorf("error marking generation as running: %w", err)
	}

	_, err = b.run(ctx, generation)
	return err
}

// historyBefore returns the conversation up to and including the given message so that
// messages queued later do not leak into an earlier turn.
func historyBefore(conversation []database.Message, messageId uuid.UUID) ([]database.Message, database.Message, bool) {
	for i, msg := range conversation {
		if msg.Id == messageId {
			return conversation[:i+1], msg, true
		}
	}
	return nil, database.Message{}, false
}

// lockApp holds the app's lock for a whole turn so that each generation sees the
// history and preview left by the previous one.
func (b *Builder) lockApp(appId uuid.UUID) func() {
	b.locks.Lock(appId)
	return func() {
		if err := b.locks.Unlock(appId); err != nil {
			slog.Error("error releasing app lock", "app_id", appId, "error", err)
		}
	}
}

// run must be called with the app's lock held.
func (b *Builder) run(ctx context.Context, generation database.Generation) (Result, error) {
	app, err := database.GetApp(ctx, b.db, generation.AppId)
	if err != nil {
		return Result{}, b.fail(ctx, generation, err)
	}

	conversation, err := database.GetConversation(ctx, b.db, app.Id)
	if err != nil {
		return Result{}, b.fail(ctx, generation, err)
	}

	history, userMessage, ok := historyBefore(conversation, generation.UserMessageId)
	if !ok {
		return Result{}, b.fail(ctx, generation, ErrMessageNotInStore)
	}

	req := BuildRequest(app, history, userMessage.Id, userMessage.Content, b.profile)

	slog.Info("requesting generation", "app_id", app.Id, "generation_id", generation.Id, "model", req.Model, "history", len(req.Messages)-1)

	res, err := b.model.Generate(ctx, req)
	if err != nil {
		slog.Error("model request failed", "app_id", app.Id, "generation_id", generation.Id, "error", err)
		return b.apologize(ctx, app, generation, userMessage, req.Model, err)
	}

	parsed := ParseResponse(res.Text)
	if parsed.HTML != "" {
		hardened, removed, err := preview.Harden(parsed.HTML)
		if err != nil {
			slog.Warn("could not harden generated html, keeping it unchanged", "generation_id", generation.Id, "error", err)
		} else {
			if len(removed) > 0 {
				slog.Warn("removed external references from generated html", "generation_id", generation.Id, "removed", removed)
			}
			parsed.HTML = hardened
		}
	}

	merged, changed := MergePreview(app.Preview(), parsed)

	model := res.Model
	if model == "" {
		model = req.Model
	}

	var assistantMessage database.Message
	err = b.db.Transaction(func(txn *gorm.DB) error {
		var err error
		assistantMessage, err = database.AddMessage(ctx, txn, app.Id, database.RoleAssistant, parsed.Explanation)
		if err != nil {
			return err
		}

		if changed {
			if err := database.UpdateAppPreview(ctx, txn, app.Id, merged); err != nil {
				return err
			}
		}

		return database.CompleteGeneration(ctx, txn, generation.Id, database.GenerationResult{
			Status:             database.GenerationCompleted,
			ParseMode:          parsed.Mode,
			Model:              model,
			RawResponse:        res.Text,
			Usage:              res.Usage(),
			AssistantMessageId: assistantMessage.Id,
			PreviewSaved:       changed,
		})
	})
	if err != nil {
		slog.Error("error saving generation", "app_id", app.Id, "generation_id", generation.Id, "error", err)
		finishCtx, cancel := detached(ctx)
		defer cancel()
		if _, apologyErr := database.AddMessage(finishCtx, b.db, app.Id, database.RoleAssistant, ApologyExplanation); apologyErr != nil {
			slog.Error("error saving apology message", "app_id", app.Id, "error", apologyErr)
		}
		return Result{}, b.fail(ctx, generation, err)
	}

	slog.Info("generation completed", "app_id", app.Id, "generation_id", generation.Id, "parse_mode", parsed.Mode, "preview_updated", changed)

	generation, err = database.GetGeneration(ctx, b.db, generation.Id)
	if err != nil {
		return Result{}, err
	}

	current := app.Preview()
	if changed {
		current = merged
	}

	return Result{
		Generation:       generation,
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
		Preview:          current,
		PreviewUpdated:   changed,
	}, nil
}

// apologize records a model failure as a regular assistant reply. The artifact is not
// modified and the caller does not see an error unless the reply itself can't be saved.
func (b *Builder) apologize(ctx context.Context, app database.App, generation database.Generation, userMessage database.Message, model string, cause error) (Result, error) {
	ctx, cancel := detached(ctx)
	defer cancel()

	var assistantMessage database.Message
	err := b.db.Transaction(func(txn *gorm.DB) error {
		var err error
		assistantMessage, err = database.AddMessage(ctx, txn, app.Id, database.RoleAssistant, ApologyExplanation)
		if err != nil {
			return err
		}
		return database.CompleteGeneration(ctx, txn, generation.Id, database.GenerationResult{
			Status:             database.GenerationFailed,
			ParseMode:          ModeModelError,
			Model:              model,
			AssistantMessageId: assistantMessage.Id,
			Error:              cause,
		})
	})
	if err != nil {
		return Result{}, b.fail(ctx, generation, err)
	}

	generation, err = database.GetGeneration(ctx, b.db, generation.Id)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Generation:       generation,
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
		Preview:          app.Preview(),
	}, nil
}

func (b *Builder) fail(ctx context.Context, generation database.Generation, cause error) error {
	ctx, cancel := detached(ctx)
	defer cancel()

	result := database.GenerationResult{Status: database.GenerationFailed, Error: cause}
	if err := database.CompleteGeneration(ctx, b.db, generation.Id, result); err != nil {
		slog.Error("error marking generation as failed", "generation_id", generation.Id, "error", err)
	}
	return cause
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
}
