package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GenerationRunner executes a previously queued generation.
type GenerationRunner interface {
	Generate(ctx context.Context, generationId uuid.UUID) error
}

type Worker struct {
	runner   GenerationRunner
	reciever Reciever

	concurrency int
	timeout     time.Duration
	wg          sync.WaitGroup
}

func NewWorker(runner GenerationRunner, reciever Reciever, concurrency int, timeout time.Duration) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		runner:      runner,
		reciever:    reciever,
		concurrency: concurrency,
		timeout:     timeout,
	}
}

// Start consumes tasks until the reciever's task channel is closed.
func (w *Worker) Start() {
	slog.Info("starting generation worker", "concurrency", w.concurrency)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for task := range w.reciever.Tasks() {
				w.ProcessTask(task)
			}
		}()
	}
	w.wg.Wait()
}

func (w *Worker) Stop() {
	slog.Info("stopping generation worker")
	w.reciever.Close()
}

func (w *Worker) ProcessTask(task Task) {
	ctx := context.Background()
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	var err error
	switch task.Type() {
	case GenerationQueue:
		var payload GenerationPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil || payload.GenerationId == uuid.Nil {
			slog.Error("error unmarshalling generation task", "error", err)
			if err := task.Reject(); err != nil {
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		slog.Info("processing generation task", "generation_id", payload.GenerationId, "app_id", payload.AppId)
		err = w.runner.Generate(ctx, payload.GenerationId)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}
