package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrQueueClosed = errors.New("queue is closed")

const (
	GenerationQueue = "generation_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type GenerationPayload struct {
	GenerationId uuid.UUID
	AppId        uuid.UUID
}

type Publisher interface {
	PublishGenerationTask(ctx context.Context, payload GenerationPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
