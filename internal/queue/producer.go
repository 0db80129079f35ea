package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"verdict.app/engine/common/logger"
)

// Producer hands submissions to the worker pool.
type Producer interface {
	Enqueue(ctx context.Context, task Task) error
	Close() error
}

type ProducerConfig struct {
	Stream string
	// MaxLen caps the stream with MAXLEN ~. Acked entries are the ones trimmed
	// first in practice, but a backlog longer than MaxLen loses its oldest.
	MaxLen int64
}

type redisProducer struct {
	client *redis.Client
	cfg    ProducerConfig
}

func NewRedisProducer(client *redis.Client, cfg ProducerConfig) Producer {
	return &redisProducer{client: client, cfg: cfg}
}

func (p *redisProducer) Enqueue(ctx context.Context, task Task) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SubmissionID: logger.Ptr(task.SubmissionID),
		Component:    "verdict.queue.producer",
	})

	args := &redis.XAddArgs{
		Stream: p.cfg.Stream,
		Values: messageValues(task.message(), task.attempt()),
	}
	if p.cfg.MaxLen > 0 {
		args.MaxLen = p.cfg.MaxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("enqueue evaluation: %w", err)
	}

	slog.InfoContext(ctx, "enqueued evaluation", "stream_id", id, "attempt", task.attempt())
	return nil
}

// Close releases the client. Callers sharing the client elsewhere skip it.
func (p *redisProducer) Close() error {
	return p.client.Close()
}
