package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"verdict.app/engine/common/logger"
	"verdict.app/engine/internal/queue"
)

type RedisReclaimerConfig struct {
	Stream   string
	Group    string
	Consumer string
	// MinIdle must exceed the longest expected run, or a live evaluation is claimed twice.
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
	// MaxPerCycle caps how many messages one tick may take over.
	MaxPerCycle int
}

// RedisReclaimer takes over submissions left pending by a worker that died
// between XREADGROUP and XACK and feeds them back through the processor.
type RedisReclaimer struct {
	client    *redis.Client
	cfg       RedisReclaimerConfig
	consumer  Consumer
	processor queue.MessageProcessor

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewRedisReclaimer(client *redis.Client, cfg RedisReclaimerConfig, consumer Consumer, processor queue.MessageProcessor) *RedisReclaimer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxPerCycle <= 0 {
		cfg.MaxPerCycle = int(cfg.BatchSize) * 5
	}
	return &RedisReclaimer{
		client:    client,
		cfg:       cfg,
		consumer:  consumer,
		processor: processor,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run ticks until Stop is called or ctx ends.
func (r *RedisReclaimer) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "verdict.worker.reclaimer",
	})

	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started",
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle,
		"stream", r.cfg.Stream,
		"group", r.cfg.Group)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			n, err := r.reclaimOnce(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "reclaim cycle error", "error", err, "reclaimed", n)
			} else if n > 0 {
				slog.InfoContext(ctx, "reclaim cycle finished", "reclaimed", n)
			}
		}
	}
}

func (r *RedisReclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// reclaimOnce walks the pending list with XAUTOCLAIM until the cursor wraps
// or MaxPerCycle messages were taken.
func (r *RedisReclaimer) reclaimOnce(ctx context.Context) (int, error) {
	cursor := "0-0"
	taken := 0

	for taken < r.cfg.MaxPerCycle {
		msgs, next, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   r.cfg.Stream,
			Group:    r.cfg.Group,
			Consumer: r.cfg.Consumer,
			MinIdle:  r.cfg.MinIdle,
			Start:    cursor,
			Count:    r.cfg.BatchSize,
		}).Result()
		if err != nil {
			return taken, fmt.Errorf("xautoclaim: %w", err)
		}

		for _, msg := range msgs {
			r.reclaimMessage(ctx, msg)
			taken++
		}

		if next == "0-0" || len(msgs) == 0 {
			break
		}
		cursor = next
	}

	return taken, nil
}

func (r *RedisReclaimer) reclaimMessage(ctx context.Context, raw redis.XMessage) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: logger.Ptr(raw.ID),
	})

	msg, err := queue.ParseMessage(raw)
	if err != nil {
		slog.ErrorContext(ctx, "unparseable reclaimed message, acknowledging to prevent loop", "error", err)
		if ackErr := r.consumer.Ack(ctx, queue.Message{ID: raw.ID, Raw: raw}); ackErr != nil {
			slog.WarnContext(ctx, "failed to ACK unparseable message", "error", ackErr)
		}
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SubmissionID: logger.Ptr(msg.SubmissionID),
	})
	slog.InfoContext(ctx, "reclaimed stale submission", "attempt", msg.Attempt)

	start := time.Now()
	if err := r.processor(ctx, msg); err != nil {
		// The processor already requeued or dead-lettered it.
		slog.WarnContext(ctx, "reclaimed submission failed", "error", err)
		return
	}

	slog.InfoContext(ctx, "reclaimed submission evaluated",
		"duration_ms", time.Since(start).Milliseconds())
}
