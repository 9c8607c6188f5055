package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisPublisher appends each report to stream, trimming it to roughly
// maxLen entries.
func NewRedisPublisher(client *redis.Client, stream string, maxLen int64) Publisher {
	return &redisPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *redisPublisher) Publish(ctx context.Context, r Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	fields := map[string]any{
		"cycle_id":    r.Cycle.ID,
		"outcome":     string(r.Cycle.Outcome),
		"quota_state": r.Quota.State.String(),
		"duration_ms": r.Cycle.Duration().Milliseconds(),
		"finished_at": r.Cycle.FinishedAt.UTC().Format(time.RFC3339),
		"payload":     string(payload),
	}
	if r.Cycle.Strategy != "" {
		fields["strategy"] = string(r.Cycle.Strategy)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("publish cycle status: %w", err)
	}

	slog.DebugContext(ctx, "published cycle status", "stream", p.stream, "entry_id", id, "cycle_id", r.Cycle.ID)
	return nil
}
