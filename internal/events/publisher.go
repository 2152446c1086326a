package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/bot"
)

// DefaultStream is the Redis stream progress events are published to.
const DefaultStream = "stream:autouploader_progress"

const publishTimeout = 2 * time.Second

// RedisClient is the slice of the redis API the publisher needs, kept as an
// interface so tests can capture published entries.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Publisher mirrors run progress onto a Redis stream so external consumers
// can follow a run without polling the HTTP status endpoint. Publishing is
// strictly best effort; a dead broker never affects the run.
type Publisher struct {
	client RedisClient
	stream string
	logger *slog.Logger
}

func NewPublisher(client RedisClient, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{
		client: client,
		stream: stream,
		logger: logger.With("component", "events"),
	}
}

// ForRun returns a bot progress sink that stamps every event with the run ID.
func (p *Publisher) ForRun(runID string) *RunPublisher {
	return &RunPublisher{publisher: p, runID: runID}
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

// RunPublisher publishes one run's events. It satisfies the bot's Sink
// interface.
type RunPublisher struct {
	publisher *Publisher
	runID     string
}

func (rp *RunPublisher) Publish(e bot.Event) {
	p := rp.publisher

	payload, err := json.Marshal(map[string]interface{}{
		"id":        uuid.New().String(),
		"run_id":    rp.runID,
		"step":      e.Step,
		"message":   e.Message,
		"status":    e.Status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		p.logger.Warn("failed to marshal progress event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":      string(payload),
			"run_id":    rp.runID,
			"status":    e.Status,
			"timestamp": fmt.Sprintf("%d", time.Now().UnixNano()),
		},
	}
	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		p.logger.Warn("failed to publish progress event",
			"run_id", rp.runID,
			"stream", p.stream,
			"error", err)
	}
}
