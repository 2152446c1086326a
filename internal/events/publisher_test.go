package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Unknown-Geek/Dreamstime-AutoUploader/internal/bot"
)

type fakeRedis struct {
	added []*redis.XAddArgs
	err   error
}

func (f *fakeRedis) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	f.added = append(f.added, args)
	if f.err != nil {
		cmd := redis.NewStringCmd(ctx)
		cmd.SetErr(f.err)
		return cmd
	}
	return redis.NewStringResult("1-0", nil)
}

func (f *fakeRedis) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisherStampsRunID(t *testing.T) {
	client := &fakeRedis{}
	p := NewPublisher(client, "", discardLogger())

	sink := p.ForRun("run-123")
	sink.Publish(bot.Event{Step: 8, Message: "Submitted image 1 of 5", Status: bot.StatusSuccess})

	require.Len(t, client.added, 1)
	args := client.added[0]
	assert.Equal(t, DefaultStream, args.Stream)

	values := args.Values.(map[string]interface{})
	assert.Equal(t, "run-123", values["run_id"])
	assert.Equal(t, bot.StatusSuccess, values["status"])

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &payload))
	assert.Equal(t, "run-123", payload["run_id"])
	assert.Equal(t, float64(8), payload["step"])
	assert.Equal(t, "Submitted image 1 of 5", payload["message"])
	assert.NotEmpty(t, payload["id"])
}

func TestPublisherCustomStream(t *testing.T) {
	client := &fakeRedis{}
	p := NewPublisher(client, "stream:custom", discardLogger())

	p.ForRun("r").Publish(bot.Event{Step: 1, Message: "m", Status: bot.StatusInfo})

	require.Len(t, client.added, 1)
	assert.Equal(t, "stream:custom", client.added[0].Stream)
}

func TestPublisherSwallowsBrokerErrors(t *testing.T) {
	client := &fakeRedis{err: errors.New("connection refused")}
	p := NewPublisher(client, "", discardLogger())

	// Must not panic or propagate anything to the run.
	p.ForRun("r").Publish(bot.Event{Step: 1, Message: "m", Status: bot.StatusInfo})
	require.Len(t, client.added, 1)
}
