package events_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/opskit/internal/events"
	"github.com/t77yq/opskit/internal/model"
	"github.com/t77yq/opskit/internal/testutil"
)

func TestPublishResult(t *testing.T) {
	js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	publisher, err := events.NewPublisher(js, zaptest.NewLogger(t))
	require.NoError(t, err)

	now := time.Now()
	result := &model.ExecutionResult{
		Command:     "echo hello",
		Stdout:      "hello\n",
		ExitCode:    0,
		StartedAt:   now,
		CompletedAt: now,
	}
	require.NoError(t, publisher.PublishResult("run-123", result))

	messages, err := testutil.ConsumeMessages(js, "run.result.*", 2*time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	var received model.ExecutionResult
	require.NoError(t, json.Unmarshal(messages[0], &received))
	assert.Equal(t, "echo hello", received.Command)
	assert.Equal(t, "hello\n", received.Stdout)
	assert.Equal(t, 0, received.ExitCode)
}

func TestPublishStatus(t *testing.T) {
	js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	publisher, err := events.NewPublisher(js, zaptest.NewLogger(t))
	require.NoError(t, err)

	status := &model.SystemStatus{
		Disk:        model.DiskStatus{TotalBytes: 100, UsedBytes: 50, FreeBytes: 50, UsedPercent: 50},
		Memory:      model.MemoryStatus{TotalBytes: 200, UsedBytes: 100, AvailableBytes: 100, UsedPercent: 50},
		CollectedAt: time.Now(),
	}
	require.NoError(t, publisher.PublishStatus(status))

	messages, err := testutil.ConsumeMessages(js, "metrics.system", 2*time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	var received model.SystemStatus
	require.NoError(t, json.Unmarshal(messages[0], &received))
	assert.Equal(t, uint64(100), received.Disk.TotalBytes)
	assert.Equal(t, float64(50), received.Memory.UsedPercent)
}

func TestPublisherIsIdempotentOnExistingStreams(t *testing.T) {
	js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	_, err := events.NewPublisher(js, zaptest.NewLogger(t))
	require.NoError(t, err)

	// A second publisher against the same server reuses the streams
	_, err = events.NewPublisher(js, zaptest.NewLogger(t))
	require.NoError(t, err)
}
