package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/opskit/internal/model"
)

const (
	runStreamName     = "RUNS"
	runResultSubjects = "run.result.*"

	metricsStreamName    = "METRICS"
	metricsStatusSubject = "metrics.system"
)

// Publisher publishes execution results and system status snapshots to
// JetStream so external consumers can observe the host without polling it.
type Publisher struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewPublisher creates a publisher and ensures its streams exist
func NewPublisher(js nats.JetStreamContext, logger *zap.Logger) (*Publisher, error) {
	p := &Publisher{
		logger: logger.Named("events"),
		js:     js,
	}

	if err := p.setup(); err != nil {
		return nil, err
	}

	return p, nil
}

// setup creates or updates the streams used by the publisher
func (p *Publisher) setup() error {
	streams := []struct {
		name     string
		subjects []string
	}{
		{
			name:     runStreamName,
			subjects: []string{runResultSubjects},
		},
		{
			name:     metricsStreamName,
			subjects: []string{metricsStatusSubject},
		},
	}

	for _, stream := range streams {
		streamInfo, err := p.js.StreamInfo(stream.name)
		if err != nil && err != nats.ErrStreamNotFound {
			return fmt.Errorf("failed to get stream info: %w", err)
		}

		if streamInfo == nil {
			_, err = p.js.AddStream(&nats.StreamConfig{
				Name:     stream.name,
				Subjects: stream.subjects,
				Storage:  nats.FileStorage,
				MaxAge:   24 * time.Hour,
				MaxMsgs:  -1,
			})
			if err != nil {
				return fmt.Errorf("failed to create stream %s: %w", stream.name, err)
			}
			p.logger.Info("Created stream", zap.String("name", stream.name))
		}
	}

	return nil
}

// PublishResult publishes one execution result under run.result.<run id>
func (p *Publisher) PublishResult(runID string, result *model.ExecutionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if _, err := p.js.Publish(fmt.Sprintf("run.result.%s", runID), data); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}

	p.logger.Debug("Published run result",
		zap.String("run_id", runID),
		zap.Int("exit_code", result.ExitCode))

	return nil
}

// PublishStatus publishes one system status snapshot
func (p *Publisher) PublishStatus(status *model.SystemStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if _, err := p.js.Publish(metricsStatusSubject, data); err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}

	return nil
}
