package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/opskit/internal/events"
	"github.com/t77yq/opskit/internal/model"
)

// Collector periodically collects system status snapshots and publishes
// them through the event publisher. The latest snapshot is also kept for
// local readers.
type Collector struct {
	logger    *zap.Logger
	monitor   *SystemMonitor
	publisher *events.Publisher
	interval  time.Duration

	mu     sync.RWMutex
	latest *model.SystemStatus
	stop   chan struct{}
}

// NewCollector creates a new status collector. The publisher is optional;
// pass nil to only keep local snapshots.
func NewCollector(monitor *SystemMonitor, publisher *events.Publisher, interval time.Duration, logger *zap.Logger) *Collector {
	return &Collector{
		logger:    logger.Named("status-collector"),
		monitor:   monitor,
		publisher: publisher,
		interval:  interval,
		stop:      make(chan struct{}),
	}
}

// Start starts the collection loop
func (c *Collector) Start(ctx context.Context) {
	c.logger.Info("Starting status collector", zap.Duration("interval", c.interval))
	go c.collectLoop(ctx)
}

// Stop stops the collection loop
func (c *Collector) Stop() {
	c.logger.Info("Stopping status collector")
	close(c.stop)
}

// Latest returns the most recently collected snapshot, or nil before the
// first collection completes
func (c *Collector) Latest() *model.SystemStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// collectLoop runs the collection loop
func (c *Collector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

// collect gathers one snapshot and publishes it
func (c *Collector) collect(ctx context.Context) {
	status, err := c.monitor.Status(ctx)
	if err != nil {
		c.logger.Error("Failed to collect system status", zap.Error(err))
		return
	}

	c.mu.Lock()
	c.latest = status
	c.mu.Unlock()

	if c.publisher != nil {
		if err := c.publisher.PublishStatus(status); err != nil {
			c.logger.Error("Failed to publish system status", zap.Error(err))
		}
	}
}
