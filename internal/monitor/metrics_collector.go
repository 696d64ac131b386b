package monitor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/t77yq/oncall/internal/model"
)

// StatsSource supplies alert counts per status
type StatsSource interface {
	Stats() (map[model.AlertStatus]int, error)
}

// MetricsCollector periodically samples host resource usage and alert
// gauges and publishes them to JetStream.
type MetricsCollector struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	source   StatsSource
	interval time.Duration
	stop     chan struct{}
}

// Metrics is the payload published on each collection tick
type Metrics struct {
	Timestamp    time.Time `json:"timestamp"`
	CPUUsage     float64   `json:"cpu_usage"`
	MemoryUsage  float64   `json:"memory_usage"`
	Pending      int       `json:"pending_alerts"`
	Acknowledged int       `json:"acknowledged_alerts"`
	Exhausted    int       `json:"exhausted_alerts"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(js nats.JetStreamContext, source StatsSource, interval time.Duration, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:   logger.Named("metrics-collector"),
		js:       js,
		source:   source,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start starts the collection loop
func (c *MetricsCollector) Start(ctx context.Context) error {
	c.logger.Info("Starting metrics collector", zap.Duration("interval", c.interval))
	go c.collectLoop(ctx)
	return nil
}

// Stop stops the metrics collector
func (c *MetricsCollector) Stop() {
	c.logger.Info("Stopping metrics collector")
	close(c.stop)
}

// collectLoop runs the metrics collection loop
func (c *MetricsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.collectMetrics()
		}
	}
}

// collectMetrics samples the host and alert gauges and publishes them
func (c *MetricsCollector) collectMetrics() {
	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		c.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	stats, err := c.source.Stats()
	if err != nil {
		c.logger.Error("Failed to get alert stats", zap.Error(err))
		return
	}

	metrics := Metrics{
		Timestamp:    time.Now(),
		CPUUsage:     cpuPercent[0],
		MemoryUsage:  memInfo.UsedPercent,
		Pending:      stats[model.AlertStatusPending],
		Acknowledged: stats[model.AlertStatusAcknowledged],
		Exhausted:    stats[model.AlertStatusExhausted],
	}

	data, err := json.Marshal(metrics)
	if err != nil {
		c.logger.Error("Failed to marshal metrics", zap.Error(err))
		return
	}

	if _, err := c.js.Publish("metrics.oncall", data); err != nil {
		c.logger.Error("Failed to publish metrics", zap.Error(err))
		return
	}

	c.logger.Debug("Metrics collected",
		zap.Float64("cpu_usage", metrics.CPUUsage),
		zap.Float64("memory_usage", metrics.MemoryUsage),
		zap.Int("pending_alerts", metrics.Pending))
}
