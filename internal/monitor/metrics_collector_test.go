package monitor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/oncall/internal/model"
	"github.com/t77yq/oncall/internal/testutil"
)

// stubStatsSource serves fixed alert gauges
type stubStatsSource struct {
	stats map[model.AlertStatus]int
}

func (s *stubStatsSource) Stats() (map[model.AlertStatus]int, error) {
	return s.stats, nil
}

func TestMetricsCollector(t *testing.T) {
	// Start NATS server with JetStream
	_, js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	// Create stream for metrics
	_, err := js.AddStream(&nats.StreamConfig{
		Name:     "METRICS",
		Subjects: []string{"metrics.*"},
		Storage:  nats.FileStorage,
	})
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	source := &stubStatsSource{
		stats: map[model.AlertStatus]int{
			model.AlertStatusPending:      2,
			model.AlertStatusAcknowledged: 1,
			model.AlertStatusExhausted:    3,
		},
	}
	collector := NewMetricsCollector(js, source, 500*time.Millisecond, logger)

	// Subscribe before starting so the first sample is not missed
	received := make(chan Metrics, 1)
	sub, err := js.Subscribe("metrics.oncall", func(msg *nats.Msg) {
		var metrics Metrics
		if err := json.Unmarshal(msg.Data, &metrics); err != nil {
			return
		}
		select {
		case received <- metrics:
		default:
		}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	require.NoError(t, collector.Start(ctx))
	defer collector.Stop()

	select {
	case metrics := <-received:
		assert.False(t, metrics.Timestamp.IsZero())
		assert.GreaterOrEqual(t, metrics.CPUUsage, 0.0)
		assert.Greater(t, metrics.MemoryUsage, 0.0)
		assert.Equal(t, 2, metrics.Pending)
		assert.Equal(t, 1, metrics.Acknowledged)
		assert.Equal(t, 3, metrics.Exhausted)
	case <-ctx.Done():
		t.Fatal("timeout waiting for metrics")
	}
}

func TestMetricsCollector_StopEndsLoop(t *testing.T) {
	_, js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	_, err := js.AddStream(&nats.StreamConfig{
		Name:     "METRICS",
		Subjects: []string{"metrics.*"},
		Storage:  nats.FileStorage,
	})
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	source := &stubStatsSource{stats: map[model.AlertStatus]int{}}
	collector := NewMetricsCollector(js, source, 100*time.Millisecond, logger)

	ctx := context.Background()
	require.NoError(t, collector.Start(ctx))
	collector.Stop()
}
