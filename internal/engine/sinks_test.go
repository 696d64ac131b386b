package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/oncall/internal/model"
	"github.com/t77yq/oncall/internal/storage"
	"github.com/t77yq/oncall/internal/testutil"
)

// memoryJournal implements storage.AlertJournal for sink tests
type memoryJournal struct {
	mu      sync.Mutex
	entries []*storage.JournalEntry
}

func (j *memoryJournal) Append(ctx context.Context, entry *storage.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

func (j *memoryJournal) List(ctx context.Context, alertID string, limit int) ([]*storage.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*storage.JournalEntry
	for _, entry := range j.entries {
		if alertID != "" && entry.AlertID != alertID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (j *memoryJournal) DeleteBefore(ctx context.Context, before time.Time) error {
	return nil
}

func TestJournalSink(t *testing.T) {
	journal := &memoryJournal{}
	sink := NewJournalSink(journal)

	at := time.Date(2026, 8, 6, 9, 0, 0, 0, time.UTC)
	alert := &model.Alert{
		ID:       "a1",
		Message:  "disk full",
		Priority: model.PriorityHigh,
	}

	err := sink.Record(&Event{
		Kind:       EventAcknowledged,
		Alert:      alert,
		LevelIndex: 1,
		Responder:  &primary,
		At:         at,
	})
	require.NoError(t, err)

	entries, err := journal.List(context.Background(), "a1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, storage.JournalEventAcknowledged, entry.Kind)
	assert.Equal(t, model.PriorityHigh, entry.Priority)
	assert.Equal(t, 1, entry.LevelIndex)
	assert.Equal(t, primary.ID, entry.ResponderID)
	assert.Equal(t, "disk full", entry.Detail)
	assert.True(t, entry.OccurredAt.Equal(at))
}

func TestJournalSink_UnknownKind(t *testing.T) {
	sink := NewJournalSink(&memoryJournal{})

	err := sink.Record(&Event{
		Kind:  EventKind("unknown"),
		Alert: &model.Alert{ID: "a1"},
	})
	require.Error(t, err)
}

func TestNATSEventSink(t *testing.T) {
	// Setup
	logger, _ := zap.NewDevelopment()
	_, js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	sink, err := NewNATSEventSink(js, logger)
	require.NoError(t, err)

	stream, err := js.StreamInfo(EventStreamName)
	require.NoError(t, err)
	assert.Equal(t, []string{"oncall.event.*"}, stream.Config.Subjects)

	at := time.Date(2026, 8, 6, 9, 0, 0, 0, time.UTC)
	err = sink.Record(&Event{
		Kind:       EventEscalated,
		Alert:      &model.Alert{ID: "a1", Message: "disk full", Priority: model.PriorityHigh},
		LevelIndex: 1,
		At:         at,
	})
	require.NoError(t, err)

	messages, err := testutil.ConsumeMessages(js, "oncall.event.escalated", 2*time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	var event Event
	require.NoError(t, json.Unmarshal(messages[0], &event))
	assert.Equal(t, EventEscalated, event.Kind)
	assert.Equal(t, "a1", event.Alert.ID)
	assert.Equal(t, 1, event.LevelIndex)
}
