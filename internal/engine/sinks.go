package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/oncall/internal/storage"
)

// journalKinds maps engine events to journal event kinds
var journalKinds = map[EventKind]storage.JournalEventKind{
	EventRaised:       storage.JournalEventRaised,
	EventDispatched:   storage.JournalEventDispatched,
	EventAcknowledged: storage.JournalEventAcknowledged,
	EventEscalated:    storage.JournalEventEscalated,
	EventExhausted:    storage.JournalEventExhausted,
}

// JournalSink records engine events in the alert journal
type JournalSink struct {
	journal storage.AlertJournal
	timeout time.Duration
}

// NewJournalSink creates a sink writing to the given journal
func NewJournalSink(journal storage.AlertJournal) *JournalSink {
	return &JournalSink{
		journal: journal,
		timeout: 5 * time.Second,
	}
}

// Record implements EventSink
func (s *JournalSink) Record(event *Event) error {
	kind, ok := journalKinds[event.Kind]
	if !ok {
		return fmt.Errorf("unknown event kind: %s", event.Kind)
	}

	entry := &storage.JournalEntry{
		AlertID:    event.Alert.ID,
		Kind:       kind,
		Priority:   event.Alert.Priority,
		LevelIndex: event.LevelIndex,
		Detail:     event.Alert.Message,
		OccurredAt: event.At,
	}
	if event.Responder != nil {
		entry.ResponderID = event.Responder.ID
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	return s.journal.Append(ctx, entry)
}

// EventStreamName is the JetStream stream holding alert lifecycle events
const EventStreamName = "ONCALL_EVENTS"

// NATSEventSink publishes engine events to JetStream on
// oncall.event.<kind> subjects.
type NATSEventSink struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewNATSEventSink creates the sink, ensuring the event stream exists
func NewNATSEventSink(js nats.JetStreamContext, logger *zap.Logger) (*NATSEventSink, error) {
	_, err := js.StreamInfo(EventStreamName)
	if err != nil {
		if err != nats.ErrStreamNotFound {
			return nil, fmt.Errorf("failed to get stream info: %w", err)
		}

		_, err = js.AddStream(&nats.StreamConfig{
			Name:     EventStreamName,
			Subjects: []string{"oncall.event.*"},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
	}

	return &NATSEventSink{
		logger: logger.Named("event-sink"),
		js:     js,
	}, nil
}

// Record implements EventSink
func (s *NATSEventSink) Record(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := s.js.Publish("oncall.event."+string(event.Kind), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	s.logger.Debug("Published lifecycle event",
		zap.String("kind", string(event.Kind)),
		zap.String("alert_id", event.Alert.ID))

	return nil
}
