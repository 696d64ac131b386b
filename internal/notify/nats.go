package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/oncall/internal/model"
)

// PageStreamName is the JetStream stream holding paging events
const PageStreamName = "PAGES"

// PageEvent is the JSON payload published for every dispatched assignment
type PageEvent struct {
	AlertID      string         `json:"alert_id"`
	AssignmentID string         `json:"assignment_id"`
	Message      string         `json:"message"`
	Priority     model.Priority `json:"priority"`
	LevelIndex   int            `json:"level_index"`
	ResponderID  string         `json:"responder_id"`
	Responder    string         `json:"responder"`
	Channel      model.Channel  `json:"channel"`
	Address      string         `json:"address"`
	DispatchedAt time.Time      `json:"dispatched_at"`
	Deadline     time.Time      `json:"deadline"`
}

// NATSPublisher publishes paging events to JetStream so downstream consumers
// (dashboards, chat bridges) receive the feed. Subjects are page.<channel>.
type NATSPublisher struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewNATSPublisher creates the publisher, ensuring the PAGES stream exists
func NewNATSPublisher(js nats.JetStreamContext, logger *zap.Logger) (*NATSPublisher, error) {
	_, err := js.StreamInfo(PageStreamName)
	if err != nil {
		if err != nats.ErrStreamNotFound {
			return nil, fmt.Errorf("failed to get stream info: %w", err)
		}

		_, err = js.AddStream(&nats.StreamConfig{
			Name:     PageStreamName,
			Subjects: []string{"page.*"},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
	}

	return &NATSPublisher{
		logger: logger.Named("nats-notifier"),
		js:     js,
	}, nil
}

// Notify implements Notifier
func (p *NATSPublisher) Notify(alert *model.Alert, assignment *model.Assignment) error {
	event := PageEvent{
		AlertID:      alert.ID,
		AssignmentID: assignment.ID,
		Message:      alert.Message,
		Priority:     alert.Priority,
		LevelIndex:   assignment.LevelIndex,
		ResponderID:  assignment.Target.Responder.ID,
		Responder:    assignment.Target.Responder.Name,
		Channel:      assignment.Target.Channel,
		Address:      assignment.Target.Address,
		DispatchedAt: assignment.DispatchedAt,
		Deadline:     assignment.Deadline,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal page event: %w", err)
	}

	if _, err := p.js.Publish("page."+string(assignment.Target.Channel), data); err != nil {
		return fmt.Errorf("failed to publish page event: %w", err)
	}

	p.logger.Debug("Published page event",
		zap.String("alert_id", alert.ID),
		zap.String("channel", string(assignment.Target.Channel)))

	return nil
}
