package voice

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/oncall/internal/model"
)

// AlertService is the slice of the on-call engine the webhook dialogue
// consumes.
type AlertService interface {
	// Get returns the alert with the given ID, or nil when absent
	Get(id string) (*model.Alert, error)

	// AcknowledgeByToken acknowledges an alert via a single-use token
	AcknowledgeByToken(alertID, token string, at time.Time) (model.Acknowledgement, error)
}

// WebhookHandler translates voice-callback inputs into response documents.
// Both handlers are read-mostly and return a document for every input; bad
// input never produces an error, only the matching document.
type WebhookHandler struct {
	logger  *zap.Logger
	service AlertService
	scripts *ScriptBuilder
}

// NewWebhookHandler creates a handler over the given service and builder
func NewWebhookHandler(service AlertService, scripts *ScriptBuilder, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		logger:  logger.Named("voice-webhook"),
		service: service,
		scripts: scripts,
	}
}

// resolve looks up the alert and the assignment carrying the token. A
// missing or unparseable identifier yields the corresponding missing-entity
// document in doc.
func (h *WebhookHandler) resolve(alertID, token string) (*model.Alert, *model.Assignment, string) {
	if _, err := uuid.Parse(alertID); err != nil {
		return nil, nil, h.scripts.AlertMissing()
	}

	alert, err := h.service.Get(alertID)
	if err != nil {
		h.logger.Error("Failed to load alert for voice callback",
			zap.String("alert_id", alertID),
			zap.Error(err))
		return nil, nil, h.scripts.AlertMissing()
	}
	if alert == nil {
		return nil, nil, h.scripts.AlertMissing()
	}

	assignment := alert.AssignmentByToken(token)
	if assignment == nil {
		return nil, nil, h.scripts.AssignmentMissing()
	}

	return alert, assignment, ""
}

// Prompt handles the prompt callback: replay the interactive prompt for the
// assignment identified by the token.
func (h *WebhookHandler) Prompt(alertID, token string) string {
	alert, _, doc := h.resolve(alertID, token)
	if doc != "" {
		return doc
	}
	return h.scripts.Prompt(string(alert.Priority), alert.Message, alert.ID, token)
}

// Acknowledge handles the digit-gathering callback. Digit 1 acknowledges,
// digit 2 repeats the prompt, anything else asks again.
func (h *WebhookHandler) Acknowledge(alertID, token, digits string, at time.Time) string {
	alert, _, doc := h.resolve(alertID, token)
	if doc != "" {
		return doc
	}

	switch strings.TrimSpace(digits) {
	case "":
		return h.scripts.InvalidInput(alert.ID, token)
	case "1":
		return h.completeAcknowledge(alert.ID, token, at)
	case "2":
		return h.scripts.Prompt(string(alert.Priority), alert.Message, alert.ID, token)
	default:
		return h.scripts.InvalidInput(alert.ID, token)
	}
}

// completeAcknowledge runs the token acknowledgement and maps the outcome to
// a document
func (h *WebhookHandler) completeAcknowledge(alertID, token string, at time.Time) string {
	ack, err := h.service.AcknowledgeByToken(alertID, token, at)
	if err != nil {
		h.logger.Error("Failed to acknowledge alert from voice callback",
			zap.String("alert_id", alertID),
			zap.Error(err))
		return h.scripts.AlertMissing()
	}

	switch ack.Status {
	case model.AckStatusAcknowledged:
		return h.scripts.Accepted(responderName(ack.Responder))
	case model.AckStatusAlreadyAcknowledged:
		return h.scripts.AlreadyHandled(responderName(ack.Responder))
	case model.AckStatusAlertNotFound:
		return h.scripts.AlertMissing()
	default:
		return h.scripts.AssignmentMissing()
	}
}

func responderName(responder *model.Responder) string {
	if responder == nil {
		return ""
	}
	return responder.Name
}
