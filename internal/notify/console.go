package notify

import (
	"go.uber.org/zap"

	"github.com/t77yq/oncall/internal/model"
)

// Console logs every page through the structured logger. It accepts all
// channels and serves as the default sink in the example wiring.
type Console struct {
	logger *zap.Logger
}

// NewConsole creates a console notifier
func NewConsole(logger *zap.Logger) *Console {
	return &Console{logger: logger.Named("console")}
}

// Notify implements Notifier
func (c *Console) Notify(alert *model.Alert, assignment *model.Assignment) error {
	c.logger.Info("Paging responder",
		zap.String("alert_id", alert.ID),
		zap.String("priority", string(alert.Priority)),
		zap.String("message", alert.Message),
		zap.Int("level", assignment.LevelIndex),
		zap.String("responder", assignment.Target.Responder.Name),
		zap.String("channel", string(assignment.Target.Channel)),
		zap.String("address", assignment.Target.Address),
		zap.Time("deadline", assignment.Deadline))
	return nil
}
