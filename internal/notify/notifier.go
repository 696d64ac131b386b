package notify

import (
	"go.uber.org/zap"

	"github.com/t77yq/oncall/internal/model"
)

// Notifier delivers an assignment to a responder. Delivery is best-effort:
// implementations may log and swallow their own failures, and must never
// block engine progress on external success.
type Notifier interface {
	Notify(alert *model.Alert, assignment *model.Assignment) error
}

// Composite fans a notification out to every delegate. Individual failures
// are logged and do not mask delivery to the remaining sinks.
type Composite struct {
	logger    *zap.Logger
	delegates []Notifier
}

// NewComposite creates a composite notifier over the given delegates
func NewComposite(logger *zap.Logger, delegates ...Notifier) *Composite {
	return &Composite{
		logger:    logger.Named("notify"),
		delegates: delegates,
	}
}

// Add appends a delegate sink
func (c *Composite) Add(delegate Notifier) {
	c.delegates = append(c.delegates, delegate)
}

// Notify implements Notifier
func (c *Composite) Notify(alert *model.Alert, assignment *model.Assignment) error {
	for _, delegate := range c.delegates {
		if err := delegate.Notify(alert, assignment); err != nil {
			c.logger.Warn("Delegate notifier failed",
				zap.String("alert_id", alert.ID),
				zap.String("assignment_id", assignment.ID),
				zap.Error(err))
		}
	}
	return nil
}
