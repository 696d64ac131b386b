package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/oncall/internal/model"
	"github.com/t77yq/oncall/internal/notify"
	"github.com/t77yq/oncall/internal/storage"
)

// Engine is the on-call escalation state machine. It owns policy lookup,
// alert creation, time advancement and the two acknowledgement paths.
//
// A single mutex guards the composite read-inspect-mutate-persist sequence
// per operation, so the raise, advance and webhook acknowledgement paths
// never interleave mid-transition on the same alert. Notification delivery
// and event sinks run after the lock is released.
type Engine struct {
	logger   *zap.Logger
	repo     storage.AlertRepository
	policies map[model.Priority]model.EscalationPolicy
	notifier notify.Notifier
	sinks    []EventSink

	mu sync.Mutex
}

// NewEngine creates an engine with the given policy table. Policies are
// validated up front; configuration problems surface here, not at raise time.
func NewEngine(repo storage.AlertRepository, policies map[model.Priority]model.EscalationPolicy, notifier notify.Notifier, logger *zap.Logger) (*Engine, error) {
	for priority, policy := range policies {
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("policy for priority %s: %w", priority, err)
		}
	}

	return &Engine{
		logger:   logger.Named("engine"),
		repo:     repo,
		policies: policies,
		notifier: notifier,
		sinks:    nil,
	}, nil
}

// AddEventSink registers a lifecycle event observer. Not safe to call after
// the engine starts serving requests.
func (e *Engine) AddEventSink(sink EventSink) {
	e.sinks = append(e.sinks, sink)
}

// dispatch holds a notification computed under the lock and delivered after
// it is released.
type dispatch struct {
	alert      *model.Alert
	assignment *model.Assignment
}

// Raise creates a new pending alert for the given priority and dispatches
// escalation level 0. Returns a snapshot of the stored alert.
func (e *Engine) Raise(message string, priority model.Priority, createdAt time.Time) (*model.Alert, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	policy, ok := e.policies[priority]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, priority)
	}

	e.mu.Lock()

	alert := &model.Alert{
		ID:                uuid.NewString(),
		Message:           message,
		Priority:          priority,
		CreatedAt:         createdAt,
		Policy:            policy,
		Status:            model.AlertStatusPending,
		CurrentLevelIndex: 0,
	}

	dispatches := e.dispatchLevel(alert, 0, createdAt)

	if err := e.repo.Put(alert); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to store alert: %w", err)
	}

	snapshot := alert.Clone()
	e.mu.Unlock()

	e.logger.Info("Alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("priority", string(priority)),
		zap.Int("level_targets", len(dispatches)))

	e.deliver(snapshot, dispatches)
	e.emit(&Event{Kind: EventRaised, Alert: snapshot, LevelIndex: 0, At: createdAt})
	e.emit(&Event{Kind: EventDispatched, Alert: snapshot, LevelIndex: 0, At: createdAt})

	return snapshot, nil
}

// Get returns a snapshot of the alert with the given ID, or nil when absent
func (e *Engine) Get(id string) (*model.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, err := e.repo.Get(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	if alert == nil {
		return nil, nil
	}
	return alert.Clone(), nil
}

// List returns snapshots of alerts sorted by creation time ascending,
// optionally filtered by status
func (e *Engine) List(status *model.AlertStatus) ([]*model.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	alerts, err := e.repo.List(status)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	snapshots := make([]*model.Alert, len(alerts))
	for i, alert := range alerts {
		snapshots[i] = alert.Clone()
	}
	return snapshots, nil
}

// AcknowledgeByResponder acknowledges an alert on behalf of the responder
// with the given ID, locating any assignment that paged that responder.
func (e *Engine) AcknowledgeByResponder(alertID, responderID string, at time.Time) (model.Acknowledgement, error) {
	return e.acknowledge(alertID, at, func(alert *model.Alert) (*model.Assignment, model.AckStatus) {
		return alert.AssignmentByResponder(responderID), model.AckStatusAssignmentNotFound
	})
}

// AcknowledgeByToken acknowledges an alert via a single-use token carried in
// an outbound voice callback.
func (e *Engine) AcknowledgeByToken(alertID, token string, at time.Time) (model.Acknowledgement, error) {
	return e.acknowledge(alertID, at, func(alert *model.Alert) (*model.Assignment, model.AckStatus) {
		return alert.AssignmentByToken(token), model.AckStatusTokenNotFound
	})
}

// acknowledge resolves the alert and assignment under the lock, then runs
// the acknowledgement completion algorithm. locate returns the matching
// assignment and the status to report when no assignment matches.
func (e *Engine) acknowledge(alertID string, at time.Time, locate func(*model.Alert) (*model.Assignment, model.AckStatus)) (model.Acknowledgement, error) {
	e.mu.Lock()

	stored, err := e.repo.Get(alertID)
	if err != nil {
		e.mu.Unlock()
		return model.Acknowledgement{}, fmt.Errorf("failed to load alert: %w", err)
	}
	if stored == nil {
		e.mu.Unlock()
		return model.Acknowledgement{Status: model.AckStatusAlertNotFound}, nil
	}

	alert := stored.Clone()
	assignment, missStatus := locate(alert)
	if assignment == nil {
		e.mu.Unlock()
		return model.Acknowledgement{Status: missStatus}, nil
	}

	ack, transitioned := completeAcknowledgement(alert, assignment, at)
	if transitioned {
		if err := e.repo.Put(alert); err != nil {
			e.mu.Unlock()
			return model.Acknowledgement{}, fmt.Errorf("failed to store alert: %w", err)
		}
	}

	snapshot := alert.Clone()
	e.mu.Unlock()

	if transitioned {
		e.logger.Info("Alert acknowledged",
			zap.String("alert_id", snapshot.ID),
			zap.String("responder_id", ack.Responder.ID),
			zap.Time("acknowledged_at", at))
		e.emit(&Event{
			Kind:       EventAcknowledged,
			Alert:      snapshot,
			LevelIndex: snapshot.CurrentLevelIndex,
			Responder:  ack.Responder,
			At:         at,
		})
	}

	return ack, nil
}

// completeAcknowledgement is the sole transition into the acknowledged
// state. It is idempotent once reached: late or repeated attempts report
// already_acknowledged with the originally credited responder.
func completeAcknowledgement(alert *model.Alert, assignment *model.Assignment, at time.Time) (model.Acknowledgement, bool) {
	switch alert.Status {
	case model.AlertStatusAcknowledged:
		return model.Acknowledgement{
			Status:         model.AckStatusAlreadyAcknowledged,
			Responder:      alert.AcknowledgedBy,
			AcknowledgedAt: alert.AcknowledgedAt,
		}, false
	case model.AlertStatusExhausted:
		// Escalation ran out before anyone answered; nobody gets credit.
		return model.Acknowledgement{
			Status: model.AckStatusAlreadyAcknowledged,
		}, false
	}

	if assignment.Acknowledged() {
		responder := assignment.Target.Responder
		return model.Acknowledgement{
			Status:         model.AckStatusAlreadyAcknowledged,
			Responder:      &responder,
			AcknowledgedAt: assignment.AcknowledgedAt,
		}, false
	}

	ackAt := at
	assignment.AcknowledgedAt = &ackAt
	responder := assignment.Target.Responder
	alert.Status = model.AlertStatusAcknowledged
	alert.AcknowledgedBy = &responder
	alert.AcknowledgedAt = &ackAt

	return model.Acknowledgement{
		Status:         model.AckStatusAcknowledged,
		Responder:      &responder,
		AcknowledgedAt: &ackAt,
	}, true
}

// Advance evaluates every pending alert against now and performs any due
// level transitions. It returns snapshots of the alerts that changed state
// on this tick. Advance is synchronous; the caller schedules it.
func (e *Engine) Advance(now time.Time) ([]*model.Alert, error) {
	e.mu.Lock()

	pending := model.AlertStatusPending
	alerts, err := e.repo.List(&pending)
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to list pending alerts: %w", err)
	}

	var changed []*model.Alert
	var dispatches []dispatch
	var events []*Event

	for _, stored := range alerts {
		alert := stored.Clone()

		current := alert.AssignmentsAtLevel(alert.CurrentLevelIndex)
		if len(current) == 0 {
			continue
		}

		// The acknowledgement path performs the transition; an acknowledged
		// assignment here only means the tick raced it.
		acked := false
		for _, as := range current {
			if as.Acknowledged() {
				acked = true
				break
			}
		}
		if acked {
			continue
		}

		levelDeadline := current[0].Deadline
		for _, as := range current[1:] {
			if as.Deadline.After(levelDeadline) {
				levelDeadline = as.Deadline
			}
		}
		if now.Before(levelDeadline) {
			continue
		}

		nextIndex := alert.CurrentLevelIndex + 1
		if nextIndex >= len(alert.Policy.Levels) {
			alert.Status = model.AlertStatusExhausted
			if err := e.repo.Put(alert); err != nil {
				e.mu.Unlock()
				return nil, fmt.Errorf("failed to store alert: %w", err)
			}
			snapshot := alert.Clone()
			changed = append(changed, snapshot)
			events = append(events, &Event{
				Kind:       EventExhausted,
				Alert:      snapshot,
				LevelIndex: alert.CurrentLevelIndex,
				At:         now,
			})
			continue
		}

		alert.CurrentLevelIndex = nextIndex
		levelDispatches := e.dispatchLevel(alert, nextIndex, now)
		if err := e.repo.Put(alert); err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("failed to store alert: %w", err)
		}
		snapshot := alert.Clone()
		for _, d := range levelDispatches {
			d.alert = snapshot
			dispatches = append(dispatches, d)
		}
		changed = append(changed, snapshot)
		events = append(events,
			&Event{Kind: EventEscalated, Alert: snapshot, LevelIndex: nextIndex, At: now},
			&Event{Kind: EventDispatched, Alert: snapshot, LevelIndex: nextIndex, At: now})
	}

	e.mu.Unlock()

	for _, d := range dispatches {
		e.deliver(d.alert, []dispatch{d})
	}
	for _, ev := range events {
		if ev.Kind == EventExhausted {
			e.logger.Warn("Alert exhausted all escalation levels",
				zap.String("alert_id", ev.Alert.ID),
				zap.Int("levels", len(ev.Alert.Policy.Levels)))
		} else if ev.Kind == EventEscalated {
			e.logger.Info("Alert escalated",
				zap.String("alert_id", ev.Alert.ID),
				zap.Int("level", ev.LevelIndex))
		}
		e.emit(ev)
	}

	return changed, nil
}

// dispatchLevel appends one fresh assignment per target of the given level.
// Must be called with the engine lock held; returns the notifications to
// deliver once the lock is released. The returned dispatches reference the
// live alert, so callers snapshot before delivering.
func (e *Engine) dispatchLevel(alert *model.Alert, levelIndex int, dispatchedAt time.Time) []dispatch {
	level := alert.Policy.Levels[levelIndex]
	dispatches := make([]dispatch, 0, len(level.Targets))

	for _, target := range level.Targets {
		assignment := &model.Assignment{
			ID:           uuid.NewString(),
			Target:       target,
			LevelIndex:   levelIndex,
			DispatchedAt: dispatchedAt,
			Deadline:     dispatchedAt.Add(level.AcknowledgeTimeout),
			AckToken:     uuid.NewString(),
		}
		alert.Assignments = append(alert.Assignments, assignment)
		dispatches = append(dispatches, dispatch{alert: alert, assignment: assignment})
	}

	return dispatches
}

// deliver notifies each dispatched assignment. Delivery is best-effort:
// failures are logged and never undo the dispatch.
func (e *Engine) deliver(snapshot *model.Alert, dispatches []dispatch) {
	if e.notifier == nil {
		return
	}
	for _, d := range dispatches {
		if err := e.notifier.Notify(snapshot, d.assignment); err != nil {
			e.logger.Warn("Notification delivery failed",
				zap.String("alert_id", snapshot.ID),
				zap.String("assignment_id", d.assignment.ID),
				zap.String("channel", string(d.assignment.Target.Channel)),
				zap.Error(err))
		}
	}
}

// emit fans an event out to every sink
func (e *Engine) emit(event *Event) {
	for _, sink := range e.sinks {
		if err := sink.Record(event); err != nil {
			e.logger.Warn("Event sink failed",
				zap.String("kind", string(event.Kind)),
				zap.String("alert_id", event.Alert.ID),
				zap.Error(err))
		}
	}
}

// Stats reports the number of alerts per status
func (e *Engine) Stats() (map[model.AlertStatus]int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	alerts, err := e.repo.List(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	stats := map[model.AlertStatus]int{
		model.AlertStatusPending:      0,
		model.AlertStatusAcknowledged: 0,
		model.AlertStatusExhausted:    0,
	}
	for _, alert := range alerts {
		stats[alert.Status]++
	}
	return stats, nil
}
