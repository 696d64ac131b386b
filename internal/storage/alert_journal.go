package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/oncall/internal/model"
)

// JournalEventKind classifies alert lifecycle events
type JournalEventKind string

const (
	JournalEventRaised       JournalEventKind = "raised"
	JournalEventDispatched   JournalEventKind = "dispatched"
	JournalEventAcknowledged JournalEventKind = "acknowledged"
	JournalEventEscalated    JournalEventKind = "escalated"
	JournalEventExhausted    JournalEventKind = "exhausted"
)

// JournalEntry represents one recorded alert lifecycle event
type JournalEntry struct {
	ID          string           `json:"id"`
	AlertID     string           `json:"alert_id"`
	Kind        JournalEventKind `json:"kind"`
	Priority    model.Priority   `json:"priority"`
	LevelIndex  int              `json:"level_index"`
	ResponderID string           `json:"responder_id,omitempty"`
	Detail      string           `json:"detail,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// AlertJournal defines the interface for the append-only alert event log
type AlertJournal interface {
	// Append records an event
	Append(ctx context.Context, entry *JournalEntry) error

	// List retrieves events for an alert in occurrence order. An empty
	// alertID returns events for every alert.
	List(ctx context.Context, alertID string, limit int) ([]*JournalEntry, error)

	// DeleteBefore deletes events older than the specified time
	DeleteBefore(ctx context.Context, before time.Time) error
}

// SQLiteAlertJournal implements AlertJournal using SQLite
type SQLiteAlertJournal struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteAlertJournal opens (or creates) the journal database at dbPath
func NewSQLiteAlertJournal(logger *zap.Logger, dbPath string) (*SQLiteAlertJournal, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	journal := &SQLiteAlertJournal{
		logger: logger,
		db:     db,
	}

	if err := journal.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return journal, nil
}

// initialize creates the necessary tables if they don't exist
func (j *SQLiteAlertJournal) initialize() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS alert_journal (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			priority TEXT NOT NULL,
			level_index INTEGER NOT NULL,
			responder_id TEXT,
			detail TEXT,
			occurred_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_alert_journal_alert_id ON alert_journal(alert_id);
		CREATE INDEX IF NOT EXISTS idx_alert_journal_kind ON alert_journal(kind);
		CREATE INDEX IF NOT EXISTS idx_alert_journal_occurred_at ON alert_journal(occurred_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Append implements AlertJournal.Append
func (j *SQLiteAlertJournal) Append(ctx context.Context, entry *JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO alert_journal (
			id, alert_id, kind, priority, level_index, responder_id, detail, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.AlertID,
		entry.Kind,
		string(entry.Priority),
		entry.LevelIndex,
		sql.NullString{String: entry.ResponderID, Valid: entry.ResponderID != ""},
		sql.NullString{String: entry.Detail, Valid: entry.Detail != ""},
		entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// List implements AlertJournal.List
func (j *SQLiteAlertJournal) List(ctx context.Context, alertID string, limit int) ([]*JournalEntry, error) {
	query := `
		SELECT id, alert_id, kind, priority, level_index, responder_id, detail, occurred_at
		FROM alert_journal`
	args := make([]interface{}, 0, 2)

	if alertID != "" {
		query += " WHERE alert_id = ?"
		args = append(args, alertID)
	}

	query += " ORDER BY occurred_at ASC, created_at ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []*JournalEntry
	for rows.Next() {
		entry := &JournalEntry{}
		var priority string
		var responderID, detail sql.NullString

		err := rows.Scan(
			&entry.ID,
			&entry.AlertID,
			&entry.Kind,
			&priority,
			&entry.LevelIndex,
			&responderID,
			&detail,
			&entry.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}

		entry.Priority = model.Priority(priority)
		if responderID.Valid {
			entry.ResponderID = responderID.String
		}
		if detail.Valid {
			entry.Detail = detail.String
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return entries, nil
}

// DeleteBefore implements AlertJournal.DeleteBefore
func (j *SQLiteAlertJournal) DeleteBefore(ctx context.Context, before time.Time) error {
	result, err := j.db.ExecContext(ctx, "DELETE FROM alert_journal WHERE occurred_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete journal entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	j.logger.Info("Deleted old journal entries",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return nil
}

// Close closes the database connection
func (j *SQLiteAlertJournal) Close() error {
	return j.db.Close()
}
