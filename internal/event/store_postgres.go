package event

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists events and agent actions in PostgreSQL. Every
// mutation is a single-row statement guarded by the primary key; no
// cross-record transactions are needed.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a postgres-backed event store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the event and action tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS webhook_events (
			id             TEXT PRIMARY KEY,
			correlation_id TEXT NOT NULL,
			event_type     TEXT NOT NULL,
			action         TEXT NOT NULL,
			repo_full_name TEXT NOT NULL,
			payload        JSONB NOT NULL,
			status         TEXT NOT NULL DEFAULT 'received',
			created_at     TIMESTAMPTZ NOT NULL,
			processed_at   TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_webhook_events_status ON webhook_events (status);
		CREATE INDEX IF NOT EXISTS idx_webhook_events_correlation ON webhook_events (correlation_id);

		CREATE TABLE IF NOT EXISTS agent_actions (
			id             TEXT PRIMARY KEY,
			correlation_id TEXT NOT NULL,
			event_id       TEXT NOT NULL REFERENCES webhook_events (id) ON DELETE CASCADE,
			agent_name     TEXT NOT NULL,
			input_data     JSONB NOT NULL,
			output_data    JSONB,
			posted         BOOLEAN NOT NULL DEFAULT FALSE,
			tokens_used    INTEGER,
			status         TEXT NOT NULL,
			error_message  TEXT,
			created_at     TIMESTAMPTZ NOT NULL,
			completed_at   TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_agent_actions_event ON agent_actions (event_id);
		CREATE INDEX IF NOT EXISTS idx_agent_actions_correlation ON agent_actions (correlation_id);
	`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate event tables: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, e *Event) error {
	query := `
		INSERT INTO webhook_events (id, correlation_id, event_type, action, repo_full_name, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.CorrelationID, e.EventType, e.Action, e.RepoFullName, []byte(e.Payload), string(e.Status), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

const eventColumns = `id, correlation_id, event_type, action, repo_full_name, payload, status, created_at, processed_at`

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM webhook_events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) ListEventsByStatus(ctx context.Context, status Status) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM webhook_events WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list events by status: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_events SET status = $1
		WHERE id = $2 AND status IN ($3, $1)
	`, string(StatusProcessing), id, string(StatusReceived))
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *PostgresStore) FinalizeEvent(ctx context.Context, id string, status Status, processedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_events SET status = $1, processed_at = $2
		WHERE id = $3 AND status IN ($4, $5)
	`, string(status), processedAt, id, string(StatusReceived), string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("finalize event: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// checkTransition distinguishes a missing row from a forbidden backwards
// transition when a guarded UPDATE touched nothing.
func (s *PostgresStore) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetEvent(ctx, id); err != nil {
		return err
	}
	return ErrFinalized
}

func (s *PostgresStore) ListStaleProcessing(ctx context.Context, before time.Time) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM webhook_events
		WHERE status = $1 AND created_at < $2 ORDER BY created_at
	`, string(StatusProcessing), before)
	if err != nil {
		return nil, fmt.Errorf("list stale processing: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *PostgresStore) CreateAction(ctx context.Context, a *AgentAction) error {
	query := `
		INSERT INTO agent_actions (id, correlation_id, event_id, agent_name, input_data, output_data,
			posted, tokens_used, status, error_message, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	var output any
	if a.Output != nil {
		output = []byte(a.Output)
	}
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.CorrelationID, a.EventID, a.AgentName, []byte(a.Input), output,
		a.Posted, a.TokensUsed, string(a.Status), nullString(a.ErrorMessage), a.CreatedAt, a.CompletedAt)
	if err != nil {
		return fmt.Errorf("create action: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActionsByEvent(ctx context.Context, eventID string) ([]*AgentAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correlation_id, event_id, agent_name, input_data, output_data,
			posted, tokens_used, status, error_message, created_at, completed_at
		FROM agent_actions WHERE event_id = $1 ORDER BY created_at
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list actions by event: %w", err)
	}
	defer rows.Close()

	var out []*AgentAction
	for rows.Next() {
		var a AgentAction
		var output []byte
		var errMsg sql.NullString
		var status string
		if err := rows.Scan(&a.ID, &a.CorrelationID, &a.EventID, &a.AgentName, (*[]byte)(&a.Input), &output,
			&a.Posted, &a.TokensUsed, &status, &errMsg, &a.CreatedAt, &a.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		if output != nil {
			a.Output = output
		}
		a.Status = ActionStatus(status)
		a.ErrorMessage = errMsg.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM webhook_events
		WHERE status IN ($1, $2) AND created_at < $3
	`, string(StatusCompleted), string(StatusFailed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete terminal events: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var e Event
	var status string
	if err := row.Scan(&e.ID, &e.CorrelationID, &e.EventType, &e.Action, &e.RepoFullName,
		(*[]byte)(&e.Payload), &status, &e.CreatedAt, &e.ProcessedAt); err != nil {
		return nil, err
	}
	e.Status = Status(status)
	return &e, nil
}

func collectEvents(rows *sql.Rows) ([]*Event, error) {
	var out []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
