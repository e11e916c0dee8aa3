package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/taskpulse/internal/bus"
	"github.com/nextlevelbuilder/taskpulse/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS processed_tasks (
	task_id          TEXT PRIMARY KEY,
	message_id       TEXT NOT NULL,
	organization_id  TEXT NOT NULL DEFAULT '',
	channel_id       TEXT NOT NULL DEFAULT '',
	channel_name     TEXT NOT NULL DEFAULT '',
	assignee         TEXT NOT NULL DEFAULT '',
	urgency          TEXT NOT NULL DEFAULT 'medium',
	confidence       REAL NOT NULL DEFAULT 0,
	summary          TEXT NOT NULL DEFAULT '',
	action_required  TEXT NOT NULL DEFAULT '',
	recommendations  TEXT,
	delivery_results TEXT,
	processed_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_processed_tasks_processed_at ON processed_tasks(processed_at DESC);
`

// SQLiteTaskStore implements store.TaskStore on a local SQLite file
// (standalone mode). The schema is bootstrapped at open.
type SQLiteTaskStore struct {
	db *sql.DB
}

// Open opens (and if needed creates) the SQLite database at path.
func Open(path string) (*SQLiteTaskStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite is not safe for concurrent writers on one connection
	// pool beyond this; single writer is plenty for the gateway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteTaskStore{db: db}, nil
}

func (s *SQLiteTaskStore) SaveTask(ctx context.Context, task *store.ProcessedTask) error {
	recsJSON, err := json.Marshal(task.Recommendations)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}
	resultsJSON, err := json.Marshal(task.DeliveryResults)
	if err != nil {
		return fmt.Errorf("encode delivery results: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_tasks
		 (task_id, message_id, organization_id, channel_id, channel_name, assignee,
		  urgency, confidence, summary, action_required, recommendations, delivery_results, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.TaskID, task.MessageID, task.OrganizationID, task.ChannelID, task.ChannelName,
		task.Assignee, task.Urgency, task.Confidence, task.Summary, task.ActionRequired,
		string(recsJSON), string(resultsJSON), task.ProcessedAt,
	)
	return err
}

func (s *SQLiteTaskStore) GetTask(ctx context.Context, taskID string) (*store.ProcessedTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT task_id, message_id, organization_id, channel_id, channel_name, assignee,
		        urgency, confidence, summary, action_required, recommendations, delivery_results, processed_at
		 FROM processed_tasks WHERE task_id = ?`, taskID)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return task, err
}

func (s *SQLiteTaskStore) ListRecent(ctx context.Context, limit int) ([]store.ProcessedTask, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, message_id, organization_id, channel_id, channel_name, assignee,
		        urgency, confidence, summary, action_required, recommendations, delivery_results, processed_at
		 FROM processed_tasks ORDER BY processed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ProcessedTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}

func (s *SQLiteTaskStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*store.ProcessedTask, error) {
	var (
		task        store.ProcessedTask
		recsJSON    sql.NullString
		resultsJSON sql.NullString
	)
	err := row.Scan(
		&task.TaskID, &task.MessageID, &task.OrganizationID, &task.ChannelID, &task.ChannelName,
		&task.Assignee, &task.Urgency, &task.Confidence, &task.Summary, &task.ActionRequired,
		&recsJSON, &resultsJSON, &task.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	if recsJSON.Valid && recsJSON.String != "" && recsJSON.String != "null" {
		if err := json.Unmarshal([]byte(recsJSON.String), &task.Recommendations); err != nil {
			return nil, fmt.Errorf("decode recommendations: %w", err)
		}
	}
	if resultsJSON.Valid && resultsJSON.String != "" && resultsJSON.String != "null" {
		if err := json.Unmarshal([]byte(resultsJSON.String), &task.DeliveryResults); err != nil {
			return nil, fmt.Errorf("decode delivery results: %w", err)
		}
	}
	if task.DeliveryResults == nil {
		task.DeliveryResults = []bus.DeliveryOutcome{}
	}
	return &task, nil
}
