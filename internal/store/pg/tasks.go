package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/taskpulse/internal/bus"
	"github.com/nextlevelbuilder/taskpulse/internal/store"
)

// PGTaskStore implements store.TaskStore backed by Postgres (managed mode).
// Schema lives under migrations/ and is applied with the migrate command.
type PGTaskStore struct {
	db *sql.DB
}

// OpenDB opens a pgx-backed database handle and verifies connectivity.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPGTaskStore wraps an open database handle.
func NewPGTaskStore(db *sql.DB) *PGTaskStore {
	return &PGTaskStore{db: db}
}

func (s *PGTaskStore) SaveTask(ctx context.Context, task *store.ProcessedTask) error {
	recsJSON, err := json.Marshal(task.Recommendations)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}
	resultsJSON, err := json.Marshal(task.DeliveryResults)
	if err != nil {
		return fmt.Errorf("encode delivery results: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO processed_tasks
		 (task_id, message_id, organization_id, channel_id, channel_name, assignee,
		  urgency, confidence, summary, action_required, recommendations, delivery_results, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (task_id) DO NOTHING`,
		task.TaskID, task.MessageID, task.OrganizationID, task.ChannelID, task.ChannelName,
		task.Assignee, task.Urgency, task.Confidence, task.Summary, task.ActionRequired,
		recsJSON, resultsJSON, task.ProcessedAt,
	)
	return err
}

func (s *PGTaskStore) GetTask(ctx context.Context, taskID string) (*store.ProcessedTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT task_id, message_id, organization_id, channel_id, channel_name, assignee,
		        urgency, confidence, summary, action_required, recommendations, delivery_results, processed_at
		 FROM processed_tasks WHERE task_id = $1`, taskID)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return task, err
}

func (s *PGTaskStore) ListRecent(ctx context.Context, limit int) ([]store.ProcessedTask, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, message_id, organization_id, channel_id, channel_name, assignee,
		        urgency, confidence, summary, action_required, recommendations, delivery_results, processed_at
		 FROM processed_tasks ORDER BY processed_at DESC LIMIT $1`, limit)
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

func (s *PGTaskStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*store.ProcessedTask, error) {
	var (
		task        store.ProcessedTask
		recsJSON    []byte
		resultsJSON []byte
	)
	err := row.Scan(
		&task.TaskID, &task.MessageID, &task.OrganizationID, &task.ChannelID, &task.ChannelName,
		&task.Assignee, &task.Urgency, &task.Confidence, &task.Summary, &task.ActionRequired,
		&recsJSON, &resultsJSON, &task.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(recsJSON) > 0 {
		if err := json.Unmarshal(recsJSON, &task.Recommendations); err != nil {
			return nil, fmt.Errorf("decode recommendations: %w", err)
		}
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &task.DeliveryResults); err != nil {
			return nil, fmt.Errorf("decode delivery results: %w", err)
		}
	}
	if task.DeliveryResults == nil {
		task.DeliveryResults = []bus.DeliveryOutcome{}
	}
	return &task, nil
}
