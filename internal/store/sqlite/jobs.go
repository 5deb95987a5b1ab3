package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/promptsched/internal/store"
)

// JobStore implements store.JobStore on SQLite.
type JobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, user_id, name, cron_expression, timezone, enabled,
	model_id, system_prompt, prompt, chat_id, create_new_chat, run_once,
	tool_ids, function_calling_mode, last_run_at, next_run_at, last_status,
	last_error, run_count, created_at, updated_at`

func (s *JobStore) Due(ctx context.Context, now int64) ([]*store.ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+`
		FROM scheduled_prompt
		WHERE enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *JobStore) Get(ctx context.Context, id string) (*store.ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+`
		FROM scheduled_prompt WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (s *JobStore) Create(ctx context.Context, job *store.ScheduledJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	var toolIDs any
	if len(job.ToolIDs) > 0 {
		b, err := json.Marshal(job.ToolIDs)
		if err != nil {
			return fmt.Errorf("encode tool_ids: %w", err)
		}
		toolIDs = string(b)
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO scheduled_prompt (
		id, user_id, name, cron_expression, timezone, enabled,
		model_id, system_prompt, prompt, chat_id, create_new_chat, run_once,
		tool_ids, function_calling_mode, last_run_at, next_run_at, last_status,
		last_error, run_count, created_at, updated_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		job.ID, job.UserID, job.Name, job.CronExpression, job.Timezone, job.Enabled,
		job.ModelID, nilStr(job.SystemPrompt), job.Prompt, nilStr(job.ChatID),
		job.CreateNewChat, job.RunOnce, toolIDs, job.FunctionCallingMode,
		job.LastRunAt, job.NextRunAt, nilStr(job.LastStatus), nilStr(job.LastError),
		job.RunCount, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *JobStore) ListByUser(ctx context.Context, userID string) ([]*store.ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+`
		FROM scheduled_prompt WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", userID, err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *JobStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scheduled_prompt WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs for %s: %w", userID, err)
	}
	return n, nil
}

func (s *JobStore) UpdateExecution(ctx context.Context, id string, upd store.ExecutionUpdate) error {
	now := time.Now().Unix()

	sets := []string{
		"last_status = ?",
		"last_run_at = ?",
		"run_count = run_count + 1",
		"updated_at = ?",
	}
	args := []any{upd.Status, now, now}

	if upd.Error != nil {
		sets = append(sets, "last_error = ?")
		args = append(args, nilStr(*upd.Error))
	} else {
		sets = append(sets, "last_error = NULL")
	}
	if upd.ChatID != nil {
		sets = append(sets, "chat_id = ?")
		args = append(args, *upd.ChatID)
	}
	switch {
	case upd.ClearNextRun:
		sets = append(sets, "next_run_at = NULL")
	case upd.NextRunAt != nil:
		sets = append(sets, "next_run_at = ?")
		args = append(args, *upd.NextRunAt)
	}

	args = append(args, id)
	query := "UPDATE scheduled_prompt SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update execution for %s: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *JobStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scheduled_prompt
		SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("set enabled for %s: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
