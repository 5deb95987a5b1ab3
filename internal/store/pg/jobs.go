package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/promptsched/internal/store"
)

// JobStore implements store.JobStore on Postgres.
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
		WHERE enabled = TRUE AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *JobStore) Get(ctx context.Context, id string) (*store.ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+`
		FROM scheduled_prompt WHERE id = $1`, id)
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

	toolIDs, err := jsonOrNil(job.ToolIDs)
	if err != nil {
		return fmt.Errorf("encode tool_ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO scheduled_prompt (
		id, user_id, name, cron_expression, timezone, enabled,
		model_id, system_prompt, prompt, chat_id, create_new_chat, run_once,
		tool_ids, function_calling_mode, last_run_at, next_run_at, last_status,
		last_error, run_count, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
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
		FROM scheduled_prompt WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", userID, err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *JobStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scheduled_prompt WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs for %s: %w", userID, err)
	}
	return n, nil
}

// UpdateExecution records the outcome of one run attempt. It always stamps
// last_run_at and bumps run_count by one.
func (s *JobStore) UpdateExecution(ctx context.Context, id string, upd store.ExecutionUpdate) error {
	now := time.Now().Unix()

	sets := []string{
		"last_status = $1",
		"last_run_at = $2",
		"run_count = run_count + 1",
		"updated_at = $2",
	}
	args := []any{upd.Status, now}
	n := 3

	if upd.Error != nil {
		sets = append(sets, fmt.Sprintf("last_error = $%d", n))
		args = append(args, nilStr(*upd.Error))
		n++
	} else {
		sets = append(sets, "last_error = NULL")
	}
	if upd.ChatID != nil {
		sets = append(sets, fmt.Sprintf("chat_id = $%d", n))
		args = append(args, *upd.ChatID)
		n++
	}
	switch {
	case upd.ClearNextRun:
		sets = append(sets, "next_run_at = NULL")
	case upd.NextRunAt != nil:
		sets = append(sets, fmt.Sprintf("next_run_at = $%d", n))
		args = append(args, *upd.NextRunAt)
		n++
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE scheduled_prompt SET %s WHERE id = $%d",
		strings.Join(sets, ", "), n)

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
		SET enabled = $1, updated_at = $2 WHERE id = $3`,
		enabled, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("set enabled for %s: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
