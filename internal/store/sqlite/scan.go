package sqlite

import (
	"database/sql"
	"encoding/json"

	"github.com/nextlevelbuilder/promptsched/internal/store"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func nilStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func strOrEmpty(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func scanJob(row rowScanner) (*store.ScheduledJob, error) {
	var (
		job        store.ScheduledJob
		sysPrompt  sql.NullString
		chatID     sql.NullString
		toolIDs    sql.NullString
		lastRunAt  sql.NullInt64
		nextRunAt  sql.NullInt64
		lastStatus sql.NullString
		lastError  sql.NullString
	)
	err := row.Scan(
		&job.ID, &job.UserID, &job.Name, &job.CronExpression, &job.Timezone,
		&job.Enabled, &job.ModelID, &sysPrompt, &job.Prompt, &chatID,
		&job.CreateNewChat, &job.RunOnce, &toolIDs, &job.FunctionCallingMode,
		&lastRunAt, &nextRunAt, &lastStatus, &lastError, &job.RunCount,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.SystemPrompt = strOrEmpty(sysPrompt)
	job.ChatID = strOrEmpty(chatID)
	job.LastRunAt = int64Ptr(lastRunAt)
	job.NextRunAt = int64Ptr(nextRunAt)
	job.LastStatus = strOrEmpty(lastStatus)
	job.LastError = strOrEmpty(lastError)
	if toolIDs.Valid && toolIDs.String != "" {
		if err := json.Unmarshal([]byte(toolIDs.String), &job.ToolIDs); err != nil {
			return nil, err
		}
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*store.ScheduledJob, error) {
	var jobs []*store.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
