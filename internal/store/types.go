// Package store defines the persistence contracts for scheduled jobs, chat
// transcripts, and users. Backends live in store/pg (managed mode) and
// store/sqlite (standalone mode).
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Run status values for ScheduledJob.LastStatus.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusRunning = "running"
)

// Function-calling modes. "default" lets the backend post-process tool calls
// into final text, "native" uses the model's own tool protocol, "auto" defers
// to backend defaults.
const (
	FunctionCallingDefault = "default"
	FunctionCallingNative  = "native"
	FunctionCallingAuto    = "auto"
)

// ScheduledJob is a persisted recurring or one-shot prompt definition.
// Identity, schedule, and payload fields are owned by external CRUD; the
// engine mutates only the execution-state fields.
type ScheduledJob struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`

	CronExpression string `json:"cron_expression"`
	Timezone       string `json:"timezone"` // IANA name, default UTC
	Enabled        bool   `json:"enabled"`

	ModelID      string `json:"model_id"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Prompt       string `json:"prompt"`

	ChatID        string `json:"chat_id,omitempty"`
	CreateNewChat bool   `json:"create_new_chat"`
	RunOnce       bool   `json:"run_once"`

	ToolIDs             []string `json:"tool_ids,omitempty"`
	FunctionCallingMode string   `json:"function_calling_mode"`

	// Execution state, engine-owned. Unix seconds.
	LastRunAt  *int64 `json:"last_run_at,omitempty"`
	NextRunAt  *int64 `json:"next_run_at,omitempty"`
	LastStatus string `json:"last_status,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	RunCount   int    `json:"run_count"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// ExecutionUpdate advances a job's execution state after a run attempt.
// The write sets last_run_at to now, bumps run_count by one, and applies the
// fields below. NextRunAt and ClearNextRun are mutually exclusive; when both
// are zero-valued the stored next_run_at is left untouched.
type ExecutionUpdate struct {
	Status       string
	Error        *string
	ChatID       *string
	NextRunAt    *int64
	ClearNextRun bool
}

// JobStore is the persistence contract for scheduled jobs.
type JobStore interface {
	// Due returns all jobs with enabled = true and a non-null next_run_at
	// at or before now, ordered ascending by next_run_at. A job keeps
	// appearing until UpdateExecution advances next_run_at past now or the
	// job is disabled.
	Due(ctx context.Context, now int64) ([]*ScheduledJob, error)

	Get(ctx context.Context, id string) (*ScheduledJob, error)
	Create(ctx context.Context, job *ScheduledJob) error
	ListByUser(ctx context.Context, userID string) ([]*ScheduledJob, error)
	CountByUser(ctx context.Context, userID string) (int, error)

	// UpdateExecution must be atomic per row; last writer wins across the
	// execution-state fields.
	UpdateExecution(ctx context.Context, id string, up ExecutionUpdate) error

	SetEnabled(ctx context.Context, id string, enabled bool) error
}
