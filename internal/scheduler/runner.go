package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/promptsched/internal/completion"
	"github.com/nextlevelbuilder/promptsched/internal/cron"
	"github.com/nextlevelbuilder/promptsched/internal/models"
	"github.com/nextlevelbuilder/promptsched/internal/repair"
	"github.com/nextlevelbuilder/promptsched/internal/store"
)

// Notifier delivers run outcomes to the job owner. Implementations must
// never fail the run; delivery errors are swallowed and logged internally.
type Notifier interface {
	JobSucceeded(ctx context.Context, user *store.User, job *store.ScheduledJob, chatID, output string)
	JobFailed(ctx context.Context, user *store.User, job *store.ScheduledJob, errMsg string)
}

// Runner executes one scheduled prompt: it resolves the model and tools,
// runs the completion plus recovery pipeline, persists the exchange into a
// chat, advances the job's schedule state, and notifies the owner.
type Runner struct {
	jobs     store.JobStore
	chats    store.ChatStore
	users    store.UserStore
	registry *models.Registry
	client   completion.Completer
	pipeline *repair.Pipeline
	notifier Notifier
	log      *slog.Logger
	tracer   trace.Tracer
}

func NewRunner(
	jobs store.JobStore,
	chats store.ChatStore,
	users store.UserStore,
	registry *models.Registry,
	client completion.Completer,
	notifier Notifier,
	log *slog.Logger,
) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		jobs:     jobs,
		chats:    chats,
		users:    users,
		registry: registry,
		client:   client,
		pipeline: repair.NewPipeline(client, log),
		notifier: notifier,
		log:      log,
		tracer:   otel.Tracer("promptsched/scheduler"),
	}
}

// Execute runs a single due job. Schedule state always advances, success or
// not: recurring jobs get their next fire time even after an error, one-off
// jobs are disabled after their single attempt.
func (r *Runner) Execute(ctx context.Context, job *store.ScheduledJob) error {
	ctx, span := r.tracer.Start(ctx, "scheduled_prompt.run",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.model", job.ModelID),
			attribute.Bool("job.run_once", job.RunOnce),
		))
	defer span.End()

	r.log.Info("executing scheduled prompt", "job_id", job.ID, "name", job.Name)

	user, chatID, output, err := r.execute(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.recordFailure(ctx, job, user, err)
		return err
	}

	span.SetAttributes(attribute.String("job.chat_id", chatID))
	r.recordSuccess(ctx, job, user, chatID, output)
	return nil
}

func (r *Runner) execute(ctx context.Context, job *store.ScheduledJob) (user *store.User, chatID, output string, err error) {
	user, err = r.users.Get(ctx, job.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", "", fmt.Errorf("user %s: %w", job.UserID, ErrUserNotFound)
		}
		return nil, "", "", fmt.Errorf("load user %s: %w", job.UserID, err)
	}

	modelID, err := r.resolveModel(job, user)
	if err != nil {
		return user, "", "", err
	}

	actionTools, configuredTools := r.resolveActionTools(job, modelID)

	mode := job.FunctionCallingMode
	var params *completion.Params
	switch mode {
	case store.FunctionCallingDefault, store.FunctionCallingNative:
		params = &completion.Params{FunctionCalling: mode}
	default:
		// Any other value defers to the completion backend's defaults.
		mode = store.FunctionCallingAuto
	}
	r.log.Info("function calling mode", "job_id", job.ID, "mode", mode)

	messages := r.buildMessages(job, actionTools, configuredTools)

	req := &completion.Request{
		Model:    modelID,
		Messages: messages,
		ToolIDs:  actionTools,
		Params:   params,
	}

	resp, err := r.client.Complete(ctx, job.UserID, req)
	if err != nil {
		return user, "", "", err
	}

	result, err := r.pipeline.Run(ctx, repair.Input{
		JobID:               job.ID,
		UserID:              job.UserID,
		Model:               modelID,
		Messages:            messages,
		ActionTools:         actionTools,
		FunctionCallingMode: mode,
		Response:            resp,
	})
	if err != nil {
		return user, "", "", err
	}

	chatID, err = r.persistExchange(ctx, job, modelID, actionTools, result)
	if err != nil {
		return user, "", "", err
	}

	return user, chatID, result.Content, nil
}

// resolveModel applies the fallback chain: the job's model, then the user's
// preferred models in order, then any registry model.
func (r *Runner) resolveModel(job *store.ScheduledJob, user *store.User) (string, error) {
	if r.registry.Has(job.ModelID) {
		return job.ModelID, nil
	}

	r.log.Warn("model not found, looking for fallback",
		"job_id", job.ID, "model", job.ModelID)

	if user.Settings != nil {
		for _, id := range user.Settings.Models {
			if r.registry.Has(id) {
				r.log.Info("using user's default model", "job_id", job.ID, "model", id)
				return id, nil
			}
		}
	}

	if id, ok := r.registry.First(); ok {
		r.log.Info("using first available model", "job_id", job.ID, "model", id)
		return id, nil
	}

	return "", fmt.Errorf("model %s: %w", job.ModelID, ErrNoModelAvailable)
}

// resolveActionTools returns the executable tools for a run along with the
// configured list they were filtered from: the job's explicit tools, else the
// model's configured tools, minus any scheduler tool so runs cannot schedule
// themselves recursively.
func (r *Runner) resolveActionTools(job *store.ScheduledJob, modelID string) (actionTools, configured []string) {
	configured = job.ToolIDs
	if len(configured) == 0 {
		if model, ok := r.registry.Get(modelID); ok {
			configured = model.ToolIDs()
			if len(configured) > 0 {
				r.log.Info("using model's configured tools",
					"job_id", job.ID, "tools", configured)
			}
		}
	}

	for _, id := range configured {
		if !strings.Contains(strings.ToLower(id), "prompt_scheduler") {
			actionTools = append(actionTools, id)
		}
	}

	if len(configured) > 0 && len(actionTools) == 0 {
		r.log.Info("only the scheduler tool was configured, skipping tool execution",
			"job_id", job.ID)
	}
	return actionTools, configured
}

// buildMessages assembles the conversation: the job's system prompt (if any)
// plus the user prompt, with the automation instruction appended to the
// system turn whenever tools were configured. A configured list that filters
// down to nothing still gets the no-tools variant of the instruction.
func (r *Runner) buildMessages(job *store.ScheduledJob, actionTools, configured []string) []completion.Message {
	var messages []completion.Message
	if job.SystemPrompt != "" {
		messages = append(messages, completion.Message{
			Role: store.RoleSystem, Content: job.SystemPrompt,
		})
	}
	messages = append(messages, completion.Message{
		Role: store.RoleUser, Content: job.Prompt,
	})

	if len(configured) == 0 && len(actionTools) == 0 {
		return messages
	}

	var instruction string
	if len(actionTools) > 0 {
		instruction = "\n\nIMPORTANT: This is an automated scheduled reminder. You have access to these tools: " +
			strings.Join(actionTools, ", ") +
			". Use them to help the user with their request. For example, if this is about a todo list, " +
			"use the notes_manager tool to fetch the actual current data."
	} else {
		instruction = "\n\nIMPORTANT: This is an automated scheduled reminder. Respond helpfully to the user's request."
	}

	for _, id := range actionTools {
		if id == "notes_manager" {
			instruction += "\n\nWhen using notes_manager for todos/notes: do not stop after list_my_notes " +
				"if the user asked for note contents. Use get_note on the relevant note ID " +
				"and summarize the actual items from the note content."
			break
		}
	}

	if messages[0].Role == store.RoleSystem {
		messages[0].Content += instruction
	} else {
		messages = append([]completion.Message{{
			Role:    store.RoleSystem,
			Content: "You are a helpful assistant." + instruction,
		}}, messages...)
	}
	return messages
}

// persistExchange writes the user prompt and repaired assistant answer into
// a chat: a fresh one when the job asks for it or has no chat yet, otherwise
// appended to the existing chat, recreating it if it was deleted.
func (r *Runner) persistExchange(ctx context.Context, job *store.ScheduledJob, modelID string, actionTools []string, result *repair.Result) (string, error) {
	timestamp := time.Now().Unix()

	var sources []store.Source
	if result.Response != nil {
		sources = result.Response.Sources
	}
	noteAttachments := repair.ExtractNoteAttachments(sources)

	assistantMsg := store.ChatMessage{
		ID:        uuid.NewString(),
		Role:      store.RoleAssistant,
		Content:   result.Content,
		Timestamp: timestamp,
		Models:    []string{modelID},
	}
	if len(sources) > 0 {
		assistantMsg.Sources = sources
		// Both keys kept so chat UIs referencing either stay working.
		assistantMsg.Citations = sources
	}
	if len(noteAttachments) > 0 {
		assistantMsg.NoteAttachments = noteAttachments
	}

	exchange := []store.ChatMessage{
		{
			ID:        uuid.NewString(),
			Role:      store.RoleUser,
			Content:   job.Prompt,
			Timestamp: timestamp,
			Models:    []string{modelID},
		},
		assistantMsg,
	}

	if !job.CreateNewChat && job.ChatID != "" {
		err := r.chats.AppendMessages(ctx, job.ChatID, exchange)
		if err == nil {
			return job.ChatID, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("append to chat %s: %w", job.ChatID, err)
		}
		// Chat was deleted since the last run; fall through and recreate.
		r.log.Warn("target chat deleted, creating a new one",
			"job_id", job.ID, "chat_id", job.ChatID)
	}

	title := job.Name
	if title == "" {
		title = job.Prompt
		if runes := []rune(title); len(runes) > 50 {
			title = string(runes[:50]) + "..."
		}
	}

	chat := &store.Chat{
		UserID:   job.UserID,
		Title:    "[Scheduled] " + title,
		Messages: exchange,
		Models:   []string{modelID},
		ToolIDs:  actionTools,
	}
	chatID, err := r.chats.Create(ctx, chat)
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}
	return chatID, nil
}

// recordSuccess advances the job's schedule after a completed run and fans
// out notifications.
func (r *Runner) recordSuccess(ctx context.Context, job *store.ScheduledJob, user *store.User, chatID, output string) {
	upd := store.ExecutionUpdate{
		Status: store.StatusSuccess,
		ChatID: &chatID,
	}

	if job.RunOnce {
		upd.ClearNextRun = true
		if err := r.jobs.UpdateExecution(ctx, job.ID, upd); err != nil {
			r.log.Error("execution update failed", "job_id", job.ID, "error", err)
		}
		if err := r.jobs.SetEnabled(ctx, job.ID, false); err != nil {
			r.log.Error("disable one-off job failed", "job_id", job.ID, "error", err)
		}
		r.log.Info("one-off prompt completed and disabled", "job_id", job.ID)
	} else {
		r.scheduleNext(job, &upd)
		if err := r.jobs.UpdateExecution(ctx, job.ID, upd); err != nil {
			r.log.Error("execution update failed", "job_id", job.ID, "error", err)
		}
	}

	r.log.Info("scheduled prompt succeeded", "job_id", job.ID, "chat_id", chatID)
	if r.notifier != nil {
		r.notifier.JobSucceeded(ctx, user, job, chatID, output)
	}
}

// recordFailure records the error on the job. Recurring jobs keep their
// schedule advancing; one-off jobs are disabled so they cannot retry
// forever.
func (r *Runner) recordFailure(ctx context.Context, job *store.ScheduledJob, user *store.User, runErr error) {
	msg := runErr.Error()
	upd := store.ExecutionUpdate{
		Status: store.StatusError,
		Error:  &msg,
	}

	if job.RunOnce {
		upd.ClearNextRun = true
		if err := r.jobs.UpdateExecution(ctx, job.ID, upd); err != nil {
			r.log.Error("execution update failed", "job_id", job.ID, "error", err)
		}
		if err := r.jobs.SetEnabled(ctx, job.ID, false); err != nil {
			r.log.Error("disable one-off job failed", "job_id", job.ID, "error", err)
		}
		r.log.Warn("one-off prompt failed and disabled", "job_id", job.ID)
	} else {
		r.scheduleNext(job, &upd)
		if err := r.jobs.UpdateExecution(ctx, job.ID, upd); err != nil {
			r.log.Error("execution update failed", "job_id", job.ID, "error", err)
		}
	}

	if r.notifier != nil {
		r.notifier.JobFailed(ctx, user, job, truncate(msg, 200))
	}
}

// scheduleNext fills upd.NextRunAt from the job's cron expression. An
// unparseable expression leaves next_run_at untouched rather than wedging
// the update.
func (r *Runner) scheduleNext(job *store.ScheduledJob, upd *store.ExecutionUpdate) {
	next, err := cron.Next(job.CronExpression, job.Timezone, time.Now())
	if err != nil {
		r.log.Error("next run calculation failed",
			"job_id", job.ID, "expr", job.CronExpression, "error", err)
		return
	}
	ts := next.Unix()
	upd.NextRunAt = &ts
}

// truncate shortens s to at most n runes, never splitting a multibyte
// character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
