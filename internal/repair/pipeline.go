package repair

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/promptsched/internal/completion"
	"github.com/nextlevelbuilder/promptsched/internal/store"
)

// EmptyToolCallFallback is the text recorded when the model finishes with
// only structured tool calls and the default-mode retry still produces no
// final text.
const EmptyToolCallFallback = "Scheduled prompt completed, but the model returned only tool calls and no final text."

const rawToolContinuationTurn = "Execute the requested tool call(s) above, then answer the original user request " +
	"in plain language. Do not return tool-call JSON."

const forcedContinuationTurn = "Your prior attempt produced malformed tool-call chatter. " +
	"Execute the intended tool call(s) using available tools, then answer the original " +
	"request in plain language with concrete results. " +
	"Do not include tool-call syntax, commentary, analysis text, or JSON."

// chatterMarkers flag assistant text that leaked the tool protocol. The bare
// "json" marker is deliberately broad; a configured tool must also be
// mentioned before any marker counts.
var chatterMarkers = []string{
	"to=",
	"tool call",
	"tool_call",
	"arguments",
	"need proper json",
	"do not output json",
	"json",
}

// maxFollowUps bounds the extra completions one run may issue across all
// recovery stages.
const maxFollowUps = 4

const maxNotesFollowUpPasses = 2

// Input is one completed initial exchange handed to the pipeline.
type Input struct {
	JobID               string
	UserID              string
	Model               string
	Messages            []completion.Message
	ActionTools         []string
	FunctionCallingMode string
	Response            *completion.Response
}

// Result is the repaired outcome: the final assistant text and the response
// whose sources should be persisted with it.
type Result struct {
	Content  string
	Response *completion.Response
}

// Pipeline runs the recovery stages over a completion response.
type Pipeline struct {
	client completion.Completer
	log    *slog.Logger
}

func NewPipeline(client completion.Completer, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{client: client, log: log}
}

// Run applies the recovery stages in order. Stages that issue follow-up
// completions share a budget of maxFollowUps calls; a follow-up that errors
// fails the whole run so the job records the failure.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	r := &run{Pipeline: p, in: in, resp: in.Response}
	r.content = in.Response.AssistantContent()

	if err := r.retryEmptyToolCalls(ctx); err != nil {
		return nil, err
	}
	if err := r.continueRawToolJSON(ctx); err != nil {
		return nil, err
	}
	if err := r.repairToolChatter(ctx); err != nil {
		return nil, err
	}
	if err := r.forceNotesFollowUp(ctx); err != nil {
		return nil, err
	}

	return &Result{Content: r.content, Response: r.resp}, nil
}

type run struct {
	*Pipeline
	in        Input
	content   string
	resp      *completion.Response
	followUps int
}

func (r *run) complete(ctx context.Context, req *completion.Request) (*completion.Response, bool, error) {
	if r.followUps >= maxFollowUps {
		r.log.Warn("follow-up budget exhausted", "job_id", r.in.JobID)
		return nil, false, nil
	}
	r.followUps++
	resp, err := r.client.Complete(ctx, r.in.UserID, req)
	if err != nil {
		return nil, false, err
	}
	return resp, true, nil
}

func (r *run) followUpRequest(messages []completion.Message) *completion.Request {
	return &completion.Request{
		Model:    r.in.Model,
		Messages: messages,
		ToolIDs:  r.in.ActionTools,
		Params:   &completion.Params{FunctionCalling: store.FunctionCallingDefault},
	}
}

func (r *run) sources() []store.Source {
	if r.resp == nil {
		return nil
	}
	return r.resp.Sources
}

// retryEmptyToolCalls handles the model finishing with structured tool calls
// and no text. Non-default modes get one retry in default mode; if that still
// yields nothing the fallback sentinel stands in for the answer.
func (r *run) retryEmptyToolCalls(ctx context.Context) error {
	if r.content != "" || len(r.in.Response.ToolCalls()) == 0 {
		return nil
	}

	r.log.Warn("completion returned tool_calls without final text",
		"job_id", r.in.JobID)

	if r.in.FunctionCallingMode != store.FunctionCallingDefault {
		r.log.Info("retrying with function_calling=default", "job_id", r.in.JobID)

		retry := r.followUpRequest(r.in.Messages)
		resp, ok, err := r.complete(ctx, retry)
		if err != nil {
			return err
		}
		if ok {
			r.resp = resp
			r.content = resp.AssistantContent()
		}
	}

	if r.content == "" {
		r.content = EmptyToolCallFallback
	}
	return nil
}

// continueRawToolJSON handles assistant text that is itself a tool-call JSON
// object: one continuation turn executes the requested call and answers in
// plain language.
func (r *run) continueRawToolJSON(ctx context.Context) error {
	if len(r.in.ActionTools) == 0 || !isRawToolRequest(r.content) {
		return nil
	}

	r.log.Info("raw tool-call JSON output detected, running continuation pass",
		"job_id", r.in.JobID)

	messages := append(append([]completion.Message{}, r.in.Messages...),
		completion.Message{Role: store.RoleAssistant, Content: r.content},
		completion.Message{Role: store.RoleUser, Content: rawToolContinuationTurn},
	)

	resp, ok, err := r.complete(ctx, r.followUpRequest(messages))
	if err != nil {
		return err
	}
	if ok {
		if content := resp.AssistantContent(); content != "" {
			r.content = content
			r.resp = resp
		}
	}
	return nil
}

func isRawToolRequest(content string) bool {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return false
	}
	return truthyJSON(parsed["tool"]) || truthyJSON(parsed["tool_calls"])
}

func truthyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	switch s {
	case "", "null", "false", "0", `""`, "[]", "{}":
		return false
	}
	return true
}

// repairToolChatter handles malformed tool-call chatter: one forced
// continuation with a note-ID hint when available, then sanitization of
// whatever text survives.
func (r *run) repairToolChatter(ctx context.Context) error {
	if !hasToolChatter(r.content, r.in.ActionTools) {
		return nil
	}

	r.log.Info("malformed tool-call chatter detected, forcing continuation",
		"job_id", r.in.JobID)

	if len(r.in.ActionTools) > 0 {
		turn := forcedContinuationTurn
		if IsNotesToolEnabled(r.in.ActionTools) {
			if noteIDs := ExtractNoteIDsFromListSources(r.sources()); len(noteIDs) > 0 {
				turn += " Use get_note with parameter note_id and one of these IDs: " +
					strings.Join(headIDs(noteIDs), ", ") +
					". Do not call list_my_notes/search_notes again unless none of these IDs work."
			}
		}

		messages := append(append([]completion.Message{}, r.in.Messages...),
			completion.Message{Role: store.RoleUser, Content: turn})

		resp, ok, err := r.complete(ctx, r.followUpRequest(messages))
		if err != nil {
			return err
		}
		if ok {
			if content := resp.AssistantContent(); content != "" {
				r.content = content
				r.resp = resp
			}
		}
	}

	r.content = SanitizeToolChatter(r.content, r.in.ActionTools)
	return nil
}

func hasToolChatter(content string, actionTools []string) bool {
	lowered := strings.ToLower(content)

	mentionsTool := false
	for _, id := range actionTools {
		if strings.Contains(lowered, strings.ToLower(id)) {
			mentionsTool = true
			break
		}
	}
	if !mentionsTool {
		return false
	}

	for _, marker := range chatterMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// forceNotesFollowUp handles runs that listed notes without ever fetching
// one: up to two passes instructing the model to call get_note with a
// concrete note UUID.
func (r *run) forceNotesFollowUp(ctx context.Context) error {
	if !IsNotesToolEnabled(r.in.ActionTools) {
		return nil
	}

	for pass := 1; pass <= maxNotesFollowUpPasses; pass++ {
		sources := r.sources()

		hasListSource := false
		hasGetSource := false
		for _, source := range sources {
			name := source.Source.Name
			if SourceMatchesNoteFunction(name, "list_my_notes") ||
				SourceMatchesNoteFunction(name, "search_notes") {
				hasListSource = true
			}
			if SourceMatchesNoteFunction(name, "get_note") {
				hasGetSource = true
			}
		}

		noteIDs := ExtractNoteIDsFromListSources(sources)
		usedIDs, hasNotFound := ExtractGetNoteIDsAndFailures(sources)

		usedExpectedID := false
		for _, used := range usedIDs {
			for _, id := range noteIDs {
				if used == id {
					usedExpectedID = true
					break
				}
			}
		}

		needsFollowUp := hasListSource && (!hasGetSource || hasNotFound ||
			(len(noteIDs) > 0 && !usedExpectedID))

		// Concrete note content already retrieved, or nothing to point at.
		if !needsFollowUp || len(noteIDs) == 0 {
			return nil
		}

		r.log.Info("note listing without successful get_note, forcing follow-up",
			"job_id", r.in.JobID, "pass", pass)

		turn := "You MUST call get_note with parameter note_id using one of these IDs: " +
			strings.Join(headIDs(noteIDs), ", ") + ". " +
			"Use the exact UUID from the ID column, not the note title. " +
			"Do not call list_my_notes/search_notes again unless every provided ID fails. " +
			"After retrieving the note content, answer the original request in plain language."

		messages := append(append([]completion.Message{}, r.in.Messages...),
			completion.Message{Role: store.RoleAssistant, Content: r.content},
			completion.Message{Role: store.RoleUser, Content: turn},
		)

		resp, ok, err := r.complete(ctx, r.followUpRequest(messages))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		content := resp.AssistantContent()
		if content == "" {
			return nil
		}
		r.content = SanitizeToolChatter(content, r.in.ActionTools)
		r.resp = resp
	}
	return nil
}

// headIDs caps a candidate-ID list at five entries for prompt hints.
func headIDs(ids []string) []string {
	if len(ids) > 5 {
		return ids[:5]
	}
	return ids
}
