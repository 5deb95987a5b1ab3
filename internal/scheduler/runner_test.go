package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/nextlevelbuilder/promptsched/internal/completion"
	"github.com/nextlevelbuilder/promptsched/internal/models"
	"github.com/nextlevelbuilder/promptsched/internal/store"
)

type fakeChatStore struct {
	mu      sync.Mutex
	chats   map[string]*store.Chat
	created []*store.Chat
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{chats: make(map[string]*store.Chat)}
}

func (f *fakeChatStore) Create(_ context.Context, chat *store.Chat) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if chat.ID == "" {
		chat.ID = "chat-new"
	}
	f.chats[chat.ID] = chat
	f.created = append(f.created, chat)
	return chat.ID, nil
}

func (f *fakeChatStore) Get(_ context.Context, id string) (*store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return chat, nil
}

func (f *fakeChatStore) AppendMessages(_ context.Context, id string, msgs []store.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.chats[id]
	if !ok {
		return store.ErrNotFound
	}
	chat.Messages = append(chat.Messages, msgs...)
	return nil
}

type fakeUserStore struct{ user *store.User }

func (f *fakeUserStore) Get(_ context.Context, id string) (*store.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, store.ErrNotFound
	}
	return f.user, nil
}

type scriptedCompleter struct {
	mu       sync.Mutex
	requests []*completion.Request
	resp     *completion.Response
	err      error
}

func (f *scriptedCompleter) Complete(_ context.Context, _ string, req *completion.Request) (*completion.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	succeeded int
	failed    int
	lastChat  string
	lastErr   string
}

func (n *recordingNotifier) JobSucceeded(_ context.Context, _ *store.User, _ *store.ScheduledJob, chatID, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.succeeded++
	n.lastChat = chatID
}

func (n *recordingNotifier) JobFailed(_ context.Context, _ *store.User, _ *store.ScheduledJob, errMsg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed++
	n.lastErr = errMsg
}

func okResponse(content string) *completion.Response {
	return &completion.Response{Choices: []completion.Choice{
		{Message: completion.ResponseMessage{Role: "assistant", Content: content}},
	}}
}

type runnerFixture struct {
	runner   *Runner
	jobs     *fakeJobStore
	chats    *fakeChatStore
	client   *scriptedCompleter
	notifier *recordingNotifier
}

func newRunnerFixture(job *store.ScheduledJob, user *store.User, client *scriptedCompleter) *runnerFixture {
	registry := models.NewRegistry()
	registry.Replace([]*models.Model{
		{ID: "gpt-4o", Info: &models.Info{Meta: models.Meta{ToolIDs: []string{"notes_manager", "prompt_scheduler"}}}},
		{ID: "llama3"},
	})

	jobs := newFakeJobStore([]*store.ScheduledJob{job})
	chats := newFakeChatStore()
	notifier := &recordingNotifier{}

	return &runnerFixture{
		runner:   NewRunner(jobs, chats, &fakeUserStore{user: user}, registry, client, notifier, nil),
		jobs:     jobs,
		chats:    chats,
		client:   client,
		notifier: notifier,
	}
}

func recurringJob() *store.ScheduledJob {
	return &store.ScheduledJob{
		ID:                  "job-1",
		UserID:              "u1",
		Name:                "morning briefing",
		CronExpression:      "0 9 * * *",
		Timezone:            "UTC",
		Enabled:             true,
		ModelID:             "gpt-4o",
		Prompt:              "summarize my notes",
		CreateNewChat:       true,
		FunctionCallingMode: store.FunctionCallingDefault,
	}
}

func TestExecuteRecurringSuccess(t *testing.T) {
	job := recurringJob()
	client := &scriptedCompleter{resp: okResponse("your summary")}
	fx := newRunnerFixture(job, &store.User{ID: "u1", Name: "Ana"}, client)

	if err := fx.runner.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	upd, ok := fx.jobs.updates[job.ID]
	if !ok {
		t.Fatal("execution not recorded")
	}
	if upd.Status != store.StatusSuccess {
		t.Errorf("status = %q", upd.Status)
	}
	if upd.NextRunAt == nil || *upd.NextRunAt <= time.Now().Unix() {
		t.Errorf("next_run_at not advanced: %v", upd.NextRunAt)
	}
	if upd.ChatID == nil || *upd.ChatID == "" {
		t.Error("chat_id not recorded")
	}

	if len(fx.chats.created) != 1 {
		t.Fatalf("chats created = %d", len(fx.chats.created))
	}
	chat := fx.chats.created[0]
	if chat.Title != "[Scheduled] morning briefing" {
		t.Errorf("title = %q", chat.Title)
	}
	if len(chat.Messages) != 2 || chat.Messages[0].Role != store.RoleUser ||
		chat.Messages[1].Role != store.RoleAssistant {
		t.Errorf("exchange = %+v", chat.Messages)
	}
	if chat.Messages[1].Content != "your summary" {
		t.Errorf("assistant content = %q", chat.Messages[1].Content)
	}

	if fx.notifier.succeeded != 1 || fx.notifier.failed != 0 {
		t.Errorf("notifications: ok=%d fail=%d", fx.notifier.succeeded, fx.notifier.failed)
	}
}

func TestExecuteRunOnceDisables(t *testing.T) {
	job := recurringJob()
	job.RunOnce = true
	client := &scriptedCompleter{resp: okResponse("done")}
	fx := newRunnerFixture(job, &store.User{ID: "u1"}, client)

	if err := fx.runner.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	upd := fx.jobs.updates[job.ID]
	if !upd.ClearNextRun {
		t.Error("next_run_at not cleared for run_once job")
	}
	if upd.NextRunAt != nil {
		t.Errorf("next_run_at set for run_once job: %v", upd.NextRunAt)
	}
	if enabled, ok := fx.jobs.enabled[job.ID]; !ok || enabled {
		t.Error("run_once job not disabled")
	}
}

func TestExecuteErrorAdvancesRecurringSchedule(t *testing.T) {
	job := recurringJob()
	client := &scriptedCompleter{err: errors.New("completion API error 500: upstream down")}
	fx := newRunnerFixture(job, &store.User{ID: "u1"}, client)

	if err := fx.runner.Execute(context.Background(), job); err == nil {
		t.Fatal("expected error")
	}

	upd := fx.jobs.updates[job.ID]
	if upd.Status != store.StatusError {
		t.Errorf("status = %q", upd.Status)
	}
	if upd.Error == nil || !strings.Contains(*upd.Error, "upstream down") {
		t.Errorf("error = %v", upd.Error)
	}
	if upd.NextRunAt == nil || *upd.NextRunAt <= time.Now().Unix() {
		t.Errorf("recurring schedule must advance after errors: %v", upd.NextRunAt)
	}
	if fx.notifier.failed != 1 {
		t.Errorf("failure notifications = %d", fx.notifier.failed)
	}
}

func TestExecuteRunOnceErrorDisables(t *testing.T) {
	job := recurringJob()
	job.RunOnce = true
	client := &scriptedCompleter{err: errors.New("boom")}
	fx := newRunnerFixture(job, &store.User{ID: "u1"}, client)

	if err := fx.runner.Execute(context.Background(), job); err == nil {
		t.Fatal("expected error")
	}

	upd := fx.jobs.updates[job.ID]
	if upd.Status != store.StatusError || !upd.ClearNextRun {
		t.Errorf("update = %+v", upd)
	}
	if enabled, ok := fx.jobs.enabled[job.ID]; !ok || enabled {
		t.Error("failed one-off job not disabled")
	}
}

func TestModelFallbackChain(t *testing.T) {
	job := recurringJob()
	job.ModelID = "retired-model"
	client := &scriptedCompleter{resp: okResponse("ok")}
	user := &store.User{ID: "u1", Settings: &store.UserSettings{Models: []string{"also-gone", "llama3"}}}
	fx := newRunnerFixture(job, user, client)

	if err := fx.runner.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := fx.client.requests[0].Model; got != "llama3" {
		t.Errorf("resolved model = %q, want user's default llama3", got)
	}
}

func TestModelFallbackExhausted(t *testing.T) {
	job := recurringJob()
	job.ModelID = "gone"
	client := &scriptedCompleter{resp: okResponse("ok")}

	registry := models.NewRegistry()
	jobs := newFakeJobStore([]*store.ScheduledJob{job})
	runner := NewRunner(jobs, newFakeChatStore(), &fakeUserStore{user: &store.User{ID: "u1"}},
		registry, client, &recordingNotifier{}, nil)

	err := runner.Execute(context.Background(), job)
	if !errors.Is(err, ErrNoModelAvailable) {
		t.Fatalf("err = %v, want ErrNoModelAvailable", err)
	}
	if upd := jobs.updates[job.ID]; upd.Status != store.StatusError {
		t.Errorf("failure not recorded: %+v", upd)
	}
}

func TestToolInheritanceAndSchedulerExclusion(t *testing.T) {
	// No explicit tools: the model's configured tools apply, minus the
	// scheduler tool.
	job := recurringJob()
	client := &scriptedCompleter{resp: okResponse("ok")}
	fx := newRunnerFixture(job, &store.User{ID: "u1"}, client)

	if err := fx.runner.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	req := fx.client.requests[0]
	if len(req.ToolIDs) != 1 || req.ToolIDs[0] != "notes_manager" {
		t.Errorf("tool_ids = %v", req.ToolIDs)
	}

	sys := req.Messages[0]
	if sys.Role != store.RoleSystem {
		t.Fatalf("first message role = %q", sys.Role)
	}
	if !strings.Contains(sys.Content, "automated scheduled reminder") {
		t.Errorf("automation instruction missing: %q", sys.Content)
	}
	if !strings.Contains(sys.Content, "do not stop after list_my_notes") {
		t.Errorf("notes directive missing: %q", sys.Content)
	}
}

func TestSystemPromptKeptAndAugmented(t *testing.T) {
	job := recurringJob()
	job.SystemPrompt = "You are a terse assistant."
	job.ToolIDs = []string{"web_search"}
	client := &scriptedCompleter{resp: okResponse("ok")}
	fx := newRunnerFixture(job, &store.User{ID: "u1"}, client)

	if err := fx.runner.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	sys := fx.client.requests[0].Messages[0]
	if !strings.HasPrefix(sys.Content, "You are a terse assistant.") {
		t.Errorf("system prompt lost: %q", sys.Content)
	}
	if !strings.Contains(sys.Content, "web_search") {
		t.Errorf("tool list missing: %q", sys.Content)
	}
	if strings.Contains(sys.Content, "do not stop after list_my_notes") {
		t.Error("notes directive added without notes_manager")
	}
}

func TestAppendToExistingChat(t *testing.T) {
	job := recurringJob()
	job.CreateNewChat = false
	job.ChatID = "chat-7"
	client := &scriptedCompleter{resp: okResponse("ok")}
	fx := newRunnerFixture(job, &store.User{ID: "u1"}, client)
	fx.chats.chats["chat-7"] = &store.Chat{ID: "chat-7", UserID: "u1", Title: "existing"}

	if err := fx.runner.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(fx.chats.created) != 0 {
		t.Error("new chat created instead of appending")
	}
	if got := len(fx.chats.chats["chat-7"].Messages); got != 2 {
		t.Errorf("appended messages = %d, want 2", got)
	}
	if fx.notifier.lastChat != "chat-7" {
		t.Errorf("notified chat = %q", fx.notifier.lastChat)
	}
}

func TestRecreatesDeletedChat(t *testing.T) {
	job := recurringJob()
	job.CreateNewChat = false
	job.ChatID = "deleted-chat"
	client := &scriptedCompleter{resp: okResponse("ok")}
	fx := newRunnerFixture(job, &store.User{ID: "u1"}, client)

	if err := fx.runner.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(fx.chats.created) != 1 {
		t.Fatalf("chats created = %d, want 1", len(fx.chats.created))
	}
	upd := fx.jobs.updates[job.ID]
	if upd.ChatID == nil || *upd.ChatID == "deleted-chat" {
		t.Errorf("chat_id not repointed: %v", upd.ChatID)
	}
}

func TestMissingUserFails(t *testing.T) {
	job := recurringJob()
	client := &scriptedCompleter{resp: okResponse("ok")}
	fx := newRunnerFixture(job, &store.User{ID: "someone-else"}, client)

	err := fx.runner.Execute(context.Background(), job)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
	if len(fx.client.requests) != 0 {
		t.Error("completion attempted without a user")
	}
}

func TestNeutralInstructionWhenToolsFilterToNothing(t *testing.T) {
	// Inherited tools that reduce to only the scheduler tool still count as
	// configured: the run gets the no-tools automation instruction.
	job := recurringJob()
	job.ModelID = "sched-only"
	client := &scriptedCompleter{resp: okResponse("ok")}

	registry := models.NewRegistry()
	registry.Replace([]*models.Model{
		{ID: "sched-only", Info: &models.Info{Meta: models.Meta{ToolIDs: []string{"prompt_scheduler"}}}},
	})
	jobs := newFakeJobStore([]*store.ScheduledJob{job})
	runner := NewRunner(jobs, newFakeChatStore(), &fakeUserStore{user: &store.User{ID: "u1"}},
		registry, client, &recordingNotifier{}, nil)

	if err := runner.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	req := client.requests[0]
	if len(req.ToolIDs) != 0 {
		t.Errorf("tool_ids = %v", req.ToolIDs)
	}
	sys := req.Messages[0]
	if sys.Role != store.RoleSystem {
		t.Fatalf("first message role = %q", sys.Role)
	}
	if !strings.Contains(sys.Content, "Respond helpfully to the user's request") {
		t.Errorf("neutral automation instruction missing: %q", sys.Content)
	}
	if strings.Contains(sys.Content, "You have access to these tools") {
		t.Errorf("tool list included with no executable tools: %q", sys.Content)
	}
}

func TestChatTitleTruncatesOnRuneBoundary(t *testing.T) {
	job := recurringJob()
	job.Name = ""
	job.Prompt = strings.Repeat("日", 60)
	client := &scriptedCompleter{resp: okResponse("ok")}
	fx := newRunnerFixture(job, &store.User{ID: "u1"}, client)

	if err := fx.runner.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	title := fx.chats.created[0].Title
	if !utf8.ValidString(title) {
		t.Fatalf("title is not valid UTF-8: %q", title)
	}
	if want := "[Scheduled] " + strings.Repeat("日", 50) + "..."; title != want {
		t.Errorf("title = %q, want %q", title, want)
	}
}

func TestErrorMessageTruncatesOnRuneBoundary(t *testing.T) {
	got := truncate(strings.Repeat("é", 250), 200)
	if !utf8.ValidString(got) {
		t.Fatalf("not valid UTF-8: %q", got)
	}
	if n := len([]rune(got)); n != 200 {
		t.Errorf("runes = %d, want 200", n)
	}
}
