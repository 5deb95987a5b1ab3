package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/promptsched/internal/store"
)

func openTestChatStore(t *testing.T) *ChatStore {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewChatStore(db)
}

func TestChatCreateAndGet(t *testing.T) {
	cs := openTestChatStore(t)
	ctx := context.Background()

	chat := &store.Chat{
		UserID: "u1",
		Title:  "morning briefing",
		Models: []string{"gpt-4o"},
		Messages: []store.ChatMessage{
			{ID: "m1", Role: store.RoleUser, Content: "Summarize my notes"},
		},
	}
	id, err := cs.Create(ctx, chat)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := cs.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != chat.Title || len(got.Messages) != 1 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Messages[0].Role != store.RoleUser {
		t.Errorf("message role = %q", got.Messages[0].Role)
	}
}

func TestChatAppendMessages(t *testing.T) {
	cs := openTestChatStore(t)
	ctx := context.Background()

	id, err := cs.Create(ctx, &store.Chat{UserID: "u1", Title: "t"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	msgs := []store.ChatMessage{
		{ID: "m1", Role: store.RoleUser, Content: "hello"},
		{ID: "m2", Role: store.RoleAssistant, Content: "hi", Sources: []store.Source{
			{Source: store.SourceRef{Name: "notes"}, Document: []string{"note body"}},
		}},
	}
	if err := cs.AppendMessages(ctx, id, msgs); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	got, err := cs.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(got.Messages))
	}
	if len(got.Messages[1].Sources) != 1 || got.Messages[1].Sources[0].Source.Name != "notes" {
		t.Errorf("sources not preserved: %+v", got.Messages[1].Sources)
	}
}

func TestChatAppendMissing(t *testing.T) {
	cs := openTestChatStore(t)
	err := cs.AppendMessages(context.Background(), "gone", []store.ChatMessage{{ID: "m"}})
	if err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
