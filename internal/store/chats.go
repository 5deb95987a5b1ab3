package store

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SourceRef names the tool function that produced a source. Names may be bare
// ("get_note") or namespaced by tool id ("notes_manager/get_note").
type SourceRef struct {
	Name string `json:"name"`
}

// SourceParameters carries the parameters a tool call was invoked with.
type SourceParameters struct {
	NoteID string `json:"note_id,omitempty"`
}

// SourceMetadata is the per-document metadata entry of a Source. Metadata is
// index-aligned with the Document slice.
type SourceMetadata struct {
	Source     string            `json:"source,omitempty"`
	Parameters *SourceParameters `json:"parameters,omitempty"`
}

// Source is a citation block attached to a completion response.
type Source struct {
	Source   SourceRef        `json:"source"`
	Document []string         `json:"document,omitempty"`
	Metadata []SourceMetadata `json:"metadata,omitempty"`
}

// NoteAttachment is a fetched note persisted on an assistant message so the
// visible content is not duplicated in the message text.
type NoteAttachment struct {
	NoteID  string `json:"note_id,omitempty"`
	Content string `json:"content"`
}

// ChatMessage is a single transcript entry. Timestamp is unix seconds.
type ChatMessage struct {
	ID        string   `json:"id"`
	Role      string   `json:"role"`
	Content   string   `json:"content"`
	Timestamp int64    `json:"timestamp"`
	Models    []string `json:"models,omitempty"`

	// Assistant-only fields. Citations mirrors Sources for UIs that read
	// either key.
	Sources         []Source         `json:"sources,omitempty"`
	Citations       []Source         `json:"citations,omitempty"`
	NoteAttachments []NoteAttachment `json:"note_attachments,omitempty"`
}

// Chat is an ordered transcript owned by a user.
type Chat struct {
	ID       string        `json:"id"`
	UserID   string        `json:"user_id"`
	Title    string        `json:"title"`
	Messages []ChatMessage `json:"messages"`
	Models   []string      `json:"models,omitempty"`
	ToolIDs  []string      `json:"tool_ids,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// ChatStore is the persistence contract for chat transcripts. The engine only
// creates chats and appends messages; it never deletes.
type ChatStore interface {
	// Create persists a new chat, assigning Chat.ID when empty, and returns
	// the chat id.
	Create(ctx context.Context, chat *Chat) (string, error)

	Get(ctx context.Context, id string) (*Chat, error)

	// AppendMessages atomically appends messages to an existing chat.
	// Returns ErrNotFound when the chat was deleted.
	AppendMessages(ctx context.Context, id string, msgs []ChatMessage) error
}
