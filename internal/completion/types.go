// Package completion is the client for the chat completions API.
package completion

import "github.com/nextlevelbuilder/promptsched/internal/store"

// Message is one turn in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params carries per-request overrides.
type Params struct {
	FunctionCalling string `json:"function_calling,omitempty"`
}

// Request is the non-streaming completion payload.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	ToolIDs  []string  `json:"tool_ids,omitempty"`
	Params   *Params   `json:"params,omitempty"`
}

// ToolCallFunction is the function half of a structured tool call.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one structured tool invocation in an assistant message.
type ToolCall struct {
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`
}

// ResponseMessage is the assistant message in a completion choice.
type ResponseMessage struct {
	Role             string     `json:"role"`
	Content          string     `json:"content"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
}

// Choice is one completion candidate.
type Choice struct {
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// Response is the non-streaming completion result. Sources carries tool
// output attached by the server, keyed by tool name.
type Response struct {
	ID      string         `json:"id,omitempty"`
	Choices []Choice       `json:"choices"`
	Sources []store.Source `json:"sources,omitempty"`
}

// AssistantContent extracts the usable text from a response: the message
// content, falling back to reasoning_content, else empty.
func (r *Response) AssistantContent() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	msg := r.Choices[0].Message
	if msg.Content != "" {
		return msg.Content
	}
	return msg.ReasoningContent
}

// ToolCalls returns the first choice's structured tool calls, if any.
func (r *Response) ToolCalls() []ToolCall {
	if r == nil || len(r.Choices) == 0 {
		return nil
	}
	return r.Choices[0].Message.ToolCalls
}
