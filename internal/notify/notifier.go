// Package notify delivers scheduled prompt outcomes to job owners: in-app
// events to every connected session plus optional ntfy push. Delivery is
// best effort; no notification failure ever affects a run's recorded
// outcome.
package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/promptsched/internal/store"
)

// SessionPool resolves a user's connected session IDs.
type SessionPool interface {
	SessionIDs(userID string) []string
}

// Emitter sends an event to one session.
type Emitter interface {
	Emit(event string, payload any, sessionID string) error
}

// pushPreviewLimit caps the output preview embedded in push messages.
const pushPreviewLimit = 500

// Notifier fans out run outcomes over the in-app socket and ntfy.
type Notifier struct {
	sessions SessionPool
	emitter  Emitter
	links    *Links
	ntfy     *NtfyClient
	log      *slog.Logger
}

func NewNotifier(sessions SessionPool, emitter Emitter, links *Links, ntfy *NtfyClient, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		sessions: sessions,
		emitter:  emitter,
		links:    links,
		ntfy:     ntfy,
		log:      log,
	}
}

// JobSucceeded announces a completed run, linking to the chat that holds the
// output.
func (n *Notifier) JobSucceeded(ctx context.Context, user *store.User, job *store.ScheduledJob, chatID, output string) {
	chatURL := n.links.ChatURL(chatID)
	promptsURL := n.links.ScheduledPromptsURL()

	message := "'" + job.Name + "' ran successfully"
	if job.RunOnce {
		message += " (one-off, now disabled)"
	}

	n.emitToSessions(job.UserID, map[string]any{
		"type":                  "scheduled_prompt",
		"status":                "success",
		"title":                 "Scheduled prompt completed",
		"message":               message,
		"chat_id":               chatID,
		"chat_url":              chatURL,
		"scheduled_prompts_url": promptsURL,
		"prompt_id":             job.ID,
	})

	pushMessage := message
	if preview := truncateForPush(output); preview != "" {
		pushMessage += "\n\nOutput:\n" + preview
	}

	n.ntfy.Send(ctx, user, &NtfyMessage{
		Status:             "success",
		Title:              "Scheduled prompt completed",
		Message:            pushMessage,
		ChatURL:            chatURL,
		ScheduledPromptURL: promptsURL,
	})
}

// JobFailed announces a failed run. errMsg should already be shortened for
// display.
func (n *Notifier) JobFailed(ctx context.Context, user *store.User, job *store.ScheduledJob, errMsg string) {
	promptsURL := n.links.ScheduledPromptsURL()
	message := "'" + job.Name + "' failed: " + errMsg

	n.emitToSessions(job.UserID, map[string]any{
		"type":                  "scheduled_prompt",
		"status":                "error",
		"title":                 "Scheduled prompt failed",
		"message":               message,
		"prompt_id":             job.ID,
		"scheduled_prompts_url": promptsURL,
	})

	n.ntfy.Send(ctx, user, &NtfyMessage{
		Status:             "error",
		Title:              "Scheduled prompt failed",
		Message:            message,
		ScheduledPromptURL: promptsURL,
	})
}

// emitToSessions sends the payload to every connected session of the user,
// so all open tabs see the notification. Offline users are skipped quietly.
func (n *Notifier) emitToSessions(userID string, payload map[string]any) {
	if n.sessions == nil || n.emitter == nil {
		return
	}

	sessionIDs := n.sessions.SessionIDs(userID)
	if len(sessionIDs) == 0 {
		n.log.Debug("user not online, skipping notification", "user_id", userID)
		return
	}

	for _, sid := range sessionIDs {
		if err := n.emitter.Emit("notification", payload, sid); err != nil {
			n.log.Warn("notification emit failed",
				"user_id", userID, "session_id", sid, "error", err)
		}
	}
	n.log.Debug("notification sent",
		"user_id", userID, "sessions", len(sessionIDs), "title", payload["title"])
}

// truncateForPush shortens text for push display, cutting on a rune boundary
// and signalling the cut with an ellipsis.
func truncateForPush(text string) string {
	cleaned := strings.TrimSpace(text)
	runes := []rune(cleaned)
	if len(runes) <= pushPreviewLimit {
		return cleaned
	}
	return strings.TrimRight(string(runes[:pushPreviewLimit]), " \t\r\n") + "..."
}
