package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/promptsched/internal/store"
)

const ntfyDefaultServer = "https://ntfy.sh"

const ntfyTimeout = 10 * time.Second

// NtfyMessage is one push notification.
type NtfyMessage struct {
	Status             string
	Title              string
	Message            string
	ChatURL            string
	ScheduledPromptURL string
}

// NtfyClient posts push notifications to an ntfy server per the user's
// settings. A per-user limiter keeps a misconfigured tight schedule from
// hammering the push server.
type NtfyClient struct {
	http *http.Client
	log  *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewNtfyClient(log *slog.Logger) *NtfyClient {
	if log == nil {
		log = slog.Default()
	}
	return &NtfyClient{
		http:     &http.Client{Timeout: ntfyTimeout},
		log:      log,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *NtfyClient) limiter(userID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(10*time.Second), 3)
		c.limiters[userID] = lim
	}
	return lim
}

// Send delivers one push notification if the user has ntfy configured.
// Failures are logged and swallowed.
func (c *NtfyClient) Send(ctx context.Context, user *store.User, msg *NtfyMessage) {
	if c == nil || user == nil || user.Settings == nil {
		return
	}
	ntfy := user.Settings.UI.Notifications.Ntfy
	if ntfy == nil || !ntfy.Enabled {
		return
	}

	serverURL := strings.TrimRight(ntfy.ServerURL, "/")
	if serverURL == "" {
		serverURL = ntfyDefaultServer
	}
	topic := strings.Trim(strings.TrimSpace(ntfy.Topic), "/")
	if topic == "" {
		c.log.Debug("ntfy enabled but topic is empty, skipping", "user_id", user.ID)
		return
	}

	if !c.limiter(user.ID).Allow() {
		c.log.Debug("ntfy rate limit hit, dropping notification", "user_id", user.ID)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		serverURL+"/"+topic, strings.NewReader(msg.Message))
	if err != nil {
		c.log.Warn("ntfy request build failed", "user_id", user.ID, "error", err)
		return
	}

	req.Header.Set("Title", msg.Title)
	if msg.Status == "success" {
		req.Header.Set("Tags", "calendar")
		req.Header.Set("Priority", "default")
	} else {
		req.Header.Set("Tags", "warning")
		req.Header.Set("Priority", "high")
	}

	clickURL := msg.ChatURL
	if clickURL == "" {
		clickURL = msg.ScheduledPromptURL
	}
	if clickURL != "" {
		req.Header.Set("Click", clickURL)
	}

	var actions []string
	if msg.ChatURL != "" {
		actions = append(actions, "view, Open Chat, "+msg.ChatURL)
	}
	if msg.ScheduledPromptURL != "" {
		actions = append(actions, "view, Scheduled Prompts, "+msg.ScheduledPromptURL)
	}
	if len(actions) > 0 {
		req.Header.Set("Actions", strings.Join(actions, "; "))
	}

	if token := strings.TrimSpace(ntfy.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("ntfy notification failed", "user_id", user.ID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.log.Warn("ntfy notification rejected",
			"user_id", user.ID, "status", resp.StatusCode, "body", string(body))
		return
	}

	c.log.Debug("ntfy notification sent", "user_id", user.ID, "title", msg.Title)
}
