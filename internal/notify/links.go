package notify

import "strings"

// Links builds WebUI deep links for notifications. When no public base URL
// is configured, loopback links still work for local setups.
type Links struct {
	baseURL string
	port    string
}

func NewLinks(baseURL, port string) *Links {
	if port == "" {
		port = "8080"
	}
	return &Links{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), port: port}
}

func (l *Links) localBase() string {
	return "http://127.0.0.1:" + l.port
}

// ScheduledPromptsURL always resolves, via loopback when unconfigured.
func (l *Links) ScheduledPromptsURL() string {
	base := l.baseURL
	if base == "" {
		base = l.localBase()
	}
	return base + "/workspace/scheduled-prompts"
}

// ChatURL links to a chat, via loopback when unconfigured. Empty chat IDs
// produce no link.
func (l *Links) ChatURL(chatID string) string {
	if chatID == "" {
		return ""
	}
	base := l.baseURL
	if base == "" {
		base = l.localBase()
	}
	return base + "/c/" + chatID
}
