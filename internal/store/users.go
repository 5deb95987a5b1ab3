package store

import "context"

// NtfySettings configures the user's external push endpoint, stored at
// settings path ui.notifications.ntfy.
type NtfySettings struct {
	Enabled   bool   `json:"enabled"`
	ServerURL string `json:"server_url,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Token     string `json:"token,omitempty"`
}

// NotificationSettings groups per-user notification options.
type NotificationSettings struct {
	Ntfy *NtfySettings `json:"ntfy,omitempty"`
}

// UISettings is the user's UI settings subtree.
type UISettings struct {
	Notifications NotificationSettings `json:"notifications"`
}

// UserSettings is the persisted settings object. Models is the user's
// default-models preference list, first entry preferred.
type UserSettings struct {
	UI     UISettings `json:"ui"`
	Models []string   `json:"models,omitempty"`
}

// User is the owning user of jobs and chats.
type User struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Email    string        `json:"email,omitempty"`
	Settings *UserSettings `json:"settings,omitempty"`
}

// UserStore resolves job owners.
type UserStore interface {
	Get(ctx context.Context, id string) (*User, error)
}
