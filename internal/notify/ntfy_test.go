package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/nextlevelbuilder/promptsched/internal/store"
)

func ntfyUser(serverURL string) *store.User {
	return &store.User{
		ID: "u1",
		Settings: &store.UserSettings{
			UI: store.UISettings{Notifications: store.NotificationSettings{
				Ntfy: &store.NtfySettings{
					Enabled:   true,
					ServerURL: serverURL,
					Topic:     "alerts",
					Token:     "tok-1",
				},
			}},
		},
	}
}

func TestNtfySendHeadersAndBody(t *testing.T) {
	var gotPath, gotTitle, gotTags, gotPriority, gotClick, gotActions, gotAuth, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
		gotClick = r.Header.Get("Click")
		gotActions = r.Header.Get("Actions")
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer srv.Close()

	c := NewNtfyClient(nil)
	c.Send(context.Background(), ntfyUser(srv.URL), &NtfyMessage{
		Status:             "success",
		Title:              "Scheduled prompt completed",
		Message:            "'digest' ran successfully\n\nOutput:\npreview",
		ChatURL:            "https://ui/c/1",
		ScheduledPromptURL: "https://ui/workspace/scheduled-prompts",
	})

	if gotPath != "/alerts" {
		t.Errorf("path = %q", gotPath)
	}
	if gotTitle != "Scheduled prompt completed" {
		t.Errorf("Title = %q", gotTitle)
	}
	if gotTags != "calendar" || gotPriority != "default" {
		t.Errorf("Tags/Priority = %q/%q", gotTags, gotPriority)
	}
	if gotClick != "https://ui/c/1" {
		t.Errorf("Click = %q", gotClick)
	}
	want := "view, Open Chat, https://ui/c/1; view, Scheduled Prompts, https://ui/workspace/scheduled-prompts"
	if gotActions != want {
		t.Errorf("Actions = %q", gotActions)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody != "'digest' ran successfully\n\nOutput:\npreview" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestNtfyErrorStatusUsesWarningTags(t *testing.T) {
	var gotTags, gotPriority string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
	}))
	defer srv.Close()

	c := NewNtfyClient(nil)
	c.Send(context.Background(), ntfyUser(srv.URL), &NtfyMessage{
		Status: "error", Title: "t", Message: "m",
		ScheduledPromptURL: "https://ui/workspace/scheduled-prompts",
	})

	if gotTags != "warning" || gotPriority != "high" {
		t.Errorf("Tags/Priority = %q/%q", gotTags, gotPriority)
	}
}

func TestNtfyFailureSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewNtfyClient(nil)
	// Must not panic or propagate anything.
	c.Send(context.Background(), ntfyUser(srv.URL), &NtfyMessage{Status: "success", Title: "t", Message: "m"})
}

func TestNtfySkipsWhenUnconfigured(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewNtfyClient(nil)
	msg := &NtfyMessage{Status: "success", Title: "t", Message: "m"}

	c.Send(context.Background(), nil, msg)
	c.Send(context.Background(), &store.User{ID: "u"}, msg)

	disabled := ntfyUser(srv.URL)
	disabled.Settings.UI.Notifications.Ntfy.Enabled = false
	c.Send(context.Background(), disabled, msg)

	noTopic := ntfyUser(srv.URL)
	noTopic.Settings.UI.Notifications.Ntfy.Topic = "  /  "
	c.Send(context.Background(), noTopic, msg)

	if calls.Load() != 0 {
		t.Errorf("server hit %d times", calls.Load())
	}
}

func TestNtfyRateLimit(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewNtfyClient(nil)
	user := ntfyUser(srv.URL)
	msg := &NtfyMessage{Status: "success", Title: "t", Message: "m"}

	for i := 0; i < 10; i++ {
		c.Send(context.Background(), user, msg)
	}
	if got := calls.Load(); got > 3 {
		t.Errorf("burst allowed %d sends, limiter burst is 3", got)
	}
}
