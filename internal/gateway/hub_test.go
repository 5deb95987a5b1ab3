package gateway

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/promptsched/internal/auth"
)

func dialHub(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSessions(t *testing.T, hub *Hub, userID string, want int) []string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		ids := hub.SessionIDs(userID)
		if len(ids) == want {
			return ids
		}
		select {
		case <-deadline:
			t.Fatalf("sessions for %s = %d, want %d", userID, len(ids), want)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestHubTracksSessionsPerUser(t *testing.T) {
	hub := NewHub("secret", nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	minter := auth.NewMinter("secret")
	tok, err := minter.Token("u1")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}

	dialHub(t, srv, tok)
	dialHub(t, srv, tok)
	waitForSessions(t, hub, "u1", 2)

	if ids := hub.SessionIDs("other"); len(ids) != 0 {
		t.Errorf("unexpected sessions for other user: %v", ids)
	}
}

func TestHubRejectsBadToken(t *testing.T) {
	hub := NewHub("secret", nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded with a bad token")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Errorf("status = %v", resp)
	}
}

func TestHubEmitDeliversEvent(t *testing.T) {
	hub := NewHub("secret", nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	minter := auth.NewMinter("secret")
	tok, err := minter.Token("u1")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}

	conn := dialHub(t, srv, tok)
	ids := waitForSessions(t, hub, "u1", 1)

	payload := map[string]any{"title": "Scheduled prompt completed"}
	if err := hub.Emit("notification", payload, ids[0]); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var got struct {
		Event   string         `json:"event"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Event != "notification" || got.Payload["title"] != "Scheduled prompt completed" {
		t.Errorf("frame = %+v", got)
	}
}

func TestHubEmitUnknownSession(t *testing.T) {
	hub := NewHub("secret", nil)
	if err := hub.Emit("notification", nil, "nope"); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := NewHub("secret", nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	minter := auth.NewMinter("secret")
	tok, err := minter.Token("u1")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}

	conn := dialHub(t, srv, tok)
	waitForSessions(t, hub, "u1", 1)

	conn.Close()
	waitForSessions(t, hub, "u1", 0)
}
