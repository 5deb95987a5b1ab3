// Package gateway hosts the in-app notification socket: users connect over
// WebSocket and the scheduler pushes run notifications to every open
// session.
package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// sessions carry no client payloads beyond pings
	maxMessageSize = 4 * 1024

	sendBuffer = 256
)

// event is the wire frame pushed to sessions.
type event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// session is one connected browser tab.
type session struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub tracks connected sessions per user and pushes events to them. It
// implements the notifier's SessionPool and Emitter contracts.
type Hub struct {
	secret   []byte
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session  // session id → session
	byUser   map[string][]string  // user id → session ids
}

func NewHub(jwtSecret string, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		secret: []byte(jwtSecret),
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sessions: make(map[string]*session),
		byUser:   make(map[string][]string),
	}
}

// ServeHTTP upgrades an authenticated request into a notification session.
// The bearer token is the same application JWT the completion API accepts.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	s := &session{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	h.register(s)
	h.log.Debug("session connected", "user_id", userID, "session_id", s.id)

	go h.writePump(s)
	go h.readPump(s)
}

func (h *Hub) authenticate(r *http.Request) (string, error) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return "", fmt.Errorf("missing token")
	}

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Method)
		}
		return h.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}
	userID, _ := claims["id"].(string)
	if userID == "" {
		return "", fmt.Errorf("token missing user id")
	}
	return userID, nil
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.id] = s
	h.byUser[s.userID] = append(h.byUser[s.userID], s.id)
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[s.id]; !ok {
		return
	}
	delete(h.sessions, s.id)
	close(s.send)

	ids := h.byUser[s.userID]
	for i, id := range ids {
		if id == s.id {
			h.byUser[s.userID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(h.byUser[s.userID]) == 0 {
		delete(h.byUser, s.userID)
	}
}

// SessionIDs returns the connected session IDs for a user.
func (h *Hub) SessionIDs(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := h.byUser[userID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Emit pushes one event to a session. A full send buffer drops the event
// rather than blocking the scheduler.
func (h *Hub) Emit(name string, payload any, sessionID string) error {
	data, err := json.Marshal(event{Event: name, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %s not connected", sessionID)
	}

	select {
	case s.send <- data:
		return nil
	default:
		return fmt.Errorf("session %s send buffer full", sessionID)
	}
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.conn.Close()
	}
}

// readPump drains client frames to keep pong handling alive. Sessions are
// push-only; any payload beyond control frames is ignored.
func (h *Hub) readPump(s *session) {
	defer func() {
		h.unregister(s)
		s.conn.Close()
		h.log.Debug("session disconnected", "user_id", s.userID, "session_id", s.id)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read error", "session_id", s.id, "error", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (h *Hub) writePump(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
