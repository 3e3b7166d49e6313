// Package relay is the development-side operator relay: it speaks the agent's
// frame contract over /chat/ws, keeps a per-user transcript, and exposes the
// admin and ingest endpoints the agent expects in production.
package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaykit/pageagent/internal/logging"
	"github.com/relaykit/pageagent/internal/wire"
)

// HistoryLimit is how many transcript entries are kept and replayed per user.
const HistoryLimit = 50

// StaleAfter is the heartbeat staleness window after which a user drops off
// the roster.
const StaleAfter = 60 * time.Second

// ErrUserOffline is returned when an admin message targets a user without a
// live connection.
var ErrUserOffline = errors.New("relay: user is not online")

type client struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	username  string
	page      string
	userAgent string
	lastSeen  time.Time
}

func (c *client) send(frame wire.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(frame)
}

// OnlineUser is one roster entry.
type OnlineUser struct {
	Username  string `json:"username"`
	Page      string `json:"page"`
	UserAgent string `json:"userAgent"`
	LastSeen  string `json:"lastSeen"`
}

// Hub tracks connected users, their transcripts, and ingested reports.
type Hub struct {
	log *logging.Logger
	now func() time.Time

	mu      sync.Mutex
	clients map[string]*client
	history map[string][]wire.Message
	reports []wire.Report
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	if log == nil {
		log = logging.NewNop()
	}
	return &Hub{
		log:     log.Named("relay"),
		now:     time.Now,
		clients: make(map[string]*client),
		history: make(map[string][]wire.Message),
	}
}

// register binds a connection to a username, replacing any previous one.
func (h *Hub) register(username string, conn *websocket.Conn) *client {
	cl := &client{conn: conn, username: username, lastSeen: h.now()}
	h.mu.Lock()
	if prev, ok := h.clients[username]; ok {
		_ = prev.conn.Close()
	}
	h.clients[username] = cl
	h.mu.Unlock()
	return cl
}

// unregister removes the client if it is still the current one for its user.
func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	if cur, ok := h.clients[cl.username]; ok && cur == cl {
		delete(h.clients, cl.username)
	}
	h.mu.Unlock()
}

func (h *Hub) touch(cl *client) {
	h.mu.Lock()
	cl.lastSeen = h.now()
	h.mu.Unlock()
}

func (h *Hub) setProfile(cl *client, page, userAgent string) {
	h.mu.Lock()
	cl.page = page
	cl.userAgent = userAgent
	cl.lastSeen = h.now()
	h.mu.Unlock()
}

func (h *Hub) appendHistory(username string, msg wire.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := append(h.history[username], msg)
	if over := len(entries) - HistoryLimit; over > 0 {
		entries = entries[over:]
	}
	h.history[username] = entries
}

// History returns a copy of a user's transcript.
func (h *Hub) History(username string) []wire.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]wire.Message, len(h.history[username]))
	copy(out, h.history[username])
	return out
}

// SendAdmin delivers an admin message to a connected user and records it in
// the transcript.
func (h *Hub) SendAdmin(username, content string) error {
	h.mu.Lock()
	cl, ok := h.clients[username]
	h.mu.Unlock()
	if !ok {
		return ErrUserOffline
	}

	now := h.now().Format("15:04:05")
	if err := cl.send(wire.Frame{Type: wire.TypeAdminMessage, Content: content, Time: now}); err != nil {
		return err
	}
	h.appendHistory(username, wire.Message{Content: content, IsAdmin: true, Time: now})
	return nil
}

// Online returns the roster, evicting users whose last heartbeat is stale.
func (h *Hub) Online() []OnlineUser {
	cutoff := h.now().Add(-StaleAfter)

	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]OnlineUser, 0, len(h.clients))
	for username, cl := range h.clients {
		if cl.lastSeen.Before(cutoff) {
			_ = cl.conn.Close()
			delete(h.clients, username)
			continue
		}
		out = append(out, OnlineUser{
			Username:  username,
			Page:      cl.page,
			UserAgent: cl.userAgent,
			LastSeen:  cl.lastSeen.Format(time.RFC3339),
		})
	}
	return out
}

// AddReport records one ingested telemetry payload.
func (h *Hub) AddReport(report wire.Report) {
	h.mu.Lock()
	h.reports = append(h.reports, report)
	h.mu.Unlock()
}

// Reports returns a copy of everything ingested so far.
func (h *Hub) Reports() []wire.Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]wire.Report, len(h.reports))
	copy(out, h.reports)
	return out
}
