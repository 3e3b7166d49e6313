// Package session owns the single live operator channel: connect, identify,
// heartbeat, dispatch inbound frames, and reconnect on every close until the
// agent shuts down.
package session

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relaykit/pageagent/internal/logging"
	"github.com/relaykit/pageagent/internal/monitoring"
	"github.com/relaykit/pageagent/internal/storage"
	"github.com/relaykit/pageagent/internal/wire"
)

// Status is the channel lifecycle state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusOnline
	StatusReconnecting
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusOnline:
		return "online"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// DefaultTranscriptLimit matches the relay's history window.
const DefaultTranscriptLimit = 50

// Config holds channel settings.
type Config struct {
	URL               string
	Page              string
	UserAgent         string
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	TranscriptLimit   int
}

// Widget is the overlay the session renders into. Only a live admin_message
// may force it visible; history replay never does.
type Widget interface {
	Append(msg wire.Message)
	SetVisible(visible bool)
	Notify()
}

// Session is the process-wide operator channel. It owns at most one live
// connection and at most one pending reconnect timer at a time.
type Session struct {
	cfg     Config
	dialer  *websocket.Dialer
	store   storage.Store
	widget  Widget
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu               sync.Mutex
	writeMu          sync.Mutex
	conn             *websocket.Conn
	status           Status
	username         string
	transcript       []wire.Message
	heartbeatStop    chan struct{}
	reconnectTimer   *time.Timer
	reconnectPending bool
	closed           bool
}

// New creates the session. Connect starts it.
func New(cfg Config, store storage.Store, widget Widget, log *logging.Logger, metrics *monitoring.Metrics) *Session {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.TranscriptLimit <= 0 {
		cfg.TranscriptLimit = DefaultTranscriptLimit
	}
	if widget == nil {
		widget = NewOverlay()
	}
	return &Session{
		cfg:     cfg,
		dialer:  websocket.DefaultDialer,
		store:   store,
		widget:  widget,
		log:     log.Named("session"),
		metrics: metrics,
		status:  StatusDisconnected,
	}
}

// Connect starts the channel asynchronously. Safe to call once at page
// ready; reconnects are handled internally from then on.
func (s *Session) Connect() {
	go s.connect()
}

// Status returns the current channel state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Username returns the resolved identity ("" before the first connect).
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Transcript returns a copy of the visible transcript.
func (s *Session) Transcript() []wire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Send emits a user_message frame with an optimistic local echo. Empty input
// is a no-op; the channel must be online.
func (s *Session) Send(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	s.mu.Lock()
	online := s.status == StatusOnline
	s.mu.Unlock()
	if !online {
		return false
	}

	now := time.Now().Format("15:04:05")
	if !s.writeFrame(wire.Frame{Type: wire.TypeUserMessage, Content: text, Time: now}) {
		return false
	}

	msg := wire.Message{Content: text, IsAdmin: false, Time: now}
	s.appendTranscript(msg)
	s.widget.Append(msg)
	return true
}

// Show makes the widget visible. Pure UI toggle.
func (s *Session) Show() {
	s.widget.SetVisible(true)
}

// CloseWidget hides the widget without touching the channel.
func (s *Session) CloseWidget() {
	s.widget.SetVisible(false)
}

// Shutdown sends one best-effort offline frame and stops all timers. The
// session does not reconnect afterwards.
func (s *Session) Shutdown() {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.status = StatusDisconnected
	s.mu.Unlock()

	s.metrics.SetChannelOnline(false)

	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteJSON(wire.Frame{Type: wire.TypeOffline})
		s.writeMu.Unlock()
		_ = conn.Close()
	}
}

func (s *Session) connect() {
	s.mu.Lock()
	if s.closed || s.conn != nil {
		s.mu.Unlock()
		return
	}
	if s.username == "" {
		s.username = ResolveUsername(s.store)
	}
	username := s.username
	s.status = StatusConnecting
	s.mu.Unlock()

	target := s.cfg.URL + "?username=" + url.QueryEscape(username)
	conn, _, err := s.dialer.Dial(target, nil)
	if err != nil {
		s.log.Warn("channel dial failed", zap.Error(err))
		s.mu.Lock()
		if !s.closed {
			s.status = StatusReconnecting
		}
		s.mu.Unlock()
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.status = StatusOnline
	s.heartbeatStop = make(chan struct{})
	heartbeatStop := s.heartbeatStop
	s.mu.Unlock()

	s.metrics.SetChannelOnline(true)
	s.log.Info("channel online", zap.String("username", username))

	s.writeFrame(wire.Frame{
		Type:      wire.TypeOnline,
		Username:  username,
		Page:      s.cfg.Page,
		UserAgent: s.cfg.UserAgent,
	})

	go s.heartbeatLoop(heartbeatStop)
	go s.readLoop(conn)
}

// readLoop dispatches inbound frames in delivery order until the connection
// drops, then hands off to close handling.
func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.dispatch(raw)
	}
	s.handleClose(conn)
}

func (s *Session) dispatch(raw []byte) {
	frame, ok := wire.Decode(raw)
	if !ok {
		s.log.Debug("malformed frame dropped")
		return
	}
	s.metrics.RecordFrame("in", frame.Type)

	switch frame.Type {
	case wire.TypeAdminMessage:
		msg := wire.Message{Content: frame.Content, IsAdmin: true, Time: frame.Time}
		s.appendTranscript(msg)
		s.widget.Append(msg)
		s.widget.SetVisible(true)
		s.widget.Notify()
	case wire.TypeHistory:
		// Replayed history must not pop the widget.
		for _, msg := range frame.Messages {
			s.appendTranscript(msg)
			s.widget.Append(msg)
		}
	default:
		// Server-side types have no client action.
	}
}

// heartbeatLoop sends heartbeat frames while the connection it belongs to is
// open. The stop channel is owned by exactly one loop at a time.
func (s *Session) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.writeFrame(wire.Frame{Type: wire.TypeHeartbeat}) {
				return
			}
			s.metrics.RecordHeartbeat()
		}
	}
}

// handleClose tears down one connection exactly once and schedules a single
// reconnect. Late or duplicate closes for an already-replaced connection are
// ignored.
func (s *Session) handleClose(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
	closed := s.closed
	if closed {
		s.status = StatusDisconnected
	} else {
		s.status = StatusReconnecting
	}
	s.mu.Unlock()

	_ = conn.Close()
	s.metrics.SetChannelOnline(false)

	if !closed {
		s.log.Info("channel closed, reconnect scheduled")
		s.scheduleReconnect()
	}
}

// scheduleReconnect arms the reconnect timer unless one is already pending.
func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	if s.closed || s.reconnectPending {
		s.mu.Unlock()
		return
	}
	s.reconnectPending = true
	s.reconnectTimer = time.AfterFunc(s.cfg.ReconnectDelay, func() {
		s.mu.Lock()
		s.reconnectPending = false
		s.reconnectTimer = nil
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			s.connect()
		}
	})
	s.mu.Unlock()

	s.metrics.RecordReconnect()
}

// writeFrame serializes one frame to the live connection, if any.
func (s *Session) writeFrame(frame wire.Frame) bool {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return false
	}

	s.writeMu.Lock()
	err := conn.WriteJSON(frame)
	s.writeMu.Unlock()
	if err != nil {
		s.log.Debug("frame write failed", zap.String("type", frame.Type), zap.Error(err))
		return false
	}

	s.metrics.RecordFrame("out", frame.Type)
	return true
}

func (s *Session) appendTranscript(msg wire.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, msg)
	if over := len(s.transcript) - s.cfg.TranscriptLimit; over > 0 {
		s.transcript = s.transcript[over:]
	}
}
