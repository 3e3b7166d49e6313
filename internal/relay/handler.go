package relay

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relaykit/pageagent/internal/logging"
	"github.com/relaykit/pageagent/internal/wire"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

// Handler exposes the hub over HTTP and WebSocket.
type Handler struct {
	hub *Hub
	log *logging.Logger
}

// NewHandler creates a handler around the hub.
func NewHandler(hub *Hub, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{hub: hub, log: log.Named("relay")}
}

// Register mounts all relay routes.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/chat/ws", h.HandleChat)
	r.POST("/admin/api/chat/send", h.HandleAdminSend)
	r.GET("/admin/api/online", h.HandleOnline)
	r.POST("/api/report", h.HandleReport)
}

// HandleChat upgrades the connection and runs the frame loop for one user.
func (h *Handler) HandleChat(c *gin.Context) {
	username := strings.TrimSpace(c.Query("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	cl := h.hub.register(username, conn)
	defer h.hub.unregister(cl)
	h.log.Info("user connected", zap.String("username", username))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		frame, ok := wire.Decode(raw)
		if !ok {
			continue
		}

		switch frame.Type {
		case wire.TypeOnline:
			h.hub.setProfile(cl, frame.Page, frame.UserAgent)
			// Replay the transcript right after the announce.
			_ = cl.send(wire.Frame{Type: wire.TypeHistory, Messages: h.hub.History(username)})
		case wire.TypeHeartbeat:
			h.hub.touch(cl)
		case wire.TypeUserMessage:
			h.hub.touch(cl)
			h.hub.appendHistory(username, wire.Message{Content: frame.Content, IsAdmin: false, Time: frame.Time})
		case wire.TypeOffline:
			h.log.Info("user signed off", zap.String("username", username))
			return
		}
	}
}

type adminSendRequest struct {
	Username string `json:"username" binding:"required"`
	Content  string `json:"content" binding:"required"`
}

// HandleAdminSend pushes an admin message to one connected user.
func (h *Handler) HandleAdminSend(c *gin.Context) {
	var req adminSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.hub.SendAdmin(req.Username, req.Content); err != nil {
		status := http.StatusBadGateway
		if err == ErrUserOffline {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

// HandleOnline returns the live roster.
func (h *Handler) HandleOnline(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.hub.Online()})
}

// HandleReport ingests one telemetry payload.
func (h *Handler) HandleReport(c *gin.Context) {
	var report wire.Report
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.hub.AddReport(report)
	h.log.Info("report ingested",
		zap.String("username", report.Username),
		zap.Int("bytes", len(report.Data)))
	c.JSON(http.StatusOK, gin.H{"received": true})
}
