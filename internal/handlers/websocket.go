package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"supportdesk/internal/container"
	"supportdesk/internal/metrics"
	"supportdesk/internal/models"
	"supportdesk/internal/services"
	"supportdesk/internal/utils"
)

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	role    string
}

func (c *wsClient) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// WSHandler keeps widget and admin console connections per session and
// fans liveness events out to them. Remote-server events arrive over
// Redis Pub/Sub and are replayed to local connections only.
type WSHandler struct {
	container *container.Container
	sessions  map[uuid.UUID]map[string]*wsClient // sessionID -> clientID -> client
	mu        sync.RWMutex
}

func NewWSHandler(c *container.Container) *WSHandler {
	handler := &WSHandler{
		container: c,
		sessions:  make(map[uuid.UUID]map[string]*wsClient),
	}

	c.PubSub.Subscribe(context.Background(), handler.handleRemoteEvent)

	utils.LogInfo(context.Background(), "websocket handler initialized",
		slog.String("server_id", c.PubSub.ServerID()[:8]))

	return handler
}

type WSMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	ImageURL  string `json:"image_url,omitempty"`
	Role      string `json:"role,omitempty"`
}

type WSResponse struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Role      string `json:"role,omitempty"`
	Token     string `json:"token,omitempty"`
	Output    string `json:"output,omitempty"`
	Marked    int64  `json:"marked,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

// HandleWebSocket serves one connection. The session ID and role were
// validated by the upgrade middleware and stashed in locals.
func (h *WSHandler) HandleWebSocket(c *websocket.Conn) {
	sessionID, ok := c.Locals("session_id").(uuid.UUID)
	if !ok {
		c.Close()
		return
	}
	role, _ := c.Locals("role").(string)
	if role == "" {
		role = string(models.SenderUser)
	}
	clientID := uuid.New().String()

	metrics.WSConnectionsActive.Inc()
	defer metrics.WSConnectionsActive.Dec()

	client := &wsClient{conn: c, role: role}
	h.addClient(sessionID, clientID, client)
	defer h.removeClient(sessionID, clientID)

	// Client pings within 30s; a silent minute means the peer is gone.
	c.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.ReadJSON(&msg); err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				utils.LogInfo(context.Background(), "websocket timed out",
					slog.String("session_id", sessionID.String()))
			}
			break
		}

		c.SetReadDeadline(time.Now().Add(60 * time.Second))
		metrics.WSMessagesReceived.WithLabelValues(msg.Type).Inc()

		h.handleMessage(client, sessionID, role, &msg)
	}
}

func (h *WSHandler) handleMessage(client *wsClient, sessionID uuid.UUID, role string, msg *WSMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch msg.Type {
	case "chat":
		h.handleChat(ctx, client, sessionID, msg)
	case "typing":
		tickRole := msg.Role
		if tickRole == "" {
			tickRole = role
		}
		if err := h.container.Liveness.SetTyping(ctx, sessionID, tickRole); err != nil {
			h.sendError(client, "typing_error", err.Error())
			return
		}
		h.broadcastLocal(sessionID, &WSResponse{
			Type:      "typing",
			SessionID: sessionID.String(),
			Role:      tickRole,
		}, client)
	case "viewed":
		marked, err := h.container.Liveness.MarkViewed(ctx, sessionID)
		if err != nil {
			h.sendError(client, "viewed_error", "failed to mark viewed")
			return
		}
		h.send(client, &WSResponse{Type: "viewed_ack", SessionID: sessionID.String(), Marked: marked})
	case "close":
		if err := h.container.Liveness.CloseWidget(ctx, sessionID); err != nil {
			h.sendError(client, "close_error", "failed to close widget")
			return
		}
		if _, err := h.container.Notifier.NotifyUnanswered(ctx, sessionID); err != nil {
			utils.LogWarn(ctx, "unanswered check failed",
				slog.String("session_id", sessionID.String()),
				slog.String("error", err.Error()),
			)
		}
		h.send(client, &WSResponse{Type: "close_ack", SessionID: sessionID.String()})
	case "ping":
		if err := h.container.Liveness.Heartbeat(ctx, sessionID); err != nil {
			utils.LogWarn(ctx, "heartbeat failed",
				slog.String("session_id", sessionID.String()))
		}
		h.send(client, &WSResponse{Type: "pong"})
	default:
		h.sendError(client, "unknown_message_type", "Unknown message type")
	}
}

// handleChat streams the reply token by token to the sending connection
// and announces the finished message to the session's other connections.
func (h *WSHandler) handleChat(ctx context.Context, client *wsClient, sessionID uuid.UUID, msg *WSMessage) {
	turn := strings.TrimSpace(msg.Message)
	if turn == "" && msg.ImageURL == "" {
		h.sendError(client, "validation_error", "Message is required")
		return
	}

	h.broadcastLocal(sessionID, &WSResponse{
		Type:      "user_message",
		SessionID: sessionID.String(),
		Role:      string(models.SenderUser),
		Output:    turn,
	}, client)

	aiMsg, err := h.container.Pipeline.StreamReply(ctx, sessionID, turn, msg.ImageURL, func(chunk string) error {
		return client.writeJSON(&WSResponse{
			Type:      "token",
			SessionID: sessionID.String(),
			Token:     chunk,
		})
	})

	switch {
	case err == nil:
		h.send(client, &WSResponse{
			Type:      "done",
			SessionID: sessionID.String(),
			Output:    aiMsg.Content,
		})
		h.broadcastLocal(sessionID, &WSResponse{
			Type:      "ai_message",
			SessionID: sessionID.String(),
			Role:      string(models.SenderAI),
			Output:    aiMsg.Content,
		}, client)
		if perr := h.container.PubSub.Publish(ctx, &services.LivenessEvent{
			Type:      services.EventMessage,
			SessionID: sessionID,
			Role:      string(models.SenderAI),
			Payload:   aiMsg.Content,
		}); perr != nil {
			utils.LogWarn(ctx, "failed to publish reply event",
				slog.String("session_id", sessionID.String()))
		}
	case errors.Is(err, services.ErrAIDisabled):
		// Turn stored; a human will pick it up.
		h.send(client, &WSResponse{Type: "queued", SessionID: sessionID.String()})
	case errors.Is(err, services.ErrPersistFailed):
		// The client already holds the full streamed text. Close the
		// stream normally; the loss is server-side and already logged.
		h.send(client, &WSResponse{Type: "done", SessionID: sessionID.String()})
	default:
		h.sendError(client, "stream_error", "Reply generation failed")
	}
}

func (h *WSHandler) addClient(sessionID uuid.UUID, clientID string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[sessionID]; !ok {
		h.sessions[sessionID] = make(map[string]*wsClient)
	}
	h.sessions[sessionID][clientID] = client
}

func (h *WSHandler) removeClient(sessionID uuid.UUID, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.sessions[sessionID]; ok {
		delete(clients, clientID)
		if len(clients) == 0 {
			delete(h.sessions, sessionID)
		}
	}
}

// broadcastLocal sends to every connection on this session except the
// sender. Cross-server delivery rides the liveness channel.
func (h *WSHandler) broadcastLocal(sessionID uuid.UUID, response *WSResponse, exclude *wsClient) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.sessions[sessionID]))
	for _, client := range h.sessions[sessionID] {
		if client != exclude {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.send(client, response)
	}
}

// handleRemoteEvent replays events from other servers to the local
// connections that care about them.
func (h *WSHandler) handleRemoteEvent(event *services.LivenessEvent) {
	h.mu.RLock()
	_, hasClients := h.sessions[event.SessionID]
	h.mu.RUnlock()
	if !hasClients {
		return
	}

	response := &WSResponse{
		SessionID: event.SessionID.String(),
		Role:      event.Role,
	}
	switch event.Type {
	case services.EventTyping:
		response.Type = "typing"
	case services.EventPresence:
		response.Type = "presence"
	case services.EventWidgetClosed:
		response.Type = "widget_closed"
	case services.EventMessage:
		response.Type = "message"
		response.Output = event.Payload
	default:
		return
	}

	h.broadcastLocal(event.SessionID, response, nil)
}

func (h *WSHandler) send(client *wsClient, response *WSResponse) {
	if err := client.writeJSON(response); err != nil {
		utils.LogWarn(context.Background(), "websocket write failed",
			slog.String("type", response.Type))
		return
	}
	metrics.WSMessagesSent.WithLabelValues(response.Type).Inc()
}

func (h *WSHandler) sendError(client *wsClient, code, message string) {
	h.send(client, &WSResponse{Type: "error", Error: code, Message: message})
}
