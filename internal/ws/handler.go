// Package ws is the websocket transport in front of the channel
// registry: one socket per client, subscriptions managed by frames.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/channels"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/repositories"
)

const wsRoutingKey = "ws_events.messaging"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is what clients send over the socket.
type clientFrame struct {
	Action  string          `json:"action"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Handler upgrades connections and runs the per-connection frame loop.
type Handler struct {
	registry  *channels.Registry
	users     repositories.UserRepository
	jwtSecret string
}

// NewHandler constructs the websocket handler.
func NewHandler(registry *channels.Registry, users repositories.UserRepository, jwtSecret string) *Handler {
	return &Handler{registry: registry, users: users, jwtSecret: jwtSecret}
}

// Handle authenticates, upgrades and serves one connection until it
// closes. Disconnection tears down every subscription the connection
// made; there is no other cleanup path.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerOrQueryToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	userID, err := middleware.ParseUserToken(token, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	user, err := h.users.Get(ctx, userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	member := channels.Member{ID: user.ID, Name: user.Name}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws", "ws_connect")
	h.mirrorWSEvent(ctx, info, "ws_connect", "")

	// The gin context and its request are recycled once Handle returns;
	// the connection goroutine gets a detached context that outlives the
	// handshake request.
	go h.readLoop(context.WithoutCancel(ctx), client, member)
}

func (h *Handler) readLoop(ctx context.Context, client *Client, member channels.Member) {
	typist := presence.NewTypist()
	info := client.info
	var closeReason string

	defer func() {
		client.Close()
		h.registry.UnsubscribeAll(client)
		observability.DecWSActive()
		observability.IncWSEvent("ws", "ws_disconnect")
		h.mirrorWSEvent(ctx, info, "ws_disconnect", closeReason)
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws", "ws_error")
				h.mirrorWSEvent(ctx, info, "ws_error", closeReason)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(client, "", "malformed frame")
			continue
		}
		h.dispatch(ctx, client, member, typist, frame)
	}
}

func (h *Handler) dispatch(ctx context.Context, client *Client, member channels.Member, typist *presence.Typist, frame clientFrame) {
	switch frame.Action {
	case "subscribe":
		err := h.registry.Subscribe(ctx, frame.Channel, client, member)
		if errors.Is(err, channels.ErrUnauthorizedChannel) {
			h.sendError(client, frame.Channel, "not authorized for channel")
			return
		}
		if err != nil {
			h.sendError(client, frame.Channel, "subscribe failed")
			return
		}
	case "unsubscribe":
		h.registry.Unsubscribe(frame.Channel, client)
	case "whisper":
		// Typing whispers are rate limited per peer on the server so a
		// misbehaving client cannot flood the receiver.
		if frame.Event == "typing" {
			if peer, ok := peerFromChannel(frame.Channel); ok && !typist.ShouldSend(peer) {
				return
			}
		}
		if err := h.registry.Whisper(frame.Channel, frame.Event, frame.Payload, client); err != nil {
			h.sendError(client, frame.Channel, "whisper not allowed")
		}
	default:
		h.sendError(client, frame.Channel, "unknown action")
	}
}

func (h *Handler) sendError(client *Client, channel, reason string) {
	_ = client.Send(channels.Envelope{Channel: channel, Event: "error", Payload: gin.H{"reason": reason}})
}

func (h *Handler) mirrorWSEvent(ctx context.Context, info ConnInfo, event, reason string) {
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func bearerOrQueryToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return c.Query("token")
}

func peerFromChannel(channel string) (int, bool) {
	if !strings.HasPrefix(channel, "chat.") {
		return 0, false
	}
	peer, err := strconv.Atoi(strings.TrimPrefix(channel, "chat."))
	if err != nil {
		return 0, false
	}
	return peer, true
}
