package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"huntcall/internal/commands"
	"huntcall/internal/services"
	"huntcall/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Handler struct {
	auth   *services.AuthService
	hub    *Hub
	bus    *commands.Bus
	peers  *services.PeerService
	feed   *services.RoomFeed
	logger *WebSocketLogger
	base   context.Context
}

// NewHandler builds the call signaling endpoint. Sessions derive their
// context from base so shutting the server down ends every watcher.
func NewHandler(
	base context.Context,
	auth *services.AuthService,
	hub *Hub,
	bus *commands.Bus,
	peers *services.PeerService,
	feed *services.RoomFeed,
	logger *WebSocketLogger,
) *Handler {
	return &Handler{auth: auth, hub: hub, bus: bus, peers: peers, feed: feed, logger: logger, base: base}
}

// Connect upgrades the request and serves one signaling session.
func (h *Handler) Connect(c *gin.Context) {
	token := extractToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	claims, err := h.auth.ParseAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", claims.UserID, "", err)
		return
	}

	identity := claims.Identity()
	identity.UserID = strings.TrimSpace(identity.UserID)
	client := NewClient(conn, identity.UserID)
	session := NewSession(h.base, client, identity, h.bus, h.peers, h.feed, h.logger)

	h.hub.Register(session)
	h.logger.Info("connected", identity.UserID, client.ID)
	session.Run()
	h.hub.Unregister(session)
	h.logger.Info("disconnected", identity.UserID, client.ID)
}

func extractToken(c *gin.Context) string {
	// Check query parameter
	token := c.Query("token")
	if token != "" {
		return token
	}

	// Check Authorization header
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	return ""
}

func isUnexpectedClose(err error) bool {
	if errors.Is(err, websocket.ErrCloseSent) {
		return false
	}
	return websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure)
}
