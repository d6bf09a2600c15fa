package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mintoons-server/internal/models"
	"mintoons-server/internal/service"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// Must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Clients only listen; anything bigger than a ping is unexpected.
	maxMessageSize = 512
)

// Client is one authenticated WebSocket connection.
type Client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Handler upgrades HTTP requests to WebSocket connections after
// verifying the access token passed as a query parameter. Browsers
// cannot set an Authorization header on WebSocket requests.
type Handler struct {
	hub      *Hub
	auth     service.AuthService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a WebSocket handler bound to the hub.
func NewHandler(hub *Hub, auth service.AuthService, allowedOrigins []string, logger *zap.Logger) *Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &Handler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
		logger: logger.Named("WSHandler"),
	}
}

// ServeWS handles GET /ws?token=<access token>.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
			Code: models.ErrCodeTokenInvalid, Message: "Missing token query parameter",
		})
		return
	}

	claims, err := h.auth.ValidateAndGetClaims(c.Request.Context(), tokenString)
	if err != nil {
		h.logger.Warn("WebSocket token verification failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
			Code: models.ErrCodeTokenInvalid, Message: "Token is invalid or expired",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Error("Failed to upgrade connection", zap.Error(err), zap.String("userID", claims.UserID.String()))
		return
	}

	client := &Client{
		userID: claims.UserID.String(),
		conn:   conn,
		send:   make(chan []byte, 256),
	}
	h.hub.register <- client

	log := h.logger.With(zap.String("userID", client.userID))
	log.Info("WebSocket connection established")

	go client.writePump(log)
	go client.readPump(h.hub, log)
}

// readPump drains (and ignores) client messages and keeps the read
// deadline alive via pong handling.
func (c *Client) readPump(hub *Hub, log *zap.Logger) {
	defer func() {
		hub.unregister <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump pushes queued messages and periodic pings to the connection.
func (c *Client) writePump(log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
