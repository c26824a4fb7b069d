package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/zonewarden/server/internal/auth"
	"github.com/zonewarden/server/internal/config"
	"github.com/zonewarden/server/internal/logging"
	"github.com/zonewarden/server/internal/overlap"
)

const (
	// Supported WebSocket protocol versions
	ProtocolVersion1 = "zonewarden-v1"

	// Default ping interval (30 seconds)
	defaultPingInterval = 30 * time.Second

	// Pong wait timeout (60 seconds)
	pongWait = 60 * time.Second

	// Write timeout (10 seconds)
	writeTimeout = 10 * time.Second

	sendBufferSize = 64
)

// Message types
const (
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeOverlapCheck  = "overlap_check"
	MessageTypeOverlapResult = "overlap_result"
	MessageTypeError         = "error"
)

// WebSocketConnection represents an active WebSocket connection
type WebSocketConnection struct {
	conn     *websocket.Conn
	userID   int64
	username string
	version  string
	// limitKey identifies the caller's overlap check budget.
	limitKey  string
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	// closeFrame, when set before closed is closed, is written by writePump
	// as the final frame.
	closeFrame []byte
	hub        *WebSocketHub
	logger     logging.Logger
}

// WebSocketHub tracks live-check connections so they can be closed together
// on shutdown.
type WebSocketHub struct {
	connections map[*WebSocketConnection]bool
	register    chan *WebSocketConnection
	unregister  chan *WebSocketConnection
	done        chan struct{}
	mu          sync.RWMutex
	logger      logging.Logger
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WebSocketError represents an error message sent over WebSocket
type WebSocketError struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub(logger logging.Logger) *WebSocketHub {
	if logger == nil {
		logger = logging.Noop()
	}
	return &WebSocketHub{
		connections: make(map[*WebSocketConnection]bool),
		register:    make(chan *WebSocketConnection),
		unregister:  make(chan *WebSocketConnection),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run starts the hub's main loop. It returns, closing every connection,
// once ctx is cancelled.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = true
			h.mu.Unlock()
			h.logger.Debug(ctx, "websocket connection registered",
				logging.Any("user_id", conn.userID),
				logging.String("username", conn.username),
				logging.String("version", conn.version))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				conn.close()
			}
			h.mu.Unlock()
			h.logger.Debug(ctx, "websocket connection unregistered", logging.Any("user_id", conn.userID))

		case <-ctx.Done():
			shutdown := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			h.mu.Lock()
			for conn := range h.connections {
				delete(h.connections, conn)
				conn.closeWith(shutdown)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Count returns the number of registered connections.
func (h *WebSocketHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *WebSocketHub) add(conn *WebSocketConnection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.done:
		return false
	}
}

func (h *WebSocketHub) remove(conn *WebSocketConnection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
		conn.close()
	}
}

// WebSocketHandlers serves live overlap checks while a zone is being drawn.
type WebSocketHandlers struct {
	hub          *WebSocketHub
	service      *overlap.Service
	auth         *auth.Middleware
	limiter      *UserLimiter
	authRequired bool
	validator    *validator.Validate
	readLimit    int64
	logger       logging.Logger
	upgrader     websocket.Upgrader
}

// NewWebSocketHandlers creates a new WebSocket handlers instance. Overlap
// checks spend from limiter's per-user budget; a nil limiter leaves them
// unlimited.
func NewWebSocketHandlers(service *overlap.Service, authMiddleware *auth.Middleware, limiter *UserLimiter, cfg *config.Config, logger logging.Logger) *WebSocketHandlers {
	if logger == nil {
		logger = logging.Noop()
	}
	allowedOrigins := cfg.Server.AllowedOrigins

	return &WebSocketHandlers{
		hub:          NewWebSocketHub(logger),
		service:      service,
		auth:         authMiddleware,
		limiter:      limiter,
		authRequired: cfg.Auth.Required,
		validator:    newValidator(),
		readLimit:    cfg.Overlap.MaxMessageBytes,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{ProtocolVersion1},
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// GetHub returns the connection hub.
func (h *WebSocketHandlers) GetHub() *WebSocketHub {
	return h.hub
}

// HandleWebSocket handles WebSocket connection upgrades
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims := &auth.Claims{}
	if h.authRequired {
		var err error
		claims, err = h.auth.Authenticate(r, true)
		if err != nil {
			h.logger.Info(r.Context(), "websocket authentication failed", logging.Err(err))
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
	}

	// Clients that ask for a protocol must ask for one we speak
	requested := r.Header.Get("Sec-WebSocket-Protocol")
	if requested != "" && negotiateVersion(requested) == "" {
		h.logger.Info(r.Context(), "websocket version negotiation failed", logging.String("requested", requested))
		http.Error(w, "Unsupported protocol version", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	version := conn.Subprotocol()
	if version == "" {
		version = ProtocolVersion1
	}

	ctx := r.Context()
	if claims.UserID != 0 {
		ctx = auth.WithClaims(ctx, claims)
	}
	wsConn := &WebSocketConnection{
		conn:     conn,
		userID:   claims.UserID,
		username: claims.Username,
		version:  version,
		limitKey: userKey(r.WithContext(ctx)),
		send:     make(chan []byte, sendBufferSize),
		closed:   make(chan struct{}),
		hub:      h.hub,
		logger:   h.logger.With(logging.Any("user_id", claims.UserID)),
	}

	if !h.hub.add(wsConn) {
		_ = conn.Close()
		return
	}

	// The request context ends when this handler returns; the connection
	// outlives it.
	ctx = context.WithoutCancel(ctx)

	go wsConn.writePump()
	go wsConn.readPump(ctx, h)
}

// negotiateVersion selects the highest supported protocol version
func negotiateVersion(requested string) string {
	if requested == "" {
		return ProtocolVersion1
	}

	supportedVersions := []string{ProtocolVersion1}
	for _, supported := range supportedVersions {
		for _, candidate := range strings.Split(requested, ",") {
			if strings.TrimSpace(candidate) == supported {
				return supported
			}
		}
	}
	return ""
}

// close stops writePump without a close frame. It is used once the peer is
// gone or has already been sent its close frame.
func (c *WebSocketConnection) close() {
	c.closeWith(nil)
}

// closeWith stops writePump, which sends frame first when it is non-nil.
// Only the first close of a connection takes effect.
func (c *WebSocketConnection) closeWith(frame []byte) {
	c.closeOnce.Do(func() {
		c.closeFrame = frame
		close(c.closed)
	})
}

// readPump handles incoming messages from the WebSocket connection
func (c *WebSocketConnection) readPump(ctx context.Context, handlers *WebSocketHandlers) {
	defer func() {
		c.hub.remove(c)
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.logger.Warn(ctx, "failed to close websocket connection", logging.Err(err))
		}
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn(ctx, "failed to set websocket read deadline", logging.Err(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn(ctx, "websocket read failed", logging.Err(err))
			}
			return
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.sendError("", "Invalid message format", "InvalidMessageFormat")
			continue
		}

		handlers.handleMessage(ctx, c, &msg)
	}
}

// writePump handles outgoing messages to the WebSocket connection. Each
// message goes out in its own frame.
func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(defaultPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.closed:
			if c.closeFrame != nil {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				_ = c.conn.WriteMessage(websocket.CloseMessage, c.closeFrame)
			}
			return

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues a message for writePump. A client that lets its send
// buffer fill is not reading its replies, so it is disconnected with a
// policy violation rather than silently losing one.
func (c *WebSocketConnection) enqueue(v interface{}) {
	messageBytes, err := json.Marshal(v)
	if err != nil {
		c.logger.Error(context.Background(), "failed to marshal websocket message", logging.Err(err))
		return
	}

	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.send <- messageBytes:
	case <-c.closed:
	default:
		c.logger.Warn(context.Background(), "websocket send buffer full; closing connection",
			logging.Int("buffered", len(c.send)))
		c.closeWith(websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "send buffer full"))
	}
}

// sendError sends an error message to the client
func (c *WebSocketConnection) sendError(id, errorMsg, code string) {
	c.enqueue(WebSocketError{
		Type:    MessageTypeError,
		ID:      id,
		Error:   errorMsg,
		Message: errorMsg,
		Code:    code,
	})
}

// handleMessage routes messages to appropriate handlers
func (h *WebSocketHandlers) handleMessage(ctx context.Context, conn *WebSocketConnection, msg *WebSocketMessage) {
	switch msg.Type {
	case MessageTypePing:
		conn.enqueue(WebSocketMessage{Type: MessageTypePong, ID: msg.ID})
	case MessageTypeOverlapCheck:
		h.handleOverlapCheck(ctx, conn, msg)
	default:
		conn.sendError(msg.ID, "Unknown message type", "UnknownMessageType")
	}
}

// handleOverlapCheck answers one live check. Replies go out in the order the
// checks arrived, each one either an overlap_result or an error. Checks spend
// from the same per-user budget as the HTTP routes.
func (h *WebSocketHandlers) handleOverlapCheck(ctx context.Context, conn *WebSocketConnection, msg *WebSocketMessage) {
	if ok, retry := h.limiter.Allow(ctx, conn.limitKey); !ok {
		conn.sendError(msg.ID, fmt.Sprintf("Too many overlap checks. Retry in %ds", int(retry.Seconds())), "RateLimited")
		return
	}

	var req overlapRequest
	if len(msg.Data) == 0 {
		conn.sendError(msg.ID, "geometry is required", "InvalidRequest")
		return
	}
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		conn.sendError(msg.ID, "Invalid overlap_check data", "InvalidRequest")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		conn.sendError(msg.ID, validationMessage(err), "InvalidRequest")
		return
	}

	ctx, _ = logging.EnsureRequestID(ctx)
	result, err := h.service.Check(ctx, req.toCheck(overlap.SourceWebSocket))
	if err != nil {
		status, message := serviceErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error(ctx, "live overlap check failed", logging.Err(err))
		}
		conn.sendError(msg.ID, message, "OverlapCheckFailed")
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		conn.sendError(msg.ID, "Failed to encode result", "InternalError")
		return
	}
	conn.enqueue(WebSocketMessage{
		Type: MessageTypeOverlapResult,
		ID:   msg.ID,
		Data: data,
	})
}
