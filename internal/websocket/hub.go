package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/internal/api"
	"github.com/satriahrh/voicerelay/internal/auth"
	"github.com/satriahrh/voicerelay/internal/telemetry"
	"github.com/satriahrh/voicerelay/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the peer to send its voice request.
	requestWait = 30 * time.Second

	// Maximum message size allowed from peer. Fits a full voice request.
	maxMessageSize = 4 << 20
)

// errShutdown cancels live streams during graceful shutdown
var errShutdown = errors.New("server shutting down")

// Hub tracks the live voice streams so shutdown can close them. Streams are
// independent; nothing is broadcast between them.
type Hub struct {
	voice         *usecase.VoiceService
	validateVoice api.VoiceValidator
	metrics       *telemetry.Metrics
	upgrader      websocket.Upgrader
	logger        *zap.Logger

	mu      sync.Mutex
	clients map[string]*Client
	closing bool
	wg      sync.WaitGroup
}

// NewHub creates a new WebSocket hub. allowedOrigin "*" accepts any origin.
func NewHub(
	voice *usecase.VoiceService,
	validateVoice api.VoiceValidator,
	metrics *telemetry.Metrics,
	allowedOrigin string,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		voice:         voice,
		validateVoice: validateVoice,
		metrics:       metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 32 * 1024,
		},
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// WriteData is one outbound WebSocket message
type WriteData struct {
	// Type is websocket.TextMessage, websocket.BinaryMessage or
	// websocket.CloseMessage
	Type    int
	Payload []byte
}

// Client is a single voice stream over a WebSocket connection
type Client struct {
	hub    *Hub
	id     string
	conn   *websocket.Conn
	send   chan WriteData
	done   chan struct{}
	cancel context.CancelCauseFunc
	logger *zap.Logger
}

// Active returns the number of live streams
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.clients[c.id] = c
	h.wg.Add(1)
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		h.wg.Done()
	}
	h.mu.Unlock()
}

// Shutdown cancels every live stream, which then sends an error message and
// closes its connection, and waits for them to finish or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	for _, c := range h.clients {
		c.cancel(errShutdown)
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Closing voice streams", zap.Int("active", n))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle upgrades the connection and serves one voice turn on it
func (h *Hub) Handle(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	client := &Client{
		hub:    h,
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan WriteData, 16),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	client.logger = h.logger.With(zap.String("connectionID", client.id))
	if id, ok := c.Get(auth.ContextKeyClientID).(string); ok && id != "" {
		client.logger = client.logger.With(zap.String("clientID", id))
	}

	go client.writePump()

	if !h.register(client) {
		client.fail(api.CodeServerShutdown, "Server is shutting down", "")
		return nil
	}
	defer h.unregister(client)

	client.serve(ctx)
	return nil
}

// serve reads the voice request, runs the pipeline and ends the turn. It
// owns c.send and closes it on return.
func (c *Client) serve(ctx context.Context) {
	h := c.hub
	defer close(c.send)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(requestWait))
	messageType, message, err := c.conn.ReadMessage()
	if err != nil {
		c.logger.Warn("No voice request received", zap.Error(err))
		return
	}
	if messageType != websocket.TextMessage {
		c.sendError(api.CodeInvalidRequest, "Expected a voice_request text message", "")
		return
	}

	body, err := ParseVoiceRequest(message)
	if err != nil {
		h.metrics.RecordRequest(ctx, "ws", telemetry.OutcomeInvalid)
		c.sendError(api.CodeInvalidRequest, "Invalid voice request", err.Error())
		return
	}
	req, fieldErrs := body.Parse("ws", h.validateVoice)
	if len(fieldErrs) > 0 {
		h.metrics.RecordRequest(ctx, "ws", telemetry.OutcomeInvalid)
		msg := CreateErrorMessage(api.CodeInvalidRequest, "Invalid voice request", "")
		msg.Errors = fieldErrs
		c.sendJSON(msg)
		return
	}

	// From here on the peer only sends pongs and close frames.
	go c.readPump(ctx)

	conv, err := h.voice.Start(ctx, req)
	if err != nil {
		h.metrics.RecordRequest(ctx, "ws", telemetry.OutcomeUpstreamError)
		c.sendError(api.ErrorCode(err), "Voice request failed", err.Error())
		return
	}

	w := &frameWriter{ctx: ctx, client: c}
	err = conv.Stream(ctx, w)
	switch {
	case err == nil:
		h.metrics.RecordRequest(ctx, "ws", telemetry.OutcomeOK)
		c.sendJSON(CreateVoiceEndMessage(conv.ID, conv.Transcription, w.frames))
	case errors.Is(context.Cause(ctx), errShutdown):
		h.metrics.RecordRequest(ctx, "ws", telemetry.OutcomePipelineError)
		c.sendError(api.CodeServerShutdown, "Server is shutting down", "")
	case ctx.Err() != nil:
		c.logger.Info("Voice stream cancelled by client", zap.String("requestID", conv.ID))
		h.metrics.RecordRequest(ctx, "ws", telemetry.OutcomeClientCancelled)
	default:
		h.metrics.RecordRequest(ctx, "ws", telemetry.OutcomePipelineError)
		c.sendError(api.ErrorCode(err), "Voice stream failed", err.Error())
	}
}

// readPump watches the connection for pongs and closure. A read error
// cancels the running pipeline.
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("WebSocket read failed", zap.Error(err))
			}
			c.cancel(err)
			return
		}
	}
}

// writePump pumps messages from the stream to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				c.cancel(err)
				c.drain()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel(err)
				c.drain()
				return
			}
		}
	}
}

// drain discards queued messages after the connection failed so the
// producer never blocks on a dead peer
func (c *Client) drain() {
	go func() {
		for range c.send {
		}
	}()
}

func (c *Client) enqueue(ctx context.Context, data WriteData) error {
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errors.New("connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) sendJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	// Control messages are sent even after the pipeline context ended.
	if err := c.enqueue(context.Background(), WriteData{Type: websocket.TextMessage, Payload: payload}); err != nil {
		c.logger.Debug("Dropping message for closed connection", zap.Error(err))
	}
}

func (c *Client) sendError(code, message, details string) {
	c.logger.Warn("Sending error to client",
		zap.String("code", code),
		zap.String("message", message),
		zap.String("details", details))
	c.sendJSON(CreateErrorMessage(code, message, details))
}

// fail reports an error on a connection that never entered serve
func (c *Client) fail(code, message, details string) {
	c.sendError(code, message, details)
	close(c.send)
}

// frameWriter sends every Write as one binary message. The frame encoder
// issues exactly one Write per frame.
type frameWriter struct {
	ctx    context.Context
	client *Client
	frames int
}

func (w *frameWriter) Write(p []byte) (int, error) {
	payload := make([]byte, len(p))
	copy(payload, p)
	if err := w.client.enqueue(w.ctx, WriteData{Type: websocket.BinaryMessage, Payload: payload}); err != nil {
		return 0, fmt.Errorf("send frame: %w", err)
	}
	w.frames++
	return len(p), nil
}
