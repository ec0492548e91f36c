package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orsa-go/orsa/pkg/api/response"
	"github.com/orsa-go/orsa/pkg/events"
	"github.com/orsa-go/orsa/pkg/logger"
)

const (
	defaultStreamMaxConnections = 100
	defaultPingInterval         = 30 * time.Second
	defaultPongTimeout          = 10 * time.Second
	defaultWriteTimeout         = 10 * time.Second
	defaultSendBuffer           = 32
)

var errStreamLimit = errors.New("event stream connection limit reached")

// EventStreamConfig configures the lifecycle event stream.
type EventStreamConfig struct {
	SubjectPrefix  string
	AllowedOrigins []string
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration
	SendBuffer     int
}

type streamClient struct {
	conn      *websocket.Conn
	sub       *events.Subscription
	uid       string
	closeOnce sync.Once
}

func (c *streamClient) close() {
	c.closeOnce.Do(func() {
		_ = c.sub.Close()
		_ = c.conn.Close()
	})
}

// wants reports whether the envelope in payload should reach the client.
func (c *streamClient) wants(payload []byte) bool {
	if c.uid == "" {
		return true
	}
	env, err := events.DecodeEnvelope(payload)
	return err == nil && env.UID == c.uid
}

type streamClients struct {
	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	max     int
}

func (m *streamClients) register(c *streamClient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.clients) >= m.max {
		return errStreamLimit
	}
	m.clients[c] = struct{}{}
	return nil
}

func (m *streamClients) unregister(c *streamClient) {
	m.mu.Lock()
	delete(m.clients, c)
	m.mu.Unlock()
	c.close()
}

func (m *streamClients) canAccept() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients) < m.max
}

// EventStreamHandler streams saga lifecycle envelopes over websocket. Each
// connection holds its own bus subscription, narrowed by the saga and uid
// query parameters.
type EventStreamHandler struct {
	bus          *events.MemoryBus
	prefix       string
	logger       logger.Logger
	clients      *streamClients
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
	sendBuffer   int
}

// NewEventStreamHandler creates a stream handler reading from bus.
func NewEventStreamHandler(bus *events.MemoryBus, log logger.Logger, cfg EventStreamConfig) *EventStreamHandler {
	if log == nil {
		log = logger.Global()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultStreamMaxConnections
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}

	h := &EventStreamHandler{
		bus:    bus,
		prefix: cfg.SubjectPrefix,
		logger: log.With("component", "event-stream"),
		clients: &streamClients{
			clients: make(map[*streamClient]struct{}),
			max:     cfg.MaxConnections,
		},
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		writeTimeout: defaultWriteTimeout,
		sendBuffer:   cfg.SendBuffer,
	}
	allowed := append([]string(nil), cfg.AllowedOrigins...)
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, allowed)
		},
	}
	return h
}

// ServeHTTP handles GET /api/v1/events
// @Summary Stream lifecycle events
// @Description Upgrade to a websocket that receives one JSON envelope per saga lifecycle event
// @Tags events
// @Param saga query string false "Only events of this saga name"
// @Param uid query string false "Only events of this saga uid"
// @Success 101 "Switching protocols"
// @Failure 400 {object} response.ErrorResponse "Not a websocket upgrade"
// @Failure 403 "Origin not allowed"
// @Failure 503 {object} response.ErrorResponse "Connection limit reached"
// @Router /api/v1/events [get]
func (h *EventStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !websocket.IsWebSocketUpgrade(r) {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "websocket upgrade required", getRequestID(ctx))
		return
	}
	if !h.clients.canAccept() {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, errStreamLimit.Error(), getRequestID(ctx))
		return
	}

	pattern := events.WildcardSubject(h.prefix)
	if name := strings.TrimSpace(r.URL.Query().Get("saga")); name != "" {
		pattern = events.SagaSubject(h.prefix, name)
	}
	sub, err := h.bus.Subscribe(pattern, h.sendBuffer)
	if err != nil {
		response.HandleError(w, err, getRequestID(ctx))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		_ = sub.Close()
		h.logger.WarnContext(ctx, "event stream upgrade failed", "error", err)
		return
	}

	client := &streamClient{
		conn: conn,
		sub:  sub,
		uid:  strings.TrimSpace(r.URL.Query().Get("uid")),
	}
	if err := h.clients.register(client); err != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(h.writeTimeout),
		)
		client.close()
		return
	}
	h.logger.DebugContext(ctx, "event stream opened", "pattern", pattern, "uid", client.uid)

	go h.writePump(client)
	h.readPump(client)
}

// Count returns the number of open streams.
func (h *EventStreamHandler) Count() int {
	h.clients.mu.RLock()
	defer h.clients.mu.RUnlock()
	return len(h.clients.clients)
}

// Close ends every open stream.
func (h *EventStreamHandler) Close() {
	h.clients.mu.Lock()
	clients := make([]*streamClient, 0, len(h.clients.clients))
	for c := range h.clients.clients {
		clients = append(clients, c)
		delete(h.clients.clients, c)
	}
	h.clients.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

// readPump keeps the read deadline alive. Client messages are discarded.
func (h *EventStreamHandler) readPump(client *streamClient) {
	defer h.clients.unregister(client)

	readDeadline := h.pingInterval + h.pongTimeout
	client.conn.SetReadLimit(4 << 10)
	_ = client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("event stream read error", "error", err)
			}
			return
		}
	}
}

func (h *EventStreamHandler) writePump(client *streamClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		h.clients.unregister(client)
	}()

	for {
		select {
		case msg, ok := <-client.sub.C():
			if !ok {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(h.writeTimeout),
				)
				return
			}
			if !client.wants(msg.Payload) {
				continue
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

// originAllowed accepts requests without an Origin, listed origins and
// same-host origins.
func originAllowed(r *http.Request, allowed []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(strings.TrimSpace(a), origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
