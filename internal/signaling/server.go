package signaling

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zoomish/relay/internal/metrics"
	"github.com/zoomish/relay/internal/origin"
	"github.com/zoomish/relay/internal/ratelimit"
	"github.com/zoomish/relay/internal/relay"
)

const (
	defaultMaxMessageBytes      = 64 * 1024
	defaultMaxMessagesPerSecond = 50
	defaultIdleTimeout          = 60 * time.Second
	defaultPingInterval         = 20 * time.Second

	wsWriteWait = 1 * time.Second
)

// Config carries the knobs for the WebSocket signaling endpoint. Zero values
// fall back to the defaults above; MaxMessagesPerSecond <= 0 disables rate
// limiting entirely.
type Config struct {
	AllowedOrigins       []string
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	IdleTimeout          time.Duration
	PingInterval         time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Server upgrades HTTP requests to WebSocket connections and shuttles
// envelopes between clients and the relay engine. It is the engine's
// transport: outbound delivery goes through Send, keyed by connection id.
type Server struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	engine   *relay.Engine
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*wsConn
}

func NewServer(cfg Config) *Server {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		log:     log,
		metrics: cfg.Metrics,
		conns:   make(map[string]*wsConn),
	}
	s.engine = relay.New(relay.Config{
		Transport: s,
		Metrics:   cfg.Metrics,
		Logger:    log,
		Now:       cfg.Now,
	})
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	raw := r.Header.Get("Origin")
	if raw == "" {
		return true
	}
	normalized, host, ok := origin.Normalize(raw)
	if !ok {
		return false
	}
	return origin.IsAllowed(normalized, host, r.Host, s.cfg.AllowedOrigins)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.log.Debug("websocket upgrade rejected", "remote", r.RemoteAddr, "err", err)
		return
	}

	id := uuid.NewString()
	c := &wsConn{id: id, conn: conn, done: make(chan struct{})}

	s.mu.Lock()
	s.conns[id] = c
	s.mu.Unlock()

	s.engine.Connect(id)
	s.log.Info("signaling connection opened", "conn", id, "remote", r.RemoteAddr)

	go s.pingLoop(c)
	s.readLoop(c)

	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()

	s.engine.Disconnect(id)
	c.close()
	s.log.Info("signaling connection closed", "conn", id)
}

func (s *Server) readLoop(c *wsConn) {
	conn := c.conn
	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	resetDeadline := func() {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	}
	conn.SetPongHandler(func(string) error {
		resetDeadline()
		return nil
	})
	limiter := ratelimit.NewMessageLimiter(ratelimit.RealClock{}, s.cfg.MaxMessagesPerSecond)

	for {
		resetDeadline()
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("signaling read failed", "conn", c.id, "err", err)
			}
			return
		}
		if !limiter.Allow() {
			s.metrics.Inc(metrics.DropRateLimited)
			c.writeClose(websocket.ClosePolicyViolation, "message rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			c.writeClose(websocket.CloseUnsupportedData, "text frames only")
			return
		}
		env, err := parseEnvelope(data)
		if err != nil {
			// Malformed frames are dropped without closing the connection.
			s.metrics.Inc(metrics.DropBadMessage)
			continue
		}
		s.dispatch(c.id, env)
	}
}

func (s *Server) dispatch(id string, env envelope) {
	switch env.Event {
	case relay.EventJoin:
		var req relay.JoinRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			s.metrics.Inc(metrics.DropBadMessage)
			return
		}
		s.engine.Join(id, req)
	case relay.EventSignal:
		s.engine.Signal(id, env.Data)
	case relay.EventChat:
		var msg relay.ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			s.metrics.Inc(metrics.DropBadMessage)
			return
		}
		s.engine.Chat(id, msg)
	case relay.EventPing:
		var probe struct {
			T0 json.RawMessage `json:"t0"`
		}
		// A missing or malformed probe body still gets a pong.
		_ = json.Unmarshal(env.Data, &probe)
		s.engine.Ping(id, probe.T0)
	case relay.EventWhiteboard:
		s.engine.Whiteboard(id, env.Data)
	default:
		s.metrics.Inc(metrics.DropUnknownEvent)
	}
}

func (s *Server) pingLoop(c *wsConn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.writeControl(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send delivers an event to a single connection. It reports whether a
// connection with that id existed; delivery itself is fire-and-forget, and a
// broken socket is left for the reader to tear down.
func (s *Server) Send(connID string, evt relay.Event) bool {
	s.mu.Lock()
	c := s.conns[connID]
	s.mu.Unlock()
	if c == nil {
		return false
	}
	data, err := json.Marshal(outEnvelope{Event: evt.Name, Data: evt.Data})
	if err != nil {
		s.log.Error("encode outbound event", "conn", connID, "event", evt.Name, "err", err)
		return true
	}
	if err := c.writeMessage(websocket.TextMessage, data); err != nil {
		s.log.Debug("write outbound event", "conn", connID, "event", evt.Name, "err", err)
	}
	return true
}

// Close tears down every live connection. Used during server shutdown.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.writeClose(websocket.CloseGoingAway, "server shutting down")
		c.close()
	}
}

type wsConn struct {
	id   string
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) writeMessage(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(msgType, data)
}

func (c *wsConn) writeControl(msgType int, data []byte) error {
	return c.conn.WriteControl(msgType, data, time.Now().Add(wsWriteWait))
}

func (c *wsConn) writeClose(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.writeControl(websocket.CloseMessage, msg)
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
