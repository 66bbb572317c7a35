package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/counselmeet/room-relay/internal/metrics"
	"github.com/counselmeet/room-relay/internal/ratelimit"
	"github.com/counselmeet/room-relay/internal/rooms"
)

// Config wires together the runtime dependencies for the relay's WebSocket
// endpoint. Zero values select sensible defaults so tests can use small
// struct literals.
type Config struct {
	// RoomCapacity caps room membership; <= 0 selects rooms.DefaultCapacity.
	RoomCapacity int

	// Metrics receives event counters. If nil, counting is disabled.
	Metrics *metrics.Metrics

	Logger *slog.Logger

	// Inbound hardening.
	MaxMessageBytes      int64
	MaxMessagesPerSecond int

	// SendQueueSize is the per-connection outbound buffer. A client that
	// cannot drain its queue loses messages rather than stalling the relay.
	SendQueueSize int

	PingInterval time.Duration
	IdleTimeout  time.Duration
	WriteTimeout time.Duration

	// NewConnectionID overrides connection id assignment in tests.
	NewConnectionID func() string

	// Clock drives the per-connection rate limiter in tests.
	Clock ratelimit.Clock
}

// Server accepts WebSocket connections, groups them into rooms and relays
// signaling payloads between room members.
//
// All room/registry state is guarded by a single mutex; handlers run to
// completion under it, so each inbound message is processed atomically with
// respect to every other connection.
type Server struct {
	RoomCapacity int
	Metrics      *metrics.Metrics
	Logger       *slog.Logger

	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	SendQueueSize        int

	PingInterval time.Duration
	IdleTimeout  time.Duration
	WriteTimeout time.Duration

	NewConnectionID func() string
	Clock           ratelimit.Clock

	upgrader websocket.Upgrader

	mu     sync.Mutex
	state  *rooms.State
	conns  map[string]*client
	closed bool
}

func NewServer(cfg Config) *Server {
	return &Server{
		RoomCapacity: cfg.RoomCapacity,
		Metrics:      cfg.Metrics,
		Logger:       cfg.Logger,

		MaxMessageBytes:      cfg.MaxMessageBytes,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
		SendQueueSize:        cfg.SendQueueSize,

		PingInterval: cfg.PingInterval,
		IdleTimeout:  cfg.IdleTimeout,
		WriteTimeout: cfg.WriteTimeout,

		NewConnectionID: cfg.NewConnectionID,
		Clock:           cfg.Clock,

		upgrader: websocket.Upgrader{
			// Origin checks are enforced by the httpserver origin middleware.
			// Unit tests dial the handler directly, so accept all origins here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},

		state: rooms.NewState(cfg.RoomCapacity),
		conns: make(map[string]*client),
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.ServeHTTP)
}

// ServeHTTP upgrades the connection and runs it until disconnect.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{
		srv:  s,
		id:   s.newConnectionID(),
		conn: conn,
		done: make(chan struct{}),
		send: make(chan []byte, s.sendQueueSize()),
		limiter: ratelimit.NewTokenBucket(
			s.clock(),
			int64(s.maxMessagesPerSecond()),
			int64(s.maxMessagesPerSecond()),
		),
	}

	if !s.addClient(c) {
		// Server shut down between upgrade and registration.
		_ = conn.Close()
		return
	}

	s.logger().Debug("connection open", "conn_id", c.id, "remote_addr", conn.RemoteAddr().String())

	// The client needs its own id to fill in callerID on outbound signals.
	c.enqueue(signalMessage{Type: messageTypeMe, ID: c.id})

	go c.writeLoop()
	c.readLoop()
}

// Close disconnects every client. Safe to call more than once.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*client, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (s *Server) addClient(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c.id] = c
	s.state.Register(c.id)
	return true
}

// handleMessage runs one validated inbound message to completion under the
// state lock and returns the resulting outbound deliveries.
func (s *Server) handleMessage(c *client, msg signalMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Type {
	case messageTypeJoinRoom:
		s.handleJoinLocked(c, msg)
	case messageTypeSendingSignal:
		s.handleSendingSignalLocked(c, msg)
	case messageTypeReturningSignal:
		s.handleReturningSignalLocked(c, msg)
	case messageTypeUpdateStatus:
		s.handleUpdateStatusLocked(c, msg)
	}
}

func (s *Server) handleJoinLocked(c *client, msg signalMessage) {
	snapshot, err := s.state.Join(c.id, msg.RoomID, msg.Name, msg.UserType)
	switch {
	case errors.Is(err, rooms.ErrRoomFull):
		s.inc(metrics.EventJoinRoomFull)
		s.logger().Info("join rejected: room full", "conn_id", c.id, "room_id", msg.RoomID)
		c.enqueue(signalMessage{Type: messageTypeRoomFull})
	case errors.Is(err, rooms.ErrAlreadyJoined):
		s.inc(metrics.EventJoinRejected)
		c.enqueue(signalMessage{
			Type:    messageTypeError,
			Code:    "already_joined",
			Message: "connection already joined a room",
		})
	default:
		s.inc(metrics.EventJoinOK)
		s.logger().Info("joined room",
			"conn_id", c.id,
			"room_id", msg.RoomID,
			"members", s.state.MemberCount(msg.RoomID),
		)
		c.enqueue(signalMessage{Type: messageTypeAllUsers, Users: snapshot})
	}
}

func (s *Server) handleSendingSignalLocked(c *client, msg signalMessage) {
	if !s.sameRoomLocked(c.id, msg.UserToSignal) {
		s.inc(metrics.EventSignalDropped)
		return
	}
	caller := s.state.Profile(msg.CallerID)
	s.deliverLocked(msg.UserToSignal, signalMessage{
		Type:         messageTypeUserJoined,
		Signal:       msg.Signal,
		CallerID:     msg.CallerID,
		CallerName:   caller.Name,
		CallerType:   caller.Type,
		CallerStatus: msg.CallerStatus,
	})
}

func (s *Server) handleReturningSignalLocked(c *client, msg signalMessage) {
	if !s.sameRoomLocked(c.id, msg.CallerID) {
		s.inc(metrics.EventSignalDropped)
		return
	}
	s.deliverLocked(msg.CallerID, signalMessage{
		Type:   messageTypeReturnedSignal,
		Signal: msg.Signal,
		ID:     c.id,
		Status: msg.Status,
	})
}

// sameRoomLocked reports whether both connections have joined the same room.
// Forwarding never crosses room boundaries; a target that has left the room
// (or never shared it) is treated like a departed connection.
func (s *Server) sameRoomLocked(senderID, targetID string) bool {
	senderRoom, ok := s.state.RoomOf(senderID)
	if !ok {
		return false
	}
	targetRoom, ok := s.state.RoomOf(targetID)
	return ok && targetRoom == senderRoom
}

func (s *Server) handleUpdateStatusLocked(c *client, msg signalMessage) {
	if _, joined := s.state.RoomOf(c.id); !joined {
		s.inc(metrics.EventStatusDropped)
		return
	}
	peers := s.state.Peers(c.id)

	s.inc(metrics.EventStatusBroadcast)
	update := signalMessage{
		Type:   messageTypeStatusUpdate,
		ID:     c.id,
		Kind:   msg.Kind,
		Status: msg.Status,
	}
	for _, peerID := range peers {
		s.deliverLocked(peerID, update)
	}
}

// handleDisconnect tears down a connection's room membership and tells its
// former roommates. Idempotent: the second call finds nothing to remove.
func (s *Server) handleDisconnect(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, tracked := s.conns[c.id]; !tracked {
		return
	}
	delete(s.conns, c.id)

	roomID, peers := s.state.Remove(c.id)
	if roomID == "" {
		return
	}

	s.inc(metrics.EventUserLeftBroadcast)
	s.logger().Info("connection left room", "conn_id", c.id, "room_id", roomID)
	for _, peerID := range peers {
		s.deliverLocked(peerID, signalMessage{Type: messageTypeUserLeft, ID: c.id})
	}
}

// deliverLocked forwards a message to one connection. A target that has
// disconnected is silently dropped; the sender learns about it through the
// ordinary "user left" broadcast instead.
func (s *Server) deliverLocked(targetID string, msg signalMessage) {
	target, ok := s.conns[targetID]
	if !ok {
		s.inc(metrics.EventSignalDropped)
		return
	}
	if msg.Type == messageTypeUserJoined || msg.Type == messageTypeReturnedSignal {
		s.inc(metrics.EventSignalForwarded)
	}
	target.enqueue(msg)
}

func (s *Server) inc(name string) {
	if s.Metrics != nil {
		s.Metrics.Inc(name)
	}
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Server) newConnectionID() string {
	if s.NewConnectionID != nil {
		return s.NewConnectionID()
	}
	return uuid.NewString()
}

func (s *Server) clock() ratelimit.Clock {
	if s.Clock == nil {
		return ratelimit.RealClock{}
	}
	return s.Clock
}

func (s *Server) maxMessageBytes() int64 {
	if s.MaxMessageBytes <= 0 {
		return 64 * 1024
	}
	return s.MaxMessageBytes
}

func (s *Server) maxMessagesPerSecond() int {
	if s.MaxMessagesPerSecond <= 0 {
		return 50
	}
	return s.MaxMessagesPerSecond
}

func (s *Server) sendQueueSize() int {
	if s.SendQueueSize <= 0 {
		return 32
	}
	return s.SendQueueSize
}

func (s *Server) pingInterval() time.Duration {
	if s.PingInterval <= 0 {
		return 20 * time.Second
	}
	return s.PingInterval
}

func (s *Server) idleTimeout() time.Duration {
	if s.IdleTimeout <= 0 {
		return 60 * time.Second
	}
	return s.IdleTimeout
}

func (s *Server) writeTimeout() time.Duration {
	if s.WriteTimeout <= 0 {
		return 10 * time.Second
	}
	return s.WriteTimeout
}

// client is one live WebSocket connection. The read loop feeds the server's
// handlers; the write loop owns all writes, including keepalive pings.
type client struct {
	srv  *Server
	id   string
	conn *websocket.Conn

	done    chan struct{}
	send    chan []byte
	limiter *ratelimit.TokenBucket

	closeOnce sync.Once
}

func (c *client) readLoop() {
	defer func() {
		c.srv.handleDisconnect(c)
		c.close()
	}()

	c.conn.SetReadLimit(c.srv.maxMessageBytes())
	_ = c.conn.SetReadDeadline(time.Now().Add(c.srv.idleTimeout()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.srv.idleTimeout()))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.srv.logger().Debug("read failed", "conn_id", c.id, "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.srv.idleTimeout()))

		// The limit is applied after the read so buffered bytes are consumed;
		// closing with unread data can turn into an abortive close (RST) and
		// hide the close code from the client.
		if !c.limiter.Allow(1) {
			c.srv.inc(metrics.DropReasonRateLimited)
			c.fail("rate_limited", "rate limit exceeded", websocket.ClosePolicyViolation)
			return
		}
		if msgType != websocket.TextMessage {
			c.fail("bad_message", "expected text message", websocket.CloseUnsupportedData)
			return
		}

		msg, err := parseClientMessage(data)
		if err != nil {
			c.srv.inc(metrics.DropReasonBadMessage)
			// A join with a bad room id (or any other per-message validation
			// failure) is rejected without dropping the connection, so the
			// client can correct course and retry.
			c.enqueue(signalMessage{
				Type:    messageTypeError,
				Code:    "bad_message",
				Message: err.Error(),
			})
			continue
		}

		c.srv.handleMessage(c, msg)
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(c.srv.pingInterval())
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.writeTimeout()))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.writeTimeout()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// enqueue hands a message to the write loop without blocking. When the
// client's queue is full the message is dropped and counted; relay delivery
// is fire-and-forget end to end.
func (c *client) enqueue(msg signalMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.srv.logger().Error("marshal outbound message", "conn_id", c.id, "err", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.srv.inc(metrics.DropReasonSendOverflow)
		c.srv.logger().Warn("send queue overflow", "conn_id", c.id, "message_type", string(msg.Type))
	}
}

func (c *client) fail(code, message string, closeCode int) {
	c.enqueue(signalMessage{Type: messageTypeError, Code: code, Message: message})
	deadline := time.Now().Add(c.srv.writeTimeout())
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, code), deadline)
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
