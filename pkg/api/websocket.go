package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// outbound frames queued per subscriber before updates are dropped
	sendQueue = 256
)

// Feed fans committed fills out to WebSocket subscribers. Delivery is best
// effort: a subscriber whose queue is full misses the update.
type Feed struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
	logger *zap.SugaredLogger
}

func NewFeed(logger *zap.SugaredLogger) *Feed {
	return &Feed{
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
	}
}

// subscriber is one connection. topics and out are guarded by Feed.mu;
// out is closed exactly once, by whoever removes the subscriber.
type subscriber struct {
	feed   *Feed
	conn   *websocket.Conn
	addr   string
	topics map[string]bool
	out    chan []byte
}

func (f *Feed) add(conn *websocket.Conn) (*subscriber, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, false
	}
	sub := &subscriber{
		feed:   f,
		conn:   conn,
		addr:   conn.RemoteAddr().String(),
		topics: make(map[string]bool),
		out:    make(chan []byte, sendQueue),
	}
	f.subs[sub] = struct{}{}
	f.logger.Debugw("ws_client_connected", "client", sub.addr, "total", len(f.subs))
	return sub, true
}

func (f *Feed) remove(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sub]; !ok {
		return
	}
	delete(f.subs, sub)
	close(sub.out)
	f.logger.Debugw("ws_client_disconnected", "client", sub.addr, "total", len(f.subs))
}

// Close disconnects every subscriber; later connections are refused.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for sub := range f.subs {
		delete(f.subs, sub)
		close(sub.out)
	}
}

// Publish queues v, encoded as JSON, for every subscriber of topic.
func (f *Feed) Publish(topic string, v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		f.logger.Warnw("ws_marshal_failed", "topic", topic, "err", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	dropped := 0
	for sub := range f.subs {
		if sub.topics[topic] && !sub.offer(frame) {
			dropped++
		}
	}
	if dropped > 0 {
		f.logger.Warnw("ws_updates_dropped", "topic", topic, "subscribers", dropped)
	}
}

// apply handles a subscribe or unsubscribe request and queues the ack.
func (f *Feed) apply(sub *subscriber, req WSSubscribeRequest) bool {
	var (
		on   bool
		kind string
	)
	switch req.Op {
	case "subscribe":
		on, kind = true, "subscribed"
	case "unsubscribe":
		kind = "unsubscribed"
	default:
		return false
	}

	ack, err := json.Marshal(WSAck{Type: kind, Channels: req.Channels})
	if err != nil {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sub]; !ok {
		return true
	}
	for _, topic := range req.Channels {
		if on {
			sub.topics[topic] = true
		} else {
			delete(sub.topics, topic)
		}
	}
	sub.offer(ack)
	return true
}

// offer must be called with Feed.mu held
func (s *subscriber) offer(frame []byte) bool {
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

// readLoop consumes control requests until the connection fails, then
// removes the subscriber.
func (s *subscriber) readLoop() {
	defer func() {
		s.feed.remove(s)
		s.conn.Close()
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req WSSubscribeRequest
		if err := s.conn.ReadJSON(&req); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				s.feed.logger.Debugw("ws_invalid_message", "client", s.addr, "err", err)
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.feed.logger.Debugw("ws_read_failed", "client", s.addr, "err", err)
			}
			return
		}
		if !s.feed.apply(s, req) {
			s.feed.logger.Debugw("ws_unknown_op", "client", s.addr, "op", req.Op)
		}
	}
}

// writeLoop drains the queue to the connection and keeps it alive with pings.
func (s *subscriber) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// allowOrigin applies the configured CORS origins to the upgrade request.
// Requests without an Origin header come from non-browser clients.
func (s *Server) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.origins) == 0 {
		return true
	}
	return slices.Contains(s.origins, origin) || slices.Contains(s.origins, "*")
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.allowOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("ws_upgrade_failed", "err", err)
		return
	}

	sub, ok := s.feed.add(conn)
	if !ok {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go sub.writeLoop()
	go sub.readLoop()
}
