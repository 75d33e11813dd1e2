package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Trigger feed: websocket hub + per-client pumps
// ============================================================================
//
// Every dispatched action is pushed to connected clients as
//
//	{"type": "trigger", "ts": "...", "data": TriggerRecord}
//
// A "hello" message describing the daemon is sent on connect, followed by
// the most recent trigger when there is one. Clients may subscribe with
// ?source=device or ?source=ipc to receive only that source's triggers.
// Slow clients are disconnected when their send buffer fills; the dispatcher
// never waits on the feed.
// ============================================================================

type feedHello struct {
	Name     string   `json:"name"`
	Device   string   `json:"device"`
	Executor string   `json:"executor"`
	KeyCodes []uint16 `json:"key_codes"`
	Source   string   `json:"source,omitempty"` // the client's filter, if any
}

// envelope is the wire format for feed messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(typ string, at time.Time, data any) ([]byte, error) {
	ts := at.UTC()
	return json.Marshal(envelope{Type: typ, Ts: &ts, Data: data})
}

// ============================================================================
// Hub
// ============================================================================

// feedFrame is an encoded trigger message tagged with its source, so
// per-client filters never need to decode it.
type feedFrame struct {
	source string
	data   []byte
}

type Hub struct {
	logger *slog.Logger

	broadcast  chan feedFrame
	register   chan *feedClient // unbuffered: a send succeeds only while Run is alive
	unregister chan *feedClient
	done       chan struct{}

	mu      sync.Mutex
	clients map[*feedClient]struct{}

	// last is the most recent trigger, replayed to clients as they join.
	// Only Run touches it.
	last *feedFrame

	sendBuf int
}

// NewHub constructs a hub. Call Run(ctx) once to start it.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		broadcast:  make(chan feedFrame, 64),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient, 16),
		done:       make(chan struct{}),
		clients:    make(map[*feedClient]struct{}),
		sendBuf:    16,
	}
}

// Run processes hub events until ctx is canceled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			h.add(c)

		case c := <-h.unregister:
			h.remove(c, "unregister")

		case f := <-h.broadcast:
			h.last = &f
			h.fanOut(f)
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Register hands c to the running hub. It reports false when the hub has
// already stopped; the caller then owns c and must close it.
func (h *Hub) Register(c *feedClient) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) add(c *feedClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	replayed := false
	if h.last != nil && c.wants(h.last.source) {
		select {
		case c.send <- h.last.data:
			replayed = true
		default:
		}
	}
	h.logger.Info("feed client connected", "remote_addr", c.remoteAddr, "source", c.filterLabel(), "replayed", replayed, "clients", n)
}

func (h *Hub) fanOut(f feedFrame) {
	var slow []*feedClient

	h.mu.Lock()
	for c := range h.clients {
		if !c.wants(f.source) {
			continue
		}
		select {
		case c.send <- f.data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.remove(c, "slow_client")
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

func (h *Hub) remove(c *feedClient, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		h.logger.Info("feed client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// publish queues a trigger frame. A backed-up hub drops it rather than stall
// the dispatcher.
func (h *Hub) publish(source string, data []byte) {
	select {
	case h.broadcast <- feedFrame{source: source, data: data}:
	default:
		h.logger.Warn("feed broadcast queue full, dropping trigger", "source", source, "bytes", len(data))
	}
}

// ============================================================================
// Client
// ============================================================================

type feedClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// source restricts the client to triggers from one source; empty means all.
	source string

	closeOnce  sync.Once
	remoteAddr string
	logger     *slog.Logger
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

func newFeedClient(hub *Hub, conn *websocket.Conn, remoteAddr, source string, logger *slog.Logger) *feedClient {
	return &feedClient{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, hub.sendBuf),
		source:     source,
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

func (c *feedClient) wants(source string) bool {
	return c.source == "" || c.source == source
}

func (c *feedClient) filterLabel() string {
	if c.source == "" {
		return "all"
	}
	return c.source
}

// close is idempotent: the hub may remove a client from several paths.
func (c *feedClient) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
		close(c.send)
	})
}

// closeStatus extracts the websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *feedClient) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Debug("feed pump exiting (close)", "pump", pump, "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Debug("feed pump exiting", "pump", pump, "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes queued frames and keepalive pings. It exits when send is
// closed or a write fails.
func (c *feedClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("write", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("ping", err)
				return
			}
		}
	}
}

// readPump discards inbound frames; it only exists to process control frames
// and notice disconnects.
func (c *feedClient) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("read", err)
			select {
			case c.hub.unregister <- c:
			default:
				// Hub is gone or backed up; a dead client is dropped as slow later.
			}
			return
		}
	}
}

// ============================================================================
// Feed server
// ============================================================================

type FeedServer struct {
	hub    *Hub
	hello  feedHello
	logger *slog.Logger
}

func NewFeedServer(hello feedHello, logger *slog.Logger) *FeedServer {
	return &FeedServer{
		hub:    NewHub(logger),
		hello:  hello,
		logger: logger,
	}
}

func (s *FeedServer) Hub() *Hub { return s.hub }

// Publish implements TriggerSink.
func (s *FeedServer) Publish(rec TriggerRecord) {
	msg, err := marshalEnvelope("trigger", rec.At, rec)
	if err != nil {
		s.logger.Warn("feed marshal failed", "error", err)
		return
	}
	s.hub.publish(rec.Source, msg)
}

func (s *FeedServer) Register(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, s.handleWS)
}

var upgrader = websocket.Upgrader{
	// The feed is read-only; bind http.listen to loopback to keep it local.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades a feed subscription. The optional ?source=device|ipc
// query restricts the client to triggers from that source.
func (s *FeedServer) handleWS(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	switch source {
	case "", sourceDevice, sourceIPC:
	default:
		http.Error(w, "source must be device or ipc", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("feed upgrade failed", "error", err)
		return
	}

	client := newFeedClient(s.hub, conn, r.RemoteAddr, source, s.logger)

	// hello, then the replayed trigger (queued by the hub on register), then
	// live triggers.
	hello := s.hello
	hello.Source = source
	if msg, err := marshalEnvelope("hello", time.Now(), hello); err == nil {
		client.send <- msg
	}
	if !s.hub.Register(client) {
		s.logger.Debug("feed client refused, hub stopped", "remote_addr", r.RemoteAddr)
		client.close()
		return
	}

	// Pump lifetime is owned by the hub, not the request context.
	go client.writePump()
	go client.readPump()
}
