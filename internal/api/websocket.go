package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"trail-arena/internal/config"
	"trail-arena/internal/metrics"
	"trail-arena/internal/room"
	"trail-arena/internal/transport"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 64 * 1024
)

var errSlowClient = errors.New("client send buffer full")

// wsConn adapts a websocket connection to transport.Conn. Sends are
// queued for the write pump so a slow client never blocks a room. conn is
// set once the upgrade succeeds, before either pump starts.
type wsConn struct {
	conn   *websocket.Conn
	binary bool
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newWSConn(conn *websocket.Conn, buffer int) *wsConn {
	if buffer < 1 {
		buffer = 1
	}
	return &wsConn{
		conn:   conn,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(b []byte) error {
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.closed:
		return transport.ErrClosed
	default:
		return errSlowClient
	}
}

func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// WebSocketHub accepts socket connections and hands them to the room directory.
type WebSocketHub struct {
	dir      *room.Directory
	sync     config.SyncConfig
	upgrader websocket.Upgrader
	active   atomic.Int64
}

// NewWebSocketHub creates a hub. Connection limits are enforced by the directory.
func NewWebSocketHub(dir *room.Directory, cfg config.AppConfig) *WebSocketHub {
	h := &WebSocketHub{
		dir:  dir,
		sync: cfg.Sync,
	}
	origins := cfg.Server.CORSOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if IsAllowedOrigin(origin, origins) {
				return true
			}

			// Log rejected origin for security monitoring
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			metrics.RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// ClientCount returns the number of open sockets
func (h *WebSocketHub) ClientCount() int {
	return int(h.active.Load())
}

// HandleWebSocket registers a client with the directory, then upgrades the
// request and attaches the socket to the client's channel. Refusals happen
// before the upgrade so callers see a plain HTTP status.
// The codec is picked with ?codec=json|msgpack, defaulting to the server's.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	var codec transport.Codec
	if name := r.URL.Query().Get("codec"); name != "" {
		c, err := transport.CodecByName(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		codec = c
	}

	wc := newWSConn(nil, h.sync.SendBuffer)
	client, err := h.dir.Connect(wc, codec, ip)
	if err != nil {
		status, reason := refusal(err)
		log.Printf("⚠️ WebSocket connection from %s refused: %v", ip, err)
		metrics.RecordConnectionRejected(reason)
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		client.Channel().Close()
		return
	}
	wc.conn = conn
	wc.binary = client.Channel().Codec().Binary()

	metrics.UpdateWSConnections(int(h.active.Add(1)))
	go h.writePump(wc)
	go h.readPump(wc, client, ip)
}

// refusal maps a directory error to an HTTP status and a metric reason.
func refusal(err error) (int, string) {
	switch {
	case errors.Is(err, room.ErrTooManyFromIP):
		return http.StatusTooManyRequests, "ws_ip_limit"
	case errors.Is(err, room.ErrTooManyClients):
		return http.StatusServiceUnavailable, "ws_total_limit"
	default:
		return http.StatusServiceUnavailable, "shutdown"
	}
}

// readPump feeds inbound frames to the client's channel until the socket dies.
func (h *WebSocketHub) readPump(wc *wsConn, client *room.Client, ip string) {
	ch := client.Channel()
	defer func() {
		ch.Close()
		wc.Close()
		metrics.UpdateWSConnections(int(h.active.Add(-1)))
	}()

	conn := wc.conn
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if sent, err := strconv.ParseInt(appData, 10, 64); err == nil {
			rtt := time.Since(time.Unix(0, sent))
			metrics.RecordLatency(rtt)
			ch.AddEvent(transport.Event{Name: "latency", Data: rtt.Milliseconds()}, true)
		}
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error from %s: %v", ip, err)
			}
			return
		}
		ch.Receive(message)
	}
}

// writePump writes queued batches and pings. Each ping carries its send
// time so the pong yields the round trip.
func (h *WebSocketHub) writePump(wc *wsConn) {
	interval := h.sync.PingInterval
	if interval <= 0 {
		interval = (pongWait * 9) / 10
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		wc.conn.Close()
	}()

	frame := websocket.TextMessage
	if wc.binary {
		frame = websocket.BinaryMessage
	}

	for {
		select {
		case message := <-wc.send:
			wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wc.conn.WriteMessage(frame, message); err != nil {
				return
			}

		case <-ticker.C:
			wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
			if err := wc.conn.WriteMessage(websocket.PingMessage, []byte(stamp)); err != nil {
				return
			}

		case <-wc.closed:
			wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			wc.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
