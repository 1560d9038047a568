package events

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"elicit/internal/logging"
)

// SocketOptions tunes websocket observers.
type SocketOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func (o SocketOptions) withDefaults() SocketOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	return o
}

// maxInboundMessage bounds client frames; the channel carries no client messages.
const maxInboundMessage = 4096

// WebSocketObserver forwards events to one websocket client.
type WebSocketObserver struct {
	conn *websocket.Conn
	opts SocketOptions
	send chan Event
	done chan struct{}
	once sync.Once
}

// NewWebSocketObserver wraps an upgraded connection.
func NewWebSocketObserver(conn *websocket.Conn, opts SocketOptions) *WebSocketObserver {
	opts = opts.withDefaults()
	return &WebSocketObserver{
		conn: conn,
		opts: opts,
		send: make(chan Event, opts.SendBuffer),
		done: make(chan struct{}),
	}
}

// Deliver queues evt for the write loop without blocking.
func (o *WebSocketObserver) Deliver(evt Event) error {
	select {
	case <-o.done:
		return ErrObserverClosed
	default:
	}
	select {
	case o.send <- evt:
		return nil
	case <-o.done:
		return ErrObserverClosed
	default:
		// The client is not keeping up; drop it so it reconnects fresh.
		o.Close()
		return ErrObserverBacklogged
	}
}

// Close ends the connection. It is safe to call more than once.
func (o *WebSocketObserver) Close() {
	o.once.Do(func() {
		close(o.done)
		_ = o.conn.Close()
	})
}

// Done is closed once the observer has shut down.
func (o *WebSocketObserver) Done() <-chan struct{} {
	return o.done
}

func (o *WebSocketObserver) writeLoop() {
	ticker := time.NewTicker(o.opts.PingInterval)
	defer ticker.Stop()
	defer o.Close()
	for {
		select {
		case <-o.done:
			return
		case evt := <-o.send:
			_ = o.conn.SetWriteDeadline(time.Now().Add(o.opts.WriteTimeout))
			if err := o.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(o.opts.WriteTimeout)
			if err := o.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so pongs and close frames are processed.
func (o *WebSocketObserver) readLoop() {
	defer o.Close()
	o.conn.SetReadLimit(maxInboundMessage)
	wait := 2 * o.opts.PingInterval
	_ = o.conn.SetReadDeadline(time.Now().Add(wait))
	o.conn.SetPongHandler(func(string) error {
		return o.conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Handler upgrades requests to websocket observers attached to hub.
func Handler(hub *Hub, opts SocketOptions, logger *slog.Logger) http.Handler {
	logger = logging.NewComponentLogger(logger, "events")
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		// The API has no authentication, so origins are not checked either.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("websocket upgrade failed", logging.Error(err))
			return
		}
		observer := NewWebSocketObserver(conn, opts)
		hub.Attach(observer)
		logger.Debug("observer attached", logging.Int("observers", hub.Count()))

		go observer.writeLoop()
		observer.readLoop()

		hub.Detach(observer)
		logger.Debug("observer detached", logging.Int("observers", hub.Count()))
	})
}
