package server

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oszuidwest/zwfm-meter/internal/types"
)

// Push intervals used when ClientOptions leaves them zero.
const (
	DefaultFrameInterval  = time.Second / 30
	DefaultStatusInterval = 3000 * time.Millisecond
)

// sendBuffer bounds queued outgoing messages per connection.
const sendBuffer = 16

// WebSocketConn is the interface for WebSocket connection operations.
type WebSocketConn interface {
	io.Closer
	WriteJSON(v any) error
	ReadJSON(v any) error
}

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin reports whether the WebSocket connection origin is allowed.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		slog.Warn("rejected WebSocket connection: invalid origin URL", "origin", origin)
		return false
	}

	host := u.Hostname()
	if host == "localhost" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	// Meters are usually opened from studio machines on the local network.
	ip := net.ParseIP(host)
	if ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	slog.Warn("rejected WebSocket connection", "origin", origin, "host", host)
	return false
}

// UpgradeConnection upgrades an HTTP connection to WebSocket.
func UpgradeConnection(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// ClientOptions configures a WebSocket client session.
type ClientOptions struct {
	FrameInterval  time.Duration
	StatusInterval time.Duration
	// Status builds the full status message; nil uses the station's status.
	Status func() types.WSStatusResponse
}

// ServeClient runs a client session on conn until the client disconnects.
// It pushes display-list frames when they change, status periodically and
// after commands, and lifecycle events as they happen.
func ServeClient(conn WebSocketConn, h *CommandHandler, st Station, opts ClientOptions) {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	if opts.Status == nil {
		opts.Status = st.Status
	}

	// Only the writer goroutine writes to the connection.
	send := make(chan any, sendBuffer)
	done := make(chan struct{})
	stop := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	go runWriter(conn, send, stop)
	go runReader(conn, h, send, done, statusUpdate)

	runEventLoop(st, opts, send, done, statusUpdate)
	close(stop)
}

// runWriter writes messages from send to the connection until stop is closed.
// send is never closed: async command handlers may still reply after the session ends.
func runWriter(conn WebSocketConn, send <-chan any, stop <-chan struct{}) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for {
		select {
		case msg := <-send:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// runReader reads commands from the connection and dispatches them.
func runReader(conn WebSocketConn, h *CommandHandler, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		h.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runEventLoop pushes frames, status and events until the reader is done.
func runEventLoop(st Station, opts ClientOptions, send chan<- any, done, statusUpdate <-chan struct{}) {
	frameTicker := time.NewTicker(opts.FrameInterval)
	statusTicker := time.NewTicker(opts.StatusInterval)
	defer frameTicker.Stop()
	defer statusTicker.Stop()

	events, unsubscribe := st.Subscribe()
	defer unsubscribe()

	// push reports false once the reader is done.
	push := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	if !push(opts.Status()) {
		return
	}

	var lastVersion uint64
	for {
		var msg any
		select {
		case <-done:
			return
		case <-statusUpdate:
			msg = opts.Status()
		case <-statusTicker.C:
			msg = opts.Status()
		case ev := <-events:
			msg = ev
		case <-frameTicker.C:
			f := st.Frame()
			if f.Version == lastVersion {
				continue
			}
			lastVersion = f.Version
			msg = types.WSFrameResponse{Type: "frame", Frame: f}
		}
		if !push(msg) {
			return
		}
	}
}
