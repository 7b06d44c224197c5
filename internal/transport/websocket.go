package transport

// websocket.go - chat from the browser.
//
// The HTTP listener serves:
//   /ws       WebSocket upgrade; each text frame is one chat line
//   /healthz  liveness probe
//   /stats    metrics snapshot as JSON

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	ncerr "chatd/internal/errors"
	"chatd/util"
)

// WebSocketOptions configures a WebSocketListener.
type WebSocketOptions struct {
	// AllowedOrigins lists scheme://host origins permitted to connect.
	// "*" allows any origin; an empty list allows same-origin only.
	AllowedOrigins []string
	// Stats renders the /stats body.  Nil disables the endpoint.
	Stats func() string
	// MaxLineLen caps a single inbound frame.  Zero leaves it unbounded.
	MaxLineLen int
}

// WebSocketListener accepts chat clients over WebSocket.
type WebSocketListener struct {
	ln       net.Listener
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *util.Logger
	errLog   *log.Logger
	q        queue
	once     sync.Once
	maxLine  int

	origins  map[string]struct{}
	allowAll bool
}

// ListenWebSocket starts an HTTP server on addr.
func ListenWebSocket(addr string, opts WebSocketOptions, logger *util.Logger) (*WebSocketListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, ncerr.Wrap("listen", addr, err)
	}

	l := &WebSocketListener{
		ln:      ln,
		logger:  logger,
		errLog:  log.New(logger.Writer(), "http: ", 0),
		q:       newQueue(),
		maxLine: opts.MaxLineLen,
	}
	l.origins, l.allowAll = normalizeOrigins(opts.AllowedOrigins, logger)
	l.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
	}
	if len(l.origins) > 0 || l.allowAll {
		l.upgrader.CheckOrigin = l.checkOrigin
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", l.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "ok")
	})
	if opts.Stats != nil {
		mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintln(w, opts.Stats())
		})
	}

	l.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     l.errLog,
	}
	go func() {
		if err := l.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("http server: %v", err)
		}
	}()
	return l, nil
}

func (l *WebSocketListener) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		l.logger.WithFields(util.Fields{"remote": r.RemoteAddr}).Verbose("websocket upgrade failed: %v", err)
		return
	}
	if l.maxLine > 0 {
		// One byte over the cap still reaches the session, which reports
		// the line as too long.
		ws.SetReadLimit(int64(l.maxLine) + 1)
	}
	l.q.push(&wsConn{ws: ws, maxLine: l.maxLine})
}

func (l *WebSocketListener) checkOrigin(r *http.Request) bool {
	if l.allowAll {
		return true
	}
	origin, ok := normalizeOrigin(r.Header.Get("Origin"))
	if ok {
		if _, allowed := l.origins[origin]; allowed {
			return true
		}
	}
	l.logger.Warn("blocked websocket from disallowed origin %q", r.Header.Get("Origin"))
	return false
}

// Accept waits for the next WebSocket client.
func (l *WebSocketListener) Accept(ctx context.Context) (Conn, error) {
	c, err := l.q.accept(ctx)
	if err != nil {
		return nil, ncerr.Wrap("accept", l.ln.Addr().String(), err)
	}
	return c, nil
}

// Close shuts the HTTP server down.  Upgraded connections are hijacked
// and stay open until their sessions end.
func (l *WebSocketListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.q.done)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = l.server.Shutdown(ctx)
		if w, ok := l.errLog.Writer().(interface{ Close() error }); ok {
			w.Close()
		}
	})
	return err
}

// Addr returns the bound address.
func (l *WebSocketListener) Addr() net.Addr { return l.ln.Addr() }

// Name implements Listener.
func (l *WebSocketListener) Name() string { return "ws" }

func normalizeOrigins(origins []string, logger *util.Logger) (map[string]struct{}, bool) {
	out := make(map[string]struct{}, len(origins))
	allowAll := false
	for _, o := range origins {
		o = strings.TrimSpace(o)
		switch {
		case o == "":
		case o == "*":
			allowAll = true
		default:
			n, ok := normalizeOrigin(o)
			if !ok {
				logger.Warn("ignoring invalid origin %q", o)
				continue
			}
			out[n] = struct{}{}
		}
	}
	return out, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}

// ── wsConn ───────────────────────────────────────────────────────────

// wsConn adapts a WebSocket to Conn.  Each inbound text frame becomes
// one newline-terminated line; each Write is sent as one text frame
// with its trailing newline removed.
type wsConn struct {
	ws      *websocket.Conn
	maxLine int
	pending []byte

	wmu sync.Mutex
}

func (c *wsConn) Read(p []byte) (int, error) {
	for len(c.pending) == 0 {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if isExpectedClose(err) {
				return 0, net.ErrClosed
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return 0, ncerr.Protocol(c.ws.RemoteAddr().String(),
					fmt.Sprintf("line longer than %d bytes", c.maxLine), ncerr.ErrLineTooLong)
			}
			return 0, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		c.pending = append(data, '\n')
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, bytes.TrimRight(p, "\r\n")); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetReadDeadline is called from other goroutines to interrupt a
// blocked Read (session kicks).  gorilla counts it among the read
// methods, but it only forwards to the underlying net.Conn, which
// allows concurrent deadline changes.
func (c *wsConn) SetReadDeadline(t time.Time) error { return c.ws.SetReadDeadline(t) }

func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
func (c *wsConn) RemoteAddr() net.Addr               { return c.ws.RemoteAddr() }

// Close sends a normal-closure frame before dropping the connection.
func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)) //nolint:errcheck
	return c.ws.Close()
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived)
}
