// Package httpserver delivers rendered fragments to connected browsers. It
// serves the page shell once per tab and pushes every subsequent render over
// a WebSocket.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"markdownd/internal/contracts"
	"markdownd/internal/workdir"
)

// defaultSendBuffer is the per-client outbound queue. A client that falls
// this far behind is dropped rather than allowed to stall the hub.
const defaultSendBuffer = 16

// Config carries everything the server needs at construction time.
type Config struct {
	// Addr to bind, e.g. "127.0.0.1:0".
	Addr string

	// Shell is the HTML page served on GET /.
	Shell string

	// HighlightCSS is served on GET /css/highlight.css.
	HighlightCSS string

	// CustomCSSFiles are local stylesheet paths served under /css/custom/.
	CustomCSSFiles []string

	Logger *slog.Logger

	// SendBuffer overrides the per-client queue size. Zero means the default.
	SendBuffer int
}

// Server owns the client registry and the listening socket. All registry
// mutation happens on a single run-loop goroutine; handlers and the render
// loop talk to it through channels.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	ln         net.Listener
	httpServer *http.Server

	updates    chan string
	register   chan *client
	unregister chan *client
	countReq   chan chan int
	stopCh     chan struct{}
	stopped    chan struct{}
}

// client is one connected preview surface.
type client struct {
	conn        *websocket.Conn
	send        chan contracts.RenderMessage
	connectedAt time.Time
}

func New(cfg Config) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		updates:    make(chan string, 8),
		register:   make(chan *client),
		unregister: make(chan *client),
		countReq:   make(chan chan int),
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Start binds the listening socket and starts serving. A bind failure is
// returned to the caller so startup can fail before any work begins.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.httpServer = &http.Server{
		Handler:     s.routes(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the push channel is long-lived.
		IdleTimeout: 60 * time.Second,
	}

	go s.runLoop()
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http serve", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Addr returns the bound address. Only valid after Start.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// URL returns the browser URL for the preview.
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// Publish hands a new rendered fragment to the hub. Delivery to each client
// preserves publish order; slow clients are dropped, never waited on.
func (s *Server) Publish(html string) {
	select {
	case s.updates <- html:
	case <-s.stopped:
	}
}

// ClientCount reports the number of registered clients.
func (s *Server) ClientCount() int {
	resp := make(chan int, 1)
	select {
	case s.countReq <- resp:
	case <-s.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-s.stopped:
		return 0
	}
}

// Stop shuts down the listener, the run loop, and every client connection.
func (s *Server) Stop() error {
	close(s.stopCh)
	<-s.stopped

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/ws", s.handleWS)
	r.Get(workdir.AssetPrefix+"*", s.handleAsset)
	r.Get("/css/highlight.css", s.handleHighlightCSS)
	r.Get("/css/custom/{index}", s.handleCustomCSS)

	return r
}

// runLoop serializes registry mutation and fan-out on one goroutine.
func (s *Server) runLoop() {
	defer close(s.stopped)

	clients := make(map[*client]struct{})
	last := contracts.RenderMessage{Type: contracts.MessageTypeRender}

	drop := func(c *client) {
		if _, ok := clients[c]; !ok {
			return
		}
		delete(clients, c)
		close(c.send)
	}

	for {
		select {
		case html := <-s.updates:
			last.Rev++
			last.HTML = html

			for c := range clients {
				select {
				case c.send <- last:
				default:
					// Outbound queue full: this client cannot keep up and
					// must not hold back the others.
					s.logger.Warn("dropping slow preview client",
						slog.Duration("connected_for", time.Since(c.connectedAt)))
					drop(c)
				}
			}

		case c := <-s.register:
			clients[c] = struct{}{}
			if last.Rev > 0 {
				// Late joiners immediately see the current document.
				select {
				case c.send <- last:
				default:
					drop(c)
				}
			}

		case c := <-s.unregister:
			drop(c)

		case resp := <-s.countReq:
			resp <- len(clients)

		case <-s.stopCh:
			for c := range clients {
				drop(c)
			}
			return
		}
	}
}

// writePump drains a client's outbound queue onto its connection. It exits
// when the hub closes the queue; a write failure closes the connection, which
// in turn makes the read loop unregister the client.
func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(s.cfg.Shell))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{
		conn:        conn,
		send:        make(chan contracts.RenderMessage, s.cfg.SendBuffer),
		connectedAt: time.Now(),
	}

	select {
	case s.register <- c:
	case <-s.stopped:
		conn.Close()
		return
	}

	go c.writePump()

	// Block until the connection closes or errors out. Inbound payloads are
	// ignored; the preview protocol is push-only.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	select {
	case s.unregister <- c:
	case <-s.stopped:
	}
}

// handleAsset serves local files referenced by rendered documents. The
// encoded absolute paths come from the renderer's image rewrite, which
// resolves relative references against the working directory on every render.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	assetPath, err := workdir.ParseAssetPath(r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	info, err := os.Stat(assetPath)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, assetPath)
}

func (s *Server) handleHighlightCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write([]byte(s.cfg.HighlightCSS))
}

func (s *Server) handleCustomCSS(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 || index >= len(s.cfg.CustomCSSFiles) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	http.ServeFile(w, r, s.cfg.CustomCSSFiles[index])
}
