// Package control accepts commands from the editor integration. One logical
// protocol (send_data, open_browser, chdir, status) is carried over either
// of two framings: a JSON-RPC style array stream on a local TCP socket, or
// one JSON object per line on stdin. The framings differ only in how the next
// command is decoded, never in semantics.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
)

// Supported methods.
const (
	MethodSendData    = "send_data"
	MethodOpenBrowser = "open_browser"
	MethodChdir       = "chdir"
	MethodStatus      = "status"
)

// ErrMalformed marks a single undecodable or ill-formed command. The intake
// loop reports it and moves on to the next command.
var ErrMalformed = errors.New("malformed control command")

// Command is one decoded control-protocol operation.
type Command struct {
	// ID is the request id on the RPC framing; zero on the line framing.
	ID     int64
	Method string
	Params []string
}

// Status is the reply to a status query.
type Status struct {
	Alive    bool   `json:"alive"`
	HTTPAddr string `json:"http_addr"`
}

// Dispatcher receives decoded commands. Implementations must be safe for
// calls from the intake goroutine.
type Dispatcher interface {
	SendData(text string)
	OpenBrowser()
	Chdir(path string)
	Status() Status
}

// Decoder yields the next command from an underlying stream. Implementations
// return io.EOF when the stream ends and wrap ErrMalformed for commands that
// should be skipped rather than ending the stream.
type Decoder interface {
	Decode() (Command, error)
}

// responder sends a reply for the framings that support one; nil suppresses
// replies entirely (fire-and-forget transports).
type responder func(cmd Command, result any) error

// run is the shared intake loop for both framings: decode, dispatch, repeat.
// Commands are processed strictly in arrival order.
func run(ctx context.Context, dec Decoder, respond responder, d Dispatcher, logger *slog.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		cmd, err := dec.Decode()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, ErrMalformed):
			logger.Warn("discarding malformed control command", slog.String("error", err.Error()))
			continue
		case err != nil:
			// Likely the controller hung up mid-frame or the context closed
			// the stream under us.
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("control stream error", slog.String("error", err.Error()))
			return nil
		}

		dispatch(cmd, respond, d, logger)
	}
}

func dispatch(cmd Command, respond responder, d Dispatcher, logger *slog.Logger) {
	needParam := func() (string, bool) {
		if len(cmd.Params) < 1 {
			logger.Warn("discarding control command with missing parameter",
				slog.String("method", cmd.Method))
			return "", false
		}
		return cmd.Params[0], true
	}

	switch cmd.Method {
	case MethodSendData:
		if text, ok := needParam(); ok {
			d.SendData(text)
		}

	case MethodOpenBrowser:
		d.OpenBrowser()

	case MethodChdir:
		if path, ok := needParam(); ok {
			d.Chdir(path)
		}

	case MethodStatus:
		status := d.Status()
		if respond == nil {
			return
		}
		if err := respond(cmd, status); err != nil {
			logger.Warn("failed to reply to status query", slog.String("error", err.Error()))
		}

	default:
		logger.Warn("discarding unknown control method", slog.String("method", cmd.Method))
	}
}

// Server is the TCP control listener. It serves one controller connection at
// a time, matching how editor integrations drive the process.
type Server struct {
	ln     net.Listener
	d      Dispatcher
	logger *slog.Logger
}

// Listen binds the control socket. A bind failure is fatal to startup.
func Listen(addr string, d Dispatcher, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind control socket %s: %w", addr, err)
	}
	return &Server{ln: ln, d: d, logger: logger}, nil
}

// Close releases the listening socket without serving. Serve closes it
// itself on cancellation; Close is for startup paths that never reach Serve.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Addr returns the bound control address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Port returns the bound TCP port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Serve accepts controller connections until ctx is cancelled. Connections
// are handled sequentially; a new controller takes over after the previous
// one hangs up.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept control connection: %w", err)
		}

		s.logger.Info("controller connected", slog.String("remote", conn.RemoteAddr().String()))
		s.serveConn(ctx, conn)
		s.logger.Info("controller disconnected")
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	enc := json.NewEncoder(conn)
	respond := func(cmd Command, result any) error {
		return enc.Encode([]any{cmd.ID, result})
	}

	_ = run(ctx, NewRPCDecoder(conn), respond, s.d, s.logger)
}

// ServeStdio runs the line framing over the given streams until EOF or
// cancellation. Replies (status only) are written as single JSON lines.
func ServeStdio(ctx context.Context, r io.Reader, w io.Writer, d Dispatcher, logger *slog.Logger) error {
	// Cancellation closes the reader, mirroring how serveConn closes its
	// conn; a decode blocked on a silent stdin then errors out instead of
	// pinning this goroutine until process exit.
	if closer, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	enc := json.NewEncoder(w)
	respond := func(_ Command, result any) error {
		return enc.Encode(result)
	}
	return run(ctx, NewLineDecoder(r), respond, d, logger)
}
