package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"golemfacade/internal/daemon"
	"golemfacade/internal/logging"
)

// serviceName prefixes every method on the wire, e.g. "Golem.Status".
const serviceName = "Golem"

// Server answers JSON-RPC requests on a Unix socket. Each connection gets
// its own codec goroutine; Close waits for all of them.
type Server struct {
	path     string
	logger   *slog.Logger
	listener net.Listener
	rpc      *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup
}

// NewServer replaces any stale socket at path and registers the daemon's
// RPC methods. Serve must be called to accept connections.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	srvCtx, cancel := context.WithCancel(ctx)
	registry := rpc.NewServer()
	if err := registry.RegisterName(serviceName, &service{daemon: d, logger: logger, ctx: srvCtx}); err != nil {
		cancel()
		_ = ln.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}
	return &Server{path: path, logger: logger, listener: ln, rpc: registry, ctx: srvCtx, cancel: cancel}, nil
}

// Serve accepts connections in the background until Close.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.conns.Go(s.acceptLoop)
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		switch {
		case err == nil:
			s.conns.Go(func() { s.rpc.ServeCodec(jsonrpc.NewServerCodec(conn)) })
		case s.ctx.Err() != nil, errors.Is(err, net.ErrClosed):
			return
		default:
			logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
				logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
			)
		}
	}
}

// Close stops accepting, waits for open connections and removes the socket.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.conns.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun golemfacade stop"),
		)
	}
}
