package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrDaemonRunning is returned if another daemon serves the socket.
var ErrDaemonRunning = errors.New("daemon already running")

type Config struct {
	// Socket is the path of the unix socket
	Socket string `conf:"socket"`
}

// Server serves the control API on a unix socket.
type Server struct {
	rpc      *rpc.Server
	socket   string
	listener net.Listener
	log      *zap.Logger
}

func NewServer(config Config, api *API, log *zap.Logger) (*Server, error) {
	srv := rpc.NewServer()

	if err := srv.RegisterName(Namespace, api); err != nil {
		return nil, fmt.Errorf("register control api: %w", err)
	}

	return &Server{
		rpc:    srv,
		socket: config.Socket,
		log:    log,
	}, nil
}

// Listen binds the socket and serves requests in the background.
func (s *Server) Listen() error {
	if err := removeStaleSocket(s.socket); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.socket), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socket)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socket, err)
	}

	// only the owner may control the daemon
	if err := os.Chmod(s.socket, 0o600); err != nil {
		return multierr.Append(err, listener.Close())
	}

	s.listener = listener

	s.log.Info("listening", zap.String("socket", s.socket))

	go func() {
		if err := s.rpc.ServeListener(listener); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Error("failed to serve", zap.Error(err))
		}
	}()

	return nil
}

// InProc returns a client connected to the server without a socket.
func (s *Server) InProc() *Client {
	return NewClient(rpc.DialInProc(s.rpc))
}

func (s *Server) Close() error {
	var errs error

	if s.listener != nil {
		errs = multierr.Append(errs, s.listener.Close())
	}

	s.rpc.Stop()

	if s.listener != nil {
		if err := os.Remove(s.socket); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// removeStaleSocket removes a socket left behind by a daemon that did
// not shut down cleanly.
func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err == nil {
		conn.Close()
		return fmt.Errorf("%s: %w", path, ErrDaemonRunning)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	return nil
}

func NewLifecycleServer(params ServerParams) (*Server, error) {
	server, err := NewServer(params.Config, params.API, params.Log)
	if err != nil {
		return nil, err
	}

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return server.Listen()
		},
		OnStop: func(context.Context) error {
			return server.Close()
		},
	})

	return server, nil
}
