package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type HttpServerParams struct {
	fx.In

	Config HttpConfig

	Handlers []*HttpHandler `group:"handlers"`
	Logger   *zap.Logger
}

type HttpServer struct {
	address string
	server  *http.Server
	log     *zap.Logger
}

// NewRouter registers handlers on a gorilla/mux router.
func NewRouter(handlers []*HttpHandler) *mux.Router {
	router := mux.NewRouter()

	for _, handler := range handlers {
		route := router.Handle(handler.Path, handler.Handler)
		if len(handler.Methods) > 0 {
			route.Methods(handler.Methods...)
		}
	}

	return router
}

func NewHttpServer(params HttpServerParams) *HttpServer {
	router := NewRouter(params.Handlers)

	var handler http.Handler = router
	if params.Config.H2c {
		handler = h2c.NewHandler(router, &http2.Server{})
	}

	address := fmt.Sprintf("%s:%d", params.Config.Host, params.Config.Port)

	return &HttpServer{
		address: address,
		server: &http.Server{
			Addr:    address,
			Handler: handler,
		},
		log: params.Logger,
	}
}

func NewLifecycleServer(params HttpServerParams, lc fx.Lifecycle) *HttpServer {
	server := NewHttpServer(params)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			listener, err := server.Listen(ctx)
			if err != nil {
				return err
			}
			go server.Serve(listener)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
	return server
}

func (s *HttpServer) Listen(ctx context.Context) (net.Listener, error) {
	cfg := net.ListenConfig{}

	listener, err := cfg.Listen(ctx, "tcp", s.address)
	if err != nil {
		s.log.With(zap.Error(err)).Error("failed to listen")
		return nil, err
	}

	s.log.With(zap.String("address", listener.Addr().String())).Info("listening")

	return listener, nil
}

func (s *HttpServer) Serve(listener net.Listener) error {
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.With(zap.Error(err)).Error("failed to serve")
		return err
	}

	return nil
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.With(zap.Error(err)).Error("failed to shutdown")
		return err
	}

	return nil
}
