package server

import (
	"net/http"

	"go.uber.org/fx"
)

type HttpHandler struct {
	// Path is a gorilla/mux path template
	Path string

	// Methods restricts the route, any method matches if empty
	Methods []string

	Handler http.Handler
}

type HttpHandlerResult struct {
	fx.Out

	Handler *HttpHandler `group:"handlers"`
}

func AsHttpHandler(
	path string,
	handler http.Handler,
	methods ...string,
) HttpHandlerResult {
	return HttpHandlerResult{
		Handler: &HttpHandler{
			Path:    path,
			Methods: methods,
			Handler: handler,
		},
	}
}
