package handler

import (
	"net/http"

	"github.com/lambda-feedback/shepherd/internal/metrics"
	"github.com/lambda-feedback/shepherd/internal/server"
)

func NewAppsRoute(handler *StatusHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("/apps", handler, http.MethodGet)
}

func NewAppRoute(handler *StatusHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("/apps/{name}", handler, http.MethodGet)
}

func NewMetricsRoute(collector *metrics.Prometheus) server.HttpHandlerResult {
	return server.AsHttpHandler("/metrics", collector.Handler(), http.MethodGet)
}

func NewHealthRoute() server.HttpHandlerResult {
	return server.AsHttpHandler("/health", http.HandlerFunc(HealthHandler), http.MethodGet)
}
