package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lambda-feedback/shepherd/config"
	"github.com/lambda-feedback/shepherd/internal/process"
	"github.com/lambda-feedback/shepherd/internal/supervisor"
)

// StatusProvider reports the state of supervised apps.
type StatusProvider interface {
	Status(name string) ([]process.Snapshot, error)
	StatusAll() []process.Snapshot
}

type StatusHandlerParams struct {
	fx.In

	Provider StatusProvider
	Config   config.Config
	Log      *zap.Logger
}

func NewStatusHandler(params StatusHandlerParams) *StatusHandler {
	return &StatusHandler{
		provider: params.Provider,
		auth:     params.Config.Auth,
		log:      params.Log,
	}
}

// StatusHandler serves snapshots of all apps, or of the app named by the
// {name} route variable.
type StatusHandler struct {
	provider StatusProvider
	auth     config.AuthConfig
	log      *zap.Logger
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
	)

	// Check for authorization
	if h.auth.Key != "" && r.Header.Get("api-key") != h.auth.Key {
		log.Debug("unauthorized request")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var snapshots []process.Snapshot

	if name, ok := mux.Vars(r)["name"]; ok {
		s, err := h.provider.Status(name)
		if errors.Is(err, supervisor.ErrAppNotFound) {
			http.Error(w, "app not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Debug("failed to get status", zap.Error(err))
			http.Error(w, "failed to get status", http.StatusInternalServerError)
			return
		}
		snapshots = s
	} else {
		snapshots = h.provider.StatusAll()
	}

	if snapshots == nil {
		snapshots = []process.Snapshot{}
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(snapshots); err != nil {
		log.Debug("failed to write response", zap.Error(err))
	}
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
