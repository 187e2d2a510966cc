package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lambda-feedback/shepherd/config"
	"github.com/lambda-feedback/shepherd/internal/process"
	"github.com/lambda-feedback/shepherd/internal/supervisor"
)

// --- Mock provider ---
type MockStatusProvider struct {
	mock.Mock
}

func (m *MockStatusProvider) Status(name string) ([]process.Snapshot, error) {
	args := m.Called(name)
	snapshots, _ := args.Get(0).([]process.Snapshot)
	return snapshots, args.Error(1)
}

func (m *MockStatusProvider) StatusAll() []process.Snapshot {
	snapshots, _ := m.Called().Get(0).([]process.Snapshot)
	return snapshots
}

func newRouter(provider StatusProvider, auth config.AuthConfig) *mux.Router {
	handler := NewStatusHandler(StatusHandlerParams{
		Provider: provider,
		Config:   config.Config{Auth: auth},
		Log:      zap.NewNop(),
	})

	router := mux.NewRouter()
	router.Handle(NewAppsRoute(handler).Handler.Path, handler)
	router.Handle(NewAppRoute(handler).Handler.Path, handler)

	return router
}

func serve(router http.Handler, req *http.Request) (*http.Response, []byte) {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	return res, body
}

// --- Tests ---
func TestStatusHandler_All(t *testing.T) {
	provider := new(MockStatusProvider)
	provider.On("StatusAll").Return([]process.Snapshot{
		{Name: "api", State: process.Running, PID: 42},
		{Name: "web", State: process.Stopped},
	})

	res, body := serve(newRouter(provider, config.AuthConfig{}), httptest.NewRequest(http.MethodGet, "/apps", nil))

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))

	var snapshots []process.Snapshot
	require.NoError(t, json.Unmarshal(body, &snapshots))
	require.Len(t, snapshots, 2)
	assert.Equal(t, "api", snapshots[0].Name)
	assert.Equal(t, process.Running, snapshots[0].State)
	assert.Equal(t, 42, snapshots[0].PID)

	provider.AssertExpectations(t)
}

func TestStatusHandler_EmptyRegistry(t *testing.T) {
	provider := new(MockStatusProvider)
	provider.On("StatusAll").Return(nil)

	res, body := serve(newRouter(provider, config.AuthConfig{}), httptest.NewRequest(http.MethodGet, "/apps", nil))

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestStatusHandler_Single(t *testing.T) {
	provider := new(MockStatusProvider)
	provider.On("Status", "api").Return([]process.Snapshot{
		{Name: "api", State: process.Crashed, Restarts: 3},
	}, nil)

	res, body := serve(newRouter(provider, config.AuthConfig{}), httptest.NewRequest(http.MethodGet, "/apps/api", nil))

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `"state":"crashed"`)
	assert.Contains(t, string(body), `"restarts":3`)
}

func TestStatusHandler_NotFound(t *testing.T) {
	provider := new(MockStatusProvider)
	provider.On("Status", "ghost").Return(nil, fmt.Errorf("ghost: %w", supervisor.ErrAppNotFound))

	res, _ := serve(newRouter(provider, config.AuthConfig{}), httptest.NewRequest(http.MethodGet, "/apps/ghost", nil))

	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestStatusHandler_Unauthorized(t *testing.T) {
	provider := new(MockStatusProvider)

	req := httptest.NewRequest(http.MethodGet, "/apps", nil)
	req.Header.Set("api-key", "wrong-key")

	res, body := serve(newRouter(provider, config.AuthConfig{Key: "secret"}), req)

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Contains(t, string(body), "unauthorized")

	// Ensure provider was not called
	provider.AssertNotCalled(t, "StatusAll")
}

func TestStatusHandler_Authorized(t *testing.T) {
	provider := new(MockStatusProvider)
	provider.On("StatusAll").Return([]process.Snapshot{})

	req := httptest.NewRequest(http.MethodGet, "/apps", nil)
	req.Header.Set("api-key", "secret")

	res, _ := serve(newRouter(provider, config.AuthConfig{Key: "secret"}), req)

	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestHealthHandler(t *testing.T) {
	res, body := serve(http.HandlerFunc(HealthHandler), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", string(body))
}
