package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRouter_MatchesPathVariables(t *testing.T) {
	var got string
	router := NewRouter([]*HttpHandler{
		AsHttpHandler("/apps/{name}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.URL.Path
		}), http.MethodGet).Handler,
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/apps/api", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/apps/api", got)
}

func TestNewRouter_RestrictsMethods(t *testing.T) {
	router := NewRouter([]*HttpHandler{
		AsHttpHandler("/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), http.MethodGet).Handler,
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHttpServer_ListenAndServe(t *testing.T) {
	server := NewHttpServer(HttpServerParams{
		Config: HttpConfig{Host: "127.0.0.1", Port: 0},
		Handlers: []*HttpHandler{
			AsHttpHandler("/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("pong"))
			})).Handler,
		},
		Logger: zap.NewNop(),
	})

	listener, err := server.Listen(context.Background())
	require.NoError(t, err)

	go server.Serve(listener)
	defer server.Shutdown(context.Background())

	res, err := http.Get("http://" + listener.Addr().String() + "/ping")
	require.NoError(t, err)
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, "pong", string(body))
}

func TestHttpConfig_Enabled(t *testing.T) {
	assert.False(t, HttpConfig{}.Enabled())
	assert.True(t, HttpConfig{Port: 9615}.Enabled())
}
