package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubShutdownReleasesClientPumps(t *testing.T) {
	hub := NewHub(testLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	before := runtime.NumGoroutine()
	conn := dialHub(t, srv)

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// Shutdown closes the client's send queue, the write pump emits a close
	// frame, and the read pump must exit even though nothing receives
	// unregisters anymore.
	_, _, readErr := conn.ReadMessage()
	require.Error(t, readErr)
	_ = conn.Close()

	require.Eventually(t, func() bool { return runtime.NumGoroutine() < before },
		2*time.Second, 10*time.Millisecond)
}

func TestHubRejectsConnectionsAfterShutdown(t *testing.T) {
	hub := NewHub(testLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	cancel()
	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// The upgrade still succeeds but registration must not block; the hub
	// closes the connection instead.
	conn := dialHub(t, srv)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}
