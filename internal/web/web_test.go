package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wes-simulator/internal/config"
	"wes-simulator/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCache struct{ refreshed int }

func (f *fakeCache) Refresh() { f.refreshed++ }

func newTestRouter(t *testing.T) (http.Handler, *config.ToggleStore, *fakeCache, *ActivityTracker) {
	t.Helper()
	toggles := config.NewToggleStore(config.Toggles{})
	cache := &fakeCache{}
	activity := NewActivityTracker(nil, 10)
	router := NewControlRouter(ControlDeps{
		Toggles:    toggles,
		Containers: cache,
		Activity:   activity,
		Logger:     discardLogger(),
	})
	return router, toggles, cache, activity
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestControl_GetConfig(t *testing.T) {
	router, toggles, _, _ := newTestRouter(t)
	toggles.Set(config.Toggles{Picking: true})

	w := do(t, router, http.MethodGet, "/mock/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"openMockContainerArrived": false,
		"openMockCreateInboundPlanOrder": false,
		"openMockCreateOutboundPlanOrder": false,
		"openMockInboundOrderAcceptance": false,
		"openMockCompleteAcceptOrder": false,
		"openMockPicking": true
	}`, w.Body.String())
}

func TestControl_PartialUpdate(t *testing.T) {
	router, toggles, _, _ := newTestRouter(t)
	toggles.Set(config.Toggles{Picking: true})

	w := do(t, router, http.MethodPut, "/mock/config", `{"openMockContainerArrived": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, config.Toggles{ContainerArrived: true, Picking: true}, toggles.Snapshot())

	w = do(t, router, http.MethodPut, "/mock/config", `{"openMockPicking": false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, config.Toggles{ContainerArrived: true}, toggles.Snapshot())
}

func TestControl_BadBody(t *testing.T) {
	router, toggles, _, _ := newTestRouter(t)
	w := do(t, router, http.MethodPut, "/mock/config", `{"openMockPicking": "yes"`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, config.Toggles{}, toggles.Snapshot())
}

func TestControl_AllOn(t *testing.T) {
	router, toggles, _, _ := newTestRouter(t)
	w := do(t, router, http.MethodPost, "/mock/config/all", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, config.AllOn(), toggles.Snapshot())
}

func TestControl_RefreshContainers(t *testing.T) {
	router, _, cache, _ := newTestRouter(t)
	w := do(t, router, http.MethodPost, "/mock/containers/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, cache.refreshed)
}

func TestControl_ActivityAndMetrics(t *testing.T) {
	router, _, _, activity := newTestRouter(t)
	activity.RecordTick("picking", "ok", "t1", 0.2, nil)

	w := do(t, router, http.MethodGet, "/api/activity", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap ActivitySnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "ok", snap.Jobs["picking"].Outcome)

	w = do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestActivityTracker_Ring(t *testing.T) {
	a := NewActivityTracker(nil, 3)
	for i := 0; i < 5; i++ {
		a.RecordCommand(types.CommandRecord{Command: string(rune('a' + i))})
	}
	snap := a.Snapshot()
	require.Len(t, snap.Commands, 3)
	assert.Equal(t, "c", snap.Commands[0].Command)
	assert.Equal(t, "e", snap.Commands[2].Command)
}

func TestActivityTracker_Ticks(t *testing.T) {
	a := NewActivityTracker(nil, 3)
	a.RecordTick("arrival", "running", "t1", 0, nil)
	a.RecordTick("arrival", "error", "t1", 0.5, errors.New("boom"))
	a.RecordTick("arrival", "running", "t2", 0, nil)

	status := a.Snapshot().Jobs["arrival"]
	assert.Equal(t, int64(2), status.Ticks)
	assert.Equal(t, "running", status.Outcome)
	assert.Empty(t, status.Error)
}

func TestHub_BroadcastToClient(t *testing.T) {
	hub := NewHub(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	activity := NewActivityTracker(hub, 5)
	activity.RecordCommand(types.CommandRecord{Command: "INPUT", OK: true})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"INPUT"`)
}

func TestHub_ReadersExitAfterRunStops(t *testing.T) {
	hub := NewHub(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	<-stopped

	readersDone := make(chan struct{})
	go func() {
		hub.readers.Wait()
		close(readersDone)
	}()
	select {
	case <-readersDone:
	case <-time.After(2 * time.Second):
		t.Fatal("读协程在 Run 退出后没有结束")
	}

	// Run 退出后的新连接直接被关闭，处理函数不会阻塞
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer late.Close()
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = late.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "连接应被服务端关闭而不是读超时")
	}
}
