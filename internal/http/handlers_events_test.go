package httpx

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compudrive/drivebench/internal/domain/model"
	"github.com/compudrive/drivebench/internal/notify"
)

func TestEventStream(t *testing.T) {
	hub := notify.NewHub(nil)
	router := newTestRouter(t, RouterServices{Hub: hub})

	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() {
		_ = conn.Close()
		_ = resp.Body.Close()
	}()

	// Give the handler a moment to register its subscription.
	time.Sleep(50 * time.Millisecond)

	hub.PublishTest(context.Background(), notify.TestEvent{
		JobID:           "job-1",
		Device:          "/dev/sdb",
		Serial:          "WD-1",
		TestType:        model.TestTypeSmartShort,
		State:           model.TestStateRunning,
		ProgressPercent: 10,
		CurrentStep:     "starting self-test",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var ev notify.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, notify.KindTestProgress, ev.Kind)
	require.NotNil(t, ev.Test)
	assert.Equal(t, "job-1", ev.Test.JobID)
	assert.Equal(t, model.TestStateRunning, ev.Test.State)
}

func TestEventStreamMultipleSubscribers(t *testing.T) {
	hub := notify.NewHub(nil)
	router := newTestRouter(t, RouterServices{Hub: hub})

	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "/api/events"

	conns := make([]*websocket.Conn, 0, 2)
	for range 2 {
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer func() {
			_ = conn.Close()
			_ = resp.Body.Close()
		}()
		conns = append(conns, conn)
	}

	time.Sleep(50 * time.Millisecond)

	hub.PublishData(context.Background(), notify.KindDrivesUpdated, map[string]any{"count": 3})

	for _, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var ev notify.Event
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, notify.KindDrivesUpdated, ev.Kind)
	}
}
