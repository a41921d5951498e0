package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ava-labs/backrunner/pkg/types"
)

func flashblock(block, index uint64) string {
	return `{"index":` + strconv.FormatUint(index, 10) +
		`,"diff":{"transactions":[]},"metadata":{"block_number":` + strconv.FormatUint(block, 10) + `}}`
}

// wsServer runs handler for every accepted connection and counts them.
func wsServer(t *testing.T, handler func(conn *websocket.Conn, n int)) (string, *atomic.Int32) {
	t.Helper()
	var connections atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn, int(connections.Add(1)))
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), &connections
}

func receive(t *testing.T, out <-chan types.UpdateEvent) types.UpdateEvent {
	t.Helper()
	select {
	case ev := <-out:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for update")
		return types.UpdateEvent{}
	}
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil, Config{URL: "ws://localhost"})
	require.ErrorContains(t, err, "invalid logger")

	_, err = NewClient(zaptest.NewLogger(t).Sugar(), Config{})
	require.ErrorContains(t, err, "invalid url")

	c, err := NewClient(zaptest.NewLogger(t).Sugar(), Config{URL: "ws://localhost", MaxBackoff: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, DefaultMinBackoff, c.cfg.MinBackoff)
	assert.Equal(t, DefaultMaxBackoff, c.cfg.MaxBackoff)
	assert.Equal(t, DefaultReadTimeout, c.cfg.ReadTimeout)
}

func TestClient_Subscribe_DecodesAndSkips(t *testing.T) {
	t.Parallel()

	compressed := compress(t, []byte(flashblock(10, 1)))
	url, _ := wsServer(t, func(conn *websocket.Conn, _ int) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(flashblock(10, 0)))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte(`{"index": `))
		_ = conn.WriteMessage(websocket.BinaryMessage, compressed)
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte(flashblock(10, 2)))
		_, _, _ = conn.ReadMessage()
	})

	core, logs := observer.New(zap.WarnLevel)
	c, err := NewClient(zap.New(core).Sugar(), Config{URL: url})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	out := make(chan types.UpdateEvent)
	done := make(chan error, 1)
	go func() { done <- c.Subscribe(ctx, out) }()

	for want := uint64(0); want < 3; want++ {
		ev := receive(t, out)
		assert.Equal(t, uint64(10), ev.BlockNumber)
		assert.Equal(t, want, ev.Index)
	}
	assert.Equal(t, 1, logs.FilterMessage("skipping undecodable flashblock").Len())

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}

func TestClient_Subscribe_Reconnects(t *testing.T) {
	t.Parallel()

	url, connections := wsServer(t, func(conn *websocket.Conn, n int) {
		// Each connection delivers one flashblock and then drops.
		_ = conn.WriteMessage(websocket.TextMessage, []byte(flashblock(20, uint64(n-1))))
	})

	core, logs := observer.New(zap.WarnLevel)
	c, err := NewClient(zap.New(core).Sugar(), Config{
		URL:        url,
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	out := make(chan types.UpdateEvent)
	go func() { _ = c.Subscribe(ctx, out) }()

	assert.Equal(t, uint64(0), receive(t, out).Index)
	assert.Equal(t, uint64(1), receive(t, out).Index)
	assert.Equal(t, uint64(2), receive(t, out).Index)
	assert.GreaterOrEqual(t, connections.Load(), int32(3))
	assert.GreaterOrEqual(t, logs.FilterMessage("flashblocks connection lost, reconnecting").Len(), 2)
}

func TestClient_Subscribe_DialFailureHonorsContext(t *testing.T) {
	t.Parallel()

	c, err := NewClient(zaptest.NewLogger(t).Sugar(), Config{
		URL:        "ws://127.0.0.1:1",
		MinBackoff: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = c.Subscribe(ctx, make(chan types.UpdateEvent))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
