package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

type chanBus struct {
	ch chan []byte
}

func (b *chanBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.ch <- payload
	return nil
}

func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}

func startHub(t *testing.T) (*chanBus, *httptest.Server) {
	t.Helper()
	bus := &chanBus{ch: make(chan []byte, 8)}
	hub := NewHub(bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return bus, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// The hello frame means the hub has registered the client.
	var hello map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "hello", hello["type"])
	return conn
}

func event(t *testing.T, symbol string) []byte {
	t.Helper()
	b, err := json.Marshal(domain.AssetUpdated{
		Type:  domain.EventAssetUpdated,
		Asset: domain.NewTrackedAsset(symbol, symbol),
	})
	require.NoError(t, err)
	return b
}

func TestHub_ForwardsUpdates(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "")

	require.NoError(t, bus.Publish(context.Background(), domain.AssetUpdatesChannel, event(t, "CRV")))

	var got domain.AssetUpdated
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, domain.EventAssetUpdated, got.Type)
	assert.Equal(t, "CRV", got.Asset.Symbol)
}

func TestHub_SymbolFilter(t *testing.T) {
	bus, srv := startHub(t)
	conn := dial(t, srv, "?symbols=crvUSD")

	require.NoError(t, bus.Publish(context.Background(), domain.AssetUpdatesChannel, event(t, "CRV")))
	require.NoError(t, bus.Publish(context.Background(), domain.AssetUpdatesChannel, event(t, "crvUSD")))

	var got domain.AssetUpdated
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "crvUSD", got.Asset.Symbol)
}

// flakyBus fails Subscribe until it has been called failures+1 times.
type flakyBus struct {
	chanBus
	failures int32
	calls    atomic.Int32
}

func (b *flakyBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if b.calls.Add(1) <= b.failures {
		return nil, errors.New("connection refused")
	}
	return b.chanBus.Subscribe(ctx, channel)
}

func TestHub_RetriesFailedSubscribe(t *testing.T) {
	bus := &flakyBus{chanBus: chanBus{ch: make(chan []byte, 8)}, failures: 2}
	hub := NewHub(bus, nil)
	hub.retryMin = 5 * time.Millisecond
	hub.retryMax = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	conn := dial(t, srv, "")

	require.NoError(t, bus.Publish(context.Background(), domain.AssetUpdatesChannel, event(t, "CRV")))

	var got domain.AssetUpdated
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "CRV", got.Asset.Symbol)
	assert.Equal(t, int32(3), bus.calls.Load())

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop after cancel")
	}
}

func TestClient_Apply(t *testing.T) {
	c := &client{symbols: map[string]bool{}}
	assert.True(t, c.wants("CRV"))

	c.apply(subscribeMsg{Action: "subscribe", Symbols: []string{"CRV"}})
	assert.True(t, c.wants("CRV"))
	assert.False(t, c.wants("crvUSD"))

	c.apply(subscribeMsg{Action: "unsubscribe", Symbols: []string{"CRV"}})
	assert.True(t, c.wants("crvUSD"))
}

func TestSymbolOf(t *testing.T) {
	assert.Equal(t, "CRV", symbolOf(event(t, "CRV")))
	assert.Equal(t, "", symbolOf([]byte("not json")))
}
