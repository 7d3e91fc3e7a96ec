package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/events"
)

// signalingBus reports when the hub has subscribed.
type signalingBus struct {
	*events.LocalBus
	subscribed chan struct{}
}

func (b *signalingBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch, err := b.LocalBus.Subscribe(ctx, channel)
	close(b.subscribed)
	return ch, err
}

func publish(t *testing.T, bus domain.SignalBus, ev domain.Event) {
	t.Helper()
	payload, err := events.Encode(ev)
	require.NoError(t, err)
	require.NoError(t, bus.StreamAppend(context.Background(), events.Stream, payload))
	require.NoError(t, bus.Publish(context.Background(), events.Channel, payload))
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubRelaysFilteredEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := &signalingBus{LocalBus: events.NewLocalBus(), subscribed: make(chan struct{})}
	hub := NewHub(bus, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run(ctx)
	<-bus.subscribed

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv, "format=json&order=7")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	publish(t, bus, domain.Event{ID: "a", Type: domain.EventOrderListed, OrderID: 8})
	publish(t, bus, domain.Event{ID: "b", Type: domain.EventHighestBidChanged, OrderID: 7, Amount: big.NewInt(26)})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)

	var got eventJSON
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, "b", got.ID)
	require.Equal(t, uint64(7), got.OrderID)
	require.Equal(t, "26", got.Amount)
}

func TestHubReplaysStreamAsBinary(t *testing.T) {
	bus := events.NewLocalBus()
	publish(t, bus, domain.Event{ID: "old", Type: domain.EventOrderSold, OrderID: 3})

	hub := NewHub(bus, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv, "since=0")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)

	ev, err := events.Decode(data)
	require.NoError(t, err)
	require.Equal(t, "old", ev.ID)
	require.Equal(t, domain.EventOrderSold, ev.Type)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://market.example"})
	ok := httptest.NewRequest("GET", "/ws", nil)
	ok.Header.Set("Origin", "https://market.example")
	bad := httptest.NewRequest("GET", "/ws", nil)
	bad.Header.Set("Origin", "https://evil.example")

	require.True(t, check(ok))
	require.False(t, check(bad))
	require.True(t, originChecker(nil)(bad))
}
