package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tradedesk/internal/config"
	"github.com/ajitpratap0/tradedesk/internal/market"
	"github.com/ajitpratap0/tradedesk/internal/notifications"
)

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, *testEnv) {
	t.Helper()

	env := newTestEnv(t, func(c *Config) { c.Hub = hub })
	srv := httptest.NewServer(env.server.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	return conn, env
}

func runHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestHub_SnapshotOnConnect(t *testing.T) {
	hub := runHub(t)
	hub.SetSnapshot(func() interface{} { return map[string]string{"status": "DISCONNECTED"} })

	conn, _ := dialHub(t, hub)

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeSnapshot, msg.Type)
	assert.JSONEq(t, `{"status":"DISCONNECTED"}`, string(msg.Data))
}

func TestHub_BroadcastsPricesAndNotifications(t *testing.T) {
	hub := runHub(t)
	conn, _ := dialHub(t, hub)

	var _ market.PriceSink = hub
	var _ notifications.Notifier = hub
	assert.Equal(t, "websocket", hub.Name())

	prices := []market.SymbolPrice{{Symbol: "BTCUSDT", Price: decimal.RequireFromString("27350.45"), Direction: market.DirectionUp}}
	require.NoError(t, hub.PublishPrices(context.Background(), prices))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypePrices, msg.Type)
	var got []market.SymbolPrice
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	require.Len(t, got, 1)
	assert.True(t, got[0].Price.Equal(prices[0].Price))

	require.NoError(t, hub.Notify(context.Background(), notifications.Success(notifications.OperationConnect, "Connected")))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageTypeNotification, msg.Type)
	var note notifications.Notification
	require.NoError(t, json.Unmarshal(msg.Data, &note))
	assert.Equal(t, notifications.OperationConnect, note.Operation)
}

func TestHub_PingPong(t *testing.T) {
	hub := runHub(t)
	conn, _ := dialHub(t, hub)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing, Timestamp: time.Now(), Data: json.RawMessage(`{}`)}))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("garbage")))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := runHub(t)
	conn, _ := dialHub(t, hub)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	hub := NewHub() // not running, nothing drains the queue

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			_ = hub.Broadcast(MessageTypePrices, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a full queue")
	}
}

func TestHub_RunStopsWithContext(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_AsFeedSink(t *testing.T) {
	hub := runHub(t)
	conn, _ := dialHub(t, hub)

	feed := market.NewFeed(config.FeedConfig{Interval: time.Hour, MaxMove: 0.001}, market.WithSinks(hub))
	feed.Start(context.Background())
	defer feed.Stop()

	require.True(t, feed.Tick())
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypePrices, msg.Type)
}
