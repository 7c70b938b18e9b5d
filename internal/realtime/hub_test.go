package realtime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func subscribe(t *testing.T, conn *websocket.Conn, userID, mapID string) {
	t.Helper()
	if userID != "" {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "identify", "userId": userID}))
	}
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "mapId": mapID}))
	time.Sleep(50 * time.Millisecond)
}

func TestBroadcastReachesSubscribedClient(t *testing.T) {
	hub, srv := testHub(t)
	conn := dial(t, srv)
	subscribe(t, conn, "", "map-1")

	hub.Broadcast(Broadcast{Type: "map:change", MapID: "map-1", ChangeType: ChangePlacement, Action: ActionCreate}, "")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Broadcast
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "map-1", msg.MapID)
	require.Equal(t, ActionCreate, msg.Action)
}

func TestBroadcastSkipsUnsubscribedClient(t *testing.T) {
	hub, srv := testHub(t)
	conn := dial(t, srv)
	subscribe(t, conn, "", "map-other")

	hub.Broadcast(Broadcast{Type: "map:change", MapID: "map-1"}, "")

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg Broadcast
	err := conn.ReadJSON(&msg)
	require.Error(t, err)
}

func TestBroadcastExcludesOriginator(t *testing.T) {
	hub, srv := testHub(t)
	originator := dial(t, srv)
	subscribe(t, originator, "user-a", "map-1")
	other := dial(t, srv)
	subscribe(t, other, "user-b", "map-1")

	hub.Broadcast(Broadcast{Type: "map:change", MapID: "map-1", Action: ActionUpdate}, "user-a")

	originator.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg Broadcast
	require.Error(t, originator.ReadJSON(&msg))

	other.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, other.ReadJSON(&msg))
	require.Equal(t, ActionUpdate, msg.Action)
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	hub, srv := testHub(t)
	conn := dial(t, srv)
	subscribe(t, conn, "", "map-1")
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "unsubscribe", "mapId": "map-1"}))
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast(Broadcast{Type: "map:change", MapID: "map-1"}, "")

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg Broadcast
	require.Error(t, conn.ReadJSON(&msg))
}
