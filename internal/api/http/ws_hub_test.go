package apihttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"newsreel/discoveryservice/internal/domain"
)

// ---- helpers ----

func startTestHub(t *testing.T) *wsHub {
	t.Helper()
	hub := newWSHub(discardLogger())
	go hub.run()
	t.Cleanup(hub.Close)
	return hub
}

func unregisterAll(hub *wsHub, clients ...*wsClient) {
	for _, client := range clients {
		hub.unregister <- client
	}
	time.Sleep(20 * time.Millisecond)
}

func dialWS(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	return conn
}

func readWSMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal ws message: %v", err)
	}
	return msg
}

// ---- tests ----

func TestHubRegisterAndUnregister(t *testing.T) {
	hub := startTestHub(t)

	client := &wsClient{hub: hub, send: make(chan []byte, 4)}
	hub.register <- client
	time.Sleep(20 * time.Millisecond)
	if got := hub.clientCount(); got != 1 {
		t.Fatalf("client count = %d, want 1", got)
	}

	hub.unregister <- client
	time.Sleep(20 * time.Millisecond)
	if got := hub.clientCount(); got != 0 {
		t.Fatalf("client count = %d, want 0", got)
	}
	select {
	case _, open := <-client.send:
		if open {
			t.Error("send channel should be closed after unregister")
		}
	default:
		t.Error("send channel should be closed, not empty and open")
	}
}

func TestHubBroadcastFansOut(t *testing.T) {
	hub := startTestHub(t)

	first := &wsClient{hub: hub, send: make(chan []byte, 4)}
	second := &wsClient{hub: hub, send: make(chan []byte, 4)}
	hub.register <- first
	hub.register <- second
	time.Sleep(20 * time.Millisecond)

	hub.BroadcastProgress(domain.ProgressEvent{RunID: "run-1", Stage: domain.StagePlanning, Percent: 5})
	time.Sleep(50 * time.Millisecond)

	for name, client := range map[string]*wsClient{"first": first, "second": second} {
		select {
		case raw := <-client.send:
			var msg wsMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				t.Fatalf("%s: unmarshal: %v", name, err)
			}
			if msg.Type != "progress" {
				t.Errorf("%s: type = %q, want progress", name, msg.Type)
			}
			if !strings.Contains(string(raw), `"runId":"run-1"`) {
				t.Errorf("%s: payload missing run id: %s", name, raw)
			}
		default:
			t.Errorf("%s client received no message", name)
		}
	}

	unregisterAll(hub, first, second)
}

func TestHubBroadcastSkipsWithNoClients(t *testing.T) {
	hub := startTestHub(t)

	hub.Broadcast("progress", domain.ProgressEvent{RunID: "run-1"})

	select {
	case msg := <-hub.broadcast:
		t.Fatalf("unexpected queued message with no clients: %s", msg)
	default:
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := startTestHub(t)

	// Unbuffered send channel that nobody reads.
	slow := &wsClient{hub: hub, send: make(chan []byte)}
	hub.register <- slow
	time.Sleep(20 * time.Millisecond)

	hub.BroadcastProgress(domain.ProgressEvent{RunID: "run-1", Stage: domain.StageSearching, Percent: 40})
	time.Sleep(50 * time.Millisecond)

	if got := hub.clientCount(); got != 0 {
		t.Fatalf("client count = %d, want 0 after dropping slow client", got)
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := newWSHub(discardLogger())
	go hub.run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := &wsClient{hub: hub, conn: conn, send: make(chan []byte, 16)}
		hub.register <- client
		go client.writePump()
		go client.readPump()
	}))
	defer srv.Close()

	conn := dialWS(t, srv.URL)
	defer conn.Close()
	time.Sleep(30 * time.Millisecond)
	if got := hub.clientCount(); got != 1 {
		t.Fatalf("client count = %d, want 1", got)
	}

	hub.Close()
	time.Sleep(50 * time.Millisecond)
	if got := hub.clientCount(); got != 0 {
		t.Fatalf("client count = %d, want 0 after close", got)
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected read error after hub close")
	}
}

func TestEventsEndpointStreamsProgress(t *testing.T) {
	eng := &fakeEngine{}
	srv := newTestServer(t, eng)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts.URL+"/events")
	defer conn.Close()
	time.Sleep(30 * time.Millisecond)

	eng.publish(domain.ProgressEvent{
		RunID:   "run-5",
		Stage:   domain.StageSearching,
		Percent: 40,
		At:      time.Now().UTC(),
	})

	msg := readWSMessage(t, conn)
	if msg.Type != "progress" {
		t.Fatalf("type = %q, want progress", msg.Type)
	}
	payload, ok := msg.Data.(map[string]any)
	if !ok || payload["runId"] != "run-5" {
		t.Fatalf("unexpected payload: %#v", msg.Data)
	}
}
