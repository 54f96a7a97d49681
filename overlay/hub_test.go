package overlay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return env
}

func TestHub_ReplaysStickyThenBroadcasts(t *testing.T) {
	h := NewHub("process-health")
	h.Emit("process-health", map[string]string{"state": "running"})
	h.Emit("gaze-position", map[string]float64{"x": 1})

	conn := dial(t, h)

	env := readEnvelope(t, conn)
	if env.Event != "process-health" || !strings.Contains(string(env.Data), "running") {
		t.Fatalf("replayed = %+v", env)
	}

	h.Emit("response-delta", "hello")
	env = readEnvelope(t, conn)
	if env.Event != "response-delta" {
		t.Fatalf("event = %q, want response-delta", env.Event)
	}
	var text string
	if err := json.Unmarshal(env.Data, &text); err != nil || text != "hello" {
		t.Errorf("data = %s", env.Data)
	}
}

func TestHub_Commands(t *testing.T) {
	h := NewHub()
	got := make(chan string, 1)
	h.OnCommand(func(cmd string) { got <- cmd })

	conn := dial(t, h)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(Command{Command: "dismiss"}); err != nil {
		t.Fatal(err)
	}

	select {
	case cmd := <-got:
		if cmd != "dismiss" {
			t.Errorf("command = %q", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command not dispatched")
	}
}

func TestHub_RemovesClosedClient(t *testing.T) {
	h := NewHub()
	conn := dial(t, h)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not removed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.Emit("countdown", 100)
}

func TestHub_Healthz(t *testing.T) {
	w := httptest.NewRecorder()
	NewHub().Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
}
