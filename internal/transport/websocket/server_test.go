package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// startHub serves the hub on a test server; the user id comes from ?user_id=.
func startHub(t *testing.T) (*Hub, string, context.CancelFunc) {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
		hub.HandleWebSocket(w, r, id)
	}))
	t.Cleanup(server.Close)
	t.Cleanup(cancel)

	return hub, "ws" + server.URL[4:], cancel
}

func dial(t *testing.T, base string, userID int64) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(base+"?user_id="+strconv.FormatInt(userID, 10), nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	return conn
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub, base, _ := startHub(t)

	conn := dial(t, base, 1)
	time.Sleep(100 * time.Millisecond)

	if users := hub.Users(); len(users) != 1 || users[0] != 1 {
		t.Fatalf("expected user 1 registered, got %v", users)
	}

	conn.Close()
	time.Sleep(100 * time.Millisecond)

	hub.mu.RLock()
	_, exists := hub.connections[1]
	hub.mu.RUnlock()
	if exists {
		t.Fatal("Connection should be unregistered")
	}
}

func TestHub_BroadcastReachesOnlyTargetUser(t *testing.T) {
	hub, base, _ := startHub(t)

	first := dial(t, base, 1)
	defer first.Close()
	second := dial(t, base, 1)
	defer second.Close()
	other := dial(t, base, 2)
	defer other.Close()
	time.Sleep(100 * time.Millisecond)

	hub.Broadcast(1, &Message{Type: "report_export_progress", Channel: "report_exports#1", Data: map[string]interface{}{"progress": 50}})

	for i, c := range []*websocket.Conn{first, second} {
		c.SetReadDeadline(time.Now().Add(time.Second))
		var received Message
		if err := c.ReadJSON(&received); err != nil {
			t.Fatalf("connection %d failed to read: %v", i, err)
		}
		if received.Type != "report_export_progress" || received.UserID != 1 {
			t.Fatalf("connection %d got %+v", i, received)
		}
	}

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var received Message
	if err := other.ReadJSON(&received); err == nil {
		t.Fatal("user 2 should not receive user 1 messages")
	}
}

func TestHub_BroadcastQueueFull(t *testing.T) {
	hub := NewHub()
	hub.broadcast = make(chan *Message, 1)

	hub.Broadcast(1, &Message{Type: "fill"})
	hub.Broadcast(1, &Message{Type: "dropped"})

	msg := <-hub.broadcast
	if msg.Type != "fill" {
		t.Fatalf("expected queued message to survive, got %s", msg.Type)
	}
	select {
	case msg := <-hub.broadcast:
		t.Fatalf("expected %s to be dropped", msg.Type)
	default:
	}
}

func TestHub_ShutdownClosesConnections(t *testing.T) {
	_, base, cancel := startHub(t)

	conn := dial(t, base, 1)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	cancel()
	time.Sleep(100 * time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("Expected connection to be closed after hub shutdown")
	}
}
