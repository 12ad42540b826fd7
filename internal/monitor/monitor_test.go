package monitor

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	lexisync "github.com/lexiflow/lexisync/internal/sync"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(&Config{
		Version: "v0.0.0-test",
		Tables:  func() []string { return []string{"Categories", "Users"} },
		Logger:  log.New(io.Discard, "", 0),
	})
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		_ = hub.Close()
	})
	return hub, srv
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestWebSocketWelcome(t *testing.T) {
	hub, srv := newTestHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv)
	msg := readMessage(t, ctx, conn)

	if msg.Type != MessageTypeWelcome {
		t.Fatalf("Expected welcome message type %s, got %s", MessageTypeWelcome, msg.Type)
	}
	var welcome WelcomeData
	if err := json.Unmarshal(msg.Data, &welcome); err != nil {
		t.Fatalf("Failed to unmarshal welcome data: %v", err)
	}
	if welcome.Version != "v0.0.0-test" || len(welcome.Tables) != 2 || welcome.Clients != 1 {
		t.Errorf("Unexpected welcome data: %+v", welcome)
	}

	if count := hub.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestMultipleClients(t *testing.T) {
	hub, srv := newTestHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	for i := 0; i < numClients; i++ {
		conn := dial(t, ctx, srv)
		readMessage(t, ctx, conn)
	}

	if count := hub.ClientCount(); count != numClients {
		t.Errorf("Expected %d clients, got %d", numClients, count)
	}
}

func TestHandlerBroadcastsSyncActivity(t *testing.T) {
	hub, srv := newTestHub(t)
	handler := NewHandler(hub, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv)
	readMessage(t, ctx, conn) // welcome

	handler.PushCompleted(lexisync.PushEvent{
		Table:     "Categories",
		Principal: "user-1",
		BatchSize: 3,
		Result: lexisync.ApplyResult{
			CreatedCount:  1,
			UpdatedCount:  1,
			ErrorCount:    1,
			ConflictCount: 1,
		},
		Duration: 12 * time.Millisecond,
	})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypePush {
		t.Fatalf("Expected %s message, got %s", MessageTypePush, msg.Type)
	}
	var push PushData
	if err := json.Unmarshal(msg.Data, &push); err != nil {
		t.Fatalf("Failed to unmarshal push data: %v", err)
	}
	if push.Table != "Categories" || push.Created != 1 || push.Conflicts != 1 || push.DurationMs != 12 {
		t.Errorf("Unexpected push data: %+v", push)
	}

	handler.PullCompleted(lexisync.PullEvent{Table: "Categories", Principal: "user-1", Count: 4})
	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypePull {
		t.Fatalf("Expected %s message, got %s", MessageTypePull, msg.Type)
	}

	totals := handler.Totals()
	want := Totals{Pulls: 1, Pushes: 1, EnvelopesServed: 4, EnvelopesApplied: 2, EnvelopesRejected: 1, Conflicts: 1}
	if totals != want {
		t.Errorf("Totals() = %+v, want %+v", totals, want)
	}
}

func TestClientDisconnect(t *testing.T) {
	hub, srv := newTestHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv)
	readMessage(t, ctx, conn)
	_ = conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected 0 clients after disconnect, got %d", hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcastAfterClose(t *testing.T) {
	hub := NewHub(&Config{Logger: log.New(io.Discard, "", 0)})
	if err := hub.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// Must not block or panic.
	hub.Broadcast(Message{Type: MessageTypePull})
}
