package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/centavo-app/centavo/internal/ledger/engine"
	"github.com/centavo-app/centavo/internal/ledger/model"
	"github.com/centavo-app/centavo/internal/ledger/outbox"
	"github.com/coder/websocket"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	server := NewServer(&Config{
		Port:   0, // Use random available port
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	time.Sleep(100 * time.Millisecond)
	return server
}

func dialAndWelcome(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	// Read welcome message
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal welcome: %v", err)
	}
	if msg.Type != MessageTypeQueue {
		t.Errorf("Expected welcome type %s, got %s", MessageTypeQueue, msg.Type)
	}
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

func TestServerStartStop(t *testing.T) {
	server := newTestServer(t)

	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialAndWelcome(t, ctx, server)

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestMessageBroadcast(t *testing.T) {
	server := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialAndWelcome(t, ctx, server)

	dataJSON, _ := json.Marshal(EntryData{
		EntryID:  7,
		Kind:     "expense",
		Op:       "create",
		RecordID: 42,
		Outcome:  "synced",
	})
	server.Broadcast(Message{
		Type:      MessageTypeEntry,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeEntry {
		t.Errorf("Expected message type %s, got %s", MessageTypeEntry, msg.Type)
	}

	var entry EntryData
	if err := json.Unmarshal(msg.Data, &entry); err != nil {
		t.Fatalf("Failed to unmarshal entry data: %v", err)
	}
	if entry.EntryID != 7 || entry.Outcome != "synced" {
		t.Errorf("Entry data mismatch: %+v", entry)
	}
}

func TestHandlerEntryEvents(t *testing.T) {
	server := newTestServer(t)
	handler := NewHandler(server, nil, log.New(os.Stderr, "[test-handler] ", log.LstdFlags))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialAndWelcome(t, ctx, server)

	entry := outbox.Entry{
		ID:       3,
		Kind:     model.KindExpense,
		Op:       model.OpCreate,
		RecordID: 9,
	}
	handler.EntryFailed(entry, 2, errors.New("gateway unavailable"))

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeEntry {
		t.Fatalf("Expected entry message, got %s", msg.Type)
	}

	var data EntryData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal entry data: %v", err)
	}
	if data.Outcome != "failed" || data.Attempts != 2 || data.Error == "" {
		t.Errorf("Unexpected entry data: %+v", data)
	}
}

func TestHandlerDrainFinished(t *testing.T) {
	server := newTestServer(t)
	handler := NewHandler(server, nil, log.New(os.Stderr, "[test-handler] ", log.LstdFlags))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialAndWelcome(t, ctx, server)

	handler.DrainFinished(engine.Result{Synced: 4, Skipped: 1, Failed: 2})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeDrain {
		t.Fatalf("Expected drain message, got %s", msg.Type)
	}

	var data DrainData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal drain data: %v", err)
	}
	if data.Phase != "finished" || data.Synced != 4 || data.Skipped != 1 || data.Failed != 2 {
		t.Errorf("Unexpected drain data: %+v", data)
	}
}

func TestHandlerConnectivity(t *testing.T) {
	server := newTestServer(t)
	handler := NewHandler(server, nil, log.New(os.Stderr, "[test-handler] ", log.LstdFlags))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialAndWelcome(t, ctx, server)

	handler.OnConnectivity(false)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeConnectivity {
		t.Fatalf("Expected connectivity message, got %s", msg.Type)
	}

	var data ConnectivityData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal connectivity data: %v", err)
	}
	if data.Online {
		t.Error("Expected offline transition")
	}
}
