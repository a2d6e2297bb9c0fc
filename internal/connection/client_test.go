package connection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/clusteradmin/internal/actor"
	"github.com/rickgao/clusteradmin/internal/admin"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func testClientConfig(server *httptest.Server) ClientConfig {
	return ClientConfig{
		URL:          wsURL(server),
		PingTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Just keep the connection open
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}

	if err := client.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestClient_SendRequest(t *testing.T) {
	var received []byte
	var mu sync.Mutex

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	join := admin.Join{Node: actor.NodeID{Name: "node2", Addr: "10.0.0.2:9000"}}
	if err := client.SendRequest(join); err != nil {
		t.Errorf("SendRequest failed: %v", err)
	}

	// Wait for message to be received
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	var wire map[string]any
	if err := json.Unmarshal(received, &wire); err != nil {
		t.Fatalf("received invalid JSON %q: %v", received, err)
	}
	if wire["type"] != "req" {
		t.Errorf("type = %v, want req", wire["type"])
	}

	f, err := admin.DecodeFrame(received)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if f.Request != join {
		t.Errorf("request = %#v, want %#v", f.Request, join)
	}
}

func TestClient_Replies(t *testing.T) {
	owner := actor.Pid{Name: OwnerName, Node: actor.NodeID{Name: "node1"}}
	replies := []admin.Frame{
		{Reply: admin.OkReply{}, CorrelationID: ptr(actor.RequestID(owner, 1, 0))},
		{Reply: admin.TimeoutReply{}, CorrelationID: ptr(actor.RequestID(owner, 1, 1))},
		{Reply: admin.ErrorReply{Message: admin.InvalidRequestMessage}, CorrelationID: ptr(actor.PidOnly(owner))},
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		// A non-reply frame is skipped by the client.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"req","req":{"kind":"get_config"}}`))
		for _, f := range replies {
			data, _ := admin.EncodeFrame(f)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
		// Keep connection open
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	timeout := time.After(time.Second)
	for i, want := range replies {
		select {
		case got := <-client.Replies():
			if got.Reply != want.Reply {
				t.Errorf("reply %d = %#v, want %#v", i, got.Reply, want.Reply)
			}
			if got.CorrelationID == nil || got.CorrelationID.String() != want.CorrelationID.String() {
				t.Errorf("reply %d correlation = %v, want %v", i, got.CorrelationID, want.CorrelationID)
			}
			if got.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for reply %d", i)
		}
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.URL = "ws://localhost:12345"

	client := NewClient(cfg, nil)

	if err := client.SendRequest(admin.GetConfig{}); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// First close should succeed
	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}

	// Second close should be no-op
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestClient_PingHandler(t *testing.T) {
	pongs := make(chan string, 1)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.SetPongHandler(func(data string) error {
			pongs <- data
			return nil
		})
		if err := conn.WriteControl(websocket.PingMessage, []byte("heartbeat"), time.Now().Add(time.Second)); err != nil {
			t.Logf("ping error: %v", err)
			return
		}
		// Control frames are processed inside ReadMessage.
		conn.SetReadDeadline(time.Now().Add(time.Second))
		conn.ReadMessage()
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case data := <-pongs:
		if data != "heartbeat" {
			t.Errorf("pong data = %q, want %q", data, "heartbeat")
		}
	case <-time.After(time.Second):
		t.Fatal("no pong received")
	}

	if !client.IsConnected() {
		t.Error("expected client to be connected after ping")
	}
}

func TestClient_StaleConnection(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Never ping.
		time.Sleep(time.Second)
	})
	defer server.Close()

	cfg := testClientConfig(server)
	cfg.PingTimeout = 40 * time.Millisecond

	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if !errors.Is(err, ErrStaleConnection) {
			t.Errorf("error = %v, want ErrStaleConnection", err)
		}
	case <-time.After(time.Second):
		t.Fatal("stale connection not reported")
	}
}

func TestDefaultConfigs(t *testing.T) {
	sc := DefaultServerConfig()
	if sc.PongTimeout <= sc.PingInterval {
		t.Errorf("PongTimeout %v should exceed PingInterval %v", sc.PongTimeout, sc.PingInterval)
	}
	if sc.MailboxSize < 1 || sc.ReadLimit < 1 {
		t.Errorf("server config = %+v, want positive mailbox and read limit", sc)
	}

	cc := DefaultClientConfig()
	if cc.PingTimeout <= 0 || cc.WriteTimeout <= 0 || cc.BufferSize <= 0 {
		t.Errorf("client config = %+v, want positive values", cc)
	}
}

func ptr[T any](v T) *T {
	return &v
}
