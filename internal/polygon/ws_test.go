package polygon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newHeadsServer upgrades connections, confirms the subscription, and pushes
// the given head numbers.
func newHeadsServer(t *testing.T, heads []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Method != "eth_subscribe" {
			t.Errorf("method = %s, want eth_subscribe", req.Method)
		}

		conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0xsub1",
		})

		for _, head := range heads {
			conn.WriteJSON(map[string]any{
				"jsonrpc": "2.0",
				"method":  "eth_subscription",
				"params": map[string]any{
					"subscription": "0xsub1",
					"result":       map[string]string{"number": head},
				},
			})
		}

		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHeadSubscriberReceivesHeads(t *testing.T) {
	srv := newHeadsServer(t, []string{"0x10", "0x11"})
	defer srv.Close()

	sub := NewHeadSubscriber(wsURL(srv))
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sub.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sub.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for _, want := range []uint64{16, 17} {
		got, err := sub.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != want {
			t.Errorf("head = %d, want %d", got, want)
		}
	}
}

func TestHeadSubscriberSubscribeRejected(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": -32601, "message": "subscriptions not supported"},
		})
	}))
	defer srv.Close()

	sub := NewHeadSubscriber(wsURL(srv))
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sub.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sub.Subscribe(ctx); err == nil {
		t.Fatalf("Subscribe should surface the rejection")
	}
}

func TestHeadSubscriberCloseIsIdempotent(t *testing.T) {
	srv := newHeadsServer(t, nil)
	defer srv.Close()

	sub := NewHeadSubscriber(wsURL(srv))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sub.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestHeadSubscriberSkipsForeignMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0xsub1"})

		// An unrelated response should be skipped by Next.
		conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 99, "result": "0xother"})
		conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0",
			"method":  "eth_subscription",
			"params": map[string]any{
				"subscription": "0xsub1",
				"result":       map[string]string{"number": "0x2a"},
			},
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sub := NewHeadSubscriber(wsURL(srv))
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sub.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sub.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	head, err := sub.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if head != 42 {
		t.Errorf("head = %d, want 42", head)
	}
}
