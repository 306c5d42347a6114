package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polyscan/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// handshakeTimeout bounds the WebSocket dial.
	handshakeTimeout = 15 * time.Second
)

// HeadSubscriber is a WebSocket client for the eth_subscribe("newHeads")
// push stream. One subscriber corresponds to one connection; after a
// transport failure the owner discards it and dials a fresh one.
type HeadSubscriber struct {
	wssURL string
	conn   *websocket.Conn
	reqID  atomic.Uint64

	mu     sync.Mutex
	closed bool

	// done is closed when the subscriber is shut down.
	done chan struct{}
}

// NewHeadSubscriber creates a subscriber for the given WebSocket URL.
func NewHeadSubscriber(wssURL string) *HeadSubscriber {
	return &HeadSubscriber{
		wssURL: wssURL,
		done:   make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the keep-alive
// ping loop.
func (s *HeadSubscriber) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("polygon/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, s.wssURL, nil)
	if err != nil {
		return fmt.Errorf("polygon/ws: connect: %w", err)
	}

	s.conn = conn

	// Set up pong handler for keep-alive.
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.pingLoop()

	return nil
}

// wsMessage is the union of a JSON-RPC response and a subscription
// notification as delivered over the socket.
type wsMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Method string          `json:"method"`
	Params *struct {
		Subscription string `json:"subscription"`
		Result       struct {
			Number string `json:"number"`
		} `json:"result"`
	} `json:"params"`
}

// Subscribe issues the newHeads subscription request and waits for its
// confirmation before returning.
func (s *HeadSubscriber) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("polygon/ws: %w", domain.ErrNotConnected)
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      s.reqID.Add(1),
		Method:  "eth_subscribe",
		Params:  []any{"newHeads"},
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("polygon/ws: subscribe: %w", err)
	}

	// Await the confirmation carrying our request ID.
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("polygon/ws: subscribe confirmation: %w", err)
		}
		if msg.ID != req.ID {
			continue
		}
		if msg.Error != nil {
			return fmt.Errorf("polygon/ws: subscribe rejected: %w", msg.Error)
		}
		return nil
	}
}

// Next blocks until the next newHeads notification and returns its block
// number. Any read failure means the connection is unusable.
func (s *HeadSubscriber) Next() (uint64, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return 0, fmt.Errorf("polygon/ws: %w", domain.ErrNotConnected)
	}

	for {
		select {
		case <-s.done:
			return 0, domain.ErrMonitorStopped
		default:
		}

		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
				return 0, domain.ErrMonitorStopped
			default:
			}
			return 0, fmt.Errorf("polygon/ws: read: %w", err)
		}

		if msg.Method != "eth_subscription" || msg.Params == nil {
			continue
		}

		number, err := hexutil.DecodeUint64(msg.Params.Result.Number)
		if err != nil {
			return 0, fmt.Errorf("polygon/ws: parse head number %q: %w", msg.Params.Result.Number, err)
		}
		return number, nil
	}
}

// Close tears down the connection. It is idempotent; unsubscribe is not sent,
// disconnect alone ends the stream.
func (s *HeadSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	close(s.done)

	if s.conn != nil {
		_ = s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return s.conn.Close()
	}

	return nil
}

// pingLoop sends periodic pings until the subscriber is closed.
func (s *HeadSubscriber) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
