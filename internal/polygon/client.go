// Package polygon is the JSON-RPC gateway to the Polygon chain: a
// request/response HTTP client and a newHeads WebSocket subscriber.
package polygon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ClientConfig holds the HTTP gateway's endpoint and request policy.
type ClientConfig struct {
	HTTPURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Client issues JSON-RPC calls over HTTP with per-call timeout and bounded
// exponential-backoff retry. Each Client owns its own request-ID sequence.
type Client struct {
	httpURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	reqID      atomic.Uint64
	logger     *slog.Logger
}

// RPCError is a JSON-RPC error envelope returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewClient creates a gateway client. MaxRetries counts attempts, not
// re-attempts: MaxRetries=3 means at most three calls hit the wire.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpURL:    cfg.HTTPURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger.With(slog.String("component", "polygon")),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call issues one JSON-RPC method call, retrying transport failures, non-200
// responses (including 429 rate limits), and RPC error envelopes with
// exponential backoff. After the final attempt the last error is returned.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		result, err := c.do(ctx, method, params)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < c.maxRetries {
			delay := c.retryDelay * (1 << (attempt - 1))
			c.logger.Warn("rpc call failed, retrying",
				slog.String("method", method),
				slog.String("attempt", fmt.Sprintf("%d/%d", attempt, c.maxRetries)),
				slog.Duration("backoff", delay),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	c.logger.Error("rpc call failed after all retries",
		slog.String("method", method),
		slog.Int("attempts", c.maxRetries),
		slog.String("error", lastErr.Error()),
	)
	return nil, fmt.Errorf("polygon: %s after %d attempts: %w", method, c.maxRetries, lastErr)
}

// do performs a single request/response round trip.
func (c *Client) do(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	payload := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.httpURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (HTTP 429)")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var envelope rpcResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return nil, envelope.Error
	}
	return envelope.Result, nil
}

// BlockNumber returns the current chain head height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	var hexNum string
	if err := json.Unmarshal(result, &hexNum); err != nil {
		return 0, fmt.Errorf("polygon: decode block number: %w", err)
	}
	n, err := hexutil.DecodeUint64(hexNum)
	if err != nil {
		return 0, fmt.Errorf("polygon: parse block number %q: %w", hexNum, err)
	}
	return n, nil
}

// BlockByNumber fetches the full block with transaction bodies. Returns nil
// when the node does not know the block.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*Block, error) {
	result, err := c.Call(ctx, "eth_getBlockByNumber", hexutil.EncodeUint64(number), true)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}
	var block Block
	if err := json.Unmarshal(result, &block); err != nil {
		return nil, fmt.Errorf("polygon: decode block %d: %w", number, err)
	}
	return &block, nil
}

// BlockReceipts fetches every transaction receipt in the block in one call.
// A null result (empty block) yields an empty slice.
func (c *Client) BlockReceipts(ctx context.Context, number uint64) ([]Receipt, error) {
	result, err := c.Call(ctx, "eth_getBlockReceipts", hexutil.EncodeUint64(number))
	if err != nil {
		return nil, err
	}
	var receipts []Receipt
	if len(result) > 0 && string(result) != "null" {
		if err := json.Unmarshal(result, &receipts); err != nil {
			return nil, fmt.Errorf("polygon: decode receipts for block %d: %w", number, err)
		}
	}
	return receipts, nil
}

// TransactionReceipt fetches a single transaction receipt. Returns nil when
// the node has no receipt for the hash.
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	result, err := c.Call(ctx, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}
	var receipt Receipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, fmt.Errorf("polygon: decode receipt %s: %w", txHash, err)
	}
	return &receipt, nil
}

// Close releases idle transport connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
