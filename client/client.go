// Package client talks to a node's HTTP API. Requests are retried on
// connection failures and 5xx responses.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"peerledger/api/handlers"
	"peerledger/blockchain"
	"peerledger/mempool"
	"peerledger/p2p"
)

// APIError is a non-2xx reply from the node.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("node returned %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("node returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the rejection reason back to the ledger error it names.
func (e *APIError) Unwrap() error {
	switch e.Reason {
	case "malformed_block":
		return blockchain.ErrMalformedBlock
	case "malformed_transaction":
		return blockchain.ErrMalformedTransaction
	case "link_mismatch":
		return blockchain.ErrLinkMismatch
	case "hash_mismatch":
		return blockchain.ErrHashMismatch
	case "signature_invalid":
		return blockchain.ErrSignatureInvalid
	case "proof_of_work_insufficient":
		return blockchain.ErrProofOfWorkInsufficient
	case "duplicate":
		return mempool.ErrDuplicate
	case "pool_full":
		return mempool.ErrPoolFull
	case "peer_unreachable":
		return p2p.ErrPeerUnreachable
	}
	return nil
}

type config struct {
	timeout      time.Duration
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	retryMax     int
}

type Option func(*config)

// WithTimeout sets the maximum duration of a single HTTP attempt.
// Default: 30 seconds, mining can take a while.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithRetryWait sets the backoff bounds between attempts.
// Default: 500ms to 5 seconds.
func WithRetryWait(lo, hi time.Duration) Option {
	return func(c *config) {
		c.retryWaitMin = lo
		c.retryWaitMax = hi
	}
}

// WithRetryMax sets the number of retries after the first attempt.
// Default: 2.
func WithRetryMax(n int) Option {
	return func(c *config) {
		c.retryMax = n
	}
}

type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// New returns a client for the API rooted at baseURL, for example
// http://127.0.0.1:8080.
func New(baseURL string, opts ...Option) *Client {
	cfg := config{
		timeout:      30 * time.Second,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
		retryMax:     2,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	httpClient := retryablehttp.NewClient()
	httpClient.Logger = nil
	httpClient.HTTPClient.Timeout = cfg.timeout
	httpClient.RetryWaitMin = cfg.retryWaitMin
	httpClient.RetryWaitMax = cfg.retryWaitMax
	httpClient.RetryMax = cfg.retryMax
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// SubmitTransaction posts a signed transaction and returns its id.
func (c *Client) SubmitTransaction(ctx context.Context, tx *blockchain.Transaction) (string, error) {
	var resp handlers.Response
	if err := c.do(ctx, http.MethodPost, "/api/transactions", tx, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) SubmitBlock(ctx context.Context, block *blockchain.Block) error {
	return c.do(ctx, http.MethodPost, "/api/blocks", block, nil)
}

// Mine asks the node to mine its pending transactions.
func (c *Client) Mine(ctx context.Context) (*blockchain.Block, error) {
	var block blockchain.Block
	if err := c.do(ctx, http.MethodPost, "/api/mine", nil, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

func (c *Client) Chain(ctx context.Context) ([]*blockchain.Block, error) {
	var blocks []*blockchain.Block
	if err := c.do(ctx, http.MethodGet, "/api/chain", nil, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (c *Client) Height(ctx context.Context) (int, error) {
	var resp struct {
		Height int `json:"height"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chain/height", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Height, nil
}

func (c *Client) Head(ctx context.Context) (*blockchain.Block, error) {
	var block blockchain.Block
	if err := c.do(ctx, http.MethodGet, "/api/chain/head", nil, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

func (c *Client) Block(ctx context.Context, hash blockchain.Hash32) (*blockchain.Block, error) {
	var block blockchain.Block
	if err := c.do(ctx, http.MethodGet, "/api/blocks/"+hash.String(), nil, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

func (c *Client) Peers(ctx context.Context) ([]p2p.PeerInfo, error) {
	var peers []p2p.PeerInfo
	if err := c.do(ctx, http.MethodGet, "/api/peers", nil, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// AddPeer asks the node to dial a websocket peer address.
func (c *Client) AddPeer(ctx context.Context, address string) error {
	return c.do(ctx, http.MethodPost, "/api/peers", map[string]string{"address": address}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		return decodeError(res)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(res *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return &APIError{StatusCode: res.StatusCode, Message: err.Error()}
	}

	var body handlers.Response
	if err := json.Unmarshal(raw, &body); err != nil || (body.Error == "" && body.Reason == "") {
		return &APIError{StatusCode: res.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	return &APIError{StatusCode: res.StatusCode, Reason: body.Reason, Message: body.Error}
}

// IsRejected reports whether err is a 4xx reply from the node.
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError
}
