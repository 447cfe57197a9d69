// Package bridge is a thin HTTP accessor over a remote Cardano bridge
// server: raw block/epoch bytes, tip status, genesis, and signed-tx
// submission, all rooted at a per-network base URL.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// TipInfo is one side (local or remote) of the status route's tip pair.
type TipInfo struct {
	Height uint64 `json:"height"`
	Epoch  uint64 `json:"epoch"`
	Slot   uint64 `json:"slot"`
}

// TipStatus is the decoded response of the status route. Local is nil when
// the bridge itself hasn't finished syncing far enough to report one.
type TipStatus struct {
	Tip struct {
		Local  *TipInfo `json:"local"`
		Remote TipInfo  `json:"remote"`
	} `json:"tip"`
	PackedEpochs uint64 `json:"packedEpochs"`
}

// Client talks to one network's bridge endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client rooted at base/network/, tuning the transport for a
// long-lived polling process the way the teacher's RPC clients do.
func New(base, network string) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("bridge: parse base url: %w", err)
	}
	u.Path = joinPath(u.Path, network) + "/"

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Client{
		baseURL: u.String(),
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}, nil
}

func joinPath(a, b string) string {
	for len(a) > 0 && a[len(a)-1] == '/' {
		a = a[:len(a)-1]
	}
	for len(b) > 0 && b[0] == '/' {
		b = b[1:]
	}
	return a + "/" + b
}

// TipStatus fetches the bridge's view of local/remote chain tips.
func (c *Client) TipStatus(ctx context.Context) (*TipStatus, error) {
	body, err := c.getBytes(ctx, "status", "status")
	if err != nil {
		return nil, err
	}
	var status TipStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("bridge: decode status response: %w", err)
	}
	return &status, nil
}

// BlockByHeight fetches a raw block blob by height.
func (c *Client) BlockByHeight(ctx context.Context, height uint64) ([]byte, error) {
	return c.getBytes(ctx, "block_by_height", fmt.Sprintf("height/%d", height))
}

// EpochPacked fetches a raw packed-epoch blob by epoch id.
func (c *Client) EpochPacked(ctx context.Context, epoch uint64) ([]byte, error) {
	return c.getBytes(ctx, "epoch_packed", fmt.Sprintf("epoch/%d", epoch))
}

// BlockByID fetches a raw block blob by hash.
func (c *Client) BlockByID(ctx context.Context, hash string) ([]byte, error) {
	return c.getBytes(ctx, "block_by_id", fmt.Sprintf("block/%s", hash))
}

// Genesis fetches the genesis document for the given genesis hash, returned
// as its raw JSON body (decoding is left to the caller).
func (c *Client) Genesis(ctx context.Context, hash string) (json.RawMessage, error) {
	return c.getBytes(ctx, "genesis", fmt.Sprintf("genesis/%s", hash))
}

// SubmitSigned forwards a raw signed-tx payload to the bridge and returns
// its response body, whatever status the bridge answered with.
func (c *Client) SubmitSigned(ctx context.Context, payload []byte) (status int, body []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"txs/signed", bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("submit_signed: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/cbor")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &Unavailable{Op: "submit_signed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("submit_signed: read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// getBytes performs a GET against path and returns the raw response body,
// classifying transport failures as Unavailable and non-2xx responses as
// HTTPError per the bridge's error contract.
func (c *Client) getBytes(ctx context.Context, op, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Unavailable{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Op: op, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
