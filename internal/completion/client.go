package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Minter issues a bearer token for the given user.
type Minter interface {
	Token(userID string) (string, error)
}

// Completer issues one chat completion on behalf of a user.
type Completer interface {
	Complete(ctx context.Context, userID string, req *Request) (*Response, error)
}

// Client calls the chat completions endpoint with a fresh per-user token on
// every request.
type Client struct {
	baseURL string
	minter  Minter
	http    *http.Client
}

// requestTimeout bounds one completion round trip, tool execution included.
const requestTimeout = 300 * time.Second

func NewClient(baseURL string, minter Minter) *Client {
	return &Client{
		baseURL: baseURL,
		minter:  minter,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) Complete(ctx context.Context, userID string, req *Request) (*Response, error) {
	req.Stream = false

	token, err := c.minter.Token(userID)
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("completion API error %d: %s", resp.StatusCode, string(body))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
