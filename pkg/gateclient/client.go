// Package gateclient is a thin HTTP client for the gate service, used by
// runtimes and operator tooling.
package gateclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wenakita/CreatorVault-sub008/pkg/domain"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Bearer     string
}

func New(baseURL, bearer string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		Bearer:     bearer,
	}
}

type NonceResponse struct {
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Read struct {
	Eligible bool           `json:"eligible"`
	Reason   string         `json:"reason"`
	Evidence map[string]any `json:"evidence,omitempty"`
}

type JoinResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason"`
	Wallet   string `json:"wallet"`
	ActionID string `json:"action_id,omitempty"`
	Reads    []Read `json:"reads,omitempty"`
}

type CommandRequest struct {
	GroupID string `json:"group_id"`
	Wallet  string `json:"wallet"`
	Text    string `json:"text"`
}

type CommandResponse struct {
	Handled bool   `json:"handled"`
	Reply   string `json:"reply,omitempty"`
}

type RequestStatus struct {
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	ActionID    string    `json:"action_id,omitempty"`
	NextCheckAt time.Time `json:"next_check_at,omitempty"`
}

func (c *Client) RequestNonce(ctx context.Context, vault, wallet string) (*NonceResponse, error) {
	return post[NonceResponse](ctx, c, "/gate/join/nonce", map[string]any{
		"vault": vault, "wallet": wallet,
	})
}

func (c *Client) Join(ctx context.Context, vault, message, signature string) (*JoinResponse, error) {
	return post[JoinResponse](ctx, c, "/gate/join", map[string]any{
		"vault": vault, "message": message, "signature": signature,
	})
}

func (c *Client) UpsertVault(ctx context.Context, cfg domain.VaultConfig, actorWallet string) (*domain.VaultConfig, error) {
	return post[domain.VaultConfig](ctx, c, "/gate/vaults", map[string]any{
		"config": cfg, "actor_wallet": actorWallet,
	})
}

func (c *Client) GetVault(ctx context.Context, vault string) (*domain.VaultConfig, error) {
	return get[domain.VaultConfig](ctx, c, "/gate/vaults/"+url.PathEscape(vault))
}

func (c *Client) SetJoinLocked(ctx context.Context, vault string, locked bool, actorWallet string) (*domain.VaultConfig, error) {
	return post[domain.VaultConfig](ctx, c, "/gate/vaults/"+url.PathEscape(vault)+"/lock", map[string]any{
		"locked": locked, "actor_wallet": actorWallet,
	})
}

func (c *Client) JoinRequestStatus(ctx context.Context, vault, wallet string) (*RequestStatus, error) {
	return get[RequestStatus](ctx, c, "/gate/vaults/"+url.PathEscape(vault)+"/requests/"+url.PathEscape(wallet))
}

func (c *Client) Command(ctx context.Context, in CommandRequest) (*CommandResponse, error) {
	return post[CommandResponse](ctx, c, "/gate/command", in)
}

func post[T any](ctx context.Context, c *Client, path string, body any) (*T, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON[T](c, req)
}

func get[T any](ctx context.Context, c *Client, path string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return doJSON[T](c, req)
}

func doJSON[T any](c *Client, req *http.Request) (*T, error) {
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return nil, fmt.Errorf("http %d: %v", resp.StatusCode, errBody)
	}
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
