// Package walletlink is a Go client for the walletd HTTP API.
package walletlink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Connect waits for the user to approve in the wallet, so it is generous.
const DefaultHTTPTimeout = 2 * time.Minute

// Client wraps the HTTP interactions with the walletd REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Session is the wallet connection snapshot.
type Session struct {
	Account           string `json:"account,omitempty"`
	ChainID           uint64 `json:"chainId,omitempty"`
	IsConnected       bool   `json:"isConnected"`
	IsLoading         bool   `json:"isLoading"`
	ProviderAvailable bool   `json:"providerAvailable"`
	ChainLabel        string `json:"chainLabel,omitempty"`
}

// NativeCurrency describes the gas token of a chain.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Descriptor is the registry metadata of a chain.
type Descriptor struct {
	ChainID           uint64         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
}

// Network is one entry of the network selector.
type Network struct {
	ChainID    uint64      `json:"chainId"`
	Label      string      `json:"label"`
	Registered bool        `json:"registered"`
	Descriptor *Descriptor `json:"descriptor,omitempty"`
}

// JournalEntry is one record of wallet activity.
type JournalEntry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Outcome   string    `json:"outcome"`
	Account   string    `json:"account,omitempty"`
	ChainID   uint64    `json:"chainId,omitempty"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("walletlink api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("walletlink api error (%d): %s", e.StatusCode, e.Message)
}

// ProviderUnavailable reports whether the daemon found no wallet.
func (e *APIError) ProviderUnavailable() bool {
	return e != nil && e.Code == "PROVIDER_UNAVAILABLE"
}

// NewClient instantiates a client for the walletd API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAccessToken sets the bearer token sent with every request.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// Session returns the current snapshot.
func (c *Client) Session(ctx context.Context) (Session, error) {
	var s Session
	err := c.get(ctx, "/api/v1/wallet", &s)
	return s, err
}

// Connect asks the wallet for authorisation and returns the resulting
// snapshot. It blocks until the user answers in the wallet.
func (c *Client) Connect(ctx context.Context) (Session, error) {
	var s Session
	err := c.post(ctx, "/api/v1/wallet/connect", nil, &s)
	return s, err
}

// Disconnect clears the session.
func (c *Client) Disconnect(ctx context.Context) (Session, error) {
	var s Session
	err := c.post(ctx, "/api/v1/wallet/disconnect", nil, &s)
	return s, err
}

// SwitchNetwork requests a chain switch. The new chain shows up in later
// snapshots once the wallet confirms it.
func (c *Client) SwitchNetwork(ctx context.Context, chainID uint64) (Session, error) {
	var s Session
	err := c.post(ctx, "/api/v1/wallet/network", map[string]uint64{"chainId": chainID}, &s)
	return s, err
}

// Networks lists the selectable and registered networks.
func (c *Client) Networks(ctx context.Context) ([]Network, error) {
	var out []Network
	err := c.get(ctx, "/api/v1/networks", &out)
	return out, err
}

// Journal returns up to limit recent activity entries, newest first. A
// non-positive limit uses the server default.
func (c *Client) Journal(ctx context.Context, limit int) ([]JournalEntry, error) {
	endpoint := "/api/v1/journal"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var out []JournalEntry
	err := c.get(ctx, endpoint, &out)
	return out, err
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) resolve(endpoint string) (*url.URL, error) {
	rel, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rel.Path = path.Join(c.baseURL.Path, rel.Path)
	return c.baseURL.ResolveReference(rel), nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	u, err := c.resolve(endpoint)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
