package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/terra-clan/motify-engine/internal/ledger"
	"github.com/terra-clan/motify-engine/internal/models"
)

// Client calls the OAuth backend
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new OAuth backend client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type statusResponse struct {
	HasCredentials bool       `json:"has_credentials"`
	Username       string     `json:"username"`
	ConnectedAt    *time.Time `json:"connected_at"`
}

type connectResponse struct {
	AuthURL string `json:"auth_url"`
}

// Status returns whether wallet has connected provider
func (c *Client) Status(ctx context.Context, provider, wallet string) (*models.OAuthStatus, error) {
	wallet = ledger.NormalizeAddress(wallet)
	path := fmt.Sprintf("/oauth/status/%s/%s", url.PathEscape(provider), url.PathEscape(wallet))

	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, path, nil, provider, &resp); err != nil {
		return nil, err
	}

	return &models.OAuthStatus{
		Provider:       provider,
		WalletAddress:  wallet,
		HasCredentials: resp.HasCredentials,
		Username:       resp.Username,
		ConnectedAt:    resp.ConnectedAt,
	}, nil
}

// ConnectURL exchanges a signed connect message for the provider's authorization URL
func (c *Client) ConnectURL(ctx context.Context, provider string, req models.SignedOAuthRequest) (string, error) {
	query := url.Values{
		"wallet_address": {ledger.NormalizeAddress(req.WalletAddress)},
		"signature":      {req.Signature},
		"timestamp":      {strconv.FormatInt(req.Timestamp, 10)},
	}
	path := fmt.Sprintf("/oauth/connect/%s", url.PathEscape(provider))

	var resp connectResponse
	if err := c.do(ctx, http.MethodGet, path, query, provider, &resp); err != nil {
		return "", err
	}

	if resp.AuthURL == "" {
		return "", &models.ExternalAuthError{Provider: provider, Message: "backend returned no auth_url"}
	}
	return resp.AuthURL, nil
}

// Disconnect removes the provider credentials of a wallet
func (c *Client) Disconnect(ctx context.Context, provider string, req models.SignedOAuthRequest) (*models.OAuthResult, error) {
	query := url.Values{
		"signature": {req.Signature},
		"timestamp": {strconv.FormatInt(req.Timestamp, 10)},
	}
	path := fmt.Sprintf("/oauth/disconnect/%s/%s",
		url.PathEscape(provider), url.PathEscape(ledger.NormalizeAddress(req.WalletAddress)))

	var resp models.OAuthResult
	if err := c.do(ctx, http.MethodDelete, path, query, provider, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return &resp, &models.ExternalAuthError{Provider: provider, Message: resp.Message}
	}
	return &resp, nil
}

// errorBody covers the error shapes the backend is known to return
type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Error   string `json:"error"`
}

func (b errorBody) text() string {
	switch {
	case b.Message != "":
		return b.Message
	case b.Detail != "":
		return b.Detail
	default:
		return b.Error
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, provider string, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("oauth backend request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read oauth backend response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode oauth backend response: %w", err)
		}
		return nil
	}

	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	msg := eb.text()
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		var retryAfter time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return &models.RateLimitedError{Provider: provider, RetryAfter: retryAfter}
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return &models.ExternalAuthError{Provider: provider, StatusCode: resp.StatusCode, Message: msg}
	default:
		return fmt.Errorf("oauth backend returned status %d: %s", resp.StatusCode, msg)
	}
}
