package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/terra-clan/motify-engine/internal/models"
)

// Client is a Go SDK for the motify-engine API
type Client struct {
	baseURL    string
	apiKey     string
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

// NewClient creates a new motify-engine client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error envelope returned by the server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.Code, e.Message)
}

// Is lets callers match server errors against the domain sentinels
func (e *APIError) Is(target error) bool {
	switch e.Code {
	case "not_found":
		return target == models.ErrNotFound
	case "not_participant":
		return target == models.ErrNotParticipant
	case "already_joined":
		return target == models.ErrAlreadyJoined
	case "challenge_ended":
		return target == models.ErrChallengeEnded
	case "challenge_not_ended":
		return target == models.ErrNotEnded
	case "invalid_stake":
		return target == models.ErrInvalidStake
	case "validation_error":
		return target == models.ErrValidation
	case "external_auth_failed":
		return target == models.ErrExternalAuth
	}
	return false
}

// ProgressResponse is the progress of a wallet. Progress is nil while the
// challenge has not started.
type ProgressResponse struct {
	ChallengeID   int64                  `json:"challenge_id"`
	WalletAddress string                 `json:"wallet_address"`
	Started       bool                   `json:"started"`
	Progress      *models.ProgressSeries `json:"progress"`
}

// ListChallenges retrieves all challenges, projected for wallet if set
func (c *Client) ListChallenges(ctx context.Context, wallet string) ([]*models.ChallengeView, error) {
	var data struct {
		Challenges []*models.ChallengeView `json:"challenges"`
		Total      int                     `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, withWallet("/api/v1/challenges", wallet), nil, &data); err != nil {
		return nil, err
	}
	return data.Challenges, nil
}

// GetChallenge retrieves a challenge by its frontend id
func (c *Client) GetChallenge(ctx context.Context, id int64, wallet string) (*models.ChallengeView, error) {
	var view models.ChallengeView
	path := withWallet(fmt.Sprintf("/api/v1/challenges/%d", id), wallet)
	if err := c.do(ctx, http.MethodGet, path, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// GetChallengeByChainID retrieves a challenge by its on-chain id
func (c *Client) GetChallengeByChainID(ctx context.Context, chainID int64, wallet string) (*models.ChallengeView, error) {
	var view models.ChallengeView
	path := withWallet(fmt.Sprintf("/api/v1/challenges/chain/%d", chainID), wallet)
	if err := c.do(ctx, http.MethodGet, path, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// CreateChallenge creates a new challenge
func (c *Client) CreateChallenge(ctx context.Context, req models.CreateChallengeRequest) (*models.ChallengeView, error) {
	var view models.ChallengeView
	if err := c.do(ctx, http.MethodPost, "/api/v1/challenges", req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// JoinChallenge records a wallet as a participant
func (c *Client) JoinChallenge(ctx context.Context, id int64, req models.JoinRequest) (*models.ChallengeView, error) {
	var view models.ChallengeView
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/challenges/%d/join", id), req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Eligibility reports whether wallet can join a challenge
func (c *Client) Eligibility(ctx context.Context, id int64, wallet string) (*models.Eligibility, error) {
	var el models.Eligibility
	path := withWallet(fmt.Sprintf("/api/v1/challenges/%d/eligibility", id), wallet)
	if err := c.do(ctx, http.MethodGet, path, nil, &el); err != nil {
		return nil, err
	}
	return &el, nil
}

// Progress retrieves the progress of wallet in a challenge
func (c *Client) Progress(ctx context.Context, id int64, wallet string) (*ProgressResponse, error) {
	var pr ProgressResponse
	path := withWallet(fmt.Sprintf("/api/v1/challenges/%d/progress", id), wallet)
	if err := c.do(ctx, http.MethodGet, path, nil, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}

// FinalizeChallenge marks an ended challenge as completed
func (c *Client) FinalizeChallenge(ctx context.Context, id int64) (*models.ChallengeView, error) {
	var view models.ChallengeView
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/challenges/%d/finalize", id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// OAuthMessage retrieves the message a wallet must sign for action
func (c *Client) OAuthMessage(ctx context.Context, provider, wallet, action string) (*models.OAuthMessage, error) {
	q := url.Values{}
	q.Set("wallet", wallet)
	if action != "" {
		q.Set("action", action)
	}

	var msg models.OAuthMessage
	path := fmt.Sprintf("/api/v1/oauth/%s/message?%s", url.PathEscape(provider), q.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// OAuthStatus retrieves the provider connection state of a wallet
func (c *Client) OAuthStatus(ctx context.Context, provider, wallet string) (*models.OAuthStatus, error) {
	var status models.OAuthStatus
	path := fmt.Sprintf("/api/v1/oauth/%s/status/%s", url.PathEscape(provider), url.PathEscape(wallet))
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// OAuthConnect returns the provider authorization URL for a signed request
func (c *Client) OAuthConnect(ctx context.Context, provider string, req models.SignedOAuthRequest) (string, error) {
	var data struct {
		AuthURL string `json:"auth_url"`
	}
	path := fmt.Sprintf("/api/v1/oauth/%s/connect", url.PathEscape(provider))
	if err := c.do(ctx, http.MethodPost, path, req, &data); err != nil {
		return "", err
	}
	return data.AuthURL, nil
}

// OAuthDisconnect removes a provider connection for a signed request
func (c *Client) OAuthDisconnect(ctx context.Context, provider string, req models.SignedOAuthRequest) (*models.OAuthResult, error) {
	var result models.OAuthResult
	path := fmt.Sprintf("/api/v1/oauth/%s/disconnect", url.PathEscape(provider))
	if err := c.do(ctx, http.MethodPost, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func withWallet(path, wallet string) string {
	if wallet == "" {
		return path
	}
	return path + "?wallet=" + url.QueryEscape(wallet)
}

// do performs an HTTP request and decodes the response envelope into out
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Code: "http_error", Message: string(respBody)}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success || resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if result.Error != nil {
			apiErr.Code = result.Error.Code
			apiErr.Message = result.Error.Message
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return apiErr
	}

	if out == nil || len(result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

// IsRateLimited reports whether err is a 429 from the server
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
