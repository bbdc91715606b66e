package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/motify-engine/internal/api"
	"github.com/terra-clan/motify-engine/internal/challenge"
	"github.com/terra-clan/motify-engine/internal/config"
	"github.com/terra-clan/motify-engine/internal/events"
	"github.com/terra-clan/motify-engine/internal/metrics"
	"github.com/terra-clan/motify-engine/internal/models"
	"github.com/terra-clan/motify-engine/internal/progress"
	"github.com/terra-clan/motify-engine/internal/storage"
)

const testKey = "client-test-key"

type stubOAuth struct{}

func (stubOAuth) Status(ctx context.Context, provider, wallet string) (*models.OAuthStatus, error) {
	return &models.OAuthStatus{Provider: provider, WalletAddress: wallet}, nil
}

func (stubOAuth) ConnectURL(ctx context.Context, provider string, req models.SignedOAuthRequest) (string, error) {
	return "https://example.test/authorize", nil
}

func (stubOAuth) Disconnect(ctx context.Context, provider string, req models.SignedOAuthRequest) (*models.OAuthResult, error) {
	return &models.OAuthResult{Success: true}, nil
}

func newTestClient(t *testing.T) *Client {
	t.Helper()

	now := time.Now()
	seed := storage.DefaultSeed(now)
	seed.Clients = append(seed.Clients, &models.ApiClient{
		ID: 1, Name: "test", ApiKey: testKey, IsActive: true, Permissions: []string{"*"},
	})
	repo := storage.NewMemoryRepository(seed, storage.MemoryConfig{})

	hub := events.NewHub()
	m := metrics.New(prometheus.NewRegistry())
	synth := progress.NewSynthesizer(progress.NewSeededRandomProvider(7))
	manager := challenge.NewManager(repo, nil, synth, challenge.WithPublisher(hub), challenge.WithMetrics(m))

	srv := api.NewServer(config.ServerConfig{Port: 8080}, config.RateLimitConfig{}, manager, stubOAuth{}, hub, repo, m)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return NewClient(ts.URL, testKey, WithTimeout(5*time.Second))
}

func TestClientChallengeFlow(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	list, err := c.ListChallenges(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, list)

	created, err := c.CreateChallenge(ctx, models.CreateChallengeRequest{
		Name:      "SDK challenge",
		Goal:      "3",
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID+1000, created.ChainID)

	view, err := c.JoinChallenge(ctx, created.ID, models.JoinRequest{WalletAddress: "0xSDK", AmountUSD: 2})
	require.NoError(t, err)
	assert.True(t, view.IsParticipating)
	assert.Equal(t, "0xsdk", view.Viewer)

	_, err = c.JoinChallenge(ctx, created.ID, models.JoinRequest{WalletAddress: "0xsdk", AmountUSD: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrAlreadyJoined))

	byChain, err := c.GetChallengeByChainID(ctx, created.ChainID, "0xsdk")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byChain.ID)
	assert.Equal(t, 2.0, byChain.UserStake)

	el, err := c.Eligibility(ctx, created.ID, "0xsdk")
	require.NoError(t, err)
	assert.False(t, el.CanJoin)

	pr, err := c.Progress(ctx, created.ID, "0xsdk")
	require.NoError(t, err)
	assert.True(t, pr.Started)
	require.NotNil(t, pr.Progress)
	assert.Equal(t, 3, pr.Progress.TotalDays)

	_, err = c.FinalizeChallenge(ctx, created.ID)
	assert.True(t, errors.Is(err, models.ErrNotEnded))
}

func TestClientErrors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.GetChallenge(ctx, 9999, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)

	_, err = c.Progress(ctx, 1, "")
	assert.True(t, errors.Is(err, models.ErrValidation))

	unauthorized := NewClient(c.baseURL, "")
	_, err = unauthorized.ListChallenges(ctx, "")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.False(t, IsRateLimited(err))
}

func TestClientOAuth(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	msg, err := c.OAuthMessage(ctx, "github", "0xABC", "")
	require.NoError(t, err)
	assert.Equal(t, "connect", msg.Action)
	assert.Contains(t, msg.Message, "to wallet 0xabc at")

	url, err := c.OAuthConnect(ctx, "github", models.SignedOAuthRequest{
		WalletAddress: "0xabc", Signature: "0xsig", Timestamp: msg.Timestamp,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/authorize", url)

	status, err := c.OAuthStatus(ctx, "github", "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "github", status.Provider)
}
