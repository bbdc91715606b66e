package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/terra-clan/motify-engine/internal/models"
	"github.com/terra-clan/motify-engine/internal/progress"
)

// IdentityResolver looks up the upstream account connected to a wallet
type IdentityResolver interface {
	Status(ctx context.Context, provider, wallet string) (*models.OAuthStatus, error)
}

// GitHubConfig holds GitHub provider configuration
type GitHubConfig struct {
	BaseURL   string
	Token     string
	CacheSize int
	Timeout   time.Duration
}

// GitHubProvider counts a user's daily commits, pull requests or fixed
// issues through the GitHub search API.
type GitHubProvider struct {
	baseURL    string
	token      string
	httpClient *http.Client
	identities IdentityResolver
	cache      *lru.Cache
	now        func() time.Time
}

// NewGitHubProvider creates a new GitHub activity provider
func NewGitHubProvider(cfg GitHubConfig, identities IdentityResolver) (*GitHubProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create activity cache: %w", err)
	}

	return &GitHubProvider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		identities: identities,
		cache:      cache,
		now:        time.Now,
	}, nil
}

type searchResponse struct {
	TotalCount int `json:"total_count"`
}

// FetchDailyActivity returns the activity count for the day containing q.Date
func (p *GitHubProvider) FetchDailyActivity(ctx context.Context, q progress.Query) (float64, error) {
	status, err := p.identities.Status(ctx, string(models.ProviderGitHub), q.Wallet)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve github account: %w", err)
	}
	if status == nil || !status.HasCredentials || status.Username == "" {
		return 0, &models.ExternalAuthError{
			Provider: string(models.ProviderGitHub),
			Message:  "wallet has no connected github account",
		}
	}

	date := q.Date.UTC().Format("2006-01-02")
	cacheKey := status.Username + "|" + string(q.ActivityType) + "|" + date
	if v, ok := p.cache.Get(cacheKey); ok {
		return v.(float64), nil
	}

	path, search, err := searchFor(q.ActivityType, status.Username, date)
	if err != nil {
		return 0, err
	}

	count, err := p.search(ctx, path, search)
	if err != nil {
		return 0, err
	}

	// Only closed days are stable enough to cache
	if !q.Date.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour).After(p.now()) {
		p.cache.Add(cacheKey, count)
	}

	return count, nil
}

func searchFor(activity models.ActivityType, username, date string) (string, string, error) {
	switch activity {
	case models.ActivityCommits, "":
		return "/search/commits", fmt.Sprintf("author:%s committer-date:%s", username, date), nil
	case models.ActivityPullRequests:
		return "/search/issues", fmt.Sprintf("author:%s type:pr created:%s", username, date), nil
	case models.ActivityIssuesFixed:
		return "/search/issues", fmt.Sprintf("assignee:%s type:issue is:closed closed:%s", username, date), nil
	default:
		return "", "", fmt.Errorf("activity type %q is not tracked on github", activity)
	}
}

func (p *GitHubProvider) search(ctx context.Context, path, query string) (float64, error) {
	u := p.baseURL + path + "?" + url.Values{"q": {query}, "per_page": {"1"}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		retryAfter := retryAfterFrom(resp.Header, p.now())
		slog.Warn("github rate limit hit", "retry_after", retryAfter)
		return 0, &models.RateLimitedError{Provider: "github", RetryAfter: retryAfter}
	case resp.StatusCode == http.StatusUnauthorized:
		return 0, &models.ExternalAuthError{Provider: "github", StatusCode: resp.StatusCode, Message: "token rejected"}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("github returned status %d: %s", resp.StatusCode, string(body))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode github response: %w", err)
	}

	return float64(result.TotalCount), nil
}

// retryAfterFrom reads Retry-After (seconds) or X-RateLimit-Reset (epoch seconds)
func retryAfterFrom(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(now); d > 0 {
				return d.Round(time.Second)
			}
		}
	}
	return 0
}
