package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	retry "github.com/avast/retry-go/v4"
	"golang.org/x/oauth2"
)

const (
	defaultGitHubAPIURL = "https://api.github.com"

	// PageSize is the fixed per_page requested from the starred endpoint.
	PageSize = 100

	maxFetchAttempts = 5
)

// APIError is a non-2xx response from a provider API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider api error: status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the error is worth retrying: server-side
// failures and rate limiting. Other 4xx responses are permanent.
func (e *APIError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsPermanent reports whether err is a provider error that retrying cannot
// fix, such as a revoked token.
func IsPermanent(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && !apiErr.Transient()
}

// GitHubClient fetches starred repositories from the GitHub REST API.
type GitHubClient struct {
	BaseURL string
	Timeout time.Duration

	// RetryDelay is the initial backoff delay between attempts.
	RetryDelay time.Duration
}

// NewGitHubClient builds a client against the given API base URL (empty means
// api.github.com) with the given request timeout.
func NewGitHubClient(baseURL string, timeout time.Duration) *GitHubClient {
	if baseURL == "" {
		baseURL = defaultGitHubAPIURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GitHubClient{
		BaseURL:    baseURL,
		Timeout:    timeout,
		RetryDelay: time.Second,
	}
}

// githubRepo is the subset of a GitHub repository object the pipeline needs.
type githubRepo struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Owner *struct {
		Login string `json:"login"`
		ID    int64  `json:"id"`
	} `json:"owner"`
	Description     *string `json:"description"`
	StargazersCount int     `json:"stargazers_count"`
	HTMLURL         string  `json:"html_url"`
	Homepage        *string `json:"homepage"`
	Archived        bool    `json:"archived"`
}

// FetchPage fetches one page of the authenticated user's starred repositories.
// Transient failures are retried with exponential backoff inside the fixed
// attempt budget; permanent failures surface immediately.
func (c *GitHubClient) FetchPage(ctx context.Context, token string, page int) ([]StarRecord, bool, error) {
	var body []byte

	err := retry.Do(
		func() error {
			var fetchErr error
			body, fetchErr = c.fetchRaw(ctx, token, page)
			return fetchErr
		},
		retry.Context(ctx),
		retry.Attempts(maxFetchAttempts),
		retry.Delay(c.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !IsPermanent(err)
		}),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch starred page %d: %w", page, err)
	}

	records, err := normalizeStarredPage(body)
	if err != nil {
		return nil, false, err
	}

	lastPage := pageItemCount(body) < PageSize
	return records, lastPage, nil
}

func (c *GitHubClient) fetchRaw(ctx context.Context, token string, page int) ([]byte, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, src)
	httpClient.Timeout = c.Timeout

	url := fmt.Sprintf("%s/user/starred?per_page=%d&page=%d", c.BaseURL, PageSize, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github api request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// normalizeStarredPage turns a raw starred-endpoint response into canonical
// records. Items missing an owner (the owning account was deleted upstream)
// are skipped without failing the page.
func normalizeStarredPage(body []byte) ([]StarRecord, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode starred page: %w", err)
	}

	records := make([]StarRecord, 0, len(items))
	for _, item := range items {
		var repo githubRepo
		if err := json.Unmarshal(item, &repo); err != nil {
			continue
		}
		if repo.Owner == nil {
			continue
		}

		records = append(records, StarRecord{
			ProviderID:  strconv.FormatInt(repo.ID, 10),
			Owner:       repo.Owner.Login,
			OwnerID:     strconv.FormatInt(repo.Owner.ID, 10),
			Name:        repo.Name,
			Description: emptyToNil(repo.Description),
			StarCount:   repo.StargazersCount,
			RepoURL:     repo.HTMLURL,
			ProjectURL:  emptyToNil(repo.Homepage),
			Archived:    repo.Archived,
			Raw:         item,
		})
	}

	return records, nil
}

// pageItemCount counts raw items, including ones normalization skipped. The
// last-page heuristic has to see the provider's count, not the normalized one.
func pageItemCount(body []byte) int {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return 0
	}
	return len(items)
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
