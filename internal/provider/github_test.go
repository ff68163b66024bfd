package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *GitHubClient {
	c := NewGitHubClient(baseURL, time.Second)
	c.RetryDelay = time.Millisecond
	return c
}

func repoJSON(id int, extras string) string {
	return fmt.Sprintf(`{
		"id": %d,
		"name": "repo-%d",
		"owner": {"login": "octocat", "id": 583231},
		"description": "a repo",
		"stargazers_count": 42,
		"html_url": "https://github.com/octocat/repo-%d",
		"homepage": "https://example.com"
		%s
	}`, id, id, id, extras)
}

func pageBody(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = repoJSON(i+1, "")
	}
	return "[" + strings.Join(items, ",") + "]"
}

func TestFetchPageSendsExpectedRequest(t *testing.T) {
	var gotReq *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	_, _, err := testClient(srv.URL).FetchPage(context.Background(), "secret-token", 3)
	require.NoError(t, err)

	require.NotNil(t, gotReq)
	assert.Equal(t, "/user/starred", gotReq.URL.Path)
	assert.Equal(t, "100", gotReq.URL.Query().Get("per_page"))
	assert.Equal(t, "3", gotReq.URL.Query().Get("page"))
	assert.Equal(t, "Bearer secret-token", gotReq.Header.Get("Authorization"))
	assert.Equal(t, "application/vnd.github+json", gotReq.Header.Get("Accept"))
	assert.Equal(t, "2022-11-28", gotReq.Header.Get("X-GitHub-Api-Version"))
}

func TestFetchPageNormalizesRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "["+repoJSON(7, `, "archived": true`)+"]")
	}))
	defer srv.Close()

	records, lastPage, err := testClient(srv.URL).FetchPage(context.Background(), "t", 1)
	require.NoError(t, err)
	assert.True(t, lastPage)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "7", rec.ProviderID)
	assert.Equal(t, "octocat", rec.Owner)
	assert.Equal(t, "583231", rec.OwnerID)
	assert.Equal(t, "repo-7", rec.Name)
	require.NotNil(t, rec.Description)
	assert.Equal(t, "a repo", *rec.Description)
	assert.Equal(t, 42, rec.StarCount)
	assert.Equal(t, "https://github.com/octocat/repo-7", rec.RepoURL)
	require.NotNil(t, rec.ProjectURL)
	assert.Equal(t, "https://example.com", *rec.ProjectURL)
	assert.True(t, rec.Archived)
	assert.True(t, json.Valid(rec.Raw))
}

func TestFetchPageSkipsDeletedOwners(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := "[" + repoJSON(1, "") + `,{"id": 2, "name": "orphan", "owner": null},` + repoJSON(3, "") + "]"
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	records, _, err := testClient(srv.URL).FetchPage(context.Background(), "t", 1)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0].ProviderID)
	assert.Equal(t, "3", records[1].ProviderID)
}

func TestFetchPageEmptyOptionalFieldsBecomeNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{
			"id": 1, "name": "bare",
			"owner": {"login": "octocat", "id": 1},
			"description": null, "homepage": "",
			"stargazers_count": 0,
			"html_url": "https://github.com/octocat/bare"
		}]`)
	}))
	defer srv.Close()

	records, _, err := testClient(srv.URL).FetchPage(context.Background(), "t", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Description)
	assert.Nil(t, records[0].ProjectURL)
	assert.False(t, records[0].Archived, "archived defaults to false when absent")
}

func TestFetchPageLastPageHeuristic(t *testing.T) {
	tests := []struct {
		name  string
		items int
		last  bool
	}{
		{"full page continues", PageSize, false},
		{"short page terminates", PageSize - 1, true},
		{"empty page terminates", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, pageBody(tt.items))
			}))
			defer srv.Close()

			_, last, err := testClient(srv.URL).FetchPage(context.Background(), "t", 1)
			require.NoError(t, err)
			assert.Equal(t, tt.last, last)
		})
	}
}

func TestFetchPageSkippedItemsStillCountForPagination(t *testing.T) {
	// a full page where some owners were deleted is still a full page
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items := make([]string, PageSize)
		for i := range items {
			items[i] = `{"id": 1, "name": "orphan", "owner": null}`
		}
		fmt.Fprint(w, "["+strings.Join(items, ",")+"]")
	}))
	defer srv.Close()

	records, last, err := testClient(srv.URL).FetchPage(context.Background(), "t", 1)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.False(t, last)
}

func TestFetchPageRetriesTransientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	_, _, err := testClient(srv.URL).FetchPage(context.Background(), "t", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestFetchPageRetriesRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	_, _, err := testClient(srv.URL).FetchPage(context.Background(), "t", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestFetchPageDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, _, err := testClient(srv.URL).FetchPage(context.Background(), "t", 1)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsPermanent(err))
}

func TestFetchPageRetryBudgetExhausts(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, _, err := testClient(srv.URL).FetchPage(context.Background(), "t", 1)
	require.Error(t, err)
	assert.Equal(t, maxFetchAttempts, calls)
	assert.False(t, IsPermanent(err))
}
