// Package provider fetches starred-repository data from external services and
// normalizes it into the canonical staging shape.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider identifies one external star provider.
type Provider string

const GitHub Provider = "github"

// ErrUnknownProvider is returned when a stored token references a provider
// this build has no client for.
var ErrUnknownProvider = fmt.Errorf("unknown provider")

// Parse validates a provider name coming from configuration or the database.
func Parse(name string) (Provider, error) {
	switch Provider(name) {
	case GitHub:
		return GitHub, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}

// StarRecord is one normalized starred repository.
type StarRecord struct {
	ProviderID  string
	Owner       string
	OwnerID     string
	Name        string
	Description *string
	StarCount   int
	RepoURL     string
	ProjectURL  *string
	Archived    bool

	// Raw is the provider's original JSON for the record.
	Raw json.RawMessage
}

// Client fetches one page of starred repositories for a bearer token.
// Implementations are pure fetch+normalize; persistence belongs to the caller.
type Client interface {
	// FetchPage returns the records on the given 1-based page and whether the
	// page was the last one. Last-page detection is the short-page heuristic:
	// fewer records than the page size means no further pages.
	FetchPage(ctx context.Context, token string, page int) ([]StarRecord, bool, error)
}

// Registry maps validated providers to their clients.
type Registry map[Provider]Client

// For returns the client for a provider, if one is registered.
func (r Registry) For(p Provider) (Client, bool) {
	c, ok := r[p]
	return c, ok
}
